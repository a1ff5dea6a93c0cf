package filter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nstogner/roster/pkg/domain"
)

// ageRule maps one phrasing onto the FilterSpec age bounds.
type ageRule struct {
	re    *regexp.Regexp
	apply func(m []string, f *domain.FilterSpec)
}

func setMax(m []string, f *domain.FilterSpec) { f.MaxAge = m[1] }
func setMin(m []string, f *domain.FilterSpec) { f.MinAge = m[1] }

// "under N" and "over N" exclude N itself; the store bounds are inclusive.
func setBelow(m []string, f *domain.FilterSpec) { f.MaxAge = offset(m[1], -1) }
func setAbove(m []string, f *domain.FilterSpec) { f.MinAge = offset(m[1], 1) }

func offset(n string, by int) string {
	v, err := strconv.Atoi(n)
	if err != nil {
		return n
	}
	return strconv.Itoa(max(v+by, 0))
}

func setExact(m []string, f *domain.FilterSpec) {
	f.MinAge, f.MaxAge = m[1], m[1]
}
func setRange(m []string, f *domain.FilterSpec) {
	lo, hi := m[1], m[2]
	if len(lo) > len(hi) || (len(lo) == len(hi) && lo > hi) {
		lo, hi = hi, lo
	}
	f.MinAge, f.MaxAge = lo, hi
}

// ageRules are tried in order; the first match wins.
var ageRules = []ageRule{
	// max
	{regexp.MustCompile(`(?i)\b(?:max(?:imum)?\.?\s+age|age\s+(?:max(?:imum)?|limit|cap))\s*(?:of|is|=|:|<=?)?\s*(\d+)\b`), setMax},
	{regexp.MustCompile(`(?i)\b(?:under|below|younger\s+than)\s+(?:age\s+)?(\d+)\b`), setBelow},
	// between
	{regexp.MustCompile(`(?i)\bage[ds]?\s+(?:between|from)\s+(\d+)\s*(?:and|to|-)\s*(\d+)\b`), setRange},
	{regexp.MustCompile(`(?i)\bbetween\s+(\d+)\s*(?:and|to|-)\s*(\d+)\s+(?:years?|yrs?)\b`), setRange},
	{regexp.MustCompile(`(?i)\baged?\s+(\d+)\s*(?:-|to)\s*(\d+)\b`), setRange},
	// min
	{regexp.MustCompile(`(?i)\b(?:min(?:imum)?\.?\s+age|age\s+(?:min(?:imum)?|at\s+least))\s*(?:of|is|=|:|>=?)?\s*(\d+)\b`), setMin},
	{regexp.MustCompile(`(?i)\b(?:over|above|older\s+than)\s+(?:age\s+)?(\d+)\b`), setAbove},
	// exact
	{regexp.MustCompile(`(?i)\bage[ds]?\s*(?:of|is|=|:)?\s*(\d+)\b`), setExact},
	{regexp.MustCompile(`(?i)\b(\d+)\s+(?:years?|yrs?)\s+old\b`), setExact},
}

// synonym maps common shorthand onto a canonical role or department name.
type synonym struct {
	re        *regexp.Regexp
	canonical string
}

var synonyms = []synonym{
	{regexp.MustCompile(`(?i)\b(?:devs?|developers?)\b`), "Developer"},
	{regexp.MustCompile(`(?i)\b(?:admins?|administrators?)\b`), "Admin"},
	{regexp.MustCompile(`(?i)\b(?:engineers?|engs?)\b`), "Engineer"},
	{regexp.MustCompile(`(?i)\b(?:managers?|mgrs?)\b`), "Manager"},
	{regexp.MustCompile(`(?i)\bdesigners?\b`), "Designer"},
	{regexp.MustCompile(`(?i)\banalysts?\b`), "Analyst"},
	{regexp.MustCompile(`(?i)\binterns?\b`), "Intern"},
	{regexp.MustCompile(`(?i)\btesters?\b`), "Tester"},
	{regexp.MustCompile(`(?i)\b(?:execs?|executives?)\b`), "Executive"},
	{regexp.MustCompile(`(?i)\bsales\s*(?:people|persons?|reps?)\b`), "Sales"},
	{regexp.MustCompile(`(?i)\bmarketers?\b`), "Marketing"},
}

// Explicit "role X" and "department X" phrases. The terminator alternation
// stops the capture at the next structural word.
const phraseTerminator = `(?:\s+(?:and|or|in|with|who|whose|that|sorted|sort|order|ordered|aged?|ages|older|younger|over|under|above|below|phone|department|dept|role)\b|[,.;!?]|$)`

var (
	rolePhrase = regexp.MustCompile(`(?i)\b(?:role|position|title)\s*(?:is|=|:|of)?\s+([a-z][a-z &/-]*?)` + phraseTerminator)
	deptPhrase = regexp.MustCompile(`(?i)\b(?:department|dept)\s*(?:is|=|:|of)?\s+([a-z][a-z &/-]*?)` + phraseTerminator)
	deptSuffix = regexp.MustCompile(`(?i)\bin\s+(?:the\s+)?([a-z][a-z &/-]*?)\s+(?:department|dept|team)\b`)

	// phraseSeparator splits a phrase naming several values.
	phraseSeparator = regexp.MustCompile(`(?i)\s*(?:\b(?:and|or|plus)\b|[&/,+])\s*`)
)

// phonePatterns are tried in order. The last entry is the bare digit run,
// which only applies when phoneContext matches.
var (
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bphone(?:\s+number)?\s*(?:is|=|:|equals)\s*(\+?[\d][\d\s().-]*\d)`),
		regexp.MustCompile(`(?i)\bphone(?:\s+number)?\s+(?:starts?|starting|begins?|beginning)\s+with\s+(\+?[\d][\d\s().-]*)`),
		regexp.MustCompile(`(?i)\bphone(?:\s+number)?\s+(?:contains?|containing|includes?|including|has|with)\s+(\+?[\d][\d\s().-]*)`),
		regexp.MustCompile(`(?i)\bphone(?:\s+number)?\s+(\+?[\d][\d\s().-]*\d)`),
	}
	bareDigits   = regexp.MustCompile(`(\+?\d[\d().-]{4,}\d|\+?\d{5,})`)
	phoneContext = regexp.MustCompile(`(?i)\b(?:phone|number|mobile|cell|call|contact|tel)\b`)
)

var (
	sortExplicit = regexp.MustCompile(`(?i)\b(?:sort(?:ed)?|order(?:ed)?)\s+(?:them\s+)?by\s+([a-z]+)(?:\s+(asc|ascending|desc|descending)\b)?`)
	sortDir      = regexp.MustCompile(`(?i)\b(?:in\s+)?(asc|ascending|desc|descending)(?:\s+order)?\b`)
)

// sortAliases maps the word after "sort by" onto a SortField.
var sortAliases = map[string]domain.SortField{
	"name":        domain.SortByName,
	"names":       domain.SortByName,
	"email":       domain.SortByEmail,
	"emails":      domain.SortByEmail,
	"age":         domain.SortByAge,
	"ages":        domain.SortByAge,
	"role":        domain.SortByRole,
	"roles":       domain.SortByRole,
	"department":  domain.SortByDepartment,
	"departments": domain.SortByDepartment,
	"dept":        domain.SortByDepartment,
	"createdat":   domain.SortByCreatedAt,
	"created":     domain.SortByCreatedAt,
	"creation":    domain.SortByCreatedAt,
	"date":        domain.SortByCreatedAt,
	"joined":      domain.SortByCreatedAt,
}

// sortShortcut applies when no explicit sort clause is present.
type sortShortcut struct {
	re    *regexp.Regexp
	field domain.SortField
	order domain.SortOrder
}

var sortShortcuts = []sortShortcut{
	{regexp.MustCompile(`(?i)\b(?:newest|latest|most\s+recent(?:ly\s+(?:added|created|joined))?|recently\s+(?:added|created|joined))\b`), domain.SortByCreatedAt, domain.SortDesc},
	{regexp.MustCompile(`(?i)\boldest\b`), domain.SortByCreatedAt, domain.SortAsc},
	{regexp.MustCompile(`(?i)\byoungest\b`), domain.SortByAge, domain.SortAsc},
	{regexp.MustCompile(`(?i)\beldest\b`), domain.SortByAge, domain.SortDesc},
	{regexp.MustCompile(`(?i)\balphabetical(?:ly)?\b`), domain.SortByName, domain.SortAsc},
}

func parseOrder(s string) domain.SortOrder {
	if strings.HasPrefix(strings.ToLower(s), "desc") {
		return domain.SortDesc
	}
	return domain.SortAsc
}

var resetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:reset(?:\s+(?:all\s+|the\s+)?filters?)?|clear(?:\s+(?:all\s+|the\s+)?filters?)|remove\s+(?:all\s+|the\s+)?filters|start\s+over)\b`),
	regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:show|list|display|get)(?:\s+me)?\s+(?:all(?:\s+(?:the\s+)?users)?|every(?:one|body))\s*[.!]?\s*$`),
	regexp.MustCompile(`(?i)\bevery(?:one|body)\b`),
}

var (
	// Name and email trigger phrases.
	nameTrigger  = regexp.MustCompile(`(?i)\b(?:named|called|name\s+(?:is|=|:|like|contains)|name\s*[:=])\s+([^,.;!?]+?)` + phraseTerminator)
	emailTrigger = regexp.MustCompile(`(?i)\b(?:with\s+)?(e-?mail)\b(?:\s+address)?\s*(?:is|=|:|like|contains)?\s*([^\s,;!?]+)`)
	emailToken   = regexp.MustCompile(`[^\s@,;!?()<>]+@[^\s@,;!?()<>]+`)

	// fallbackCommand captures the remainder of a "find/show/list ..." query.
	fallbackCommand = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:find|show|list|search(?:\s+for)?|get|display|look\s*up|lookup)(?:\s+me)?\s+(.+?)\s*[.!?]*\s*$`)
	fallbackFiller  = regexp.MustCompile(`(?i)^(?:(?:all|the|any|a|for|users?|people|persons?|members?|records?|employees?|staff|someone|somebody)\s+)*`)
	fallbackNoun    = regexp.MustCompile(`(?i)^(?:all|the|any|users?|people|persons?|members?|records?|employees?|staff)$`)

	// connectorBefore and keywordAfter grow a claimed span over glue words so
	// they do not count as unexplained structure.
	connectorBefore = regexp.MustCompile(`(?i)(?:\b(?:with|in|and|or|that|whose|who|where|of|the|is|are|having|has|a|an)\s+)+$`)
	keywordAfter    = regexp.MustCompile(`(?i)^\s+(?:departments?|depts?|teams?|roles?)\b`)
)

// structuralWords block the name fallback when any is left unexplained.
var structuralWords = map[string]bool{
	"role": true, "roles": true, "department": true, "departments": true, "dept": true,
	"and": true, "or": true, "that": true, "whose": true, "who": true, "where": true,
	"with": true, "in": true, "age": true, "aged": true, "ages": true,
	"sorted": true, "sort": true, "order": true, "ordered": true, "by": true,
	"phone": true, "older": true, "younger": true, "than": true, "between": true,
	"under": true, "over": true, "above": true, "below": true,
}
