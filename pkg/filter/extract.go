// Package filter turns free text into a structured FilterSpec without calling
// a model.
package filter

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/vocab"
)

// Extractor is a deterministic, pattern-based filter parser bound to one
// request's vocabulary.
type Extractor struct {
	vocab   vocab.Vocabulary
	matcher *vocab.Matcher
	terms   []vocabTerm
}

// vocabTerm is a live vocabulary value compiled for literal scanning.
type vocabTerm struct {
	re         *regexp.Regexp
	value      string
	department bool
	// alsoRole is set on department terms whose value is also a role.
	alsoRole bool
}

// New returns an Extractor for v. A nil matcher uses vocab.DefaultThreshold.
func New(v vocab.Vocabulary, m *vocab.Matcher) *Extractor {
	if m == nil {
		m = vocab.NewMatcher(0)
	}
	e := &Extractor{vocab: v, matcher: m}

	roles := domain.Set{}
	roles.Add(v.Roles...)
	for _, r := range roles {
		if re := termPattern(r); re != nil {
			e.terms = append(e.terms, vocabTerm{re: re, value: r})
		}
	}
	var depts domain.Set
	depts.Add(v.Departments...)
	for _, d := range depts {
		if re := termPattern(d); re != nil {
			e.terms = append(e.terms, vocabTerm{re: re, value: d, department: true, alsoRole: roles.Contains(d)})
		}
	}
	return e
}

// termPattern matches value or a naive plural of it on word boundaries.
// Short values such as "IT" or "HR" are matched case-sensitively so they do
// not collide with ordinary words.
func termPattern(value string) *regexp.Regexp {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	words := strings.Fields(value)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	body := strings.Join(words, `\s+`)

	last := value[len(value)-1]
	switch {
	case (last == 'y' || last == 'Y') && len(value) > 1 && !strings.ContainsRune("aeiouAEIOU", rune(value[len(value)-2])):
		body = body[:len(body)-1] + `(?:y|ies)`
	default:
		body += `(?:s|es)?`
	}

	flags := `(?i)`
	if len(value) <= 3 {
		flags = ``
	}
	return regexp.MustCompile(flags + `\b` + body + `\b`)
}

// hit is a role or department found at a position in the query.
type hit struct {
	pos        int
	department bool
	value      string
}

// Extract parses query. Rules run in a fixed precedence: reset, age, sort,
// phone, role and department, then name and email.
func (e *Extractor) Extract(query string) domain.FilterSpec {
	var f domain.FilterSpec
	c := newClaims(query)

	for _, re := range resetPatterns {
		if loc := re.FindStringIndex(query); loc != nil {
			f.ShouldReset = true
			c.claim(loc[0], loc[1])
		}
	}

	e.extractAge(query, c, &f)
	e.extractSort(query, c, &f)
	e.extractPhone(query, c, &f)
	e.extractRolesAndDepartments(query, c, &f)
	e.extractNameOrEmail(query, c, &f)

	return f
}

func (e *Extractor) extractAge(query string, c *claims, f *domain.FilterSpec) {
	for _, r := range ageRules {
		idx := r.re.FindStringSubmatchIndex(query)
		if idx == nil {
			continue
		}
		m := make([]string, len(idx)/2)
		for i := range m {
			if idx[2*i] >= 0 {
				m[i] = query[idx[2*i]:idx[2*i+1]]
			}
		}
		r.apply(m, f)
		c.claim(idx[0], idx[1])
		return
	}
}

func (e *Extractor) extractSort(query string, c *claims, f *domain.FilterSpec) {
	for _, idx := range sortExplicit.FindAllStringSubmatchIndex(query, -1) {
		field, ok := sortAliases[strings.ToLower(query[idx[2]:idx[3]])]
		if !ok {
			continue
		}
		f.SortBy = field
		c.claim(idx[0], idx[1])
		switch {
		case idx[4] >= 0:
			f.SortOrder = parseOrder(query[idx[4]:idx[5]])
		default:
			if d := sortDir.FindStringSubmatchIndex(query); d != nil {
				f.SortOrder = parseOrder(query[d[2]:d[3]])
				c.claim(d[0], d[1])
			} else {
				f.SortOrder = field.DefaultOrder()
			}
		}
		return
	}

	for _, s := range sortShortcuts {
		if loc := s.re.FindStringIndex(query); loc != nil {
			f.SortBy, f.SortOrder = s.field, s.order
			c.claim(loc[0], loc[1])
			return
		}
	}
}

func (e *Extractor) extractPhone(query string, c *claims, f *domain.FilterSpec) {
	try := func(re *regexp.Regexp) bool {
		for _, idx := range re.FindAllStringSubmatchIndex(query, -1) {
			if c.overlaps(idx[2], idx[3]) {
				continue
			}
			v := stripSpace(query[idx[2]:idx[3]])
			if len(v) < 3 {
				continue
			}
			f.Phone = v
			c.claim(idx[0], idx[1])
			return true
		}
		return false
	}

	for _, re := range phonePatterns {
		if try(re) {
			return
		}
	}
	if !phoneContext.MatchString(query) {
		return
	}
	for _, idx := range bareDigits.FindAllStringSubmatchIndex(query, -1) {
		if c.overlaps(idx[0], idx[1]) {
			continue
		}
		v := query[idx[2]:idx[3]]
		if countDigits(v) < 5 {
			continue
		}
		f.Phone = v
		c.claim(idx[0], idx[1])
		if loc := phoneContext.FindStringIndex(query); loc != nil {
			c.claim(loc[0], loc[1])
		}
		return
	}
}

func (e *Extractor) extractRolesAndDepartments(query string, c *claims, f *domain.FilterSpec) {
	var hits []hit

	// Explicit phrases take the text they name even when it is not in the
	// vocabulary.
	for _, idx := range rolePhrase.FindAllStringSubmatchIndex(query, -1) {
		if c.overlaps(idx[2], idx[3]) {
			continue
		}
		hits = append(hits, e.phraseHits(query[idx[2]:idx[3]], idx[2], false)...)
		c.claim(idx[0], idx[3])
	}
	for _, re := range []*regexp.Regexp{deptSuffix, deptPhrase} {
		for _, idx := range re.FindAllStringSubmatchIndex(query, -1) {
			if c.overlaps(idx[2], idx[3]) {
				continue
			}
			hits = append(hits, e.phraseHits(query[idx[2]:idx[3]], idx[2], true)...)
			c.claim(idx[0], max(idx[1], idx[3]))
		}
	}

	// Literal occurrences of live values.
	for _, t := range e.terms {
		for _, loc := range t.re.FindAllStringIndex(query, -1) {
			if c.overlaps(loc[0], loc[1]) {
				continue
			}
			dept := t.department
			if dept && t.alsoRole && !precededByIn(query[:loc[0]]) {
				dept = false
			}
			hits = append(hits, hit{pos: loc[0], department: dept, value: t.value})
			c.claim(loc[0], loc[1])
		}
	}

	// Shorthand synonyms.
	for _, s := range synonyms {
		for _, loc := range s.re.FindAllStringIndex(query, -1) {
			if c.overlaps(loc[0], loc[1]) {
				continue
			}
			h := hit{pos: loc[0], value: e.matcher.MatchString(s.canonical, e.vocab.Roles)}
			if e.isDepartmentOnly(s.canonical) {
				h = hit{pos: loc[0], department: true, value: e.matcher.MatchString(s.canonical, e.vocab.Departments)}
			}
			hits = append(hits, h)
			c.claim(loc[0], loc[1])
		}
	}

	// The sets keep the order values appear in the query.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	for _, h := range hits {
		if h.department {
			f.Department.Add(h.value)
		} else {
			f.Role.Add(h.value)
		}
	}
}

// phraseHits resolves the text captured by an explicit role or department
// phrase, which may name several values ("Developer/Admin", "sales and
// marketing"). Live values are taken first so multi-word names survive the
// split; each remaining fragment is matched on its own. at is the offset of
// text in the query.
func (e *Extractor) phraseHits(text string, at int, department bool) []hit {
	var hits []hit
	taken := newClaims(text)
	for _, t := range e.terms {
		if t.department != department {
			continue
		}
		for _, loc := range t.re.FindAllStringIndex(text, -1) {
			if taken.overlaps(loc[0], loc[1]) {
				continue
			}
			hits = append(hits, hit{pos: at + loc[0], department: department, value: t.value})
			taken.mark(loc[0], loc[1])
		}
	}

	vocabulary := e.vocab.Roles
	if department {
		vocabulary = e.vocab.Departments
	}
	start := 0
	seps := append(phraseSeparator.FindAllStringIndex(text, -1), []int{len(text), len(text)})
	for _, sep := range seps {
		from, to := start, sep[0]
		start = sep[1]
		frag := strings.TrimSpace(text[from:to])
		if frag == "" || taken.overlaps(from, to) {
			continue
		}
		hits = append(hits, hit{pos: at + from, department: department, value: e.matcher.MatchString(e.canonical(frag), vocabulary)})
	}
	return hits
}

// canonical rewrites a shorthand such as "devs" to its canonical name.
func (e *Extractor) canonical(text string) string {
	text = strings.TrimSpace(text)
	for _, s := range synonyms {
		if loc := s.re.FindStringIndex(text); loc != nil && loc[0] == 0 && loc[1] == len(text) {
			return s.canonical
		}
	}
	return text
}

// isDepartmentOnly reports whether name confidently matches a department
// but not a role.
func (e *Extractor) isDepartmentOnly(name string) bool {
	return e.matcher.Match(name, e.vocab.Departments).Confident() &&
		!e.matcher.Match(name, e.vocab.Roles).Confident()
}

var inBefore = regexp.MustCompile(`(?i)\bin\s+(?:the\s+)?$`)

func precededByIn(prefix string) bool { return inBefore.MatchString(prefix) }

func (e *Extractor) extractNameOrEmail(query string, c *claims, f *domain.FilterSpec) {
	var name, email string

	// The keyword must be free too: "sort by email and ..." names no address.
	for _, idx := range emailTrigger.FindAllStringSubmatchIndex(query, -1) {
		if c.overlaps(idx[2], idx[3]) || c.overlaps(idx[4], idx[5]) {
			continue
		}
		v := trimPunct(query[idx[4]:idx[5]])
		if v == "" || structuralWords[strings.ToLower(v)] {
			continue
		}
		email = v
		c.claim(idx[0], idx[1])
		break
	}
	if idx := nameTrigger.FindStringSubmatchIndex(query); idx != nil && !c.overlaps(idx[2], idx[3]) {
		name = trimPunct(query[idx[2]:idx[3]])
		c.claim(idx[0], idx[3])
	}

	if c.hasUnexplainedStructure() {
		return
	}

	if name == "" && email == "" && f.IsEmpty() && !f.ShouldReset {
		name, email = fallback(query)
	}

	if strings.Contains(name, "@") {
		if email == "" {
			email = name
		}
		name = ""
	}
	f.Name = name
	f.Email = email
}

// fallback takes whatever follows a find/show/list verb.
func fallback(query string) (name, email string) {
	m := fallbackCommand.FindStringSubmatch(query)
	if m == nil {
		return "", ""
	}
	rest := strings.TrimSpace(m[1])
	if n := len(fallbackFiller.FindString(rest + " ")); n >= len(rest) {
		rest = ""
	} else {
		rest = trimPunct(rest[n:])
	}
	if rest == "" || fallbackNoun.MatchString(rest) {
		return "", ""
	}
	if tok := emailToken.FindString(rest); tok != "" {
		return "", trimPunct(tok)
	}
	return rest, ""
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(`.,;:!?"'`, r)
	})
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.TrimRight(s, " .-("))
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
