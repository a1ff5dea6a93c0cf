package filter

import (
	"strings"
)

// claims tracks which bytes of the query some rule has explained.
type claims struct {
	text string
	mask []bool
}

func newClaims(text string) *claims {
	return &claims{text: text, mask: make([]bool, len(text))}
}

func (c *claims) overlaps(start, end int) bool {
	for i := start; i < end && i < len(c.mask); i++ {
		if c.mask[i] {
			return true
		}
	}
	return false
}

// claim marks [start, end) as explained, growing the span over leading glue
// words ("with", "in", "and", ...) and a trailing "department"/"role".
func (c *claims) claim(start, end int) {
	if loc := connectorBefore.FindStringIndex(c.text[:start]); loc != nil {
		start = loc[0]
	}
	if loc := keywordAfter.FindStringIndex(c.text[end:]); loc != nil {
		end += loc[1]
	}
	c.mark(start, end)
}

// mark sets [start, end) without growing the span.
func (c *claims) mark(start, end int) {
	for i := start; i < end; i++ {
		c.mask[i] = true
	}
}

// hasUnexplainedStructure reports whether a structural filter word is left
// outside every claimed span.
func (c *claims) hasUnexplainedStructure() bool {
	b := []byte(c.text)
	for i := range b {
		if c.mask[i] {
			b[i] = ' '
		}
	}
	for _, w := range strings.Fields(string(b)) {
		w = strings.ToLower(strings.Trim(w, `.,;:!?"'`))
		if structuralWords[w] {
			return true
		}
	}
	return false
}
