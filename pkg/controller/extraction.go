package controller

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nstogner/roster/pkg/config"
	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/filter"
	"github.com/nstogner/roster/pkg/model"
	"github.com/nstogner/roster/pkg/tracing"
	"github.com/nstogner/roster/pkg/vocab"
)

// extractFilters produces the filters of a query turn. Model-assisted
// extraction falls back to the lexical extractor when the provider fails;
// a reply that does not decode counts as no filters extracted.
func (c *Controller) extractFilters(ctx context.Context, t *turn) domain.FilterSpec {
	if c.opts.Extraction == config.ExtractionModel {
		f, err := c.modelFilters(ctx, t)
		if err == nil {
			return f
		}
		c.logger.Warn("model filter extraction failed, using lexical extractor", "error", err)
	}
	return filter.New(t.vocab, c.matcher).Extract(t.req.Message)
}

func (c *Controller) modelFilters(ctx context.Context, t *turn) (_ domain.FilterSpec, err error) {
	ctx, span := tracing.StartSpan(ctx, "controller.extract_filters")
	defer func() { tracing.End(span, err) }()

	raw, err := c.provider.Extract(ctx, model.Request{
		SystemPrompt: extractionInstructions(t.vocab, t.req.CurrentFilters),
		History:      t.history,
		UserMessage:  t.req.Message,
	}, model.FilterSchema)
	if err != nil {
		return domain.FilterSpec{}, err
	}

	var f domain.FilterSpec
	if err := json.Unmarshal(raw, &f); err != nil {
		c.logger.Warn("discarding malformed filter extraction", "error", err)
		return domain.FilterSpec{}, nil
	}
	return sanitize(f, t.vocab, c.matcher), nil
}

// sanitize normalizes model-produced filters to the shape the lexical
// extractor guarantees.
func sanitize(f domain.FilterSpec, v vocab.Vocabulary, m *vocab.Matcher) domain.FilterSpec {
	out := domain.FilterSpec{
		Name:        strings.TrimSpace(f.Name),
		Email:       strings.TrimSpace(f.Email),
		Phone:       strings.TrimSpace(f.Phone),
		ShouldReset: f.ShouldReset,
	}
	for _, r := range f.Role {
		if strings.TrimSpace(r) != "" {
			out.Role.Add(m.MatchString(r, v.Roles))
		}
	}
	for _, d := range f.Department {
		if strings.TrimSpace(d) != "" {
			out.Department.Add(m.MatchString(d, v.Departments))
		}
	}

	minAge, minOK := parseAge(f.MinAge)
	maxAge, maxOK := parseAge(f.MaxAge)
	if minOK && maxOK && minAge > maxAge {
		minAge, maxAge = maxAge, minAge
	}
	if minOK {
		out.MinAge = strconv.Itoa(minAge)
	}
	if maxOK {
		out.MaxAge = strconv.Itoa(maxAge)
	}

	if f.SortBy.Valid() {
		out.SortBy = f.SortBy
		out.SortOrder = f.SortOrder
		if out.SortOrder != domain.SortAsc && out.SortOrder != domain.SortDesc {
			out.SortOrder = f.SortBy.DefaultOrder()
		}
	}
	return out
}

func parseAge(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
