package client

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/stream"
)

// Reply is the outcome of one completed turn.
type Reply struct {
	Content   string
	Filters   domain.FilterSpec
	Refresh   bool
	Unrelated bool
}

// Session is one conversation. It owns the history and the filters applied
// to the list view, and sends both with every turn.
type Session struct {
	client *Client
	window int

	mu      sync.Mutex
	history []domain.Turn
	filters domain.FilterSpec
}

// NewSession starts an empty conversation. Only the last window turns are
// sent with a request; window <= 0 sends none.
func (c *Client) NewSession(window int) *Session {
	return &Session{client: c, window: window}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Turn(nil), s.history...)
}

// Filters returns the filters currently applied to the list view.
func (s *Session) Filters() domain.FilterSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Clone()
}

// ClearFilters drops every applied filter.
func (s *Session) ClearFilters() {
	s.mu.Lock()
	s.filters = domain.FilterSpec{}
	s.mu.Unlock()
}

// Send runs one turn. fn, if set, sees every stream event as it arrives.
// Filters are applied as soon as the metadata line is read so the list view
// can refresh before the reply finishes. The assistant turn is appended to
// the history only when the stream completes; a cancelled or failed turn
// keeps the user message and drops whatever partial reply was received.
func (s *Session) Send(ctx context.Context, message string, fn func(stream.Event)) (Reply, error) {
	s.mu.Lock()
	req := domain.ChatRequest{
		Message:        message,
		History:        s.recent(),
		CurrentFilters: ptr(s.filters.Clone()),
	}
	s.history = append(s.history, domain.Turn{Role: domain.RoleUser, Content: message})
	s.mu.Unlock()

	var reply Reply
	var content strings.Builder
	err := s.client.stream(ctx, req, func(ev stream.Event) {
		switch ev.Kind {
		case stream.EventMetadata:
			f := ev.Metadata.Filters
			f.ShouldReset = ev.Metadata.ShouldReset
			s.mu.Lock()
			if !ev.Metadata.Unrelated {
				s.filters = f.Merge(s.filters)
			}
			reply.Filters = s.filters.Clone()
			s.mu.Unlock()
			reply.Refresh = ev.Metadata.Refresh
			reply.Unrelated = ev.Metadata.Unrelated
		case stream.EventContent:
			content.WriteString(ev.Content)
		}
		if fn != nil {
			fn(ev)
		}
	})
	if err != nil {
		return Reply{}, err
	}

	reply.Content = content.String()
	s.mu.Lock()
	s.history = append(s.history, domain.Turn{Role: domain.RoleAssistant, Content: reply.Content})
	s.mu.Unlock()
	return reply, nil
}

// recent returns the tail of the history that fits the window. Callers hold mu.
func (s *Session) recent() []domain.Turn {
	if s.window <= 0 {
		return []domain.Turn{}
	}
	h := s.history
	if len(h) > s.window {
		h = h[len(h)-s.window:]
	}
	return append([]domain.Turn{}, h...)
}

func ptr[T any](v T) *T { return &v }

// query encodes f as list query parameters.
func query(f domain.FilterSpec) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("name", f.Name)
	set("email", f.Email)
	set("phone", f.Phone)
	set("minAge", f.MinAge)
	set("maxAge", f.MaxAge)
	set("sortBy", string(f.SortBy))
	set("sortOrder", string(f.SortOrder))
	for _, r := range f.Role {
		q.Add("role", r)
	}
	for _, d := range f.Department {
		q.Add("department", d)
	}
	return q
}
