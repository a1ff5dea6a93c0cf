// Package resolver maps the free-text user references in tool calls onto
// stored records and applies the requested mutation only when exactly one
// record matches.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/store"
	"github.com/nstogner/roster/pkg/tracing"
)

// Kind classifies a Resolution.
type Kind int

const (
	NotFound Kind = iota
	Unique
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	}
	return "not_found"
}

// Resolution is the result of looking up a user reference.
type Resolution struct {
	Kind Kind
	// Query is the reference as it was matched: the email when one was
	// given, the name query otherwise.
	Query string
	// Matches are ordered by name then ID. Unique has exactly one.
	Matches []domain.User
}

// User returns the single match of a Unique resolution.
func (r Resolution) User() *domain.User {
	if r.Kind != Unique {
		return nil
	}
	return &r.Matches[0]
}

// Candidates lists the matches for an ambiguity report.
func (r Resolution) Candidates() []domain.Candidate {
	out := make([]domain.Candidate, 0, len(r.Matches))
	for _, u := range r.Matches {
		out = append(out, domain.Candidate{Name: u.Name, Email: u.Email})
	}
	return out
}

// Resolver resolves references and applies tool invocations against a store.
type Resolver struct {
	store  store.UserStore
	logger *slog.Logger
}

// New creates a Resolver.
func New(s store.UserStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: s, logger: logger}
}

// Resolve looks up a user. A non-empty email is matched exactly and
// case-insensitively; otherwise nameQuery is matched as a case-insensitive
// substring of the name.
func (r *Resolver) Resolve(ctx context.Context, nameQuery, email string) (Resolution, error) {
	nameQuery = strings.TrimSpace(nameQuery)
	email = strings.TrimSpace(email)

	res := Resolution{Query: nameQuery}
	p := store.Predicate{NameContains: nameQuery}
	if email != "" {
		res.Query = email
		p = store.Predicate{Email: email}
	} else if nameQuery == "" {
		return res, fmt.Errorf("%w: a name or email is required to identify the user", domain.ErrInvalidInput)
	}

	users, err := r.store.Find(ctx, p)
	if err != nil {
		return res, fmt.Errorf("find users: %w", err)
	}
	res.Matches = users
	switch len(users) {
	case 0:
		res.Kind = NotFound
	case 1:
		res.Kind = Unique
	default:
		res.Kind = Ambiguous
	}
	return res, nil
}

// Apply executes one tool invocation. Every failure, including storage
// errors, is reported as an outcome so the model can explain it.
func (r *Resolver) Apply(ctx context.Context, call domain.ToolInvocation) (out domain.ToolOutcome) {
	ctx, span := tracing.StartSpan(ctx, "tool."+string(call.Name()),
		attribute.String("call_id", call.ID))
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(out.Kind)))
		tracing.End(span, nil)
	}()

	switch args := call.Args.(type) {
	case domain.CreateUserArgs:
		out = r.create(ctx, call, args)
	case domain.UpdateUserArgs:
		out = r.update(ctx, call, args)
	case domain.DeleteUserArgs:
		out = r.delete(ctx, call, args)
	default:
		out = domain.Failed(call, fmt.Sprintf("unsupported tool %q", call.Name()))
	}

	r.logger.Info("tool executed",
		"tool", call.Name(),
		"callID", call.ID,
		"outcome", out.Kind,
	)
	return out
}

func (r *Resolver) create(ctx context.Context, call domain.ToolInvocation, args domain.CreateUserArgs) domain.ToolOutcome {
	fields := domain.UserFields{
		Name:       &args.Name,
		Email:      &args.Email,
		Age:        args.Age,
		Phone:      optional(args.Phone),
		Address:    optional(args.Address),
		Role:       optional(args.Role),
		Department: optional(args.Department),
	}
	u, err := r.store.Insert(ctx, fields)
	if err != nil {
		return r.failure(call, err)
	}
	return domain.Succeeded(call, u.Name)
}

func (r *Resolver) update(ctx context.Context, call domain.ToolInvocation, args domain.UpdateUserArgs) domain.ToolOutcome {
	if args.Updates.IsEmpty() {
		return domain.Failed(call, "no fields to update were given")
	}
	if err := store.Validate(args.Updates, false); err != nil {
		return r.failure(call, err)
	}

	res, err := r.Resolve(ctx, args.NameQuery, args.Email)
	if err != nil {
		return r.failure(call, err)
	}
	switch res.Kind {
	case NotFound:
		return domain.NotFound(call, res.Query)
	case Ambiguous:
		return domain.Ambiguous(call, res.Query, res.Candidates())
	}
	target := res.User()

	if e := args.Updates.Email; e != nil && !strings.EqualFold(strings.TrimSpace(*e), target.Email) {
		owners, err := r.store.Find(ctx, store.Predicate{Email: *e})
		if err != nil {
			return r.failure(call, err)
		}
		for _, o := range owners {
			if o.ID != target.ID {
				return domain.Failed(call, fmt.Sprintf("email %s is already used by %s", strings.TrimSpace(*e), o.Name))
			}
		}
	}

	if _, err := r.store.UpdateByID(ctx, target.ID, args.Updates); err != nil {
		return r.failure(call, err)
	}
	return domain.Succeeded(call, target.Name)
}

func (r *Resolver) delete(ctx context.Context, call domain.ToolInvocation, args domain.DeleteUserArgs) domain.ToolOutcome {
	res, err := r.Resolve(ctx, args.NameQuery, args.Email)
	if err != nil {
		return r.failure(call, err)
	}
	switch res.Kind {
	case NotFound:
		return domain.NotFound(call, res.Query)
	case Ambiguous:
		return domain.Ambiguous(call, res.Query, res.Candidates())
	}
	target := res.User()

	if err := r.store.DeleteByID(ctx, target.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFound(call, res.Query)
		}
		return r.failure(call, err)
	}
	return domain.Succeeded(call, target.Name)
}

func (r *Resolver) failure(call domain.ToolInvocation, err error) domain.ToolOutcome {
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		return domain.Failed(call, "a user with that email already exists")
	case errors.Is(err, domain.ErrInvalidInput):
		return domain.Failed(call, err.Error())
	}
	r.logger.Error("tool storage error", "tool", call.Name(), "error", err)
	return domain.Failed(call, "storage error, nothing was changed")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
