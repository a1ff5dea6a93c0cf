package store

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/nstogner/roster/pkg/domain"
)

// Field names a column that Distinct can enumerate.
type Field string

const (
	FieldRole       Field = "role"
	FieldDepartment Field = "department"
)

// Predicate selects users for Find. Email takes precedence: when set, the
// lookup is an exact case-insensitive email match and NameContains is ignored.
type Predicate struct {
	Email        string
	NameContains string
}

// UserStore is the persistence contract for user records.
type UserStore interface {
	// Get returns the user with the given ID or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.User, error)

	// Find returns users matching p, ordered by name then ID.
	Find(ctx context.Context, p Predicate) ([]domain.User, error)

	// List returns users matching the filter, ordered by its sort fields.
	List(ctx context.Context, f domain.FilterSpec) ([]domain.User, error)

	// Insert creates a user. Name and email are required; a second user with
	// the same email (case-insensitively) yields domain.ErrDuplicate.
	Insert(ctx context.Context, fields domain.UserFields) (*domain.User, error)

	// UpdateByID applies the non-nil fields and returns the updated user.
	UpdateByID(ctx context.Context, id string, fields domain.UserFields) (*domain.User, error)

	// DeleteByID removes a user. Deleting an unknown ID yields domain.ErrNotFound.
	DeleteByID(ctx context.Context, id string) error

	// Distinct returns the sorted, non-empty distinct values of a column.
	Distinct(ctx context.Context, field Field) ([]string, error)
}

// Validate checks fields before they are written. When create is true, name
// and email are required.
func Validate(fields domain.UserFields, create bool) error {
	if create {
		if fields.Name == nil {
			return fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
		}
		if fields.Email == nil {
			return fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
		}
	}
	if fields.Name != nil && strings.TrimSpace(*fields.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", domain.ErrInvalidInput)
	}
	if fields.Email != nil {
		email := strings.TrimSpace(*fields.Email)
		if email == "" {
			return fmt.Errorf("%w: email cannot be empty", domain.ErrInvalidInput)
		}
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("%w: invalid email %q", domain.ErrInvalidInput, email)
		}
	}
	if fields.Age != nil && *fields.Age < 0 {
		return fmt.Errorf("%w: age cannot be negative", domain.ErrInvalidInput)
	}
	return nil
}
