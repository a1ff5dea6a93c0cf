package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/store/sqlite"
)

func ptr[T any](v T) *T { return &v }

func newTestResolver(t *testing.T) (*Resolver, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	for _, u := range []domain.UserFields{
		{Name: ptr("Daryl Smith"), Email: ptr("daryl.smith@example.com"), Age: ptr(30)},
		{Name: ptr("Daryl Jones"), Email: ptr("daryl.jones@example.com"), Age: ptr(41)},
		{Name: ptr("Test User"), Email: ptr("test@test.com")},
	} {
		_, err := s.Insert(ctx, u)
		require.NoError(t, err)
	}
	return New(s, nil), s
}

func call(t *testing.T, name domain.ToolName, raw map[string]any) domain.ToolInvocation {
	t.Helper()
	inv, err := domain.DecodeToolInvocation("call-1", string(name), raw)
	require.NoError(t, err)
	return inv
}

func TestResolve(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	res, err := r.Resolve(ctx, "daryl", "")
	require.NoError(t, err)
	assert.Equal(t, Ambiguous, res.Kind)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, "Daryl Jones", res.Matches[0].Name)
	assert.Nil(t, res.User())

	res, err = r.Resolve(ctx, "daryl", "DARYL.SMITH@example.com")
	require.NoError(t, err)
	assert.Equal(t, Unique, res.Kind)
	assert.Equal(t, "Daryl Smith", res.User().Name)
	assert.Equal(t, "DARYL.SMITH@example.com", res.Query)

	res, err = r.Resolve(ctx, "nobody", "")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Kind)

	_, err = r.Resolve(ctx, "  ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDeleteAmbiguousChangesNothing(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	out := r.Apply(ctx, call(t, domain.ToolDeleteUser, map[string]any{"name_query": "Daryl"}))
	assert.Equal(t, domain.OutcomeAmbiguous, out.Kind)
	assert.Equal(t, []domain.Candidate{
		{Name: "Daryl Jones", Email: "daryl.jones@example.com"},
		{Name: "Daryl Smith", Email: "daryl.smith@example.com"},
	}, out.Candidates)
	assert.True(t, out.IsError())

	users, err := s.List(ctx, domain.FilterSpec{})
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestDeleteByEmail(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	out := r.Apply(ctx, call(t, domain.ToolDeleteUser, map[string]any{"name_query": "test", "email": "test@test.com"}))
	assert.Equal(t, domain.OutcomeSuccess, out.Kind)
	assert.Equal(t, "Test User", out.Subject)

	users, err := s.List(ctx, domain.FilterSpec{Email: "test@test.com"})
	require.NoError(t, err)
	assert.Empty(t, users)

	out = r.Apply(ctx, call(t, domain.ToolDeleteUser, map[string]any{"name_query": "test", "email": "test@test.com"}))
	assert.Equal(t, domain.OutcomeNotFound, out.Kind)
	assert.Equal(t, "test@test.com", out.Query)
}

func TestCreate(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	out := r.Apply(ctx, call(t, domain.ToolCreateUser, map[string]any{
		"name": "Ann Lee", "email": "ann@example.com", "role": "Admin", "age": 29,
	}))
	assert.Equal(t, domain.OutcomeSuccess, out.Kind)
	assert.Equal(t, "Ann Lee", out.Subject)

	out = r.Apply(ctx, call(t, domain.ToolCreateUser, map[string]any{"name": "Other", "email": "ANN@example.com"}))
	assert.Equal(t, domain.OutcomeFailure, out.Kind)
	assert.Contains(t, out.Reason, "already exists")

	out = r.Apply(ctx, call(t, domain.ToolCreateUser, map[string]any{"name": "", "email": "x@example.com"}))
	assert.Equal(t, domain.OutcomeFailure, out.Kind)
}

func TestUpdate(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  map[string]any
		want domain.OutcomeKind
	}{
		{"ambiguous", map[string]any{"name_query": "daryl", "updates": map[string]any{"age": 50}}, domain.OutcomeAmbiguous},
		{"not found", map[string]any{"name_query": "zed", "updates": map[string]any{"age": 50}}, domain.OutcomeNotFound},
		{"negative age", map[string]any{"name_query": "Daryl Smith", "updates": map[string]any{"age": -1}}, domain.OutcomeFailure},
		{"blank name", map[string]any{"name_query": "Daryl Smith", "updates": map[string]any{"name": " "}}, domain.OutcomeFailure},
		{"no updates", map[string]any{"name_query": "Daryl Smith", "updates": map[string]any{}}, domain.OutcomeFailure},
		{"email taken", map[string]any{"name_query": "Daryl Smith", "updates": map[string]any{"email": "Test@test.com"}}, domain.OutcomeFailure},
		{"ok", map[string]any{"name_query": "Daryl Smith", "updates": map[string]any{"age": 31, "role": "Manager"}}, domain.OutcomeSuccess},
		{"same email other case", map[string]any{"name_query": "Daryl Smith", "updates": map[string]any{"email": "Daryl.Smith@example.com"}}, domain.OutcomeSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Apply(ctx, call(t, domain.ToolUpdateUser, tt.raw))
			assert.Equal(t, tt.want, out.Kind, out.Text())
		})
	}

	users, err := s.List(ctx, domain.FilterSpec{Name: "Daryl Smith"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NotNil(t, users[0].Age)
	assert.Equal(t, 31, *users[0].Age)
	assert.Equal(t, "Manager", users[0].Role)
}

type failingStore struct{ *sqlite.Store }

func (failingStore) DeleteByID(context.Context, string) error { return errors.New("disk I/O error") }

func TestStorageErrorBecomesFailure(t *testing.T) {
	_, s := newTestResolver(t)
	r := New(failingStore{s}, nil)

	out := r.Apply(context.Background(), call(t, domain.ToolDeleteUser, map[string]any{"name_query": "Test User"}))
	assert.Equal(t, domain.OutcomeFailure, out.Kind)
	assert.NotContains(t, out.Reason, "disk")
}

func TestUnknownToolIsFailure(t *testing.T) {
	r, _ := newTestResolver(t)
	out := r.Apply(context.Background(), domain.ToolInvocation{ID: "c9", Tool: "drop_table"})
	assert.Equal(t, domain.OutcomeFailure, out.Kind)
	assert.Equal(t, "c9", out.CallID)
}
