package sqlite

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpFile := t.TempDir() + "/test.db"
	s, err := New(tmpFile)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(tmpFile)
	})
	return s
}

func ptr[T any](v T) *T { return &v }

func seed(t *testing.T, s *Store, users ...domain.UserFields) []*domain.User {
	t.Helper()
	var out []*domain.User
	for _, u := range users {
		created, err := s.Insert(context.Background(), u)
		if err != nil {
			t.Fatalf("Insert %s: %v", *u.Name, err)
		}
		out = append(out, created)
	}
	return out
}

func user(name, email, role, dept string, age int) domain.UserFields {
	return domain.UserFields{Name: ptr(name), Email: ptr(email), Role: ptr(role), Department: ptr(dept), Age: ptr(age)}
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Insert
	u, err := s.Insert(ctx, domain.UserFields{Name: ptr("Ann Lee"), Email: ptr("ann@example.com"), Phone: ptr("555-0100")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("Insert did not assign id/timestamps: %+v", u)
	}
	if u.Age != nil {
		t.Errorf("Age = %v, want nil", *u.Age)
	}

	// Get
	got, err := s.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Ann Lee" || got.Phone != "555-0100" {
		t.Errorf("Get = %+v", got)
	}

	// Update
	updated, err := s.UpdateByID(ctx, u.ID, domain.UserFields{Age: ptr(31), Role: ptr("Admin")})
	if err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	if updated.Age == nil || *updated.Age != 31 || updated.Role != "Admin" {
		t.Errorf("UpdateByID = %+v", updated)
	}
	if updated.Name != "Ann Lee" {
		t.Errorf("UpdateByID touched name: %q", updated.Name)
	}

	// Delete
	if err := s.DeleteByID(ctx, u.ID); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	if _, err := s.Get(ctx, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteByID(ctx, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second DeleteByID: err = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateByID(ctx, u.ID, domain.UserFields{Age: ptr(1)}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateByID missing: err = %v, want ErrNotFound", err)
	}
}

func TestEmailUniqueCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	users := seed(t, s,
		user("Ann", "ann@example.com", "", "", 30),
		user("Bob", "bob@example.com", "", "", 40),
	)

	if _, err := s.Insert(ctx, user("Other Ann", "ANN@Example.com", "", "", 20)); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("Insert duplicate: err = %v, want ErrDuplicate", err)
	}
	if _, err := s.UpdateByID(ctx, users[1].ID, domain.UserFields{Email: ptr("Ann@example.com")}); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("Update to duplicate: err = %v, want ErrDuplicate", err)
	}
}

func TestInsertValidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, domain.UserFields{Name: ptr("NoEmail")}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("missing email: err = %v", err)
	}
	if _, err := s.Insert(ctx, user("Neg", "neg@example.com", "", "", -3)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("negative age: err = %v", err)
	}
}

func TestFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed(t, s,
		user("Daryl Smith", "daryl.smith@example.com", "", "", 30),
		user("Daryl Jones", "daryl.jones@example.com", "", "", 40),
		user("Ann Lee", "ann@example.com", "", "", 25),
	)

	byName, err := s.Find(ctx, store.Predicate{NameContains: "daryl"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(byName) != 2 {
		t.Fatalf("Find daryl len = %d, want 2", len(byName))
	}
	if byName[0].Name != "Daryl Jones" || byName[1].Name != "Daryl Smith" {
		t.Errorf("Find order = %s, %s; want ordered by name", byName[0].Name, byName[1].Name)
	}

	byEmail, err := s.Find(ctx, store.Predicate{Email: "DARYL.SMITH@example.com", NameContains: "Ann"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(byEmail) != 1 || byEmail[0].Name != "Daryl Smith" {
		t.Errorf("Find by email = %+v", byEmail)
	}

	// LIKE metacharacters are matched literally.
	none, err := s.Find(ctx, store.Predicate{NameContains: "%"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Find %% len = %d, want 0", len(none))
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed(t, s,
		user("Ann", "ann@example.com", "Developer", "Sales", 30),
		user("Bob", "bob@example.com", "developer", "Engineering", 45),
		user("Cid", "cid@example.com", "Admin", "Sales", 38),
		user("Dee", "dee@example.com", "Manager", "Sales", 52),
	)

	tests := []struct {
		name   string
		filter domain.FilterSpec
		want   []string
	}{
		{
			name:   "role case-insensitive",
			filter: domain.FilterSpec{Role: domain.Set{"Developer"}, SortBy: domain.SortByName, SortOrder: domain.SortAsc},
			want:   []string{"Ann", "Bob"},
		},
		{
			name: "role and department with max age",
			filter: domain.FilterSpec{
				Role: domain.Set{"Developer", "Admin"}, Department: domain.Set{"Sales"},
				MaxAge: "40", SortBy: domain.SortByAge, SortOrder: domain.SortDesc,
			},
			want: []string{"Cid", "Ann"},
		},
		{
			name:   "age range",
			filter: domain.FilterSpec{MinAge: "35", MaxAge: "50", SortBy: domain.SortByAge, SortOrder: domain.SortAsc},
			want:   []string{"Cid", "Bob"},
		},
		{
			name:   "name substring",
			filter: domain.FilterSpec{Name: "e"},
			want:   []string{"Dee"},
		},
		{
			name:   "default newest first",
			filter: domain.FilterSpec{},
			want:   []string{"Dee", "Cid", "Bob", "Ann"},
		},
		{
			name:   "non-numeric age ignored",
			filter: domain.FilterSpec{MinAge: "abc", SortBy: domain.SortByName},
			want:   []string{"Ann", "Bob", "Cid", "Dee"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			var got []string
			for _, u := range users {
				got = append(got, u.Name)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("List = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestListPhone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed(t, s,
		domain.UserFields{Name: ptr("Ann"), Email: ptr("ann@example.com"), Phone: ptr("(555) 123-4567")},
		domain.UserFields{Name: ptr("Bob"), Email: ptr("bob@example.com"), Phone: ptr("555 999 0000")},
	)

	users, err := s.List(ctx, domain.FilterSpec{Phone: "1234567"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(users) != 1 || users[0].Name != "Ann" {
		t.Errorf("List phone = %+v", users)
	}
}

func TestDistinct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed(t, s,
		user("Ann", "ann@example.com", "Developer", "Sales", 30),
		user("Bob", "bob@example.com", "developer", "", 45),
		user("Cid", "cid@example.com", "Admin", "Engineering", 38),
	)

	roles, err := s.Distinct(ctx, store.FieldRole)
	if err != nil {
		t.Fatalf("Distinct role: %v", err)
	}
	if len(roles) != 2 || roles[0] != "Admin" {
		t.Errorf("roles = %v, want [Admin Developer]", roles)
	}

	depts, err := s.Distinct(ctx, store.FieldDepartment)
	if err != nil {
		t.Fatalf("Distinct department: %v", err)
	}
	if len(depts) != 2 || depts[0] != "Engineering" || depts[1] != "Sales" {
		t.Errorf("departments = %v", depts)
	}

	if _, err := s.Distinct(ctx, store.Field("email")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Distinct email: err = %v, want ErrInvalidInput", err)
	}
}
