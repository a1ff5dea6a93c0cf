package domain

import (
	"strings"
)

// SortField enumerates the fields a list view may be ordered by.
type SortField string

const (
	SortByName       SortField = "name"
	SortByEmail      SortField = "email"
	SortByAge        SortField = "age"
	SortByRole       SortField = "role"
	SortByDepartment SortField = "department"
	SortByCreatedAt  SortField = "createdAt"
)

// SortFields lists every valid SortField.
var SortFields = []SortField{SortByName, SortByEmail, SortByAge, SortByRole, SortByDepartment, SortByCreatedAt}

// Valid reports whether f is one of SortFields.
func (f SortField) Valid() bool {
	for _, v := range SortFields {
		if f == v {
			return true
		}
	}
	return false
}

// DefaultOrder is the direction used when a sort is requested without one.
func (f SortField) DefaultOrder() SortOrder {
	if f == SortByCreatedAt || f == SortByAge {
		return SortDesc
	}
	return SortAsc
}

// SortOrder is the direction of a sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Set is an insertion-ordered collection of strings without duplicates.
// Membership is case-insensitive; the first spelling added is kept.
type Set []string

// Add appends v unless an equal value is already present.
func (s *Set) Add(values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || s.Contains(v) {
			continue
		}
		*s = append(*s, v)
	}
}

// Contains reports whether v is in the set.
func (s Set) Contains(v string) bool {
	for _, e := range s {
		if strings.EqualFold(e, v) {
			return true
		}
	}
	return false
}

// FilterSpec is the structured filter produced for one conversation turn.
// Ages are decimal strings to match the wire contract.
type FilterSpec struct {
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Role        Set       `json:"role,omitempty"`
	Department  Set       `json:"department,omitempty"`
	MinAge      string    `json:"minAge,omitempty"`
	MaxAge      string    `json:"maxAge,omitempty"`
	SortBy      SortField `json:"sortBy,omitempty"`
	SortOrder   SortOrder `json:"sortOrder,omitempty"`
	ShouldReset bool      `json:"shouldReset,omitempty"`
	Unrelated   bool      `json:"unrelated,omitempty"`
}

// IsEmpty reports whether no filtering or sorting field is set.
// The ShouldReset and Unrelated signals are not filters.
func (f FilterSpec) IsEmpty() bool {
	return f.Name == "" && f.Email == "" && f.Phone == "" &&
		len(f.Role) == 0 && len(f.Department) == 0 &&
		f.MinAge == "" && f.MaxAge == "" &&
		f.SortBy == "" && f.SortOrder == ""
}

// Clone returns a deep copy of f.
func (f FilterSpec) Clone() FilterSpec {
	out := f
	if f.Role != nil {
		out.Role = append(Set(nil), f.Role...)
	}
	if f.Department != nil {
		out.Department = append(Set(nil), f.Department...)
	}
	return out
}

// Merge applies f on top of prev. When f.ShouldReset is set, f replaces prev
// entirely; otherwise non-empty scalar fields of f override prev and the
// role/department sets are unioned.
func (f FilterSpec) Merge(prev FilterSpec) FilterSpec {
	if f.ShouldReset {
		return f.Clone()
	}
	out := prev.Clone()
	out.ShouldReset = false
	out.Unrelated = f.Unrelated
	if f.Name != "" {
		out.Name = f.Name
	}
	if f.Email != "" {
		out.Email = f.Email
	}
	if f.Phone != "" {
		out.Phone = f.Phone
	}
	out.Role.Add(f.Role...)
	out.Department.Add(f.Department...)
	if f.MinAge != "" {
		out.MinAge = f.MinAge
	}
	if f.MaxAge != "" {
		out.MaxAge = f.MaxAge
	}
	if f.SortBy != "" {
		out.SortBy = f.SortBy
		out.SortOrder = f.SortOrder
	}
	return out
}
