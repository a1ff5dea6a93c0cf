package domain

import (
	"time"
)

// User is a single record in the user store.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Age        *int      `json:"age,omitempty"`
	Address    string    `json:"address,omitempty"`
	Role       string    `json:"role,omitempty"`
	Department string    `json:"department,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserFields is a partial user record used for inserts and updates.
// Nil fields are left untouched by an update.
type UserFields struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Age        *int    `json:"age,omitempty"`
	Address    *string `json:"address,omitempty"`
	Role       *string `json:"role,omitempty"`
	Department *string `json:"department,omitempty"`
}

// IsEmpty reports whether no field is set.
func (f UserFields) IsEmpty() bool {
	return f.Name == nil && f.Email == nil && f.Phone == nil && f.Age == nil &&
		f.Address == nil && f.Role == nil && f.Department == nil
}

// Turn is one entry of the conversation history owned by the client.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a single conversation turn invocation.
type ChatRequest struct {
	Message        string      `json:"message"`
	History        []Turn      `json:"history"`
	CurrentFilters *FilterSpec `json:"currentFilters,omitempty"`
}

// TurnResult is what the controller produces once a turn reaches Done.
type TurnResult struct {
	Content     string        `json:"response"`
	Filters     FilterSpec    `json:"filters"`
	Refresh     bool          `json:"refresh"`
	ShouldReset bool          `json:"shouldReset,omitempty"`
	Unrelated   bool          `json:"unrelated,omitempty"`
	Outcomes    []ToolOutcome `json:"-"`
}

// Mutation reports whether the turn committed (or attempted) a tool call.
func (r *TurnResult) Mutation() bool { return len(r.Outcomes) > 0 }
