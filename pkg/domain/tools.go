package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolName identifies one of the mutating tools exposed to the model.
type ToolName string

const (
	ToolCreateUser ToolName = "create_user"
	ToolUpdateUser ToolName = "update_user"
	ToolDeleteUser ToolName = "delete_user"
)

// ToolArgs is the closed set of typed tool arguments. Only the three
// argument structs below implement it.
type ToolArgs interface {
	ToolName() ToolName
}

// CreateUserArgs are the arguments of create_user.
type CreateUserArgs struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
	Age        *int   `json:"age,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
}

// UpdateUserArgs are the arguments of update_user.
type UpdateUserArgs struct {
	NameQuery string     `json:"name_query"`
	Email     string     `json:"email,omitempty"`
	Updates   UserFields `json:"updates"`
}

// DeleteUserArgs are the arguments of delete_user.
type DeleteUserArgs struct {
	NameQuery string `json:"name_query"`
	Email     string `json:"email,omitempty"`
}

func (CreateUserArgs) ToolName() ToolName { return ToolCreateUser }
func (UpdateUserArgs) ToolName() ToolName { return ToolUpdateUser }
func (DeleteUserArgs) ToolName() ToolName { return ToolDeleteUser }

// ToolInvocation is a single tool call emitted by the model.
type ToolInvocation struct {
	ID   string
	Tool ToolName
	// Args is nil when the call could not be decoded.
	Args ToolArgs
	// Raw holds the arguments exactly as the model sent them, so the call
	// can be echoed back in the next model round.
	Raw map[string]any
}

// Name returns the invoked tool's name.
func (t ToolInvocation) Name() ToolName { return t.Tool }

// DecodeToolInvocation turns a raw model function call into a typed invocation.
func DecodeToolInvocation(id, name string, raw map[string]any) (ToolInvocation, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return ToolInvocation{}, fmt.Errorf("encoding %s arguments: %w", name, err)
	}

	var args ToolArgs
	switch ToolName(name) {
	case ToolCreateUser:
		var a CreateUserArgs
		err = json.Unmarshal(b, &a)
		args = a
	case ToolUpdateUser:
		var a UpdateUserArgs
		err = json.Unmarshal(b, &a)
		args = a
	case ToolDeleteUser:
		var a DeleteUserArgs
		err = json.Unmarshal(b, &a)
		args = a
	default:
		return ToolInvocation{}, fmt.Errorf("%w: unknown tool %q", ErrInvalidInput, name)
	}
	if err != nil {
		return ToolInvocation{}, fmt.Errorf("%w: %s arguments: %v", ErrInvalidInput, name, err)
	}
	return ToolInvocation{ID: id, Tool: ToolName(name), Args: args, Raw: raw}, nil
}

// OutcomeKind tags a ToolOutcome.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeNotFound  OutcomeKind = "not_found"
	OutcomeAmbiguous OutcomeKind = "ambiguous"
	OutcomeFailure   OutcomeKind = "failure"
)

// Candidate is one of several records matching an ambiguous reference.
type Candidate struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// ToolOutcome is the result of executing one ToolInvocation. Only the fields
// belonging to Kind are meaningful.
type ToolOutcome struct {
	CallID     string      `json:"call_id"`
	Tool       ToolName    `json:"tool"`
	Kind       OutcomeKind `json:"kind"`
	Subject    string      `json:"subject,omitempty"`
	Query      string      `json:"query,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

func Succeeded(call ToolInvocation, subject string) ToolOutcome {
	return ToolOutcome{CallID: call.ID, Tool: call.Name(), Kind: OutcomeSuccess, Subject: subject}
}

func NotFound(call ToolInvocation, query string) ToolOutcome {
	return ToolOutcome{CallID: call.ID, Tool: call.Name(), Kind: OutcomeNotFound, Query: query}
}

func Ambiguous(call ToolInvocation, query string, candidates []Candidate) ToolOutcome {
	return ToolOutcome{CallID: call.ID, Tool: call.Name(), Kind: OutcomeAmbiguous, Query: query, Candidates: candidates}
}

func Failed(call ToolInvocation, reason string) ToolOutcome {
	return ToolOutcome{CallID: call.ID, Tool: call.Name(), Kind: OutcomeFailure, Reason: reason}
}

func (t ToolName) verb() string {
	switch t {
	case ToolCreateUser:
		return "created"
	case ToolUpdateUser:
		return "updated"
	case ToolDeleteUser:
		return "deleted"
	}
	return "processed"
}

// Text renders the outcome as the tool result handed back to the model.
func (o ToolOutcome) Text() string {
	switch o.Kind {
	case OutcomeSuccess:
		return fmt.Sprintf("Successfully %s user %s.", o.Tool.verb(), o.Subject)
	case OutcomeNotFound:
		return fmt.Sprintf("No user found matching %q. Nothing was changed.", o.Query)
	case OutcomeAmbiguous:
		names := make([]string, 0, len(o.Candidates))
		for _, c := range o.Candidates {
			if c.Email != "" {
				names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Email))
			} else {
				names = append(names, c.Name)
			}
		}
		return fmt.Sprintf("Multiple users match %q: %s. Nothing was changed. Ask the user to specify which one by email.",
			o.Query, strings.Join(names, ", "))
	case OutcomeFailure:
		return fmt.Sprintf("Error: %s", o.Reason)
	}
	return fmt.Sprintf("Error: unknown outcome %q", o.Kind)
}

// IsError reports whether the outcome should be flagged as a failed tool call.
func (o ToolOutcome) IsError() bool { return o.Kind != OutcomeSuccess }
