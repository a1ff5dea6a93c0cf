package domain

// Role defines the sender of a conversation message.
type Role string

const (
	// RoleUser indicates a message from the user.
	RoleUser Role = "user"
	// RoleAssistant indicates a message from the model/assistant.
	RoleAssistant Role = "assistant"
	// RoleTool indicates a tool result.
	RoleTool Role = "tool"
)

// Valid reports whether r may appear in client-supplied history.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}
