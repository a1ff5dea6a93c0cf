package model

import "github.com/nstogner/roster/pkg/domain"

// SchemaType is a JSON schema type name.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
	TypeArray   SchemaType = "array"
)

// Schema is the provider-neutral subset of JSON schema used for tool
// parameters and structured output.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Enum        []string
	Required    []string
}

// ToolDeclaration describes one function the model may call.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  *Schema
}

func str(desc string) *Schema { return &Schema{Type: TypeString, Description: desc} }

func userFields() map[string]*Schema {
	return map[string]*Schema{
		"name":       str("Full name."),
		"email":      str("Email address. Unique across users."),
		"role":       str("Job role, e.g. Developer."),
		"department": str("Department, e.g. Sales."),
		"age":        {Type: TypeInteger, Description: "Age in years. Must be zero or more."},
		"phone":      str("Phone number."),
		"address":    str("Postal address."),
	}
}

// ToolManifest is the fixed set of mutating tools exposed to the model.
var ToolManifest = []ToolDeclaration{
	{
		Name:        string(domain.ToolCreateUser),
		Description: "Create a new user. Name and email are required.",
		Parameters: &Schema{
			Type:       TypeObject,
			Properties: userFields(),
			Required:   []string{"name", "email"},
		},
	},
	{
		Name:        string(domain.ToolUpdateUser),
		Description: "Update an existing user found by name or, when given, by exact email.",
		Parameters: &Schema{
			Type: TypeObject,
			Properties: map[string]*Schema{
				"name_query": str("Full or partial name of the user to update."),
				"email":      str("Exact email of the user to update. Use it to pick one of several users with the same name."),
				"updates": {
					Type:        TypeObject,
					Description: "Only the fields to change.",
					Properties:  userFields(),
				},
			},
			Required: []string{"name_query", "updates"},
		},
	},
	{
		Name:        string(domain.ToolDeleteUser),
		Description: "Delete a user found by name or, when given, by exact email.",
		Parameters: &Schema{
			Type: TypeObject,
			Properties: map[string]*Schema{
				"name_query": str("Full or partial name of the user to delete."),
				"email":      str("Exact email of the user to delete."),
			},
			Required: []string{"name_query"},
		},
	},
}

// FilterSchema is the structured-output schema of a FilterSpec.
var FilterSchema = &Schema{
	Type: TypeObject,
	Properties: map[string]*Schema{
		"name":        str("Name search text."),
		"email":       str("Email search text."),
		"phone":       str("Phone search text."),
		"role":        {Type: TypeArray, Items: str("Role value."), Description: "Roles to include."},
		"department":  {Type: TypeArray, Items: str("Department value."), Description: "Departments to include."},
		"minAge":      str("Minimum age as a decimal string."),
		"maxAge":      str("Maximum age as a decimal string."),
		"sortBy":      {Type: TypeString, Enum: sortFieldNames()},
		"sortOrder":   {Type: TypeString, Enum: []string{string(domain.SortAsc), string(domain.SortDesc)}},
		"shouldReset": {Type: TypeBoolean, Description: "True when these filters replace the current ones."},
	},
}

func sortFieldNames() []string {
	out := make([]string, len(domain.SortFields))
	for i, f := range domain.SortFields {
		out[i] = string(f)
	}
	return out
}
