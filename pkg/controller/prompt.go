package controller

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/vocab"
)

// staticInstructions describes the record schema, the tools and the rules of
// the assistant. It is always the first section of the system prompt.
const staticInstructions = `You are an assistant for a user management table. You answer questions about the users shown in the table and change user records when asked.

## Records

Each user has: name, email (unique), phone, age, address, role, department, createdAt.

## Tools

- create_user: add a new user. Name and email are required.
- update_user: change fields of one existing user, identified by name_query and optionally email.
- delete_user: remove one existing user, identified by name_query and optionally email.

## Rules

- Only call a tool when the user explicitly asks to add, change or remove a record. Questions, searches, filtering and sorting never call tools; the table is filtered for you.
- Never claim a change happened unless a tool result says it succeeded.
- When a tool result reports several matching users, list them and ask which one is meant, preferably by email. Do not guess.
- When a tool result reports no match, say so and change nothing.
- For searches, reply with one or two sentences describing what the table now shows. Do not list the records yourself.
- Keep answers short and plain. Do not invent users.`

// unrelatedInstructions scopes the reply to a message outside the domain.
const unrelatedInstructions = `You are an assistant for a user management table. The user's last message is not about user records. In one or two friendly sentences, say that you can only help with the user table, and give two examples of what you can do, such as "show developers in Sales older than 30" or "delete the user with email jane@example.com". Do not answer the unrelated request itself.`

// buildInstructions concatenates the static rules, the live vocabulary and
// the filters currently applied by the client.
func buildInstructions(v vocab.Vocabulary, current *domain.FilterSpec) string {
	parts := []string{staticInstructions}
	if len(v.Roles) > 0 {
		parts = append(parts, "## Known Roles\n\n"+strings.Join(v.Roles, ", "))
	}
	if len(v.Departments) > 0 {
		parts = append(parts, "## Known Departments\n\n"+strings.Join(v.Departments, ", "))
	}
	if current != nil && !current.IsEmpty() {
		b, _ := json.Marshal(current)
		parts = append(parts, "## Current Table Filters\n\n"+string(b))
	}
	return strings.Join(parts, "\n\n")
}

const extractionStatic = `Convert the user's latest request into filters for a user table.

- role and department are lists. Use the exact spelling from the known values below when the request refers to one of them, even if misspelled or plural.
- minAge and maxAge are decimal strings. "under 30" means maxAge "29"; "over 30" means minAge "31"; "between 20 and 30" means minAge "20" and maxAge "30"; "age max 40" means maxAge "40".
- sortBy is one of name, email, age, role, department, createdAt; sortOrder is asc or desc. "newest" means createdAt desc.
- Set shouldReset to true when the request starts a new search instead of refining the current one, or asks to clear or reset the filters.
- Leave every field empty that the request does not mention.`

// extractionInstructions builds the prompt of the model-assisted extractor.
func extractionInstructions(v vocab.Vocabulary, current *domain.FilterSpec) string {
	parts := []string{extractionStatic}
	parts = append(parts, "## Known Roles\n\n"+listOrNone(v.Roles))
	parts = append(parts, "## Known Departments\n\n"+listOrNone(v.Departments))
	if current != nil && !current.IsEmpty() {
		b, _ := json.Marshal(current)
		parts = append(parts, "## Current Filters\n\n"+string(b))
	}
	return strings.Join(parts, "\n\n")
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

var (
	domainWords = regexp.MustCompile(`(?i)\b(users?|people|persons?|employees?|staff|members?|team|roles?|departments?|dept|ages?|years?|old|emails?|phones?|numbers?|names?|called|named|sort(ed)?|order(ed)?|filters?|reset|clear|show|list|find|search|display|get|who|add|create|new|update|change|set|edit|rename|delete|remove|fire|hire)\b`)
	smallTalk   = regexp.MustCompile(`(?i)\b(jokes?|weather|poems?|stor(y|ies)|songs?|recipes?|cook|movies?|news|sports?|capital of|translate|meaning of life|how are you|who are you|what can you do|your name|hello|hi|hey|thanks|thank you|good (morning|afternoon|evening))\b`)
)

// isUnrelated reports whether message is small talk with no reference to user
// records or to the live vocabulary.
func isUnrelated(message string, v vocab.Vocabulary) bool {
	if domainWords.MatchString(message) {
		return false
	}
	lower := strings.ToLower(message)
	for _, term := range append(append([]string{}, v.Roles...), v.Departments...) {
		if t := strings.ToLower(strings.TrimSpace(term)); t != "" && strings.Contains(lower, t) {
			return false
		}
	}
	return smallTalk.MatchString(message)
}
