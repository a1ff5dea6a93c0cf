package gemini_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/model"
	"github.com/nstogner/roster/pkg/model/gemini"
)

const testModel = "gemini-2.0-flash"

func setupProvider(t *testing.T) *gemini.Provider {
	t.Helper()
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping: GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	provider, err := gemini.New(ctx, gemini.Config{APIKey: apiKey, Model: testModel})
	if err != nil {
		t.Fatalf("gemini.New: %v", err)
	}
	return provider
}

// TestIntegrationGeminiChatBasic verifies a simple text response from the model.
func TestIntegrationGeminiChatBasic(t *testing.T) {
	p := setupProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := p.Chat(ctx, model.Request{UserMessage: "Reply with exactly: HELLO"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Role != domain.RoleAssistant {
		t.Errorf("Role = %q, want %q", resp.Role, domain.RoleAssistant)
	}
	if resp.Text() == "" {
		t.Error("Response text is empty")
	}
	t.Logf("Response: %s", resp.Text())
}

// TestIntegrationGeminiChatToolCall verifies the model can request a user tool.
func TestIntegrationGeminiChatToolCall(t *testing.T) {
	p := setupProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := p.Chat(ctx, model.Request{
		SystemPrompt: "You manage user records. Use the tools to make changes.",
		UserMessage:  "Delete the user with email test@test.com",
		Tools:        true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	calls := resp.ToolCalls()
	if len(calls) == 0 {
		t.Fatalf("Expected a tool call, got text %q", resp.Text())
	}
	if calls[0].Name != string(domain.ToolDeleteUser) {
		t.Errorf("tool = %q, want %q", calls[0].Name, domain.ToolDeleteUser)
	}
	t.Logf("Tool call: %s args=%v", calls[0].Name, calls[0].Args)
}

// TestIntegrationGeminiStream verifies fragments arrive and join into text.
func TestIntegrationGeminiStream(t *testing.T) {
	p := setupProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seq, err := p.Stream(ctx, model.Request{
		History: []domain.Turn{
			{Role: domain.RoleUser, Content: "Remember: the secret word is BANANA."},
			{Role: domain.RoleAssistant, Content: "Got it. The secret word is BANANA."},
		},
		UserMessage: "What is the secret word?",
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var b strings.Builder
	for frag, err := range seq {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		b.WriteString(frag)
	}
	if !strings.Contains(strings.ToUpper(b.String()), "BANANA") {
		t.Errorf("Expected 'BANANA' in response, got: %s", b.String())
	}
}

// TestIntegrationGeminiExtract verifies structured output parses as a filter.
func TestIntegrationGeminiExtract(t *testing.T) {
	p := setupProvider(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	raw, err := p.Extract(ctx, model.Request{
		SystemPrompt: "Extract user list filters from the request.",
		UserMessage:  "developers older than 30 sorted by name",
	}, model.FilterSchema)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	var f domain.FilterSpec
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if f.SortBy != domain.SortByName {
		t.Errorf("SortBy = %q, want name (raw %s)", f.SortBy, raw)
	}
}
