package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"

	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/model"
	"github.com/nstogner/roster/pkg/tracing"
)

// Config is the call configuration shared by Chat, Stream and Extract.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements model.Provider using the Google Gen AI SDK.
type Provider struct {
	client *genai.Client
	model  string
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// New creates a new Gemini provider. It returns domain.ErrConfiguration when
// the API key or model name is missing.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", domain.ErrConfiguration)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "gemini" }

// Chat sends req and collects the complete response.
func (p *Provider) Chat(ctx context.Context, req model.Request) (_ model.Message, err error) {
	ctx, span := tracing.StartSpan(ctx, "gemini.chat",
		attribute.String("model", p.model), attribute.Bool("tools", req.Tools))
	defer func() { tracing.End(span, err) }()

	slog.Debug("Gemini.Chat", "model", p.model, "historyCount", len(req.History), "messageCount", len(req.Messages))

	contents, cfg := buildRequest(req)
	var r reply
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
		if err != nil {
			return model.Message{}, fmt.Errorf("%w: %v", domain.ErrProvider, err)
		}
		for _, part := range parts(resp) {
			r.add(part)
		}
	}
	return r.message(), nil
}

// reply accumulates streamed parts into one assistant message. Thought
// summaries are dropped; only answer text and function calls are kept.
type reply struct {
	text          strings.Builder
	textSignature []byte
	toolCalls     []model.Content
}

func (r *reply) add(part *genai.Part) {
	if part.Text != "" && !part.Thought {
		if len(part.ThoughtSignature) > 0 {
			r.textSignature = part.ThoughtSignature
		}
		r.text.WriteString(part.Text)
	}
	if fc := part.FunctionCall; fc != nil {
		id := fc.ID
		if id == "" {
			id = "call-" + uuid.New().String()
		}
		r.toolCalls = append(r.toolCalls, model.Content{
			Type:             model.ContentTypeToolCall,
			ToolCall:         &model.ToolCall{ID: id, Name: fc.Name, Args: fc.Args},
			ThoughtSignature: part.ThoughtSignature,
		})
	}
}

func (r *reply) message() model.Message {
	var content []model.Content
	if r.text.Len() > 0 {
		content = append(content, model.Content{
			Type:             model.ContentTypeText,
			Text:             r.text.String(),
			ThoughtSignature: r.textSignature,
		})
	}
	content = append(content, r.toolCalls...)
	return model.Message{Role: domain.RoleAssistant, Content: content}
}

// Stream sends req and yields text fragments as they arrive.
func (p *Provider) Stream(ctx context.Context, req model.Request) (iter.Seq2[string, error], error) {
	slog.Debug("Gemini.Stream", "model", p.model, "historyCount", len(req.History), "messageCount", len(req.Messages))

	contents, cfg := buildRequest(req)
	return func(yield func(string, error) bool) {
		ctx, span := tracing.StartSpan(ctx, "gemini.stream", attribute.String("model", p.model))
		var err error
		defer func() { tracing.End(span, err) }()

		for resp, rerr := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
			if rerr != nil {
				err = fmt.Errorf("%w: %v", domain.ErrProvider, rerr)
				yield("", err)
				return
			}
			for _, part := range parts(resp) {
				if part.Text == "" || part.Thought {
					continue
				}
				if !yield(part.Text, nil) {
					return
				}
			}
		}
	}, nil
}

// Extract requests JSON output constrained by schema.
func (p *Provider) Extract(ctx context.Context, req model.Request, schema *model.Schema) (_ json.RawMessage, err error) {
	ctx, span := tracing.StartSpan(ctx, "gemini.extract", attribute.String("model", p.model))
	defer func() { tracing.End(span, err) }()

	req.Tools = false
	contents, cfg := buildRequest(req)
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = toSchema(schema)
	cfg.Temperature = genai.Ptr[float32](0)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}
	var b strings.Builder
	for _, part := range parts(resp) {
		if !part.Thought {
			b.WriteString(part.Text)
		}
	}
	raw := strings.TrimSpace(b.String())
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: structured output is not valid JSON", domain.ErrProvider)
	}
	return json.RawMessage(raw), nil
}

func parts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil {
		return nil
	}
	var out []*genai.Part
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			out = append(out, cand.Content.Parts...)
		}
	}
	return out
}

// buildRequest converts req into genai contents and call config.
func buildRequest(req model.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	var contents []*genai.Content
	for _, turn := range req.History {
		if turn.Content == "" {
			continue
		}
		contents = append(contents, textContent(roleOf(turn.Role), turn.Content))
	}
	if req.UserMessage != "" {
		contents = append(contents, textContent("user", req.UserMessage))
	}
	contents = append(contents, toContents(req.Messages)...)

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.Tools {
		cfg.Tools = buildToolDeclarations()
	}
	return contents, cfg
}

// roleOf maps a conversation role to a genai role. Tool results travel as
// user content.
func roleOf(r domain.Role) string {
	if r == domain.RoleAssistant {
		return "model"
	}
	return "user"
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}

func toContents(messages []model.Message) []*genai.Content {
	var contents []*genai.Content
	toolNameMap := make(map[string]string) // tool call ID -> name

	for _, msg := range messages {
		var ps []*genai.Part
		for _, c := range msg.Content {
			switch c.Type {
			case model.ContentTypeText:
				ps = append(ps, &genai.Part{Text: c.Text, ThoughtSignature: c.ThoughtSignature})
			case model.ContentTypeToolCall:
				if c.ToolCall != nil {
					toolNameMap[c.ToolCall.ID] = c.ToolCall.Name
					ps = append(ps, &genai.Part{
						FunctionCall: &genai.FunctionCall{
							ID:   c.ToolCall.ID,
							Name: c.ToolCall.Name,
							Args: c.ToolCall.Args,
						},
						ThoughtSignature: c.ThoughtSignature,
					})
				}
			case model.ContentTypeToolResult:
				if c.ToolResult != nil {
					name := c.ToolResult.Name
					if name == "" {
						name = toolNameMap[c.ToolResult.ToolCallID]
					}
					key := "result"
					if c.ToolResult.IsError {
						key = "error"
					}
					ps = append(ps, &genai.Part{
						FunctionResponse: &genai.FunctionResponse{
							ID:       c.ToolResult.ToolCallID,
							Name:     name,
							Response: map[string]any{key: c.ToolResult.Content},
						},
					})
				}
			}
		}

		if len(ps) > 0 {
			contents = append(contents, &genai.Content{Role: roleOf(msg.Role), Parts: ps})
		}
	}
	return contents
}

func buildToolDeclarations() []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(model.ToolManifest))
	for _, d := range model.ToolManifest {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  toSchema(d.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

var schemaTypes = map[model.SchemaType]genai.Type{
	model.TypeObject:  genai.TypeObject,
	model.TypeString:  genai.TypeString,
	model.TypeInteger: genai.TypeInteger,
	model.TypeNumber:  genai.TypeNumber,
	model.TypeBoolean: genai.TypeBoolean,
	model.TypeArray:   genai.TypeArray,
}

func toSchema(s *model.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        schemaTypes[s.Type],
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toSchema(s.Items),
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toSchema(v)
		}
	}
	return out
}
