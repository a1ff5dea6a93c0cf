package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/nstogner/roster/pkg/config"
	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/model"
	"github.com/nstogner/roster/pkg/resolver"
	"github.com/nstogner/roster/pkg/store"
	"github.com/nstogner/roster/pkg/stream"
	"github.com/nstogner/roster/pkg/tracing"
	"github.com/nstogner/roster/pkg/vocab"
)

// Phase statuses reported to an Observer.
const (
	StatusConnecting = "Connecting..."
	StatusVocabulary = "Fetching vocabulary..."
	StatusAnalyzing  = "Analyzing request..."
	StatusGenerating = "Generating response..."
)

func executingStatus(n int) string {
	return fmt.Sprintf("Executing %d action(s)...", n)
}

// Observer receives phase statuses while a turn runs. It may be nil.
type Observer func(status string)

func (o Observer) notify(status string) {
	if o != nil {
		o(status)
	}
}

// Options tune how turns are handled.
type Options struct {
	// HistoryWindow is the number of most recent turns sent to the model.
	// Zero sends none.
	HistoryWindow int
	// Extraction selects config.ExtractionLexical or config.ExtractionModel.
	Extraction     string
	FuzzyThreshold float64
	// Timeout bounds a whole turn, model calls included. Zero means none.
	Timeout time.Duration
}

// OptionsFrom copies the turn settings out of cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		HistoryWindow:  cfg.HistoryWindow,
		Extraction:     cfg.Extraction,
		FuzzyThreshold: cfg.FuzzyThreshold,
		Timeout:        cfg.Model.Timeout,
	}
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout > 0 {
		return context.WithTimeout(ctx, c.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// Controller runs conversation turns: it asks the model whether a message is
// a mutation or a query, executes mutations through the resolver and turns
// queries into filters.
type Controller struct {
	users    store.UserStore
	resolver *resolver.Resolver
	provider model.Provider
	matcher  *vocab.Matcher
	opts     Options
	logger   *slog.Logger
}

// New creates a new Controller. A nil provider leaves the controller
// unconfigured: every turn fails with domain.ErrConfiguration.
func New(users store.UserStore, provider model.Provider, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		users:    users,
		resolver: resolver.New(users, logger),
		provider: provider,
		matcher:  vocab.NewMatcher(opts.FuzzyThreshold),
		opts:     opts,
		logger:   logger,
	}
}

// Configured reports whether a model gateway is available.
func (c *Controller) Configured() bool { return c.provider != nil }

// turn is the per-request state assembled before the model is called.
type turn struct {
	req          domain.ChatRequest
	vocab        vocab.Vocabulary
	history      []domain.Turn
	instructions string
	unrelated    bool
}

func (t *turn) request(tools bool) model.Request {
	return model.Request{
		SystemPrompt: t.instructions,
		History:      t.history,
		UserMessage:  t.req.Message,
		Tools:        tools,
	}
}

// plan is a decided turn. Exactly one of text and reply produces the content.
type plan struct {
	result *domain.TurnResult
	text   string
	reply  *model.Request
}

// Handle runs one turn and returns its complete result.
func (c *Controller) Handle(ctx context.Context, req domain.ChatRequest, obs Observer) (_ *domain.TurnResult, err error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "controller.handle")
	defer func() { tracing.End(span, err) }()

	p, err := c.decide(ctx, req, obs)
	if err != nil {
		return nil, err
	}
	p.result.Content = p.text
	if p.reply != nil {
		msg, err := c.provider.Chat(ctx, *p.reply)
		if err != nil {
			return nil, fmt.Errorf("generating response: %w", err)
		}
		p.result.Content = msg.Text()
	}
	c.logTurn(p.result)
	return p.result, nil
}

// HandleStream runs one turn, writing statuses, the metadata line and the
// response text to w. domain.ErrConfiguration is returned before anything
// is written. Any later failure is also written to w as a terminal error.
func (c *Controller) HandleStream(ctx context.Context, req domain.ChatRequest, w *stream.Writer) (_ *domain.TurnResult, err error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: no model provider", domain.ErrConfiguration)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "controller.handle_stream")
	defer func() { tracing.End(span, err) }()

	defer func() {
		if err != nil && !errors.Is(err, context.Canceled) {
			if werr := w.Error(userFacing(err)); werr != nil {
				c.logger.Debug("writing stream error", "error", werr)
			}
		}
		w.Close()
	}()

	obs := func(status string) {
		if err := w.Status(status); err != nil {
			c.logger.Debug("writing status", "status", status, "error", err)
		}
	}

	p, err := c.decide(ctx, req, obs)
	if err != nil {
		return nil, err
	}
	if err := w.Metadata(stream.MetadataFor(p.result)); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	if p.reply == nil {
		p.result.Content = p.text
		if err := w.Content(p.text); err != nil {
			return nil, fmt.Errorf("writing content: %w", err)
		}
		c.logTurn(p.result)
		return p.result, nil
	}

	seq, err := c.provider.Stream(ctx, *p.reply)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}
	var b strings.Builder
	for frag, ferr := range seq {
		if ferr != nil {
			return nil, fmt.Errorf("generating response: %w", ferr)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.WriteString(frag)
		if err := w.Content(frag); err != nil {
			return nil, fmt.Errorf("writing content: %w", err)
		}
	}
	p.result.Content = b.String()
	c.logTurn(p.result)
	return p.result, nil
}

// decide runs a turn up to the point where its metadata is known.
func (c *Controller) decide(ctx context.Context, req domain.ChatRequest, obs Observer) (*plan, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: no model provider", domain.ErrConfiguration)
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}

	obs.notify(StatusConnecting)
	t, err := c.begin(ctx, req, obs)
	if err != nil {
		return nil, err
	}

	obs.notify(StatusAnalyzing)
	if t.unrelated {
		reply := t.request(false)
		reply.SystemPrompt = unrelatedInstructions
		return &plan{
			result: &domain.TurnResult{Unrelated: true, Filters: domain.FilterSpec{Unrelated: true}},
			reply:  &reply,
		}, nil
	}

	msg, err := c.provider.Chat(ctx, t.request(true))
	if err != nil {
		return nil, fmt.Errorf("calling model: %w", err)
	}

	if calls := msg.ToolCalls(); len(calls) > 0 {
		obs.notify(executingStatus(len(calls)))
		outcomes := c.executeTools(ctx, calls)

		obs.notify(StatusGenerating)
		reply := t.request(true)
		reply.Messages = []model.Message{msg, toolResultMessage(outcomes)}
		return &plan{
			result: &domain.TurnResult{Refresh: true, Outcomes: outcomes},
			reply:  &reply,
		}, nil
	}

	filters := c.extractFilters(ctx, t)
	return &plan{
		result: &domain.TurnResult{
			Filters:     filters,
			ShouldReset: filters.ShouldReset,
		},
		text: msg.Text(),
	}, nil
}

// begin loads the vocabulary and assembles the turn.
func (c *Controller) begin(ctx context.Context, req domain.ChatRequest, obs Observer) (*turn, error) {
	obs.notify(StatusVocabulary)
	v, err := c.Vocabulary(ctx)
	if err != nil {
		return nil, err
	}

	t := &turn{
		req:     req,
		vocab:   v,
		history: trimHistory(req.History, c.opts.HistoryWindow),
	}
	t.unrelated = isUnrelated(req.Message, v)
	t.instructions = buildInstructions(v, req.CurrentFilters)

	c.logger.Debug("turn prepared",
		"historyCount", len(t.history),
		"roles", len(v.Roles),
		"departments", len(v.Departments),
		"unrelated", t.unrelated,
	)
	return t, nil
}

// Vocabulary reads the live roles and departments concurrently.
func (c *Controller) Vocabulary(ctx context.Context) (vocab.Vocabulary, error) {
	ctx, span := tracing.StartSpan(ctx, "controller.vocabulary")
	var v vocab.Vocabulary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		roles, err := c.users.Distinct(gctx, store.FieldRole)
		v.Roles = roles
		return err
	})
	g.Go(func() error {
		depts, err := c.users.Distinct(gctx, store.FieldDepartment)
		v.Departments = depts
		return err
	})
	err := g.Wait()
	span.SetAttributes(attribute.Int("roles", len(v.Roles)), attribute.Int("departments", len(v.Departments)))
	tracing.End(span, err)
	if err != nil {
		return vocab.Vocabulary{}, fmt.Errorf("fetching vocabulary: %w", err)
	}
	return v, nil
}

// trimHistory keeps the last window valid turns.
func trimHistory(history []domain.Turn, window int) []domain.Turn {
	var kept []domain.Turn
	for _, t := range history {
		if t.Role.Valid() && strings.TrimSpace(t.Content) != "" {
			kept = append(kept, t)
		}
	}
	if window <= 0 {
		return nil
	}
	if len(kept) > window {
		kept = kept[len(kept)-window:]
	}
	return kept
}

func (c *Controller) logTurn(r *domain.TurnResult) {
	c.logger.Info("turn complete",
		"mutation", r.Mutation(),
		"actions", len(r.Outcomes),
		"refresh", r.Refresh,
		"unrelated", r.Unrelated,
		"shouldReset", r.ShouldReset,
	)
}

// userFacing strips internal detail from errors written into a stream.
func userFacing(err error) error {
	switch {
	case errors.Is(err, domain.ErrProvider):
		return errors.New("the language model is unavailable, please try again")
	case errors.Is(err, domain.ErrInvalidInput):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.New("the request timed out")
	}
	return errors.New("something went wrong while handling your request")
}
