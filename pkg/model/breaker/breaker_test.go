package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/roster/pkg/config"
	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/model"
)

type fakeProvider struct {
	calls   int
	chatErr error
	frags   []string
	midErr  error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(context.Context, model.Request) (model.Message, error) {
	f.calls++
	if f.chatErr != nil {
		return model.Message{}, f.chatErr
	}
	return model.Message{Role: domain.RoleAssistant, Content: []model.Content{{Type: model.ContentTypeText, Text: "ok"}}}, nil
}

func (f *fakeProvider) Stream(context.Context, model.Request) (iter.Seq2[string, error], error) {
	f.calls++
	return func(yield func(string, error) bool) {
		for _, s := range f.frags {
			if !yield(s, nil) {
				return
			}
		}
		if f.midErr != nil {
			yield("", f.midErr)
		}
	}, nil
}

func (f *fakeProvider) Extract(context.Context, model.Request, *model.Schema) (json.RawMessage, error) {
	f.calls++
	return json.RawMessage(`{}`), nil
}

func newBreaker(inner model.Provider, maxFailures uint32) *Provider {
	return New(inner, config.BreakerConfig{MaxFailures: maxFailures, Timeout: time.Minute}, slog.Default())
}

func TestPassesThrough(t *testing.T) {
	inner := &fakeProvider{}
	p := newBreaker(inner, 3)

	msg, err := p.Chat(context.Background(), model.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Text())

	raw, err := p.Extract(context.Background(), model.Request{}, model.FilterSchema)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
	assert.Equal(t, "fake", p.Name())
}

func TestOpensAfterFailuresAndFailsFast(t *testing.T) {
	inner := &fakeProvider{chatErr: fmt.Errorf("%w: 503", domain.ErrProvider)}
	p := newBreaker(inner, 2)

	for i := 0; i < 2; i++ {
		_, err := p.Chat(context.Background(), model.Request{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	_, err := p.Chat(context.Background(), model.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, 2, inner.calls, "no call reaches the provider while open")

	_, err = p.Stream(context.Background(), model.Request{})
	assert.Error(t, err)
}

func TestConfigurationErrorsDoNotTrip(t *testing.T) {
	inner := &fakeProvider{chatErr: domain.ErrConfiguration}
	p := newBreaker(inner, 1)

	for i := 0; i < 3; i++ {
		_, err := p.Chat(context.Background(), model.Request{})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	}
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestStreamCountsMidStreamFailure(t *testing.T) {
	inner := &fakeProvider{frags: []string{"a", "b"}, midErr: errors.New("reset by peer")}
	p := newBreaker(inner, 1)

	seq, err := p.Stream(context.Background(), model.Request{})
	require.NoError(t, err)

	var got []string
	var streamErr error
	for frag, err := range seq {
		if err != nil {
			streamErr = err
			break
		}
		got = append(got, frag)
	}
	assert.Equal(t, []string{"a", "b"}, got)
	require.Error(t, streamErr)
	assert.Equal(t, gobreaker.StateOpen, p.State())
}

func TestStreamEarlyStopIsSuccess(t *testing.T) {
	inner := &fakeProvider{frags: []string{"a", "b", "c"}}
	p := newBreaker(inner, 1)

	seq, err := p.Stream(context.Background(), model.Request{})
	require.NoError(t, err)
	for frag := range seq {
		if frag == "a" {
			break
		}
	}
	assert.Equal(t, gobreaker.StateClosed, p.State())
}
