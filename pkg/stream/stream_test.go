package stream

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nstogner/roster/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWriterOrdering(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Status("Connecting..."))
	require.NoError(t, w.Status("Analyzing request..."))
	assert.ErrorIs(t, w.Content("too early"), domain.ErrOutOfOrder)

	require.NoError(t, w.Metadata(Metadata{
		Filters: domain.FilterSpec{Role: domain.Set{"Developer"}, MaxAge: "40"},
		Refresh: false,
	}))
	assert.True(t, w.Started())
	assert.ErrorIs(t, w.Status("late"), domain.ErrOutOfOrder)
	assert.ErrorIs(t, w.Metadata(Metadata{}), domain.ErrOutOfOrder)

	require.NoError(t, w.Content("Here are "))
	require.NoError(t, w.Content("the developers."))

	want := `{"status":"Connecting..."}
{"status":"Analyzing request..."}
{"filters":{"role":["Developer"],"maxAge":"40"},"shouldReset":false,"refresh":false,"metadata":true}
Here are the developers.`
	assert.Equal(t, want, buf.String())
}

func TestWriterErrorBeforeMetadata(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Status("Connecting..."))
	require.NoError(t, w.Error(errors.New("model unavailable")))

	want := `{"status":"Connecting..."}
{"filters":{},"shouldReset":false,"refresh":false,"metadata":true}
Error: model unavailable`
	assert.Equal(t, want, buf.String())
	assert.ErrorIs(t, w.Content("more"), domain.ErrOutOfOrder)
	assert.ErrorIs(t, w.Error(errors.New("again")), domain.ErrOutOfOrder)
}

func TestWriterErrorAfterContent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Metadata(Metadata{}))
	require.NoError(t, w.Content("partial"))
	require.NoError(t, w.Error(errors.New("reset")))
	assert.True(t, strings.HasSuffix(buf.String(), "partial\n\nError: reset"))
}

func TestWriterFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	require.NoError(t, w.Status("Connecting..."))
	assert.True(t, rec.Flushed)
}

func TestParserBuffersUntilMetadata(t *testing.T) {
	p := NewParser()

	events, err := p.Feed([]byte(`{"status":"Conn`))
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = p.Feed([]byte("ecting...\"}\n{\"filters\":{\"role\":[\"Admin\"]},\"shouldRe"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventStatus, events[0].Kind)
	assert.Equal(t, "Connecting...", events[0].Status)
	assert.Equal(t, AwaitingMetadata, p.State())

	events, err = p.Feed([]byte("set\":true,\"refresh\":false,\"metadata\":true}\nHello"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventMetadata, events[0].Kind)
	assert.True(t, events[0].Metadata.ShouldReset)
	assert.Equal(t, domain.Set{"Admin"}, events[0].Metadata.Filters.Role)
	assert.Equal(t, Event{Kind: EventContent, Content: "Hello"}, events[1])
	assert.Equal(t, StreamingContent, p.State())

	// Newlines and JSON in content are passed through untouched.
	events, err = p.Feed([]byte("\n{\"status\":\"x\"}\n"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "\n{\"status\":\"x\"}\n", events[0].Content)
	require.NoError(t, p.Finish())
}

func TestParserRejectsGarbageBeforeMetadata(t *testing.T) {
	p := NewParser()
	_, err := p.Feed([]byte("hello\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	p = NewParser()
	_, err = p.Feed([]byte(`{"other":1}` + "\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParserFinishWithoutMetadata(t *testing.T) {
	p := NewParser()
	_, err := p.Feed([]byte(`{"status":"Connecting..."}` + "\n"))
	require.NoError(t, err)
	assert.ErrorIs(t, p.Finish(), ErrMalformed)
}

// TestRoundTripOverPipe writes a stream from one goroutine and parses it in
// another, one byte at a time on the write side.
func TestRoundTripOverPipe(t *testing.T) {
	pr, pw := io.Pipe()

	done := make(chan error, 1)
	go func() {
		w := NewWriter(&byteWriter{pw})
		err := errors.Join(
			w.Status("Fetching vocabulary..."),
			w.Metadata(Metadata{Refresh: true}),
			w.Content("Deleted "),
			w.Content("Test User."),
		)
		pw.Close()
		done <- err
	}()

	var statuses []string
	var meta *Metadata
	var content strings.Builder
	for ev, err := range Parse(pr) {
		require.NoError(t, err)
		switch ev.Kind {
		case EventStatus:
			assert.Nil(t, meta, "status after metadata")
			statuses = append(statuses, ev.Status)
		case EventMetadata:
			m := ev.Metadata
			meta = &m
		case EventContent:
			require.NotNil(t, meta, "content before metadata")
			content.WriteString(ev.Content)
		}
	}
	require.NoError(t, <-done)

	assert.Equal(t, []string{"Fetching vocabulary..."}, statuses)
	require.NotNil(t, meta)
	assert.True(t, meta.Refresh)
	assert.True(t, meta.Filters.IsEmpty())
	assert.Equal(t, "Deleted Test User.", content.String())
}

type byteWriter struct{ w io.Writer }

func (b *byteWriter) Write(p []byte) (int, error) {
	for i := range p {
		if _, err := b.w.Write(p[i : i+1]); err != nil {
			return i, err
		}
	}
	return len(p), nil
}
