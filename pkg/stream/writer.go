// Package stream implements the chat response protocol: zero or more status
// lines, exactly one metadata line, then raw response text.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/nstogner/roster/pkg/domain"
)

// Metadata is the line that separates status updates from response text.
type Metadata struct {
	Filters     domain.FilterSpec `json:"filters"`
	ShouldReset bool              `json:"shouldReset"`
	Refresh     bool              `json:"refresh"`
	Unrelated   bool              `json:"unrelated,omitempty"`
	Metadata    bool              `json:"metadata"`
}

// MetadataFor builds the metadata line of a finished turn.
func MetadataFor(r *domain.TurnResult) Metadata {
	return Metadata{
		Filters:     r.Filters,
		ShouldReset: r.ShouldReset,
		Refresh:     r.Refresh,
		Unrelated:   r.Unrelated,
	}
}

// Sink encodes protocol elements onto a transport. The Writer guarantees
// calls arrive in protocol order.
type Sink interface {
	WriteStatus(status string) error
	WriteMetadata(m Metadata) error
	WriteContent(fragment string) error
}

// ErrorSink is implemented by sinks that carry errors out of band instead
// of as a content fragment.
type ErrorSink interface {
	WriteError(msg string) error
}

type phase int

const (
	phaseStatus phase = iota
	phaseContent
	phaseClosed
)

// Writer enforces status* -> metadata -> content* ordering on a Sink.
// It is safe for concurrent use; writes are serialized.
type Writer struct {
	mu      sync.Mutex
	sink    Sink
	phase   phase
	written bool
}

// NewWriter returns a Writer emitting newline-delimited JSON to w. When w is
// an http.Flusher, every write is flushed.
func NewWriter(w io.Writer) *Writer {
	return NewSinkWriter(&ndjsonSink{w: w})
}

// NewSinkWriter returns a Writer emitting to sink.
func NewSinkWriter(sink Sink) *Writer {
	return &Writer{sink: sink}
}

// Status emits a progress line. It fails once metadata has been written.
func (w *Writer) Status(status string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != phaseStatus {
		return fmt.Errorf("%w: status %q after metadata", domain.ErrOutOfOrder, status)
	}
	return w.sink.WriteStatus(status)
}

// Metadata emits the metadata line. It may be written once.
func (w *Writer) Metadata(m Metadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != phaseStatus {
		return fmt.Errorf("%w: metadata written twice", domain.ErrOutOfOrder)
	}
	return w.writeMetadata(m)
}

func (w *Writer) writeMetadata(m Metadata) error {
	m.Metadata = true
	if err := w.sink.WriteMetadata(m); err != nil {
		return err
	}
	w.phase = phaseContent
	return nil
}

// Content emits a response fragment. It fails before metadata.
func (w *Writer) Content(fragment string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != phaseContent {
		return fmt.Errorf("%w: content outside the content phase", domain.ErrOutOfOrder)
	}
	if fragment == "" {
		return nil
	}
	if err := w.sink.WriteContent(fragment); err != nil {
		return err
	}
	w.written = true
	return nil
}

// Error terminates the stream with a readable error fragment. When no
// metadata has been written yet, an empty metadata line goes first so the
// client can still parse the body.
func (w *Writer) Error(cause error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase == phaseClosed {
		return fmt.Errorf("%w: stream already closed", domain.ErrOutOfOrder)
	}
	if w.phase == phaseStatus {
		if err := w.writeMetadata(Metadata{}); err != nil {
			return err
		}
	}
	w.phase = phaseClosed
	if es, ok := w.sink.(ErrorSink); ok {
		return es.WriteError(cause.Error())
	}
	msg := "Error: " + cause.Error()
	if w.written {
		msg = "\n\n" + msg
	}
	return w.sink.WriteContent(msg)
}

// Close marks the stream finished; later writes fail.
func (w *Writer) Close() {
	w.mu.Lock()
	w.phase = phaseClosed
	w.mu.Unlock()
}

// Started reports whether metadata has been written.
func (w *Writer) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase != phaseStatus
}

type statusLine struct {
	Status string `json:"status"`
}

type ndjsonSink struct {
	w io.Writer
}

func (s *ndjsonSink) line(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding stream line: %w", err)
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *ndjsonSink) flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *ndjsonSink) WriteStatus(status string) error { return s.line(statusLine{Status: status}) }

func (s *ndjsonSink) WriteMetadata(m Metadata) error { return s.line(m) }

func (s *ndjsonSink) WriteContent(fragment string) error {
	if _, err := io.WriteString(s.w, fragment); err != nil {
		return err
	}
	s.flush()
	return nil
}
