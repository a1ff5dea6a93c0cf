package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

// ErrMalformed is returned when a stream breaks the protocol.
var ErrMalformed = errors.New("malformed chat stream")

// EventKind tags an Event.
type EventKind int

const (
	EventStatus EventKind = iota
	EventMetadata
	EventContent
)

// Event is one decoded protocol element.
type Event struct {
	Kind     EventKind
	Status   string
	Metadata Metadata
	Content  string
}

// State is the parser position in the protocol.
type State int

const (
	AwaitingMetadata State = iota
	StreamingContent
)

// Parser decodes a chat stream incrementally. Bytes are buffered until the
// metadata line is complete; nothing after it is released earlier.
type Parser struct {
	state State
	buf   []byte
}

// NewParser returns a parser awaiting metadata.
func NewParser() *Parser { return &Parser{} }

// State returns the current state.
func (p *Parser) State() State { return p.state }

// Feed consumes a chunk of the stream and returns the events it completes.
func (p *Parser) Feed(chunk []byte) ([]Event, error) {
	if p.state == StreamingContent {
		if len(chunk) == 0 {
			return nil, nil
		}
		return []Event{{Kind: EventContent, Content: string(chunk)}}, nil
	}

	p.buf = append(p.buf, chunk...)
	var events []Event
	for p.state == AwaitingMetadata {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			return events, nil
		}
		line := bytes.TrimSpace(p.buf[:i])
		p.buf = p.buf[i+1:]
		if len(line) == 0 {
			continue
		}
		ev, err := decodeLine(line)
		if err != nil {
			return events, err
		}
		events = append(events, ev)
		if ev.Kind == EventMetadata {
			p.state = StreamingContent
		}
	}

	if len(p.buf) > 0 {
		events = append(events, Event{Kind: EventContent, Content: string(p.buf)})
	}
	p.buf = nil
	return events, nil
}

// Finish reports whether the stream ended in a valid state.
func (p *Parser) Finish() error {
	if p.state == AwaitingMetadata {
		return fmt.Errorf("%w: stream ended before metadata", ErrMalformed)
	}
	return nil
}

type probe struct {
	Status   *string `json:"status"`
	Metadata bool    `json:"metadata"`
}

func decodeLine(line []byte) (Event, error) {
	var pr probe
	if err := json.Unmarshal(line, &pr); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case pr.Metadata:
		var m Metadata
		if err := json.Unmarshal(line, &m); err != nil {
			return Event{}, fmt.Errorf("%w: metadata: %v", ErrMalformed, err)
		}
		return Event{Kind: EventMetadata, Metadata: m}, nil
	case pr.Status != nil:
		return Event{Kind: EventStatus, Status: *pr.Status}, nil
	}
	return Event{}, fmt.Errorf("%w: unexpected line before metadata: %s", ErrMalformed, line)
}

// Parse reads r to the end and yields its events.
func Parse(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		p := NewParser()
		buf := make([]byte, 4096)
		for {
			n, rerr := r.Read(buf)
			if n > 0 {
				events, err := p.Feed(buf[:n])
				for _, ev := range events {
					if !yield(ev, nil) {
						return
					}
				}
				if err != nil {
					yield(Event{}, err)
					return
				}
			}
			if rerr == io.EOF {
				if err := p.Finish(); err != nil {
					yield(Event{}, err)
				}
				return
			}
			if rerr != nil {
				yield(Event{}, rerr)
				return
			}
		}
	}
}
