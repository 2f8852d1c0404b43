// Package stream turns a chunked response body into a sequence of JSON
// fragments, one per newline-terminated line.
package stream

import (
	"bytes"
	"encoding/json"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// Dialect selects how a line is turned into a fragment.
type Dialect int

const (
	// DialectNDJSON treats every non-blank line as one JSON object.
	DialectNDJSON Dialect = iota
	// DialectEvent reads Server-Sent-Events style "data:" lines.
	DialectEvent
)

func (d Dialect) String() string {
	if d == DialectEvent {
		return "event"
	}
	return "ndjson"
}

const (
	// EventPrefix starts every payload line of the event dialect.
	EventPrefix = "data:"
	// Terminator ends an event stream. It is not JSON.
	Terminator = "[DONE]"
)

// Delta is the incremental part of a chat-completions chunk.
type Delta struct {
	Model        string
	Content      string
	FinishReason string
}

// Fragment is one decoded JSON object from the stream.
type Fragment struct {
	// Raw is the JSON object as received, without any event prefix.
	Raw json.RawMessage
	// Delta is set by the event dialect when the payload is a
	// chat-completions chunk.
	Delta *Delta
}

// Splitter reassembles lines from arbitrary byte chunks. It is the pure part
// of the decoder and does no I/O.
type Splitter struct {
	dialect Dialect
	buf     []byte
	done    bool
}

// NewSplitter returns a Splitter for the given dialect.
func NewSplitter(dialect Dialect) *Splitter {
	return &Splitter{dialect: dialect}
}

// Done reports whether the terminator has been seen. A done splitter ignores
// further input.
func (s *Splitter) Done() bool { return s.done }

// Feed appends p to the buffer and returns the fragments decoded from every
// line completed by it. The unterminated tail stays buffered.
func (s *Splitter) Feed(p []byte) []Fragment {
	if s.done {
		return nil
	}
	s.buf = append(s.buf, p...)

	var out []Fragment
	for !s.done {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			break
		}
		out = s.decodeLine(out, s.buf[:i])
		s.buf = s.buf[i+1:]
	}
	if s.done {
		s.buf = nil
	}
	return out
}

// Flush decodes whatever is left in the buffer as a final line. It is called
// once, at end of data.
func (s *Splitter) Flush() []Fragment {
	if s.done {
		return nil
	}
	rest := s.buf
	s.buf = nil
	return s.decodeLine(nil, rest)
}

func (s *Splitter) decodeLine(out []Fragment, line []byte) []Fragment {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return out
	}

	if s.dialect == DialectEvent {
		if !bytes.HasPrefix(line, []byte(EventPrefix)) {
			// event:, id:, retry: and ":" comments carry nothing for us.
			return out
		}
		line = bytes.TrimSpace(line[len(EventPrefix):])
		if string(line) == Terminator {
			s.done = true
			return out
		}
	}

	if line[0] != '{' || !json.Valid(line) {
		slog.Debug("Skipping malformed stream line", "dialect", s.dialect.String(), "line", preview(line))
		return out
	}

	frag := Fragment{Raw: append(json.RawMessage(nil), line...)}
	if s.dialect == DialectEvent {
		frag.Delta = unwrapDelta(frag.Raw)
	}
	return append(out, frag)
}

// unwrapDelta extracts choices[0].delta from a chat-completions chunk, or
// returns nil when the payload has another shape.
func unwrapDelta(raw json.RawMessage) *Delta {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(raw, &chunk); err != nil || len(chunk.Choices) == 0 {
		return nil
	}
	choice := chunk.Choices[0]
	return &Delta{
		Model:        chunk.Model,
		Content:      choice.Delta.Content,
		FinishReason: string(choice.FinishReason),
	}
}

func preview(b []byte) string {
	const limit = 120
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
