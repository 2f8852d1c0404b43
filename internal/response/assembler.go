// Package response folds decoded fragments and buffered envelopes into a
// single validated answer.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/stream"
)

// Answer is the terminal value of one request.
type Answer struct {
	Model       string
	Text        string
	CompletedAt time.Time
}

// FragmentSource yields fragments until io.EOF. *stream.Decoder implements it.
type FragmentSource interface {
	Next() (stream.Fragment, error)
}

// ollamaChunk covers both chat (message.content) and generate (response)
// stream chunks.
type ollamaChunk struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Content string `json:"content"`
	} `json:"message"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
	// Status is only present when a failure envelope is sent in place of a
	// stream.
	Status *bool `json:"status"`
}

// Assembler accumulates the text of one streamed answer.
type Assembler struct {
	model       string
	text        strings.Builder
	completedAt time.Time
	done        bool
	onDelta     func(string)
}

// NewAssembler returns an empty assembler. onDelta, when not nil, is called
// with every non-empty text delta in arrival order.
func NewAssembler(onDelta func(string)) *Assembler {
	return &Assembler{onDelta: onDelta}
}

// Add folds one fragment in and reports whether it completed the answer.
// Fragments after completion are ignored.
func (a *Assembler) Add(f stream.Fragment) (bool, error) {
	if a.done {
		return true, nil
	}

	var delta string
	if f.Delta != nil {
		if f.Delta.Model != "" {
			a.model = f.Delta.Model
		}
		delta = f.Delta.Content
		a.done = f.Delta.FinishReason != ""
	} else {
		var chunk ollamaChunk
		if err := json.Unmarshal(f.Raw, &chunk); err != nil {
			slog.Debug("Skipping stream fragment with unexpected field types", "error", err)
			return false, nil
		}
		if chunk.Error != "" {
			return false, fmt.Errorf("%w: backend reported an error mid-stream: %s", app_errors.ErrShape, chunk.Error)
		}
		if chunk.Status != nil && !*chunk.Status {
			return false, fmt.Errorf("%w: backend reported status false", app_errors.ErrShape)
		}
		if chunk.Model != "" {
			a.model = chunk.Model
		}
		if chunk.CreatedAt != "" {
			a.completedAt = parseTimestamp(chunk.CreatedAt)
		}
		delta = chunk.Message.Content + chunk.Response
		a.done = chunk.Done
	}

	if delta != "" {
		a.text.WriteString(delta)
		if a.onDelta != nil {
			a.onDelta(delta)
		}
	}
	return a.done, nil
}

// Done reports whether a completion signal has been seen.
func (a *Assembler) Done() bool { return a.done }

// Answer returns what has been accumulated so far.
func (a *Assembler) Answer() *Answer {
	completedAt := a.completedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	return &Answer{Model: a.model, Text: a.text.String(), CompletedAt: completedAt}
}

// Fold drains src until a completion signal or the end of the sequence. A
// sequence that ends without a completion signal still produces the text
// accumulated so far; a transport failure is returned as is.
func (a *Assembler) Fold(src FragmentSource) (*Answer, error) {
	for {
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			if !a.done {
				slog.Debug("Stream ended without a completion signal", "chars", a.text.Len())
			}
			return a.Answer(), nil
		}
		if err != nil {
			return nil, err
		}
		done, err := a.Add(f)
		if err != nil {
			return nil, err
		}
		if done {
			return a.Answer(), nil
		}
	}
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Now()
	}
	return ts
}
