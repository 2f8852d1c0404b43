package stream

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
)

const ndjsonBody = `{"model":"llama3.2:1b","message":{"role":"assistant","content":"Hel"},"done":false}
{"model":"llama3.2:1b","message":{"role":"assistant","content":"lo ğüşé 🙂"},"done":false}

not json at all
{"model":"llama3.2:1b","message":{"role":"assistant","content":""},"done":true}
`

// drain reads every fragment from the decoder and returns the raw payloads.
func drain(t *testing.T, d *Decoder) []string {
	t.Helper()
	var out []string
	for {
		f, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, string(f.Raw))
	}
}

func feedAll(s *Splitter, chunks ...[]byte) []string {
	var out []string
	for _, c := range chunks {
		for _, f := range s.Feed(c) {
			out = append(out, string(f.Raw))
		}
	}
	for _, f := range s.Flush() {
		out = append(out, string(f.Raw))
	}
	return out
}

func TestSplitter_ChunkBoundariesDoNotChangeOutput(t *testing.T) {
	body := []byte(ndjsonBody)
	want := feedAll(NewSplitter(DialectNDJSON), body)
	require.Len(t, want, 3)

	// Every two-way split, including splits inside multi-byte runes.
	for i := 0; i <= len(body); i++ {
		got := feedAll(NewSplitter(DialectNDJSON), body[:i], body[i:])
		assert.Equal(t, want, got, "split at byte %d", i)
	}

	// One byte at a time.
	chunks := make([][]byte, len(body))
	for i := range body {
		chunks[i] = body[i : i+1]
	}
	assert.Equal(t, want, feedAll(NewSplitter(DialectNDJSON), chunks...))
}

func TestSplitter_SkipsMalformedLinesAndKeepsGoing(t *testing.T) {
	s := NewSplitter(DialectNDJSON)
	got := feedAll(s, []byte("{\"a\":1}\n{broken\n42\n\"str\"\n   \n{\"b\":2}\n"))
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)
}

func TestSplitter_FinalLineWithoutNewline(t *testing.T) {
	t.Run("parsed at flush", func(t *testing.T) {
		got := feedAll(NewSplitter(DialectNDJSON), []byte("{\"a\":1}\n{\"b\":2}"))
		assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)
	})

	t.Run("discarded when malformed", func(t *testing.T) {
		got := feedAll(NewSplitter(DialectNDJSON), []byte("{\"a\":1}\n{\"b\":"))
		assert.Equal(t, []string{`{"a":1}`}, got)
	})

	t.Run("blank tail ignored", func(t *testing.T) {
		got := feedAll(NewSplitter(DialectNDJSON), []byte("{\"a\":1}\n \t "))
		assert.Equal(t, []string{`{"a":1}`}, got)
	})
}

func TestSplitter_HandlesCRLF(t *testing.T) {
	got := feedAll(NewSplitter(DialectNDJSON), []byte("{\"a\":1}\r\n{\"b\":2}\r\n"))
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)
}

func TestSplitter_EventDialect(t *testing.T) {
	body := strings.Join([]string{
		`: keep-alive`,
		`event: message`,
		`data: {"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		``,
		`data: not-json`,
		`data:{"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`data: {"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
		`data: {"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"ignored"}}]}`,
		``,
	}, "\n")

	s := NewSplitter(DialectEvent)
	frags := s.Feed([]byte(body))
	assert.True(t, s.Done())
	assert.Empty(t, s.Flush())
	assert.Empty(t, s.Feed([]byte("data: {\"x\":1}\n")))

	require.Len(t, frags, 3)
	require.NotNil(t, frags[0].Delta)
	assert.Equal(t, "gpt-4o", frags[0].Delta.Model)
	assert.Equal(t, "Hel", frags[0].Delta.Content)
	assert.Equal(t, "lo", frags[1].Delta.Content)
	assert.Equal(t, "stop", frags[2].Delta.FinishReason)
	assert.True(t, json.Valid(frags[0].Raw))
}

func TestSplitter_EventDialectPassesOtherObjectsThrough(t *testing.T) {
	frags := NewSplitter(DialectEvent).Feed([]byte("data: {\"error\":\"boom\"}\n"))
	require.Len(t, frags, 1)
	assert.Nil(t, frags[0].Delta)
	assert.JSONEq(t, `{"error":"boom"}`, string(frags[0].Raw))
}

func TestDecoder_MatchesSingleChunkRegardlessOfReadSize(t *testing.T) {
	whole := drain(t, NewDecoder(strings.NewReader(ndjsonBody), DialectNDJSON, "application/x-ndjson"))
	oneByte := drain(t, NewDecoder(iotest.OneByteReader(strings.NewReader(ndjsonBody)), DialectNDJSON, ""))
	half := drain(t, NewDecoder(iotest.HalfReader(strings.NewReader(ndjsonBody)), DialectNDJSON, ""))
	dataErr := drain(t, NewDecoder(iotest.DataErrReader(strings.NewReader(ndjsonBody)), DialectNDJSON, ""))

	assert.Len(t, whole, 3)
	assert.Equal(t, whole, oneByte)
	assert.Equal(t, whole, half)
	assert.Equal(t, whole, dataErr)
}

func TestDecoder_Example1(t *testing.T) {
	body := "{\"message\":{\"content\":\"Hel\"}}\n{\"message\":{\"content\":\"lo\"}}\n"
	got := drain(t, NewDecoder(strings.NewReader(body), DialectNDJSON, ""))
	assert.Equal(t, []string{`{"message":{"content":"Hel"}}`, `{"message":{"content":"lo"}}`}, got)
}

func TestDecoder_StopsAtTerminator(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\ndata: [DONE]\n\n"
	r := &countingReader{r: strings.NewReader(body)}
	d := NewDecoder(r, DialectEvent, "text/event-stream")

	f, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", f.Delta.Content)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
	reads := r.reads

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, reads, r.reads, "no reads after the terminator")
}

func TestDecoder_TransportFailures(t *testing.T) {
	t.Run("nil body", func(t *testing.T) {
		_, err := NewDecoder(nil, DialectNDJSON, "").Next()
		assert.ErrorIs(t, err, app_errors.ErrTransport)
	})

	t.Run("read error mid stream", func(t *testing.T) {
		cause := errors.New("connection reset by peer")
		r := io.MultiReader(strings.NewReader("{\"a\":1}\n{\"b\""), iotest.ErrReader(cause))
		d := NewDecoder(r, DialectNDJSON, "")

		f, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(f.Raw))

		_, err = d.Next()
		assert.ErrorIs(t, err, app_errors.ErrTransport)
		assert.ErrorIs(t, err, cause)
		assert.NotErrorIs(t, err, io.EOF)

		// The failure is sticky.
		_, err = d.Next()
		assert.ErrorIs(t, err, app_errors.ErrTransport)
	})
}

func TestDecoder_DecodesDeclaredCharset(t *testing.T) {
	// "café" in ISO-8859-1, delivered one byte at a time.
	body := "{\"message\":{\"content\":\"caf\xe9\"}}\n"
	d := NewDecoder(iotest.OneByteReader(strings.NewReader(body)), DialectNDJSON, "application/x-ndjson; charset=ISO-8859-1")

	f, err := d.Next()
	require.NoError(t, err)
	var chunk struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(f.Raw, &chunk))
	assert.Equal(t, "café", chunk.Message.Content)
}

func TestDecoder_UnknownCharsetFallsBackToBytes(t *testing.T) {
	got := drain(t, NewDecoder(strings.NewReader("{\"a\":1}\n"), DialectNDJSON, "application/json; charset=x-made-up"))
	assert.Equal(t, []string{`{"a":1}`}, got)
}

type countingReader struct {
	r     io.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}
