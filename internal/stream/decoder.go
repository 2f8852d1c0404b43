package stream

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
)

const readChunkSize = 4 * 1024

// Decoder pulls fragments from a response body. It reads only when no
// decoded fragment is waiting, so fragments come out in arrival order and
// nothing is buffered beyond line reassembly.
type Decoder struct {
	r        io.Reader
	splitter *Splitter
	pending  []Fragment
	buf      []byte
	err      error
}

// NewDecoder returns a decoder over r. contentType is the response
// Content-Type header; a declared non-UTF-8 charset is decoded while
// streaming. A nil reader yields a decoder whose first Next fails with
// ErrTransport.
func NewDecoder(r io.Reader, dialect Dialect, contentType string) *Decoder {
	d := &Decoder{
		splitter: NewSplitter(dialect),
		buf:      make([]byte, readChunkSize),
	}
	if r == nil {
		d.err = fmt.Errorf("%w: response has no body", app_errors.ErrTransport)
		return d
	}
	d.r = charsetReader(r, contentType)
	return d
}

// Next returns the next fragment. It returns io.EOF after the last fragment,
// including when the event terminator was seen. A read failure is returned
// wrapped in ErrTransport and ends the sequence; malformed lines never
// surface as errors.
func (d *Decoder) Next() (Fragment, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return Fragment{}, d.err
		}
		if d.splitter.Done() {
			d.err = io.EOF
			continue
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.pending = append(d.pending, d.splitter.Feed(d.buf[:n])...)
		}
		switch {
		case err == io.EOF:
			d.pending = append(d.pending, d.splitter.Flush()...)
			d.err = io.EOF
		case err != nil:
			d.err = fmt.Errorf("%w: reading stream: %w", app_errors.ErrTransport, err)
		}
	}

	f := d.pending[0]
	d.pending = d.pending[1:]
	return f, nil
}

// charsetReader wraps r in a streaming decoder for the charset declared in
// contentType. UTF-8 is passed through untouched: a newline byte never occurs
// inside a UTF-8 multi-byte sequence, so lines can be split on raw bytes.
func charsetReader(r io.Reader, contentType string) io.Reader {
	if contentType == "" {
		return r
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return r
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return r
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		slog.Warn("Unknown response charset, reading bytes as UTF-8", "charset", charset, "error", err)
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}
