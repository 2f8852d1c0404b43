package service

import (
	"errors"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
)

const errorPrefix = "Sorry, the answer could not be retrieved: "

// ErrorText is the user-visible text stored in place of an answer when a
// request fails.
func ErrorText(err error) string {
	if errors.Is(err, app_errors.ErrShape) {
		return errorPrefix + "the backend returned an unexpected response"
	}
	return errorPrefix + "the backend could not be reached"
}

// SendOption customizes a single chat or QnA request.
type SendOption func(*sendOptions)

type sendOptions struct {
	onDelta func(string)
}

// WithOnDelta streams text pieces to fn while the answer arrives. The store
// still receives the answer once, after it is complete.
func WithOnDelta(fn func(string)) SendOption {
	return func(o *sendOptions) { o.onDelta = fn }
}

func collectOptions(opts []SendOption) sendOptions {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
