package service

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
)

// Slot admits at most one request at a time. A second request is rejected
// with ErrBusy while the first is in flight.
type Slot struct {
	name    string
	sem     *semaphore.Weighted
	sending atomic.Bool
}

// NewSlot returns an idle slot.
func NewSlot(name string) *Slot {
	return &Slot{name: name, sem: semaphore.NewWeighted(1)}
}

// Enter moves the slot to sending. The returned release func moves it back
// to idle and must be called exactly once.
func (s *Slot) Enter() (func(), error) {
	if !s.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %s", app_errors.ErrBusy, s.name)
	}
	s.sending.Store(true)
	return func() {
		s.sending.Store(false)
		s.sem.Release(1)
	}, nil
}

// Busy reports whether a request currently holds the slot. It only observes
// the slot and never competes with Enter.
func (s *Slot) Busy() bool {
	return s.sending.Load()
}
