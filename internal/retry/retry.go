// Package retry implements the Retry/Ack Coordinator: a generic "send
// datagram, wait up to T for a matching ack, retry up to R times" helper
// with a pluggable source of incoming items, per spec.md §4.2 and the
// design note in §9 asking for this pattern to be extracted into one
// reusable operation instead of being duplicated per call site.
package retry

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTimeout is the per-attempt wait before retransmitting.
const DefaultTimeout = 500 * time.Millisecond

// DefaultRetries is the number of retransmissions attempted after the
// initial send (so at most DefaultRetries+1 = 3 total transmissions).
const DefaultRetries = 2

// ErrTimeout is returned once every attempt has been exhausted without a
// matching item arriving.
var ErrTimeout = errors.New("retry: no acknowledgement received")

// Source is the pluggable origin of incoming items a Coordinator waits on.
// Next blocks for up to deadline for the next available item; ok is false
// if the deadline elapsed with nothing available. Implementations are
// responsible for any filtering that is specific to their transport (e.g.
// matching the expected sender address) before an item is handed back.
type Source interface {
	Next(deadline time.Duration) (payload []byte, ok bool)
}

// Coordinator runs the bounded send/await/retry loop described in
// spec.md §4.2.
type Coordinator struct {
	Timeout time.Duration
	Retries int
}

// New returns a Coordinator using the spec's default timings.
func New() Coordinator {
	return Coordinator{Timeout: DefaultTimeout, Retries: DefaultRetries}
}

// SendAndAwait transmits via send, then waits on src for an item satisfying
// match. On timeout it calls send again (up to Retries additional times)
// and waits again. It returns nil as soon as match is satisfied, or
// ErrTimeout once every attempt has failed. label is used only for log
// lines.
func (c Coordinator) SendAndAwait(send func() error, src Source, match func([]byte) bool, label string) error {
	attempts := c.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := send(); err != nil {
			return err
		}
		if attempt > 1 {
			log.Warnf("[retry][%s] retransmitting, attempt %d/%d", label, attempt, attempts)
		}
		deadline := time.Now().Add(c.Timeout)
		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			payload, ok := src.Next(remaining)
			if !ok {
				break
			}
			if match(payload) {
				return nil
			}
		}
	}
	log.Errorf("[retry][%s] exhausted %d attempts without acknowledgement", label, attempts)
	return ErrTimeout
}
