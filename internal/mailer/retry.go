package mailer

import (
	"context"
	"fmt"
	"time"

	"bbys_backend/platform/logger"

	"github.com/sethvargo/go-retry"
)

// DefaultAttempts bounds the sends of one message on 5xx or transport errors.
const DefaultAttempts = 3

// Retrying retries a sink with exponential backoff while it returns a 5xx
// status or fails before producing one.
type Retrying struct {
	next     Sink
	attempts int
	backoff  time.Duration
	log      *logger.Logger
}

func NewRetrying(next Sink, attempts int, log *logger.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{next: next, attempts: attempts, backoff: 500 * time.Millisecond, log: log}
}

// WithBackoff sets the first delay; it doubles after every attempt.
func (r *Retrying) WithBackoff(d time.Duration) *Retrying {
	if d > 0 {
		r.backoff = d
	}
	return r
}

func (r *Retrying) Send(ctx context.Context, msg Message) (int, error) {
	b := retry.WithMaxRetries(uint64(r.attempts-1), retry.NewExponential(r.backoff))

	var status, attempt int
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		var err error
		status, err = r.next.Send(ctx, msg)
		if !transient(status, err) {
			return err
		}
		if err == nil {
			err = fmt.Errorf("mailer returned status %d", status)
		}
		r.log.Warn("mailer send failed",
			"template_id", msg.TemplateID, "attempt", attempt, "status", status, "error", err)
		return retry.RetryableError(err)
	})
	return status, err
}

func transient(status int, err error) bool {
	if status >= 500 {
		return true
	}
	return status == 0 && err != nil
}
