package checkout

import (
	"context"
	"errors"
	"time"
)

// Backoff retries only ErrProviderUnavailable. Every other failure is
// returned on the first attempt.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

var DefaultBackoff = Backoff{Attempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second}

func (b Backoff) Do(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := b.Initial

	var (
		res Result
		err error
	)
	for i := 0; i < attempts; i++ {
		res, err = fn(ctx)
		if err == nil || !errors.Is(err, ErrProviderUnavailable) || i == attempts-1 {
			return res, err
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return res, err
		case <-t.C:
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
	return res, err
}
