package confirm

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type serialized struct {
	inner Prompt
	sem   *semaphore.Weighted
}

// Serialize wraps p so at most one request is outstanding and every request
// is bounded by its timeout. Waiting for the slot counts against the
// timeout. When the deadline passes the caller gets Cancelled; the slot is
// held until the inner prompt actually returns.
func Serialize(p Prompt) Prompt {
	return &serialized{inner: p, sem: semaphore.NewWeighted(1)}
}

func (s *serialized) Confirm(ctx context.Context, req Request) Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Cancelled()
	}

	done := make(chan Result, 1)
	go func() {
		defer s.sem.Release(1)
		done <- s.inner.Confirm(ctx, req)
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		select {
		case r := <-done:
			return r
		default:
			return Cancelled()
		}
	}
}
