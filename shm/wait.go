package shm

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

const (
	spinLimit   = 64
	minBackoff  = 10 * time.Microsecond
	maxBackoff  = time.Millisecond
	ctxCheckGap = 16
)

// wait polls ready until it reports true or an error. It spins first and then
// sleeps with an exponential backoff capped at maxBackoff. The wait is on
// wall-clock time. When ctx ends, ready is polled once more and the wait is
// abandoned with ErrPeerStall only if that poll does not settle it.
func wait(ctx context.Context, ready func() (bool, error)) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	backoff := minBackoff
	for i := 0; ; i++ {
		ok, err := ready()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if i < spinLimit {
			if i%ctxCheckGap == 0 {
				if ctx.Err() != nil {
					return lastPoll(ctx, ready)
				}
			}

			runtime.Gosched()
			continue
		}

		if timer == nil {
			timer = time.NewTimer(backoff)
		} else {
			timer.Reset(backoff)
		}

		select {
		case <-ctx.Done():
			return lastPoll(ctx, ready)
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func lastPoll(ctx context.Context, ready func() (bool, error)) error {
	ok, err := ready()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrPeerStall, ctx.Err())
}
