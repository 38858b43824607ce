package xctrl

import (
	"context"
	"time"
)

// ListenerMiddleware decorates a Listener (logging, recovery, timeouts).
type ListenerMiddleware func(next Listener) Listener

// Chain composes middlewares around a listener; the first one is the outermost.
func Chain(l Listener, mws ...ListenerMiddleware) Listener {
	if len(mws) == 0 {
		return l
	}
	wrapped := l
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// Recover converts listener panics into errors. The engine recovers panics itself;
// this is for listeners that are also called outside a dispatch.
func Recover() ListenerMiddleware {
	return func(next Listener) Listener {
		return func(ctx context.Context, args ...any) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = panicError(r)
				}
			}()
			return next(ctx, args...)
		}
	}
}

// Timeout bounds a listener's run time. The engine has no timeout of its own: a slow
// listener delays its whole stage. On expiry the listener's context is cancelled and
// context.DeadlineExceeded is returned, which vetoes the dispatch on the pre stage.
func Timeout(d time.Duration) ListenerMiddleware {
	if d <= 0 {
		return func(next Listener) Listener { return next }
	}
	return func(next Listener) Listener {
		return func(ctx context.Context, args ...any) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						errCh <- panicError(r)
					}
				}()
				errCh <- next(tctx, args...)
			}()

			select {
			case <-tctx.Done():
				return tctx.Err()
			case err := <-errCh:
				return err
			}
		}
	}
}
