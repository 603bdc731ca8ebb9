package link

import (
	"context"
	"errors"
	"iter"
	"time"
)

// Discover returns a lazy sequence of matching peripherals.
//
// Each range over the sequence starts a new scan; breaking out of the loop
// stops it. The scan ends on its own after timeout (zero means no bound).
// A final (zero, err) pair is yielded when the scan fails; running out the
// timeout is not an error.
func Discover(ctx context.Context, t Transport, filter ScanFilter, timeout time.Duration) iter.Seq2[Peripheral, error] {
	return func(yield func(Peripheral, error) bool) {
		var (
			scanCtx context.Context
			cancel  context.CancelFunc
		)
		if timeout > 0 {
			scanCtx, cancel = context.WithTimeout(ctx, timeout)
		} else {
			scanCtx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		found := make(chan Peripheral, 16)
		done := make(chan error, 1)
		go func() {
			done <- t.Scan(scanCtx, filter, func(p Peripheral) {
				select {
				case found <- p:
				case <-scanCtx.Done():
				}
			})
		}()

		for {
			select {
			case p := <-found:
				if !yield(p, nil) {
					cancel()
					<-done
					return
				}
			case err := <-done:
				// drain what the scanner queued before it returned
			drain:
				for {
					select {
					case p := <-found:
						if !yield(p, nil) {
							return
						}
					default:
						break drain
					}
				}
				if err != nil && !isScanEnd(err) {
					yield(Peripheral{}, err)
				}
				return
			}
		}
	}
}

// isScanEnd reports errors that only mean the scan window closed.
func isScanEnd(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrTimeout)
}
