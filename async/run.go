package async

import (
	"context"
	"time"

	"github.com/speechflow/speechflow/errs"
)

// Action is a unit of work that may fail.
type Action func() error

// Run executes action, tagging any failure (including a recovered panic)
// with desc via errs.Ensure, invoking recover if non-nil on failure, and
// always invoking finally on every exit path.
func Run(desc string, action Action, recover_ func(*errs.Error), finally func()) (err error) {
	if finally != nil {
		defer finally()
	}
	defer func() {
		if r := recover(); r != nil {
			wrapped := errs.Ensure(r, desc)
			err = wrapped
			if recover_ != nil {
				recover_(wrapped)
			}
		}
	}()

	if e := action(); e != nil {
		wrapped := errs.Ensure(e, desc)
		if recover_ != nil {
			recover_(wrapped)
		}
		return wrapped
	}
	return nil
}

// Runner returns a bound, described version of action for repeated
// invocation with the same description and recovery/finally behavior.
func Runner(desc string, action Action, recover_ func(*errs.Error), finally func()) func() error {
	return func() error {
		return Run(desc, action, recover_, finally)
	}
}

// Sleep is a cooperative, context-cancelable delay.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
