package xctrl

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotCompanion                = errors.New("xctrl: reset is only available on companion controllers")
	ErrInvalidStage                = errors.New("xctrl: invalid stage")
	ErrInvalidOwner                = errors.New("xctrl: owner must be comparable")
	ErrControllerClosed            = errors.New("xctrl: controller is closed")
	ErrObserverPoolShutdownTimeout = errors.New("xctrl: observer pool shutdown timeout")
	ErrInvalidConfig               = errors.New("xctrl: invalid config")
	ErrLimiterClosed               = errors.New("xctrl: limiter is closed")
)

type ErrUnknownLimiter struct{ name string }

func (e ErrUnknownLimiter) Error() string { return fmt.Sprintf("unknown limiter: %s", e.name) }

// panicError converts a recovered value into an error carrying the panicking stack.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return errors.WithStack(err)
	}
	return errors.Errorf("panic recovered: %v", r)
}
