package xctrl

import (
	"fmt"

	"github.com/pkg/errors"
)

// Severity distinguishes bug-like vetoes from deliberate control-flow stops.
type Severity uint8

const (
	// SeverityHard is an ordinary error returned by a pre listener. Always logged.
	SeverityHard Severity = iota
	// SeveritySoft is a deliberate stop built with Stop. Logged only when verbose.
	SeveritySoft
)

func (s Severity) String() string {
	if s == SeveritySoft {
		return "soft"
	}
	return "hard"
}

// Veto describes an aborted dispatch.
type Veto struct {
	Reason   any
	Severity Severity
	// Err is the error the pre listener returned.
	Err error
}

func (v *Veto) Error() string {
	if v.Severity == SeveritySoft {
		return fmt.Sprintf("dispatch stopped: %v", v.Reason)
	}
	return fmt.Sprintf("dispatch vetoed: %v", v.Reason)
}

func (v *Veto) Unwrap() error { return v.Err }

// Stop returns a soft veto. Pre listeners return it to cancel a dispatch on purpose.
func Stop(reason any) error {
	return &Veto{Reason: reason, Severity: SeveritySoft}
}

// asVeto classifies a pre-stage error.
func asVeto(err error) *Veto {
	var v *Veto
	if errors.As(err, &v) {
		if v.Err == nil {
			cp := *v
			cp.Err = err
			return &cp
		}
		return v
	}
	return &Veto{Reason: err, Severity: SeverityHard, Err: err}
}

// Outcome is the result of a dispatch: completed with Result, or vetoed.
// Err is set when the controlled function failed or the controller was closed.
type Outcome struct {
	Result any
	Veto   *Veto
	Err    error
}

// Completed reports whether the controlled function ran to success.
func (o Outcome) Completed() bool { return o.Veto == nil && o.Err == nil }

// Vetoed reports whether a pre listener aborted the dispatch.
func (o Outcome) Vetoed() bool { return o.Veto != nil }
