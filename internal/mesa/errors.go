package mesa

// errors.go implements the two-mechanism error model described in §7:
// Abort unwinds the current instruction and redirects control to a guest
// trap handler; ErrorError is fatal and unwinds out of Run entirely.

import (
	"errors"
	"fmt"
)

// ErrAborted is returned by an opcode implementation after it has already
// redirected control via a trap helper (Trap/TrapZero/TrapOne/TrapTwo).
// Step recognizes it and simply proceeds to the next instruction; it is
// never logged as a failure.
var ErrAborted = errors.New("mesa: aborted")

// ErrStopped names a clean stop. The STOPEMULATOR opcode does not return
// it: it calls Machine.Stop, and Run then returns nil.
var ErrStopped = errors.New("mesa: stopped")

// ErrorError reports a condition the emulator does not consider
// recoverable: a host-detected inconsistency (a malformed GFT entry, an
// out-of-range frame-size index, an I/O error from the underlying memory
// implementation) with no matching guest trap to unwind into. Run logs
// the register file and exits rather than attempting to resume guest
// execution.
type ErrorError struct {
	Reason string
	GFI    Word
	CB     Long
	PC     Word
	Err    error
}

func (e *ErrorError) Error() string {
	return fmt.Sprintf("mesa: fatal: %s (gfi=%s cb=%s pc=%s): %v", e.Reason, e.GFI, e.CB, e.PC, e.Err)
}

func (e *ErrorError) Unwrap() error { return e.Err }

// fatal wraps err into an ErrorError carrying the current register
// snapshot, for an error abortFault doesn't recognize as one of the
// known recoverable fault types.
func (m *Machine) fatal(reason string, err error) error {
	return &ErrorError{
		Reason: reason,
		GFI:    m.GFI,
		CB:     m.CB,
		PC:     m.PC,
		Err:    err,
	}
}

// abortFault turns a memory fault into the matching recoverable trap:
// PageFault, WriteProtectFault and FrameFault all unwind the current
// instruction and transfer to a guest handler via Trap, the same as
// StackError, rather than halting the emulator. Any other error (a
// genuinely unrecoverable host-side condition) is wrapped fatally.
func (m *Machine) abortFault(err error) error {
	var stackErr *StackError
	if errors.As(err, &stackErr) {
		return m.StackErrorTrap()
	}

	var pageFault *PageFault
	if errors.As(err, &pageFault) {
		return m.PageFaultTrap(pageFault.VA)
	}

	var wpFault *WriteProtectFault
	if errors.As(err, &wpFault) {
		return m.WriteProtectFaultTrap(wpFault.VA)
	}

	var frameFault *FrameFault
	if errors.As(err, &frameFault) {
		return m.FrameFaultTrap(frameFault.FSI)
	}

	return m.fatal("unrecoverable fault", err)
}
