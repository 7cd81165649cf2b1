package mesa

// regs.go implements the register file and the bounded evaluation stack
// (component C3): the named Pilot registers plus Push/Pop/Discard/Recover
// with overflow/underflow raising StackError.

import (
	"fmt"
	"sync/atomic"
)

// StackDepth is the fixed depth of the evaluation stack (cSS in the Pilot
// Principles of Operation).
const StackDepth = 14

// Registers holds the process-private register file of the machine: PC, CB,
// GF, LF, MDS, PSB, GFI, the bounded evaluation stack and its depth SP, and
// the xfer-trap status shifter XTS.
//
// The shared registers WP, WDC, PTC, IT, MP and PID live alongside the
// process-private registers on [Machine] but are manipulated through atomic
// operations from the timer and interrupt goroutines; see sched.go.
type Registers struct {
	PC  Word // Instruction pointer: byte offset into the code segment at CB.
	CB  Long // Code base: word-aligned virtual address of the code segment.
	GF  Long // Global frame base: virtual address.
	LF  Word // Local frame handle: a pointer into MDS.
	MDS Long // Main data space base.
	PSB Word // Process handle index (Process State Block index).
	GFI Word // Global-frame-table index.
	XTS Word // Xfer-trap-status shifter.

	SP    uint8         // Evaluation stack depth, 0..StackDepth.
	stack [StackDepth]Word
}

// StackError is raised when Push is attempted with a full stack, or Pop
// or Discard with an empty one. It satisfies the abort protocol (see
// errors.go): the interpreter loop catches it, restores PC/SP, and queues
// the sStackError trap handler.
type StackError struct {
	Overflow bool // true on push-to-full, false on pop-from-empty.
	Depth    uint8
}

func (e *StackError) Error() string {
	if e.Overflow {
		return fmt.Sprintf("mesa: stack overflow at depth %d", e.Depth)
	}

	return fmt.Sprintf("mesa: stack underflow at depth %d", e.Depth)
}

// Push places a word on top of the evaluation stack.
func (r *Registers) Push(w Word) error {
	if r.SP >= StackDepth {
		return &StackError{Overflow: true, Depth: r.SP}
	}

	r.stack[r.SP] = w
	r.SP++

	return nil
}

// Pop removes and returns the word on top of the evaluation stack.
func (r *Registers) Pop() (Word, error) {
	if r.SP == 0 {
		return 0, &StackError{Overflow: false, Depth: r.SP}
	}

	r.SP--

	return r.stack[r.SP], nil
}

// Top returns the word on top of the stack without removing it. It is used
// by "post-store" (PS-prefixed) opcodes that leave the pointer on the stack
// for a subsequent Recover.
func (r *Registers) Top() (Word, error) {
	if r.SP == 0 {
		return 0, &StackError{Overflow: false, Depth: r.SP}
	}

	return r.stack[r.SP-1], nil
}

// Discard drops the top n words from the stack.
func (r *Registers) Discard(n uint8) error {
	if uint8(r.SP) < n {
		return &StackError{Overflow: false, Depth: r.SP}
	}

	r.SP -= n

	return nil
}

// Recover is the counterpart to a PS-family store: it re-reads the pointer
// previously left on top of the stack without disturbing stack depth.
func (r *Registers) Recover() (Word, error) {
	return r.Top()
}

// PushLong pushes a double-word value, low word first (at the lower stack
// index), matching the memory layout of double-word memory cells.
func (r *Registers) PushLong(l Long) error {
	if err := r.Push(LowWord(l)); err != nil {
		return err
	}

	if err := r.Push(HighWord(l)); err != nil {
		// Undo the first push so the stack depth invariant holds for the
		// caller's Abort/restore path.
		r.SP--
		return err
	}

	return nil
}

// PopLong pops a double-word value pushed by PushLong.
func (r *Registers) PopLong() (Long, error) {
	high, err := r.Pop()
	if err != nil {
		return 0, err
	}

	low, err := r.Pop()
	if err != nil {
		return 0, err
	}

	return JoinWords(low, high), nil
}

// SharedRegisters holds the registers accessed by more than one goroutine:
// the wakeup-pending mask, the wakeup-disable counter, the process-timeout
// counter, the interval timer and the maintenance panel. All fields are
// manipulated exclusively through atomic operations so that the processor,
// timer and interrupt goroutines never need a mutex to coordinate (see
// sched.go for the protocol).
type SharedRegisters struct {
	wp  atomic.Uint32 // Wakeup-pending, OR-mask; only the low 16 bits are used.
	wdc atomic.Int32  // Wakeup-disable counter, >= 0.
	ptc atomic.Uint32 // Process-timeout counter, 16-bit, skips zero.
	it  atomic.Uint32 // Interval timer, in milliseconds.
	mp  atomic.Uint32 // Maintenance panel, observable.

	rescheduleInterrupt atomic.Bool
	rescheduleTimer     atomic.Bool

	mpObserver atomic.Pointer[func(Word)]
}

// WP returns the current wakeup-pending mask.
func (s *SharedRegisters) WP() Word { return Word(s.wp.Load()) }

// WPPending reports whether any bit is set in the wakeup-pending mask.
func (s *SharedRegisters) WPPending() bool { return s.wp.Load() != 0 }

// NotifyInterrupt atomically ORs sel into WP and reports whether it turned
// on a bit that was previously clear; the interrupt goroutine only needs to
// wake the processor when that is true, which is what lets concurrent
// notifications coalesce cheaply.
func (s *SharedRegisters) NotifyInterrupt(sel Word) (wasClear bool) {
	for {
		old := s.wp.Load()
		next := old | uint32(sel)

		if old == next {
			return false
		}

		if s.wp.CompareAndSwap(old, next) {
			return old&uint32(sel) == 0
		}
	}
}

// ClearWP atomically clears the bits in sel from WP and returns the value
// prior to clearing.
func (s *SharedRegisters) ClearWP(sel Word) Word {
	for {
		old := s.wp.Load()
		next := old &^ uint32(sel)

		if s.wp.CompareAndSwap(old, next) {
			return Word(old)
		}
	}
}

// EI (enable interrupts) decrements the wakeup-disable counter.
func (s *SharedRegisters) EI() { s.wdc.Add(-1) }

// DI (disable interrupts) increments the wakeup-disable counter.
func (s *SharedRegisters) DI() { s.wdc.Add(1) }

// WDC returns the current wakeup-disable counter.
func (s *SharedRegisters) WDC() Word { return Word(s.wdc.Load()) }

// InterruptsEnabled reports whether WDC is zero.
func (s *SharedRegisters) InterruptsEnabled() bool { return s.wdc.Load() == 0 }

// TickPTC increments the process-timeout counter, skipping zero (0 -> 1),
// matching the source's timer semantics. It is only called by the timer
// goroutine, and only while interrupts are enabled.
func (s *SharedRegisters) TickPTC() Word {
	for {
		old := s.ptc.Load()
		next := old + 1
		if next == 0 {
			next = 1
		}

		if s.ptc.CompareAndSwap(old, next) {
			return Word(next)
		}
	}
}

// PTC returns the current process-timeout counter.
func (s *SharedRegisters) PTC() Word { return Word(s.ptc.Load()) }

// IT returns the interval timer value in milliseconds.
func (s *SharedRegisters) IT() Word { return Word(s.it.Load()) }

// SetIT sets the interval timer value.
func (s *SharedRegisters) SetIT(v Word) { s.it.Store(uint32(v)) }

// MP returns the maintenance panel value.
func (s *SharedRegisters) MP() Word { return Word(s.mp.Load()) }

// SetMP sets the maintenance panel value and invokes the observer hook, if
// one is registered, so that a host can implement stop-at-MP-value
// breakpoint behavior (see §5, top-level stop()).
func (s *SharedRegisters) SetMP(v Word) {
	s.mp.Store(uint32(v))

	if fn := s.mpObserver.Load(); fn != nil {
		(*fn)(v)
	}
}

// ObserveMP registers a callback invoked every time MP changes.
func (s *SharedRegisters) ObserveMP(fn func(Word)) {
	s.mpObserver.Store(&fn)
}

// RequestReschedule* and Consume* implement the two reschedule-request
// latches described in §5: set by the interrupt/timer goroutines, consumed
// together by Reschedule.
func (s *SharedRegisters) RequestRescheduleInterrupt() { s.rescheduleInterrupt.Store(true) }
func (s *SharedRegisters) RequestRescheduleTimer()     { s.rescheduleTimer.Store(true) }

// ConsumeRescheduleRequests atomically clears both reschedule-request
// flags and returns their prior values.
func (s *SharedRegisters) ConsumeRescheduleRequests() (interrupt, timer bool) {
	interrupt = s.rescheduleInterrupt.Swap(false)
	timer = s.rescheduleTimer.Swap(false)

	return interrupt, timer
}

// PID holds the four-word processor identity, set during boot from the
// configured Ethernet address (see boot.go).
type PID [4]Word
