package mesa

// sched.go implements component C6: the three-thread cooperative scheduler
// described in §5. The processor goroutine (Machine.Run's loop) never
// blocks mid-instruction; the timer and interrupt goroutines here only
// flip atomic cells on SharedRegisters and let the processor poll them at
// well-defined points, matching the single-mutex, two-atomic-flag design
// the design notes call out over the double-locking variant.

import (
	"context"
	"sync"
	"time"
)

// maxProcesses bounds the scheduler's process table. The Pilot PDA itself
// is sized by configuration; this emulator picks a fixed, generous bound
// rather than modeling PDA growth.
const maxProcesses = 256

// processEntry is one process's saved context in the process data area:
// its register snapshot, whether it is runnable, and the wakeup mask it is
// blocked on when it is not.
type processEntry struct {
	used     bool
	ready    bool
	waitMask Word
	timeout  Word // PTC value at which this process is due to wake, 0 if none.
	regs     Registers
}

// scheduler owns the process table and the timer/interrupt goroutines. It
// is created fresh by Machine.Run and torn down when Run returns, after the
// processor loop has exited; the timer and interrupt goroutines are then
// stopped together, with no order between the two.
type scheduler struct {
	m *Machine

	mu  sync.Mutex
	pda [maxProcesses]processEntry
	cur Word

	tick time.Duration

	intrCh chan struct{}

	wg   sync.WaitGroup
	stopCh chan struct{}
}

func newScheduler(m *Machine) *scheduler {
	s := &scheduler{
		m:      m,
		tick:   cTick * time.Millisecond,
		intrCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}

	s.pda[0] = processEntry{used: true, ready: true}

	return s
}

// start launches the timer and interrupt goroutines. The processor
// goroutine is Machine.Run's own caller; it is not started here.
func (s *scheduler) start(ctx context.Context) {
	s.wg.Add(2)

	go s.timerLoop(ctx)
	go s.interruptLoop(ctx)
}

// stop signals the timer and interrupt goroutines to exit by closing one
// shared channel and waits for both; neither is stopped before the other
// (the processor loop has already returned by the time Run calls this).
func (s *scheduler) stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// timerLoop ticks every cTick milliseconds, advancing PTC only while
// interrupts are enabled; a tick that lands inside a critical section
// (WDC != 0) is simply lost, per §5.
func (s *scheduler) timerLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.m.Shared.InterruptsEnabled() {
				s.m.Shared.TickPTC()
				s.m.Shared.RequestRescheduleTimer()
			}
		}
	}
}

// interruptLoop waits to be woken by notifyInterrupt (via wake) and, once
// woken, records a reschedule request for the processor to consume at its
// next poll point.
func (s *scheduler) interruptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.intrCh:
			s.m.Shared.RequestRescheduleInterrupt()
		}
	}
}

// wake is called by NotifyInterrupt (exposed as Machine.NotifyInterrupt)
// whenever it turns on a WP bit that was previously clear; it unblocks the
// interrupt goroutine without blocking itself, letting repeated
// notifications coalesce into a single reschedule consideration.
func (s *scheduler) wake() {
	select {
	case s.intrCh <- struct{}{}:
	default:
	}
}

// reschedule is polled by the processor loop after every instruction. A
// pending request is only serviced while interrupts are enabled (WDC==0):
// a trap prologue and other WDC-protected critical sections increment WDC
// specifically to keep a reschedule from context-switching away in the
// middle of them, so a nonzero WDC leaves the latches set for the next
// poll once the section completes.
func (s *scheduler) reschedule() error {
	if !s.m.Shared.InterruptsEnabled() {
		return nil
	}

	interrupt, timer := s.m.Shared.ConsumeRescheduleRequests()
	if !interrupt && !timer {
		return nil
	}

	if timer {
		s.TimeoutScan()
	}

	return s.Reschedule(interrupt)
}

// Reschedule is the scheduler's central decision point (§6 of the Pilot
// Principles of Operation, simplified to this emulator's single real
// processor): it looks for a ready process other than the one currently
// running and, if found, context-switches to it. If no process at all is
// ready -- including the current one -- it raises RescheduleError.
func (s *scheduler) Reschedule(fromInterrupt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wakeReady()

	next, ok := s.pickReady()
	if !ok {
		return s.m.RescheduleErrorRaise()
	}

	if next == s.cur {
		return nil
	}

	s.switchTo(next)

	return nil
}

// wakeReady promotes every blocked process whose wait mask intersects the
// current WP to ready, matching "the associated PSB waiting on WP=sel is
// made ready" from the interrupt-delivery scenario (§8).
func (s *scheduler) wakeReady() {
	wp := s.m.Shared.WP()

	for i := range s.pda {
		e := &s.pda[i]
		if e.used && !e.ready && e.waitMask != 0 && e.waitMask&wp != 0 {
			e.ready = true
		}
	}
}

// pickReady returns the lowest-numbered ready process other than the
// current one, falling back to the current process if it is still ready,
// and reports false only when nothing at all is runnable.
func (s *scheduler) pickReady() (Word, bool) {
	for i := range s.pda {
		if Word(i) == s.cur {
			continue
		}

		if e := &s.pda[i]; e.used && e.ready {
			return Word(i), true
		}
	}

	if e := &s.pda[s.cur]; e.used && e.ready {
		return s.cur, true
	}

	return 0, false
}

// switchTo saves the processor's register file into the current process's
// slot, marks it ready (it was merely preempted, not blocked), and loads
// next's saved registers, adopting its PC/GF/LF/MDS/PSB as the spec's
// interrupt-delivery scenario requires.
func (s *scheduler) switchTo(next Word) {
	cur := &s.pda[s.cur]
	cur.regs = s.m.Registers
	cur.ready = true

	s.cur = next
	entry := &s.pda[next]
	s.m.Registers = entry.regs
	entry.ready = false
}

// CreateProcess installs a new process in the process table with regs as
// its initial register snapshot, returning the PSB index it was assigned.
// It is used by boot (the initial Mesa process) and, in a fuller
// implementation, by the process-creation opcodes; reports false if the
// table is full.
func (s *scheduler) CreateProcess(regs Registers) (Word, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.pda {
		if !s.pda[i].used {
			s.pda[i] = processEntry{used: true, ready: true, regs: regs}
			return Word(i), true
		}
	}

	return 0, false
}

// Block marks psb as waiting on waitMask, removing it from the ready set
// until a matching NotifyInterrupt wakes it, or until timeout (a PTC
// value) elapses if nonzero.
func (s *scheduler) Block(psb Word, waitMask Word, timeout Word) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &s.pda[psb]
	e.ready = false
	e.waitMask = waitMask
	e.timeout = timeout
}

// TimeoutScan is invoked by the processor after a timer-driven reschedule
// request: any blocked process whose timeout has elapsed (PTC has reached
// or passed it) is made ready, mirroring the monitor's process-timeout
// bookkeeping.
func (s *scheduler) TimeoutScan() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ptc := s.m.Shared.PTC()

	for i := range s.pda {
		e := &s.pda[i]
		if e.used && !e.ready && e.timeout != 0 && ptcElapsed(e.timeout, ptc) {
			e.ready = true
			e.timeout = 0
		}
	}
}

// ptcElapsed reports whether the 16-bit counter ptc has reached or passed
// due, accounting for the counter's wrap-but-skip-zero behaviour.
func ptcElapsed(due, ptc Word) bool {
	return ptc-due < 0x8000
}

// NotifyInterrupt is the single entry point agent worker goroutines use to
// signal the processor: it ORs sel into WP and, if that turned on a
// previously-clear bit, wakes the interrupt goroutine.
func (m *Machine) NotifyInterrupt(sel Word) {
	if m.Shared.NotifyInterrupt(sel) {
		if m.sched != nil {
			m.sched.wake()
		}
	}
}
