package mesa

// machine.go assembles the virtual memory, register file, dispatch tables
// and scheduler into a single Machine, and drives the instruction cycle.

import (
	"context"
	"fmt"

	"github.com/yokwe/guam-go/internal/log"
)

// Machine is a Guam virtual machine: one emulated Mesa processor together
// with its virtual memory, agents and scheduler.
type Machine struct {
	Registers

	Shared *SharedRegisters
	Mem    *Memory
	PID    PID

	savedPC Word
	savedSP uint8

	mop dispatchTable
	esc dispatchTable

	agents        [maxAgents]*agentSlot
	ioBase, ioNext Long

	sched *scheduler

	stopped    bool
	stopAtMP   Word
	stopAtMPOn bool

	log *log.Logger
}

// OptionFn configures a Machine at construction time, mirroring the
// teacher's functional-options pattern.
type OptionFn func(m *Machine)

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) OptionFn {
	return func(m *Machine) { m.log = l }
}

// WithDisplay reserves and maps the display band at guest virtual page vp.
func WithDisplay(vp Word, width, height uint32) OptionFn {
	return func(m *Machine) {
		rp, _ := m.Mem.ReserveDisplay(width, height)
		pages := m.Mem.displayPages
		m.Mem.MapDisplay(vp, rp, pages)
	}
}

// WithStopAtMP halts Run as soon as the maintenance panel is set to v,
// matching the teacher's debugging affordances.
func WithStopAtMP(v Word) OptionFn {
	return func(m *Machine) {
		m.stopAtMP = v
		m.stopAtMPOn = true
	}
}

// New creates a Machine with vmBits virtual address bits and rmBits real
// memory bits (§6), then applies opts.
func New(vmBits, rmBits uint, opts ...OptionFn) *Machine {
	logger := log.DefaultLogger()

	m := &Machine{
		Shared: &SharedRegisters{},
		Mem:    NewMemory(vmBits, rmBits, logger),
		log:    logger,
	}

	registerOpcodes(m)

	for _, fn := range opts {
		fn(m)
	}

	m.Shared.ObserveMP(func(v Word) {
		if m.stopAtMPOn && v == m.stopAtMP {
			m.stopped = true
		}
	})

	return m
}

func (m *Machine) String() string {
	return fmt.Sprintf(
		"PC: %s CB: %s GF: %s LF: %s MDS: %s PSB: %s GFI: %s XTS: %s SP: %d",
		m.PC, m.CB, m.GF, m.LF, m.MDS, m.PSB, m.GFI, m.XTS, m.SP,
	)
}

// Run drives the instruction cycle until ctx is cancelled, STOPEMULATOR is
// executed, or an unrecoverable error occurs. It starts the timer and
// interrupt goroutines alongside the processor loop; see sched.go.
func (m *Machine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sched := newScheduler(m)
	m.sched = sched
	sched.start(ctx)

	defer func() {
		sched.stop()
		m.sched = nil
	}()

	m.log.Info("START", log.Group("STATE", m))

	var err error

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		default:
		}

		if m.stopped {
			break
		}

		if err = m.Step(); err != nil {
			break
		}

		if err = sched.reschedule(); err != nil {
			if err == ErrAborted { //nolint:errorlint
				err = nil
				continue
			}

			break
		}
	}

	if err != nil {
		m.log.Error("HALTED", "ERR", err, log.Group("STATE", m))
		return err
	}

	m.log.Info("STOPPED", log.Group("STATE", m))

	return nil
}

// Step executes a single MOP instruction to completion, including any ESC
// bridge dispatch and trap redirection it triggers.
func (m *Machine) Step() error {
	m.savedPC = m.PC
	m.savedSP = m.SP

	code, pc, err := m.Mem.GetCodeByte(m.CB, m.PC)
	if err != nil {
		return m.abortFault(err)
	}

	m.PC = pc

	if err := m.dispatch(&m.mop, code); err != nil {
		if err == ErrAborted { //nolint:errorlint
			return nil
		}

		return m.abortFault(err)
	}

	return nil
}

// dispatch looks up and invokes the handler for code in table, counting
// the execution in table's stats after the handler returns successfully.
// Aborted instructions (traps, faults) are not counted, matching the
// source's "we don't count ABORTED instruction" comment.
func (m *Machine) dispatch(table *dispatchTable, code byte) error {
	table.last = int16(code)

	err := table.fns[code](m)

	table.last = -1

	if err == nil {
		table.stats[code]++
	}

	return err
}

// DispatchEsc is the ESC bridge: MOP code 0x5f (the conventional ESC
// prefix byte) reads one more code byte and dispatches it through the
// secondary table.
func (m *Machine) DispatchEsc() error {
	code, pc, err := m.Mem.GetCodeByte(m.CB, m.PC)
	if err != nil {
		return m.abortFault(err)
	}

	m.PC = pc

	return m.dispatch(&m.esc, code)
}

// LastOpcodeName reports the mnemonic of the instruction currently being
// dispatched, or "*NONE*" between instructions; used for diagnostics.
func (m *Machine) LastOpcodeName() string {
	if m.esc.last >= 0 {
		return m.esc.names[m.esc.last]
	}

	if m.mop.last >= 0 {
		return m.mop.names[m.mop.last]
	}

	return "*NONE*"
}

// Stop implements the STOPEMULATOR opcode: it halts the processor loop on
// the next iteration of Run.
func (m *Machine) Stop() { m.stopped = true }
