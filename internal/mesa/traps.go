package mesa

// traps.go implements component C5's trap half: the Trap/TrapZero/TrapOne/
// TrapTwo helper hierarchy and the eighteen named trap routines, following
// Opcode_control.cpp.

// Trap reads the control link stored at ptr (within MDS), restores PC/SP
// to the values saved at the start of the current instruction, records
// the resumption PC in the current frame if it is valid, and transfers
// control to the handler.
func (m *Machine) Trap(ptr Long) error {
	link, err := m.Mem.ReadDbl(ptr)
	if err != nil {
		return err
	}

	m.PC = m.savedPC
	m.SP = m.savedSP

	if m.validContext() {
		p, err := m.Mem.Store(Long(m.MDS) + Long(m.LF) + loPC)
		if err != nil {
			return err
		}

		*p = m.PC
	}

	return m.XFER(ControlLink(link), m.LF, XferTrap, false)
}

// validContext reports whether the current frame is one a trap handler
// may safely record a resumption PC into.
func (m *Machine) validContext() bool { return m.LF != 0 }

// TrapZero transfers to a trap handler taking no parameters.
func (m *Machine) TrapZero(ptr Long) error {
	if err := m.Trap(ptr); err != nil {
		return err
	}

	return ErrAborted
}

// TrapOne transfers to a trap handler taking one word parameter, stored
// at the new frame's first local.
func (m *Machine) TrapOne(ptr Long, parameter Word) error {
	if err := m.Trap(ptr); err != nil {
		return err
	}

	p, err := m.Mem.Store(Long(m.MDS) + Long(m.LF))
	if err != nil {
		return err
	}

	*p = parameter

	return ErrAborted
}

// TrapTwo transfers to a trap handler taking one double-word parameter.
func (m *Machine) TrapTwo(ptr Long, parameter Long) error {
	if err := m.Trap(ptr); err != nil {
		return err
	}

	p0, err := m.Mem.Store(Long(m.MDS) + Long(m.LF))
	if err != nil {
		return err
	}

	*p0 = LowWord(parameter)

	p1, err := m.Mem.Store(Long(m.MDS) + Long(m.LF) + 1)
	if err != nil {
		return err
	}

	*p1 = HighWord(parameter)

	return ErrAborted
}

// sdTrap returns the MDS address of the control link for SD-resident trap
// index idx.
func sdTrap(idx Word) Long { return Long(mSD) + Long(idx) }

// ettTrap returns the MDS address of the control link for ETT-resident
// escape-opcode trap code.
func ettTrap(code Word) Long { return Long(mETT) + Long(code)*2 }

// BoundsTrapRaise is raised by field and index opcodes when a computed
// index falls outside its declared bound.
func (m *Machine) BoundsTrapRaise() error { return m.TrapZero(sdTrap(sBoundsTrap)) }

// BreakTrapRaise raises the break trap; no opcode in this emulator calls it.
func (m *Machine) BreakTrapRaise() error { return m.TrapZero(sdTrap(sBreakTrap)) }

// CodeTrap is raised when XFER finds an odd code-base pointer, meaning the
// target global frame's code segment has been swapped out.
func (m *Machine) CodeTrap(gfi Word) error { return m.TrapOne(sdTrap(sCodeTrap), gfi) }

// ControlTrap is raised when XFER resolves a zero frame-link.
func (m *Machine) ControlTrap(src Word) error { return m.TrapOne(sdTrap(sControlTrap), src) }

// DivCheckTrapRaise is raised by the integer divide opcodes on overflow.
func (m *Machine) DivCheckTrapRaise() error { return m.TrapZero(sdTrap(sDivCheckTrap)) }

// DivZeroTrapRaise is raised by the integer divide opcodes on a zero
// divisor.
func (m *Machine) DivZeroTrapRaise() error { return m.TrapZero(sdTrap(sDivZeroTrap)) }

// EscOpcodeTrapRaise is raised by the ESC dispatch table's default entry
// when the dispatched ESC opcode has no implementation registered.
func (m *Machine) EscOpcodeTrapRaise(code Word) error {
	return m.TrapOne(ettTrap(code), code)
}

// InterruptErrorRaise is raised by the interrupt-enabling xfer opcode in
// instr_call.go when it finds WDC already zero.
func (m *Machine) InterruptErrorRaise() error { return m.TrapZero(sdTrap(sInterruptError)) }

// OpcodeTrapRaise is raised by the MOP dispatch table's default entry when
// the dispatched MOP opcode has no implementation registered.
func (m *Machine) OpcodeTrapRaise(code Word) error {
	return m.TrapOne(sdTrap(sOpcodeTrap), code)
}

// PointerTrapRaise is raised on a nil-pointer check failure (NILCK family).
func (m *Machine) PointerTrapRaise() error { return m.TrapZero(sdTrap(sPointerTrap)) }

// ProcessTrapRaise is raised by process-management opcodes on an invalid
// process handle.
func (m *Machine) ProcessTrapRaise() error { return m.TrapZero(sdTrap(sProcessTrap)) }

// RescheduleErrorRaise is raised when the scheduler detects an
// unschedulable state (every process blocked with no pending wakeup).
func (m *Machine) RescheduleErrorRaise() error { return m.TrapZero(sdTrap(sRescheduleError)) }

// StackErrorTrap is raised by Push/Pop/Discard on overflow or underflow.
// Named with a Trap suffix to avoid colliding with the StackError type in
// regs.go.
func (m *Machine) StackErrorTrap() error { return m.TrapZero(sdTrap(sStackError)) }

// PageFaultTrap unwinds the faulting instruction and transfers to the
// guest's page-fault handler with the faulting virtual address as its
// parameter, so the handler can bring the page in and resume.
func (m *Machine) PageFaultTrap(va Long) error { return m.TrapTwo(sdTrap(sPageFault), va) }

// WriteProtectFaultTrap is PageFaultTrap's counterpart for a store through
// a protected page.
func (m *Machine) WriteProtectFaultTrap(va Long) error {
	return m.TrapTwo(sdTrap(sWriteProtectFault), va)
}

// FrameFaultTrap unwinds to the guest's allocation-vector handler with the
// exhausted free-list's frame-size index, so it can grow the list and
// resume.
func (m *Machine) FrameFaultTrap(fsi Word) error { return m.TrapOne(sdTrap(sFrameFault), fsi) }

// UnboundTrap is raised when XFER resolves a zero global frame, GFI or PC.
func (m *Machine) UnboundTrap(dst ControlLink) error {
	return m.TrapTwo(sdTrap(sUnboundTrap), Long(dst))
}

// HardwareErrorRaise is raised by an agent or device driver on a detected
// hardware inconsistency.
func (m *Machine) HardwareErrorRaise() error { return m.TrapZero(sdTrap(sHardwareError)) }

// trapTwoXfer raises the xfer trap from checkForXferTraps, carrying the
// destination link and the transfer type that produced it.
func (m *Machine) trapTwoXfer(idx Word, dst ControlLink, typ XferType) error {
	if err := m.Trap(sdTrap(idx)); err != nil {
		return err
	}

	p0, err := m.Mem.Store(Long(m.MDS) + Long(m.LF))
	if err != nil {
		return err
	}

	*p0 = LowWord(Long(dst))

	p1, err := m.Mem.Store(Long(m.MDS) + Long(m.LF) + 1)
	if err != nil {
		return err
	}

	*p1 = HighWord(Long(dst))

	p2, err := m.Mem.Store(Long(m.MDS) + Long(m.LF) + 2)
	if err != nil {
		return err
	}

	*p2 = Word(typ)

	return ErrAborted
}
