package mesa

// instr_helpers.go collects the small address/operand helpers shared by the
// instr_*.go and esc_*.go families: reading an immediate literal out of the
// code stream, and computing the local/global/MDS addresses the load/store
// families index into. Factoring them here keeps each instruction family's
// file focused on the one opcode group it implements, the same separation
// dispatch.go draws between table plumbing and instruction bodies.
//
// Opcode code-point assignment throughout instr_*.go/esc_*.go is this
// emulator's own numbering, not a reproduction of the original microcode's
// byte values -- nothing in this emulator depends on matching a
// historical Mesa compiler's output, only on the MOP/ESC tables and the
// code that indexes into them agreeing with each other.

// codeByte reads one literal byte from the code stream at the current PC
// and advances PC past it.
func (m *Machine) codeByte() (byte, error) {
	b, pc, err := m.Mem.GetCodeByte(m.CB, m.PC)
	if err != nil {
		return 0, m.abortFault(err)
	}

	m.PC = pc

	return b, nil
}

// codeWord reads one literal word from the code stream at the current PC
// and advances PC past it.
func (m *Machine) codeWord() (Word, error) {
	w, pc, err := m.Mem.GetCodeWord(m.CB, m.PC)
	if err != nil {
		return 0, m.abortFault(err)
	}

	m.PC = pc

	return w, nil
}

// localAddr returns the MDS address of local offset off within the current
// frame.
func (m *Machine) localAddr(off Word) Long {
	return Long(m.MDS) + Long(m.LF) + Long(off)
}

// globalAddr returns the address of global offset off within the current
// global frame.
func (m *Machine) globalAddr(off Word) Long {
	return Long(m.GF) + Long(off)
}

// fetchLocal reads local word off.
func (m *Machine) fetchLocal(off Word) (Word, error) {
	p, err := m.Mem.Fetch(m.localAddr(off))
	if err != nil {
		return 0, err
	}

	return *p, nil
}

// storeLocal writes val into local word off.
func (m *Machine) storeLocal(off Word, val Word) error {
	p, err := m.Mem.Store(m.localAddr(off))
	if err != nil {
		return err
	}

	*p = val

	return nil
}

// fetchGlobal reads global word off.
func (m *Machine) fetchGlobal(off Word) (Word, error) {
	p, err := m.Mem.Fetch(m.globalAddr(off))
	if err != nil {
		return 0, err
	}

	return *p, nil
}

// pushFrom reads the word at va and pushes it, the shared tail of every
// R-family opcode.
func (m *Machine) pushFrom(va Long) error {
	p, err := m.Mem.Fetch(va)
	if err != nil {
		return err
	}

	return m.Push(*p)
}

// popInto pops a word and stores it at va, the shared tail of every
// W-family (non-post-store) opcode.
func (m *Machine) popInto(va Long) error {
	w, err := m.Pop()
	if err != nil {
		return err
	}

	p, err := m.Mem.Store(va)
	if err != nil {
		return err
	}

	*p = w

	return nil
}

// postStoreInto pops the value but leaves the pointer beneath it, per the
// PS-family convention (store then leave the target's pointer for a
// following operation to Recover).
func (m *Machine) postStoreInto(va Long) error {
	w, err := m.Pop()
	if err != nil {
		return err
	}

	p, err := m.Mem.Store(va)
	if err != nil {
		return err
	}

	*p = w

	return m.Push(w)
}
