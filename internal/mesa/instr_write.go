package mesa

// instr_write.go implements the W/PS (write / post-store) opcode family:
// popping a value (and for the indirect forms, a pointer) and storing it.
// The PS- variants are "post-store": after storing, they push the value
// back so a following opcode can pick it up with Recover without the
// pointer already having been consumed, the pattern compilers use to chain
// a store onto the tail of an expression whose value is still needed.

const (
	mopW0 byte = 0x2e + iota
	mopWB
	mopPSB
	mopWLB
	mopPSLB
	mopWD
	mopPSD
	mopWDL
	mopPSDL
	mopWLIP
	mopWLILP
	mopWLDIL
)

func init() {
	registerOpcode(true, mopW0, tableMop, "W0", func(m *Machine) error {
		return m.popInto(m.localAddr(0))
	})

	registerOpcode(true, mopWB, tableMop, "WB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.popInto(m.localAddr(Word(b)))
	})

	registerOpcode(true, mopPSB, tableMop, "PSB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.postStoreInto(m.localAddr(Word(b)))
	})

	registerOpcode(true, mopWLB, tableMop, "WLB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.popLocalLong(Word(b))
	})

	registerOpcode(true, mopPSLB, tableMop, "PSLB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		l, err := m.top2Long()
		if err != nil {
			return err
		}

		if err := m.popLocalLong(Word(b)); err != nil {
			return err
		}

		return m.PushLong(l)
	})

	registerOpcode(true, mopWD, tableMop, "WD", func(m *Machine) error {
		ptr, err := m.popPointer()
		if err != nil {
			return err
		}

		return m.popInto(Long(m.MDS) + Long(ptr))
	})

	registerOpcode(true, mopPSD, tableMop, "PSD", func(m *Machine) error {
		ptr, err := m.popPointer()
		if err != nil {
			return err
		}

		return m.postStoreInto(Long(m.MDS) + Long(ptr))
	})

	registerOpcode(true, mopWDL, tableMop, "WDL", func(m *Machine) error {
		ptr, err := m.popPointer()
		if err != nil {
			return err
		}

		return m.popIndirectLong(ptr)
	})

	registerOpcode(true, mopPSDL, tableMop, "PSDL", func(m *Machine) error {
		ptr, err := m.popPointer()
		if err != nil {
			return err
		}

		l, err := m.top2Long()
		if err != nil {
			return err
		}

		if err := m.popIndirectLong(ptr); err != nil {
			return err
		}

		return m.PushLong(l)
	})

	// WLIP/WLILP/WLDIL store through a pointer that is itself held in a
	// local slot (write-local-indirect-pointer), rather than one left on
	// the evaluation stack by the caller: the byte literal names the local
	// slot holding the pointer, not the destination offset directly.
	registerOpcode(true, mopWLIP, tableMop, "WLIP", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		ptr, err := m.fetchLocal(Word(b))
		if err != nil {
			return err
		}

		return m.popInto(Long(m.MDS) + Long(ptr))
	})

	registerOpcode(true, mopWLILP, tableMop, "WLILP", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		ptr, err := m.fetchLocal(Word(b))
		if err != nil {
			return err
		}

		return m.popIndirectLong(ptr)
	})

	registerOpcode(true, mopWLDIL, tableMop, "WLDIL", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		low, err := m.fetchLocal(Word(b))
		if err != nil {
			return err
		}

		high, err := m.fetchLocal(Word(b) + 1)
		if err != nil {
			return err
		}

		ptr := JoinWords(low, high)

		return m.popInto(Long(m.MDS) + Long(LowWord(ptr)))
	})
}

// popLocalLong pops a double word and stores it at local offset off, low
// word first.
func (m *Machine) popLocalLong(off Word) error {
	l, err := m.PopLong()
	if err != nil {
		return err
	}

	if err := m.storeLocal(off, LowWord(l)); err != nil {
		return err
	}

	return m.storeLocal(off+1, HighWord(l))
}

// popIndirectLong pops a double word and stores it at MDS pointer ptr.
func (m *Machine) popIndirectLong(ptr Word) error {
	l, err := m.PopLong()
	if err != nil {
		return err
	}

	va := Long(m.MDS) + Long(ptr)

	p0, err := m.Mem.Store(va)
	if err != nil {
		return err
	}

	*p0 = LowWord(l)

	p1, err := m.Mem.Store(va + 1)
	if err != nil {
		return err
	}

	*p1 = HighWord(l)

	return nil
}

// popPointer pops the MDS pointer the WD/PSD/WDL/PSDL family indirects
// through.
func (m *Machine) popPointer() (Word, error) { return m.Pop() }

// top2Long reads the top two stack words as a double word without popping
// them, for the PS-long variants that must re-push the value they stored.
func (m *Machine) top2Long() (Long, error) {
	if m.SP < 2 {
		return 0, &StackError{Overflow: false, Depth: m.SP}
	}

	low := m.stack[m.SP-2]
	high := m.stack[m.SP-1]

	return JoinWords(low, high), nil
}
