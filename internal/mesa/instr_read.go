package mesa

// instr_read.go implements the R/RL/RD/RDL (read) opcode family: pushing
// the contents of a local slot, a local double-word, or a slot reached
// through an indirect pointer already on the stack.

const (
	mopR0 byte = 0x1d + iota
	mopR1
	mopR2
	mopR3
	mopR4
	mopR5
	mopR6
	mopR7
	mopR8
	mopR9
	mopRB
	mopRL0
	mopRLB
	mopRD0
	mopRDB
	mopRDL0
	mopRDLB
)

func init() {
	for n := Word(0); n <= 9; n++ {
		n := n
		registerOpcode(true, mopR0+byte(n), tableMop, mnemonicRn(n), func(m *Machine) error {
			return m.pushFrom(m.localAddr(n))
		})
	}

	registerOpcode(true, mopRB, tableMop, "RB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.pushFrom(m.localAddr(Word(b)))
	})

	registerOpcode(true, mopRL0, tableMop, "RL0", func(m *Machine) error {
		return m.pushLocalLong(0)
	})

	registerOpcode(true, mopRLB, tableMop, "RLB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.pushLocalLong(Word(b))
	})

	registerOpcode(true, mopRD0, tableMop, "RD0", func(m *Machine) error {
		return m.readIndirect(0)
	})

	registerOpcode(true, mopRDB, tableMop, "RDB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.readIndirect(Word(b))
	})

	registerOpcode(true, mopRDL0, tableMop, "RDL0", func(m *Machine) error {
		return m.readIndirectLong(0)
	})

	registerOpcode(true, mopRDLB, tableMop, "RDLB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.readIndirectLong(Word(b))
	})
}

func mnemonicRn(n Word) string {
	names := [...]string{"R0", "R1", "R2", "R3", "R4", "R5", "R6", "R7", "R8", "R9"}
	return names[n]
}

// pushLocalLong pushes the double word at local offset off, low word first.
func (m *Machine) pushLocalLong(off Word) error {
	low, err := m.fetchLocal(off)
	if err != nil {
		return err
	}

	high, err := m.fetchLocal(off + 1)
	if err != nil {
		return err
	}

	return m.PushLong(JoinWords(low, high))
}

// readIndirect pops a pointer off the stack and pushes the word at
// pointer+off within MDS.
func (m *Machine) readIndirect(off Word) error {
	ptr, err := m.Pop()
	if err != nil {
		return err
	}

	return m.pushFrom(Long(m.MDS) + Long(ptr) + Long(off))
}

// readIndirectLong pops a pointer off the stack and pushes the double word
// at pointer+off within MDS.
func (m *Machine) readIndirectLong(off Word) error {
	ptr, err := m.Pop()
	if err != nil {
		return err
	}

	va := Long(m.MDS) + Long(ptr) + Long(off)

	low, err := m.Mem.Fetch(va)
	if err != nil {
		return err
	}

	high, err := m.Mem.Fetch(va + 1)
	if err != nil {
		return err
	}

	return m.PushLong(JoinWords(*low, *high))
}
