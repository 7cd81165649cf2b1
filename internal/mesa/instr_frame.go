package mesa

// instr_frame.go implements the remaining local-frame plumbing opcodes:
// store-and-discard pairs (SLDB/SGDB) used to spill a stack value into a
// local or global slot without leaving it on the stack, and the
// pointer/lookup helpers (LLKB/RKIB/RKDIB/LKB) a compiler emits for
// indexing into small local tables.

const (
	mopSLDB byte = 0x45 + iota
	mopSGDB
	mopLLKB
	mopRKIB
	mopRKDIB
	mopLKB
)

func init() {
	// SLDB/SGDB: pop a value and store it at local/global offset b,
	// discarding it -- the non-post-store counterpart of WB/GAB-addressed
	// stores, spelled out as a single opcode because it is common enough
	// in compiled code to be worth not re-deriving from LAB+WD.
	registerOpcode(true, mopSLDB, tableMop, "SLDB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.popInto(m.localAddr(Word(b)))
	})

	registerOpcode(true, mopSGDB, tableMop, "SGDB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.popInto(m.globalAddr(Word(b)))
	})

	// LLKB: push the local pointer LF+b without reading through it --
	// identical to LAB, kept as a distinct mnemonic because compilers use
	// it specifically to build a lookup-key pointer, not a general address.
	registerOpcode(true, mopLLKB, tableMop, "LLKB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.Push(m.LF + Word(b))
	})

	// RKIB: read-key-indexed-byte -- pop an index, read the word at
	// local[b]+index, push it. Used for small inline lookup tables stored
	// in the local frame.
	registerOpcode(true, mopRKIB, tableMop, "RKIB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		idx, err := m.Pop()
		if err != nil {
			return err
		}

		return m.pushFrom(m.localAddr(Word(b) + idx))
	})

	// RKDIB: like RKIB, but the base in local[b] is itself a pointer to
	// chase before indexing.
	registerOpcode(true, mopRKDIB, tableMop, "RKDIB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		idx, err := m.Pop()
		if err != nil {
			return err
		}

		ptr, err := m.fetchLocal(Word(b))
		if err != nil {
			return err
		}

		return m.pushFrom(Long(m.MDS) + Long(ptr) + Long(idx))
	})

	// LKB: push the word at local[b] directly -- the degenerate,
	// index-less case of RKIB, kept distinct because it skips a pop/add.
	registerOpcode(true, mopLKB, tableMop, "LKB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.pushFrom(m.localAddr(Word(b)))
	})
}
