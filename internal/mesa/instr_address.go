package mesa

// instr_address.go implements the LA/GA/LGA (load address) opcode family:
// pushing a pointer to a local or global frame slot rather than its
// contents, for code that needs to pass or store the slot's address itself
// (e.g. taking a POINTER TO a local variable).
//
// Global addresses are computed against the low word of GF. GF is carried
// as a full virtual address on [Registers] because XFER needs the whole
// pointer to reach the global frame table, but a Mesa global frame is never
// larger than one 64K space, so truncating to the low word for addressing
// purposes loses nothing a real program can observe.

const (
	mopLA0 byte = 0x10 + iota
	mopLA1
	mopLA2
	mopLA3
	mopLAB
	mopLAW
	mopGA0
	mopGA1
	mopGA2
	mopGA3
	mopGAB
	mopGAW
	mopLGA
)

func init() {
	for n := Word(0); n <= 3; n++ {
		n := n
		registerOpcode(true, mopLA0+byte(n), tableMop, mnemonicLAn(n), func(m *Machine) error {
			return m.Push(m.LF + n)
		})

		registerOpcode(true, mopGA0+byte(n), tableMop, mnemonicGAn(n), func(m *Machine) error {
			return m.Push(LowWord(m.GF) + n)
		})
	}

	registerOpcode(true, mopLAB, tableMop, "LAB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.Push(m.LF + Word(b))
	})

	registerOpcode(true, mopLAW, tableMop, "LAW", func(m *Machine) error {
		w, err := m.codeWord()
		if err != nil {
			return err
		}

		return m.Push(m.LF + w)
	})

	registerOpcode(true, mopGAB, tableMop, "GAB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.Push(LowWord(m.GF) + Word(b))
	})

	registerOpcode(true, mopGAW, tableMop, "GAW", func(m *Machine) error {
		w, err := m.codeWord()
		if err != nil {
			return err
		}

		return m.Push(LowWord(m.GF) + w)
	})

	registerOpcode(true, mopLGA, tableMop, "LGA", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.PushLong(Long(m.GF) + Long(b))
	})
}

func mnemonicLAn(n Word) string {
	names := [...]string{"LA0", "LA1", "LA2", "LA3"}
	return names[n]
}

func mnemonicGAn(n Word) string {
	names := [...]string{"GA0", "GA1", "GA2", "GA3"}
	return names[n]
}
