package mesa

// instr_load.go implements the LI (load immediate) opcode family: pushing a
// small constant onto the evaluation stack without touching memory. LI0-LI9
// cover the common small non-negative constants inline in the opcode byte
// itself; LIN1, LIB, LIW, LINB and LIHB cover the wider literal shapes a
// compiler falls back to once the value doesn't fit a single opcode.

const (
	mopLI0 byte = 0x01 + iota
	mopLI1
	mopLI2
	mopLI3
	mopLI4
	mopLI5
	mopLI6
	mopLI7
	mopLI8
	mopLI9
	mopLIN1
	mopLIB
	mopLIW
	mopLINB
	mopLIHB
)

// mopLINI sits outside the LI0-LIHB run above: that run already fills
// 0x01-0x0f and instr_address.go's LA family claims 0x10 onward, so LINI
// is assigned the next byte free across every mop family instead of
// continuing the iota sequence.
const mopLINI byte = 0x61

func init() {
	for n := Word(0); n <= 9; n++ {
		n := n
		registerOpcode(true, mopLI0+byte(n), tableMop, mnemonicLIn(n), func(m *Machine) error {
			return m.Push(n)
		})
	}

	registerOpcode(true, mopLIN1, tableMop, "LIN1", func(m *Machine) error {
		return m.Push(Word(0xffff))
	})

	registerOpcode(true, mopLINI, tableMop, "LINI", func(m *Machine) error {
		return m.Push(Word(0x8000))
	})

	registerOpcode(true, mopLIB, tableMop, "LIB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.Push(Word(b))
	})

	registerOpcode(true, mopLIW, tableMop, "LIW", func(m *Machine) error {
		w, err := m.codeWord()
		if err != nil {
			return err
		}

		return m.Push(w)
	})

	registerOpcode(true, mopLINB, tableMop, "LINB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		w := Word(b)
		w.Sext(8)

		return m.Push(w)
	})

	registerOpcode(true, mopLIHB, tableMop, "LIHB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.Push(Word(b) << 8)
	})
}

func mnemonicLIn(n Word) string {
	names := [...]string{"LI0", "LI1", "LI2", "LI3", "LI4", "LI5", "LI6", "LI7", "LI8", "LI9"}
	return names[n]
}
