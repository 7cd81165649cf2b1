package mesa

// esc_checks.go implements the nil-pointer and bounds-check escape
// opcodes: NILCK/NILCKL peek the top of stack (without popping, so a
// passing check leaves the value available to the following opcode) and
// raise PointerTrap on a zero pointer; BNDCKL checks a long index against
// a bound and raises BoundsTrap when it is out of range.

const (
	escNILCK byte = 0x23 + iota
	escNILCKL
	escBNDCKL
)

func init() {
	registerOpcode(true, escNILCK, tableEsc, "NILCK", func(m *Machine) error {
		v, err := m.Top()
		if err != nil {
			return err
		}

		if v == 0 {
			return m.PointerTrapRaise()
		}

		return nil
	})

	registerOpcode(true, escNILCKL, tableEsc, "NILCKL", func(m *Machine) error {
		if m.SP < 2 {
			return m.StackErrorTrap()
		}

		l, err := m.top2Long()
		if err != nil {
			return err
		}

		if l == 0 {
			return m.PointerTrapRaise()
		}

		return nil
	})

	registerOpcode(true, escBNDCKL, tableEsc, "BNDCKL", func(m *Machine) error {
		bound, err := m.PopLong()
		if err != nil {
			return err
		}

		index, err := m.PopLong()
		if err != nil {
			return err
		}

		if uint32(index) >= uint32(bound) {
			if err := m.PushLong(index); err != nil {
				return err
			}

			return m.BoundsTrapRaise()
		}

		return m.PushLong(index)
	})
}
