package mesa

// esc_arith.go implements the integer/bitwise arithmetic escape opcodes
// that don't fit a single MOP byte: logical operators on words and double
// words, rotate/shift, double-word multiply, and the signed/unsigned
// divide family with DivZeroTrap/DivCheckTrap on a zero divisor or a
// quotient that overflows its result width.

const (
	escXOR byte = 0x08 + iota
	escDAND
	escDIOR
	escDXOR
	escROTATE
	escDSHIFT
	escLINT
	escDMUL
	escSDIV
	escSDDIV
	escUDIV
	escLUDIV
	escUDDIV
)

func init() {
	registerOpcode(true, escXOR, tableEsc, "XOR", func(m *Machine) error {
		b, err := m.Pop()
		if err != nil {
			return err
		}

		a, err := m.Pop()
		if err != nil {
			return err
		}

		return m.Push(a ^ b)
	})

	registerOpcode(true, escDAND, tableEsc, "DAND", func(m *Machine) error {
		b, err := m.PopLong()
		if err != nil {
			return err
		}

		a, err := m.PopLong()
		if err != nil {
			return err
		}

		return m.PushLong(a & b)
	})

	registerOpcode(true, escDIOR, tableEsc, "DIOR", func(m *Machine) error {
		b, err := m.PopLong()
		if err != nil {
			return err
		}

		a, err := m.PopLong()
		if err != nil {
			return err
		}

		return m.PushLong(a | b)
	})

	registerOpcode(true, escDXOR, tableEsc, "DXOR", func(m *Machine) error {
		b, err := m.PopLong()
		if err != nil {
			return err
		}

		a, err := m.PopLong()
		if err != nil {
			return err
		}

		return m.PushLong(a ^ b)
	})

	registerOpcode(true, escROTATE, tableEsc, "ROTATE", func(m *Machine) error {
		n, err := m.Pop()
		if err != nil {
			return err
		}

		w, err := m.Pop()
		if err != nil {
			return err
		}

		return m.Push(Rotate(w, int(int16(n))))
	})

	registerOpcode(true, escDSHIFT, tableEsc, "DSHIFT", func(m *Machine) error {
		n, err := m.Pop()
		if err != nil {
			return err
		}

		l, err := m.PopLong()
		if err != nil {
			return err
		}

		return m.PushLong(DShift(l, int(int16(n))))
	})

	// LINT: sign-extend a single word into a double word, the inverse of
	// truncating a long result back to a word.
	registerOpcode(true, escLINT, tableEsc, "LINT", func(m *Machine) error {
		w, err := m.Pop()
		if err != nil {
			return err
		}

		l := Long(int32(int16(w)))

		return m.PushLong(l)
	})

	registerOpcode(true, escDMUL, tableEsc, "DMUL", func(m *Machine) error {
		b, err := m.Pop()
		if err != nil {
			return err
		}

		a, err := m.Pop()
		if err != nil {
			return err
		}

		product := int32(int16(a)) * int32(int16(b))

		return m.PushLong(Long(uint32(product)))
	})

	registerOpcode(true, escSDIV, tableEsc, "SDIV", func(m *Machine) error {
		divisor, err := m.Pop()
		if err != nil {
			return err
		}

		dividend, err := m.Pop()
		if err != nil {
			return err
		}

		if divisor == 0 {
			return m.DivZeroTrapRaise()
		}

		a, b := int16(dividend), int16(divisor)
		if a == -32768 && b == -1 {
			return m.DivCheckTrapRaise()
		}

		return m.Push(Word(uint16(a / b)))
	})

	registerOpcode(true, escSDDIV, tableEsc, "SDDIV", func(m *Machine) error {
		divisor, err := m.Pop()
		if err != nil {
			return err
		}

		dividend, err := m.PopLong()
		if err != nil {
			return err
		}

		if divisor == 0 {
			return m.DivZeroTrapRaise()
		}

		q := int64(int32(dividend)) / int64(int16(divisor))
		if q > 0x7fff || q < -0x8000 {
			return m.DivCheckTrapRaise()
		}

		return m.Push(Word(uint16(int16(q))))
	})

	registerOpcode(true, escUDIV, tableEsc, "UDIV", func(m *Machine) error {
		divisor, err := m.Pop()
		if err != nil {
			return err
		}

		dividend, err := m.Pop()
		if err != nil {
			return err
		}

		if divisor == 0 {
			return m.DivZeroTrapRaise()
		}

		return m.Push(dividend / divisor)
	})

	registerOpcode(true, escLUDIV, tableEsc, "LUDIV", func(m *Machine) error {
		divisor, err := m.Pop()
		if err != nil {
			return err
		}

		dividend, err := m.PopLong()
		if err != nil {
			return err
		}

		if divisor == 0 {
			return m.DivZeroTrapRaise()
		}

		q := uint64(dividend) / uint64(divisor)
		if q > 0xffff {
			return m.DivCheckTrapRaise()
		}

		return m.Push(Word(q))
	})

	registerOpcode(true, escUDDIV, tableEsc, "UDDIV", func(m *Machine) error {
		divisor, err := m.PopLong()
		if err != nil {
			return err
		}

		dividend, err := m.PopLong()
		if err != nil {
			return err
		}

		if divisor == 0 {
			return m.DivZeroTrapRaise()
		}

		return m.PushLong(Long(uint32(dividend) / uint32(divisor)))
	})
}
