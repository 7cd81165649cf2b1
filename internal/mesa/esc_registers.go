package mesa

// esc_registers.go implements the escape opcodes that read or write named
// machine registers directly: the process handle, main data space base,
// the shared signalling registers (WP/WDC/PTC/MP), the xfer-trap-status
// shifter and the interval timer. These give the germ and the Pilot kernel
// proper a way to inspect and manipulate the processor state that ordinary
// load/store opcodes can't reach.

const (
	escRRPSB byte = 0x15 + iota
	escWRPSB
	escRRMDS
	escWRMDS
	escRRWP
	escWRWP
	escRRWDC
	escWRWDC
	escRRPTC
	escWRPTC
	escRRXTS
	escWRXTS
	escWRMP
	escRRIT
)

func init() {
	registerOpcode(true, escRRPSB, tableEsc, "RRPSB", func(m *Machine) error {
		return m.Push(m.PSB)
	})

	registerOpcode(true, escWRPSB, tableEsc, "WRPSB", func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}

		m.PSB = v

		return nil
	})

	registerOpcode(true, escRRMDS, tableEsc, "RRMDS", func(m *Machine) error {
		return m.PushLong(m.MDS)
	})

	registerOpcode(true, escWRMDS, tableEsc, "WRMDS", func(m *Machine) error {
		v, err := m.PopLong()
		if err != nil {
			return err
		}

		m.MDS = v

		return nil
	})

	registerOpcode(true, escRRWP, tableEsc, "RRWP", func(m *Machine) error {
		return m.Push(m.Shared.WP())
	})

	// WRWP acknowledges serviced interrupts: the guest writes back the mask
	// of bits it has handled, and those bits are cleared from WP.
	registerOpcode(true, escWRWP, tableEsc, "WRWP", func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}

		m.Shared.ClearWP(v)

		return nil
	})

	registerOpcode(true, escRRWDC, tableEsc, "RRWDC", func(m *Machine) error {
		return m.Push(m.Shared.WDC())
	})

	registerOpcode(true, escWRWDC, tableEsc, "WRWDC", func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}

		for m.Shared.WDC() < v {
			m.Shared.DI()
		}

		for m.Shared.WDC() > v {
			m.Shared.EI()
		}

		return nil
	})

	registerOpcode(true, escRRPTC, tableEsc, "RRPTC", func(m *Machine) error {
		return m.Push(m.Shared.PTC())
	})

	registerOpcode(true, escWRPTC, tableEsc, "WRPTC", func(m *Machine) error {
		_, err := m.Pop()
		if err != nil {
			return err
		}

		// The process-timeout counter only ever advances by TickPTC; a
		// guest write is accepted (operand consumed) but has no effect,
		// matching a free-running counter that can be read but not set.
		return nil
	})

	registerOpcode(true, escRRXTS, tableEsc, "RRXTS", func(m *Machine) error {
		return m.Push(m.XTS)
	})

	registerOpcode(true, escWRXTS, tableEsc, "WRXTS", func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}

		m.XTS = v

		return nil
	})

	registerOpcode(true, escWRMP, tableEsc, "WRMP", func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}

		m.Shared.SetMP(v)

		return nil
	})

	registerOpcode(true, escRRIT, tableEsc, "RRIT", func(m *Machine) error {
		return m.Push(m.Shared.IT())
	})
}
