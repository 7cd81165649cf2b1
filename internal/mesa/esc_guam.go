package mesa

// esc_guam.go implements the three escape opcodes specific to this
// emulator's Guam extensions, grounded in the MAPDISPLAY/STOPEMULATOR
// hooks described in §4.2/§6: invoking an agent synchronously, mapping the
// display band, and halting the processor loop cleanly.

const (
	escCALLAGENT byte = 0x26 + iota
	escMAPDISPLAY
	escSTOPEMULATOR
)

func init() {
	registerOpcode(true, escCALLAGENT, tableEsc, "CALLAGENT", func(m *Machine) error {
		idx, err := m.Pop()
		if err != nil {
			return err
		}

		return m.CallAgent(int(idx))
	})

	registerOpcode(true, escMAPDISPLAY, tableEsc, "MAPDISPLAY", func(m *Machine) error {
		pageCount, err := m.Pop()
		if err != nil {
			return err
		}

		rp, err := m.Pop()
		if err != nil {
			return err
		}

		vp, err := m.Pop()
		if err != nil {
			return err
		}

		m.Mem.MapDisplay(vp, rp, uint32(pageCount))

		return nil
	})

	registerOpcode(true, escSTOPEMULATOR, tableEsc, "STOPEMULATOR", func(m *Machine) error {
		m.Stop()
		return nil
	})
}
