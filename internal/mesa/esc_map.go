package mesa

// esc_map.go implements the page-map maintenance escape opcodes: SM (set
// map), SMF (set map flags, preserving the current real page) and GMF (get
// map flags). These are the only guest-visible way to install page-map
// entries; the germ's memory manager uses them to map in pages as it loads
// segments during boot.

const (
	escSM byte = 0x01 + iota
	escSMF
	escGMF
)

func init() {
	registerOpcode(true, escSM, tableEsc, "SM", func(m *Machine) error {
		rp, err := m.Pop()
		if err != nil {
			return err
		}

		flags, err := m.Pop()
		if err != nil {
			return err
		}

		vp, err := m.Pop()
		if err != nil {
			return err
		}

		m.Mem.WriteMap(vp, MapFlags(flags), rp)

		return nil
	})

	registerOpcode(true, escSMF, tableEsc, "SMF", func(m *Machine) error {
		flags, err := m.Pop()
		if err != nil {
			return err
		}

		vp, err := m.Pop()
		if err != nil {
			return err
		}

		entry := m.Mem.ReadMap(vp)
		m.Mem.WriteMap(vp, MapFlags(flags), entry.RealPage)

		return nil
	})

	registerOpcode(true, escGMF, tableEsc, "GMF", func(m *Machine) error {
		vp, err := m.Pop()
		if err != nil {
			return err
		}

		entry := m.Mem.ReadMap(vp)

		return m.Push(Word(entry.Flags))
	})
}
