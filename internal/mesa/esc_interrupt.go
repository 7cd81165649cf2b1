package mesa

// esc_interrupt.go implements EI/DI, the escape opcodes that manipulate the
// wakeup-disable counter: a simple pass-through to [SharedRegisters], since
// the reschedule check itself happens once per instruction in Machine.Run,
// not inline in these opcodes.

const (
	escEI byte = 0x04 + iota
	escDI
)

func init() {
	registerOpcode(true, escEI, tableEsc, "EI", func(m *Machine) error {
		m.Shared.EI()
		return nil
	})

	registerOpcode(true, escDI, tableEsc, "DI", func(m *Machine) error {
		m.Shared.DI()
		return nil
	})
}
