package mesa

// instr_call.go implements the procedure call/return opcodes and the ESC
// bridge. EFC (external function call) resolves a global frame table entry
// number n embedded in the opcode or following literal and calls through
// it via the existing [Machine.XFER]; LFC/SFC resolve a link through a
// local or stack-supplied procedure descriptor; RET returns; KFCB reads the
// frame's own code base; XE/XF are the raw "xfer existing link"/"xfer
// fetched link" primitives compiled code uses when it already has a
// control link value rather than a GFT index.

const (
	mopEFC0 byte = 0x4b + iota
	mopEFC1
	mopEFC2
	mopEFC3
	mopEFC4
	mopEFC5
	mopEFC6
	mopEFC7
	mopEFC8
	mopEFC9
	mopEFC10
	mopEFC11
	mopEFC12
	mopEFCB
	mopLFC
	mopSFC
	mopRET
	mopKFCB
	mopXE
	mopXF
	mopESC
	mopESCL
)

func init() {
	for n := Word(0); n <= 12; n++ {
		n := n
		registerOpcode(true, mopEFC0+byte(n), tableMop, mnemonicEFCn(n), func(m *Machine) error {
			return m.externalCall(n)
		})
	}

	registerOpcode(true, mopEFCB, tableMop, "EFCB", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		return m.externalCall(Word(b))
	})

	// LFC: local function call -- the procedure descriptor (a frame-tagged
	// control link) lives in a local slot named by the following byte.
	registerOpcode(true, mopLFC, tableMop, "LFC", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		low, err := m.fetchLocal(Word(b))
		if err != nil {
			return err
		}

		high, err := m.fetchLocal(Word(b) + 1)
		if err != nil {
			return err
		}

		return m.Call(ControlLink(JoinWords(low, high)))
	})

	// SFC: stack function call -- the control link is popped off the
	// evaluation stack.
	registerOpcode(true, mopSFC, tableMop, "SFC", func(m *Machine) error {
		link, err := m.PopLong()
		if err != nil {
			return err
		}

		return m.Call(ControlLink(link))
	})

	registerOpcode(true, mopRET, tableMop, "RET", func(m *Machine) error {
		return m.procedureReturn()
	})

	registerOpcode(true, mopKFCB, tableMop, "KFCB", func(m *Machine) error {
		return m.PushLong(m.CB)
	})

	// XE: transfer through a TransferDescriptor held in the local frame at
	// the following code byte, without freeing the current frame. XE is
	// the tail of a trap handler, which is expected to still hold WDC
	// disabled from its prologue; finding it already zero is an
	// inconsistency and raises InterruptError instead of re-enabling.
	registerOpcode(true, mopXE, tableMop, "XE", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		td, err := m.fetchTransferDescriptor(Word(b))
		if err != nil {
			return err
		}

		if err := m.XFER(td.dst, td.src, XferCall, false); err != nil {
			return err
		}

		if m.Shared.WDC() == 0 {
			return m.InterruptErrorRaise()
		}

		m.Shared.EI()

		return nil
	})

	// XF: transfer through a TransferDescriptor held in the local frame at
	// the following code byte, freeing the current frame.
	registerOpcode(true, mopXF, tableMop, "XF", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		td, err := m.fetchTransferDescriptor(Word(b))
		if err != nil {
			return err
		}

		return m.XFER(td.dst, td.src, XferCall, true)
	})

	registerOpcode(true, mopESC, tableMop, "ESC", func(m *Machine) error {
		return m.DispatchEsc()
	})

	// ESCL is a second ESC prefix byte reserved for a future larger
	// secondary opcode space; today it behaves identically to ESC.
	registerOpcode(true, mopESCL, tableMop, "ESCL", func(m *Machine) error {
		return m.DispatchEsc()
	})
}

// TransferDescriptor is the three-word record XE/XF read out of the local
// frame: a control link (dst, a double word) followed by the src word
// XFER reports as the new frame's sponsor, mirroring the original's
// TransferDescriptor{dst, src} layout.
type TransferDescriptor struct {
	dst ControlLink
	src Word
}

const (
	tdDst = 0 // double word
	tdSrc = 2
)

// fetchTransferDescriptor reads the TransferDescriptor at local offset off,
// the shared decoding XE and XF perform on their code-byte operand.
func (m *Machine) fetchTransferDescriptor(off Word) (TransferDescriptor, error) {
	dst, err := m.Mem.ReadDbl(m.localAddr(off + tdDst))
	if err != nil {
		return TransferDescriptor{}, err
	}

	src, err := m.fetchLocal(off + tdSrc)
	if err != nil {
		return TransferDescriptor{}, err
	}

	return TransferDescriptor{dst: ControlLink(dst), src: src}, nil
}

func mnemonicEFCn(n Word) string {
	names := [...]string{
		"EFC0", "EFC1", "EFC2", "EFC3", "EFC4", "EFC5", "EFC6",
		"EFC7", "EFC8", "EFC9", "EFC10", "EFC11", "EFC12",
	}

	return names[n]
}

// externalCall resolves global-frame-table entry n's new-procedure
// descriptor and calls through it. Entry n's control link is conventionally
// stored in the global frame as a double word at word offset n*2 (a compiler-maintained
// procedure table), mirroring how LAn/GAn address small fixed offsets.
func (m *Machine) externalCall(n Word) error {
	low, err := m.fetchGlobal(n * 2)
	if err != nil {
		return err
	}

	high, err := m.fetchGlobal(n*2 + 1)
	if err != nil {
		return err
	}

	return m.Call(ControlLink(JoinWords(low, high)))
}

// procedureReturn implements RET: transfer to the current frame's return
// link (src passed as XferReturn carries no new src), freeing the
// returning frame.
func (m *Machine) procedureReturn() error {
	p, err := m.Mem.Fetch(Long(m.MDS) + Long(m.LF) + loReturnLink)
	if err != nil {
		return err
	}

	link := NewControlLink(LinkFrame, *p, 0)

	return m.XFER(link, 0, XferReturn, true)
}
