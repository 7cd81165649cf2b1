package mesa

// xfer.go implements component C5's control-transfer half: control links,
// frame allocation through the Allocation Vector, and the XFER primitive
// that every call, return and trap funnels through. The algorithm follows
// Opcode_control.cpp's XFER/Alloc/Free.

import "fmt"

// LinkType is the tag carried in the low two bits of a control link's low
// word.
type LinkType uint8

const (
	LinkFrame LinkType = iota
	LinkOldProcedure
	LinkNewProcedure
	LinkIndirect
)

// ControlLink is a tagged reference to a procedure or frame: the low two
// bits of the low word select the variant, per LinkType. For the procedure
// variants the high word carries a PC; for the frame and indirect variants
// only the low word is meaningful.
type ControlLink Long

func (c ControlLink) Tag() LinkType { return LinkType(LowWord(Long(c)) & 0x3) }

// gfOrGFI returns the low word with its tag bits masked off: the GF short
// pointer for an old-style procedure descriptor, or the GFI for a
// new-style one.
func (c ControlLink) gfOrGFI() Word { return LowWord(Long(c)) &^ 0x3 }

// Frame returns the local-frame handle carried by a frame-tagged link.
func (c ControlLink) Frame() Word { return LowWord(Long(c)) &^ 0x3 }

// IndirectPointer returns the MDS-relative pointer an indirect link refers
// to; the double word stored there holds the real control link.
func (c ControlLink) IndirectPointer() Word { return LowWord(Long(c)) &^ 0x3 }

// PC returns the procedure's entry byte-offset, for the procedure variants.
func (c ControlLink) PC() Word { return HighWord(Long(c)) }

// NewControlLink builds a tagged control link from a low word and a PC
// (ignored for the frame and indirect variants).
func NewControlLink(tag LinkType, low, pc Word) ControlLink {
	return ControlLink(JoinWords((low&^0x3)|Word(tag), pc))
}

// XferType classifies why XFER was invoked; it is reported to the guest
// through the xfer-trap mechanism and the trap parameter block.
type XferType uint8

const (
	XferCall XferType = iota
	XferReturn
	XferLocalCall
	XferPort
	XferXferTrap
	XferTrap
	XferProcessSwitch
)

// Frame header layout, in words from LF. The exact field ordering is an
// implementation choice internal to this emulator: guest code never
// addresses these words directly, only through ALLOC/FREE/XFER, so any
// self-consistent layout is observationally correct.
const (
	loWord        = 0 // Packed allocation-size index, used by Free.
	loPC          = 1
	loReturnLink  = 2
	loGlobalLink  = 3
	frameHeaderWords = 4
)

// GFT entry layout, in words from mGFT + gfi*gftEntryWords.
const (
	gftGlobalFrame = 0 // double word
	gftCodeBase    = 2 // double word
	gftEntryWords  = 4
)

// AVItem tags, packed in the low two bits of an AV slot word.
type avItemType uint8

const (
	avEmpty avItemType = iota
	avIndirect
	avFrameHead
)

const fsiSize = 16 // Number of distinct frame-size indices.

// frameWord packs the allocation-size index into a local frame's header
// word, used by Free to return a frame to the right AV slot.
func frameWord(fsi Word) Word { return fsi }

// avSlot returns the pointer to AV slot i within MDS.
func avSlot(i Word) Long { return Long(mAV) + Long(i) }

// Alloc pops a free frame from the free list rooted at AV slot fsi,
// chasing indirect slots, and raises FrameFault when the list is empty.
func (m *Machine) Alloc(fsi Word) (Word, error) {
	if fsi >= fsiSize {
		return 0, fmt.Errorf("mesa: frame-size index %d out of range", fsi)
	}

	slot := fsi

	for {
		p, err := m.Mem.Fetch(Long(m.MDS) + avSlot(slot))
		if err != nil {
			return 0, err
		}

		item := *p
		tag := avItemType(item & 0x3)

		if tag != avIndirect {
			if tag == avEmpty {
				return 0, &FrameFault{FSI: fsi}
			}

			head := item &^ 0x3

			nextP, err := m.Mem.Fetch(Long(m.MDS) + Long(head) + loWord)
			if err != nil {
				return 0, err
			}

			slotP, err := m.Mem.Store(Long(m.MDS) + avSlot(slot))
			if err != nil {
				return 0, err
			}

			*slotP = *nextP

			return head, nil
		}

		next := item &^ 0x3
		if next >= fsiSize {
			return 0, fmt.Errorf("mesa: malformed AV indirect chain at slot %d", slot)
		}

		slot = next
	}
}

// Free returns frame to the AV free list for its allocation-size index.
func (m *Machine) Free(frame Word) error {
	p, err := m.Mem.Fetch(Long(m.MDS) + Long(frame) + loWord)
	if err != nil {
		return err
	}

	fsi := *p & 0xfff

	headP, err := m.Mem.Fetch(Long(m.MDS) + avSlot(fsi))
	if err != nil {
		return err
	}

	frameP, err := m.Mem.Store(Long(m.MDS) + Long(frame))
	if err != nil {
		return err
	}

	*frameP = *headP

	slotP, err := m.Mem.Store(Long(m.MDS) + avSlot(fsi))
	if err != nil {
		return err
	}

	*slotP = Word(avFrameHead) | (frame &^ 0x3)

	return nil
}

// FrameFault is raised when Alloc finds an empty free list; it is handled
// like a trap (the guest's frame-fault handler grows the AV), not a fatal
// error.
type FrameFault struct{ FSI Word }

func (e *FrameFault) Error() string { return fmt.Sprintf("mesa: frame fault, fsi=%d", e.FSI) }

// gftRead reads the double word at the given GFT field offset for gfi.
func (m *Machine) gftRead(gfi Word, field Word) (Long, error) {
	return m.Mem.ReadDbl(mGFT + Long(gfi)*Long(gftEntryWords) + Long(field))
}

// XFER is the single control-transfer primitive: every call, return and
// trap dispatch goes through it. dst is resolved (chasing indirect links),
// the new GF/CB/LF/GFI/PC are established, and the old frame is optionally
// freed (tail calls).
func (m *Machine) XFER(dst ControlLink, src Word, typ XferType, free bool) error {
	if typ == XferTrap && free {
		return fmt.Errorf("mesa: XFER: trap with free set")
	}

	nDst := dst
	pushed := false

	for nDst.Tag() == LinkIndirect {
		if typ == XferTrap {
			return fmt.Errorf("mesa: XFER: trap through indirect link")
		}

		ptr := Long(m.MDS) + Long(nDst.IndirectPointer())

		l, err := m.Mem.ReadDbl(ptr)
		if err != nil {
			return err
		}

		nDst = ControlLink(l)
		pushed = true
	}

	var nGFI, nPC, nLF Word

	switch nDst.Tag() {
	case LinkOldProcedure, LinkNewProcedure:
		if nDst.Tag() == LinkOldProcedure {
			gf := nDst.gfOrGFI()
			if gf == 0 {
				return m.UnboundTrap(dst)
			}

			p, err := m.Mem.Fetch(Long(m.GF) + Long(gf))
			if err != nil {
				return err
			}

			nGFI = *p &^ 0x3
		} else {
			nGFI = nDst.gfOrGFI()
		}

		if nGFI == 0 {
			return m.UnboundTrap(dst)
		}

		gf, err := m.gftRead(nGFI, gftGlobalFrame)
		if err != nil {
			return err
		}

		cb, err := m.gftRead(nGFI, gftCodeBase)
		if err != nil {
			return err
		}

		m.GF = gf
		m.CB = cb

		if cb&1 != 0 {
			if err := m.CodeTrap(nGFI); err != nil {
				return err
			}
		}

		nPC = nDst.PC()
		if nPC == 0 {
			return m.UnboundTrap(dst)
		}

		fsi, err := m.fsiAt(nPC)
		if err != nil {
			return err
		}

		nLF, err = m.Alloc(fsi)
		if err != nil {
			return err
		}

		nPC++

		if err := m.setFrameHeader(nLF, nGFI, src); err != nil {
			return err
		}

	case LinkFrame:
		frame := nDst.Frame()
		if frame == 0 {
			return m.ControlTrap(src)
		}

		nLF = frame

		p, err := m.Mem.Fetch(Long(m.MDS) + Long(nLF) + loGlobalLink)
		if err != nil {
			return err
		}

		nGFI = *p
		if nGFI == 0 {
			return m.UnboundTrap(dst)
		}

		gf, err := m.gftRead(nGFI, gftGlobalFrame)
		if err != nil {
			return err
		}

		cb, err := m.gftRead(nGFI, gftCodeBase)
		if err != nil {
			return err
		}

		m.GF = gf
		m.CB = cb

		if cb&1 != 0 {
			if err := m.CodeTrap(nGFI); err != nil {
				return err
			}
		}

		pcp, err := m.Mem.Fetch(Long(m.MDS) + Long(nLF) + loPC)
		if err != nil {
			return err
		}

		nPC = *pcp
		if nPC == 0 {
			return m.UnboundTrap(dst)
		}

		if typ == XferTrap {
			rp, err := m.Mem.Store(Long(m.MDS) + Long(nLF) + loReturnLink)
			if err != nil {
				return err
			}

			*rp = src
			m.Shared.DI()
		}

	default:
		return fmt.Errorf("mesa: XFER: unresolved link tag %d", nDst.Tag())
	}

	if pushed {
		if err := m.Push(Word(dst)); err != nil {
			return err
		}

		if err := m.Push(src); err != nil {
			return err
		}

		if err := m.Discard(2); err != nil {
			return err
		}
	}

	if free {
		if err := m.Free(m.LF); err != nil {
			return err
		}
	}

	m.LF = nLF
	m.GFI = nGFI
	m.PC = nPC

	return m.checkForXferTraps(dst, typ)
}

// fsiAt reads the frame-size index byte embedded in the code stream at
// byte-offset pc from CB.
func (m *Machine) fsiAt(pc Word) (Word, error) {
	word, err := m.Mem.ReadCode(m.CB, pc/2)
	if err != nil {
		return 0, err
	}

	bp := SplitBytes(word)
	if pc%2 == 0 {
		return Word(bp.High), nil
	}

	return Word(bp.Low), nil
}

// setFrameHeader installs the global-link and return-link words of a
// freshly allocated frame.
func (m *Machine) setFrameHeader(lf, gfi, returnLink Word) error {
	gp, err := m.Mem.Store(Long(m.MDS) + Long(lf) + loGlobalLink)
	if err != nil {
		return err
	}

	*gp = gfi

	rp, err := m.Mem.Store(Long(m.MDS) + Long(lf) + loReturnLink)
	if err != nil {
		return err
	}

	*rp = returnLink

	return nil
}

// Call performs an external procedure call: it stores the return PC in the
// current frame and transfers to dst.
func (m *Machine) Call(dst ControlLink) error {
	pp, err := m.Mem.Store(Long(m.MDS) + Long(m.LF) + loPC)
	if err != nil {
		return err
	}

	*pp = m.PC

	return m.XFER(dst, m.LF, XferCall, false)
}

// checkForXferTraps consumes one bit of XTS (the xfer-trap-status shifter)
// per control transfer and, if the bit is set and the current global
// frame's trapxfers flag is on, queues the xfer-trap handler instead of
// proceeding. Odd(XTS) tests bit 0 before the shift, matching the source.
func (m *Machine) checkForXferTraps(dst ControlLink, typ XferType) error {
	odd := m.XTS&1 != 0
	m.XTS >>= 1

	if !odd {
		return nil
	}

	p, err := m.Mem.Fetch(Long(m.GF))
	if err != nil {
		return err
	}

	const trapXfersBit = Word(1) << 15
	if *p&trapXfersBit == 0 {
		return nil
	}

	return m.trapTwoXfer(sXferTrap, dst, typ)
}
