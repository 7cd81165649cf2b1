package mesa

// boot.go implements component C8: loading the germ mini-kernel image into
// virtual memory, populating the boot-request record at SD[sFirstGermRequest]
// and transferring control to SD[sBoot], following §4.5 and §6. The loader
// itself follows the shape of the teacher's object-code Loader (loader.go):
// read raw bytes, deposit them at a known address, report a word count.

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/yokwe/guam-go/internal/log"
)

// ErrGerm reports a failure to load or parse the germ image.
var ErrGerm = errors.New("mesa: germ load error")

// BootDevice selects which boot-request variant Boot populates.
type BootDevice uint8

const (
	BootDisk BootDevice = iota
	BootEther
	BootStream
)

func (d BootDevice) String() string {
	switch d {
	case BootDisk:
		return "DISK"
	case BootEther:
		return "ETHER"
	case BootStream:
		return "STREAM"
	default:
		return fmt.Sprintf("BootDevice(%d)", uint8(d))
	}
}

// ParseBootDevice maps a boot-device selector string to a BootDevice.
func ParseBootDevice(s string) (BootDevice, error) {
	switch s {
	case "DISK":
		return BootDisk, nil
	case "ETHER":
		return BootEther, nil
	case "STREAM":
		return BootStream, nil
	default:
		return 0, fmt.Errorf("mesa: unknown boot device %q", s)
	}
}

// Boot-request record layout, in words from SD[sFirstGermRequest] (§6). The
// three variants (PV/Ether/Stream) share this header and differ only in
// whether the ethernet sub-record is populated.
const (
	brVersion  = 0 // basic-version tag
	brAction   = 1 // bootPhysicalVolume / inLoad
	brDevType  = 2
	brDevOrd   = 3
	brEtherLo  = 4 // ethernet sub-record: broadcast address (2 words) + boot socket
	brEtherHi  = 5
	brBootSock = 6
	brSwitches = 8 // 256-bit switch set, 16 words
	brWords    = brSwitches + 16
)

// Boot-request action codes.
const (
	actionBootPhysicalVolume Word = 0
	actionInLoad             Word = 1
)

const basicVersion Word = 1

// BootRequest describes the boot-request record Boot populates at
// SD[sFirstGermRequest].
type BootRequest struct {
	Device        BootDevice
	DeviceOrdinal Word

	// EthernetBroadcast and BootSocket are only meaningful when Device is
	// BootEther.
	EthernetBroadcast Long
	BootSocket        Word

	// Switches is the 256-bit switch set parsed from a boot-switch string
	// by ParseBootSwitches.
	Switches [16]Word
}

// ParseBootSwitches decodes a boot-switch string per §4.5: each character
// sets bit (15 - (c mod 16)) of word (c / 16) in the 256-bit switch set,
// where c is the character's ordinal value (after escape decoding). A
// backslash introduces a three-octal-digit escape \DDD (D1 in 0..3, D2,D3
// in 0..7) decoding to a single byte; any malformed escape is an error.
func ParseBootSwitches(s string) ([16]Word, error) {
	var bits [16]Word

	set := func(c byte) {
		bits[c/16] |= 1 << (15 - (Word(c) % 16))
	}

	i := 0
	for i < len(s) {
		c := s[i]

		if c != '\\' {
			set(c)
			i++

			continue
		}

		if i+3 >= len(s) {
			return bits, fmt.Errorf("mesa: truncated escape in boot switch string %q", s)
		}

		d1, d2, d3 := s[i+1], s[i+2], s[i+3]

		if d1 < '0' || d1 > '3' || d2 < '0' || d2 > '7' || d3 < '0' || d3 > '7' {
			return bits, fmt.Errorf("mesa: malformed escape %q in boot switch string", s[i:i+4])
		}

		value := (uint16(d1-'0') << 6) | (uint16(d2-'0') << 3) | uint16(d3-'0')
		set(byte(value))
		i += 4
	}

	return bits, nil
}

// germPageWords is the page size the germ file is paginated at (§6): 256
// words per page, file-endian (big-endian) on disk.
const germPageWords = PageWords

// LoadGerm reads a germ image from r -- a concatenation of 256-word
// big-endian pages -- byteswaps it into machine order, and deposits it
// into virtual memory beginning at virtual page vp (conventionally
// mGFT/PageWords + 1, one page above the Global Frame Table), refusing to
// cross terminalPage. It returns the number of pages loaded.
func (m *Machine) LoadGerm(r io.Reader, vp Word, terminalPage Word) (int, error) {
	br := bufio.NewReader(r)

	pages := 0

	for {
		if vp+Word(pages) >= terminalPage {
			return pages, fmt.Errorf("%w: image crosses terminal page %s", ErrGerm, terminalPage)
		}

		var buf [germPageWords * 2]byte

		n, err := io.ReadFull(br, buf[:])
		if errors.Is(err, io.EOF) && n == 0 {
			break
		} else if errors.Is(err, io.ErrUnexpectedEOF) {
			return pages, fmt.Errorf("%w: truncated page %d", ErrGerm, pages)
		} else if err != nil {
			return pages, fmt.Errorf("%w: %w", ErrGerm, err)
		}

		var page [germPageWords]Word
		for i := range page {
			page[i] = Word(buf[2*i])<<8 | Word(buf[2*i+1])
		}

		rp, ok := m.Mem.NextFreeRealPage()
		if !ok {
			return pages, fmt.Errorf("%w: out of real memory at page %d", ErrGerm, pages)
		}

		m.Mem.LoadPage(rp, page)
		m.Mem.WriteMap(vp+Word(pages), MapFetch|MapStore, rp)

		pages++
	}

	return pages, nil
}

// FillBootRequest writes req into the boot-request record at
// SD[sFirstGermRequest], following §6's layout: a basic-version tag, the
// bootPhysicalVolume action code, device location, an optional ethernet
// sub-record, and the 256-bit switch set.
func (m *Machine) FillBootRequest(req BootRequest) error {
	base := Long(mSD) + Long(sFirstGermRequest)

	words := map[Word]Word{
		brVersion: basicVersion,
		brAction:  actionBootPhysicalVolume,
		brDevType: Word(req.Device),
		brDevOrd:  req.DeviceOrdinal,
	}

	if req.Device == BootEther {
		words[brEtherLo] = LowWord(req.EthernetBroadcast)
		words[brEtherHi] = HighWord(req.EthernetBroadcast)
		words[brBootSock] = req.BootSocket
	}

	for off, val := range words {
		p, err := m.Mem.Store(base + Long(off))
		if err != nil {
			return fmt.Errorf("%w: boot request: %w", ErrGerm, err)
		}

		*p = val
	}

	for i, bits := range req.Switches {
		p, err := m.Mem.Store(base + Long(brSwitches) + Long(i))
		if err != nil {
			return fmt.Errorf("%w: boot request switches: %w", ErrGerm, err)
		}

		*p = bits
	}

	return nil
}

// Boot runs the fixed boot sequence of §4.5 once an image and devices have
// already been opened and mapped by the caller (disk/floppy/ethernet setup
// are external collaborators per §1; this entry point performs the
// machine-internal half: loading the germ image and transferring control
// to it). germTerminalPage bounds how far the germ image may be loaded.
func (m *Machine) Boot(germ io.Reader, germVP, germTerminalPage Word, req BootRequest) error {
	pages, err := m.LoadGerm(germ, germVP, germTerminalPage)
	if err != nil {
		return err
	}

	m.log.Info("GERM LOADED", "pages", pages, "vp", germVP)

	if err := m.FillBootRequest(req); err != nil {
		return err
	}

	logBootRequest(m.log, req)

	if m.sched != nil {
		if psb, ok := m.sched.CreateProcess(m.Registers); ok {
			m.PSB = psb
		}
	}

	link, err := m.Mem.ReadDbl(Long(mSD) + Long(sBoot))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGerm, err)
	}

	return m.XFER(ControlLink(link), 0, XferCall, false)
}

// logBootRequest logs the boot request's device selection once Boot has
// filled it, giving the CLI and tests a diagnostic trail without needing
// to re-read it back out of memory.
func logBootRequest(l *log.Logger, req BootRequest) {
	l.Debug("BOOT REQUEST", "device", req.Device.String(), "ordinal", req.DeviceOrdinal)
}
