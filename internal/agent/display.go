package agent

import (
	"github.com/yokwe/guam-go/internal/log"
	"github.com/yokwe/guam-go/internal/mesa"
)

// Display FCB layout: width and height in pixels, bytes-per-line, and a
// repaint-request flag the guest sets before calling CALLAGENT(Index()).
const (
	dspWidth      = 0
	dspHeight     = 1
	dspBytesPerLn = 2
	dspRepaint    = 3
	dspWords      = 4
)

// Display is the display agent. It owns no pixels itself -- the display
// band lives in [mesa.Memory], reserved and mapped by the caller via
// Memory.ReserveDisplay/MapDisplay before Initialize runs -- and instead
// bridges guest repaint requests to a host listener (internal/tty.Console,
// or a test double), the Guam counterpart of the teacher's DisplayDriver
// (vm/disp.go) minus the character-stream framing that only makes sense
// for LC-3's single-character display register.
type Display struct {
	m *mesa.Machine

	width, height, bytesPerLine uint32

	listeners []func()

	log *log.Logger
}

// NewDisplay creates a display agent for a width x height 1bpp frame.
func NewDisplay(width, height uint32) *Display {
	return &Display{width: width, height: height, log: log.DefaultLogger()}
}

func (d *Display) Index() int   { return 1 }
func (d *Display) Name() string { return "display" }
func (d *Display) FCBSize() int { return dspWords }

func (d *Display) Initialize(m *mesa.Machine, fcb mesa.Long) error {
	d.m = m
	d.bytesPerLine = m.Mem.BytesPerLine()

	for off, val := range map[mesa.Word]mesa.Word{
		dspWidth:      mesa.Word(d.width),
		dspHeight:     mesa.Word(d.height),
		dspBytesPerLn: mesa.Word(d.bytesPerLine),
	} {
		p, err := m.Mem.Store(fcb + mesa.Long(off))
		if err != nil {
			return err
		}

		*p = val
	}

	return nil
}

// Call serves CALLAGENT(Index()): the guest has painted into the display
// band and is asking the host to refresh. It notifies every registered
// listener; rendering the actual pixels is the host's job (out of scope
// for the core, per §1).
func (d *Display) Call(m *mesa.Machine) error {
	for _, fn := range d.listeners {
		fn()
	}

	return nil
}

// Listen registers fn to be called every time the guest requests a repaint.
func (d *Display) Listen(fn func()) {
	d.listeners = append(d.listeners, fn)
}

// FrameBuffer returns the real-memory pages backing the display band, for
// a host renderer to read pixels from directly.
func (d *Display) FrameBuffer() [][mesa.PageWords]mesa.Word {
	pages := d.m.Mem.DisplayPages()
	out := make([][mesa.PageWords]mesa.Word, len(pages))

	for i, p := range pages {
		out[i] = *p
	}

	return out
}
