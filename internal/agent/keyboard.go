package agent

import (
	"github.com/yokwe/guam-go/internal/log"
	"github.com/yokwe/guam-go/internal/mesa"
)

// Keyboard FCB layout, in words from the FCB address EnableAgent assigns.
const (
	kbdStatus = 0 // high bit: a key is waiting
	kbdData   = 1 // last key code
	kbdWords  = 2
)

const kbdReady = mesa.Word(1 << 15)

// Keyboard is the keyboard agent: a single-key-buffer input device, the
// Guam counterpart of the teacher's hardwired Keyboard device (devices.go).
// Host input arrives through PressKey, is written into the FCB, and the
// guest is woken with SelKeyboard; the guest discovers the key by calling
// CALLAGENT(Index()), which Call serves from the FCB.
type Keyboard struct {
	m   *mesa.Machine
	fcb mesa.Long

	log *log.Logger
}

// NewKeyboard creates a keyboard agent.
func NewKeyboard() *Keyboard { return &Keyboard{log: log.DefaultLogger()} }

func (k *Keyboard) Index() int    { return 0 }
func (k *Keyboard) Name() string  { return "keyboard" }
func (k *Keyboard) FCBSize() int  { return kbdWords }

func (k *Keyboard) Initialize(m *mesa.Machine, fcb mesa.Long) error {
	k.m = m
	k.fcb = fcb

	return nil
}

// Call serves a guest request to read the FCB: nothing to compute, the FCB
// already holds the latest key. Present for symmetry with agents whose
// Call does real work, and so CALLAGENT always has a handler to invoke.
func (k *Keyboard) Call(m *mesa.Machine) error { return nil }

// PressKey is called by the host console (internal/tty) on every keystroke.
// It writes the key into the FCB and notifies the guest, coalescing with
// any key not yet consumed.
func (k *Keyboard) PressKey(b byte) error {
	p, err := k.m.Mem.Store(k.fcb + kbdData)
	if err != nil {
		return err
	}

	*p = mesa.Word(b)

	p, err = k.m.Mem.Store(k.fcb + kbdStatus)
	if err != nil {
		return err
	}

	*p = kbdReady

	k.m.NotifyInterrupt(SelKeyboard)

	return nil
}
