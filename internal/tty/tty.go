// Package tty provides terminal emulation.
package tty

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/yokwe/guam-go/internal/agent"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Console is a host terminal adapted to the guest's keyboard and display
// agents[^1]. Keys typed at the terminal are forwarded to the keyboard
// agent; display repaint notifications are logged to the terminal, since
// the actual pixels live in the emulated display band and are out of
// scope for a character terminal to render.
//
// [1]: See: tty(4), termios(4).
type Console struct {
	in    *os.File
	out   *term.Terminal
	fd    int
	state *term.State

	keyCh    chan byte
	repaintCh chan struct{}
}

// ErrNoTTY is returned if standard input is not a terminal. In this case, asynchronous I/O is
// not supported by the console.
var ErrNoTTY error = errors.New("console: not a TTY")

// ConsoleContext creates a Console context wired to keyboard and display. Calling cancel will
// restore the terminal state and release resources.
func ConsoleContext(parent context.Context, keyboard *agent.Keyboard, display *agent.Display) (
	context.Context, *Console, context.CancelFunc,
) {
	ctx, cause := context.WithCancelCause(parent)

	console, err := NewConsole(os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		cause(err)

		return ctx, console, func() { cause(err) }
	}

	display.Listen(func() {
		select {
		case console.repaintCh <- struct{}{}:
		default:
			// dropped signal; a later repaint will still refresh.
		}
	})

	go console.readTerminal(ctx, cause)
	go console.updateKeyboard(ctx, keyboard, cause)
	go console.reportRepaints(ctx)

	return ctx, console, func() {
		cause(context.Canceled)
		console.Restore()
	}
}

// NewConsole creates a Console using the provided streams. If the input stream is not a terminal,
// ErrNoTTY is returned. Callers are responsible for calling [Restore] to return the terminal to its
// initial state.
func NewConsole(sin, sout, serr *os.File) (*Console, error) {
	fd := int(sin.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTTY, err)
	}

	cons := Console{
		fd:        fd,
		in:        sin,
		out:       term.NewTerminal(sin, ""),
		state:     saved,
		keyCh:     make(chan byte, 1),
		repaintCh: make(chan struct{}, 1),
	}

	err = cons.setTerminalParams(1, 0)
	if err != nil {
		return nil, err
	}

	return &cons, nil
}

// Press injects a key press into the input stream.
func (c Console) Press(key byte) {
	c.keyCh <- key
}

// Writer returns an io.Writer that writes to the terminal.
func (c Console) Writer() io.Writer {
	return c.out
}

// Restore returns the terminal to its initial state and cancels in-progress reads.
func (c *Console) Restore() {
	_ = os.Stdin.SetReadDeadline(time.Now())
	_ = term.Restore(c.fd, c.state)
}

func (c *Console) setTerminalParams(vmin, vtime byte) error {
	_ = syscall.SetNonblock(c.fd, true)

	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	err = unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO)
	if err != nil {
		return err
	}

	_ = os.Stdin.SetReadDeadline(time.Time{})

	return nil
}

// readTerminal reads bytes from the terminal and writes them to the key channel until the context
// is cancelled. If reading from the terminal fails, the cancel is called.
func (c Console) readTerminal(ctx context.Context, cancel context.CancelCauseFunc) {
	buf := bufio.NewReader(c.in)

	// Make terminal input block on reads.
	_ = syscall.SetNonblock(c.fd, false)

	for { // ever and ever
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, err := buf.ReadByte()
		if err != nil {
			cancel(err) // TODO: Is it right to cancel the context on errors?
			return
		}

		select {
		case <-ctx.Done():
			return
		case c.keyCh <- b:
		}
	}
}

// updateKeyboard takes keys from the key channel and forwards each one to the keyboard agent. The
// function blocks until the context is cancelled.
func (c Console) updateKeyboard(ctx context.Context, kbd *agent.Keyboard, cancel context.CancelCauseFunc) {
	for { // you, a gift.
		select {
		case <-ctx.Done():
			return
		case key := <-c.keyCh:
			if err := kbd.PressKey(key); err != nil {
				cancel(err)
				return
			}
		}
	}
}

// reportRepaints prints a terse notice to the terminal every time the guest requests a display
// repaint. A real front end would blit FrameBuffer() to a window instead.
func (c Console) reportRepaints(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.repaintCh:
			fmt.Fprint(c.out, "\r\n[display: repaint]\r\n")
		}
	}
}
