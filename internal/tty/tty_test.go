// Package tty_test tries to test ttys.
//
// The test is skipped when stdin is not a terminal (ErrNoTTY). Notably, this includes when run with
// "go test" because it redirects tests' standard input/output streams. You can test it by building
// a test binary and running it directly:
//
//	$ go test -c && ./tty.test
package tty_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yokwe/guam-go/internal/agent"
	"github.com/yokwe/guam-go/internal/mesa"
	"github.com/yokwe/guam-go/internal/tty"
)

type testHarness struct {
	*testing.T
}

const timeout = 100 * time.Millisecond

func (testHarness) Context() (context.Context, context.CancelFunc) {
	ctx := context.Background()
	return context.WithTimeoutCause(ctx, timeout, context.DeadlineExceeded)
}

func TestTerminal(tt *testing.T) {
	t := testHarness{tt}
	machine := mesa.New(20, 20)
	if err := machine.EnableIORegion(0x80); err != nil {
		t.Fatalf("enable I/O region: %s", err)
	}

	kbd := agent.NewKeyboard()
	if err := machine.EnableAgent(kbd); err != nil {
		t.Fatalf("enable keyboard: %s", err)
	}

	display := agent.NewDisplay(1, 1)
	if err := machine.EnableAgent(display); err != nil {
		t.Fatalf("enable display: %s", err)
	}

	ctx, cancel := t.Context()
	defer cancel()

	ctx, console, cancel := tty.ConsoleContext(ctx, kbd, display)
	defer cancel()

	if err := context.Cause(ctx); errors.Is(err, tty.ErrNoTTY) {
		t.Skipf("error: %s", context.Cause(ctx))
		t.SkipNow()
	}

	go func() {
		console.Press('!')
	}()

	<-ctx.Done()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cause: %s", err)
	}
}
