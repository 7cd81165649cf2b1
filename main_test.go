package main_test

import (
	"context"
	"testing"
	"time"

	"github.com/yokwe/guam-go/internal/log"
	"github.com/yokwe/guam-go/internal/mesa"
)

// timeout bounds how long the machine may run before the test gives up.
const timeout = 1 * time.Second

// TestMain boots a minimal in-memory program -- a single ESC STOPEMULATOR
// instruction -- and confirms the instruction cycle halts cleanly, the
// same smoke-test shape as the teacher's top-level TestMain, adapted from
// expecting a protected-I/O trap to expecting a clean STOPEMULATOR halt.
func TestMain(t *testing.T) {
	log.LogLevel.Set(log.Error)

	machine := mesa.New(20, 20)

	rp, ok := machine.Mem.NextFreeRealPage()
	if !ok {
		t.Fatal("no free real page")
	}

	var page [mesa.PageWords]mesa.Word
	page[0] = mesa.JoinBytes(0x28, 0x5f) // ESC, STOPEMULATOR

	machine.Mem.LoadPage(rp, page)
	machine.Mem.WriteMap(0, 0, rp)

	machine.CB = 0
	machine.PC = 0

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	err := machine.Run(ctx)
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("run: %s, elapsed: %s", err, elapsed)
	}
}
