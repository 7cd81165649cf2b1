package agent_test

import (
	"os"
	"testing"

	"github.com/yokwe/guam-go/internal/agent"
	"github.com/yokwe/guam-go/internal/mesa"
)

func TestNewDiskGeometry(t *testing.T) {
	t.Run("rejects image not a multiple of page size", func(t *testing.T) {
		t.Parallel()

		f, err := os.CreateTemp(t.TempDir(), "disk")
		if err != nil {
			t.Fatal(err)
		}

		if err := f.Truncate(100); err != nil {
			t.Fatal(err)
		}
		f.Close()

		if _, err := agent.NewDisk(f.Name(), 2, 1); err == nil {
			t.Error("NewDisk: want error for misaligned image, got nil")
		}
	})

	t.Run("rejects image not a multiple of cylinder size", func(t *testing.T) {
		t.Parallel()

		f, err := os.CreateTemp(t.TempDir(), "disk")
		if err != nil {
			t.Fatal(err)
		}

		if err := f.Truncate(agent.PageSizeBytes); err != nil {
			t.Fatal(err)
		}
		f.Close()

		if _, err := agent.NewDisk(f.Name(), 2, 1); err == nil {
			t.Error("NewDisk: want error for partial cylinder, got nil")
		}
	})
}

func TestDiskReadWrite(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/disk.img"

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	// One cylinder: 2 heads * 1 sector, each sector one page.
	if err := f.Truncate(2 * agent.PageSizeBytes); err != nil {
		t.Fatal(err)
	}

	f.Close()

	disk, err := agent.NewDisk(path, 2, 1)
	if err != nil {
		t.Fatalf("NewDisk: %s", err)
	}
	defer disk.Close()

	machine := mesa.New(20, 20)

	if err := machine.EnableIORegion(0x80); err != nil {
		t.Fatalf("EnableIORegion: %s", err)
	}

	if err := machine.EnableAgent(disk); err != nil {
		t.Fatalf("EnableAgent: %s", err)
	}

	fcb, ok := machine.AgentFCB(disk.Index())
	if !ok {
		t.Fatal("AgentFCB: not enabled")
	}

	rp, ok := machine.Mem.NextFreeRealPage()
	if !ok {
		t.Fatal("no free real page")
	}

	bufVP := mesa.Word(0x200)
	machine.Mem.WriteMap(bufVP, mesa.MapFetch|mesa.MapStore, rp)

	bufVA := mesa.Long(bufVP) * mesa.PageWords

	p, err := machine.Mem.Store(bufVA)
	if err != nil {
		t.Fatal(err)
	}

	*p = 0xbeef

	setWord := func(off mesa.Word, v mesa.Word) {
		p, err := machine.Mem.Store(fcb + mesa.Long(off))
		if err != nil {
			t.Fatal(err)
		}

		*p = v
	}

	setWord(0, agent.DiskCommandWrite) // diskCommand
	setWord(2, 0)                      // diskCylinder
	setWord(3, 0)                      // diskHead
	setWord(4, 0)                      // diskSector
	setWord(5, mesa.LowWord(bufVA))    // diskPageLo
	setWord(6, mesa.HighWord(bufVA))   // diskPageHi

	if err := disk.Call(machine); err != nil {
		t.Fatalf("Call (write): %s", err)
	}

	status, err := machine.Mem.Fetch(fcb + 1)
	if err != nil {
		t.Fatal(err)
	}

	if *status != agent.DiskStatusOK {
		t.Errorf("status after write: want: %d, got: %d", agent.DiskStatusOK, *status)
	}

	// Clear the buffer, then read the page back and confirm it matches.
	*p = 0

	setWord(0, agent.DiskCommandRead)

	if err := disk.Call(machine); err != nil {
		t.Fatalf("Call (read): %s", err)
	}

	got, err := machine.Mem.Fetch(bufVA)
	if err != nil {
		t.Fatal(err)
	}

	if *got != 0xbeef {
		t.Errorf("read back: want: %#x, got: %#x", 0xbeef, uint16(*got))
	}
}
