package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/yokwe/guam-go/internal/agent"
	"github.com/yokwe/guam-go/internal/cli"
	"github.com/yokwe/guam-go/internal/log"
	"github.com/yokwe/guam-go/internal/mesa"
	"github.com/yokwe/guam-go/internal/tty"
)

// Run is the sub-command that boots and drives a Guam machine.
func Run() cli.Command {
	r := &run{
		bootDevice: "DISK",
		vmBits:     25,
		rmBits:     24,
		width:      606,
		height:     808,
	}

	return r
}

type run struct {
	disk    string
	germ    string
	floppy  string
	netIf   string

	bootSwitch string
	bootDevice string

	width, height uint

	vmBits, rmBits uint

	stopAtMP uint

	debug bool

	keyboard *agent.Keyboard
	display  *agent.Display
}

func (run) Description() string {
	return "boot and run a Guam virtual machine"
}

func (r run) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `
run -germ path [options]

Boots the germ image and runs the machine until it halts or is
interrupted.`)

	return err
}

func (r *run) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	fs.StringVar(&r.disk, "disk", "", "hard disk image `path`")
	fs.StringVar(&r.germ, "germ", "", "germ image `path` (required)")
	fs.StringVar(&r.floppy, "floppy", "", "floppy image `path`")
	fs.StringVar(&r.netIf, "network_interface", "", "host network `interface` to bridge")
	fs.StringVar(&r.bootSwitch, "boot_switch", "", "boot switch `string`")
	fs.StringVar(&r.bootDevice, "boot_device", r.bootDevice, "boot device: DISK, ETHER or STREAM")
	fs.UintVar(&r.width, "display_width", r.width, "display width in pixels")
	fs.UintVar(&r.height, "display_height", r.height, "display height in pixels")
	fs.UintVar(&r.vmBits, "vm_bits", r.vmBits, "virtual address bits, 20..25")
	fs.UintVar(&r.rmBits, "rm_bits", r.rmBits, "real memory bits, 20..24")
	fs.UintVar(&r.stopAtMP, "stop_at_mp", 0, "halt when the maintenance panel reaches this value")
	fs.BoolVar(&r.debug, "debug", false, "enable debug logging")

	return fs
}

// Run implements the boot sequence of §4.5/§6: open devices, map the
// display, load the germ image, fill the boot-request record and transfer
// control, then drive the instruction cycle until the machine halts or ctx
// is cancelled.
func (r *run) Run(ctx context.Context, args []string, out io.Writer, logger *log.Logger) int {
	if r.debug {
		log.LogLevel.Set(log.Debug)
	}

	if r.germ == "" {
		logger.Error("run: -germ is required")
		return 1
	}

	if r.vmBits < 20 || r.vmBits > 25 {
		logger.Error("run: vm_bits must be in 20..25", "vm_bits", r.vmBits)
		return 1
	}

	if r.rmBits < 20 || r.rmBits > 24 {
		logger.Error("run: rm_bits must be in 20..24", "rm_bits", r.rmBits)
		return 1
	}

	bootDevice, err := mesa.ParseBootDevice(r.bootDevice)
	if err != nil {
		logger.Error(err.Error())
		return 1
	}

	switches, err := mesa.ParseBootSwitches(r.bootSwitch)
	if err != nil {
		logger.Error(err.Error())
		return 1
	}

	opts := []mesa.OptionFn{mesa.WithLogger(logger)}

	if r.stopAtMP != 0 {
		opts = append(opts, mesa.WithStopAtMP(mesa.Word(r.stopAtMP)))
	}

	opts = append(opts, mesa.WithDisplay(mesa.Word(0x100), uint32(r.width), uint32(r.height)))

	machine := mesa.New(r.vmBits, r.rmBits, opts...)

	if err := machine.EnableIORegion(0x80); err != nil {
		logger.Error(err.Error())
		return 1
	}

	closers, code := r.enableAgents(machine, logger)

	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	if code != 0 {
		return code
	}

	req := mesa.BootRequest{
		Device:        bootDevice,
		DeviceOrdinal: 0,
		Switches:      switches,
	}

	if bootDevice == mesa.BootEther && r.netIf != "" {
		if mac, err := agent.HardwareAddr(r.netIf); err == nil && len(mac) >= 6 {
			machine.PID = mesa.PID{
				0,
				mesa.Word(mac[0])<<8 | mesa.Word(mac[1]),
				mesa.Word(mac[2])<<8 | mesa.Word(mac[3]),
				mesa.Word(mac[4])<<8 | mesa.Word(mac[5]),
			}
		}
	}

	germFile, err := os.Open(r.germ)
	if err != nil {
		logger.Error("run: open germ", "err", err)
		return 1
	}
	defer germFile.Close()

	gft := mesa.Word(0x00020000 / mesa.PageWords)
	terminal := gft + 0x1000

	if err := machine.Boot(germFile, gft+1, terminal, req); err != nil {
		logger.Error("run: boot", "err", err)
		return 1
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// Only attach an interactive console when stdin is actually a
	// terminal; a headless run (the common case, e.g. under a test
	// harness or CI) drives the machine without one.
	if term.IsTerminal(int(os.Stdin.Fd())) {
		var consoleCancel context.CancelFunc
		ctx, _, consoleCancel = tty.ConsoleContext(ctx, r.keyboard, r.display)
		defer consoleCancel()
	}

	start := time.Now()
	err = machine.Run(ctx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		logger.Info("run: halted normally", "elapsed", elapsed)
		return 0
	case errors.Is(err, context.Canceled):
		logger.Info("run: cancelled", "elapsed", elapsed)
		return 0
	default:
		logger.Error("run: fatal error", "err", err, "elapsed", elapsed)
		return 2
	}
}

type closer interface {
	Close() error
}

// keyboard and display are stashed on run by enableAgents so Run can wire
// up the console after Boot, once both agents are enabled.
func (r *run) enableAgents(machine *mesa.Machine, logger *log.Logger) ([]closer, int) {
	var closers []closer

	kbd := agent.NewKeyboard()
	if err := machine.EnableAgent(kbd); err != nil {
		logger.Error("run: enable keyboard", "err", err)
		return closers, 1
	}

	r.keyboard = kbd

	disp := agent.NewDisplay(uint32(r.width), uint32(r.height))
	if err := machine.EnableAgent(disp); err != nil {
		logger.Error("run: enable display", "err", err)
		return closers, 1
	}

	r.display = disp

	if r.disk != "" {
		disk, err := agent.NewDisk(r.disk, 2, 16)
		if err != nil {
			logger.Error("run: open disk", "err", err)
			return closers, 1
		}

		if err := machine.EnableAgent(disk); err != nil {
			logger.Error("run: enable disk", "err", err)
			return closers, 1
		}

		closers = append(closers, disk)
	}

	if r.floppy != "" {
		floppy, err := agent.NewFloppy(r.floppy)
		if err != nil {
			logger.Error("run: open floppy", "err", err)
			return closers, 1
		}

		if err := machine.EnableAgent(floppy); err != nil {
			logger.Error("run: enable floppy", "err", err)
			return closers, 1
		}

		closers = append(closers, floppy)
	}

	if r.netIf != "" {
		net, err := agent.NewNetwork(r.netIf)
		if err != nil {
			logger.Error("run: open network", "err", err)
			return closers, 1
		}

		if err := machine.EnableAgent(net); err != nil {
			logger.Error("run: enable network", "err", err)
			return closers, 1
		}

		closers = append(closers, net)
	}

	return closers, 0
}
