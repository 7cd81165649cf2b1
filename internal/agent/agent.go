// Package agent implements the concrete virtual devices ("agents") that
// plug into the Guam core's I/O region: keyboard, display, disk, floppy
// and network. Per the core's own scope (spec §1), these are external
// collaborators -- the core only exposes the [mesa.Agent] interface, the
// I/O region layout and Machine.NotifyInterrupt; everything in this
// package is a consumer of that small surface, grounded the way the
// teacher's Keyboard/DisplayDriver devices are: plain structs with a
// Configure/Init-shaped setup step and explicit Read/Write-shaped entry
// points, just addressed through an agent FCB instead of the teacher's
// memory-mapped register array.
package agent

// Interrupt selectors, one bit per agent, ORed into Machine's wakeup-pending
// register by NotifyInterrupt. Bit assignments are an implementation choice
// local to this emulator; guest boot code only ever compares against the
// selector the matching trap handler was configured with.
const (
	SelKeyboard = 1 << 0
	SelDisplay  = 1 << 1
	SelDisk     = 1 << 2
	SelFloppy   = 1 << 3
	SelNetwork  = 1 << 4
)
