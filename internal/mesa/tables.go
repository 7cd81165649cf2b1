package mesa

// tables.go defines the fixed offsets within the main data space at which
// the System Data (SD), Escape Trap Table (ETT), Allocation Vector (AV) and
// Process Data Area (PDA) live, and the symbolic trap indices used to
// address the SD. All values are taken directly from the Pilot Principles
// of Operation's constant definitions, except the three fault slots noted
// below.

// Main-data-space offsets for the fixed system tables.
const (
	mPDA Long = 0x00010000 // Process Data Area base.
	mGFT Long = 0x00020000 // Global Frame Table base.

	mAV  Word = 0x0100 // Allocation Vector base.
	mSD  Word = 0x0200 // System Data base.
	mETT Word = 0x0400 // Escape Trap Table base.
)

// Trap vector indices into the System Data table. Each indexes a two-word
// control link: the handler's new-procedure descriptor.
const (
	sBreakTrap       Word = 000
	sBoot            Word = 001
	sStackError      Word = 002
	sRescheduleError Word = 003
	sXferTrap        Word = 004
	sOpcodeTrap      Word = 005
	sControlTrap     Word = 006
	sCodeTrap        Word = 007
	sHardwareError   Word = 010
	sUnboundTrap     Word = 011
	sDivZeroTrap     Word = 012
	sDivCheckTrap    Word = 013
	sInterruptError  Word = 014
	sProcessTrap     Word = 015
	sBoundsTrap      Word = 016
	sPointerTrap     Word = 017

	// sPageFault, sWriteProtectFault and sFrameFault are this emulator's
	// own additions to the vector: a real Pilot germ services these
	// through the allocation vector's fault handler rather than a fixed
	// SD slot, but giving each its own trap index lets Trap/TrapOne
	// drive the same unwind-and-dispatch path as every other recoverable
	// fault instead of requiring a separate mechanism.
	sPageFault         Word = 020
	sWriteProtectFault Word = 021
	sFrameFault        Word = 022

	sFirstGermRequest Word = 023
)

// cTick is the scheduler's tick period in milliseconds (§5).
const cTick = 40
