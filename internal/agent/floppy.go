package agent

// floppy.go adapts AgentFloppy.h/.cpp: same FCB protocol and Agent shape as
// the hard disk agent, except the geometry is fixed rather than probed from
// agent configuration -- Guam floppy images are always 2 heads by 16
// sectors/track, so only the cylinder count varies with image size.

// NewFloppy opens path as a floppy image with Guam's fixed floppy geometry
// (2 heads, 16 sectors/track) and returns an agent at index 3 (SelFloppy).
func NewFloppy(path string) (*Disk, error) {
	return openDisk(path, 2, 16, 3, "floppy", SelFloppy)
}
