package agent

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/yokwe/guam-go/internal/log"
	"github.com/yokwe/guam-go/internal/mesa"
)

// Disk FCB layout: the fields the guest's disk driver polls and posts, laid
// out after the shared IOCB-style header (command/status), grounded on
// AgentDisk.h's FCBType/DCBType pair -- here flattened into one FCB since
// this emulator gives every agent a single contiguous FCB rather than a
// separate FCB/DCB split.
const (
	diskCommand  = 0 // guest writes a request command here, then calls CALLAGENT
	diskStatus   = 1 // host posts a completion status here
	diskCylinder = 2
	diskHead     = 3
	diskSector   = 4
	diskPageLo   = 5 // virtual address of the transfer buffer (double word)
	diskPageHi   = 6
	diskWords    = 7
)

// Disk command codes, the guest's side of the FCB protocol.
const (
	DiskCommandRead  mesa.Word = 1
	DiskCommandWrite mesa.Word = 2
)

// Disk status codes.
const (
	DiskStatusOK    mesa.Word = 0
	DiskStatusError mesa.Word = 1
)

// PageSizeBytes is the size in bytes of one disk/floppy page, matching
// [mesa.PageWords] 16-bit words.
const PageSizeBytes = mesa.PageWords * 2

// ErrDiskGeometry reports an image whose length doesn't divide evenly into
// whole pages, or that doesn't fit the given head/sector geometry.
var ErrDiskGeometry = errors.New("agent: disk image has invalid geometry")

// Disk is the disk agent: an Agent backed by a page-structured image file,
// geometry given in cylinder/head/sector form the way AgentDisk.h's
// DISK_NUMBER_OF_HEADS/DISK_SECTORS_PER_TRACK constants do, except here
// heads and sectors-per-track are supplied by the caller instead of fixed,
// so the same type serves both the configurable hard disk and (via
// [NewFloppy]) the fixed-geometry floppy.
//
// Unlike the original's IOThread worker queue, transfers here run
// synchronously on the Call that requests them, and therefore on the
// processor goroutine that dispatched CALLAGENT: the processor waits for
// each pread/pwrite to finish before it executes the next instruction.
type Disk struct {
	index int
	name  string
	sel   mesa.Word

	file *os.File

	heads          int
	sectorsPerTrk  int
	cylinders      int

	m   *mesa.Machine
	fcb mesa.Long

	log *log.Logger
}

// NewDisk opens path as a disk image with the given head/sectors-per-track
// geometry, deriving cylinder count from the file size, and returns a Disk
// agent at index 2 (SelDisk). The file is advisory-locked for the lifetime
// of the Disk so two emulator instances can't share an image.
func NewDisk(path string, heads, sectorsPerTrack int) (*Disk, error) {
	return openDisk(path, heads, sectorsPerTrack, 2, "disk", SelDisk)
}

func openDisk(path string, heads, sectorsPerTrack, index int, name string, sel mesa.Word) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("agent: open %s image: %w", name, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("agent: lock %s image %s: %w", name, path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("agent: stat %s image: %w", name, err)
	}

	if fi.Size()%PageSizeBytes != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s image size %d is not a multiple of %d bytes",
			ErrDiskGeometry, name, fi.Size(), PageSizeBytes)
	}

	pages := fi.Size() / PageSizeBytes
	perCylinder := int64(heads * sectorsPerTrack)

	if pages%perCylinder != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s image has %d pages, not a multiple of %d heads * %d sectors",
			ErrDiskGeometry, name, pages, heads, sectorsPerTrack)
	}

	return &Disk{
		index:         index,
		name:          name,
		sel:           sel,
		file:          f,
		heads:         heads,
		sectorsPerTrk: sectorsPerTrack,
		cylinders:     int(pages / perCylinder),
		log:           log.DefaultLogger(),
	}, nil
}

func (d *Disk) Index() int    { return d.index }
func (d *Disk) Name() string  { return d.name }
func (d *Disk) FCBSize() int  { return diskWords }

func (d *Disk) Initialize(m *mesa.Machine, fcb mesa.Long) error {
	d.m = m
	d.fcb = fcb

	d.log.Info("DISK GEOMETRY", "name", d.name, "cylinders", d.cylinders, "heads", d.heads, "sectors", d.sectorsPerTrk)

	return nil
}

// Call serves CALLAGENT(Index()): read the command and CHS address from the
// FCB, perform the transfer against the image file, and post status.
func (d *Disk) Call(m *mesa.Machine) error {
	cmd, err := d.readWord(m, diskCommand)
	if err != nil {
		return err
	}

	cyl, err := d.readWord(m, diskCylinder)
	if err != nil {
		return err
	}

	head, err := d.readWord(m, diskHead)
	if err != nil {
		return err
	}

	sector, err := d.readWord(m, diskSector)
	if err != nil {
		return err
	}

	lo, err := d.readWord(m, diskPageLo)
	if err != nil {
		return err
	}

	hi, err := d.readWord(m, diskPageHi)
	if err != nil {
		return err
	}

	bufVA := mesa.JoinWords(lo, hi)

	off, ok := d.offset(int(cyl), int(head), int(sector))
	if !ok {
		return d.postStatus(m, DiskStatusError)
	}

	switch cmd {
	case DiskCommandRead:
		err = d.readPage(m, off, bufVA)
	case DiskCommandWrite:
		err = d.writePage(m, off, bufVA)
	default:
		return d.postStatus(m, DiskStatusError)
	}

	if err != nil {
		d.log.Error("DISK I/O ERROR", "name", d.name, "err", err)
		return d.postStatus(m, DiskStatusError)
	}

	if err := d.postStatus(m, DiskStatusOK); err != nil {
		return err
	}

	m.NotifyInterrupt(d.sel)

	return nil
}

func (d *Disk) offset(cyl, head, sector int) (int64, bool) {
	if cyl < 0 || cyl >= d.cylinders || head < 0 || head >= d.heads || sector < 0 || sector >= d.sectorsPerTrk {
		return 0, false
	}

	page := int64(cyl)*int64(d.heads*d.sectorsPerTrk) + int64(head)*int64(d.sectorsPerTrk) + int64(sector)

	return page * PageSizeBytes, true
}

func (d *Disk) readPage(m *mesa.Machine, off int64, bufVA mesa.Long) error {
	var buf [PageSizeBytes]byte

	if _, err := d.file.ReadAt(buf[:], off); err != nil {
		return err
	}

	var page [mesa.PageWords]mesa.Word
	for i := range page {
		page[i] = mesa.Word(buf[2*i])<<8 | mesa.Word(buf[2*i+1])
	}

	for i, w := range page {
		p, err := m.Mem.Store(bufVA + mesa.Long(i))
		if err != nil {
			return err
		}

		*p = w
	}

	return nil
}

func (d *Disk) writePage(m *mesa.Machine, off int64, bufVA mesa.Long) error {
	var buf [PageSizeBytes]byte

	for i := 0; i < mesa.PageWords; i++ {
		p, err := m.Mem.Fetch(bufVA + mesa.Long(i))
		if err != nil {
			return err
		}

		buf[2*i] = byte(*p >> 8)
		buf[2*i+1] = byte(*p)
	}

	_, err := d.file.WriteAt(buf[:], off)

	return err
}

func (d *Disk) readWord(m *mesa.Machine, off mesa.Word) (mesa.Word, error) {
	p, err := m.Mem.Fetch(d.fcb + mesa.Long(off))
	if err != nil {
		return 0, err
	}

	return *p, nil
}

func (d *Disk) postStatus(m *mesa.Machine, status mesa.Word) error {
	p, err := m.Mem.Store(d.fcb + diskStatus)
	if err != nil {
		return err
	}

	*p = status

	return nil
}

// Close releases the file lock and closes the backing image.
func (d *Disk) Close() error {
	return d.file.Close()
}
