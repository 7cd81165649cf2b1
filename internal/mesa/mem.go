package mesa

// mem.go implements component C2: the page-mapped virtual memory, its
// direct-mapped VA->pointer cache, and the reserved display band. The cache
// maintenance algorithm mirrors memory.h's cache::fetch/cache::store,
// including the hit/missConflict/missEmpty counters kept for diagnostics.

import (
	"errors"
	"fmt"

	"github.com/yokwe/guam-go/internal/log"
)

// PageWords is the number of words per page.
const PageWords = 256

// PageOffsetMask masks the in-page offset from a word address.
const PageOffsetMask = PageWords - 1

// MapFlags is the set of flags on a page-map entry.
type MapFlags uint8

const (
	MapVacant  MapFlags = 1 << iota // Page has no backing real memory.
	MapProtect                      // Page is read-only to guest stores.
	MapFetch                        // Reference bit: page has been fetched.
	MapStore                        // Dirty bit: page has been stored.
)

// MapEntry is one page-map entry: a flag set and the real page it maps to.
// The invariant Vacant => RealPage == 0 is enforced by WriteMap.
type MapEntry struct {
	Flags    MapFlags
	RealPage Word
}

// cacheEntry is one direct-mapped VA->pointer cache line, matching
// memory.h's cache::Entry layout: a tag (virtual page number) plus
// per-direction cached flags, and a pointer to the backing real page.
type cacheEntry struct {
	vpno        uint32 // Virtual page number tag; only meaningful with valid=true.
	valid       bool
	flagFetch   bool
	flagStore   bool
	page        *[PageWords]Word
}

// CacheBits is the number of bits used to index the direct-mapped cache;
// 2^16 entries make conflicts rare during a typical Pilot boot trace, per
// the design notes. Implementations may tune this; any value that keeps
// flag maintenance correct is acceptable.
const CacheBits = 16
const cacheSize = 1 << CacheBits
const cacheMask = cacheSize - 1

// Memory is the virtual memory subsystem: the page map, the backing real
// memory pages, the VA->pointer cache and the reserved display band.
type Memory struct {
	vpSize uint32 // Number of virtual pages; vp >= vpSize is a configuration error.
	rpSize uint32 // Number of real pages.

	pageMap []MapEntry          // Indexed by virtual page number.
	pages   []*[PageWords]Word  // Real memory, indexed by real page number.
	free    []Word              // Free real-page free list, used at configure time.

	cache [cacheSize]cacheEntry

	displayRealPage Word
	displayVPage    Word
	displayPages    uint32
	displayMapped   bool
	bytesPerLine    uint32

	hit, missConflict, missEmpty uint64

	log *log.Logger
}

// ErrConfiguration reports a memory configuration error. It is not part of
// the Abort protocol (errors.go): no trap handler is queued for it.
var (
	ErrConfiguration = errors.New("mesa: memory configuration error")
)

// PageFault is raised on access through a vacant page-map entry.
type PageFault struct{ VA Long }

func (e *PageFault) Error() string { return fmt.Sprintf("mesa: page fault at %s", Long(e.VA)) }

// WriteProtectFault is raised on a store through a protected, non-vacant
// page-map entry.
type WriteProtectFault struct{ VA Long }

func (e *WriteProtectFault) Error() string {
	return fmt.Sprintf("mesa: write-protect fault at %s", Long(e.VA))
}

// NewMemory configures virtual memory with vmBits virtual address bits and
// rmBits real memory bits, per §6's CLI configuration.
func NewMemory(vmBits, rmBits uint, logger *log.Logger) *Memory {
	vpSize := uint32(1) << (vmBits - 8)
	rpSize := uint32(1) << (rmBits - 8)

	m := &Memory{
		vpSize:  vpSize,
		rpSize:  rpSize,
		pageMap: make([]MapEntry, vpSize),
		pages:   make([]*[PageWords]Word, rpSize),
		log:     logger,
	}

	for rp := uint32(0); rp < rpSize; rp++ {
		m.pages[rp] = new([PageWords]Word)
		m.free = append(m.free, Word(rp))
	}

	// Page zero is reserved: never handed out by allocRealPage.
	if len(m.free) > 0 {
		m.free = m.free[1:]
	}

	return m
}

// allocRealPage pops a free real page for WriteMap callers (e.g. boot and
// test setup) that want identity-ish mappings without tracking real pages
// themselves.
func (m *Memory) allocRealPage() (Word, bool) {
	if len(m.free) == 0 {
		return 0, false
	}

	rp := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]

	return rp, true
}

// ReadMap returns the current map entry for virtual page vp.
func (m *Memory) ReadMap(vp Word) MapEntry {
	if uint32(vp) >= m.vpSize {
		panic(fmt.Errorf("%w: vp %s out of range", ErrConfiguration, vp))
	}

	return m.pageMap[vp]
}

// WriteMap installs a map entry for virtual page vp, enforcing
// Vacant => RealPage == 0 and invalidating the cache entry for vp.
func (m *Memory) WriteMap(vp Word, flags MapFlags, rp Word) {
	if uint32(vp) >= m.vpSize {
		panic(fmt.Errorf("%w: vp %s out of range", ErrConfiguration, vp))
	}

	if flags&MapVacant != 0 {
		rp = 0
	}

	m.pageMap[vp] = MapEntry{Flags: flags, RealPage: rp}
	m.invalidate(uint32(vp))
}

func (m *Memory) invalidate(vp uint32) {
	e := &m.cache[vp&cacheMask]
	if e.valid && e.vpno == vp {
		e.valid = false
	}
}

func (m *Memory) entry(vp uint32) *cacheEntry {
	return &m.cache[vp&cacheMask]
}

// fetchSetup installs a cache entry for vp on a tag miss, resolving page
// faults against the map.
func (m *Memory) fetchSetup(e *cacheEntry, vp uint32) error {
	if e.valid {
		m.missConflict++
	} else {
		m.missEmpty++
	}

	entry := m.pageMap[Word(vp)]
	if entry.Flags&MapVacant != 0 {
		return &PageFault{VA: Long(vp) * PageWords}
	}

	if entry.Flags&MapFetch == 0 {
		entry.Flags |= MapFetch
		m.pageMap[Word(vp)] = entry
	}

	e.vpno = vp
	e.valid = true
	e.flagFetch = true
	e.flagStore = entry.Flags&MapStore != 0
	e.page = m.pages[entry.RealPage]

	return nil
}

func (m *Memory) fetchMaintainFlag(e *cacheEntry, vp uint32) {
	entry := m.pageMap[Word(vp)]
	if entry.Flags&MapFetch == 0 {
		entry.Flags |= MapFetch
		m.pageMap[Word(vp)] = entry
	}

	e.flagFetch = true
}

// storeSetup installs a cache entry for vp on a tag miss for a store
// access, resolving page and write-protect faults.
func (m *Memory) storeSetup(e *cacheEntry, vp uint32) error {
	if e.valid {
		m.missConflict++
	} else {
		m.missEmpty++
	}

	entry := m.pageMap[Word(vp)]
	if entry.Flags&MapVacant != 0 {
		return &PageFault{VA: Long(vp) * PageWords}
	}

	if entry.Flags&MapProtect != 0 {
		return &WriteProtectFault{VA: Long(vp) * PageWords}
	}

	if entry.Flags&MapStore == 0 {
		entry.Flags |= MapStore
		m.pageMap[Word(vp)] = entry
	}

	e.vpno = vp
	e.valid = true
	e.flagStore = true
	e.flagFetch = entry.Flags&MapFetch != 0
	e.page = m.pages[entry.RealPage]

	return nil
}

func (m *Memory) storeMaintainFlag(e *cacheEntry, vp uint32) error {
	entry := m.pageMap[Word(vp)]
	if entry.Flags&MapProtect != 0 {
		return &WriteProtectFault{VA: Long(vp) * PageWords}
	}

	if entry.Flags&MapStore == 0 {
		entry.Flags |= MapStore
		m.pageMap[Word(vp)] = entry
	}

	e.flagStore = true

	return nil
}

// Fetch returns a pointer to the word backing virtual address va,
// maintaining the reference flag on first access.
func (m *Memory) Fetch(va Long) (*Word, error) {
	vp := uint32(va) / PageWords
	e := m.entry(vp)

	if !e.valid || e.vpno != vp {
		if err := m.fetchSetup(e, vp); err != nil {
			return nil, err
		}
	} else {
		m.hit++

		if !e.flagFetch {
			m.fetchMaintainFlag(e, vp)
		}
	}

	return &e.page[uint32(va)&PageOffsetMask], nil
}

// Store returns a pointer to the word backing virtual address va for
// writing, maintaining the dirty flag and raising WriteProtectFault if the
// page is read-only.
func (m *Memory) Store(va Long) (*Word, error) {
	vp := uint32(va) / PageWords
	e := m.entry(vp)

	if !e.valid || e.vpno != vp {
		if err := m.storeSetup(e, vp); err != nil {
			return nil, err
		}
	} else {
		m.hit++

		if !e.flagStore {
			if err := m.storeMaintainFlag(e, vp); err != nil {
				return nil, err
			}
		}
	}

	return &e.page[uint32(va)&PageOffsetMask], nil
}

// sameVirtualPage reports whether a and b address the same page.
func sameVirtualPage(a, b Long) bool {
	return uint32(a)/PageWords == uint32(b)/PageWords
}

// ReadDbl reads a double-word value, low word at va, high word at va+1,
// taking a same-page shortcut: the second half is only independently
// looked up (and may independently fault) when it crosses a page boundary.
func (m *Memory) ReadDbl(va Long) (Long, error) {
	p0, err := m.Fetch(va)
	if err != nil {
		return 0, err
	}

	var p1 *Word

	if sameVirtualPage(va, va+1) {
		vp := uint32(va) / PageWords
		off := (uint32(va) + 1) & PageOffsetMask
		p1 = &m.entry(vp).page[off]
	} else {
		p1, err = m.Fetch(va + 1)
		if err != nil {
			return 0, err
		}
	}

	return JoinWords(*p0, *p1), nil
}

// ReadCode reads one word of the code segment at wordOffset words from cb.
func (m *Memory) ReadCode(cb Long, wordOffset Word) (Word, error) {
	p, err := m.Fetch(cb + Long(wordOffset))
	if err != nil {
		return 0, err
	}

	return *p, nil
}

// GetCodeByte fetches the byte at the current PC (a byte offset into the
// code segment based at cb) and returns it along with the advanced PC. Once
// the backing word has been fetched no further page fault can occur, so the
// PC advance is unconditional, matching the "NO PAGE FAULT AFTER HERE"
// comment in the original fetch routine.
func (m *Memory) GetCodeByte(cb Long, pc Word) (byte, Word, error) {
	word, err := m.ReadCode(cb, pc/2)
	if err != nil {
		return 0, pc, err
	}

	bp := SplitBytes(word)

	var b byte
	if pc&1 != 0 {
		b = bp.Low
	} else {
		b = bp.High
	}

	return b, pc + 1, nil
}

// GetCodeWord fetches the word at the current PC, which may straddle two
// code words when PC is odd: the low byte of the first word becomes the
// result's high byte and the high byte of the second its low byte. As in GetCodeByte, once the
// word(s) have been fetched no further page fault can occur.
func (m *Memory) GetCodeWord(cb Long, pc Word) (Word, Word, error) {
	ptr := cb + Long(pc/2)

	p0, err := m.Fetch(ptr)
	if err != nil {
		return 0, pc, err
	}

	if pc&1 == 0 {
		return *p0, pc + 2, nil
	}

	var p1 *Word

	if sameVirtualPage(ptr, ptr+1) {
		vp := uint32(ptr) / PageWords
		off := (uint32(ptr) + 1) & PageOffsetMask
		p1 = &m.entry(vp).page[off]
	} else {
		p1, err = m.Fetch(ptr + 1)
		if err != nil {
			return 0, pc, err
		}
	}

	bp0 := SplitBytes(*p0)
	bp1 := SplitBytes(*p1)

	return JoinBytes(bp1.High, bp0.Low), pc + 2, nil // high byte is p0's low byte, low byte is p1's high byte
}

// Stats returns the cache hit/miss counters, for diagnostics.
func (m *Memory) Stats() (hit, missConflict, missEmpty uint64) {
	return m.hit, m.missConflict, m.missEmpty
}

// VPSize and RPSize report the configured virtual- and real-page counts.
func (m *Memory) VPSize() uint32 { return m.vpSize }
func (m *Memory) RPSize() uint32 { return m.rpSize }

// ReserveDisplay computes the page count needed for a width x height 1bpp
// display (the only pixel format Guam supports) and sets aside that many
// pages at the top of real memory exclusively for display use. It returns
// the first reserved real page index and the bytes-per-scanline.
func (m *Memory) ReserveDisplay(width, height uint32) (realPage Word, bytesPerLine uint32) {
	bytesPerLine = (width + 7) / 8
	bytesPerLine = (bytesPerLine + 1) &^ 1 // round to even, words are 2 bytes.

	totalBytes := bytesPerLine * height
	pages := (totalBytes + (2*PageWords - 1)) / (2 * PageWords)

	if pages == 0 {
		pages = 1
	}

	if pages > m.rpSize {
		panic(fmt.Errorf("%w: display needs %d real pages, have %d", ErrConfiguration, pages, m.rpSize))
	}

	first := m.rpSize - pages

	m.displayRealPage = Word(first)
	m.displayPages = pages
	m.bytesPerLine = bytesPerLine

	// Reserve the tail of the free-page list so ordinary allocation never
	// hands out display pages.
	kept := m.free[:0]

	for _, rp := range m.free {
		if uint32(rp) < first {
			kept = append(kept, rp)
		}
	}

	m.free = kept

	return m.displayRealPage, bytesPerLine
}

// MapDisplay installs a contiguous mapping for the display band starting
// at virtual page vp, onto real pages starting at rp, for pageCount pages,
// invalidating all affected cache entries.
func (m *Memory) MapDisplay(vp, rp Word, pageCount uint32) {
	for i := uint32(0); i < pageCount; i++ {
		m.WriteMap(vp+Word(i), MapFetch|MapStore, rp+Word(i))
	}

	m.displayVPage = vp
	m.displayMapped = true
}

// DisplayPage returns the backing real-memory page for the display band's
// first page, for host-side frame-buffer readers.
func (m *Memory) DisplayPage() *[PageWords]Word {
	return m.pages[m.displayRealPage]
}

// DisplayPages returns every real-memory page reserved for the display,
// in ascending order.
func (m *Memory) DisplayPages() []*[PageWords]Word {
	out := make([]*[PageWords]Word, m.displayPages)
	for i := range out {
		out[i] = m.pages[uint32(m.displayRealPage)+uint32(i)]
	}

	return out
}

// IsDisplayMapped reports whether MapDisplay has been called.
func (m *Memory) IsDisplayMapped() bool { return m.displayMapped }

// BytesPerLine returns the display's configured bytes-per-scanline.
func (m *Memory) BytesPerLine() uint32 { return m.bytesPerLine }

// LoadPage installs literal page contents directly into real memory,
// bypassing the map/cache, for use by the boot loader (germ images arrive
// pre-paginated and are deposited directly into real pages before any
// guest code runs).
func (m *Memory) LoadPage(rp Word, words [PageWords]Word) {
	*m.pages[rp] = words
}

// NextFreeRealPage hands out the next unreserved real page, for the boot
// loader's identity mapping of the germ image.
func (m *Memory) NextFreeRealPage() (Word, bool) {
	return m.allocRealPage()
}
