package mesa

// dispatch.go implements component C4's opcode tables: a 256-entry MOP
// table and a 256-entry ESC table, populated from a single declarative
// list of (enable, code, table, name, fn) entries, following opcode.cpp's
// registerOpcode. Slots nobody registers default to the matching
// OpcodeTrap/EscOpcodeTrap handler, exactly as initialize() fills
// opMop/opEsc with mopOpcodeTrap/escOpcodeTrap.

import "fmt"

const opcodeTableSize = 256

// opcodeFn is the signature every MOP and ESC handler implements.
type opcodeFn func(m *Machine) error

// dispatchTable holds one of the two 256-entry opcode tables: handlers,
// mnemonics and per-opcode execution counts, plus the code currently being
// dispatched (-1 between instructions), mirroring opMop/nameMop/statsMop
// and lastMop.
type dispatchTable struct {
	fns   [opcodeTableSize]opcodeFn
	names [opcodeTableSize]string
	stats [opcodeTableSize]uint64
	last  int16
}

// opcodeTableKind selects which of the two tables a registration entry
// belongs to.
type opcodeTableKind uint8

const (
	tableMop opcodeTableKind = iota
	tableEsc
)

// opcodeDef is one entry in the declarative registration list: whether
// the opcode is implemented in this emulator, which code point it
// occupies, which table, its mnemonic and its handler.
type opcodeDef struct {
	enable bool
	code   byte
	table  opcodeTableKind
	name   string
	fn     opcodeFn
}

// opcodes is the single declarative list every MOP and ESC opcode is
// registered from, the Go counterpart of opcode.inc's MOP(...)/ESC(...)
// macro invocations. Individual entries live alongside their
// implementations in the instr_*.go and esc_*.go files and are appended
// to this list from each file's init().
var opcodes []opcodeDef

// registerOpcode appends one declarative entry; called from package-level
// init() functions in the instruction files.
func registerOpcode(enable bool, code byte, table opcodeTableKind, name string, fn opcodeFn) {
	opcodes = append(opcodes, opcodeDef{enable: enable, code: code, table: table, name: name, fn: fn})
}

// registerOpcodes installs the MOP and ESC tables on m: every declared
// opcode, then OpcodeTrap/EscOpcodeTrap filled into the remaining slots,
// matching initialize()'s two-pass fill.
func registerOpcodes(m *Machine) {
	m.mop.last = -1
	m.esc.last = -1

	for i := range m.mop.names {
		m.mop.names[i] = fmt.Sprintf("mop-%03o", i)
	}

	for i := range m.esc.names {
		m.esc.names[i] = fmt.Sprintf("esc-%03o", i)
	}

	for _, def := range opcodes {
		var t *dispatchTable

		switch def.table {
		case tableMop:
			t = &m.mop
		case tableEsc:
			t = &m.esc
		}

		t.names[def.code] = def.name

		if def.enable {
			t.fns[def.code] = def.fn
		}
	}

	for i := range m.mop.fns {
		if m.mop.fns[i] == nil {
			code := byte(i)
			m.mop.fns[i] = func(m *Machine) error { return m.OpcodeTrapRaise(Word(code)) }
		}
	}

	for i := range m.esc.fns {
		if m.esc.fns[i] == nil {
			code := byte(i)
			m.esc.fns[i] = func(m *Machine) error { return m.EscOpcodeTrapRaise(Word(code)) }
		}
	}
}
