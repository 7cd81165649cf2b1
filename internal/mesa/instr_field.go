package mesa

// instr_field.go implements the bitfield opcode family (RF/WF/PSF and their
// local/indirect/shifted variants): reading or writing a sub-word bitfield
// described by a [FieldSpec] encoded in the following code byte as a
// packed (pos, size) pair, the same descriptor shape types.go's
// FieldSpec.Read/Write already implement.
//
// The packed encoding is this emulator's own choice: pos in the high
// nibble, size in the low nibble of the literal byte (both 0-15, plus the
// top bit of size pair spare since spec's largest size is 15 -- in
// practice Mesa field descriptors are always small, so four bits apiece is
// ample).

const (
	mopRF byte = 0x3a + iota
	mopWF
	mopPSF
	mopR0F
	mopWS0F
	mopWLF
	mopPSLF
	mopRLFS
	mopWLFS
	mopRLIPF
	mopRLILPF
)

// fieldSpec decodes the packed field-descriptor byte following an RF/WF
// opcode.
func fieldSpec(b byte) FieldSpec {
	return FieldSpec{Pos: uint8(b >> 4), Size: uint8(b & 0xf)}
}

func init() {
	registerOpcode(true, mopRF, tableMop, "RF", func(m *Machine) error {
		spec, err := m.codeFieldSpec()
		if err != nil {
			return err
		}

		ptr, err := m.Pop()
		if err != nil {
			return err
		}

		w, err := m.Mem.Fetch(Long(m.MDS) + Long(ptr))
		if err != nil {
			return err
		}

		return m.Push(spec.Read(*w))
	})

	registerOpcode(true, mopWF, tableMop, "WF", func(m *Machine) error {
		return m.fieldWrite(false)
	})

	registerOpcode(true, mopPSF, tableMop, "PSF", func(m *Machine) error {
		return m.fieldWrite(true)
	})

	registerOpcode(true, mopR0F, tableMop, "R0F", func(m *Machine) error {
		spec, err := m.codeFieldSpec()
		if err != nil {
			return err
		}

		w, err := m.fetchLocal(0)
		if err != nil {
			return err
		}

		return m.Push(spec.Read(w))
	})

	registerOpcode(true, mopWS0F, tableMop, "WS0F", func(m *Machine) error {
		spec, err := m.codeFieldSpec()
		if err != nil {
			return err
		}

		value, err := m.Pop()
		if err != nil {
			return err
		}

		w, err := m.fetchLocal(0)
		if err != nil {
			return err
		}

		return m.storeLocal(0, spec.Write(w, value))
	})

	registerOpcode(true, mopWLF, tableMop, "WLF", func(m *Machine) error {
		return m.localFieldWrite(false)
	})

	registerOpcode(true, mopPSLF, tableMop, "PSLF", func(m *Machine) error {
		return m.localFieldWrite(true)
	})

	registerOpcode(true, mopRLFS, tableMop, "RLFS", func(m *Machine) error {
		spec, err := m.codeFieldSpec()
		if err != nil {
			return err
		}

		off, err := m.Pop()
		if err != nil {
			return err
		}

		w, err := m.fetchLocal(off)
		if err != nil {
			return err
		}

		return m.Push(spec.Read(w))
	})

	registerOpcode(true, mopWLFS, tableMop, "WLFS", func(m *Machine) error {
		spec, err := m.codeFieldSpec()
		if err != nil {
			return err
		}

		off, err := m.Pop()
		if err != nil {
			return err
		}

		value, err := m.Pop()
		if err != nil {
			return err
		}

		w, err := m.fetchLocal(off)
		if err != nil {
			return err
		}

		return m.storeLocal(off, spec.Write(w, value))
	})

	registerOpcode(true, mopRLIPF, tableMop, "RLIPF", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		spec, err := m.codeFieldSpec()
		if err != nil {
			return err
		}

		ptr, err := m.fetchLocal(Word(b))
		if err != nil {
			return err
		}

		w, err := m.Mem.Fetch(Long(m.MDS) + Long(ptr))
		if err != nil {
			return err
		}

		return m.Push(spec.Read(*w))
	})

	registerOpcode(true, mopRLILPF, tableMop, "RLILPF", func(m *Machine) error {
		b, err := m.codeByte()
		if err != nil {
			return err
		}

		spec, err := m.codeFieldSpec()
		if err != nil {
			return err
		}

		low, err := m.fetchLocal(Word(b))
		if err != nil {
			return err
		}

		high, err := m.fetchLocal(Word(b) + 1)
		if err != nil {
			return err
		}

		ptr := JoinWords(low, high)

		w, err := m.Mem.Fetch(Long(m.MDS) + Long(LowWord(ptr)))
		if err != nil {
			return err
		}

		return m.Push(spec.Read(*w))
	})
}

// codeFieldSpec reads the packed field descriptor byte from the code
// stream. Per types.go's FieldSpec.validate, a descriptor violating
// pos+size+1 <= 16 is a host/compiler programming error, not a
// guest-recoverable condition, so it panics here exactly as it would at
// any other validate call site.
func (m *Machine) codeFieldSpec() (FieldSpec, error) {
	b, err := m.codeByte()
	if err != nil {
		return FieldSpec{}, err
	}

	spec := fieldSpec(b)
	spec.validate()

	return spec, nil
}

// fieldWrite implements WF/PSF: pop a value and a pointer, read-modify-
// write the field the following code byte describes. When post is true
// (PSF) the stored value is pushed back.
func (m *Machine) fieldWrite(post bool) error {
	spec, err := m.codeFieldSpec()
	if err != nil {
		return err
	}

	value, err := m.Pop()
	if err != nil {
		return err
	}

	ptr, err := m.Pop()
	if err != nil {
		return err
	}

	va := Long(m.MDS) + Long(ptr)

	p, err := m.Mem.Store(va)
	if err != nil {
		return err
	}

	*p = spec.Write(*p, value)

	if post {
		return m.Push(*p)
	}

	return nil
}

// localFieldWrite implements WLF/PSLF: like fieldWrite, but the target is
// a local slot named by the following code byte rather than a pointer
// popped off the stack.
func (m *Machine) localFieldWrite(post bool) error {
	b, err := m.codeByte()
	if err != nil {
		return err
	}

	spec, err := m.codeFieldSpec()
	if err != nil {
		return err
	}

	value, err := m.Pop()
	if err != nil {
		return err
	}

	w, err := m.fetchLocal(Word(b))
	if err != nil {
		return err
	}

	w = spec.Write(w, value)

	if err := m.storeLocal(Word(b), w); err != nil {
		return err
	}

	if post {
		return m.Push(w)
	}

	return nil
}
