package mesa

import "testing"

func TestWordLong(t *testing.T) {
	t.Run("JoinWords", func(t *testing.T) {
		t.Parallel()

		l := JoinWords(0x1234, 0x5678)
		if l != 0x56781234 {
			t.Errorf("JoinWords: want: %#x, got: %#x", 0x56781234, uint32(l))
		}

		if lo, hi := LowWord(l), HighWord(l); lo != 0x1234 || hi != 0x5678 {
			t.Errorf("LowWord/HighWord: got lo=%#x hi=%#x", uint16(lo), uint16(hi))
		}
	})

	t.Run("JoinBytes", func(t *testing.T) {
		t.Parallel()

		w := JoinBytes(0x28, 0x5f)
		if w != 0x5f28 {
			t.Errorf("JoinBytes: want: %#x, got: %#x", 0x5f28, uint16(w))
		}

		bp := SplitBytes(w)
		if bp.High != 0x5f || bp.Low != 0x28 {
			t.Errorf("SplitBytes: got %+v", bp)
		}
	})
}

func TestSext(t *testing.T) {
	t.Run("negative byte", func(t *testing.T) {
		t.Parallel()

		w := Word(0x00ff)
		w.Sext(8)

		if w != 0xffff {
			t.Errorf("Sext: want: %#x, got: %#x", 0xffff, uint16(w))
		}
	})

	t.Run("positive byte", func(t *testing.T) {
		t.Parallel()

		w := Word(0x007f)
		w.Sext(8)

		if w != 0x007f {
			t.Errorf("Sext: want: %#x, got: %#x", 0x007f, uint16(w))
		}
	})
}

func TestZext(t *testing.T) {
	t.Parallel()

	w := Word(0xffff)
	w.Zext(8)

	if w != 0x00ff {
		t.Errorf("Zext: want: %#x, got: %#x", 0x00ff, uint16(w))
	}
}

func TestRotate(t *testing.T) {
	cases := []struct {
		name string
		w    Word
		n    int
		want Word
	}{
		{"left by 4", 0x1234, 4, 0x2341},
		{"right by 4", 0x1234, -4, 0x4123},
		{"full turn", 0xabcd, 16, 0xabcd},
		{"zero", 0xabcd, 0, 0xabcd},
	}

	for _, c := range cases {
		c := c

		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			if got := Rotate(c.w, c.n); got != c.want {
				t.Errorf("Rotate(%#x, %d): want: %#x, got: %#x", uint16(c.w), c.n, uint16(c.want), uint16(got))
			}
		})
	}
}

func TestDShift(t *testing.T) {
	cases := []struct {
		name string
		l    Long
		n    int
		want Long
	}{
		{"left", 0x00000001, 4, 0x00000010},
		{"right", 0x00000010, -4, 0x00000001},
		{"left overflow", 1, 32, 0},
		{"right of negative", 0xfffffff8, -1, 0xfffffffc},
	}

	for _, c := range cases {
		c := c

		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			if got := DShift(c.l, c.n); got != c.want {
				t.Errorf("DShift(%#x, %d): want: %#x, got: %#x", uint32(c.l), c.n, uint32(c.want), uint32(got))
			}
		})
	}
}

func TestFieldSpec(t *testing.T) {
	t.Run("read", func(t *testing.T) {
		t.Parallel()

		spec := FieldSpec{Pos: 0, Size: 3}
		w := Word(0xf000)

		if got := spec.Read(w); got != 0xf {
			t.Errorf("Read: want: %#x, got: %#x", 0xf, uint16(got))
		}
	})

	t.Run("write", func(t *testing.T) {
		t.Parallel()

		spec := FieldSpec{Pos: 0, Size: 3}
		got := spec.Write(0, 0xf)

		if got != 0xf000 {
			t.Errorf("Write: want: %#x, got: %#x", 0xf000, uint16(got))
		}
	})

	t.Run("validate panics on malformed descriptor", func(t *testing.T) {
		t.Parallel()

		defer func() {
			if recover() == nil {
				t.Error("validate: expected panic, got none")
			}
		}()

		FieldSpec{Pos: 15, Size: 15}.validate()
	})
}
