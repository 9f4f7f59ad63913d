package repair

import (
	"bytes"
	"errors"
	"testing"
)

func sttsPayload(runs ...timeRun) []byte {
	p := make([]byte, 8+8*len(runs))
	be.PutUint32(p[4:], uint32(len(runs)))
	for i, r := range runs {
		be.PutUint32(p[8+i*8:], r.Count)
		be.PutUint32(p[12+i*8:], r.Duration)
	}
	return p
}

func TestSampleFormat(t *testing.T) {
	p := make([]byte, 24)
	be.PutUint32(p[4:], 1)
	copy(p[12:16], "avc1")

	format, err := sampleFormat(p)
	if err != nil {
		t.Fatalf("sampleFormat() error = %v", err)
	}
	if format != "avc1" {
		t.Errorf("sampleFormat() = %q, want %q", format, "avc1")
	}
}

func TestSampleFormatRejectsEmptyTable(t *testing.T) {
	p := make([]byte, 8) // zero descriptions
	if _, err := sampleFormat(p); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Errorf("sampleFormat(empty) error = %v, want ErrUnsupportedEncoding", err)
	}
}

func TestTimeRunsRoundTrip(t *testing.T) {
	in := []timeRun{{Count: 100, Duration: 512}, {Count: 1, Duration: 1024}}
	payload := sttsPayload(in...)

	runs, err := parseTimeRuns(payload)
	if err != nil {
		t.Fatalf("parseTimeRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0] != in[0] || runs[1] != in[1] {
		t.Fatalf("parseTimeRuns() = %v, want %v", runs, in)
	}
	if got := encodeTimeRuns(payload, runs); !bytes.Equal(got, payload) {
		t.Error("encodeTimeRuns() differs from original payload")
	}
}

func TestParseSampleSizes(t *testing.T) {
	p := make([]byte, 12+3*4)
	be.PutUint32(p[8:], 3)
	for i, v := range []uint32{100, 200, 300} {
		be.PutUint32(p[12+i*4:], v)
	}

	s, err := parseSampleSizes(p)
	if err != nil {
		t.Fatalf("parseSampleSizes() error = %v", err)
	}
	if s.Uniform != 0 || s.Count != 3 {
		t.Errorf("parsed (uniform %d, count %d), want (0, 3)", s.Uniform, s.Count)
	}
	if len(s.Sizes) != 3 || s.Sizes[1] != 200 {
		t.Errorf("Sizes = %v, want [100 200 300]", s.Sizes)
	}
	if got := s.encode(); !bytes.Equal(got, p) {
		t.Error("encode() differs from original payload")
	}
}

func TestParseSampleSizesUniform(t *testing.T) {
	p := make([]byte, 12)
	be.PutUint32(p[4:], 1024)
	be.PutUint32(p[8:], 500)

	s, err := parseSampleSizes(p)
	if err != nil {
		t.Fatalf("parseSampleSizes() error = %v", err)
	}
	if s.Uniform != 1024 || s.Count != 500 || s.Sizes != nil {
		t.Errorf("parsed (uniform %d, count %d, %d sizes), want (1024, 500, 0)", s.Uniform, s.Count, len(s.Sizes))
	}
}

func TestChunkOffsetsRoundTrip(t *testing.T) {
	t.Run("narrow", func(t *testing.T) {
		p := make([]byte, 8+2*4)
		be.PutUint32(p[4:], 2)
		be.PutUint32(p[8:], 40)
		be.PutUint32(p[12:], 1040)

		c, err := parseChunkOffsets(p, false)
		if err != nil {
			t.Fatalf("parseChunkOffsets() error = %v", err)
		}
		if len(c.Offsets) != 2 || c.Offsets[1] != 1040 {
			t.Fatalf("Offsets = %v, want [40 1040]", c.Offsets)
		}
		got, err := c.encode()
		if err != nil {
			t.Fatalf("encode() error = %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Error("encode() differs from original payload")
		}
	})

	t.Run("wide", func(t *testing.T) {
		p := make([]byte, 8+2*8)
		be.PutUint32(p[4:], 2)
		be.PutUint64(p[8:], 1<<33)
		be.PutUint64(p[16:], 1<<33+4096)

		c, err := parseChunkOffsets(p, true)
		if err != nil {
			t.Fatalf("parseChunkOffsets() error = %v", err)
		}
		if !c.Wide || c.Offsets[0] != 1<<33 {
			t.Fatalf("parsed (wide %v, first %d)", c.Wide, c.Offsets[0])
		}
		got, err := c.encode()
		if err != nil {
			t.Fatalf("encode() error = %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Error("encode() differs from original payload")
		}
	})
}

func TestChunkOffsetsEncodeNarrowOverflow(t *testing.T) {
	c := &chunkOffsets{Offsets: []uint64{1 << 33}}
	if _, err := c.encode(); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Errorf("encode() error = %v, want ErrUnsupportedEncoding", err)
	}
}

func TestResizeCyclic(t *testing.T) {
	tests := []struct {
		name string
		seq  []uint32
		n    int
		want []uint32
	}{
		{"grow", []uint32{1, 2, 3}, 7, []uint32{1, 2, 3, 1, 2, 3, 1}},
		{"shrink", []uint32{1, 2, 3, 4}, 2, []uint32{1, 2}},
		{"same", []uint32{5, 6}, 2, []uint32{5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resizeCyclic(tt.seq, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("resizeCyclic() length = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("resizeCyclic() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestResizeOffsetsCyclic(t *testing.T) {
	t.Run("grow repeats the delta pattern", func(t *testing.T) {
		in := []uint64{100, 200, 350} // deltas 100, 150
		got := resizeOffsetsCyclic(in, 6)
		want := []uint64{100, 200, 350, 450, 600, 700}
		if len(got) != len(want) {
			t.Fatalf("length = %d, want %d", len(got), len(want))
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("resizeOffsetsCyclic() = %v, want %v", got, want)
			}
		}
	})

	t.Run("shrink truncates", func(t *testing.T) {
		got := resizeOffsetsCyclic([]uint64{10, 20, 30, 40}, 2)
		if len(got) != 2 || got[0] != 10 || got[1] != 20 {
			t.Errorf("resizeOffsetsCyclic() = %v, want [10 20]", got)
		}
	})
}

func TestRescaleTimeRuns(t *testing.T) {
	t.Run("single run hits target exactly", func(t *testing.T) {
		got := rescaleTimeRuns([]timeRun{{Count: 100, Duration: 512}}, 3.0, 300)
		if len(got) != 1 || got[0].Count != 300 || got[0].Duration != 512 {
			t.Errorf("rescaleTimeRuns() = %v, want [{300 512}]", got)
		}
	})

	t.Run("final run absorbs rounding remainder", func(t *testing.T) {
		// 1.5x of 3 and 3 rounds to 5 and 5, one over an externally fixed
		// target of 9.
		got := rescaleTimeRuns([]timeRun{{Count: 3, Duration: 10}, {Count: 3, Duration: 20}}, 1.5, 9)
		var total uint64
		for _, r := range got {
			total += uint64(r.Count)
		}
		if total != 9 {
			t.Fatalf("total samples = %d, want 9", total)
		}
		if got[0].Count != 5 || got[1].Count != 4 {
			t.Errorf("run counts = (%d, %d), want (5, 4)", got[0].Count, got[1].Count)
		}
		if got[0].Duration != 10 || got[1].Duration != 20 {
			t.Error("per-sample durations changed")
		}
	})

	t.Run("remainder clamps at zero", func(t *testing.T) {
		got := rescaleTimeRuns([]timeRun{{Count: 10, Duration: 1}, {Count: 1, Duration: 1}}, 0.1, 0)
		if got[len(got)-1].Count != 0 {
			t.Errorf("final run count = %d, want 0", got[len(got)-1].Count)
		}
	})
}
