package repair

import (
	"fmt"
	"math"
)

// sampleFormat extracts the data format tag of the first sample
// description in an stsd payload. That tag decides whether a track's
// stream type supports table extension at all.
func sampleFormat(p []byte) (string, error) {
	if len(p) < 8 {
		return "", fmt.Errorf("%w: %d-byte stsd payload", ErrUnsupportedEncoding, len(p))
	}
	if p[0] != 0 {
		return "", fmt.Errorf("%w: stsd version %d", ErrUnsupportedEncoding, p[0])
	}
	if be.Uint32(p[4:]) == 0 || len(p) < 16 {
		return "", fmt.Errorf("%w: stsd carries no sample description", ErrUnsupportedEncoding)
	}
	return string(p[12:16]), nil
}

// timeRun is one (run length, per-sample duration) pair from an stts table.
type timeRun struct {
	Count    uint32
	Duration uint32
}

func parseTimeRuns(p []byte) ([]timeRun, error) {
	if len(p) < 8 {
		return nil, fmt.Errorf("%w: %d-byte stts payload", ErrUnsupportedEncoding, len(p))
	}
	if p[0] != 0 {
		return nil, fmt.Errorf("%w: stts version %d", ErrUnsupportedEncoding, p[0])
	}
	n := int(be.Uint32(p[4:]))
	if len(p) < 8+n*8 {
		return nil, fmt.Errorf("%w: %d stts entries declared, %d bytes present", ErrUnsupportedEncoding, n, len(p))
	}
	runs := make([]timeRun, n)
	for i := range runs {
		off := 8 + i*8
		runs[i] = timeRun{Count: be.Uint32(p[off:]), Duration: be.Uint32(p[off+4:])}
	}
	return runs, nil
}

// encodeTimeRuns rebuilds an stts payload, preserving the original
// version and flags bytes.
func encodeTimeRuns(vf []byte, runs []timeRun) []byte {
	out := make([]byte, 8+len(runs)*8)
	copy(out, vf[:4])
	be.PutUint32(out[4:], uint32(len(runs)))
	for i, r := range runs {
		off := 8 + i*8
		be.PutUint32(out[off:], r.Count)
		be.PutUint32(out[off+4:], r.Duration)
	}
	return out
}

// sampleSizes is the decoded view of an stsz payload. A non-zero Uniform
// value means every sample shares that size and Sizes is empty.
type sampleSizes struct {
	vf      [4]byte
	Uniform uint32
	Count   uint32
	Sizes   []uint32
}

func parseSampleSizes(p []byte) (*sampleSizes, error) {
	if len(p) < 12 {
		return nil, fmt.Errorf("%w: %d-byte stsz payload", ErrUnsupportedEncoding, len(p))
	}
	if p[0] != 0 {
		return nil, fmt.Errorf("%w: stsz version %d", ErrUnsupportedEncoding, p[0])
	}
	s := &sampleSizes{Uniform: be.Uint32(p[4:]), Count: be.Uint32(p[8:])}
	copy(s.vf[:], p[:4])
	if s.Uniform == 0 {
		n := int(s.Count)
		if len(p) < 12+n*4 {
			return nil, fmt.Errorf("%w: %d stsz entries declared, %d bytes present", ErrUnsupportedEncoding, n, len(p))
		}
		s.Sizes = make([]uint32, n)
		for i := range s.Sizes {
			s.Sizes[i] = be.Uint32(p[12+i*4:])
		}
	}
	return s, nil
}

func (s *sampleSizes) encode() []byte {
	out := make([]byte, 12+len(s.Sizes)*4)
	copy(out, s.vf[:])
	be.PutUint32(out[4:], s.Uniform)
	be.PutUint32(out[8:], s.Count)
	for i, v := range s.Sizes {
		be.PutUint32(out[12+i*4:], v)
	}
	return out
}

// chunkOffsets is the decoded view of an stco or co64 payload; Wide
// distinguishes the 64-bit variant.
type chunkOffsets struct {
	vf      [4]byte
	Wide    bool
	Offsets []uint64
}

func parseChunkOffsets(p []byte, wide bool) (*chunkOffsets, error) {
	if len(p) < 8 {
		return nil, fmt.Errorf("%w: %d-byte offset payload", ErrUnsupportedEncoding, len(p))
	}
	if p[0] != 0 {
		return nil, fmt.Errorf("%w: offset table version %d", ErrUnsupportedEncoding, p[0])
	}
	c := &chunkOffsets{Wide: wide}
	copy(c.vf[:], p[:4])
	n := int(be.Uint32(p[4:]))
	entry := 4
	if wide {
		entry = 8
	}
	if len(p) < 8+n*entry {
		return nil, fmt.Errorf("%w: %d offset entries declared, %d bytes present", ErrUnsupportedEncoding, n, len(p))
	}
	c.Offsets = make([]uint64, n)
	for i := range c.Offsets {
		if wide {
			c.Offsets[i] = be.Uint64(p[8+i*8:])
		} else {
			c.Offsets[i] = uint64(be.Uint32(p[8+i*4:]))
		}
	}
	return c, nil
}

func (c *chunkOffsets) encode() ([]byte, error) {
	entry := 4
	if c.Wide {
		entry = 8
	}
	out := make([]byte, 8+len(c.Offsets)*entry)
	copy(out, c.vf[:])
	be.PutUint32(out[4:], uint32(len(c.Offsets)))
	for i, v := range c.Offsets {
		if c.Wide {
			be.PutUint64(out[8+i*8:], v)
		} else {
			if v > math.MaxUint32 {
				return nil, fmt.Errorf("%w: offset %d exceeds 32-bit stco entry", ErrUnsupportedEncoding, v)
			}
			be.PutUint32(out[8+i*4:], uint32(v))
		}
	}
	return out, nil
}

// resizeCyclic returns a sequence of exactly n values, growing by
// cyclically repeating the existing sequence. This assumes the extended
// payload repeats the reference's sample pattern; it is a best-effort
// approximation, not a guarantee.
func resizeCyclic(seq []uint32, n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = seq[i%len(seq)]
	}
	return out
}

// resizeOffsetsCyclic resizes an offset sequence to exactly n entries.
// Offsets are absolute positions, so the cyclic repetition applies to the
// deltas between consecutive entries rather than the raw values.
func resizeOffsetsCyclic(offsets []uint64, n int) []uint64 {
	if n <= len(offsets) {
		out := make([]uint64, n)
		copy(out, offsets[:n])
		return out
	}
	deltas := make([]uint64, len(offsets)-1)
	for i := range deltas {
		deltas[i] = offsets[i+1] - offsets[i]
	}
	out := make([]uint64, 0, n)
	out = append(out, offsets...)
	for i := len(offsets); i < n; i++ {
		d := deltas[(i-1)%len(deltas)]
		out = append(out, out[len(out)-1]+d)
	}
	return out
}

// rescaleTimeRuns scales run lengths so the table totals exactly target
// samples, leaving per-sample durations untouched. The final run absorbs
// the rounding remainder.
func rescaleTimeRuns(runs []timeRun, ratio float64, target uint64) []timeRun {
	out := make([]timeRun, len(runs))
	var total uint64
	for i, r := range runs {
		scaled := uint64(math.Round(float64(r.Count) * ratio))
		// Run lengths saturate at the 32-bit ceiling on malformed tables.
		if scaled > math.MaxUint32 {
			scaled = math.MaxUint32
		}
		out[i] = timeRun{Count: uint32(scaled), Duration: r.Duration}
		total += scaled
	}
	if len(out) > 0 && total != target {
		last := uint64(out[len(out)-1].Count)
		adjusted := int64(last) + int64(target) - int64(total)
		if adjusted < 0 {
			adjusted = 0
		}
		out[len(out)-1].Count = uint32(adjusted)
	}
	return out
}
