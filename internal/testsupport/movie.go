// Package testsupport builds synthetic movie files for tests: minimal but
// structurally valid atom trees with controllable durations, sample
// tables, and payload sizes.
package testsupport

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

var be = binary.BigEndian

// Box frames payload with an 8-byte atom header.
func Box(tag string, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	be.PutUint32(out, uint32(8+len(payload)))
	copy(out[4:8], tag)
	copy(out[8:], payload)
	return out
}

// WideBox frames payload with a 16-byte extended-size atom header even
// though the size would fit the compact form.
func WideBox(tag string, payload []byte) []byte {
	out := make([]byte, 16+len(payload))
	be.PutUint32(out, 1)
	copy(out[4:8], tag)
	be.PutUint64(out[8:], uint64(16+len(payload)))
	copy(out[16:], payload)
	return out
}

// Container frames the concatenated children with an atom header.
func Container(tag string, children ...[]byte) []byte {
	var payload []byte
	for _, c := range children {
		payload = append(payload, c...)
	}
	return Box(tag, payload)
}

// Mvhd builds a version 0 movie header payload box with the given time
// unit and raw duration.
func Mvhd(timescale, duration uint32) []byte {
	p := make([]byte, 100)
	be.PutUint32(p[12:], timescale)
	be.PutUint32(p[16:], duration)
	be.PutUint32(p[96:], 2) // next track id
	return Box("mvhd", p)
}

// Tkhd builds a version 0 track header box.
func Tkhd(trackID, duration uint32) []byte {
	p := make([]byte, 84)
	be.PutUint32(p[12:], trackID)
	be.PutUint32(p[20:], duration)
	return Box("tkhd", p)
}

// Mdhd builds a version 0 media header box with its own time unit.
func Mdhd(timescale, duration uint32) []byte {
	p := make([]byte, 24)
	be.PutUint32(p[12:], timescale)
	be.PutUint32(p[16:], duration)
	return Box("mdhd", p)
}

// Elst builds a version 0 edit list box from (duration, mediaTime, rate)
// triples.
func Elst(entries ...[3]uint32) []byte {
	p := make([]byte, 8+12*len(entries))
	be.PutUint32(p[4:], uint32(len(entries)))
	for i, e := range entries {
		off := 8 + i*12
		be.PutUint32(p[off:], e[0])
		be.PutUint32(p[off+4:], e[1])
		be.PutUint32(p[off+8:], e[2])
	}
	return Box("elst", p)
}

// Stsd builds a sample description box with one entry of the given format.
func Stsd(format string) []byte {
	p := make([]byte, 8+16)
	be.PutUint32(p[4:], 1)
	be.PutUint32(p[8:], 16)
	copy(p[12:16], format)
	be.PutUint16(p[22:], 1) // data reference index
	return Box("stsd", p)
}

// Stts builds a time-to-sample box from (count, duration) pairs.
func Stts(runs ...[2]uint32) []byte {
	p := make([]byte, 8+8*len(runs))
	be.PutUint32(p[4:], uint32(len(runs)))
	for i, r := range runs {
		off := 8 + i*8
		be.PutUint32(p[off:], r[0])
		be.PutUint32(p[off+4:], r[1])
	}
	return Box("stts", p)
}

// Stsz builds a per-sample size box.
func Stsz(sizes ...uint32) []byte {
	p := make([]byte, 12+4*len(sizes))
	be.PutUint32(p[8:], uint32(len(sizes)))
	for i, s := range sizes {
		be.PutUint32(p[12+i*4:], s)
	}
	return Box("stsz", p)
}

// StszUniform builds a size box where every sample shares one size and no
// table follows.
func StszUniform(size, count uint32) []byte {
	p := make([]byte, 12)
	be.PutUint32(p[4:], size)
	be.PutUint32(p[8:], count)
	return Box("stsz", p)
}

// Stco builds a 32-bit chunk offset box.
func Stco(offsets ...uint32) []byte {
	p := make([]byte, 8+4*len(offsets))
	be.PutUint32(p[4:], uint32(len(offsets)))
	for i, o := range offsets {
		be.PutUint32(p[8+i*4:], o)
	}
	return Box("stco", p)
}

// Co64 builds a 64-bit chunk offset box.
func Co64(offsets ...uint64) []byte {
	p := make([]byte, 8+8*len(offsets))
	be.PutUint32(p[4:], uint32(len(offsets)))
	for i, o := range offsets {
		be.PutUint64(p[8+i*8:], o)
	}
	return Box("co64", p)
}

// Track assembles a trak box around the provided stbl children.
func Track(trackID, duration uint32, mdhd []byte, stsd []byte, tables ...[]byte) []byte {
	stblChildren := append([][]byte{stsd}, tables...)
	return Container("trak",
		Tkhd(trackID, duration),
		Container("mdia",
			mdhd,
			Container("minf",
				Container("stbl", stblChildren...),
			),
		),
	)
}

// Payload returns n bytes of a repeating pattern for mdat contents.
func Payload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

// WriteMovie concatenates the given atoms into a file under dir and
// returns its path.
func WriteMovie(t testing.TB, dir, name string, atoms ...[]byte) string {
	t.Helper()
	var buf []byte
	for _, a := range atoms {
		buf = append(buf, a...)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
