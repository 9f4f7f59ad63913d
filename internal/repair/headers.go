package repair

import (
	"encoding/binary"
	"fmt"
	"math"
)

var be = binary.BigEndian

// movieHeader is the decoded view of the fixed duration fields shared by
// mvhd and mdhd payloads. Version 0 carries 32-bit times, version 1 64-bit;
// the duration is mutated in place through the retained payload slice.
type movieHeader struct {
	payload   []byte
	version   byte
	timescale uint32
	duration  uint64
	durOff    int
	durWide   bool
}

func parseMovieHeader(p []byte) (*movieHeader, error) {
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: %d-byte payload", ErrUnsupportedEncoding, len(p))
	}
	h := &movieHeader{payload: p, version: p[0]}
	switch h.version {
	case 0:
		if len(p) < 20 {
			return nil, fmt.Errorf("%w: version 0 payload of %d bytes", ErrUnsupportedEncoding, len(p))
		}
		h.timescale = be.Uint32(p[12:])
		h.duration = uint64(be.Uint32(p[16:]))
		h.durOff = 16
	case 1:
		if len(p) < 32 {
			return nil, fmt.Errorf("%w: version 1 payload of %d bytes", ErrUnsupportedEncoding, len(p))
		}
		h.timescale = be.Uint32(p[20:])
		h.duration = be.Uint64(p[24:])
		h.durOff = 24
		h.durWide = true
	default:
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedEncoding, h.version)
	}
	return h, nil
}

func (h *movieHeader) setDuration(d uint64) error {
	if err := putDuration(h.payload, h.durOff, h.durWide, d); err != nil {
		return err
	}
	h.duration = d
	return nil
}

// seconds converts raw duration units using the header's own time unit.
func (h *movieHeader) seconds(units uint64) float64 {
	if h.timescale == 0 {
		return 0
	}
	return float64(units) / float64(h.timescale)
}

// trackHeader is the decoded view of a tkhd payload. Track headers have no
// time unit of their own; durations are expressed in the movie time unit.
type trackHeader struct {
	payload  []byte
	version  byte
	trackID  uint32
	duration uint64
	durOff   int
	durWide  bool
}

func parseTrackHeader(p []byte) (*trackHeader, error) {
	if len(p) < 4 {
		return nil, fmt.Errorf("%w: %d-byte payload", ErrUnsupportedEncoding, len(p))
	}
	h := &trackHeader{payload: p, version: p[0]}
	switch h.version {
	case 0:
		if len(p) < 24 {
			return nil, fmt.Errorf("%w: version 0 payload of %d bytes", ErrUnsupportedEncoding, len(p))
		}
		h.trackID = be.Uint32(p[12:])
		h.duration = uint64(be.Uint32(p[20:]))
		h.durOff = 20
	case 1:
		if len(p) < 36 {
			return nil, fmt.Errorf("%w: version 1 payload of %d bytes", ErrUnsupportedEncoding, len(p))
		}
		h.trackID = be.Uint32(p[20:])
		h.duration = be.Uint64(p[28:])
		h.durOff = 28
		h.durWide = true
	default:
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedEncoding, h.version)
	}
	return h, nil
}

func (h *trackHeader) setDuration(d uint64) error {
	if err := putDuration(h.payload, h.durOff, h.durWide, d); err != nil {
		return err
	}
	h.duration = d
	return nil
}

// editList is the decoded view of an elst payload. Each entry's segment
// duration is expressed in the movie time unit.
type editList struct {
	payload []byte
	count   int
	stride  int
	wide    bool
}

func parseEditList(p []byte) (*editList, error) {
	if len(p) < 8 {
		return nil, fmt.Errorf("%w: %d-byte payload", ErrUnsupportedEncoding, len(p))
	}
	e := &editList{payload: p, count: int(be.Uint32(p[4:]))}
	switch p[0] {
	case 0:
		e.stride = 12
	case 1:
		e.stride = 20
		e.wide = true
	default:
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedEncoding, p[0])
	}
	if len(p) < 8+e.count*e.stride {
		return nil, fmt.Errorf("%w: %d entries declared, %d bytes present", ErrUnsupportedEncoding, e.count, len(p))
	}
	return e, nil
}

func (e *editList) segmentDuration(i int) uint64 {
	off := 8 + i*e.stride
	if e.wide {
		return be.Uint64(e.payload[off:])
	}
	return uint64(be.Uint32(e.payload[off:]))
}

func (e *editList) setSegmentDuration(i int, d uint64) error {
	return putDuration(e.payload, 8+i*e.stride, e.wide, d)
}

func putDuration(p []byte, off int, wide bool, d uint64) error {
	if wide {
		be.PutUint64(p[off:], d)
		return nil
	}
	if d > math.MaxUint32 {
		return fmt.Errorf("%w: duration %d exceeds 32-bit field", ErrUnsupportedEncoding, d)
	}
	be.PutUint32(p[off:], uint32(d))
	return nil
}

// scaleUnits applies the constant-bitrate duration proxy to a raw duration
// value. The atom's own time unit cancels out, so scaling raw units equals
// scaling seconds and re-encoding at the same unit.
func scaleUnits(units uint64, ratio float64) uint64 {
	return uint64(math.Round(float64(units) * ratio))
}
