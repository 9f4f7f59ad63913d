package atom

import (
	"encoding/binary"
)

var be = binary.BigEndian

type header struct {
	size      uint64 // declared total size including the header; 0 means "to end of scope"
	headerLen int
	tag       Tag
}

// readHeader decodes an atom header at buf[off:]. The caller guarantees at
// least 8 bytes remain; ok is false when a declared extended size runs past
// the end of buf.
func readHeader(buf []byte, off int) (h header, ok bool) {
	h.size = uint64(be.Uint32(buf[off:]))
	copy(h.tag[:], buf[off+4:])
	h.headerLen = 8
	if h.size == 1 {
		if len(buf)-off < 16 {
			return h, false
		}
		h.size = be.Uint64(buf[off+8:])
		h.headerLen = 16
	}
	return h, true
}

// ScanTopLevel reads the ordered top-level atom sequence of a file held in
// buf. Atoms come back as opaque leaves; callers expand containers they
// care about.
//
// The scan is built to survive broken files: an atom whose declared size
// exceeds the remaining bytes, or whose header is internally inconsistent,
// is recorded with Truncated set and a payload of whatever bytes were
// actually present, and the scan carries on to end of input. A declared
// size of zero is accepted as "extends to end of file" for the final atom.
// Only a trailing fragment too short to hold any header is an error.
func ScanTopLevel(buf []byte) ([]*Atom, error) {
	var atoms []*Atom
	off := 0
	for off < len(buf) {
		rem := len(buf) - off
		if rem < 8 {
			return atoms, structuralf("trailing %d bytes at offset %d do not form an atom header", rem, off)
		}
		h, ok := readHeader(buf, off)
		a := &Atom{
			Tag:          h.tag,
			Offset:       int64(off),
			HeaderLen:    h.headerLen,
			DeclaredSize: h.size,
		}
		switch {
		case !ok, h.size != 0 && h.size < uint64(h.headerLen), h.size > uint64(rem):
			// Header lies about the size; keep what is actually there.
			a.Truncated = true
			if h.headerLen > rem {
				a.HeaderLen = rem
			}
			a.Payload = buf[off+a.HeaderLen:]
			off = len(buf)
		case h.size == 0:
			a.Payload = buf[off+h.headerLen:]
			off = len(buf)
		default:
			a.Payload = buf[off+h.headerLen : off+int(h.size)]
			off += int(h.size)
		}
		atoms = append(atoms, a)
	}
	return atoms, nil
}

// Expand parses a container atom's payload into child atoms, recursively
// expanding any child containers. Leaves and already-expanded atoms are
// left alone. Unlike the top-level scan, structure inside a container must
// be exact: zero sizes, short headers, and children overrunning the parent
// are all structural errors.
func (a *Atom) Expand() error {
	if !IsContainer(a.Tag) || a.Children != nil {
		return nil
	}
	children, err := parseChildren(a.Payload, a.PayloadOffset(), a.Tag)
	if err != nil {
		return err
	}
	a.Children = children
	a.Payload = nil
	return nil
}

func parseChildren(buf []byte, base int64, parent Tag) ([]*Atom, error) {
	var children []*Atom
	off := 0
	for off < len(buf) {
		rem := len(buf) - off
		if rem < 8 {
			return nil, structuralf("%d stray bytes inside %q", rem, parent)
		}
		h, ok := readHeader(buf, off)
		if !ok || h.size < uint64(h.headerLen) || h.size > uint64(rem) {
			return nil, structuralf("atom %q inside %q declares %d bytes, %d available", h.tag, parent, h.size, rem)
		}
		child := &Atom{
			Tag:          h.tag,
			Offset:       base + int64(off),
			HeaderLen:    h.headerLen,
			DeclaredSize: h.size,
			Payload:      buf[off+h.headerLen : off+int(h.size)],
		}
		if err := child.Expand(); err != nil {
			return nil, err
		}
		children = append(children, child)
		off += int(h.size)
	}
	return children, nil
}
