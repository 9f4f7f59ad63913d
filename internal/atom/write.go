package atom

import (
	"bytes"
	"fmt"
	"io"
	"math"
)

// compactSizeMax is the largest atom size the 32-bit header form can carry.
const compactSizeMax = math.MaxUint32

// EncodedSize returns the total serialized size of the atom, header
// included, recomputed from current contents. Stored sizes are never
// trusted: mutated trees always re-measure bottom-up. The 16-byte extended
// header is charged only when the 32-bit form would overflow.
func (a *Atom) EncodedSize() (uint64, error) {
	content, err := a.contentSize()
	if err != nil {
		return 0, err
	}
	size := content + 8
	if size > compactSizeMax {
		size = content + 16
	}
	if size > math.MaxInt64 {
		return 0, fmt.Errorf("%w: atom %q measures %d bytes", ErrSizeOverflow, a.Tag, size)
	}
	return size, nil
}

func (a *Atom) contentSize() (uint64, error) {
	if a.IsLeaf() {
		return uint64(len(a.Payload)), nil
	}
	var total uint64
	for _, c := range a.Children {
		n, err := c.EncodedSize()
		if err != nil {
			return 0, err
		}
		if total > math.MaxUint64-n {
			return 0, fmt.Errorf("%w: children of %q exceed representable size", ErrSizeOverflow, a.Tag)
		}
		total += n
	}
	return total, nil
}

// WriteTo serializes the atom tree, emitting freshly computed size fields
// for every node. It implements io.WriterTo.
func (a *Atom) WriteTo(w io.Writer) (int64, error) {
	size, err := a.EncodedSize()
	if err != nil {
		return 0, err
	}
	var hdr [16]byte
	hdrLen := 8
	if size > compactSizeMax {
		be.PutUint32(hdr[:4], 1)
		copy(hdr[4:8], a.Tag[:])
		be.PutUint64(hdr[8:16], size)
		hdrLen = 16
	} else {
		be.PutUint32(hdr[:4], uint32(size))
		copy(hdr[4:8], a.Tag[:])
	}
	written := int64(0)
	n, err := w.Write(hdr[:hdrLen])
	written += int64(n)
	if err != nil {
		return written, err
	}
	if a.IsLeaf() {
		n, err := w.Write(a.Payload)
		written += int64(n)
		return written, err
	}
	for _, c := range a.Children {
		n, err := c.WriteTo(w)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Bytes serializes the atom tree into a fresh buffer.
func (a *Atom) Bytes() ([]byte, error) {
	size, err := a.EncodedSize()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(int(size))
	if _, err := a.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
