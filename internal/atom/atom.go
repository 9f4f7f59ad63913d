package atom

import (
	"errors"
	"fmt"
)

// ErrStructural marks malformed container structure: headers that cannot be
// read, declared sizes smaller than the header, or children overrunning
// their parent.
var ErrStructural = errors.New("structural error")

// ErrSizeOverflow marks a recomputed atom size that cannot be represented
// in the serialized form.
var ErrSizeOverflow = errors.New("size overflow")

// Atom is one node of a parsed box tree. A container holds ordered
// Children and a nil Payload; a leaf holds Payload bytes and nil Children.
type Atom struct {
	Tag      Tag
	Payload  []byte
	Children []*Atom

	// Source bookkeeping, populated by the scanner. Synthesized atoms
	// carry Offset -1 and a zero DeclaredSize.
	Offset       int64
	HeaderLen    int
	DeclaredSize uint64

	// Truncated marks an atom whose declared size exceeded the bytes
	// actually available; Payload then holds only what was present.
	Truncated bool
}

// NewLeaf builds a synthesized leaf atom.
func NewLeaf(tag Tag, payload []byte) *Atom {
	return &Atom{Tag: tag, Payload: payload, Offset: -1}
}

// IsLeaf reports whether the atom holds raw payload bytes rather than
// child atoms.
func (a *Atom) IsLeaf() bool {
	return a.Children == nil
}

// PayloadOffset returns the source offset of the first payload byte.
func (a *Atom) PayloadOffset() int64 {
	return a.Offset + int64(a.HeaderLen)
}

// Child returns the first direct child with the given tag, or nil.
func (a *Atom) Child(tag Tag) *Atom {
	for _, c := range a.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// RemoveChild deletes the given direct child, preserving sibling order.
// It reports whether the child was present.
func (a *Atom) RemoveChild(child *Atom) bool {
	for i, c := range a.Children {
		if c == child {
			a.Children = append(a.Children[:i], a.Children[i+1:]...)
			return true
		}
	}
	return false
}

// FindPath walks a fixed container route and returns every atom reached by
// it, in document order. The first tag is resolved among a's children, the
// second among each match's children, and so on. All containers along the
// route must already be expanded.
func FindPath(a *Atom, path ...Tag) []*Atom {
	if len(path) == 0 {
		return nil
	}
	var out []*Atom
	for _, c := range a.Children {
		if c.Tag != path[0] {
			continue
		}
		if len(path) == 1 {
			out = append(out, c)
			continue
		}
		out = append(out, FindPath(c, path[1:]...)...)
	}
	return out
}

func structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}
