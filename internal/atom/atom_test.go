package atom

import (
	"bytes"
	"errors"
	"testing"
)

func box(tag string, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	be.PutUint32(out, uint32(8+len(payload)))
	copy(out[4:8], tag)
	copy(out[8:], payload)
	return out
}

func wideBox(tag string, payload []byte) []byte {
	out := make([]byte, 16+len(payload))
	be.PutUint32(out, 1)
	copy(out[4:8], tag)
	be.PutUint64(out[8:], uint64(16+len(payload)))
	copy(out[16:], payload)
	return out
}

func concat(bufs ...[]byte) []byte {
	var out []byte
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

func TestScanTopLevel(t *testing.T) {
	buf := concat(
		box("ftyp", []byte{'q', 't', ' ', ' '}),
		box("mdat", bytes.Repeat([]byte{0x42}, 32)),
		box("moov", nil),
	)

	atoms, err := ScanTopLevel(buf)
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	if len(atoms) != 3 {
		t.Fatalf("ScanTopLevel() returned %d atoms, want 3", len(atoms))
	}
	wantTags := []string{"ftyp", "mdat", "moov"}
	for i, a := range atoms {
		if a.Tag.String() != wantTags[i] {
			t.Errorf("atom %d tag = %q, want %q", i, a.Tag, wantTags[i])
		}
		if a.Truncated {
			t.Errorf("atom %d unexpectedly truncated", i)
		}
	}
	if atoms[1].Offset != 12 || atoms[1].PayloadOffset() != 20 {
		t.Errorf("mdat offsets = (%d, %d), want (12, 20)", atoms[1].Offset, atoms[1].PayloadOffset())
	}
	if atoms[1].DeclaredSize != 40 {
		t.Errorf("mdat DeclaredSize = %d, want 40", atoms[1].DeclaredSize)
	}
}

func TestScanTopLevelExtendedSize(t *testing.T) {
	payload := bytes.Repeat([]byte{0xaa}, 24)
	buf := concat(box("ftyp", nil), wideBox("mdat", payload))

	atoms, err := ScanTopLevel(buf)
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	if len(atoms) != 2 {
		t.Fatalf("ScanTopLevel() returned %d atoms, want 2", len(atoms))
	}
	mdat := atoms[1]
	if mdat.HeaderLen != 16 {
		t.Errorf("HeaderLen = %d, want 16", mdat.HeaderLen)
	}
	if !bytes.Equal(mdat.Payload, payload) {
		t.Errorf("payload mismatch after extended header")
	}
	if mdat.PayloadOffset() != 8+16 {
		t.Errorf("PayloadOffset() = %d, want 24", mdat.PayloadOffset())
	}
}

func TestScanTopLevelZeroSizeFinal(t *testing.T) {
	payload := bytes.Repeat([]byte{0x11}, 40)
	buf := concat(box("moov", nil), box("mdat", nil))
	// Zero out the final atom's size field: it should claim the rest of
	// the file.
	be.PutUint32(buf[8:], 0)
	buf = append(buf, payload...)

	atoms, err := ScanTopLevel(buf)
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	if len(atoms) != 2 {
		t.Fatalf("ScanTopLevel() returned %d atoms, want 2", len(atoms))
	}
	mdat := atoms[1]
	if mdat.Truncated {
		t.Error("zero-size final atom marked truncated")
	}
	if len(mdat.Payload) != len(payload) {
		t.Errorf("payload length = %d, want %d", len(mdat.Payload), len(payload))
	}
}

func TestScanTopLevelTruncatedAtom(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 100)
	mdat := box("mdat", payload)
	// Declare far more bytes than the file holds.
	be.PutUint32(mdat, 4096)
	buf := concat(box("ftyp", nil), mdat)

	atoms, err := ScanTopLevel(buf)
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	if len(atoms) != 2 {
		t.Fatalf("ScanTopLevel() returned %d atoms, want 2", len(atoms))
	}
	got := atoms[1]
	if !got.Truncated {
		t.Error("overdeclared atom not marked truncated")
	}
	if got.DeclaredSize != 4096 {
		t.Errorf("DeclaredSize = %d, want 4096", got.DeclaredSize)
	}
	if len(got.Payload) != len(payload) {
		t.Errorf("truncated payload length = %d, want %d", len(got.Payload), len(payload))
	}
}

func TestScanTopLevelUndersizedHeader(t *testing.T) {
	bad := box("free", nil)
	be.PutUint32(bad, 4) // smaller than its own header
	buf := concat(box("ftyp", nil), bad, box("moov", nil))

	atoms, err := ScanTopLevel(buf)
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	// The lying atom swallows the rest of the scan.
	if len(atoms) != 2 {
		t.Fatalf("ScanTopLevel() returned %d atoms, want 2", len(atoms))
	}
	if !atoms[1].Truncated {
		t.Error("undersized atom not marked truncated")
	}
}

func TestScanTopLevelTrailingFragment(t *testing.T) {
	buf := append(box("ftyp", nil), 0x00, 0x00, 0x01)

	atoms, err := ScanTopLevel(buf)
	if !errors.Is(err, ErrStructural) {
		t.Fatalf("ScanTopLevel() error = %v, want ErrStructural", err)
	}
	// Atoms scanned before the fragment still come back.
	if len(atoms) != 1 {
		t.Errorf("ScanTopLevel() returned %d atoms before error, want 1", len(atoms))
	}
}

func TestExpand(t *testing.T) {
	tkhd := box("tkhd", bytes.Repeat([]byte{0}, 84))
	mvhd := box("mvhd", bytes.Repeat([]byte{0}, 100))
	buf := box("moov", concat(mvhd, box("trak", tkhd)))

	atoms, err := ScanTopLevel(buf)
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	moov := atoms[0]
	if err := moov.Expand(); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if moov.IsLeaf() {
		t.Fatal("moov still a leaf after Expand")
	}
	if len(moov.Children) != 2 {
		t.Fatalf("moov has %d children, want 2", len(moov.Children))
	}
	trak := moov.Child(MakeTag("trak"))
	if trak == nil {
		t.Fatal("trak child not found")
	}
	if trak.Child(TagTkhd) == nil {
		t.Error("tkhd grandchild not found")
	}
	// Offsets are propagated from the source buffer.
	if got := moov.Children[0].Offset; got != 8 {
		t.Errorf("mvhd Offset = %d, want 8", got)
	}
}

func TestExpandLeafIsNoop(t *testing.T) {
	a := NewLeaf(TagMdat, []byte{1, 2, 3})
	if err := a.Expand(); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if !a.IsLeaf() || len(a.Payload) != 3 {
		t.Error("Expand() mutated a leaf atom")
	}
}

func TestExpandMalformedChild(t *testing.T) {
	child := box("tkhd", bytes.Repeat([]byte{0}, 16))
	be.PutUint32(child, 4096) // overruns the parent
	buf := box("moov", child)

	atoms, err := ScanTopLevel(buf)
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	if err := atoms[0].Expand(); !errors.Is(err, ErrStructural) {
		t.Errorf("Expand() error = %v, want ErrStructural", err)
	}
}

func TestExpandStrayBytes(t *testing.T) {
	buf := box("moov", []byte{0, 0, 0})

	atoms, err := ScanTopLevel(buf)
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	if err := atoms[0].Expand(); !errors.Is(err, ErrStructural) {
		t.Errorf("Expand() error = %v, want ErrStructural", err)
	}
}

func TestRoundTrip(t *testing.T) {
	buf := concat(
		box("ftyp", []byte{'q', 't', ' ', ' '}),
		box("moov", concat(
			box("mvhd", bytes.Repeat([]byte{0x01}, 100)),
			box("trak", box("tkhd", bytes.Repeat([]byte{0x02}, 84))),
		)),
		box("mdat", bytes.Repeat([]byte{0x42}, 64)),
	)

	atoms, err := ScanTopLevel(buf)
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	var out []byte
	for _, a := range atoms {
		if err := a.Expand(); err != nil {
			t.Fatalf("Expand(%q) error = %v", a.Tag, err)
		}
		b, err := a.Bytes()
		if err != nil {
			t.Fatalf("Bytes(%q) error = %v", a.Tag, err)
		}
		out = append(out, b...)
	}
	if !bytes.Equal(out, buf) {
		t.Error("serialized tree differs from the original bytes")
	}
}

func TestRoundTripExtendedHeaderNormalized(t *testing.T) {
	// A wide header on a small atom collapses to the compact form on
	// re-serialization.
	payload := bytes.Repeat([]byte{0x55}, 16)
	atoms, err := ScanTopLevel(wideBox("mdat", payload))
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	got, err := atoms[0].Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if !bytes.Equal(got, box("mdat", payload)) {
		t.Error("small atom kept its extended header")
	}
}

func TestEncodedSize(t *testing.T) {
	inner := NewLeaf(TagTkhd, make([]byte, 84))
	trak := &Atom{Tag: TagTrak, Children: []*Atom{inner}}
	moov := &Atom{Tag: TagMoov, Children: []*Atom{NewLeaf(TagMvhd, make([]byte, 100)), trak}}

	size, err := moov.EncodedSize()
	if err != nil {
		t.Fatalf("EncodedSize() error = %v", err)
	}
	want := uint64(8 + (8 + 100) + (8 + (8 + 84)))
	if size != want {
		t.Errorf("EncodedSize() = %d, want %d", size, want)
	}
}

func TestEncodedSizeIgnoresStaleDeclaredSize(t *testing.T) {
	atoms, err := ScanTopLevel(box("mdat", make([]byte, 24)))
	if err != nil {
		t.Fatalf("ScanTopLevel() error = %v", err)
	}
	a := atoms[0]
	a.Payload = make([]byte, 100)

	size, err := a.EncodedSize()
	if err != nil {
		t.Fatalf("EncodedSize() error = %v", err)
	}
	if size != 108 {
		t.Errorf("EncodedSize() = %d, want 108 after payload grew", size)
	}
}

func TestFindPath(t *testing.T) {
	stts := NewLeaf(TagStts, make([]byte, 8))
	stbl := &Atom{Tag: TagStbl, Children: []*Atom{stts}}
	minf := &Atom{Tag: TagMinf, Children: []*Atom{stbl}}
	mdia := &Atom{Tag: TagMdia, Children: []*Atom{minf}}
	trak1 := &Atom{Tag: TagTrak, Children: []*Atom{mdia}}
	trak2 := &Atom{Tag: TagTrak, Children: []*Atom{}}
	moov := &Atom{Tag: TagMoov, Children: []*Atom{trak1, trak2}}

	traks := FindPath(moov, TagTrak)
	if len(traks) != 2 {
		t.Fatalf("FindPath(trak) found %d atoms, want 2", len(traks))
	}
	tables := FindPath(moov, TagTrak, TagMdia, TagMinf, TagStbl, TagStts)
	if len(tables) != 1 || tables[0] != stts {
		t.Errorf("FindPath(deep) found %d atoms, want the one stts", len(tables))
	}
	if got := FindPath(moov, TagMdat); got != nil {
		t.Errorf("FindPath(absent) = %v, want nil", got)
	}
}

func TestRemoveChild(t *testing.T) {
	a := NewLeaf(TagTkhd, nil)
	b := NewLeaf(TagMdhd, nil)
	c := NewLeaf(TagElst, nil)
	parent := &Atom{Tag: TagTrak, Children: []*Atom{a, b, c}}

	if !parent.RemoveChild(b) {
		t.Fatal("RemoveChild(present) = false")
	}
	if len(parent.Children) != 2 || parent.Children[0] != a || parent.Children[1] != c {
		t.Error("RemoveChild broke sibling order")
	}
	if parent.RemoveChild(b) {
		t.Error("RemoveChild(absent) = true")
	}
}

func TestTagString(t *testing.T) {
	tests := []struct {
		name string
		tag  Tag
		want string
	}{
		{"printable", MakeTag("moov"), "moov"},
		{"control bytes", Tag{0x00, 'a', 0x7f, 'b'}, ".a.b"},
		{"high bytes", Tag{0xc2, 0xa9, 'x', 'y'}, "..xy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tag.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsContainer(t *testing.T) {
	for _, tag := range []Tag{TagMoov, TagTrak, TagEdts, TagMdia, TagMinf, TagDinf, TagStbl} {
		if !IsContainer(tag) {
			t.Errorf("IsContainer(%q) = false", tag)
		}
	}
	for _, tag := range []Tag{TagMdat, TagMvhd, TagStsd, TagFtyp, TagHdlr} {
		if IsContainer(tag) {
			t.Errorf("IsContainer(%q) = true", tag)
		}
	}
}
