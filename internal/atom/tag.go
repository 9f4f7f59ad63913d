package atom

// Tag is a 4-byte ASCII atom type identifier.
type Tag [4]byte

// MakeTag builds a Tag from a 4-character string.
func MakeTag(s string) Tag {
	var t Tag
	copy(t[:], s)
	return t
}

// String renders the tag, substituting a dot for unprintable bytes so
// damaged headers remain displayable.
func (t Tag) String() string {
	out := make([]byte, 4)
	for i, b := range t {
		if b < 0x20 || b > 0x7e {
			b = '.'
		}
		out[i] = b
	}
	return string(out)
}

// Tags the repair pipeline needs by name.
var (
	TagFtyp = MakeTag("ftyp")
	TagWide = MakeTag("wide")
	TagFree = MakeTag("free")
	TagMdat = MakeTag("mdat")
	TagMoov = MakeTag("moov")
	TagMvhd = MakeTag("mvhd")
	TagTrak = MakeTag("trak")
	TagTkhd = MakeTag("tkhd")
	TagEdts = MakeTag("edts")
	TagElst = MakeTag("elst")
	TagMdia = MakeTag("mdia")
	TagMdhd = MakeTag("mdhd")
	TagHdlr = MakeTag("hdlr")
	TagMinf = MakeTag("minf")
	TagVmhd = MakeTag("vmhd")
	TagSmhd = MakeTag("smhd")
	TagDinf = MakeTag("dinf")
	TagDref = MakeTag("dref")
	TagStbl = MakeTag("stbl")
	TagStsd = MakeTag("stsd")
	TagStts = MakeTag("stts")
	TagStss = MakeTag("stss")
	TagStsz = MakeTag("stsz")
	TagStsc = MakeTag("stsc")
	TagStco = MakeTag("stco")
	TagCo64 = MakeTag("co64")
)

// containerTags lists the atom types whose payload is an ordered sequence
// of child atoms. Everything else stays an opaque leaf.
var containerTags = map[Tag]bool{
	TagMoov: true,
	TagTrak: true,
	TagEdts: true,
	TagMdia: true,
	TagMinf: true,
	TagDinf: true,
	TagStbl: true,
}

// IsContainer reports whether atoms of this type hold child atoms.
func IsContainer(t Tag) bool {
	return containerTags[t]
}
