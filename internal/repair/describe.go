package repair

import (
	"fmt"

	"movrepair/internal/atom"
)

// DescribeAtom summarizes the decoded fixed fields of the structural atoms
// this engine understands, for inspection output. Unknown types and
// undecodable payloads return an empty string.
func DescribeAtom(a *atom.Atom) string {
	if !a.IsLeaf() {
		return ""
	}
	switch a.Tag {
	case atom.TagMvhd, atom.TagMdhd:
		h, err := parseMovieHeader(a.Payload)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("v%d timescale=%d duration=%d (%.4fs)", h.version, h.timescale, h.duration, h.seconds(h.duration))
	case atom.TagTkhd:
		h, err := parseTrackHeader(a.Payload)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("v%d track_id=%d duration=%d", h.version, h.trackID, h.duration)
	case atom.TagElst:
		e, err := parseEditList(a.Payload)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("%d edit segment(s)", e.count)
	case atom.TagStts:
		runs, err := parseTimeRuns(a.Payload)
		if err != nil {
			return ""
		}
		var samples uint64
		for _, r := range runs {
			samples += uint64(r.Count)
		}
		return fmt.Sprintf("%d run(s), %d samples", len(runs), samples)
	case atom.TagStsz:
		s, err := parseSampleSizes(a.Payload)
		if err != nil {
			return ""
		}
		if s.Uniform != 0 {
			return fmt.Sprintf("%d samples, uniform %d bytes", s.Count, s.Uniform)
		}
		return fmt.Sprintf("%d per-sample sizes", s.Count)
	case atom.TagStco, atom.TagCo64:
		c, err := parseChunkOffsets(a.Payload, a.Tag == atom.TagCo64)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("%d chunk offset(s)", len(c.Offsets))
	case atom.TagStsd:
		format, err := sampleFormat(a.Payload)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("format %q", format)
	default:
		return ""
	}
}
