package repair

import (
	"fmt"
	"log/slog"
	"math"

	"movrepair/internal/atom"
	"movrepair/internal/logging"
)

// timecodeFormat is the sample description of tracks that cannot be
// meaningfully extended: a single sample spanning the whole clip.
const timecodeFormat = "tmcd"

// engine rewrites the transplanted moov tree so its durations and sample
// tables describe a payload scaled by ratio.
type engine struct {
	ratio      float64
	movieScale uint32
	trackIndex map[*atom.Atom]int
	log        *slog.Logger
	report     *Report
}

// repairMoov runs every metadata pass over an expanded moov tree. A
// missing movie header is fatal; everything else degrades to reported
// omissions so one malformed field never aborts the run.
func (e *engine) repairMoov(moov *atom.Atom) error {
	mvhdAtom := moov.Child(atom.TagMvhd)
	if mvhdAtom == nil {
		return Wrap(ErrMissingAtom, "moov/mvhd", "locate movie header", nil)
	}
	if mvhd, err := parseMovieHeader(mvhdAtom.Payload); err != nil {
		e.report.Skip("moov/mvhd", "movie duration left unmodified: %v", err)
	} else {
		e.movieScale = mvhd.timescale
		e.rewriteDuration("moov/mvhd", mvhd.timescale, mvhd.duration, mvhd.setDuration)
	}

	// Children are copied up front because timecode tracks are removed
	// mid-iteration. Original positions are recorded so every later pass
	// reports the same trak[N] locations.
	tracks := atom.FindPath(moov, atom.TagTrak)
	e.trackIndex = make(map[*atom.Atom]int, len(tracks))
	for i, trak := range tracks {
		e.trackIndex[trak] = i + 1
	}
	for _, trak := range tracks {
		e.repairTrack(moov, trak, e.trackIndex[trak])
	}
	return nil
}

func (e *engine) repairTrack(moov, trak *atom.Atom, index int) {
	loc := fmt.Sprintf("trak[%d]", index)

	format := ""
	if stsd := firstAtom(trak, atom.TagMdia, atom.TagMinf, atom.TagStbl, atom.TagStsd); stsd != nil {
		f, err := sampleFormat(stsd.Payload)
		if err != nil {
			e.report.Skip(loc+"/stsd", "stream type unknown: %v", err)
		} else {
			format = f
		}
	}
	if format == timecodeFormat {
		moov.RemoveChild(trak)
		e.report.Change(loc, "removed %s timecode track", format)
		e.log.Info("removed non-extensible track", logging.String("location", loc), logging.String("format", format))
		return
	}

	if tkhdAtom := trak.Child(atom.TagTkhd); tkhdAtom == nil {
		e.report.Skip(loc+"/tkhd", "track header absent")
	} else if tkhd, err := parseTrackHeader(tkhdAtom.Payload); err != nil {
		e.report.Skip(loc+"/tkhd", "track duration left unmodified: %v", err)
	} else {
		e.rewriteDuration(loc+"/tkhd", e.movieScale, tkhd.duration, tkhd.setDuration)
	}

	for _, elstAtom := range atom.FindPath(trak, atom.TagEdts, atom.TagElst) {
		e.rewriteEditList(loc+"/edts/elst", elstAtom)
	}

	for _, mdhdAtom := range atom.FindPath(trak, atom.TagMdia, atom.TagMdhd) {
		mdhd, err := parseMovieHeader(mdhdAtom.Payload)
		if err != nil {
			e.report.Skip(loc+"/mdia/mdhd", "media duration left unmodified: %v", err)
			continue
		}
		e.rewriteDuration(loc+"/mdia/mdhd", mdhd.timescale, mdhd.duration, mdhd.setDuration)
	}

	stbl := firstAtom(trak, atom.TagMdia, atom.TagMinf, atom.TagStbl)
	if stbl == nil {
		e.report.Skip(loc+"/stbl", "sample table absent, tables left unmodified")
		return
	}
	e.extendSampleTables(loc, format, stbl)
}

// rewriteDuration applies the ratio to one duration field. The scale is
// only used for reporting in seconds; the raw-unit scaling is unit-free.
func (e *engine) rewriteDuration(loc string, scale uint32, old uint64, set func(uint64) error) {
	updated := scaleUnits(old, e.ratio)
	if err := set(updated); err != nil {
		e.report.Skip(loc, "duration left unmodified: %v", err)
		return
	}
	if scale > 0 {
		oldSec := float64(old) / float64(scale)
		newSec := float64(updated) / float64(scale)
		e.report.Change(loc, "duration %.4fs -> %.4fs", oldSec, newSec)
		e.log.Info("adjusted duration",
			logging.String("location", loc),
			logging.Float64("old_seconds", oldSec),
			logging.Float64("new_seconds", newSec))
		return
	}
	e.report.Change(loc, "duration %d -> %d units", old, updated)
}

func (e *engine) rewriteEditList(loc string, elstAtom *atom.Atom) {
	elst, err := parseEditList(elstAtom.Payload)
	if err != nil {
		e.report.Skip(loc, "edit list left unmodified: %v", err)
		return
	}
	// Every scaled value is validated before any write so a failure never
	// leaves the list half rewritten.
	updated := make([]uint64, elst.count)
	var oldTotal, newTotal uint64
	for i := 0; i < elst.count; i++ {
		old := elst.segmentDuration(i)
		updated[i] = scaleUnits(old, e.ratio)
		if !elst.wide && updated[i] > math.MaxUint32 {
			e.report.Skip(loc, "edit list left unmodified: segment %d duration %d exceeds 32-bit field", i, updated[i])
			return
		}
		oldTotal += old
		newTotal += updated[i]
	}
	for i, d := range updated {
		if err := elst.setSegmentDuration(i, d); err != nil {
			e.report.Skip(loc, "edit list modified only before segment %d: %v", i, err)
			return
		}
	}
	// Segment durations use the movie time unit, not the track's.
	if e.movieScale > 0 {
		e.report.Change(loc, "%d edit segment(s) scaled, total %.4fs -> %.4fs",
			elst.count, float64(oldTotal)/float64(e.movieScale), float64(newTotal)/float64(e.movieScale))
		return
	}
	e.report.Change(loc, "%d edit segment duration(s) scaled", elst.count)
}

// extendSampleTables grows the size, time-run, and offset tables of one
// extensible track so they index round(old_count * ratio) samples.
func (e *engine) extendSampleTables(loc, format string, stbl *atom.Atom) {
	var (
		newCount  uint64
		haveCount bool
	)

	if stszAtom := stbl.Child(atom.TagStsz); stszAtom == nil {
		e.report.Skip(loc+"/stbl/stsz", "sample size table absent")
	} else if sizes, err := parseSampleSizes(stszAtom.Payload); err != nil {
		e.report.Skip(loc+"/stbl/stsz", "sample size table left unmodified: %v", err)
	} else if scaled := uint64(math.Round(float64(sizes.Count) * e.ratio)); scaled > math.MaxUint32 {
		e.report.Skip(loc+"/stbl/stsz", "scaled sample count %d exceeds 32-bit field", scaled)
	} else {
		oldCount := uint64(sizes.Count)
		newCount = scaled
		haveCount = true
		switch {
		case sizes.Uniform != 0:
			sizes.Count = uint32(newCount)
			stszAtom.Payload = sizes.encode()
			e.report.Change(loc+"/stbl/stsz", "sample count %d -> %d (uniform %d-byte samples)", oldCount, newCount, sizes.Uniform)
		case len(sizes.Sizes) < 2:
			e.report.Skip(loc+"/stbl/stsz", "size table of %d entry(ies) is too small to extrapolate", len(sizes.Sizes))
		default:
			sizes.Sizes = resizeCyclic(sizes.Sizes, int(newCount))
			sizes.Count = uint32(newCount)
			stszAtom.Payload = sizes.encode()
			e.report.Change(loc+"/stbl/stsz", "size table extended %d -> %d entries", oldCount, newCount)
			e.log.Info("extended sample size table",
				logging.String("location", loc),
				logging.String("format", format),
				logging.Uint64("old_samples", oldCount),
				logging.Uint64("new_samples", newCount))
		}
	}

	if sttsAtom := stbl.Child(atom.TagStts); sttsAtom == nil {
		e.report.Skip(loc+"/stbl/stts", "time-run table absent")
	} else if runs, err := parseTimeRuns(sttsAtom.Payload); err != nil {
		e.report.Skip(loc+"/stbl/stts", "time-run table left unmodified: %v", err)
	} else if len(runs) == 0 {
		e.report.Skip(loc+"/stbl/stts", "time-run table empty")
	} else {
		var oldTotal uint64
		for _, r := range runs {
			oldTotal += uint64(r.Count)
		}
		target := newCount
		if !haveCount {
			target = uint64(math.Round(float64(oldTotal) * e.ratio))
		}
		if target > math.MaxUint32 {
			e.report.Skip(loc+"/stbl/stts", "scaled sample count %d exceeds 32-bit field", target)
		} else {
			runs = rescaleTimeRuns(runs, e.ratio, target)
			sttsAtom.Payload = encodeTimeRuns(sttsAtom.Payload, runs)
			e.report.Change(loc+"/stbl/stts", "time runs rescaled %d -> %d samples", oldTotal, target)
		}
	}

	offsetAtom, wide := stbl.Child(atom.TagStco), false
	if offsetAtom == nil {
		offsetAtom, wide = stbl.Child(atom.TagCo64), true
	}
	switch {
	case offsetAtom == nil:
		e.report.Skip(loc+"/stbl/stco", "chunk offset table absent")
	default:
		offsets, err := parseChunkOffsets(offsetAtom.Payload, wide)
		if err != nil {
			e.report.Skip(loc+"/stbl/"+offsetAtom.Tag.String(), "offset table left unmodified: %v", err)
			return
		}
		if len(offsets.Offsets) < 2 {
			e.report.Skip(loc+"/stbl/"+offsetAtom.Tag.String(), "offset table of %d entry(ies) is too small to extrapolate", len(offsets.Offsets))
			return
		}
		oldLen := len(offsets.Offsets)
		scaled := newCount
		if !haveCount {
			scaled = uint64(math.Round(float64(oldLen) * e.ratio))
		}
		if scaled > math.MaxUint32 {
			e.report.Skip(loc+"/stbl/"+offsetAtom.Tag.String(), "scaled chunk count %d exceeds 32-bit field", scaled)
			return
		}
		target := int(scaled)
		offsets.Offsets = resizeOffsetsCyclic(offsets.Offsets, target)
		encoded, err := offsets.encode()
		if err != nil {
			e.report.Skip(loc+"/stbl/"+offsetAtom.Tag.String(), "offset table left unmodified: %v", err)
			return
		}
		offsetAtom.Payload = encoded
		e.report.Change(loc+"/stbl/"+offsetAtom.Tag.String(), "offset table extended %d -> %d entries", oldLen, target)
	}
}

// shiftChunkOffsets moves every storage offset in the tree by delta bytes.
// Offsets are absolute file positions, so they track the data atom's new
// payload location in the output layout. Locations use each track's
// original position even after a sibling track was removed, keeping the
// report consistent across passes.
func (e *engine) shiftChunkOffsets(moov *atom.Atom, delta int64) {
	if delta == 0 {
		return
	}
	for i, trak := range atom.FindPath(moov, atom.TagTrak) {
		index := i + 1
		if orig, ok := e.trackIndex[trak]; ok {
			index = orig
		}
		stbl := firstAtom(trak, atom.TagMdia, atom.TagMinf, atom.TagStbl)
		if stbl == nil {
			continue
		}
		offsetAtom, wide := stbl.Child(atom.TagStco), false
		if offsetAtom == nil {
			offsetAtom, wide = stbl.Child(atom.TagCo64), true
		}
		if offsetAtom == nil {
			continue
		}
		loc := fmt.Sprintf("trak[%d]/stbl/%s", index, offsetAtom.Tag)
		offsets, err := parseChunkOffsets(offsetAtom.Payload, wide)
		if err != nil {
			e.report.Skip(loc, "offsets left unshifted: %v", err)
			continue
		}
		for j, v := range offsets.Offsets {
			offsets.Offsets[j] = uint64(int64(v) + delta)
		}
		encoded, err := offsets.encode()
		if err != nil {
			e.report.Skip(loc, "offsets left unshifted: %v", err)
			continue
		}
		offsetAtom.Payload = encoded
		e.report.Change(loc, "offsets shifted by %+d bytes", delta)
	}
}

func firstAtom(a *atom.Atom, path ...atom.Tag) *atom.Atom {
	matches := atom.FindPath(a, path...)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}
