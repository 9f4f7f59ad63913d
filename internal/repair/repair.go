package repair

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"movrepair/internal/atom"
	"movrepair/internal/logging"
)

// Options controls a single repair run.
type Options struct {
	// FixMetadata enables the duration and sample-table rewrite. When
	// false only the raw transplant happens and the caller must guarantee
	// the broken payload is no larger than the reference payload.
	FixMetadata bool
	// Overwrite allows replacing an existing output file.
	Overwrite bool
}

// Result summarizes a completed repair run.
type Result struct {
	OutputPath string

	// DeclaredSize is the corrupt size the broken file's data atom
	// claimed; RecoveredSize is the serialized size of its replacement.
	DeclaredSize  uint64
	RecoveredSize uint64

	ReferencePayload uint64
	BrokenPayload    uint64

	// Ratio is the constant-bitrate duration proxy; zero when metadata
	// repair was disabled.
	Ratio float64

	Report *Report
}

// Run repairs brokenPath using referencePath as the structural donor and
// writes the result to outputPath. The reference contributes every
// top-level atom except mdat, which comes from the broken file with its
// size recovered from the file length. Nothing is written unless both the
// data atom and the structural-metadata atom are located and every
// recomputed size is representable.
func Run(referencePath, brokenPath, outputPath string, opts Options, logger *slog.Logger) (*Result, error) {
	log := logging.NewComponentLogger(logger, "repair").With(logging.String("run_id", uuid.NewString()))

	refBuf, err := os.ReadFile(referencePath)
	if err != nil {
		return nil, fmt.Errorf("read reference: %w", err)
	}
	refAtoms, scanErr := atom.ScanTopLevel(refBuf)
	if scanErr != nil {
		return nil, fmt.Errorf("reference %s: %w", referencePath, scanErr)
	}
	for _, a := range refAtoms {
		if a.Truncated {
			return nil, fmt.Errorf("%w: reference atom %q at offset %d is truncated", atom.ErrStructural, a.Tag, a.Offset)
		}
	}
	refMdat := findTag(refAtoms, atom.TagMdat)
	if refMdat == nil {
		return nil, Wrap(ErrMissingAtom, "reference", "locate data atom", nil)
	}

	brokenBuf, err := os.ReadFile(brokenPath)
	if err != nil {
		return nil, fmt.Errorf("read broken file: %w", err)
	}
	brokenAtoms, scanErr := atom.ScanTopLevel(brokenBuf)
	brokenMdat := findTag(brokenAtoms, atom.TagMdat)
	if brokenMdat == nil {
		if scanErr != nil {
			return nil, fmt.Errorf("broken file %s: %w", brokenPath, scanErr)
		}
		return nil, Wrap(ErrMissingAtom, "broken file", "locate data atom", nil)
	}
	if scanErr != nil {
		log.Warn("broken file scan recovered partially", logging.Error(scanErr))
	}

	// Size recovery: the true payload is everything from the payload's
	// first byte to end of file; nothing after it in the broken file is
	// trusted.
	payload := brokenBuf[brokenMdat.PayloadOffset():]
	recovered := atom.NewLeaf(atom.TagMdat, payload)
	recoveredSize, err := recovered.EncodedSize()
	if err != nil {
		return nil, err
	}
	log.Info("recovered data atom size",
		logging.Uint64("declared_bytes", brokenMdat.DeclaredSize),
		logging.Uint64("recovered_bytes", recoveredSize))

	output := make([]*atom.Atom, 0, len(refAtoms))
	for _, a := range refAtoms {
		if a == refMdat {
			output = append(output, recovered)
			continue
		}
		output = append(output, a)
	}
	moov := findTag(output, atom.TagMoov)
	if moov == nil {
		return nil, Wrap(ErrMissingAtom, "reference", "locate structural-metadata atom", nil)
	}

	report := &Report{}
	result := &Result{
		OutputPath:       outputPath,
		DeclaredSize:     brokenMdat.DeclaredSize,
		RecoveredSize:    recoveredSize,
		ReferencePayload: uint64(len(refMdat.Payload)),
		BrokenPayload:    uint64(len(payload)),
		Report:           report,
	}

	if opts.FixMetadata {
		if len(refMdat.Payload) == 0 {
			return nil, fmt.Errorf("%w: reference data atom has no payload", atom.ErrStructural)
		}
		ratio := float64(len(payload)) / float64(len(refMdat.Payload))
		result.Ratio = ratio
		log.Info("metadata scale factor", logging.Float64("ratio", ratio))

		if err := moov.Expand(); err != nil {
			return nil, fmt.Errorf("reference structural-metadata atom: %w", err)
		}
		eng := &engine{ratio: ratio, log: log, report: report}
		if err := eng.repairMoov(moov); err != nil {
			return nil, err
		}

		newStart, err := payloadStart(output, recovered)
		if err != nil {
			return nil, err
		}
		eng.shiftChunkOffsets(moov, newStart-refMdat.PayloadOffset())
	}

	// Every size must be representable before the first output byte.
	for _, a := range output {
		if _, err := a.EncodedSize(); err != nil {
			return nil, err
		}
	}

	if err := writeAtoms(outputPath, output, opts.Overwrite); err != nil {
		return nil, err
	}
	log.Info("repair complete",
		logging.String("output", outputPath),
		logging.Int("updates", len(report.Changes())),
		logging.Int("warnings", len(report.Skips())))
	return result, nil
}

// payloadStart computes the absolute offset of mdat's first payload byte
// in the final output layout, after all table mutations settled the sizes
// of every preceding atom.
func payloadStart(output []*atom.Atom, mdat *atom.Atom) (int64, error) {
	var off int64
	for _, a := range output {
		size, err := a.EncodedSize()
		if err != nil {
			return 0, err
		}
		if a == mdat {
			headerLen := size - uint64(len(mdat.Payload))
			return off + int64(headerLen), nil
		}
		off += int64(size)
	}
	return 0, Wrap(ErrMissingAtom, "output", "locate data atom", nil)
}

// writeAtoms serializes the output sequence under an advisory lock so two
// concurrent repairs cannot interleave writes to the same output file.
func writeAtoms(path string, atoms []*atom.Atom, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("output %s already exists", path)
		}
	}

	lockPath := path + ".lock"
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("output %s is being written by another repair", path)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lockPath)
	}()

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	w := bufio.NewWriter(out)
	for _, a := range atoms {
		if _, err := a.WriteTo(w); err != nil {
			_ = out.Close()
			_ = os.Remove(path)
			return fmt.Errorf("write output: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return fmt.Errorf("flush output: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

func findTag(atoms []*atom.Atom, tag atom.Tag) *atom.Atom {
	for _, a := range atoms {
		if a.Tag == tag {
			return a
		}
	}
	return nil
}
