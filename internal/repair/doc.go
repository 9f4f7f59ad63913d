// Package repair rebuilds a broken movie file from a known-good reference.
//
// The pipeline recovers the true size of the broken file's mdat atom from
// the file length, transplants the reference file's structural atoms around
// that recovered payload, and rewrites the moov metadata tree so durations
// and sample-indexing tables stay consistent with a payload of different
// length. No media sample is ever decoded or re-encoded; every adjustment
// is algebra over the metadata's own fixed-width fields.
//
// Recoverable problems (an atom version we do not understand, a table too
// small to extrapolate) are collected as itemized outcomes in the run
// Report rather than aborting the run. Missing mdat or moov atoms and
// unrepresentable sizes are fatal before a single output byte is written.
package repair
