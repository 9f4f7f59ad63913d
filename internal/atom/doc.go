// Package atom parses and serializes the nested, length-prefixed box
// structure of QuickTime/MP4 container files.
//
// It owns the Atom tree model (containers holding ordered children, leaves
// holding opaque payload bytes), the top-level scanner that survives broken
// files by marking truncated atoms instead of aborting, and the serializer
// that recomputes every size field bottom-up before emitting bytes.
//
// The package understands structure only. Interpreting the fixed fields of
// duration and sample-table atoms is the repair package's job; everything
// here treats leaf payloads as raw bytes.
package atom
