// Package chunker implements content-defined chunking with a byte-table
// driven rolling polynomial hash. Boundaries are a function of content
// only: identical bytes at identical offsets always produce the same cut,
// regardless of wall time, file identity, or what was chunked before.
package chunker
