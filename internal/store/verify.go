package store

import (
	"github.com/MasterSpider-beep/licentaDedup/internal/digest"
	"github.com/MasterSpider-beep/licentaDedup/internal/errors"
)

// Mismatch describes a chunk index entry whose stored bytes do not hash
// to its own digest.
type Mismatch struct {
	Digest    string
	Container string
	Offset    uint64
	Length    uint32
	Err       error
}

// Verify re-hashes every indexed chunk's bytes and reports any whose
// content does not match its digest, or that could not be read at all.
// It never repairs anything: repair is reserved for GC alone.
func (s *Store) Verify() []Mismatch {
	var mismatches []Mismatch

	for dg, loc := range s.index.Snapshot() {
		buf, err := s.containers.Read(loc.Container, int64(loc.Offset), int(loc.Length))
		if err != nil {
			mismatches = append(mismatches, Mismatch{
				Digest: dg, Container: loc.Container, Offset: loc.Offset, Length: loc.Length,
				Err: errors.WithKind(err, errors.IO),
			})
			continue
		}
		if got := digest.Of(buf); got != dg {
			mismatches = append(mismatches, Mismatch{
				Digest: dg, Container: loc.Container, Offset: loc.Offset, Length: loc.Length,
				Err: errors.Errorf("stored bytes hash to %s, index says %s", got, dg),
			})
		}
	}

	return mismatches
}
