package store

import (
	"encoding/json"
	"path/filepath"

	"github.com/MasterSpider-beep/licentaDedup/internal/debug"
)

// ChunkLocation is a Chunk Index entry: digest -> (container, offset,
// length).
type ChunkLocation struct {
	Container string `json:"container"`
	Offset    uint64 `json:"offset"`
	Length    uint32 `json:"length"`
}

// chunkIndexEntryJSON is one value of the on-disk shape:
// {digest_hex: [container_name, offset, length], ...}.
type chunkIndexEntryJSON [3]interface{}

// ChunkIndex is the persistent digest -> location map. Insert is
// idempotent (first writer wins); Reconcile gives GC a way to apply a
// mark-and-sweep cycle's results without clobbering entries a concurrent
// writer added after the cycle's mark snapshot was taken.
type ChunkIndex struct {
	pm *persistentMap[string, ChunkLocation]
}

func newChunkIndex(dir string) *ChunkIndex {
	path := filepath.Join(dir, "chunk_metadata.json")
	return &ChunkIndex{pm: newPersistentMap(path, marshalChunkIndex, unmarshalChunkIndex)}
}

func marshalChunkIndex(m map[string]ChunkLocation) ([]byte, error) {
	out := make(map[string]chunkIndexEntryJSON, len(m))
	for digest, loc := range m {
		out[digest] = chunkIndexEntryJSON{loc.Container, loc.Offset, loc.Length}
	}
	return json.Marshal(out)
}

func unmarshalChunkIndex(raw []byte) (map[string]ChunkLocation, error) {
	var in map[string]chunkIndexEntryJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make(map[string]ChunkLocation, len(in))
	for digest, entry := range in {
		container, _ := entry[0].(string)
		offset, _ := entry[1].(float64)
		length, _ := entry[2].(float64)
		out[digest] = ChunkLocation{Container: container, Offset: uint64(offset), Length: uint32(length)}
	}
	return out, nil
}

// Load populates the index from disk, if a dump exists.
func (ci *ChunkIndex) Load() error { return ci.pm.Load() }

// Close stops the background persister.
func (ci *ChunkIndex) Close() { ci.pm.Close() }

// Exists reports whether digest already has an index entry.
func (ci *ChunkIndex) Exists(digest string) bool {
	ci.pm.mu.RLock()
	defer ci.pm.mu.RUnlock()
	_, ok := ci.pm.data[digest]
	return ok
}

// Lookup returns digest's physical location, if indexed.
func (ci *ChunkIndex) Lookup(digest string) (ChunkLocation, bool) {
	ci.pm.mu.RLock()
	defer ci.pm.mu.RUnlock()
	loc, ok := ci.pm.data[digest]
	return loc, ok
}

// Insert adds digest's location if absent. If digest is already present,
// the call is a no-op: first writer wins.
func (ci *ChunkIndex) Insert(digest string, loc ChunkLocation) (inserted bool) {
	ci.pm.mu.Lock()
	if _, exists := ci.pm.data[digest]; exists {
		ci.pm.mu.Unlock()
		return false
	}
	ci.pm.data[digest] = loc
	ci.pm.mu.Unlock()

	ci.pm.requestDump()
	debug.Log("store", "index: inserted %s -> %s@%d+%d", digest, loc.Container, loc.Offset, loc.Length)
	return true
}

// Reconcile merges a GC cycle's results into the live index instead of
// replacing it wholesale. relocated entries move to their post-compaction
// location unconditionally (a digest's bytes never change once written, so
// relocating it is always safe regardless of what happened concurrently).
// candidates are digests that had no surviving manifest reference at the
// moment mark() snapshotted the index; each is removed only if isLive still
// reports it dead right now, so a concurrent write that resurrected one
// in the meantime (by reusing its existing bytes for a new manifest entry)
// keeps its entry instead of having it silently erased.
func (ci *ChunkIndex) Reconcile(relocated map[string]ChunkLocation, candidates []string, isLive func(digest string) bool) {
	ci.pm.mu.Lock()
	for digest, loc := range relocated {
		ci.pm.data[digest] = loc
	}
	dropped := 0
	for _, digest := range candidates {
		if isLive(digest) {
			continue
		}
		delete(ci.pm.data, digest)
		dropped++
	}
	ci.pm.mu.Unlock()

	ci.pm.requestDump()
	debug.Log("store", "index: reconciled, %d relocated, %d dropped", len(relocated), dropped)
}

// Snapshot returns a point-in-time copy of the whole index, used by GC's
// plan phase.
func (ci *ChunkIndex) Snapshot() map[string]ChunkLocation {
	return ci.pm.snapshot()
}
