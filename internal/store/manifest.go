package store

import (
	"encoding/json"
	"path/filepath"

	"github.com/MasterSpider-beep/licentaDedup/internal/debug"
)

// ManifestEntry is one (digest, logical_length) pair in a file manifest.
type ManifestEntry struct {
	Digest string `json:"digest"`
	Length uint32 `json:"length"`
}

type manifestEntryJSON [2]interface{}

// ManifestStore is the persistent path -> ordered chunk list map, with the
// same durability discipline as ChunkIndex.
type ManifestStore struct {
	pm *persistentMap[string, []ManifestEntry]
}

func newManifestStore(dir string) *ManifestStore {
	path := filepath.Join(dir, "file_chunks.json")
	return &ManifestStore{pm: newPersistentMap(path, marshalManifests, unmarshalManifests)}
}

func marshalManifests(m map[string][]ManifestEntry) ([]byte, error) {
	out := make(map[string][]manifestEntryJSON, len(m))
	for path, entries := range m {
		list := make([]manifestEntryJSON, len(entries))
		for i, e := range entries {
			list[i] = manifestEntryJSON{e.Digest, e.Length}
		}
		out[path] = list
	}
	return json.Marshal(out)
}

func unmarshalManifests(raw []byte) (map[string][]ManifestEntry, error) {
	var in map[string][]manifestEntryJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make(map[string][]ManifestEntry, len(in))
	for path, list := range in {
		entries := make([]ManifestEntry, len(list))
		for i, e := range list {
			digest, _ := e[0].(string)
			length, _ := e[1].(float64)
			entries[i] = ManifestEntry{Digest: digest, Length: uint32(length)}
		}
		out[path] = entries
	}
	return out, nil
}

// Load populates the manifest store from disk, if a dump exists.
func (ms *ManifestStore) Load() error { return ms.pm.Load() }

// Close stops the background persister.
func (ms *ManifestStore) Close() { ms.pm.Close() }

// Get returns path's manifest, if one exists.
func (ms *ManifestStore) Get(path string) ([]ManifestEntry, bool) {
	ms.pm.mu.RLock()
	defer ms.pm.mu.RUnlock()
	entries, ok := ms.pm.data[path]
	return entries, ok
}

// Put replaces path's manifest wholesale.
func (ms *ManifestStore) Put(path string, entries []ManifestEntry) {
	ms.pm.mu.Lock()
	ms.pm.data[path] = entries
	ms.pm.mu.Unlock()

	ms.pm.requestDump()
	debug.Log("store", "manifest: %s now has %d chunks", path, len(entries))
}

// Delete removes path's manifest entirely.
func (ms *ManifestStore) Delete(path string) {
	ms.pm.mu.Lock()
	delete(ms.pm.data, path)
	ms.pm.mu.Unlock()

	ms.pm.requestDump()
	debug.Log("store", "manifest: %s deleted", path)
}

// All returns a point-in-time copy of every manifest, used at mount time
// and by GC's mark phase.
func (ms *ManifestStore) All() map[string][]ManifestEntry {
	return ms.pm.snapshot()
}

// References reports whether any manifest currently references digest. Used
// by GC immediately before dropping a digest from the chunk index, to
// re-check liveness against the current manifest set rather than the
// snapshot mark() took at the start of the cycle.
func (ms *ManifestStore) References(digest string) bool {
	ms.pm.mu.RLock()
	defer ms.pm.mu.RUnlock()
	for _, entries := range ms.pm.data {
		for _, e := range entries {
			if e.Digest == digest {
				return true
			}
		}
	}
	return false
}
