// Package store implements the three coupled subsystems that form the
// deduplicating core: the container writer, the chunk index, and the file
// manifest store, wired together behind the read and write path algorithms
// and the operations the filesystem façade consumes.
package store

import (
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MasterSpider-beep/licentaDedup/internal/chunker"
	"github.com/MasterSpider-beep/licentaDedup/internal/debug"
	"github.com/MasterSpider-beep/licentaDedup/internal/digest"
	"github.com/MasterSpider-beep/licentaDedup/internal/errors"
)

// StoreDirName is the dedicated directory under the backing root that
// holds every piece of dedup state.
const StoreDirName = ".dedup_store"

// DefaultDigestWorkers is the bounded worker pool size used for offloading
// per-chunk digest computation.
const DefaultDigestWorkers = 8

// ChunkMetadata is the (path, offset, length) triple the façade supplies
// when registering a freshly written chunk; the path is translated to a
// container name internally.
type ChunkMetadata struct {
	Path   string
	Offset uint64
	Length uint32
}

// Store wires the container store, chunk index, and manifest store
// together and implements the read/write algorithms that sit on top of
// them.
type Store struct {
	dir        string
	containers *containerStore
	index      *ChunkIndex
	manifests  *ManifestStore
	cache      *readCache
	workers    int

	pathLocksMu sync.Mutex
	pathLocks   map[string]*sync.Mutex
}

// Open wires up a Store rooted at <rootpoint>/.dedup_store, loading any
// existing chunk index and manifest store from disk. A chunk index that
// fails to parse is only tolerated if no manifest references anything;
// otherwise Open returns a Fatal-wrapped error and the mount must refuse to
// start.
func Open(rootpoint string, workers int) (*Store, error) {
	if workers <= 0 {
		workers = DefaultDigestWorkers
	}

	dir := filepath.Join(rootpoint, StoreDirName)
	containers, err := newContainerStore(dir)
	if err != nil {
		return nil, err
	}

	manifests := newManifestStore(dir)
	if err := manifests.Load(); err != nil {
		return nil, errors.Wrap(err, "loading file manifests")
	}

	index := newChunkIndex(dir)
	if err := index.Load(); err != nil {
		referenced := false
		for _, entries := range manifests.All() {
			if len(entries) > 0 {
				referenced = true
				break
			}
		}
		if !errors.Is(err, errors.Corrupt) || referenced {
			return nil, errors.Wrap(errors.Fatal(err.Error()), "loading chunk index")
		}
		debug.Log("store", "chunk index unreadable but no manifests reference anything; starting empty: %v", err)
	}

	return &Store{
		dir:        dir,
		containers: containers,
		index:      index,
		manifests:  manifests,
		cache:      newReadCache(),
		workers:    workers,
		pathLocks:  make(map[string]*sync.Mutex),
	}, nil
}

// Close stops the background persisters for the chunk index and manifest
// store, waiting for any dump already in flight.
func (s *Store) Close() {
	s.index.Close()
	s.manifests.Close()
}

// Index exposes the chunk index for the garbage collector, which needs to
// snapshot it and, once compaction is done, reconcile its results back in.
func (s *Store) Index() *ChunkIndex { return s.index }

// Manifests exposes the manifest store for the garbage collector's mark
// phase.
func (s *Store) Manifests() *ManifestStore { return s.manifests }

// CompactContainer reads every range in ranges out of container's current
// contents and rewrites it to hold exactly their concatenation, holding the
// container's exclusive lock for the entire read-plan-rewrite sequence so a
// concurrent Append cannot land in the gap and be silently discarded by the
// rewrite. Used by GC's sweep/compact phase.
func (s *Store) CompactContainer(container string, ranges []ContainerRange) (data []byte, oldSize int64, err error) {
	return s.containers.Compact(container, ranges)
}

// ContainerDelete removes a container file entirely, used by GC's unlink
// phase.
func (s *Store) ContainerDelete(container string) error {
	return s.containers.Delete(container)
}

// ContainerList returns every container file name currently on disk.
func (s *Store) ContainerList() ([]string, error) {
	return s.containers.List()
}

func (s *Store) lockPath(path string) *sync.Mutex {
	s.pathLocksMu.Lock()
	defer s.pathLocksMu.Unlock()
	l, ok := s.pathLocks[path]
	if !ok {
		l = &sync.Mutex{}
		s.pathLocks[path] = l
	}
	return l
}

// --- façade contract ---

// ChunkExists reports whether digest is already indexed.
func (s *Store) ChunkExists(digest string) bool {
	return s.index.Exists(digest)
}

// WriteContainer appends bytes to the container for path at offset, which
// must equal the container's current size.
func (s *Store) WriteContainer(path string, data []byte, offset int64) error {
	return s.containers.Append(sanitizeContainerName(path), data, offset)
}

// WriteChunkMetadata registers a batch of freshly written chunks in the
// chunk index. Each entry's Path is translated to its container name
// internally.
func (s *Store) WriteChunkMetadata(entries map[string]ChunkMetadata) {
	for dg, m := range entries {
		s.index.Insert(dg, ChunkLocation{
			Container: sanitizeContainerName(m.Path),
			Offset:    m.Offset,
			Length:    m.Length,
		})
	}
}

// GetChunkMetadata returns digest's physical location, if indexed.
func (s *Store) GetChunkMetadata(digest string) (container string, offset uint64, length uint32, ok bool) {
	loc, found := s.index.Lookup(digest)
	if !found {
		return "", 0, 0, false
	}
	return loc.Container, loc.Offset, loc.Length, true
}

// GetContainerSize returns a container's current byte length.
func (s *Store) GetContainerSize(containerName string) (uint64, error) {
	size, err := s.containers.Size(containerName)
	return uint64(size), err
}

// StoreFileChunks replaces path's manifest wholesale.
func (s *Store) StoreFileChunks(path string, entries []ManifestEntry) {
	s.manifests.Put(path, entries)
}

// GetAllFileChunks returns every manifest, used at mount time and by GC.
func (s *Store) GetAllFileChunks() map[string][]ManifestEntry {
	return s.manifests.All()
}

// Unlink removes path's manifest. The chunks it referenced become
// eligible for collection on the next GC cycle, not immediately.
func (s *Store) Unlink(path string) {
	s.manifests.Delete(path)
}

// FileSize returns path's logical size (sum of manifest entry lengths) and
// whether path has a manifest at all.
func (s *Store) FileSize(path string) (int64, bool) {
	entries, ok := s.manifests.Get(path)
	if !ok {
		return 0, false
	}
	var total int64
	for _, e := range entries {
		total += int64(e.Length)
	}
	return total, true
}

// --- read path ---

// Read assembles up to size bytes of path's logical content starting at
// offset, coalescing physically contiguous manifest runs into single bulk
// reads.
func (s *Store) Read(path string, size int, offset int64) ([]byte, error) {
	entries, ok := s.manifests.Get(path)
	if !ok {
		return nil, errors.WithKind(errors.Errorf("no manifest for %s", path), errors.NotFound)
	}
	if size <= 0 {
		return nil, nil
	}

	startIdx := -1
	var startSkip int64
	var cursor int64
	for i, e := range entries {
		chunkLen := int64(e.Length)
		if cursor+chunkLen > offset {
			startIdx = i
			startSkip = offset - cursor
			break
		}
		cursor += chunkLen
	}
	if startIdx == -1 {
		return nil, nil
	}

	out := make([]byte, 0, size)
	i := startIdx
	skip := startSkip

	for i < len(entries) && len(out) < size {
		loc, ok := s.index.Lookup(entries[i].Digest)
		if !ok {
			return nil, errors.WithKind(
				errors.Errorf("missing chunk index entry for digest %s referenced by %s", entries[i].Digest, path),
				errors.IO,
			)
		}

		runContainer := loc.Container
		runPhysStart := loc.Offset
		runPhysEnd := loc.Offset + uint64(loc.Length)
		j := i + 1
		for j < len(entries) {
			next, ok := s.index.Lookup(entries[j].Digest)
			if !ok || next.Container != runContainer || next.Offset != runPhysEnd {
				break
			}
			runPhysEnd = next.Offset + uint64(next.Length)
			j++
		}

		length := int(runPhysEnd - runPhysStart)
		buf, err := s.readContainerCached(runContainer, int64(runPhysStart), length)
		if err != nil {
			return nil, err
		}

		runBuf := buf[skip:]
		need := size - len(out)
		if len(runBuf) > need {
			runBuf = runBuf[:need]
		}
		out = append(out, runBuf...)

		skip = 0
		i = j
	}

	return out, nil
}

func (s *Store) readContainerCached(name string, offset int64, length int) ([]byte, error) {
	key := readCacheKey{
		container:  name,
		generation: s.containers.Generation(name),
		offset:     offset,
		length:     length,
	}
	if buf, ok := s.cache.get(key); ok {
		debug.Log("store", "read cache hit for %s", key)
		return buf, nil
	}

	buf, err := s.containers.Read(name, offset, length)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, buf)
	return buf, nil
}

// --- write path ---

// Write chunks data, stores any novel chunk bytes in path's container, and
// composes the new manifest by replacing the single existing chunk that
// contains offset with the newly chunked run — a deliberate simplification:
// this does not splice partial overwrites into existing chunk boundaries.
// Write always returns len(data) on success.
func (s *Store) Write(path string, data []byte, offset int64) (int, error) {
	lock := s.lockPath(path)
	lock.Lock()
	defer lock.Unlock()

	oldEntries, _ := s.manifests.Get(path)

	k := len(oldEntries)
	var cursor int64
	for i, e := range oldEntries {
		if cursor+int64(e.Length) > offset {
			k = i
			break
		}
		cursor += int64(e.Length)
	}

	pieces := chunker.All(data)
	digests := s.digestPieces(data, pieces)

	containerName := sanitizeContainerName(path)
	baseOffset, err := s.containers.Size(containerName)
	if err != nil {
		return 0, err
	}

	newEntries := make([]ManifestEntry, len(pieces))
	staged := make(map[string]ChunkMetadata)
	stagedBytes := make([]byte, 0, len(data))
	seen := make(map[string]bool, len(pieces))

	for idx, piece := range pieces {
		dg := digests[idx]
		newEntries[idx] = ManifestEntry{Digest: dg, Length: uint32(piece.Length)}

		if seen[dg] || s.index.Exists(dg) {
			continue
		}
		seen[dg] = true

		chunkOffset := baseOffset + int64(len(stagedBytes))
		stagedBytes = append(stagedBytes, data[piece.Start:piece.Start+piece.Length]...)
		staged[dg] = ChunkMetadata{Path: path, Offset: uint64(chunkOffset), Length: uint32(piece.Length)}
	}

	if len(stagedBytes) > 0 {
		if err := s.containers.Append(containerName, stagedBytes, baseOffset); err != nil {
			return 0, err
		}
	}
	s.WriteChunkMetadata(staged)

	composed := make([]ManifestEntry, 0, k+len(newEntries)+len(oldEntries)-k)
	composed = append(composed, oldEntries[:k]...)
	composed = append(composed, newEntries...)
	if k < len(oldEntries) {
		composed = append(composed, oldEntries[k+1:]...)
	}
	s.manifests.Put(path, composed)

	debug.Log("store", "write %s: %d bytes at %d, %d pieces, %d novel", path, len(data), offset, len(pieces), len(staged))
	return len(data), nil
}

// digestPieces computes SHA-256 digests for every chunk piece, offloading
// the work to a bounded worker pool, while the result slice preserves input
// order for manifest assembly.
func (s *Store) digestPieces(data []byte, pieces []chunker.Chunk) []string {
	digests := make([]string, len(pieces))
	sem := make(chan struct{}, s.workers)
	var g errgroup.Group

	for idx, piece := range pieces {
		idx, piece := idx, piece
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			digests[idx] = digest.Of(data[piece.Start : piece.Start+piece.Length])
			return nil
		})
	}
	_ = g.Wait()

	return digests
}
