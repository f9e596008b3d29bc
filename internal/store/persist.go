package store

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/MasterSpider-beep/licentaDedup/internal/debug"
	"github.com/MasterSpider-beep/licentaDedup/internal/errors"
)

// persistentMap is the durability discipline shared by the chunk index and
// the manifest store: an in-memory map, rewritten to disk by a single
// background goroutine that drains a depth-1 coalescing channel of dump
// requests, always via write-to-tmp then atomic rename. A trailing
// xxhash-64 checksum lets Load reject a truncated or corrupted dump before
// the (slower) unmarshal is attempted.
//
// Both call sites need exactly the same discipline over different value
// shapes, so it is factored out once here rather than duplicated.
type persistentMap[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V

	path      string
	marshal   func(map[K]V) ([]byte, error)
	unmarshal func([]byte) (map[K]V, error)

	dumpRequested chan struct{}
	stop          chan struct{}
	done          chan struct{}
}

func newPersistentMap[K comparable, V any](
	path string,
	marshal func(map[K]V) ([]byte, error),
	unmarshal func([]byte) (map[K]V, error),
) *persistentMap[K, V] {
	pm := &persistentMap[K, V]{
		data:          make(map[K]V),
		path:          path,
		marshal:       marshal,
		unmarshal:     unmarshal,
		dumpRequested: make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go pm.dumpLoop()
	return pm
}

// Load reads the on-disk blob, if any, and replaces the in-memory map with
// its contents. A missing file is not an error: a fresh store starts
// empty. A present-but-unparseable file is Corrupt; the caller (mount
// startup) decides whether that is fatal.
func (pm *persistentMap[K, V]) Load() error {
	raw, err := os.ReadFile(pm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WithKind(errors.WithStack(err), errors.IO)
	}

	const trailerLen = 8
	if len(raw) < trailerLen {
		return errors.WithKind(errors.Errorf("%s: truncated (only %d bytes)", pm.path, len(raw)), errors.Corrupt)
	}
	body, trailer := raw[:len(raw)-trailerLen], raw[len(raw)-trailerLen:]
	want := binary.LittleEndian.Uint64(trailer)
	if got := xxhash.Sum64(body); got != want {
		return errors.WithKind(errors.Errorf("%s: checksum mismatch (corrupt dump)", pm.path), errors.Corrupt)
	}

	m, err := pm.unmarshal(body)
	if err != nil {
		return errors.WithKind(errors.Wrapf(err, "%s: parse", pm.path), errors.Corrupt)
	}

	pm.mu.Lock()
	pm.data = m
	pm.mu.Unlock()
	return nil
}

// snapshot returns a shallow copy of the current map for marshaling
// without holding the lock during (potentially slow) JSON encoding.
func (pm *persistentMap[K, V]) snapshot() map[K]V {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make(map[K]V, len(pm.data))
	for k, v := range pm.data {
		out[k] = v
	}
	return out
}

// requestDump enqueues a background dump. A burst of calls while one dump
// is already queued coalesces into that single pending dump.
func (pm *persistentMap[K, V]) requestDump() {
	select {
	case pm.dumpRequested <- struct{}{}:
	default:
	}
}

func (pm *persistentMap[K, V]) dumpLoop() {
	defer close(pm.done)
	for {
		select {
		case <-pm.stop:
			return
		case <-pm.dumpRequested:
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 30 * time.Second
			if err := backoff.Retry(pm.dumpNow, bo); err != nil {
				// A catastrophic failure (disk full) becomes visible to
				// callers on their next container-append failure; here
				// it is only logged.
				debug.Log("store", "persisting %s failed after retries: %v", pm.path, err)
			}
		}
	}
}

func (pm *persistentMap[K, V]) dumpNow() error {
	body, err := pm.marshal(pm.snapshot())
	if err != nil {
		return errors.WithKind(errors.WithStack(err), errors.Transient)
	}

	sum := xxhash.Sum64(body)
	trailer := make([]byte, 8)
	binary.LittleEndian.PutUint64(trailer, sum)
	blob := append(body, trailer...)

	tmp := pm.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return errors.WithKind(errors.WithStack(err), errors.Transient)
	}
	if err := os.Rename(tmp, pm.path); err != nil {
		return errors.WithKind(errors.WithStack(err), errors.Transient)
	}
	return nil
}

// Close stops the background dump goroutine, waiting for any in-flight
// dump to finish first.
func (pm *persistentMap[K, V]) Close() {
	close(pm.stop)
	<-pm.done
}
