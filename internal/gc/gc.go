// Package gc implements the mark-and-sweep container compactor: it
// snapshots every manifest to find the live digest set, plans a
// per-container rewrite from a snapshot of the chunk index, and then
// compacts each container that carries dead bytes, dropping containers
// that end up empty entirely.
package gc

import (
	"context"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/MasterSpider-beep/licentaDedup/internal/debug"
	"github.com/MasterSpider-beep/licentaDedup/internal/errors"
	"github.com/MasterSpider-beep/licentaDedup/internal/store"
)

// storeHandle is the subset of *store.Store the collector needs, named so
// tests can exercise mark/sweep against a fake without standing up a full
// Store.
type storeHandle interface {
	Manifests() *store.ManifestStore
	Index() *store.ChunkIndex
	CompactContainer(container string, ranges []store.ContainerRange) (data []byte, oldSize int64, err error)
	ContainerDelete(container string) error
	ContainerList() ([]string, error)
}

// Report is the supplemental accounting this package adds beyond the bare
// mark-and-sweep algorithm, modeled on restic's PruneStats (cmd_prune.go):
// a collector that silently drops bytes with nothing to show for it is
// hard to operate.
type Report struct {
	LiveDigests            int
	DroppedDigests         int
	ContainersRewritten    int
	ContainersDeleted      int
	ContainersUnreferenced int
	BytesReclaimed         int64
	DryRun                 bool
}

// liveEntry is one (digest, old_offset, length) triple belonging to a
// container with at least one surviving digest.
type liveEntry struct {
	digest string
	offset uint64
	length uint32
}

// plan is the per-container rewrite plan, keyed by container name.
type plan struct {
	perContainer map[string][]liveEntry
	newLocations map[string]store.ChunkLocation
	dropped      []string
}

// Collector runs GC cycles against a store.Store, either on an interval
// timer (Run) or synchronously on demand (Once).
type Collector struct {
	s       storeHandle
	workers int
}

// DefaultWorkers bounds how many containers are compacted concurrently, the
// same errgroup + semaphore shape the store façade uses for digesting.
const DefaultWorkers = 4

// New builds a Collector over s. workers <= 0 selects DefaultWorkers.
func New(s storeHandle, workers int) *Collector {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Collector{s: s, workers: workers}
}

// Run fires a GC cycle every interval until ctx is cancelled, logging each
// cycle's Report. It never returns an error: a failed cycle is logged and
// retried at the next tick.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := c.Once(ctx, false)
			if err != nil {
				debug.Log("gc", "cycle failed: %v", err)
				continue
			}
			debug.Log("gc", "cycle done: live=%d dropped=%d rewritten=%d deleted=%d reclaimed=%d",
				report.LiveDigests, report.DroppedDigests, report.ContainersRewritten,
				report.ContainersDeleted, report.BytesReclaimed)
		}
	}
}

// Once runs a single mark-and-sweep-and-compact cycle. With dryRun set, it
// computes and returns the Report without touching any container or the
// chunk index — a "plan only" mode, the way prune-style tooling usually
// offers one.
func (c *Collector) Once(ctx context.Context, dryRun bool) (Report, error) {
	p, report, err := c.mark(ctx)
	if err != nil {
		return Report{}, err
	}
	report.DryRun = dryRun
	if dryRun {
		return report, nil
	}

	if err := c.sweep(ctx, p, &report); err != nil {
		return report, err
	}

	c.s.Index().Reconcile(p.newLocations, p.dropped, c.s.Manifests().References)

	if err := c.unreferencedContainers(p, &report); err != nil {
		return report, err
	}

	return report, nil
}

// mark snapshots manifests to find the live digest set, then snapshots the
// chunk index and partitions live entries by container.
func (c *Collector) mark(_ context.Context) (plan, Report, error) {
	manifests := c.s.Manifests().All()
	live := make(map[string]bool)
	for _, entries := range manifests {
		for _, e := range entries {
			live[e.Digest] = true
		}
	}

	index := c.s.Index().Snapshot()
	perContainer := make(map[string][]liveEntry)
	var dropped []string

	for digest, loc := range index {
		if !live[digest] {
			dropped = append(dropped, digest)
			continue
		}
		perContainer[loc.Container] = append(perContainer[loc.Container], liveEntry{
			digest: digest, offset: loc.Offset, length: loc.Length,
		})
	}

	for container := range perContainer {
		entries := perContainer[container]
		sort.Slice(entries, func(i, j int) bool { return entries[i].offset < entries[j].offset })
		perContainer[container] = entries
	}

	report := Report{
		LiveDigests:    len(live),
		DroppedDigests: len(dropped),
	}

	return plan{
		perContainer: perContainer,
		newLocations: make(map[string]store.ChunkLocation, len(index)-len(dropped)),
		dropped:      dropped,
	}, report, nil
}

// sweep handles each container with live entries: read the live ranges
// out of the old layout, pack them back-to-back into a new buffer, and
// atomically rewrite the container. Containers are compacted
// concurrently, bounded by c.workers, since each one is an independent
// unit of I/O (the per-container exclusive lock already serializes
// conflicting access at the store layer).
func (c *Collector) sweep(ctx context.Context, p plan, report *Report) error {
	containers := make([]string, 0, len(p.perContainer))
	for name := range p.perContainer {
		containers = append(containers, name)
	}
	sort.Strings(containers)

	results := make([]compactResult, len(containers))
	sem := make(chan struct{}, c.workers)
	g, _ := errgroup.WithContext(ctx)

	for i, name := range containers {
		i, name := i, name
		entries := p.perContainer[name]
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			err := backoff.Retry(func() error {
				r, err := c.compactOne(name, entries)
				if err != nil {
					return errors.WithKind(err, errors.Transient)
				}
				results[i] = r
				return nil
			}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3))
			if err != nil {
				// skip this container this cycle; its index entries keep
				// their old locations, which its unchanged file still holds
				debug.Log("gc", "compaction of %s failed, skipped this cycle: %v", name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "compacting containers")
	}

	for _, r := range results {
		if r.container == "" {
			continue
		}
		for digest, loc := range r.newLocs {
			p.newLocations[digest] = loc
		}
		if r.rewrote {
			report.ContainersRewritten++
			report.BytesReclaimed += r.oldSize - r.newSize
		}
	}

	// digests whose container had no live entries at all keep no location;
	// their container is handled by unreferencedContainers instead of here.
	return nil
}

type compactResult struct {
	container string
	newLocs   map[string]store.ChunkLocation
	oldSize   int64
	newSize   int64
	rewrote   bool
}

func (c *Collector) compactOne(container string, entries []liveEntry) (compactResult, error) {
	ranges := make([]store.ContainerRange, len(entries))
	for i, e := range entries {
		ranges[i] = store.ContainerRange{Offset: int64(e.offset), Length: int(e.length)}
	}

	buf, oldSize, err := c.s.CompactContainer(container, ranges)
	if err != nil {
		return compactResult{}, errors.Wrapf(err, "compacting container %s", container)
	}

	newLocs := make(map[string]store.ChunkLocation, len(entries))
	var off uint64
	for _, e := range entries {
		newLocs[e.digest] = store.ChunkLocation{
			Container: container,
			Offset:    off,
			Length:    e.length,
		}
		off += uint64(e.length)
	}

	return compactResult{
		container: container,
		newLocs:   newLocs,
		oldSize:   oldSize,
		newSize:   int64(len(buf)),
		rewrote:   int64(len(buf)) != oldSize,
	}, nil
}

// unreferencedContainers runs after Reconcile has dropped dead digests
// from the chunk index, and deletes every container on disk that the
// rebuilt index no longer references at all.
func (c *Collector) unreferencedContainers(_ plan, report *Report) error {
	onDisk, err := c.s.ContainerList()
	if err != nil {
		return errors.Wrap(err, "listing containers")
	}

	referenced := make(map[string]bool)
	for _, loc := range c.s.Index().Snapshot() {
		referenced[loc.Container] = true
	}

	for _, name := range onDisk {
		if referenced[name] {
			continue
		}
		if err := c.s.ContainerDelete(name); err != nil {
			return errors.Wrapf(err, "deleting unreferenced container %s", name)
		}
		report.ContainersDeleted++
		report.ContainersUnreferenced++
		debug.Log("gc", "deleted unreferenced container %s", name)
	}

	return nil
}
