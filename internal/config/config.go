// Package config collects the mount's tunables and exposes the mount, GC
// and digest-pool ones as cobra/pflag-bound CLI options, the way restic's
// GlobalOptions (cmd/restic/global.go) turns its own compiled-in defaults
// into flags on cmdRoot. The chunking parameters stay compiled-in
// constants of the chunker package.
package config

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/MasterSpider-beep/licentaDedup/internal/chunker"
	"github.com/MasterSpider-beep/licentaDedup/internal/store"
)

// DefaultGCInterval is the periodic, configurable interval on which
// automatic garbage collection runs.
const DefaultGCInterval = 120 * time.Second

// MountOptions collects every flag the mount command accepts, mirroring
// the shape (if not the content) of restic's MountOptions in
// cmd/restic/cmd_mount.go.
type MountOptions struct {
	AllowOther           bool
	OwnerRoot            bool
	NoDefaultPermissions bool

	GCInterval    time.Duration
	DigestWorkers int
	GCWorkers     int

	// WindowSize, MinChunkSize, MaxChunkSize and TargetMask record the
	// chunker package's compiled-in constants. They are not bound to any
	// flag, and the chunker does not read them.
	WindowSize   int
	MinChunkSize int
	MaxChunkSize int
	TargetMask   uint64
}

// DefaultMountOptions returns options matching the chunker package's own
// compiled-in constants.
func DefaultMountOptions() MountOptions {
	return MountOptions{
		GCInterval:    DefaultGCInterval,
		DigestWorkers: store.DefaultDigestWorkers,
		GCWorkers:     4,
		WindowSize:    chunker.WindowSize,
		MinChunkSize:  chunker.MinChunkSize,
		MaxChunkSize:  chunker.MaxChunkSize,
		TargetMask:    chunker.TargetMask,
	}
}

// AddFlags registers every MountOptions field except the chunking
// parameters on f, following the same
// one-call convention as restic's GlobalOptions.AddFlags /
// addPruneOptions.
func (o *MountOptions) AddFlags(f *pflag.FlagSet) {
	f.BoolVar(&o.AllowOther, "allow-other", false, "allow other users to access the data in the mounted directory")
	f.BoolVar(&o.OwnerRoot, "owner-root", false, "use 'root' as the owner of files and dirs")
	f.BoolVar(&o.NoDefaultPermissions, "no-default-permissions", false, "for --allow-other, ignore Unix permissions and allow users to read every file")

	f.DurationVar(&o.GCInterval, "gc-interval", DefaultGCInterval, "interval between automatic garbage collection cycles")
	f.IntVar(&o.DigestWorkers, "digest-workers", store.DefaultDigestWorkers, "bounded worker pool size for per-chunk digest computation")
	f.IntVar(&o.GCWorkers, "gc-workers", 4, "bounded worker pool size for concurrent container compaction during GC")
}
