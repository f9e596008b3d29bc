// Package fuse wires the chunk store's façade contract to a live,
// read-write FUSE mount, in the manner of restic's cmd/restic/fuse package
// and cmd_mount_unix.go — but serving a single flat namespace backed by
// store.Store instead of a read-only snapshot tree.
package fuse

import (
	"github.com/anacrolix/fuse/fs"
	"github.com/google/uuid"

	"github.com/MasterSpider-beep/licentaDedup/internal/store"
)

// FS is the root of the mounted filesystem. There is exactly one per
// mount; every Dir and File node it hands out shares the same *store.Store.
type FS struct {
	store *store.Store
}

// New wraps s for serving over FUSE.
func New(s *store.Store) *FS {
	return &FS{store: s}
}

// Root implements fs.FS.
func (f *FS) Root() (fs.Node, error) {
	return &Dir{store: f.store, path: "/"}, nil
}

// MountName returns a per-mount FSName suffix, the same cosmetic role
// restic's fuseMountName := fmt.Sprintf("restic:%s", repo.Config().ID[:10])
// plays in cmd_mount_unix.go — there is no repository ID here, so a fresh
// UUID stands in.
func MountName() string {
	return "dedupfs:" + uuid.NewString()[:8]
}
