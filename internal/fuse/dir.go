package fuse

import (
	"context"
	"os"
	"syscall"

	"github.com/anacrolix/fuse"
	"github.com/anacrolix/fuse/fs"

	"github.com/MasterSpider-beep/licentaDedup/internal/debug"
	"github.com/MasterSpider-beep/licentaDedup/internal/store"
)

var (
	_ fs.Node                = (*Dir)(nil)
	_ fs.NodeStringLookuper  = (*Dir)(nil)
	_ fs.HandleReadDirAller  = (*Dir)(nil)
	_ fs.NodeCreater         = (*Dir)(nil)
	_ fs.NodeRemover         = (*Dir)(nil)
)

// Dir is a directory node. Directories have no independent existence in
// store.Store — there is only the flat set of manifest paths — so a Dir's
// children are recomputed from the manifest set on every call, the same
// way restic's newDir(repo, node) re-derives children from the tree blob
// on every Lookup/ReadDirAll rather than caching them.
type Dir struct {
	store *store.Store
	path  string
}

func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0o755
	return nil
}

// Lookup resolves name to either a subdirectory (if some live manifest path
// has dir/name as a proper prefix) or a file (if dir/name is itself a live
// manifest path).
func (d *Dir) Lookup(_ context.Context, name string) (fs.Node, error) {
	full := join(d.path, name)
	all := d.store.GetAllFileChunks()

	if _, ok := all[full]; ok {
		return &File{store: d.store, path: full}, nil
	}

	for p := range all {
		childName, direct, ok := childUnder(d.path, p)
		if ok && childName == name && !direct {
			return &Dir{store: d.store, path: full}, nil
		}
	}

	return nil, fuse.ENOENT
}

// ReadDirAll lists every direct child (file or synthesized directory) of d.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	all := d.store.GetAllFileChunks()
	seen := make(map[string]fuse.DirentType)

	for p := range all {
		name, direct, ok := childUnder(d.path, p)
		if !ok {
			continue
		}
		if direct {
			seen[name] = fuse.DT_File
		} else if _, exists := seen[name]; !exists {
			seen[name] = fuse.DT_Dir
		}
	}

	entries := make([]fuse.Dirent, 0, len(seen))
	for name, typ := range seen {
		entries = append(entries, fuse.Dirent{Name: name, Type: typ})
	}
	return entries, nil
}

// Create implements the façade's file-creation side: a zero-length
// manifest is registered immediately so the new path is visible to
// concurrent Lookup/ReadDirAll calls before the first Write lands.
func (d *Dir) Create(_ context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	full := join(d.path, req.Name)
	d.store.StoreFileChunks(full, nil)
	debug.Log("fuse", "create %s", full)

	f := &File{store: d.store, path: full}
	resp.Attr.Mode = 0o644
	return f, f, nil
}

// Remove deletes a file's manifest. Its chunks become eligible for
// collection on the next GC cycle — Remove itself does not touch
// containers. Removing a directory is refused: directories are
// synthesized from file paths and disappear on their own once the last
// file under them is gone.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	if req.Dir {
		return fuse.Errno(syscall.EISDIR)
	}
	full := join(d.path, req.Name)
	if _, ok := d.store.GetAllFileChunks()[full]; !ok {
		return fuse.ENOENT
	}
	d.store.Unlink(full)
	debug.Log("fuse", "remove %s", full)
	return nil
}
