package fuse

import (
	"context"

	"github.com/anacrolix/fuse"
	"github.com/anacrolix/fuse/fs"

	"github.com/MasterSpider-beep/licentaDedup/internal/store"
)

var (
	_ fs.Node         = (*File)(nil)
	_ fs.HandleReader = (*File)(nil)
	_ fs.HandleWriter = (*File)(nil)
	_ fs.NodeFsyncer  = (*File)(nil)
)

// File is a regular file node, backed by one logical path in store.Store.
// A File is also its own Handle: there is no page cache or staging buffer
// to open/release, every Read and Write goes straight to the store.
type File struct {
	store *store.Store
	path  string
}

func (f *File) Attr(_ context.Context, a *fuse.Attr) error {
	size, ok := f.store.FileSize(f.path)
	if !ok {
		return fuse.ENOENT
	}
	a.Mode = 0o644
	a.Size = uint64(size)
	return nil
}

// Read satisfies fs.HandleReader. The kernel never asks for bytes past the
// size reported by Attr, so size/offset here are always within range.
func (f *File) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, err := f.store.Read(f.path, req.Size, req.Offset)
	if err != nil {
		return fuse.EIO
	}
	resp.Data = data
	return nil
}

// Write satisfies fs.HandleWriter. store.Write's partial-overwrite
// semantics apply unchanged here: a write that does not align to an
// existing chunk boundary replaces that whole chunk.
func (f *File) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := f.store.Write(f.path, req.Data, req.Offset)
	if err != nil {
		return fuse.EIO
	}
	resp.Size = n
	return nil
}

// Fsync is a no-op: store.Write already fsyncs the container append, and
// the chunk index/manifest dumps have their own background durability
// path independent of any particular Write call.
func (f *File) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	return nil
}
