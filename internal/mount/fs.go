// Package mount exposes the remote filesystem as a local FUSE mount.
package mount

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/panelfs/panelfs/internal/logging"
	"github.com/panelfs/panelfs/internal/remotefs"
)

// Bridge is the part of *remotefs.FS the mount uses.
type Bridge interface {
	Stat(ctx context.Context, p string) (remotefs.Metadata, error)
	ListDirectory(ctx context.Context, p string) ([]remotefs.DirEntry, error)
	ReadFile(ctx context.Context, p string) ([]byte, error)
	WriteFile(ctx context.Context, p string, data []byte, opts remotefs.WriteOptions) error
	CreateDirectory(ctx context.Context, p string) error
	Delete(ctx context.Context, p string, opts remotefs.DeleteOptions) error
	Rename(ctx context.Context, from, to string, opts remotefs.RenameOptions) error
}

var _ Bridge = (*remotefs.FS)(nil)

// renameNoReplace is RENAME_NOREPLACE from renameat2(2).
const renameNoReplace = 1

// Options configures a mount.
type Options struct {
	Logger     *logging.Logger
	AllowOther bool
	Debug      bool
	// AttrTimeout is how long the kernel may cache attributes and entries.
	AttrTimeout time.Duration
}

// Node is a file or directory in the mounted tree. Its remote path is
// derived from its position in the inode tree so renames need no
// bookkeeping.
type Node struct {
	fs.Inode

	bridge Bridge
	logger *logging.Logger
}

var (
	_ fs.InodeEmbedder = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeRenamer   = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
)

// NewRoot returns the root node for a bridge.
func NewRoot(b Bridge, logger *logging.Logger) *Node {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Node{bridge: b, logger: logger}
}

// Mount mounts the bridge at dir. The caller waits on the returned server
// and unmounts it on shutdown.
func Mount(b Bridge, dir string, opts Options) (*gofuse.Server, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}
	timeout := opts.AttrTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	fopts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
			FsName:     "panelfs",
			Name:       "panelfs",
		},
		EntryTimeout: &timeout,
		AttrTimeout:  &timeout,
		UID:          uint32(os.Getuid()),
		GID:          uint32(os.Getgid()),
	}
	server, err := fs.Mount(dir, NewRoot(b, opts.Logger), fopts)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	return server, nil
}

// remotePath is the node's absolute path on the server.
func (n *Node) remotePath() string {
	return "/" + n.Path(nil)
}

func (n *Node) child() *Node {
	return &Node{bridge: n.bridge, logger: n.logger}
}

// Errno maps a bridge error onto the errno a FUSE caller sees.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return syscall.EINTR
	case remotefs.IsNotEmpty(err):
		return syscall.ENOTEMPTY
	case remotefs.IsKind(err, remotefs.KindIsADirectory):
		return syscall.EISDIR
	case remotefs.IsKind(err, remotefs.KindBusy):
		return syscall.EBUSY
	case remotefs.IsKind(err, remotefs.KindInvalidState):
		return syscall.ENOTCONN
	case errors.Is(err, iofs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, iofs.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, iofs.ErrExist):
		return syscall.EEXIST
	}
	return syscall.EIO
}

func (n *Node) errno(op, p string, err error) syscall.Errno {
	e := Errno(err)
	if e != syscall.ENOENT {
		n.logger.Debug().Err(err).Str("op", op).Str("path", p).Msg("fuse operation failed")
	}
	return e
}

// fillAttr copies bridge metadata into a FUSE attribute block.
func fillAttr(m remotefs.Metadata, out *gofuse.Attr) {
	out.Mode = fileMode(m)
	out.Size = uint64(m.Size)
	if m.Kind.IsDir() {
		out.Size = 4096
	}
	mtime := m.ModTime
	ctime := m.CreatedAt
	if ctime.IsZero() {
		ctime = mtime
	}
	out.SetTimes(&mtime, &mtime, &ctime)
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())
}

func fileMode(m remotefs.Metadata) uint32 {
	perm := uint32(0644)
	if m.ReadOnly {
		perm = 0444
	}
	if m.Kind.IsDir() {
		return syscall.S_IFDIR | perm | 0111
	}
	return syscall.S_IFREG | perm
}

// Getattr never downloads content.
func (n *Node) Getattr(ctx context.Context, fh fs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	if h, ok := fh.(*handle); ok && h.writable {
		h.mu.Lock()
		out.Mode = syscall.S_IFREG | 0644
		out.Size = uint64(len(h.data))
		h.mu.Unlock()
		return 0
	}
	p := n.remotePath()
	m, err := n.bridge.Stat(ctx, p)
	if err != nil {
		return n.errno("getattr", p, err)
	}
	fillAttr(m, &out.Attr)
	return 0
}

// Lookup stats a child.
func (n *Node) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := path.Join(n.remotePath(), name)
	m, err := n.bridge.Stat(ctx, p)
	if err != nil {
		return nil, n.errno("lookup", p, err)
	}
	fillAttr(m, &out.Attr)
	return n.NewInode(ctx, n.child(), fs.StableAttr{Mode: out.Mode & syscall.S_IFMT}), 0
}

// Readdir lists a directory.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	p := n.remotePath()
	entries, err := n.bridge.ListDirectory(ctx, p)
	if err != nil {
		return nil, n.errno("readdir", p, err)
	}
	out := make([]gofuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		if e.Kind.IsDir() {
			mode = syscall.S_IFDIR
		}
		out = append(out, gofuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return fs.NewListDirStream(out), 0
}

// Open loads the file for reading, or prepares a write buffer. Writes are
// uploaded on flush.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	p := n.remotePath()
	if n.IsDir() {
		return nil, 0, syscall.EISDIR
	}
	writable := flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0
	h := &handle{bridge: n.bridge, path: p, writable: writable, logger: n.logger}

	if writable && flags&syscall.O_TRUNC != 0 {
		h.dirty = true
		return h, gofuse.FOPEN_DIRECT_IO, 0
	}
	data, err := n.bridge.ReadFile(ctx, p)
	if err != nil {
		return nil, 0, n.errno("open", p, err)
	}
	if writable {
		data = append([]byte(nil), data...)
	}
	h.data = data
	return h, gofuse.FOPEN_DIRECT_IO, 0
}

// Create makes an empty file handle that uploads on flush.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *gofuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	p := path.Join(n.remotePath(), name)
	if flags&syscall.O_EXCL != 0 {
		if _, err := n.bridge.Stat(ctx, p); err == nil {
			return nil, nil, 0, syscall.EEXIST
		}
	}
	now := time.Now()
	fillAttr(remotefs.Metadata{Name: name, Kind: remotefs.EntryFile, ModTime: now}, &out.Attr)
	inode := n.NewInode(ctx, n.child(), fs.StableAttr{Mode: syscall.S_IFREG})
	h := &handle{bridge: n.bridge, path: p, writable: true, dirty: true, logger: n.logger}
	return inode, h, gofuse.FOPEN_DIRECT_IO, 0
}

// Mkdir creates a directory.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *gofuse.EntryOut) (*fs.Inode, syscall.Errno) {
	p := path.Join(n.remotePath(), name)
	if err := n.bridge.CreateDirectory(ctx, p); err != nil {
		return nil, n.errno("mkdir", p, err)
	}
	fillAttr(remotefs.Metadata{Name: name, Kind: remotefs.EntryDirectory, ModTime: time.Now()}, &out.Attr)
	return n.NewInode(ctx, n.child(), fs.StableAttr{Mode: syscall.S_IFDIR}), 0
}

// Unlink removes a file.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	p := path.Join(n.remotePath(), name)
	m, err := n.bridge.Stat(ctx, p)
	if err != nil {
		return n.errno("unlink", p, err)
	}
	if m.Kind.IsDir() {
		return syscall.EISDIR
	}
	return n.errno("unlink", p, n.bridge.Delete(ctx, p, remotefs.DeleteOptions{}))
}

// Rmdir removes an empty directory.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	p := path.Join(n.remotePath(), name)
	m, err := n.bridge.Stat(ctx, p)
	if err != nil {
		return n.errno("rmdir", p, err)
	}
	if !m.Kind.IsDir() {
		return syscall.ENOTDIR
	}
	return n.errno("rmdir", p, n.bridge.Delete(ctx, p, remotefs.DeleteOptions{}))
}

// Rename moves a child, replacing an existing destination unless
// RENAME_NOREPLACE is set.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if flags&^renameNoReplace != 0 {
		return syscall.ENOTSUP
	}
	from := path.Join(n.remotePath(), name)
	to := path.Join("/"+newParent.EmbeddedInode().Path(nil), newName)
	err := n.bridge.Rename(ctx, from, to, remotefs.RenameOptions{Overwrite: flags&renameNoReplace == 0})
	return n.errno("rename", from, err)
}

// Setattr supports truncation. Other attribute changes are accepted and
// ignored since the panel has no API for them.
func (n *Node) Setattr(ctx context.Context, fh fs.FileHandle, in *gofuse.SetAttrIn, out *gofuse.AttrOut) syscall.Errno {
	size, ok := in.GetSize()
	if ok {
		if h, isHandle := fh.(*handle); isHandle && h.writable {
			h.truncate(int(size))
		} else {
			p := n.remotePath()
			data, err := n.bridge.ReadFile(ctx, p)
			if err != nil {
				return n.errno("truncate", p, err)
			}
			data = resize(data, int(size))
			if err := n.bridge.WriteFile(ctx, p, data, remotefs.WriteOptions{Overwrite: true}); err != nil {
				return n.errno("truncate", p, err)
			}
		}
	}
	return n.Getattr(ctx, fh, out)
}

func resize(data []byte, size int) []byte {
	if size <= len(data) {
		return data[:size]
	}
	return append(data, make([]byte, size-len(data))...)
}

// handle holds a whole file in memory. Panel files are small config and
// log files; the API has no ranged reads or writes.
type handle struct {
	bridge   Bridge
	path     string
	writable bool
	logger   *logging.Logger

	mu    sync.Mutex
	data  []byte
	dirty bool
}

var (
	_ fs.FileReader  = (*handle)(nil)
	_ fs.FileWriter  = (*handle)(nil)
	_ fs.FileFlusher = (*handle)(nil)
)

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (gofuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if off >= int64(len(h.data)) {
		return gofuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	return gofuse.ReadResultData(h.data[off:end]), 0
}

func (h *handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if !h.writable {
		return 0, syscall.EBADF
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	end := int(off) + len(data)
	if end > len(h.data) {
		h.data = resize(h.data, end)
	}
	copy(h.data[off:], data)
	h.dirty = true
	return uint32(len(data)), 0
}

func (h *handle) truncate(size int) {
	h.mu.Lock()
	h.data = resize(h.data, size)
	h.dirty = true
	h.mu.Unlock()
}

// Flush uploads dirty content. Flush runs on every close of a descriptor,
// so a clean handle is a no-op.
func (h *handle) Flush(ctx context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.writable || !h.dirty {
		return 0
	}
	err := h.bridge.WriteFile(ctx, h.path, h.data, remotefs.WriteOptions{Create: true, Overwrite: true})
	if err != nil {
		h.logger.Warn().Err(err).Str("path", h.path).Msg("upload on flush failed")
		return Errno(err)
	}
	h.dirty = false
	h.logger.Debug().Str("path", h.path).Int("bytes", len(h.data)).Msg("uploaded")
	return 0
}
