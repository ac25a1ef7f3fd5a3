// Package webdav serves the remote filesystem over WebDAV.
package webdav

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"golang.org/x/net/webdav"

	"github.com/panelfs/panelfs/internal/remotefs"
)

// Bridge is the part of *remotefs.FS the WebDAV tree uses.
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

// PanelFS implements webdav.FileSystem over the panel bridge.
type PanelFS struct {
	bridge Bridge
}

var _ webdav.FileSystem = (*PanelFS)(nil)

// NewFileSystem wraps a bridge.
func NewFileSystem(b Bridge) *PanelFS {
	return &PanelFS{bridge: b}
}

// pathError rewraps bridge errors so os.IsNotExist and friends, which the
// WebDAV handler relies on, recognise them.
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if s := remotefs.Sentinel(err); s != nil {
		return &fs.PathError{Op: op, Path: name, Err: s}
	}
	return err
}

// Mkdir creates a directory.
func (p *PanelFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	name = remotefs.Clean(name)
	return pathError("mkdir", name, p.bridge.CreateDirectory(ctx, name))
}

// OpenFile opens a file or directory. Writable handles buffer in memory
// and upload on Close.
func (p *PanelFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	name = remotefs.Clean(name)
	writable := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0

	meta, err := p.bridge.Stat(ctx, name)
	exists := err == nil
	if err != nil && !remotefs.IsKind(err, remotefs.KindNotFound) {
		return nil, pathError("open", name, err)
	}

	if writable {
		if exists && meta.Kind.IsDir() {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
		}
		if exists && flag&os.O_EXCL != 0 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
		}
		if !exists && flag&os.O_CREATE == 0 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		return &file{fs: p, ctx: ctx, name: name, meta: meta, writable: true, buf: &bytes.Buffer{}}, nil
	}

	if !exists {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &file{fs: p, ctx: ctx, name: name, meta: meta}, nil
}

// RemoveAll removes a file or directory tree.
func (p *PanelFS) RemoveAll(ctx context.Context, name string) error {
	name = remotefs.Clean(name)
	return pathError("remove", name, p.bridge.Delete(ctx, name, remotefs.DeleteOptions{Recursive: true}))
}

// Rename moves oldName to newName. The WebDAV handler removes an existing
// destination itself when Overwrite is requested.
func (p *PanelFS) Rename(ctx context.Context, oldName, newName string) error {
	oldName = remotefs.Clean(oldName)
	return pathError("rename", oldName, p.bridge.Rename(ctx, oldName, remotefs.Clean(newName), remotefs.RenameOptions{}))
}

// Stat returns file info for a path.
func (p *PanelFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	name = remotefs.Clean(name)
	meta, err := p.bridge.Stat(ctx, name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return fileInfo{meta}, nil
}

// file implements webdav.File.
type file struct {
	fs       *PanelFS
	ctx      context.Context
	name     string
	meta     remotefs.Metadata
	writable bool
	buf      *bytes.Buffer

	content *bytes.Reader // fetched on first read
	dirents []os.FileInfo // fetched on first Readdir
	dirPos  int
}

var _ webdav.File = (*file)(nil)

func (f *file) Close() error {
	if !f.writable {
		return nil
	}
	err := f.fs.bridge.WriteFile(f.ctx, f.name, f.buf.Bytes(), remotefs.WriteOptions{Create: true, Overwrite: true})
	return pathError("write", f.name, err)
}

func (f *file) load() error {
	if f.content != nil {
		return nil
	}
	if f.meta.Kind.IsDir() {
		return &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrInvalid}
	}
	data, err := f.fs.bridge.ReadFile(f.ctx, f.name)
	if err != nil {
		return pathError("read", f.name, err)
	}
	f.content = bytes.NewReader(data)
	return nil
}

func (f *file) Read(p []byte) (int, error) {
	if f.writable {
		return 0, fmt.Errorf("file opened for writing")
	}
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.content.Read(p)
}

func (f *file) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, fmt.Errorf("file not opened for writing")
	}
	return f.buf.Write(p)
}

// Seek avoids fetching content for the size probe the handler makes
// before serving a GET.
func (f *file) Seek(offset int64, whence int) (int64, error) {
	if f.writable {
		return 0, fmt.Errorf("seek on a file opened for writing")
	}
	if f.content == nil && offset == 0 && whence == io.SeekEnd {
		return f.meta.Size, nil
	}
	if f.content == nil && offset == 0 && whence == io.SeekStart {
		return 0, nil
	}
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.content.Seek(offset, whence)
}

func (f *file) Readdir(count int) ([]os.FileInfo, error) {
	if !f.meta.Kind.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: f.name, Err: errors.New("not a directory")}
	}
	if f.dirents == nil {
		entries, err := f.fs.bridge.ListDirectory(f.ctx, f.name)
		if err != nil {
			return nil, pathError("readdir", f.name, err)
		}
		f.dirents = make([]os.FileInfo, 0, len(entries))
		for _, e := range entries {
			f.dirents = append(f.dirents, fileInfo{e.Metadata})
		}
	}

	rest := f.dirents[f.dirPos:]
	if count <= 0 {
		f.dirPos = len(f.dirents)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if count > len(rest) {
		count = len(rest)
	}
	f.dirPos += count
	return rest[:count], nil
}

func (f *file) Stat() (os.FileInfo, error) {
	if f.writable {
		return fileInfo{remotefs.Metadata{Name: path.Base(f.name), Size: int64(f.buf.Len()), ModTime: time.Now()}}, nil
	}
	return fileInfo{f.meta}, nil
}

// fileInfo implements os.FileInfo over bridge metadata.
type fileInfo struct {
	m remotefs.Metadata
}

func (fi fileInfo) Name() string       { return fi.m.Name }
func (fi fileInfo) Size() int64        { return fi.m.Size }
func (fi fileInfo) IsDir() bool        { return fi.m.Kind.IsDir() }
func (fi fileInfo) ModTime() time.Time { return fi.m.ModTime }
func (fi fileInfo) Sys() interface{}   { return nil }

func (fi fileInfo) Mode() os.FileMode {
	perm := os.FileMode(0644)
	if fi.m.ReadOnly {
		perm = 0444
	}
	if fi.IsDir() {
		return os.ModeDir | perm | 0111
	}
	return perm
}
