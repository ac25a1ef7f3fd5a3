// Package remotefs maps filesystem operations onto the panel's files API.
package remotefs

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/panelfs/panelfs/internal/api"
	"github.com/panelfs/panelfs/internal/connection"
	"github.com/panelfs/panelfs/internal/constants"
	"github.com/panelfs/panelfs/internal/events"
	"github.com/panelfs/panelfs/internal/logging"
	"github.com/panelfs/panelfs/internal/models"
)

// API is the subset of *api.Client the bridge uses.
type API interface {
	ListDirectory(ctx context.Context, s connection.Snapshot, dir string) ([]models.RemoteEntry, error)
	FileContents(ctx context.Context, s connection.Snapshot, path string) ([]byte, error)
	WriteFile(ctx context.Context, s connection.Snapshot, path string, data []byte) error
	CreateFolder(ctx context.Context, s connection.Snapshot, root, name string) error
	Delete(ctx context.Context, s connection.Snapshot, root string, files []string) error
	Rename(ctx context.Context, s connection.Snapshot, root string, pairs []models.RenamePair) error
	Copy(ctx context.Context, s connection.Snapshot, location string) error
}

var _ API = (*api.Client)(nil)

// Options configures an FS.
type Options struct {
	API      API
	State    *connection.State
	Bus      *events.EventBus // optional
	Logger   *logging.Logger  // optional
	CacheTTL time.Duration    // defaults to constants.StatCacheTTL
}

// FS is the remote filesystem bridge. It is safe for concurrent use.
type FS struct {
	api    API
	state  *connection.State
	bus    *events.EventBus
	logger *logging.Logger
	cache  *statCache

	mu            sync.Mutex
	onAuthFailure func()
}

// New creates a bridge over opts.API. The stat cache is flushed whenever
// the connection changes.
func New(opts Options) *FS {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = constants.StatCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	state := opts.State
	if state == nil {
		state = connection.NewState()
	}

	f := &FS{
		api:    opts.API,
		state:  state,
		bus:    opts.Bus,
		logger: logger,
		cache:  newStatCache(ttl),
	}
	state.OnChange(func(connection.Snapshot) { f.cache.flush() })
	return f
}

// OnAuthFailure registers fn to run once for every 401 the panel returns.
func (f *FS) OnAuthFailure(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onAuthFailure = fn
}

// State returns the connection state the bridge reads.
func (f *FS) State() *connection.State {
	return f.state
}

// Clean normalizes a remote path to an absolute, slash-separated form.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean("/" + p)
}

func (f *FS) snapshot(op, p string) (connection.Snapshot, error) {
	snap, err := f.state.Require()
	if err != nil {
		return connection.Snapshot{}, &Error{Kind: KindInvalidState, Op: op, Path: p, Message: msgNotConnected, Err: err}
	}
	return snap, nil
}

// fail maps a transport error and fires the auth-failure hook on 401.
func (f *FS) fail(op, p string, err error) error {
	e := mapStatus(op, p, err)

	ev := f.logger.Warn().Err(err).Str("op", op).Str("path", p).Str("kind", e.Kind.String())
	if se, ok := api.AsStatusError(err); ok && se.Body != "" {
		ev = ev.Str("body", se.Body)
	}
	ev.Msg("panel call failed")

	if e.Kind == KindUnauthenticated {
		f.authFailed(op)
	}
	return e
}

func (f *FS) authFailed(op string) {
	f.mu.Lock()
	fn := f.onAuthFailure
	f.mu.Unlock()

	if f.bus != nil {
		f.bus.PublishAuthFailed(op)
	}
	if fn != nil {
		fn()
	}
}

// Stat resolves one path by listing its parent. Results are cached for the
// cache TTL; "/" is answered without a network call.
func (f *FS) Stat(ctx context.Context, p string) (Metadata, error) {
	p = Clean(p)
	snap, err := f.snapshot("stat", p)
	if err != nil {
		return Metadata{}, err
	}
	if p == "/" {
		return rootMetadata(), nil
	}
	if meta, ok := f.cache.get(p); ok {
		return meta, nil
	}

	entries, err := f.api.ListDirectory(ctx, snap, path.Dir(p))
	if err != nil {
		return Metadata{}, f.fail("stat", p, err)
	}
	name := path.Base(p)
	for _, e := range entries {
		if e.Name == name {
			meta := metadataOf(e)
			f.cache.put(p, meta)
			return meta, nil
		}
	}
	return Metadata{}, newError(KindNotFound, "stat", p, "no such file or directory")
}

// ListDirectory lists the children of p, directories first. Listings are
// never cached.
func (f *FS) ListDirectory(ctx context.Context, p string) ([]DirEntry, error) {
	p = Clean(p)
	snap, err := f.snapshot("list", p)
	if err != nil {
		return nil, err
	}

	entries, err := f.api.ListDirectory(ctx, snap, p)
	if err != nil {
		return nil, f.fail("list", p, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		meta := metadataOf(e)
		out = append(out, DirEntry{Name: e.Name, Kind: meta.Kind, Metadata: meta})
	}
	SortEntries(out)
	return out, nil
}

// ReadFile fetches file contents. Transport failures, 429 and 5xx are
// retried by the read client.
func (f *FS) ReadFile(ctx context.Context, p string) ([]byte, error) {
	p = Clean(p)
	snap, err := f.snapshot("read", p)
	if err != nil {
		return nil, err
	}

	data, err := f.api.FileContents(ctx, snap, p)
	if err != nil {
		return nil, f.fail("read", p, err)
	}
	return data, nil
}

// WriteFile uploads data to p after probing it with Stat.
//
// The panel's write endpoint may refuse a path that does not exist yet, so
// a missing file is first created empty. That pre-create is best effort.
func (f *FS) WriteFile(ctx context.Context, p string, data []byte, opts WriteOptions) error {
	p = Clean(p)
	snap, err := f.snapshot("write", p)
	if err != nil {
		return err
	}

	meta, err := f.Stat(ctx, p)
	switch {
	case err == nil && meta.Kind.IsDir():
		return newError(KindIsADirectory, "write", p, "is a directory")
	case err == nil && !opts.Overwrite:
		return newError(KindAlreadyExists, "write", p, "file already exists")
	case err != nil && !IsKind(err, KindNotFound):
		return err
	case err != nil && !opts.Create:
		return newError(KindNotFound, "write", p, "no such file or directory")
	case err != nil:
		if perr := f.api.WriteFile(ctx, snap, p, nil); perr != nil {
			f.logger.Warn().Err(perr).Str("path", p).Msg("pre-create failed, uploading anyway")
		}
	}

	defer f.cache.invalidate(p)
	if err := f.api.WriteFile(ctx, snap, p, data); err != nil {
		return f.fail("write", p, err)
	}
	return nil
}

// CreateDirectory creates p. Its parent must exist.
func (f *FS) CreateDirectory(ctx context.Context, p string) error {
	p = Clean(p)
	snap, err := f.snapshot("mkdir", p)
	if err != nil {
		return err
	}
	if p == "/" {
		return newError(KindAlreadyExists, "mkdir", p, "directory already exists")
	}

	defer f.cache.invalidate(p)
	if err := f.api.CreateFolder(ctx, snap, path.Dir(p), path.Base(p)); err != nil {
		return f.fail("mkdir", p, err)
	}
	return nil
}

// Delete removes p. Without Recursive a non-empty directory is refused
// before any delete call is made.
func (f *FS) Delete(ctx context.Context, p string, opts DeleteOptions) error {
	p = Clean(p)
	snap, err := f.snapshot("delete", p)
	if err != nil {
		return err
	}
	if p == "/" {
		return newError(KindInvalidState, "delete", p, "cannot delete the root directory")
	}

	if !opts.Recursive {
		meta, err := f.Stat(ctx, p)
		if err != nil {
			return err
		}
		if meta.Kind.IsDir() {
			children, err := f.api.ListDirectory(ctx, snap, p)
			if err != nil {
				return f.fail("delete", p, err)
			}
			if len(children) > 0 {
				return newError(KindInvalidState, "delete", p, msgDirectoryNotEmpty)
			}
		}
	}

	defer f.cache.invalidate(p)
	if err := f.api.Delete(ctx, snap, path.Dir(p), []string{path.Base(p)}); err != nil {
		return f.fail("delete", p, err)
	}
	return nil
}

// Rename moves from to to. An existing destination is replaced only with
// Overwrite.
func (f *FS) Rename(ctx context.Context, from, to string, opts RenameOptions) error {
	from, to = Clean(from), Clean(to)
	snap, err := f.snapshot("rename", from)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if from == "/" || to == "/" {
		return newError(KindInvalidState, "rename", from, "cannot rename the root directory")
	}

	if err := f.clearDestination(ctx, "rename", to, opts.Overwrite); err != nil {
		return err
	}
	return f.rename(ctx, snap, from, to)
}

func (f *FS) rename(ctx context.Context, snap connection.Snapshot, from, to string) error {
	defer f.cache.invalidate(from)
	defer f.cache.invalidate(to)

	pair := models.RenamePair{From: strings.TrimPrefix(from, "/"), To: strings.TrimPrefix(to, "/")}
	if err := f.api.Rename(ctx, snap, "/", []models.RenamePair{pair}); err != nil {
		return f.fail("rename", from, err)
	}
	return nil
}

// clearDestination fails with AlreadyExists when dst exists and overwrite
// is false, and deletes it when overwrite is true.
func (f *FS) clearDestination(ctx context.Context, op, dst string, overwrite bool) error {
	_, err := f.Stat(ctx, dst)
	switch {
	case IsKind(err, KindNotFound):
		return nil
	case err != nil:
		return err
	case !overwrite:
		return newError(KindAlreadyExists, op, dst, "destination already exists")
	}
	return f.Delete(ctx, dst, DeleteOptions{Recursive: true})
}

// Copy duplicates a file. The panel only copies in place as
// "<name> copy<ext>"; the duplicate is then renamed to the destination,
// unless both live in the same directory, in which case the duplicate
// keeps its synthesized name.
func (f *FS) Copy(ctx context.Context, from, to string, opts CopyOptions) error {
	from, to = Clean(from), Clean(to)
	snap, err := f.snapshot("copy", from)
	if err != nil {
		return err
	}

	meta, err := f.Stat(ctx, from)
	if err != nil {
		return err
	}
	if meta.Kind.IsDir() {
		return newError(KindIsADirectory, "copy", from, "directories cannot be copied")
	}

	// A same-directory copy never lands on to, so to is left alone.
	dir := path.Dir(from)
	sameDir := path.Dir(to) == dir
	if !sameDir {
		if err := f.clearDestination(ctx, "copy", to, opts.Overwrite); err != nil {
			return err
		}
	}

	dup := path.Join(dir, CopyName(path.Base(from)))
	defer f.cache.invalidate(dup)
	if err := f.api.Copy(ctx, snap, from); err != nil {
		return f.fail("copy", from, err)
	}

	if sameDir {
		return nil
	}
	return f.rename(ctx, snap, dup, to)
}

// CopyName is the name the panel gives a file duplicated in place.
func CopyName(name string) string {
	ext := path.Ext(name)
	if ext == name {
		ext = ""
	}
	return strings.TrimSuffix(name, ext) + " copy" + ext
}
