// Package tree presents remote directories as a progressively revealed,
// sorted set of nodes.
package tree

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/panelfs/panelfs/internal/constants"
	"github.com/panelfs/panelfs/internal/logging"
	"github.com/panelfs/panelfs/internal/remotefs"
)

// URIScheme prefixes every node URI.
const URIScheme = "panelfs://"

// NodeKind is the render class of a node. Symlinks render as their target class.
type NodeKind int

const (
	NodeFile NodeKind = iota
	NodeDirectory
)

// RenderNode is one child as the tree shows it.
type RenderNode struct {
	Label   string
	Kind    NodeKind
	URI     string
	SortKey string
}

// Path returns the remote path the node refers to.
func (n RenderNode) Path() string {
	return strings.TrimPrefix(n.URI, URIScheme)
}

// IsDir reports whether the node is a directory.
func (n RenderNode) IsDir() bool {
	return n.Kind == NodeDirectory
}

// NodeOf converts a listing entry under dir.
func NodeOf(dir string, e remotefs.DirEntry) RenderNode {
	kind := NodeFile
	class := "1"
	if e.Kind.IsDir() {
		kind = NodeDirectory
		class = "0"
	}
	p := strings.TrimSuffix(dir, "/") + "/" + e.Name
	return RenderNode{
		Label:   e.Name,
		Kind:    kind,
		URI:     URIScheme + p,
		SortKey: class + strings.ToLower(e.Name),
	}
}

// SortNodes orders directories first, then by case-insensitive label.
func SortNodes(nodes []RenderNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].SortKey != nodes[j].SortKey {
			return nodes[i].SortKey < nodes[j].SortKey
		}
		return nodes[i].Label < nodes[j].Label
	})
}

// Lister is the listing half of the bridge.
type Lister interface {
	ListDirectory(ctx context.Context, path string) ([]remotefs.DirEntry, error)
}

// Notifier receives node change notifications. *events.EventBus implements it.
type Notifier interface {
	PublishNodeChanged(path string, all bool)
}

// Options configures an Engine.
type Options struct {
	Lister   Lister
	Mover    Mover    // optional, required by MoveInto
	Notifier Notifier // optional
	Logger   *logging.Logger
	Interval time.Duration // reveal tick, defaults to constants.RevealInterval
}

// dirState is the load state of one directory. visible counts the revealed
// prefix of all.
type dirState struct {
	all     []RenderNode
	visible int
	loaded  bool
	loading bool
	err     error
	stop    chan struct{} // closes the reveal goroutine
}

// Engine loads directories once per refresh generation and reveals their
// children one per tick.
type Engine struct {
	lister   Lister
	mover    Mover
	notifier Notifier
	logger   *logging.Logger
	interval time.Duration

	group singleflight.Group

	mu      sync.Mutex
	gen     uint64
	states  map[string]*dirState
	running int        // reveal loops not yet exited, guarded by mu
	idle    *sync.Cond // signalled on mu when running drops to zero
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = constants.RevealInterval
	}
	e := &Engine{
		lister:   opts.Lister,
		mover:    opts.Mover,
		notifier: opts.Notifier,
		logger:   logger,
		interval: interval,
		states:   make(map[string]*dirState),
	}
	e.idle = sync.NewCond(&e.mu)
	return e
}

func (e *Engine) notify(path string, all bool) {
	if e.notifier != nil {
		e.notifier.PublishNodeChanged(path, all)
	}
}

func (e *Engine) stateLocked(dir string) *dirState {
	st, ok := e.states[dir]
	if !ok {
		st = &dirState{}
		e.states[dir] = st
	}
	return st
}

// GetChildren returns the revealed children of dir without blocking. The
// first call for a directory starts a background load and returns nothing;
// callers re-query when notified.
func (e *Engine) GetChildren(dir string) []RenderNode {
	dir = remotefs.Clean(dir)

	e.mu.Lock()
	st := e.stateLocked(dir)
	if st.loaded {
		out := append([]RenderNode(nil), st.all[:st.visible]...)
		e.mu.Unlock()
		return out
	}
	start := !st.loading
	st.loading = true
	e.mu.Unlock()

	if start {
		go e.Load(context.Background(), dir)
	}
	return []RenderNode{}
}

// Load returns every child of dir, sorted, waiting for the listing if
// needed. Concurrent callers share one listing call per directory and
// refresh generation. A failed listing yields no children and its error.
func (e *Engine) Load(ctx context.Context, dir string) ([]RenderNode, error) {
	dir = remotefs.Clean(dir)

	e.mu.Lock()
	gen := e.gen
	st := e.stateLocked(dir)
	if st.loaded {
		out, err := append([]RenderNode(nil), st.all...), st.err
		e.mu.Unlock()
		return out, err
	}
	st.loading = true
	e.mu.Unlock()

	key := fmt.Sprintf("%d:%s", gen, dir)
	ch := e.group.DoChan(key, func() (interface{}, error) {
		return e.load(context.WithoutCancel(ctx), dir, gen)
	})
	select {
	case res := <-ch:
		nodes, _ := res.Val.([]RenderNode)
		return append([]RenderNode(nil), nodes...), res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) load(ctx context.Context, dir string, gen uint64) ([]RenderNode, error) {
	entries, err := e.lister.ListDirectory(ctx, dir)

	var nodes []RenderNode
	if err == nil {
		nodes = make([]RenderNode, 0, len(entries))
		for _, ent := range entries {
			nodes = append(nodes, NodeOf(dir, ent))
		}
		SortNodes(nodes)
	} else {
		e.logger.Warn().Err(err).Str("dir", dir).Msg("directory listing failed, showing it empty")
	}

	e.mu.Lock()
	if e.gen != gen {
		// a refresh discarded this state while the listing was in flight
		e.mu.Unlock()
		return nodes, err
	}
	st := e.stateLocked(dir)
	st.loading = false
	st.loaded = true
	st.all = nodes
	st.visible = 0
	st.err = err
	if len(nodes) > 0 {
		st.stop = make(chan struct{})
		e.running++
		go e.revealLoop(dir, st, st.stop)
	}
	e.mu.Unlock()

	if len(nodes) == 0 {
		e.notify(dir, false)
	}
	return nodes, err
}

// revealLoop makes one more child visible per tick until all are shown.
func (e *Engine) revealLoop(dir string, st *dirState, stop chan struct{}) {
	defer e.revealDone()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		select {
		case <-stop:
			e.mu.Unlock()
			return
		default:
		}
		st.visible++
		done := st.visible >= len(st.all)
		if done {
			st.stop = nil
		}
		e.mu.Unlock()

		e.notify(dir, false)
		if done {
			return
		}
	}
}

func (e *Engine) revealDone() {
	e.mu.Lock()
	e.running--
	if e.running == 0 {
		e.idle.Broadcast()
	}
	e.mu.Unlock()
}

// Refresh stops every reveal, discards all load state and publishes one
// global change.
func (e *Engine) Refresh() {
	e.mu.Lock()
	for _, st := range e.states {
		if st.stop != nil {
			close(st.stop)
			st.stop = nil
		}
	}
	e.states = make(map[string]*dirState)
	e.gen++
	e.mu.Unlock()

	e.notify("", true)
}

// Revealing returns how many directories are still being revealed.
func (e *Engine) Revealing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, st := range e.states {
		if st.stop != nil {
			n++
		}
	}
	return n
}

// Wait blocks until every running reveal loop has exited. A listing still
// in flight may start a new loop afterwards unless Refresh ran first.
func (e *Engine) Wait() {
	e.mu.Lock()
	for e.running > 0 {
		e.idle.Wait()
	}
	e.mu.Unlock()
}
