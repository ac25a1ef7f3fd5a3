package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/panelfs/panelfs/internal/remotefs"
)

type fakeLister struct {
	mu      sync.Mutex
	entries map[string][]remotefs.DirEntry
	errs    map[string]error
	calls   map[string]int
	gate    chan struct{} // when set, listings block until closed
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		entries: map[string][]remotefs.DirEntry{
			"/": {
				{Name: "server.properties", Kind: remotefs.EntryFile},
				{Name: "plugins", Kind: remotefs.EntryDirectory},
				{Name: "Banned-IPs.json", Kind: remotefs.EntryFile},
				{Name: "world", Kind: remotefs.EntryDirectory},
				{Name: "Cache", Kind: remotefs.EntrySymlinkDirectory},
			},
		},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (l *fakeLister) ListDirectory(ctx context.Context, p string) ([]remotefs.DirEntry, error) {
	l.mu.Lock()
	l.calls[p]++
	gate := l.gate
	l.mu.Unlock()

	if gate != nil {
		<-gate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.errs[p]; err != nil {
		return nil, err
	}
	return l.entries[p], nil
}

func (l *fakeLister) callCount(p string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[p]
}

type notification struct {
	path string
	all  bool
}

type recorder struct {
	mu   sync.Mutex
	seen []notification
}

func (r *recorder) PublishNodeChanged(path string, all bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, notification{path, all})
}

func (r *recorder) count(n notification) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, s := range r.seen {
		if s == n {
			c++
		}
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func labels(nodes []RenderNode) string {
	var s []string
	for _, n := range nodes {
		s = append(s, n.Label)
	}
	return strings.Join(s, ",")
}

func TestGetChildren_LoadsThenReveals(t *testing.T) {
	l := newFakeLister()
	rec := &recorder{}
	e := NewEngine(Options{Lister: l, Notifier: rec, Interval: time.Millisecond})

	if got := e.GetChildren("/"); len(got) != 0 {
		t.Fatalf("first GetChildren = %v, want empty", got)
	}

	want := "Cache,plugins,world,Banned-IPs.json,server.properties"
	var snapshots []string
	waitFor(t, "full reveal", func() bool {
		got := labels(e.GetChildren("/"))
		snapshots = append(snapshots, got)
		return got == want
	})
	for _, s := range snapshots {
		if !strings.HasPrefix(want, s) {
			t.Errorf("visible %q is not a prefix of %q", s, want)
		}
	}

	e.Wait()
	if n := rec.count(notification{"/", false}); n != 5 {
		t.Errorf("node notifications = %d, want one per revealed child (5)", n)
	}
	if e.Revealing() != 0 {
		t.Error("reveal ticker still registered after completion")
	}
}

func TestRenderNodeURIAndKind(t *testing.T) {
	l := newFakeLister()
	e := NewEngine(Options{Lister: l})
	nodes, err := e.Load(context.Background(), "/")
	if err != nil {
		t.Fatal(err)
	}
	if nodes[0].Label != "Cache" || !nodes[0].IsDir() {
		t.Errorf("symlinked directory should sort and render as a directory: %+v", nodes[0])
	}
	if nodes[1].URI != "panelfs:///plugins" || nodes[1].Path() != "/plugins" {
		t.Errorf("URI = %q, Path = %q", nodes[1].URI, nodes[1].Path())
	}
	e.Refresh()
	e.Wait()
}

func TestLoad_SingleFlightPerDirectory(t *testing.T) {
	l := newFakeLister()
	l.gate = make(chan struct{})
	e := NewEngine(Options{Lister: l, Interval: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		e.GetChildren("/")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Load(context.Background(), "/"); err != nil {
				t.Errorf("Load: %v", err)
			}
		}()
	}
	waitFor(t, "listing to start", func() bool { return l.callCount("/") >= 1 })
	time.Sleep(20 * time.Millisecond)
	close(l.gate)
	wg.Wait()

	if n := l.callCount("/"); n != 1 {
		t.Errorf("listing calls = %d, want 1", n)
	}
	e.Wait()
}

func TestLoad_FailureShowsEmptyAndNotifiesOnce(t *testing.T) {
	l := newFakeLister()
	l.errs["/broken"] = errors.New("502 Bad Gateway")
	rec := &recorder{}
	e := NewEngine(Options{Lister: l, Notifier: rec})

	e.GetChildren("/broken")
	waitFor(t, "failure notification", func() bool { return rec.count(notification{"/broken", false}) == 1 })

	if got := e.GetChildren("/broken"); len(got) != 0 {
		t.Errorf("GetChildren after failure = %v, want empty", got)
	}
	if _, err := e.Load(context.Background(), "/broken"); err == nil {
		t.Error("Load should report the listing error")
	}
	time.Sleep(20 * time.Millisecond)
	if n := rec.count(notification{"/broken", false}); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
	if l.callCount("/broken") != 1 {
		t.Errorf("failed listing was retried: %d calls", l.callCount("/broken"))
	}
}

func TestRefresh_TwiceIsIdempotent(t *testing.T) {
	l := newFakeLister()
	for i := 0; i < 100; i++ {
		l.entries["/big"] = append(l.entries["/big"], remotefs.DirEntry{Name: fmt.Sprintf("f%03d", i)})
	}
	rec := &recorder{}
	e := NewEngine(Options{Lister: l, Notifier: rec, Interval: 20 * time.Millisecond})

	if _, err := e.Load(context.Background(), "/big"); err != nil {
		t.Fatal(err)
	}
	if e.Revealing() != 1 {
		t.Fatalf("Revealing = %d, want 1", e.Revealing())
	}

	e.Refresh()
	e.Refresh()
	e.Wait()

	if e.Revealing() != 0 {
		t.Errorf("Revealing = %d after refresh", e.Revealing())
	}
	if n := rec.count(notification{"", true}); n != 2 {
		t.Errorf("global notifications = %d, want 2", n)
	}

	if got := e.GetChildren("/big"); len(got) != 0 {
		t.Errorf("state survived refresh: %d children", len(got))
	}
	waitFor(t, "reload", func() bool { return l.callCount("/big") == 2 })
	time.Sleep(20 * time.Millisecond)
	if l.callCount("/big") != 2 {
		t.Errorf("listing calls = %d, want exactly one reload", l.callCount("/big"))
	}
	e.Refresh()
	e.Wait()
}

func TestRefresh_DiscardsInFlightLoad(t *testing.T) {
	l := newFakeLister()
	l.gate = make(chan struct{})
	e := NewEngine(Options{Lister: l, Interval: time.Millisecond})

	e.GetChildren("/")
	waitFor(t, "listing to start", func() bool { return l.callCount("/") == 1 })
	e.Refresh()
	close(l.gate)
	time.Sleep(20 * time.Millisecond)

	if e.Revealing() != 0 {
		t.Error("stale load started a reveal")
	}
	e.GetChildren("/")
	waitFor(t, "fresh load", func() bool { return l.callCount("/") == 2 })
	e.Wait()
}

func TestWait_ConcurrentWithStartingReveals(t *testing.T) {
	l := newFakeLister()
	for i := 0; i < 20; i++ {
		l.entries[fmt.Sprintf("/d%d", i)] = []remotefs.DirEntry{{Name: "a", Kind: remotefs.EntryFile}}
	}
	l.gate = make(chan struct{})
	e := NewEngine(Options{Lister: l, Interval: time.Millisecond})

	for i := 0; i < 20; i++ {
		e.GetChildren(fmt.Sprintf("/d%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Wait()
		}()
	}
	close(l.gate)
	wg.Wait()

	waitFor(t, "every reveal to finish", func() bool {
		for i := 0; i < 20; i++ {
			if len(e.GetChildren(fmt.Sprintf("/d%d", i))) != 1 {
				return false
			}
		}
		return true
	})
	e.Refresh()
	e.Wait()
	if e.Revealing() != 0 {
		t.Errorf("Revealing() = %d after Refresh and Wait", e.Revealing())
	}
}
