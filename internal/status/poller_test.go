package status

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panelfs/panelfs/internal/api"
	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/connection"
	"github.com/panelfs/panelfs/internal/events"
	"github.com/panelfs/panelfs/internal/models"
)

type fakeAPI struct {
	mu        sync.Mutex
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	delay     time.Duration
	res       *models.ServerResources
	err       error
	powerErr  error
	signals   []models.PowerSignal
}

func (a *fakeAPI) GetResources(ctx context.Context, s connection.Snapshot) (*models.ServerResources, error) {
	a.calls.Add(1)
	n := a.active.Add(1)
	defer a.active.Add(-1)
	for {
		m := a.maxActive.Load()
		if n <= m || a.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(a.delay)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.res, a.err
}

func (a *fakeAPI) SendPowerSignal(ctx context.Context, s connection.Snapshot, signal models.PowerSignal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signals = append(a.signals, signal)
	return a.powerErr
}

type lastIndicator struct {
	mu    sync.Mutex
	shown []Status
}

func (l *lastIndicator) ShowStatus(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shown = append(l.shown, s)
}

func (l *lastIndicator) last() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.shown) == 0 {
		return Status{}
	}
	return l.shown[len(l.shown)-1]
}

type confirmRecorder struct{ msgs chan string }

func (c confirmRecorder) Confirm(title, message string) error {
	c.msgs <- message
	return nil
}

func connected() *connection.State {
	st := connection.NewState()
	st.Connect("https://panel.example.com", "a1b2c3", "abcdefghijklmnopqrstuvwxyz012345")
	return st
}

func running() *models.ServerResources {
	return &models.ServerResources{
		CurrentState: "starting",
		Resources:    models.ResourceUsage{CPUAbsolute: 12.5, MemoryBytes: 1536 * 1024 * 1024, DiskBytes: 2048, UptimeMillis: 61500},
	}
}

func TestRefresh_States(t *testing.T) {
	tests := []struct {
		name     string
		state    *connection.State
		api      *fakeAPI
		check    func() error
		wantText string
		wantLink bool
	}{
		{"disconnected", connection.NewState(), &fakeAPI{}, nil, TextNotConnected, false},
		{"starting shows running", connected(), &fakeAPI{res: running()}, nil, "Running", true},
		{"offline title-cased", connected(), &fakeAPI{res: &models.ServerResources{CurrentState: "offline"}}, nil, "Offline", true},
		{"fetch failure", connected(), &fakeAPI{err: errors.New("dial tcp: i/o timeout")}, nil, TextOffline, true},
		{"suspended", connected(), &fakeAPI{res: &models.ServerResources{CurrentState: "offline", IsSuspended: true}}, nil, TextSuspended, true},
		{"bad config", connected(), &fakeAPI{res: running()}, func() error { return config.ErrInvalidPanelURL }, TextConfigError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ind := &lastIndicator{}
			p := NewPoller(Options{API: tt.api, State: tt.state, Indicator: ind, Check: tt.check})
			got := p.Refresh(context.Background())
			if got.Text != tt.wantText || got.PanelLinkVisible != tt.wantLink {
				t.Errorf("Refresh = %+v, want text %q link %v", got, tt.wantText, tt.wantLink)
			}
			if ind.last() != got || p.Last() != got {
				t.Error("indicator and Last should match the returned status")
			}
		})
	}
}

func TestTooltip(t *testing.T) {
	got := Tooltip(running().Resources)
	want := "CPU 12.5% | Memory 1.5 GiB | Disk 2.0 KiB | Uptime 1m1s"
	if got != want {
		t.Errorf("Tooltip = %q, want %q", got, want)
	}
}

func TestDisplayState(t *testing.T) {
	for in, want := range map[string]string{"starting": "Running", "running": "Running", "stopping": "Stopping", "": "Unknown"} {
		if got := DisplayState(in); got != want {
			t.Errorf("DisplayState(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRequestRefresh_CoalescesBursts(t *testing.T) {
	a := &fakeAPI{res: running(), delay: 50 * time.Millisecond}
	p := NewPoller(Options{API: a, State: connected(), Indicator: &lastIndicator{}, Settle: 20 * time.Millisecond})
	defer p.Stop()

	for i := 0; i < 10; i++ {
		p.RequestRefresh()
	}
	time.Sleep(300 * time.Millisecond)

	if n := a.calls.Load(); n != 2 {
		t.Errorf("refreshes = %d, want 2 (one running, one trailing)", n)
	}
	if m := a.maxActive.Load(); m != 1 {
		t.Errorf("max concurrent refreshes = %d, want 1", m)
	}

	// idle again: a new request runs immediately
	p.RequestRefresh()
	time.Sleep(100 * time.Millisecond)
	if n := a.calls.Load(); n != 3 {
		t.Errorf("refreshes = %d, want 3", n)
	}
}

func TestRun_PeriodicTrigger(t *testing.T) {
	a := &fakeAPI{res: running()}
	p := NewPoller(Options{API: a, State: connected(), Indicator: &lastIndicator{}, Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if n := a.calls.Load(); n < 3 {
		t.Errorf("refreshes = %d, want at least 3 over ~5 ticks", n)
	}
}

func TestSendPowerSignal(t *testing.T) {
	t.Run("success refreshes after delay and confirms", func(t *testing.T) {
		a := &fakeAPI{res: running()}
		msgs := make(chan string, 1)
		p := NewPoller(Options{API: a, State: connected(), Indicator: &lastIndicator{}, Confirmer: confirmRecorder{msgs}, PowerDelay: 30 * time.Millisecond})
		defer p.Stop()

		if err := p.SendPowerSignal(context.Background(), models.PowerRestart); err != nil {
			t.Fatalf("SendPowerSignal: %v", err)
		}
		if got := <-msgs; got != "Sent restart signal" {
			t.Errorf("confirmation = %q", got)
		}
		if a.calls.Load() != 0 {
			t.Error("refresh ran before the power delay")
		}
		time.Sleep(100 * time.Millisecond)
		if a.calls.Load() != 1 {
			t.Errorf("refreshes after power = %d, want 1", a.calls.Load())
		}
	})

	t.Run("failure surfaces remote detail", func(t *testing.T) {
		a := &fakeAPI{powerErr: &api.StatusError{StatusCode: 409, Status: "409 Conflict", Detail: "Server is already running."}}
		p := NewPoller(Options{API: a, State: connected()})
		err := p.SendPowerSignal(context.Background(), models.PowerStart)
		if err == nil || err.Error() != "Server is already running." {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("requires connection", func(t *testing.T) {
		a := &fakeAPI{}
		p := NewPoller(Options{API: a, State: connection.NewState()})
		if err := p.SendPowerSignal(context.Background(), models.PowerKill); !errors.Is(err, connection.ErrNotConnected) {
			t.Errorf("err = %v", err)
		}
		if len(a.signals) != 0 {
			t.Error("signal sent while disconnected")
		}
	})
}

func (p *Poller) pendingTimers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

func TestDelayedRefreshTimers(t *testing.T) {
	t.Run("fired timers are released", func(t *testing.T) {
		a := &fakeAPI{res: running()}
		p := NewPoller(Options{API: a, State: connected(), PowerDelay: 5 * time.Millisecond, Settle: 5 * time.Millisecond})
		defer p.Stop()

		for i := 0; i < 20; i++ {
			if err := p.SendPowerSignal(context.Background(), models.PowerStart); err != nil {
				t.Fatal(err)
			}
		}
		time.Sleep(100 * time.Millisecond)
		if n := p.pendingTimers(); n != 0 {
			t.Errorf("pending timers = %d, want 0", n)
		}
	})

	t.Run("stop cancels every pending refresh", func(t *testing.T) {
		a := &fakeAPI{res: running()}
		p := NewPoller(Options{API: a, State: connected(), PowerDelay: 40 * time.Millisecond})

		for i := 0; i < 20; i++ {
			if err := p.SendPowerSignal(context.Background(), models.PowerStop); err != nil {
				t.Fatal(err)
			}
		}
		p.Stop()
		if n := p.pendingTimers(); n != 0 {
			t.Errorf("pending timers after Stop = %d, want 0", n)
		}
		time.Sleep(100 * time.Millisecond)
		if n := a.calls.Load(); n != 0 {
			t.Errorf("refreshes after Stop = %d, want 0", n)
		}
	})

	t.Run("stop during the settle delay clears running", func(t *testing.T) {
		a := &fakeAPI{res: running(), delay: 20 * time.Millisecond}
		p := NewPoller(Options{API: a, State: connected(), Settle: time.Second})

		p.RequestRefresh()
		p.RequestRefresh()
		time.Sleep(60 * time.Millisecond)
		if p.pendingTimers() != 1 {
			t.Fatalf("pending timers = %d, want the trailing refresh", p.pendingTimers())
		}
		p.Stop()

		p.mu.Lock()
		running, queued := p.running, p.queued
		p.mu.Unlock()
		if running || queued {
			t.Errorf("running=%v queued=%v after Stop", running, queued)
		}
		if n := a.calls.Load(); n != 1 {
			t.Errorf("refreshes = %d, want 1", n)
		}
	})
}

func TestBusIndicator(t *testing.T) {
	bus := events.NewEventBus(4)
	defer bus.Close()
	ch := bus.Subscribe(events.EventStatusChanged)

	BusIndicator{Bus: bus}.ShowStatus(Status{Text: "Running", Tooltip: "tip", PanelLinkVisible: true})
	select {
	case ev := <-ch:
		sc := ev.(*events.StatusChangedEvent)
		if sc.Text != "Running" || !sc.PanelLinkVisible {
			t.Errorf("event = %+v", sc)
		}
	case <-time.After(time.Second):
		t.Fatal("no status event")
	}
}
