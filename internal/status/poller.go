// Package status keeps the server status indicator current.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panelfs/panelfs/internal/api"
	"github.com/panelfs/panelfs/internal/connection"
	"github.com/panelfs/panelfs/internal/constants"
	"github.com/panelfs/panelfs/internal/logging"
	"github.com/panelfs/panelfs/internal/metrics"
	"github.com/panelfs/panelfs/internal/models"
)

// Indicator labels.
const (
	TextNotConnected = "Not Connected"
	TextOffline      = "Offline"
	TextConfigError  = "Config Error"
	TextSuspended    = "Suspended"
)

// Status is one rendering of the indicator.
type Status struct {
	Text             string
	Tooltip          string
	PanelLinkVisible bool
}

// Indicator renders a Status.
type Indicator interface {
	ShowStatus(Status)
}

// Confirmer shows a short confirmation after a power signal.
type Confirmer interface {
	Confirm(title, message string) error
}

// API is the part of the panel client the poller uses.
type API interface {
	GetResources(ctx context.Context, s connection.Snapshot) (*models.ServerResources, error)
	SendPowerSignal(ctx context.Context, s connection.Snapshot, signal models.PowerSignal) error
}

var _ API = (*api.Client)(nil)

// Options configures a Poller.
type Options struct {
	API       API
	State     *connection.State
	Indicator Indicator
	Confirmer Confirmer       // optional
	Check     func() error    // optional; a non-nil result renders "Config Error"
	Logger    *logging.Logger // optional

	Interval   time.Duration // periodic trigger, defaults to constants.StatusPollInterval
	Settle     time.Duration // trailing refresh delay, defaults to constants.StatusSettleDelay
	PowerDelay time.Duration // refresh after a power signal, defaults to constants.PowerRefreshDelay
}

// Poller refreshes the indicator without overlapping refreshes. Triggers
// that arrive while one runs collapse into a single trailing refresh.
type Poller struct {
	api       API
	state     *connection.State
	indicator Indicator
	confirmer Confirmer
	check     func() error
	logger    *logging.Logger

	interval   time.Duration
	settle     time.Duration
	powerDelay time.Duration

	mu      sync.Mutex
	running bool
	queued  bool
	closed  bool
	last    Status
	timers  map[*time.Timer]struct{} // pending delayed calls
}

// NewPoller creates a Poller. Call Run to start the periodic trigger.
func NewPoller(opts Options) *Poller {
	p := &Poller{
		api:        opts.API,
		state:      opts.State,
		indicator:  opts.Indicator,
		confirmer:  opts.Confirmer,
		check:      opts.Check,
		logger:     opts.Logger,
		interval:   opts.Interval,
		settle:     opts.Settle,
		powerDelay: opts.PowerDelay,
		timers:     make(map[*time.Timer]struct{}),
	}
	if p.logger == nil {
		p.logger = logging.NewNopLogger()
	}
	if p.state == nil {
		p.state = connection.NewState()
	}
	if p.interval <= 0 {
		p.interval = constants.StatusPollInterval
	}
	if p.settle <= 0 {
		p.settle = constants.StatusSettleDelay
	}
	if p.powerDelay <= 0 {
		p.powerDelay = constants.PowerRefreshDelay
	}
	return p
}

// Run requests a refresh immediately and then on every interval until ctx
// is done.
func (p *Poller) Run(ctx context.Context) {
	p.RequestRefresh()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RequestRefresh()
		}
	}
}

// Stop cancels pending delayed refreshes. Later requests are ignored.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for t := range p.timers {
		t.Stop()
		delete(p.timers, t)
	}
	p.queued = false
	p.running = false
}

// RequestRefresh starts a refresh, or queues one if a refresh is running.
// It never blocks.
func (p *Poller) RequestRefresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if p.running {
		p.queued = true
		return
	}
	p.running = true
	go p.run()
}

func (p *Poller) run() {
	p.Refresh(context.Background())

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queued && !p.closed {
		// stay running through the settle delay so new triggers keep queueing
		p.queued = false
		p.afterLocked(p.settle, p.run)
		return
	}
	p.queued = false
	p.running = false
}

// afterLocked runs fn after d unless Stop is called first. A timer leaves
// p.timers once it fires.
func (p *Poller) afterLocked(d time.Duration, fn func()) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		p.mu.Lock()
		delete(p.timers, t)
		closed := p.closed
		p.mu.Unlock()
		if !closed {
			fn()
		}
	})
	p.timers[t] = struct{}{}
}

// Refresh computes and shows the current status synchronously. Failures
// render a degraded label; no error is returned.
func (p *Poller) Refresh(ctx context.Context) Status {
	st := p.compute(ctx)
	metrics.RecordStatusRefresh(st.Text)

	p.mu.Lock()
	p.last = st
	p.mu.Unlock()

	if p.indicator != nil {
		p.indicator.ShowStatus(st)
	}
	return st
}

func (p *Poller) compute(ctx context.Context) Status {
	if p.check != nil {
		if err := p.check(); err != nil {
			p.logger.Warn().Err(err).Msg("configuration invalid")
			return Status{Text: TextConfigError, Tooltip: err.Error()}
		}
	}

	snap := p.state.Snapshot()
	if !snap.Connected() {
		return Status{Text: TextNotConnected, Tooltip: "Run 'panelfs connect' to select a server"}
	}

	ctx, cancel := context.WithTimeout(ctx, constants.StatusFetchTimeout)
	defer cancel()
	res, err := p.api.GetResources(ctx, snap)
	if err != nil {
		p.logger.Debug().Err(err).Msg("resources fetch failed")
		return Status{Text: TextOffline, Tooltip: "The panel did not answer", PanelLinkVisible: true}
	}
	if res.IsSuspended {
		return Status{Text: TextSuspended, Tooltip: "The server is suspended", PanelLinkVisible: true}
	}
	return Status{
		Text:             DisplayState(res.CurrentState),
		Tooltip:          Tooltip(res.Resources),
		PanelLinkVisible: true,
	}
}

// Last returns the most recently shown status.
func (p *Poller) Last() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// SendPowerSignal posts signal to the connected server. On success a
// refresh follows after the power delay and a confirmation is shown. The
// returned error carries the panel's detail message when there is one.
func (p *Poller) SendPowerSignal(ctx context.Context, signal models.PowerSignal) error {
	snap, err := p.state.Require()
	if err != nil {
		return err
	}

	if err := p.api.SendPowerSignal(ctx, snap, signal); err != nil {
		p.logger.Warn().Err(err).Str("signal", string(signal)).Msg("power signal failed")
		if se, ok := api.AsStatusError(err); ok && se.Detail != "" {
			return errors.New(se.Detail)
		}
		return fmt.Errorf("power signal %s failed: %w", signal, err)
	}

	p.mu.Lock()
	if !p.closed {
		p.afterLocked(p.powerDelay, p.RequestRefresh)
	}
	p.mu.Unlock()

	if p.confirmer != nil {
		if err := p.confirmer.Confirm("panelfs", fmt.Sprintf("Sent %s signal", signal)); err != nil {
			p.logger.Debug().Err(err).Msg("confirmation not shown")
		}
	}
	return nil
}
