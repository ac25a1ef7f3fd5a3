package cli

import (
	"fmt"
	"sync"

	"github.com/panelfs/panelfs/internal/api"
	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/connection"
	"github.com/panelfs/panelfs/internal/events"
	"github.com/panelfs/panelfs/internal/logging"
	"github.com/panelfs/panelfs/internal/notify"
	"github.com/panelfs/panelfs/internal/remotefs"
)

// app holds what every command works against: the loaded config, the
// panel client, the connection state and the bridge over them.
type app struct {
	cfgPath  string
	logger   *logging.Logger
	bus      *events.EventBus
	client   *api.Client
	state    *connection.State
	fs       *remotefs.FS
	notifier *notify.Notifier

	mu  sync.Mutex
	cfg *config.Config
}

// newApp loads configuration, applies global flags and builds the stack.
// The connection state is hydrated from the merged values.
func newApp() (*app, error) {
	logger := GetLogger()
	path := configPath()

	cfg, err := loadMergedConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateProxy(); err != nil {
		return nil, fmt.Errorf("invalid proxy configuration: %w", err)
	}

	client, err := api.NewClient(api.Options{Proxy: cfg.Proxy, Logger: logger.Named("api")})
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	bus := events.NewEventBus(0)
	state := connection.NewState()
	state.OnChange(func(s connection.Snapshot) {
		bus.PublishConnectionChanged(s.Connected(), s.ServerAPIURL)
	})
	state.Hydrate(cfg)

	a := &app{
		cfgPath: path,
		logger:  logger,
		bus:     bus,
		client:  client,
		state:   state,
		cfg:     cfg,
		fs: remotefs.New(remotefs.Options{
			API:    client,
			State:  state,
			Bus:    bus,
			Logger: logger.Named("remotefs"),
		}),
		notifier: notify.NewNotifier(&notify.Config{
			Enabled:          true,
			ShowPowerSignals: cfg.Status.NotifyPower,
			ShowAuthFailures: true,
		}, logger.Named("notify")),
	}
	a.fs.OnAuthFailure(a.authFailed)
	return a, nil
}

// loadMergedConfig reads the config file and applies --panel-url and the
// API key resolution order.
func loadMergedConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if panelURL != "" {
		cfg.Panel.URL = config.NormalizePanelURL(panelURL)
	}
	key, source := config.ResolveAPIKeySource(apiKey, path)
	cfg.Panel.APIKey = key
	if source != "" {
		GetLogger().Debug().Str("source", source).Msg("API key resolved")
	}
	return cfg, nil
}

// currentConfig returns the configuration as last loaded.
func (a *app) currentConfig() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// reload re-reads the config file and re-hydrates the connection.
func (a *app) reload() error {
	cfg, err := loadMergedConfig(a.cfgPath)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.state.Hydrate(cfg)
	return nil
}

// check reports a configuration problem for the status indicator. An
// incomplete connection is "not connected", not a config error.
func (a *app) check() error {
	cfg := a.currentConfig()
	if cfg.HasConnection() {
		return cfg.Validate()
	}
	return cfg.ValidateProxy()
}

// authFailed runs once per 401: the connection is dropped and the stored
// key is cleared so the next command prompts for a new one.
func (a *app) authFailed() {
	a.state.Clear()

	saved, err := config.Load(a.cfgPath)
	if err == nil && saved.Panel.APIKey != "" {
		saved.Panel.APIKey = ""
		if err := config.Save(saved, a.cfgPath); err != nil {
			a.logger.Warn().Err(err).Msg("failed to clear rejected API key")
		}
	}
	a.notifier.AuthFailed()
	a.logger.Error().Msg("The panel rejected the API key. Run 'panelfs connect' to sign in again.")
}

// requireConnection fails early with a hint when no server is selected.
func (a *app) requireConnection() error {
	if _, err := a.state.Require(); err != nil {
		return fmt.Errorf("%w; run 'panelfs connect' first", err)
	}
	return nil
}

func (a *app) close() {
	a.bus.Close()
}
