// Package connect validates a credential, lets the user pick a server and
// initializes the connection state.
package connect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/panelfs/panelfs/internal/api"
	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/connection"
	"github.com/panelfs/panelfs/internal/constants"
	"github.com/panelfs/panelfs/internal/logging"
	"github.com/panelfs/panelfs/internal/models"
)

var (
	ErrAPIKeyTooShort = fmt.Errorf("API key must be at least %d characters", constants.MinAPIKeyLength)
	ErrAPIKeyRejected = errors.New("the panel rejected the API key")
	ErrNoServers      = errors.New("no servers are available to this API key")
	ErrCancelled      = errors.New("connect cancelled")
)

// Prompter asks the user for connect inputs. A terminal or a UI provides it.
type Prompter interface {
	PanelURL(current string) (string, error)
	APIKey() (string, error)
	// PickServer returns the index of the chosen server.
	PickServer(servers []models.Server) (int, error)
}

// API is the part of the panel client the flow uses.
type API interface {
	GetAccount(ctx context.Context, panelURL, authHeader string) (*models.Account, error)
	ListServers(ctx context.Context, panelURL, authHeader string) ([]models.Server, error)
}

var _ API = (*api.Client)(nil)

// Flow runs one connect procedure.
type Flow struct {
	API        API
	Prompter   Prompter
	State      *connection.State
	ConfigPath string // where the chosen values are saved; empty skips saving
	Logger     *logging.Logger

	// Preset values skip the matching prompt.
	PanelURL string
	APIKey   string
	ServerID string
}

// Result describes a completed connect.
type Result struct {
	Account  models.Account
	Server   models.Server
	Snapshot connection.Snapshot
}

// Run validates the key against the panel, selects a server and updates
// cfg, the saved configuration and the connection state. Nothing is
// changed when any step fails.
func (f *Flow) Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	logger := f.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	panelURL, err := f.panelURL(cfg.Panel.URL)
	if err != nil {
		return nil, err
	}
	key, err := f.apiKey()
	if err != nil {
		return nil, err
	}
	auth := connection.AuthHeader(key)

	account, err := f.API.GetAccount(ctx, panelURL, auth)
	if err != nil {
		if code := api.StatusCode(err); code == 401 || code == 403 {
			return nil, ErrAPIKeyRejected
		}
		return nil, fmt.Errorf("failed to reach panel: %w", err)
	}
	logger.Info().Str("user", account.Username).Msg("API key accepted")

	servers, err := f.API.ListServers(ctx, panelURL, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}

	server, err := f.pickServer(servers)
	if err != nil {
		return nil, err
	}

	next := *cfg
	next.Panel = config.PanelConfig{URL: panelURL, ServerID: server.Identifier, APIKey: key}
	if f.ConfigPath != "" {
		if err := config.Save(&next, f.ConfigPath); err != nil {
			return nil, err
		}
	}
	*cfg = next

	f.State.Connect(panelURL, server.Identifier, key)
	logger.Info().Str("server", server.Name).Str("id", server.Identifier).Msg("connected")

	return &Result{Account: *account, Server: server, Snapshot: f.State.Snapshot()}, nil
}

func (f *Flow) panelURL(current string) (string, error) {
	raw := f.PanelURL
	if raw == "" {
		var err error
		if raw, err = f.Prompter.PanelURL(current); err != nil {
			return "", err
		}
	}
	u := config.NormalizePanelURL(raw)
	if u == "" {
		return "", config.ErrMissingPanelURL
	}
	if parsed, err := url.Parse(u); err != nil || parsed.Host == "" {
		return "", config.ErrInvalidPanelURL
	}
	return u, nil
}

func (f *Flow) apiKey() (string, error) {
	key := f.APIKey
	if key == "" {
		var err error
		if key, err = f.Prompter.APIKey(); err != nil {
			return "", err
		}
	}
	key = strings.TrimSpace(key)
	if len(key) < constants.MinAPIKeyLength {
		return "", ErrAPIKeyTooShort
	}
	return key, nil
}

func (f *Flow) pickServer(servers []models.Server) (models.Server, error) {
	if f.ServerID != "" {
		for _, s := range servers {
			if s.Identifier == f.ServerID || s.UUID == f.ServerID {
				return s, nil
			}
		}
		return models.Server{}, fmt.Errorf("server %q is not available to this API key", f.ServerID)
	}

	idx, err := f.Prompter.PickServer(servers)
	if err != nil {
		return models.Server{}, err
	}
	if idx < 0 || idx >= len(servers) {
		return models.Server{}, ErrCancelled
	}
	return servers[idx], nil
}
