// Package connection holds the active server's API URL and credential.
package connection

import (
	"errors"
	"strings"
	"sync"

	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/constants"
)

// ErrNotConnected is returned by Require when no server is selected.
var ErrNotConnected = errors.New("not connected")

// Snapshot is an immutable copy of the connection facts. Either both
// fields are empty or both are set.
type Snapshot struct {
	ServerAPIURL string // <panel>/api/client/servers/<id>/files
	AuthHeader   string // "Bearer <key>"
}

// Connected reports whether a server is selected.
func (s Snapshot) Connected() bool {
	return s.ServerAPIURL != "" && s.AuthHeader != ""
}

// ServerRootURL is ServerAPIURL without the "/files" suffix, the base for
// /resources and /power.
func (s Snapshot) ServerRootURL() string {
	return strings.TrimSuffix(s.ServerAPIURL, constants.FilesSuffix)
}

// ServerAPIURL derives the files API base URL for one server.
func ServerAPIURL(panelURL, serverID string) string {
	return strings.TrimRight(panelURL, "/") + constants.ServersPath + serverID + constants.FilesSuffix
}

// AuthHeader derives the Authorization header value for a key.
func AuthHeader(apiKey string) string {
	return constants.AuthScheme + apiKey
}

// State is the shared, injectable connection state. Readers take a
// Snapshot; writers replace both fields together.
type State struct {
	mu       sync.RWMutex
	snap     Snapshot
	onChange []func(Snapshot)
}

// NewState creates an empty (disconnected) state.
func NewState() *State {
	return &State{}
}

// Snapshot returns the current facts.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// IsConnected reports whether a server is selected.
func (s *State) IsConnected() bool {
	return s.Snapshot().Connected()
}

// Require returns the snapshot or ErrNotConnected.
func (s *State) Require() (Snapshot, error) {
	snap := s.Snapshot()
	if !snap.Connected() {
		return Snapshot{}, ErrNotConnected
	}
	return snap, nil
}

// Set overwrites both facts. An empty argument clears the state.
func (s *State) Set(serverAPIURL, authHeader string) {
	if serverAPIURL == "" || authHeader == "" {
		s.replace(Snapshot{})
		return
	}
	s.replace(Snapshot{ServerAPIURL: serverAPIURL, AuthHeader: authHeader})
}

// Connect sets the state from the three user-facing values.
func (s *State) Connect(panelURL, serverID, apiKey string) {
	s.Set(ServerAPIURL(panelURL, serverID), AuthHeader(apiKey))
}

// Clear forgets the active server.
func (s *State) Clear() {
	s.replace(Snapshot{})
}

// Hydrate sets the state from persisted configuration when all three
// values are present, and clears it otherwise. Reports whether the
// result is connected.
func (s *State) Hydrate(cfg *config.Config) bool {
	if cfg == nil || !cfg.HasConnection() {
		s.Clear()
		return false
	}
	s.Connect(cfg.Panel.URL, cfg.Panel.ServerID, cfg.Panel.APIKey)
	return true
}

// OnChange registers fn to run after every change, outside the lock.
func (s *State) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *State) replace(next Snapshot) {
	s.mu.Lock()
	changed := s.snap != next
	s.snap = next
	hooks := append([]func(Snapshot){}, s.onChange...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range hooks {
		fn(next)
	}
}
