package connect

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/panelfs/panelfs/internal/api"
	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/connection"
	"github.com/panelfs/panelfs/internal/models"
)

const testKey = "abcdefghijklmnopqrstuvwxyz012345"

type fakeAPI struct {
	accountErr error
	servers    []models.Server
	gotAuth    string
}

func (a *fakeAPI) GetAccount(ctx context.Context, panelURL, authHeader string) (*models.Account, error) {
	a.gotAuth = authHeader
	if a.accountErr != nil {
		return nil, a.accountErr
	}
	return &models.Account{Username: "steve"}, nil
}

func (a *fakeAPI) ListServers(ctx context.Context, panelURL, authHeader string) ([]models.Server, error) {
	return a.servers, nil
}

type fakePrompter struct {
	url    string
	key    string
	choice int
	asked  []models.Server
}

func (p *fakePrompter) PanelURL(current string) (string, error) { return p.url, nil }
func (p *fakePrompter) APIKey() (string, error)                  { return p.key, nil }
func (p *fakePrompter) PickServer(s []models.Server) (int, error) {
	p.asked = s
	return p.choice, nil
}

func TestRun_SelectsServer(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config")
	a := &fakeAPI{servers: []models.Server{{Name: "Survival", Identifier: "a1b2c3"}}}
	st := connection.NewState()
	flow := &Flow{
		API:        a,
		Prompter:   &fakePrompter{url: "panel.example.com/", key: testKey},
		State:      st,
		ConfigPath: cfgPath,
	}

	cfg := config.NewConfig()
	res, err := flow.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := st.Snapshot()
	if snap.ServerAPIURL != "https://panel.example.com/api/client/servers/a1b2c3/files" {
		t.Errorf("ServerAPIURL = %q", snap.ServerAPIURL)
	}
	if snap.AuthHeader != "Bearer "+testKey {
		t.Errorf("AuthHeader = %q", snap.AuthHeader)
	}
	if a.gotAuth != snap.AuthHeader {
		t.Errorf("account check used %q", a.gotAuth)
	}
	if res.Server.Name != "Survival" || res.Snapshot != snap {
		t.Errorf("result = %+v", res)
	}

	saved, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Panel.URL != "https://panel.example.com" || saved.Panel.ServerID != "a1b2c3" || saved.Panel.APIKey != testKey {
		t.Errorf("saved panel config = %+v", saved.Panel)
	}
	if cfg.Panel != saved.Panel {
		t.Errorf("in-memory config not updated: %+v", cfg.Panel)
	}
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		api     *fakeAPI
		choice  int
		wantErr error
	}{
		{"short key", "abc", &fakeAPI{}, 0, ErrAPIKeyTooShort},
		{"rejected key", testKey, &fakeAPI{accountErr: &api.StatusError{StatusCode: 401, Status: "401 Unauthorized"}}, 0, ErrAPIKeyRejected},
		{"no servers", testKey, &fakeAPI{}, 0, ErrNoServers},
		{"cancelled pick", testKey, &fakeAPI{servers: []models.Server{{Identifier: "a"}, {Identifier: "b"}}}, -1, ErrCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := connection.NewState()
			st.Connect("https://old.example.com", "old", testKey)
			before := st.Snapshot()

			flow := &Flow{API: tt.api, Prompter: &fakePrompter{url: "https://panel.example.com", key: tt.key, choice: tt.choice}, State: st}
			_, err := flow.Run(context.Background(), config.NewConfig())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if st.Snapshot() != before {
				t.Error("failed connect changed the connection state")
			}
		})
	}
}

func TestRun_PresetServerID(t *testing.T) {
	a := &fakeAPI{servers: []models.Server{{Name: "Creative", Identifier: "ffff00"}, {Name: "Survival", Identifier: "a1b2c3"}}}
	p := &fakePrompter{}
	flow := &Flow{API: a, Prompter: p, State: connection.NewState(), PanelURL: "https://panel.example.com", APIKey: testKey, ServerID: "a1b2c3"}

	res, err := flow.Run(context.Background(), config.NewConfig())
	if err != nil {
		t.Fatal(err)
	}
	if res.Server.Name != "Survival" || p.asked != nil {
		t.Errorf("preset server not used without prompting: %+v", res.Server)
	}

	flow.ServerID = "missing"
	if _, err := flow.Run(context.Background(), config.NewConfig()); err == nil {
		t.Error("unknown preset server should fail")
	}
}

func TestTerminalPrompter_NonTerminal(t *testing.T) {
	in, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatal(err)
	}
	in.WriteString("\n" + testKey + "\n7\n2\n")
	in.Seek(0, 0)
	defer in.Close()

	var out bytes.Buffer
	p := &TerminalPrompter{In: in, Out: &out}

	u, err := p.PanelURL("https://panel.example.com")
	if err != nil || u != "https://panel.example.com" {
		t.Errorf("PanelURL = %q, %v", u, err)
	}
	key, err := p.APIKey()
	if err != nil || key != testKey {
		t.Errorf("APIKey = %q, %v", key, err)
	}
	idx, err := p.PickServer([]models.Server{{Name: "A", Identifier: "a"}, {Name: "B", Identifier: "b"}})
	if err != nil || idx != 1 {
		t.Errorf("PickServer = %d, %v", idx, err)
	}
	if !strings.Contains(out.String(), "Invalid choice") {
		t.Error("out-of-range choice was not rejected")
	}
}
