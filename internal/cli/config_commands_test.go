package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/panelfs/panelfs/internal/config"
)

// useTempConfig points --config at a fresh file and isolates the other API
// key sources.
func useTempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(config.APIKeyEnvVar, "")

	path := filepath.Join(dir, "config.ini")
	oldCfg, oldKey, oldURL := cfgFile, apiKey, panelURL
	cfgFile, apiKey, panelURL = path, "", ""
	t.Cleanup(func() {
		cfgFile, apiKey, panelURL = oldCfg, oldKey, oldURL
	})
	return path
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// TestConfigCmd tests the config command group
func TestConfigCmd(t *testing.T) {
	cmd := newConfigCmd()
	if cmd == nil {
		t.Fatal("newConfigCmd() returned nil")
	}

	if cmd.Use != "config" {
		t.Errorf("Expected Use='config', got '%s'", cmd.Use)
	}

	expectedSubs := []string{"show", "set", "path"}
	subcommands := cmd.Commands()
	if len(subcommands) != len(expectedSubs) {
		t.Errorf("Expected %d subcommands, got %d", len(expectedSubs), len(subcommands))
	}

	foundSubs := make(map[string]bool)
	for _, sub := range subcommands {
		foundSubs[sub.Name()] = true
		if sub.Short == "" {
			t.Errorf("Subcommand '%s' has no short description", sub.Name())
		}
		if sub.RunE == nil {
			t.Errorf("Subcommand '%s' has no RunE", sub.Name())
		}
	}
	for _, expected := range expectedSubs {
		if !foundSubs[expected] {
			t.Errorf("Subcommand '%s' not found", expected)
		}
	}
}

// TestRootCommands checks that every command is registered.
func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	want := []string{
		"connect", "disconnect", "config", "ls", "stat", "cat", "get", "put",
		"mkdir", "rm", "mv", "cp", "move-into", "tree", "status", "power",
		"serve-webdav", "mount", "completion",
	}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("command %q not registered", name)
		}
	}

	for _, flag := range []string{"config", "api-key", "panel-url", "verbose", "debug", "log-file"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("--%s flag not found", flag)
		}
	}
}

func TestConfigSetAndShow(t *testing.T) {
	path := useTempConfig(t)

	out, err := run(t, newConfigCmd(), "set", "panel.api_key", "secret")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	if out != "panel.api_key = <hidden>\n" {
		t.Errorf("set output = %q", out)
	}

	if _, err := run(t, newConfigCmd(), "set", "panel.url", "panel.example.com/"); err != nil {
		t.Fatalf("config set: %v", err)
	}

	saved, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Panel.APIKey != "secret" {
		t.Errorf("APIKey = %q, want secret", saved.Panel.APIKey)
	}
	if saved.Panel.URL != "https://panel.example.com" {
		t.Errorf("URL = %q, want https://panel.example.com", saved.Panel.URL)
	}

	out, err = run(t, newConfigCmd(), "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "secret") {
		t.Errorf("show leaked the API key:\n%s", out)
	}
	for _, want := range []string{"<set (6 chars)>", "https://panel.example.com", path} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigSet_UnknownKey(t *testing.T) {
	useTempConfig(t)
	if _, err := run(t, newConfigCmd(), "set", "panel.colour", "blue"); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestConfigPath(t *testing.T) {
	path := useTempConfig(t)

	out, err := run(t, newConfigCmd(), "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if !strings.HasPrefix(out, path+"\n") {
		t.Errorf("output should start with the path, got %q", out)
	}
	if !strings.Contains(out, "does not exist") {
		t.Errorf("missing file not reported: %q", out)
	}

	if err := config.Save(config.NewConfig(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, _ = run(t, newConfigCmd(), "path")
	if !strings.Contains(out, "Size:") {
		t.Errorf("existing file not described: %q", out)
	}
}

func TestDisconnect_KeepsPanelURL(t *testing.T) {
	path := useTempConfig(t)

	cfg := config.NewConfig()
	cfg.Panel.URL = "https://panel.example.com"
	cfg.Panel.ServerID = "a1b2c3d4"
	cfg.Panel.APIKey = "ptlc_key"
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := run(t, newDisconnectCmd())
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if out != "Disconnected.\n" {
		t.Errorf("output = %q", out)
	}

	saved, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.Panel.URL != cfg.Panel.URL {
		t.Errorf("URL = %q, want it kept", saved.Panel.URL)
	}
	if saved.Panel.ServerID != "" || saved.Panel.APIKey != "" {
		t.Errorf("server %q / key %q not cleared", saved.Panel.ServerID, saved.Panel.APIKey)
	}
}

func TestStatus_NotConnected(t *testing.T) {
	useTempConfig(t)

	out, err := run(t, newStatusCmd())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.HasPrefix(out, "Not Connected\n") {
		t.Errorf("output = %q", out)
	}
}

func TestPower_UnknownSignal(t *testing.T) {
	useTempConfig(t)

	_, err := run(t, newPowerCmd(), "reboot")
	if err == nil || !strings.Contains(err.Error(), "unknown power signal") {
		t.Errorf("err = %v, want unknown power signal", err)
	}
}

func TestFileCommands_RequireConnection(t *testing.T) {
	path := useTempConfig(t)

	root := NewRootCmd()
	AddCommands(root)
	_, err := run(t, root, "--config", path, "ls", "/")
	if err == nil || !strings.Contains(err.Error(), "panelfs connect") {
		t.Errorf("err = %v, want a hint to connect", err)
	}
}

func TestConfirmAction(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   bool
		prompt int
	}{
		{"yes", "y\n", true, 1},
		{"full yes", "YES\n", true, 1},
		{"no", "n\n", false, 1},
		{"empty means no", "\n", false, 1},
		{"eof means no", "", false, 1},
		{"re-prompt", "maybe\ny\n", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := confirmAction(strings.NewReader(tt.input), &out, "Delete?")
			if err != nil {
				t.Fatalf("confirmAction: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if n := strings.Count(out.String(), "Delete? [y/N]"); n != tt.prompt {
				t.Errorf("prompted %d times, want %d", n, tt.prompt)
			}
		})
	}
}
