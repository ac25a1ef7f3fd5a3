package localfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"server.properties", false},
		{"world..backup.zip", false},
		{".env", false},
		{"", true},
		{"/", true},
		{"..", true},
		{".", true},
		{"a/b", true},
		{`a\b`, true},
		{"bad\x00name", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("missing components are appended", func(t *testing.T) {
		got, err := ResolvePath(filepath.Join(dir, "a", "b.txt"))
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(realDir, "a", "b.txt"); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("home expansion", func(t *testing.T) {
		t.Setenv("HOME", dir)
		t.Setenv("USERPROFILE", dir)
		got, err := ResolvePath("~/world")
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(realDir, "world"); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("tilde inside a name is literal", func(t *testing.T) {
		got, err := ResolvePath(filepath.Join(dir, "~backup"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasSuffix(got, "~backup") {
			t.Errorf("got %q", got)
		}
	})
}

func TestDownloadTarget(t *testing.T) {
	dir := t.TempDir()
	realDir, _ := filepath.EvalSymlinks(dir)
	if err := os.Mkdir(filepath.Join(dir, "logs"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := DownloadTarget(filepath.Join(dir, "logs"), "/logs/latest.log")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(realDir, "logs", "latest.log"); got != want {
		t.Errorf("into dir: got %q, want %q", got, want)
	}

	got, err = DownloadTarget(filepath.Join(dir, "renamed.log"), "/logs/latest.log")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(realDir, "renamed.log"); got != want {
		t.Errorf("explicit name: got %q, want %q", got, want)
	}

	if _, err := DownloadTarget("", "/"); err == nil {
		t.Error("expected an error for the root")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	target := filepath.Join(t.TempDir(), "file.bin")

	if err := CheckFreeSpace(target, 1024, DownloadMargin); err != nil {
		t.Errorf("1 KiB should fit: %v", err)
	}

	// 100 PiB
	err := CheckFreeSpace(target, 100<<50, DownloadMargin)
	if err == nil {
		t.Skip("filesystem reports extraordinary free space")
	}
	if !IsInsufficientSpace(err) {
		t.Fatalf("got %T, want *InsufficientSpaceError", err)
	}
	if !strings.Contains(err.Error(), "insufficient disk space") {
		t.Errorf("message = %q", err.Error())
	}
}
