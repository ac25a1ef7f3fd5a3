// Package localfs resolves the local side of downloads, uploads and mounts.
package localfs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolvePath expands a leading ~ and makes p absolute. Symlinks are
// resolved in the part of the path that already exists; missing trailing
// components are appended unchanged.
func ResolvePath(p string) (string, error) {
	if p == "" {
		return os.Getwd()
	}
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = home + p[1:]
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	current := abs
	var missing []string
	for {
		if _, err := os.Stat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				resolved = current
			}
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

// ValidateName rejects a file name that cannot be joined to a local
// directory without escaping it.
func ValidateName(name string) error {
	switch {
	case name == "" || name == "/":
		return fmt.Errorf("file name cannot be empty")
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("file name contains null byte: %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("file name cannot contain path separators: %q", name)
	case name == "." || name == "..":
		return fmt.Errorf("file name cannot be %q", name)
	}
	return nil
}

// DownloadTarget picks the local file for a download of remote. An empty
// local means the remote base name in the working directory; an existing
// local directory receives the file under that name.
func DownloadTarget(local, remote string) (string, error) {
	name := path.Base(remote)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if local == "" {
		local = name
	}
	resolved, err := ResolvePath(local)
	if err != nil {
		return "", err
	}
	if fi, err := os.Stat(resolved); err == nil && fi.IsDir() {
		resolved = filepath.Join(resolved, name)
	}
	return resolved, nil
}
