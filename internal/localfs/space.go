package localfs

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/panelfs/panelfs/internal/status"
)

// DownloadMargin leaves headroom on the target disk.
const DownloadMargin = 1.1

// InsufficientSpaceError means the target filesystem is too full.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space for %s: need %s, have %s available",
		e.Path, status.FormatBytes(e.RequiredBytes), status.FormatBytes(e.AvailableBytes))
}

// IsInsufficientSpace reports whether err is an *InsufficientSpaceError.
func IsInsufficientSpace(err error) bool {
	var se *InsufficientSpaceError
	return errors.As(err, &se)
}

// CheckFreeSpace fails when the filesystem that will hold target has less
// than required*margin bytes available. Filesystems that cannot be queried
// pass.
func CheckFreeSpace(target string, required int64, margin float64) error {
	available, ok := availableBytes(filepath.Dir(target))
	if !ok {
		return nil
	}
	need := int64(float64(required) * margin)
	if available < need {
		return &InsufficientSpaceError{Path: target, RequiredBytes: need, AvailableBytes: available}
	}
	return nil
}
