package remotefs

import (
	"sort"
	"strings"
	"time"

	"github.com/panelfs/panelfs/internal/models"
)

// EntryKind is derived once from the panel's is_file/is_symlink flags.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDirectory
	EntrySymlinkFile
	EntrySymlinkDirectory
)

// EntryKindOf derives the kind of a wire entry.
func EntryKindOf(e models.RemoteEntry) EntryKind {
	switch {
	case e.IsFile && e.IsSymlink:
		return EntrySymlinkFile
	case e.IsFile:
		return EntryFile
	case e.IsSymlink:
		return EntrySymlinkDirectory
	default:
		return EntryDirectory
	}
}

// IsDir reports whether the entry behaves as a directory.
func (k EntryKind) IsDir() bool {
	return k == EntryDirectory || k == EntrySymlinkDirectory
}

func (k EntryKind) String() string {
	switch k {
	case EntryDirectory:
		return "directory"
	case EntrySymlinkFile:
		return "symlink-file"
	case EntrySymlinkDirectory:
		return "symlink-directory"
	default:
		return "file"
	}
}

// Metadata is the result of Stat.
type Metadata struct {
	Name      string
	Kind      EntryKind
	Size      int64
	Mode      string
	ModTime   time.Time
	CreatedAt time.Time
	ReadOnly  bool
}

// metadataOf builds Metadata from a listing entry. An entry is read-only
// when mode[2], the owner-write position of "-rw-r--r--", is not 'w'.
func metadataOf(e models.RemoteEntry) Metadata {
	return Metadata{
		Name:      e.Name,
		Kind:      EntryKindOf(e),
		Size:      e.Size,
		Mode:      e.Mode,
		ModTime:   e.ModifiedAt,
		CreatedAt: e.CreatedAt,
		ReadOnly:  readOnly(e.Mode),
	}
}

func readOnly(mode string) bool {
	return len(mode) < 3 || mode[2] != 'w'
}

// rootMetadata is synthesized for "/" without a network call.
func rootMetadata() Metadata {
	return Metadata{Name: "/", Kind: EntryDirectory}
}

// DirEntry is one child returned by ListDirectory.
type DirEntry struct {
	Name     string
	Kind     EntryKind
	Metadata Metadata
}

// SortEntries orders directories first, then by case-insensitive name.
func SortEntries(entries []DirEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].Kind.IsDir(), entries[j].Kind.IsDir()
		if di != dj {
			return di
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}

// WriteOptions controls WriteFile.
type WriteOptions struct {
	Create    bool
	Overwrite bool
}

// DeleteOptions controls Delete.
type DeleteOptions struct {
	Recursive bool
}

// RenameOptions controls Rename.
type RenameOptions struct {
	Overwrite bool
}

// CopyOptions controls Copy.
type CopyOptions struct {
	Overwrite bool
}
