package models

import (
	"strings"
	"time"
)

// RemoteEntry is one node of the remote file tree as reported by
// GET /files/list. It is produced fresh on every listing and never mutated.
type RemoteEntry struct {
	Name       string    `json:"name"`
	Mode       string    `json:"mode"`      // e.g. "-rw-r--r--"
	ModeBits   string    `json:"mode_bits"` // e.g. "644"
	Size       int64     `json:"size"`
	IsFile     bool      `json:"is_file"`
	IsSymlink  bool      `json:"is_symlink"`
	MimeType   string    `json:"mimetype"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ListObject wraps one item of a panel list response.
type ListObject[T any] struct {
	Object     string `json:"object"`
	Attributes T      `json:"attributes"`
}

// FileListResponse represents the response from the file list API
type FileListResponse struct {
	Object string                    `json:"object"`
	Data   []ListObject[RemoteEntry] `json:"data"`
}

// Entries unwraps the list attributes.
func (r FileListResponse) Entries() []RemoteEntry {
	out := make([]RemoteEntry, 0, len(r.Data))
	for _, d := range r.Data {
		out = append(out, d.Attributes)
	}
	return out
}

// CreateFolderRequest is the body of POST /files/create-folder
type CreateFolderRequest struct {
	Root string `json:"root"`
	Name string `json:"name"`
}

// DeleteRequest is the body of POST /files/delete
type DeleteRequest struct {
	Root  string   `json:"root"`
	Files []string `json:"files"`
}

// RenamePair is one from/to pair, both relative to the request root.
type RenamePair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RenameRequest is the body of PUT /files/rename
type RenameRequest struct {
	Root  string       `json:"root"`
	Files []RenamePair `json:"files"`
}

// CopyRequest is the body of POST /files/copy. The panel duplicates the
// file in place with a " copy" suffix; it takes no destination.
type CopyRequest struct {
	Location string `json:"location"`
}

// Server is one entry of GET /api/client
type Server struct {
	Identifier  string `json:"identifier"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Node        string `json:"node"`
	Description string `json:"description"`
	ServerOwner bool   `json:"server_owner"`
	IsSuspended bool   `json:"is_suspended"`
}

// Pagination is the meta.pagination block of paged list responses.
type Pagination struct {
	Total       int `json:"total"`
	Count       int `json:"count"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// ServerListResponse represents one page of GET /api/client
type ServerListResponse struct {
	Object string               `json:"object"`
	Data   []ListObject[Server] `json:"data"`
	Meta   struct {
		Pagination Pagination `json:"pagination"`
	} `json:"meta"`
}

// Account is the attributes block of GET /api/client/account
type Account struct {
	ID       int    `json:"id"`
	Admin    bool   `json:"admin"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AccountResponse represents the response of GET /api/client/account
type AccountResponse = ListObject[Account]

// ResourceUsage is the live usage block of GET <server>/resources
type ResourceUsage struct {
	MemoryBytes    int64   `json:"memory_bytes"`
	CPUAbsolute    float64 `json:"cpu_absolute"`
	DiskBytes      int64   `json:"disk_bytes"`
	NetworkRxBytes int64   `json:"network_rx_bytes"`
	NetworkTxBytes int64   `json:"network_tx_bytes"`
	UptimeMillis   int64   `json:"uptime"`
}

// ServerResources is the attributes block of GET <server>/resources
type ServerResources struct {
	CurrentState string        `json:"current_state"`
	IsSuspended  bool          `json:"is_suspended"`
	Resources    ResourceUsage `json:"resources"`
}

// ResourcesResponse represents the response of GET <server>/resources
type ResourcesResponse = ListObject[ServerResources]

// PowerSignal is sent opaquely to POST <server>/power
type PowerSignal string

const (
	PowerStart   PowerSignal = "start"
	PowerStop    PowerSignal = "stop"
	PowerRestart PowerSignal = "restart"
	PowerKill    PowerSignal = "kill"
)

// PowerSignals lists the signals in menu order.
var PowerSignals = []PowerSignal{PowerStart, PowerStop, PowerRestart, PowerKill}

// ParsePowerSignal accepts a signal name case-insensitively.
func ParsePowerSignal(s string) (PowerSignal, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range PowerSignals {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// PowerRequest is the body of POST <server>/power
type PowerRequest struct {
	Signal PowerSignal `json:"signal"`
}

// APIError is one element of the panel's error envelope.
type APIError struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// ErrorResponse is the panel's error envelope: {"errors":[...]}
type ErrorResponse struct {
	Errors []APIError `json:"errors"`
}
