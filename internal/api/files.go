package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"

	"github.com/panelfs/panelfs/internal/connection"
	"github.com/panelfs/panelfs/internal/models"
)

// ListDirectory lists one remote directory.
// GET <files>/list?directory=<dir>
func (c *Client) ListDirectory(ctx context.Context, s connection.Snapshot, dir string) ([]models.RemoteEntry, error) {
	resp, err := c.doRequest(ctx, request{
		op:     "list",
		method: nethttp.MethodGet,
		url:    s.ServerAPIURL + "/list?directory=" + url.QueryEscape(dir),
		auth:   s.AuthHeader,
	})
	if err != nil {
		return nil, err
	}

	var list models.FileListResponse
	if err := decodeJSON(resp, &list, "file list"); err != nil {
		return nil, err
	}
	return list.Entries(), nil
}

// FileContents fetches a file's bytes. This is the only retried call.
// GET <files>/contents?file=<path>
func (c *Client) FileContents(ctx context.Context, s connection.Snapshot, path string) ([]byte, error) {
	resp, err := c.doRetryable(ctx, request{
		op:     "contents",
		method: nethttp.MethodGet,
		url:    s.ServerAPIURL + "/contents?file=" + url.QueryEscape(path),
		auth:   s.AuthHeader,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	return data, nil
}

// WriteFile uploads raw bytes, replacing the remote file.
// POST <files>/write?file=<path>
func (c *Client) WriteFile(ctx context.Context, s connection.Snapshot, path string, data []byte) error {
	resp, err := c.doRequest(ctx, request{
		op:          "write",
		method:      nethttp.MethodPost,
		url:         s.ServerAPIURL + "/write?file=" + url.QueryEscape(path),
		auth:        s.AuthHeader,
		body:        bytes.NewReader(data),
		contentType: "application/octet-stream",
	})
	if err != nil {
		return err
	}
	discard(resp)
	return nil
}

// CreateFolder creates name inside root.
// POST <files>/create-folder {root, name}
func (c *Client) CreateFolder(ctx context.Context, s connection.Snapshot, root, name string) error {
	return c.postJSON(ctx, s, "create-folder", nethttp.MethodPost, "/create-folder", models.CreateFolderRequest{Root: root, Name: name})
}

// Delete removes files (names relative to root). Directories are removed recursively by the panel.
// POST <files>/delete {root, files}
func (c *Client) Delete(ctx context.Context, s connection.Snapshot, root string, files []string) error {
	return c.postJSON(ctx, s, "delete", nethttp.MethodPost, "/delete", models.DeleteRequest{Root: root, Files: files})
}

// Rename moves entries; from/to are relative to root.
// PUT <files>/rename {root, files:[{from,to}]}
func (c *Client) Rename(ctx context.Context, s connection.Snapshot, root string, pairs []models.RenamePair) error {
	return c.postJSON(ctx, s, "rename", nethttp.MethodPut, "/rename", models.RenameRequest{Root: root, Files: pairs})
}

// Copy duplicates a file in place as "<name> copy<ext>".
// POST <files>/copy {location}
func (c *Client) Copy(ctx context.Context, s connection.Snapshot, location string) error {
	return c.postJSON(ctx, s, "copy", nethttp.MethodPost, "/copy", models.CopyRequest{Location: location})
}

func (c *Client) postJSON(ctx context.Context, s connection.Snapshot, op, method, suffix string, payload interface{}) error {
	body, err := jsonBody(payload)
	if err != nil {
		return err
	}
	resp, err := c.doRequest(ctx, request{
		op:          op,
		method:      method,
		url:         s.ServerAPIURL + suffix,
		auth:        s.AuthHeader,
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return err
	}
	discard(resp)
	return nil
}
