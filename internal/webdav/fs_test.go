package webdav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/panelfs/panelfs/internal/remotefs"
)

// memBridge is an in-memory Bridge.
type memBridge struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newMemBridge() *memBridge {
	return &memBridge{
		files: map[string][]byte{"/server.properties": []byte("motd=hi\n")},
		dirs:  map[string]bool{"/": true, "/plugins": true},
	}
}

func notFound(op, p string) error {
	return &remotefs.Error{Kind: remotefs.KindNotFound, Op: op, Path: p}
}

func (m *memBridge) Stat(ctx context.Context, p string) (remotefs.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		return remotefs.Metadata{Name: path.Base(p), Kind: remotefs.EntryDirectory}, nil
	}
	if data, ok := m.files[p]; ok {
		return remotefs.Metadata{Name: path.Base(p), Kind: remotefs.EntryFile, Size: int64(len(data)), ModTime: time.Unix(1700000000, 0)}, nil
	}
	return remotefs.Metadata{}, notFound("stat", p)
}

func (m *memBridge) ListDirectory(ctx context.Context, p string) ([]remotefs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []remotefs.DirEntry
	for d := range m.dirs {
		if d != "/" && path.Dir(d) == p {
			out = append(out, remotefs.DirEntry{Name: path.Base(d), Kind: remotefs.EntryDirectory, Metadata: remotefs.Metadata{Name: path.Base(d), Kind: remotefs.EntryDirectory}})
		}
	}
	for f, data := range m.files {
		if path.Dir(f) == p {
			out = append(out, remotefs.DirEntry{Name: path.Base(f), Metadata: remotefs.Metadata{Name: path.Base(f), Size: int64(len(data))}})
		}
	}
	remotefs.SortEntries(out)
	return out, nil
}

func (m *memBridge) ReadFile(ctx context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	if !ok {
		return nil, notFound("read", p)
	}
	return data, nil
}

func (m *memBridge) WriteFile(ctx context.Context, p string, data []byte, opts remotefs.WriteOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = append([]byte(nil), data...)
	return nil
}

func (m *memBridge) CreateDirectory(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[p] = true
	return nil
}

func (m *memBridge) Delete(ctx context.Context, p string, opts remotefs.DeleteOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; !ok && !m.dirs[p] {
		return notFound("delete", p)
	}
	delete(m.files, p)
	delete(m.dirs, p)
	return nil
}

func (m *memBridge) Rename(ctx context.Context, from, to string, opts remotefs.RenameOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[from]
	if !ok {
		return notFound("rename", from)
	}
	delete(m.files, from)
	m.files[to] = data
	return nil
}

func do(t *testing.T, method, url, body string, header map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestHandler_RoundTrip(t *testing.T) {
	b := newMemBridge()
	srv := httptest.NewServer(NewHandler(b, "/dav", nil))
	defer srv.Close()

	resp, body := do(t, "GET", srv.URL+"/dav/server.properties", "", nil)
	if resp.StatusCode != 200 || body != "motd=hi\n" {
		t.Errorf("GET = %d %q", resp.StatusCode, body)
	}

	resp, _ = do(t, "PUT", srv.URL+"/dav/plugins/new.yml", "enabled: true", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("PUT status = %d", resp.StatusCode)
	}
	if string(b.files["/plugins/new.yml"]) != "enabled: true" {
		t.Errorf("uploaded = %q", b.files["/plugins/new.yml"])
	}

	resp, body = do(t, "PROPFIND", srv.URL+"/dav/", "", map[string]string{"Depth": "1"})
	if resp.StatusCode != http.StatusMultiStatus {
		t.Errorf("PROPFIND status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "/dav/plugins/") || !strings.Contains(body, "/dav/server.properties") {
		t.Errorf("PROPFIND body missing entries:\n%s", body)
	}

	resp, _ = do(t, "GET", srv.URL+"/dav/missing.txt", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET missing = %d, want 404", resp.StatusCode)
	}

	resp, _ = do(t, "MKCOL", srv.URL+"/dav/world", "", nil)
	if resp.StatusCode != http.StatusCreated || !b.dirs["/world"] {
		t.Errorf("MKCOL = %d", resp.StatusCode)
	}

	resp, _ = do(t, "MOVE", srv.URL+"/dav/server.properties", "", map[string]string{"Destination": srv.URL + "/dav/plugins/server.properties"})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("MOVE = %d", resp.StatusCode)
	}
	if _, ok := b.files["/plugins/server.properties"]; !ok {
		t.Error("MOVE did not rename")
	}

	resp, _ = do(t, "DELETE", srv.URL+"/dav/plugins/new.yml", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE = %d", resp.StatusCode)
	}

	resp, body = do(t, "GET", srv.URL+"/metrics", "", nil)
	if resp.StatusCode != 200 || !strings.Contains(body, "panelfs_frontend_requests_total") {
		t.Errorf("metrics endpoint missing front-end counter")
	}
}

func TestOpenFile_Flags(t *testing.T) {
	p := NewFileSystem(newMemBridge())
	ctx := context.Background()

	if _, err := p.OpenFile(ctx, "/nope", os.O_RDONLY, 0); !os.IsNotExist(err) {
		t.Errorf("read missing: %v", err)
	}
	if _, err := p.OpenFile(ctx, "/server.properties", os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644); !os.IsExist(err) {
		t.Errorf("exclusive create of existing: %v", err)
	}
	if _, err := p.OpenFile(ctx, "/plugins", os.O_WRONLY|os.O_TRUNC, 0644); err == nil {
		t.Error("writing a directory should fail")
	}
	if _, err := p.Stat(ctx, "/missing"); !os.IsNotExist(err) {
		t.Errorf("Stat missing: %v", err)
	}
}

func TestReaddir_Batches(t *testing.T) {
	b := newMemBridge()
	b.files["/a.txt"] = nil
	b.files["/b.txt"] = nil
	p := NewFileSystem(b)

	f, err := p.OpenFile(context.Background(), "/", os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var names []string
	for {
		infos, err := f.Readdir(2)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		for _, fi := range infos {
			names = append(names, fi.Name())
		}
	}
	if strings.Join(names, ",") != "plugins,a.txt,b.txt,server.properties" {
		t.Errorf("names = %v", names)
	}
}

func TestSeekSizeProbeSkipsFetch(t *testing.T) {
	b := newMemBridge()
	p := NewFileSystem(b)
	f, err := p.OpenFile(context.Background(), "/server.properties", os.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil || size != 8 {
		t.Errorf("Seek end = %d, %v", size, err)
	}
	if f.(*file).content != nil {
		t.Error("size probe fetched content")
	}
	f.Seek(0, io.SeekStart)
	data, _ := io.ReadAll(f)
	if string(data) != "motd=hi\n" {
		t.Errorf("data = %q", data)
	}
}
