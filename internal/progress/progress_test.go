package progress

import (
	"bytes"
	"strings"
	"testing"
)

type recorder struct {
	total    int64
	desc     string
	updates  []int64
	finished bool
}

func (r *recorder) Start(total int64, d string) { r.total, r.desc = total, d }
func (r *recorder) Update(c int64)              { r.updates = append(r.updates, c) }
func (r *recorder) Finish()                     { r.finished = true }

func TestCopy(t *testing.T) {
	src := strings.Repeat("x", 70000)
	var dst bytes.Buffer
	r := &recorder{}

	n, err := Copy(&dst, strings.NewReader(src), int64(len(src)), "eula.txt", r)
	if err != nil || n != int64(len(src)) {
		t.Fatalf("Copy = %d, %v", n, err)
	}
	if dst.String() != src {
		t.Error("content mismatch")
	}
	if r.total != 70000 || r.desc != "eula.txt" || !r.finished {
		t.Errorf("reporter = %+v", r)
	}
	if len(r.updates) == 0 || r.updates[len(r.updates)-1] != 70000 {
		t.Errorf("last update = %v", r.updates)
	}
}

func TestCLIProgress_Output(t *testing.T) {
	var out bytes.Buffer
	p := NewCLIProgress(&out)
	if _, err := Copy(&bytes.Buffer{}, strings.NewReader("hello"), 5, "upload", p); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "upload") {
		t.Errorf("bar output missing description: %q", out.String())
	}
}
