// Package progress reports transfer progress for get and put.
package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives progress for one transfer.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
}

// CLIProgress draws a byte progress bar.
type CLIProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a progress bar reporter writing to out.
func NewCLIProgress(out io.Writer) *CLIProgress {
	return &CLIProgress{out: out}
}

// Start initializes the progress bar with total size and description.
func (p *CLIProgress) Start(total int64, description string) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to current.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// NoOpProgress discards progress, for --quiet and non-terminal output.
type NoOpProgress struct{}

func (NoOpProgress) Start(int64, string) {}
func (NoOpProgress) Update(int64)        {}
func (NoOpProgress) Finish()             {}

// Copy copies src to dst reporting each chunk.
func Copy(dst io.Writer, src io.Reader, total int64, description string, r Reporter) (int64, error) {
	r.Start(total, description)
	n, err := io.Copy(dst, &Reader{reader: src, reporter: r})
	if err == nil {
		r.Finish()
	}
	return n, err
}

// Reader wraps an io.Reader to report progress.
type Reader struct {
	reader   io.Reader
	reporter Reporter
	current  int64
}

// NewReader creates a progress-reporting reader.
func NewReader(reader io.Reader, reporter Reporter) *Reader {
	return &Reader{reader: reader, reporter: reporter}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	pr.reporter.Update(pr.current)
	return n, err
}
