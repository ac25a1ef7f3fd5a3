package connect

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/panelfs/panelfs/internal/models"
)

// TerminalPrompter asks on a terminal. The API key is read without echo
// when In is a terminal.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer

	reader *bufio.Reader
}

// NewTerminalPrompter prompts on stdin/stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompter) readLine() (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PanelURL asks for the panel base URL, offering current as the default.
func (p *TerminalPrompter) PanelURL(current string) (string, error) {
	if current != "" {
		fmt.Fprintf(p.Out, "Panel URL [%s]: ", current)
	} else {
		fmt.Fprint(p.Out, "Panel URL (e.g. https://panel.example.com): ")
	}
	line, err := p.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return current, nil
	}
	return line, nil
}

// APIKey asks for the client API key.
func (p *TerminalPrompter) APIKey() (string, error) {
	fmt.Fprint(p.Out, "Client API key: ")
	fd := int(p.In.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return string(b), nil
	}
	return p.readLine()
}

// PickServer lists servers and reads a 1-based choice. A single server is
// picked without asking.
func (p *TerminalPrompter) PickServer(servers []models.Server) (int, error) {
	if len(servers) == 1 {
		fmt.Fprintf(p.Out, "Using server %s (%s)\n", servers[0].Name, servers[0].Identifier)
		return 0, nil
	}

	fmt.Fprintln(p.Out, "Servers:")
	for i, s := range servers {
		fmt.Fprintf(p.Out, "  %d. %s (%s)\n", i+1, s.Name, s.Identifier)
	}
	for {
		fmt.Fprintf(p.Out, "Choose [1-%d]: ", len(servers))
		line, err := p.readLine()
		if err != nil {
			return -1, err
		}
		if line == "" {
			return -1, ErrCancelled
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(servers) {
			return n - 1, nil
		}
		fmt.Fprintln(p.Out, "Invalid choice, please try again.")
	}
}
