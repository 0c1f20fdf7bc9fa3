// Package console implements the line oriented console the capability check
// prints warnings and erratum text to.
package console

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

// Console prints one line of text. Output is fire and forget.
type Console interface {
	PrintLine(text string)
}

const (
	warningPrefix = "WARNING:"
	warningStyle  = "\x1b[1;33m"
)

// Writer prints lines to an io.Writer. On a terminal long lines are wrapped
// at word boundaries and warnings are highlighted.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	width int
	color bool
	err   error
}

// New returns a console printing plain lines to w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Terminal returns a console for f, wrapping and styling output when f is a
// terminal.
func Terminal(f *os.File) *Writer {
	c := New(f)
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return c
	}
	c.color = os.Getenv("NO_COLOR") == ""
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		c.width = w
	}
	return c
}

// SetWidth sets the column limit lines are wrapped at. Zero disables
// wrapping.
func (c *Writer) SetWidth(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = n
}

// SetColor turns warning highlighting on or off.
func (c *Writer) SetColor(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.color = on
}

func (c *Writer) PrintLine(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}

	if !c.color {
		text = ansi.Strip(text)
	}
	if c.width > 0 && ansi.StringWidth(text) > c.width {
		text = ansi.Wordwrap(text, c.width, "")
	}
	if c.color && strings.HasPrefix(text, warningPrefix) {
		text = warningStyle + text + ansi.ResetStyle
	}
	_, c.err = io.WriteString(c.w, text+"\n")
}

// Err returns the first write error. Lines after it are dropped.
func (c *Writer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Recorder keeps every printed line in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *Recorder) PrintLine(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

// Lines returns the recorded lines in order.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *Recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return ""
	}
	return strings.Join(r.lines, "\n") + "\n"
}

// Discard drops every line.
var Discard Console = discard{}

type discard struct{}

func (discard) PrintLine(string) {}

// Tee prints every line to each of cs.
func Tee(cs ...Console) Console { return tee(cs) }

type tee []Console

func (t tee) PrintLine(text string) {
	for _, c := range t {
		c.PrintLine(text)
	}
}
