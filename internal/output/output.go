// Package output handles what goodmerge prints for the user: the dry-run
// grouping, a per-group progress line and the final summary.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/term"
)

// DefaultWidth is the progress line width used when the terminal size is unknown.
const DefaultWidth = 80

// Config holds output configuration.
type Config struct {
	Verbose   bool      // Enable verbose output
	Writer    io.Writer // Output destination (default: os.Stdout)
	ErrWriter io.Writer // Error output destination (default: os.Stderr)
	IsTTY     bool      // Whether output is a terminal
	Width     int       // Terminal width in columns (default: DefaultWidth)
}

// Output handles formatted output with verbose and progress support.
type Output struct {
	config          Config
	progressActive  bool
	progressTotal   int
	progressCurrent int
	progressMu      sync.Mutex
}

// New creates a new Output instance with the given configuration.
func New(config Config) *Output {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.ErrWriter == nil {
		config.ErrWriter = os.Stderr
	}
	if config.Width <= 0 {
		config.Width = DefaultWidth
	}
	return &Output{
		config: config,
	}
}

// DefaultConfig returns a Config writing to stdout and stderr, with TTY and
// width detection on stdout.
func DefaultConfig() Config {
	fd := int(os.Stdout.Fd())
	config := Config{
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		IsTTY:     term.IsTerminal(fd),
		Width:     DefaultWidth,
	}
	if config.IsTTY {
		if width, _, err := term.GetSize(fd); err == nil && width > 0 {
			config.Width = width
		}
	}
	return config
}

// Verbose prints a message only when verbose mode is enabled.
func (o *Output) Verbose(format string, args ...interface{}) {
	if !o.config.Verbose {
		return
	}
	o.println(o.config.Writer, format, args...)
}

// Info prints an informational message (always shown).
func (o *Output) Info(format string, args ...interface{}) {
	o.println(o.config.Writer, format, args...)
}

// Error prints an error message to stderr.
func (o *Output) Error(format string, args ...interface{}) {
	o.println(o.config.ErrWriter, format, args...)
}

// JSON writes an encoded document on its own line. Dry runs print the grouping
// this way so stdout stays machine readable.
func (o *Output) JSON(data []byte) error {
	o.clearProgressLine()
	if _, err := o.config.Writer.Write(data); err != nil {
		return err
	}
	_, err := io.WriteString(o.config.Writer, "\n")
	return err
}

func (o *Output) println(w io.Writer, format string, args ...interface{}) {
	o.clearProgressLine()
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprint(w, msg)
}

// clearProgressLine clears the current progress line if active.
func (o *Output) clearProgressLine() {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	if o.progressActive && o.config.IsTTY {
		o.blankLine()
	}
}

func (o *Output) blankLine() {
	fmt.Fprint(o.config.Writer, "\r"+strings.Repeat(" ", o.config.Width-1)+"\r")
}

// StartProgress begins a progress indicator over total groups.
func (o *Output) StartProgress(total int) {
	// Suppress progress when not TTY or when verbose mode is enabled
	if !o.config.IsTTY || o.config.Verbose {
		return
	}
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	o.progressActive = true
	o.progressTotal = total
	o.progressCurrent = 0
}

// UpdateProgress redraws the progress line as "Merging group N/M: key", cut
// to the terminal width.
func (o *Output) UpdateProgress(current int, key string) {
	// Suppress progress when not TTY or when verbose mode is enabled
	if !o.config.IsTTY || o.config.Verbose {
		return
	}
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	if !o.progressActive {
		return
	}
	o.progressCurrent = current
	line := fmt.Sprintf("Merging group %d/%d...", current, o.progressTotal)
	if key != "" {
		line = fmt.Sprintf("Merging group %d/%d: %s", current, o.progressTotal, key)
	}
	o.blankLine()
	fmt.Fprint(o.config.Writer, truncate(line, o.config.Width-1))
}

// EndProgress clears the progress indicator.
func (o *Output) EndProgress() {
	// Suppress progress when not TTY or when verbose mode is enabled
	if !o.config.IsTTY || o.config.Verbose {
		return
	}
	o.progressMu.Lock()
	defer o.progressMu.Unlock()
	if !o.progressActive {
		return
	}
	o.progressActive = false
	o.blankLine()
}

// truncate cuts s to at most width runes, ending in "..." when cut.
func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= 3 {
		return string([]rune(s)[:max(width, 0)])
	}
	return string([]rune(s)[:width-3]) + "..."
}

// IsVerbose returns whether verbose mode is enabled.
func (o *Output) IsVerbose() bool {
	return o.config.Verbose
}

// IsTTY returns whether the output is a terminal.
func (o *Output) IsTTY() bool {
	return o.config.IsTTY
}
