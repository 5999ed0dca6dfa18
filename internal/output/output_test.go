package output

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newTTY(buf *bytes.Buffer, width int) *Output {
	return New(Config{Writer: buf, ErrWriter: buf, IsTTY: true, Width: width})
}

func TestVerboseOutputOnlyAppearsWhenEnabled(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		expectEmpty bool
	}{
		{"verbose disabled - no output", false, true},
		{"verbose enabled - has output", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			out := New(Config{Verbose: tt.verbose, Writer: &buf, ErrWriter: &buf})

			out.Verbose("staged %s", "Rom (U).smc")

			if tt.expectEmpty && buf.Len() > 0 {
				t.Errorf("expected no output when verbose disabled, got: %q", buf.String())
			}
			if !tt.expectEmpty && buf.String() != "staged Rom (U).smc\n" {
				t.Errorf("unexpected verbose output: %q", buf.String())
			}
		})
	}
}

func TestInfoAndErrorWriters(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := New(Config{Writer: &stdout, ErrWriter: &stderr})

	out.Info("3 archives written")
	out.Error("error: %s", "boom\n")

	if stdout.String() != "3 archives written\n" {
		t.Errorf("unexpected stdout: %q", stdout.String())
	}
	if stderr.String() != "error: boom\n" {
		t.Errorf("expected a single trailing newline on stderr, got: %q", stderr.String())
	}
}

func TestJSONClearsProgressFirst(t *testing.T) {
	var buf bytes.Buffer
	out := newTTY(&buf, 20)

	out.StartProgress(2)
	out.UpdateProgress(1, "Rom")
	if err := out.JSON([]byte(`{"Rom":["Rom (U).smc"]}`)); err != nil {
		t.Fatalf("JSON failed: %v", err)
	}

	got := buf.String()
	if !strings.HasSuffix(got, "\r"+`{"Rom":["Rom (U).smc"]}`+"\n") {
		t.Errorf("expected the progress line cleared before the document, got: %q", got)
	}
}

func TestProgressFormat(t *testing.T) {
	var buf bytes.Buffer
	out := newTTY(&buf, 80)

	out.StartProgress(10)
	out.UpdateProgress(5, "")
	if !strings.Contains(buf.String(), "Merging group 5/10...") {
		t.Errorf("expected 'Merging group 5/10...', got: %q", buf.String())
	}

	buf.Reset()
	out.UpdateProgress(6, "Super Mario World")
	if !strings.Contains(buf.String(), "Merging group 6/10: Super Mario World") {
		t.Errorf("expected the group key in the progress line, got: %q", buf.String())
	}
}

func TestProgressSuppressed(t *testing.T) {
	tests := []struct {
		name    string
		isTTY   bool
		verbose bool
	}{
		{"not a terminal", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			out := New(Config{Verbose: tt.verbose, Writer: &buf, ErrWriter: &buf, IsTTY: tt.isTTY})

			out.StartProgress(10)
			out.UpdateProgress(5, "Rom")
			out.EndProgress()

			if buf.Len() > 0 {
				t.Errorf("expected no progress output, got: %q", buf.String())
			}
		})
	}
}

func TestEndProgressClearsLine(t *testing.T) {
	var buf bytes.Buffer
	out := newTTY(&buf, 40)

	out.StartProgress(10)
	out.UpdateProgress(5, "")
	buf.Reset()
	out.EndProgress()

	if buf.String() != "\r"+strings.Repeat(" ", 39)+"\r" {
		t.Errorf("expected a blanked line, got: %q", buf.String())
	}

	buf.Reset()
	out.EndProgress()
	if buf.Len() > 0 {
		t.Errorf("expected a second EndProgress to print nothing, got: %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"Merging group 1/2: Legend", 12, "Merging g..."},
		{"Pokémon Edición", 8, "Pokém..."},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	out := New(Config{})
	if out.config.Writer == nil || out.config.ErrWriter == nil {
		t.Error("expected default writers")
	}
	if out.config.Width != DefaultWidth {
		t.Errorf("expected default width %d, got %d", DefaultWidth, out.config.Width)
	}
	if out.IsVerbose() || out.IsTTY() {
		t.Error("expected verbose and TTY off by default")
	}
}

// lineRe matches the blanking written before each redraw.
var lineRe = regexp.MustCompile(`\r *\r`)

func TestProgressIndicatorFormatAndLifecycle(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("progress line reports N/M and never exceeds the width", prop.ForAll(
		func(current, total, width int, key string) bool {
			if current > total {
				current, total = total, current
			}

			var buf bytes.Buffer
			out := newTTY(&buf, width)
			out.StartProgress(total)
			out.UpdateProgress(current, key)

			line := lineRe.ReplaceAllString(buf.String(), "")
			if utf8.RuneCountInString(line) > width-1 {
				t.Logf("line %q wider than %d", line, width-1)
				return false
			}
			full := "Merging group " + strconv.Itoa(current) + "/" + strconv.Itoa(total) + ": " + key
			if utf8.RuneCountInString(full) <= width-1 && line != full {
				t.Logf("expected %q, got %q", full, line)
				return false
			}
			return true
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 1000),
		gen.IntRange(10, 120),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
	))

	properties.Property("Info always appears after progress", prop.ForAll(
		func(isTTY, verbose bool) bool {
			var buf bytes.Buffer
			out := New(Config{Verbose: verbose, Writer: &buf, ErrWriter: &buf, IsTTY: isTTY})
			out.StartProgress(3)
			out.UpdateProgress(1, "Rom")
			out.Info("done")
			return strings.HasSuffix(buf.String(), "done\n")
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
