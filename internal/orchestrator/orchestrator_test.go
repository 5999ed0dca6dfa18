package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodmerge/internal/audit"
	"goodmerge/internal/config"
	"goodmerge/internal/output"
	"goodmerge/internal/repack"
)

const testRules = `<?xml version="1.0"?>
<romsets>
	<ext text="smc"/>
	<zoned>
		<bias zone="En" name="Rom (U)"/>
		<clone zone="J" name="Ramu (J)"/>
	</zoned>
	<parent name="Lonely">
		<group reg="^Nobody"/>
	</parent>
</romsets>
`

// fakeTool stands in for 7z on the real filesystem. An archive is a text file
// listing its member names; "e" writes each listed member into the -o folder
// and "a" writes the archive listing the basenames of its members.
type fakeTool struct {
	calls [][]string
	fail  map[string]error // keyed by subcommand
}

func (f *fakeTool) Run(ctx context.Context, argv []string) error {
	f.calls = append(f.calls, argv)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.fail[argv[1]]; err != nil {
		return err
	}
	switch argv[1] {
	case "e":
		folder := strings.TrimPrefix(argv[2], "-o")
		data, err := os.ReadFile(argv[3])
		if err != nil {
			return err
		}
		for _, member := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			if err := os.WriteFile(filepath.Join(folder, member), []byte(member), 0644); err != nil {
				return err
			}
		}
		return nil
	case "a":
		names := make([]string, 0, len(argv)-3)
		for _, member := range argv[3:] {
			names = append(names, filepath.Base(member))
		}
		return os.WriteFile(argv[2], []byte(strings.Join(names, "\n")), 0644)
	}
	return errors.New("unknown subcommand " + argv[1])
}

type fixture struct {
	cfg    *config.Configuration
	src    string
	logDir string
	out    *bytes.Buffer
	tool   *fakeTool
}

func newFixture(t *testing.T, files ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		src:    filepath.Join(root, "roms"),
		logDir: filepath.Join(root, "audit"),
		out:    &bytes.Buffer{},
		tool:   &fakeTool{fail: map[string]error{}},
	}
	require.NoError(t, os.Mkdir(f.src, 0755))

	rulesPath := filepath.Join(root, "Snes.xmdb")
	require.NoError(t, os.WriteFile(rulesPath, []byte(testRules), 0644))

	for _, name := range files {
		f.write(t, name, name)
	}

	f.cfg = &config.Configuration{
		SourceFolder: f.src,
		PathXMDB:     rulesPath,
		Audit:        &audit.Config{Enabled: true, LogDirectory: f.logDir},
	}
	f.cfg.ApplyDefaults()
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.src, name), []byte(content), 0644))
}

func (f *fixture) run(t *testing.T, only []string) (*Summary, error) {
	t.Helper()
	return Run(context.Background(), f.cfg, Options{
		AppVersion: "test",
		Only:       only,
		Output:     output.New(output.Config{Writer: f.out, ErrWriter: f.out}),
		Runner:     f.tool,
	})
}

func (f *fixture) listing(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.src)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names
}

func (f *fixture) archive(t *testing.T, name string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.src, name))
	require.NoError(t, err)
	return strings.Split(string(data), "\n")
}

var romFiles = []string{
	"Other (U).smc",
	"Ramu (J).smc",
	"Rom (E).smc",
	"Rom (U).smc",
	"notes.txt",
}

func TestDryRunPrintsGrouping(t *testing.T) {
	f := newFixture(t, romFiles...)
	f.cfg.DryRun = true

	summary, err := f.run(t, nil)
	require.NoError(t, err)

	var grouping map[string][]string
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &grouping))
	assert.Equal(t, map[string][]string{
		"Lonely": {},
		"Other":  {"Other (U).smc"},
		"Rom":    {"Ramu (J).smc", "Rom (E).smc", "Rom (U).smc"},
	}, grouping)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 5, summary.TotalFiles)
	assert.Equal(t, 4, summary.Kept)
	assert.Equal(t, 3, summary.Groups)
	assert.Empty(t, f.tool.calls)
	assert.Equal(t, romFiles, f.listing(t))
	assert.NoDirExists(t, f.logDir, "dry runs do not open the audit log")
}

func TestListingModeNeedsNoSourceFolder(t *testing.T) {
	f := newFixture(t)
	list := filepath.Join(t.TempDir(), "files.txt")
	require.NoError(t, os.WriteFile(list, []byte("Rom (U).smc\r\nRamu (J).smc\n\nreadme.txt\n"), 0644))
	f.cfg.SourceFolder = ""
	f.cfg.PathFilelist = list

	summary, err := f.run(t, nil)
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.JSONEq(t, `{"Lonely":[],"Rom":["Ramu (J).smc","Rom (U).smc"]}`, f.out.String())
	assert.Empty(t, f.tool.calls)
}

func TestMergeWritesOneArchivePerGroup(t *testing.T) {
	f := newFixture(t, romFiles...)

	summary, err := f.run(t, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Other.7z", "Rom.7z", "notes.txt"}, f.listing(t))
	assert.Equal(t, []string{"Ramu (J).smc", "Rom (E).smc", "Rom (U).smc"}, f.archive(t, "Rom.7z"))
	assert.Equal(t, []string{"Other (U).smc"}, f.archive(t, "Other.7z"))

	assert.Equal(t, []string{filepath.Join(f.src, "Other.7z"), filepath.Join(f.src, "Rom.7z")}, summary.Archives)
	assert.Equal(t, 4, summary.Staged)
	assert.Equal(t, 1, summary.Skipped)
	assert.False(t, summary.DryRun)
}

func TestMergeExtractsSourceArchives(t *testing.T) {
	f := newFixture(t, "Rom (U).smc")
	f.write(t, "Rom (J) [b1].zip", "Rom (J) [b1].smc\nRom (J) [b1].txt")

	_, err := f.run(t, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Rom.7z"}, f.listing(t))
	assert.Equal(t, []string{"Rom (J) [b1].smc", "Rom (J) [b1].txt", "Rom (U).smc"}, f.archive(t, "Rom.7z"))
}

func TestMergeRecordsAuditTrail(t *testing.T) {
	f := newFixture(t, romFiles...)

	_, err := f.run(t, nil)
	require.NoError(t, err)

	runs, err := audit.NewReader(f.logDir).ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, audit.RunStatusCompleted, run.Status)
	assert.Equal(t, audit.RunTypeMerge, run.RunType)
	assert.Equal(t, "test", run.AppVersion)
	assert.Equal(t, f.src, run.Source)
	assert.Equal(t, audit.RunSummary{TotalFiles: 5, Kept: 4, Groups: 3, Archives: 2, Staged: 4, Skipped: 1}, run.Summary)

	events, err := audit.NewReader(f.logDir).GetRun(run.RunID)
	require.NoError(t, err)
	counts := map[audit.EventType]int{}
	for _, e := range events {
		counts[e.EventType]++
	}
	assert.Equal(t, 4, counts[audit.EventMemberStaged])
	assert.Equal(t, 2, counts[audit.EventArchiveCreated])
	assert.Equal(t, 1, counts[audit.EventGroupSkipped])
	assert.Zero(t, counts[audit.EventError])
}

func TestToolFailureStopsRunAndKeepsSources(t *testing.T) {
	f := newFixture(t, romFiles...)
	f.tool.fail["a"] = errors.New("disk full")

	summary, err := f.run(t, nil)
	require.Error(t, err)
	assert.True(t, repack.IsExternalTool(err), "got %v", err)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Archives)

	assert.Equal(t, romFiles, f.listing(t))

	runs, err := audit.NewReader(f.logDir).ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, audit.RunStatusFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].Summary.Errors)

	events, err := audit.NewReader(f.logDir).GetRun(runs[0].RunID)
	require.NoError(t, err)
	var recorded *audit.AuditEvent
	for i := range events {
		if events[i].EventType == audit.EventError {
			recorded = &events[i]
		}
	}
	require.NotNil(t, recorded)
	assert.Equal(t, "Other", recorded.Group)
	assert.Equal(t, string(repack.ExternalToolError), recorded.ErrorDetails.ErrorType)
}

func TestCancelledRunIsInterrupted(t *testing.T) {
	f := newFixture(t, romFiles...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, f.cfg, Options{
		Output: output.New(output.Config{Writer: f.out, ErrWriter: f.out}),
		Runner: f.tool,
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, romFiles, f.listing(t))

	runs, err := audit.NewReader(f.logDir).ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, audit.RunStatusInterrupted, runs[0].Status)
}

func TestOnlyRestrictsToChangedGroups(t *testing.T) {
	f := newFixture(t, romFiles...)

	summary, err := f.run(t, []string{"Ramu (J).smc", "not there.smc"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Groups)
	assert.Equal(t, []string{"Other (U).smc", "Rom.7z", "notes.txt"}, f.listing(t))
	assert.Zero(t, summary.Skipped)
}

func TestRerunFoldsNewFilesIntoExistingArchive(t *testing.T) {
	f := newFixture(t, "Rom (U).smc", "Rom (E).smc")
	_, err := f.run(t, nil)
	require.NoError(t, err)

	f.write(t, "Rom (Beta).smc", "beta")
	_, err = f.run(t, []string{"Rom (Beta).smc"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Rom.7z"}, f.listing(t))
	assert.Equal(t, []string{"Rom (Beta).smc", "Rom (E).smc", "Rom (U).smc"}, f.archive(t, "Rom.7z"))
}

func TestExcludeDropsGroups(t *testing.T) {
	f := newFixture(t, romFiles...)
	f.cfg.Exclude = "^Other"

	_, err := f.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Other (U).smc", "Rom.7z", "notes.txt"}, f.listing(t))
}

func TestEmptySourceFolder(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestInvalidConfigurationIsRejected(t *testing.T) {
	f := newFixture(t, romFiles...)
	f.cfg.SourceFolder = ""

	_, err := f.run(t, nil)
	var configErr *config.ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, config.ValidationError, configErr.Type)
}

func TestMissingRuleDatabase(t *testing.T) {
	f := newFixture(t, romFiles...)
	f.cfg.PathXMDB = filepath.Join(t.TempDir(), "rules")
	f.cfg.XMDBFilenameTemplate = "{}.xmdb"
	f.cfg.XMDBType = "Snes"

	_, err := f.run(t, nil)
	var configErr *config.ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, config.FileNotFound, configErr.Type)
}

func TestSummaryString(t *testing.T) {
	dry := &Summary{TotalFiles: 5, Kept: 4, Groups: 2, DryRun: true, Duration: 1500 * time.Microsecond}
	assert.Equal(t, "Grouped 4 of 5 files into 2 groups (dry run, nothing written) in 2ms", dry.String())

	applied := &Summary{TotalFiles: 5, Kept: 4, Groups: 3, Archives: []string{"a.7z", "b.7z"}, Staged: 4, Skipped: 1, Duration: time.Second}
	assert.Equal(t, "Wrote 2 archives from 4 files in 3 groups (1 empty skipped, 4 of 5 files recognized) in 1s", applied.String())
}
