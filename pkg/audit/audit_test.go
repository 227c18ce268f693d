package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/intent"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestDefaults(t *testing.T) {
	l, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 5*1024*1024, l.history.maxSize)
	assert.Equal(t, 5, l.history.maxFiles)
	assert.Equal(t, 1000, l.history.maxEntries)
}

func TestLogInteractionAndRecent(t *testing.T) {
	l, err := Open(t.TempDir(), Options{Now: newClock().Now})
	require.NoError(t, err)

	require.NoError(t, l.LogInteraction("open chrome", intent.New(intent.OpenApp, "chrome"), map[string]any{"success": true, "message": "ok"}))
	require.NoError(t, l.LogInteraction("kill notepad", intent.New(intent.KillProcess, "notepad"), map[string]any{"success": false}))

	recent, err := l.RecentInteractions(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "kill notepad", recent[0].UserInput)
	assert.Equal(t, "kill_process", recent[0].Intent.Type)
	assert.False(t, recent[0].Success)
	assert.NotEmpty(t, recent[0].ID)

	all, err := l.RecentInteractions(10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCountPruning(t *testing.T) {
	l, err := Open(t.TempDir(), Options{MaxEntries: 3})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.LogError("boom", map[string]any{"i": i}))
	}
	errs, err := l.RecentErrors(0)
	require.NoError(t, err)
	require.Len(t, errs, 3)
	assert.EqualValues(t, 2, errs[0].Context["i"])
	assert.EqualValues(t, 4, errs[2].Context["i"])
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{MaxSize: 1024, MaxFiles: 2, Now: newClock().Now})
	require.NoError(t, err)

	seen := map[string]bool{}
	rotated := false
	input := strings.Repeat("x", 200)
	for i := 0; i < 30; i++ {
		require.NoError(t, l.LogInteraction(input, intent.New(intent.GetTime, ""), map[string]any{"success": true}))

		archives, err := l.history.archives()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(archives), 2, "archive count never exceeds the maximum")
		for _, a := range archives {
			seen[a] = true
		}

		info, err := os.Stat(filepath.Join(dir, HistoryFile))
		require.NoError(t, err)
		assert.LessOrEqual(t, info.Size(), int64(1024))
		if len(archives) > 0 {
			rotated = true
		}
	}
	require.True(t, rotated)

	all := make([]string, 0, len(seen))
	for a := range seen {
		all = append(all, a)
	}
	sort.Strings(all)
	require.Greater(t, len(all), 2)

	final, err := l.history.archives()
	require.NoError(t, err)
	assert.Equal(t, all[len(all)-2:], final, "oldest archives are deleted first")

	for _, a := range final {
		assert.True(t, strings.HasPrefix(filepath.Base(a), "history_"))
	}
}

func TestRotationStartsFreshJournal(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{MaxSize: 10, MaxFiles: 5, Now: newClock().Now})
	require.NoError(t, err)

	require.NoError(t, l.LogError("this entry is larger than ten bytes", nil))

	data, err := os.ReadFile(filepath.Join(dir, ErrorsFile))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	archives, err := l.errors.archives()
	require.NoError(t, err)
	require.Len(t, archives, 1)

	var archived []ErrorEntry
	raw, err := os.ReadFile(archives[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &archived))
	require.Len(t, archived, 1)
	assert.Equal(t, "this entry is larger than ten bytes", archived[0].Error)
}

func TestRotationLeavesLookalikeFilesAlone(t *testing.T) {
	dir := t.TempDir()
	lookalikes := []string{"history_export.json", "history_backup.json", "history_20260301.json"}
	for _, name := range lookalikes {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o600))
	}

	l, err := Open(dir, Options{MaxSize: 10, MaxFiles: 1, Now: newClock().Now})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.LogInteraction("what time is it", intent.New(intent.GetTime, ""), map[string]any{"success": true}))
	}

	archives, err := l.history.archives()
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.NotContains(t, lookalikes, filepath.Base(archives[0]))

	require.NoError(t, l.Clear())
	for _, name := range lookalikes {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestCorruptJournalStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, HistoryFile), []byte("{not json"), 0o600))

	l, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, l.LogInteraction("help", intent.New(intent.Help, ""), map[string]any{"success": true}))

	recent, err := l.RecentInteractions(10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestStatistics(t *testing.T) {
	clock := newClock()
	l, err := Open(t.TempDir(), Options{Now: clock.Now})
	require.NoError(t, err)

	require.NoError(t, l.LogInteraction("a", intent.New(intent.OpenApp, "x"), map[string]any{"success": true}))
	require.NoError(t, l.LogInteraction("b", intent.New(intent.OpenApp, "y"), map[string]any{"success": false}))
	clock.t = clock.t.Add(48 * time.Hour)
	require.NoError(t, l.LogInteraction("c", intent.New(intent.GetTime, ""), map[string]any{"success": true}))
	require.NoError(t, l.LogError("oops", nil))
	require.NoError(t, l.LogConsent("kill_process", "notepad", confirm.AllowedOnce()))

	stats, err := l.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalInteractions)
	assert.Equal(t, 2, stats.SuccessfulInteractions)
	assert.Equal(t, 1, stats.FailedInteractions)
	assert.Equal(t, 1, stats.TotalErrors)
	assert.Equal(t, 1, stats.TotalConsentDecisions)
	assert.Equal(t, map[string]int{"open_app": 2, "get_time": 1}, stats.IntentCounts)
	assert.Equal(t, 1, stats.LastDay)
}

func TestLogConsent(t *testing.T) {
	l, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)

	require.NoError(t, l.LogConsent("run_command", "ls", confirm.Cancelled()))
	entries, err := l.RecentConsents(5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, confirm.OutcomeCancelled, entries[0].Outcome)
	assert.True(t, entries[0].Cancelled)
	assert.False(t, entries[0].Allowed)
}

func TestExportAndClear(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "logs"), Options{})
	require.NoError(t, err)
	require.NoError(t, l.LogInteraction("help", intent.New(intent.Help, ""), map[string]any{"success": true}))
	require.NoError(t, l.LogError("bad", map[string]any{"where": "test"}))

	out := filepath.Join(dir, "export.json")
	require.NoError(t, l.Export(out))

	var doc map[string]any
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Len(t, doc["interactions"], 1)
	assert.Len(t, doc["errors"], 1)
	assert.Contains(t, doc, "statistics")

	require.NoError(t, l.Clear())
	recent, err := l.RecentInteractions(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	_, err = os.Stat(filepath.Join(dir, "logs", HistoryFile))
	assert.True(t, os.IsNotExist(err))
}
