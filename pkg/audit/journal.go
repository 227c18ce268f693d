package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cgast/agdesk/internal/fsutil"
)

const archiveLayout = "20060102_150405.000000000"

// journal is one JSON-array file of entries with count pruning and size
// rotation. Callers serialize access.
type journal[T any] struct {
	path       string
	maxEntries int
	maxSize    int64
	maxFiles   int
	now        func() time.Time
	logger     *zap.Logger
}

func (j *journal[T]) stem() string {
	return strings.TrimSuffix(filepath.Base(j.path), filepath.Ext(j.path))
}

// load returns the current entries. A missing journal is empty; an
// unreadable one is logged and treated as empty so logging keeps working.
func (j *journal[T]) load() ([]T, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: read %s: %w", j.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []T
	if err := json.Unmarshal(data, &entries); err != nil {
		j.logger.Warn("audit journal corrupt, starting fresh", zap.String("path", j.path), zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

// append adds e, keeps the newest maxEntries, rewrites the file and rotates
// it if it grew past maxSize.
func (j *journal[T]) append(e T) error {
	entries, err := j.load()
	if err != nil {
		return err
	}
	entries = append(entries, e)
	if j.maxEntries > 0 && len(entries) > j.maxEntries {
		entries = entries[len(entries)-j.maxEntries:]
	}
	if err := j.write(entries); err != nil {
		return err
	}
	return j.rotate()
}

func (j *journal[T]) write(entries []T) error {
	if entries == nil {
		entries = []T{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: encode %s: %w", j.path, err)
	}
	if err := fsutil.WriteFileAtomic(j.path, data, 0o600); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

func (j *journal[T]) rotate() error {
	if j.maxSize <= 0 {
		return nil
	}
	info, err := os.Stat(j.path)
	if err != nil {
		return fmt.Errorf("audit: stat %s: %w", j.path, err)
	}
	if info.Size() <= j.maxSize {
		return nil
	}

	archive := j.archiveName(j.now())
	if err := os.Rename(j.path, archive); err != nil {
		return fmt.Errorf("audit: archive %s: %w", j.path, err)
	}
	j.logger.Info("rotated audit journal", zap.String("path", j.path), zap.String("archive", archive), zap.Int64("size", info.Size()))

	if err := j.write(nil); err != nil {
		return err
	}
	return j.cleanup()
}

// archiveName returns an unused archive path for t. The timestamp layout
// sorts lexicographically in time order.
func (j *journal[T]) archiveName(t time.Time) string {
	dir := filepath.Dir(j.path)
	for {
		name := filepath.Join(dir, fmt.Sprintf("%s_%s.json", j.stem(), t.Format(archiveLayout)))
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			return name
		}
		t = t.Add(time.Nanosecond)
	}
}

// archives lists this journal's archives, oldest first. Only names whose
// suffix is an archive timestamp count; other files sharing the prefix are
// left alone.
func (j *journal[T]) archives() ([]string, error) {
	prefix := j.stem() + "_"
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(j.path), prefix+"*.json"))
	if err != nil {
		return nil, fmt.Errorf("audit: list archives: %w", err)
	}
	out := matches[:0]
	for _, m := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), prefix), ".json")
		if _, err := time.Parse(archiveLayout, stamp); err == nil {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (j *journal[T]) cleanup() error {
	if j.maxFiles <= 0 {
		return nil
	}
	archives, err := j.archives()
	if err != nil {
		return err
	}
	for len(archives) > j.maxFiles {
		if err := os.Remove(archives[0]); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("audit: remove %s: %w", archives[0], err)
		}
		j.logger.Info("removed old audit archive", zap.String("archive", archives[0]))
		archives = archives[1:]
	}
	return nil
}

// recent returns up to n of the newest entries, oldest first.
func (j *journal[T]) recent(n int) ([]T, error) {
	entries, err := j.load()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// clear removes the journal and its archives.
func (j *journal[T]) clear() error {
	archives, err := j.archives()
	if err != nil {
		return err
	}
	for _, p := range append(archives, j.path) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("audit: remove %s: %w", p, err)
		}
	}
	return nil
}
