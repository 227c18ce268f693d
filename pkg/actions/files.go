package actions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cgast/agdesk/internal/fsutil"
	"github.com/cgast/agdesk/internal/sandbox"
	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/intent"
	"github.com/cgast/agdesk/pkg/router"
)

// OptDirectory scopes find_file to a directory or alias.
const OptDirectory = "directory"

const maxFindResults = 100

// FileEntry is a single item in a directory listing.
type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// resolveDir maps directory aliases ("documents", "home", "current", ...)
// and otherwise resolves the path like any other target.
func (h *Handlers) resolveDir(target string) (string, error) {
	alias := strings.ToLower(strings.TrimSpace(target))
	switch alias {
	case "", ".", "current", "current directory", "here":
		return filepath.Abs(".")
	case "home", "~":
		return h.home, nil
	case "desktop", "documents", "downloads", "pictures", "videos", "music":
		return filepath.Join(h.home, strings.ToUpper(alias[:1])+alias[1:]), nil
	}
	return h.resolvePath(target)
}

func (h *Handlers) resolvePath(target string) (string, error) {
	p := strings.TrimSpace(target)
	if p == "~" || strings.HasPrefix(p, "~/") {
		p = filepath.Join(h.home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

// access applies the sandbox to path. Denied paths fail; paths outside the
// safe roots go to the confirmer under action.
func (h *Handlers) access(ctx context.Context, action, verb, path string) (router.Outcome, bool) {
	err := h.sandbox.CheckPath(path)
	switch {
	case err == nil:
		return router.Outcome{}, true
	case errors.Is(err, sandbox.ErrDenied):
		return failf("Access denied: %s", path), false
	case errors.Is(err, sandbox.ErrOutsideSafe):
		return h.ask(ctx, confirm.Request{
			Action:      action,
			Target:      path,
			Description: fmt.Sprintf("%s outside safe directories: %s", verb, path),
		})
	default:
		return failf("Cannot check path %s: %v", path, err), false
	}
}

func (h *Handlers) readFile(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	if strings.TrimSpace(in.Target) == "" {
		return router.Fail(router.KindValidation, "No file specified"), nil
	}
	path, err := h.resolvePath(in.Target)
	if err != nil {
		return router.Outcome{}, fmt.Errorf("resolve path: %w", err)
	}
	if in.DryRun() {
		return preview(map[string]any{"path": path}, "Would read file: %s", path), nil
	}

	if out, ok := h.access(ctx, "read_file", "Read file", path); !ok {
		return out, nil
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return failf("File not found: %s", path), nil
	}
	if err != nil {
		return router.Outcome{}, err
	}
	if info.IsDir() {
		return failf("%s is a directory", path), nil
	}

	if err := h.sandbox.CheckFileSize(info.Size()); err != nil {
		if out, ok := h.ask(ctx, confirm.Request{
			Action:      "read_large_file",
			Target:      path,
			Description: fmt.Sprintf("Read large file (%s): %s", sandbox.FormatFileSize(info.Size()), path),
		}); !ok {
			return out, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return router.Outcome{}, err
	}
	return router.OK(fmt.Sprintf("Read %d bytes from %s", len(data), path), map[string]any{
		"path":    path,
		"content": string(data),
		"size":    len(data),
	}), nil
}

func (h *Handlers) writeFile(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	if strings.TrimSpace(in.Target) == "" {
		return router.Fail(router.KindValidation, "No file specified"), nil
	}
	content := in.Options.String(intent.OptContent)
	if content == "" {
		return router.Fail(router.KindValidation, "No content specified for file write operation"), nil
	}
	path, err := h.resolvePath(in.Target)
	if err != nil {
		return router.Outcome{}, fmt.Errorf("resolve path: %w", err)
	}
	if in.DryRun() {
		return preview(map[string]any{"path": path, "size": len(content)},
			"Would write %d bytes to file: %s", len(content), path), nil
	}

	if out, ok := h.access(ctx, "write_file", "Write file", path); !ok {
		return out, nil
	}

	data := map[string]any{"path": path, "size": len(content)}
	if old, err := os.ReadFile(path); err == nil {
		backup := path + ".backup"
		if err := fsutil.WriteFileAtomic(backup, old, 0o644); err != nil {
			return router.Outcome{}, fmt.Errorf("backup %s: %w", path, err)
		}
		data["backup"] = backup
	} else if !errors.Is(err, fs.ErrNotExist) {
		return router.Outcome{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return router.Outcome{}, err
	}
	if err := fsutil.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		return router.Outcome{}, err
	}
	h.logger.Info("file written", zap.String("path", path), zap.Int("bytes", len(content)))
	return router.OK(fmt.Sprintf("Wrote %d bytes to %s", len(content), path), data), nil
}

func (h *Handlers) listFiles(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	dir, err := h.resolveDir(in.Target)
	if err != nil {
		return router.Outcome{}, fmt.Errorf("resolve path: %w", err)
	}
	if in.DryRun() {
		return preview(map[string]any{"directory": dir}, "Would list files in: %s", dir), nil
	}

	if out, ok := h.access(ctx, "list_files", "List directory", dir); !ok {
		return out, nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return failf("Directory not found: %s", dir), nil
	}
	if err != nil {
		return router.Outcome{}, err
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		typ := "file"
		if entry.IsDir() {
			typ = "directory"
		}
		files = append(files, FileEntry{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
			Type: typ,
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	return router.OK(fmt.Sprintf("Found %d items in %s", len(files), dir), map[string]any{
		"directory": dir,
		"files":     files,
		"count":     len(files),
	}), nil
}

func (h *Handlers) findFile(ctx context.Context, in intent.Intent) (router.Outcome, error) {
	pattern := strings.TrimSpace(in.Target)
	if pattern == "" {
		return router.Fail(router.KindValidation, "No file name specified"), nil
	}
	root := h.home
	if dir := in.Options.String(OptDirectory); dir != "" {
		resolved, err := h.resolveDir(dir)
		if err != nil {
			return router.Outcome{}, fmt.Errorf("resolve path: %w", err)
		}
		root = resolved
	}
	if in.DryRun() {
		return preview(map[string]any{"pattern": pattern, "directory": root},
			"Would search for %q in: %s", pattern, root), nil
	}

	if out, ok := h.access(ctx, "find_file", "Search", root); !ok {
		return out, nil
	}

	glob := "*" + strings.ToLower(pattern) + "*"
	var matches []string
	truncated := false
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() && path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		if ok, _ := filepath.Match(glob, strings.ToLower(name)); ok && path != root {
			matches = append(matches, path)
			if len(matches) >= maxFindResults {
				truncated = true
				return filepath.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil {
		return router.Outcome{}, walkErr
	}

	return router.OK(fmt.Sprintf("Found %d matches for %q", len(matches), pattern), map[string]any{
		"pattern":   pattern,
		"directory": root,
		"matches":   matches,
		"truncated": truncated,
	}), nil
}
