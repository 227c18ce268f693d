package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrDenied marks a path under a denied root. It is never overridable.
	ErrDenied = errors.New("sandbox: path denied")
	// ErrOutsideSafe marks a path outside every safe root. Callers may ask
	// the user before proceeding.
	ErrOutsideSafe = errors.New("sandbox: path outside safe directories")
	// ErrTooLarge marks a file above the size limit.
	ErrTooLarge = errors.New("sandbox: file too large")
)

// Sandbox classifies filesystem paths for the file handlers. Paths under a
// denied root are refused outright; paths outside the safe roots need an
// explicit grant; files larger than the limit need one too.
type Sandbox struct {
	safePaths   []string
	deniedPaths []string
	maxFileSize int64 // bytes, 0 means unlimited
}

// Config holds the sandbox configuration.
type Config struct {
	SafePaths   []string
	DeniedPaths []string
	MaxFileSize string // e.g. "5MB", "1GB", "500KB"
}

// New creates a Sandbox from the given configuration.
// Safe and denied paths are expanded, made absolute and have their symlinks
// resolved.
func New(cfg Config) (*Sandbox, error) {
	s := &Sandbox{}

	for _, p := range cfg.SafePaths {
		abs, err := resolveReal(p)
		if err != nil {
			return nil, fmt.Errorf("sandbox: resolve safe path %q: %w", p, err)
		}
		s.safePaths = append(s.safePaths, abs)
	}

	for _, p := range cfg.DeniedPaths {
		abs, err := resolveReal(p)
		if err != nil {
			return nil, fmt.Errorf("sandbox: resolve denied path %q: %w", p, err)
		}
		s.deniedPaths = append(s.deniedPaths, abs)
	}

	if cfg.MaxFileSize != "" {
		size, err := ParseFileSize(cfg.MaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("sandbox: parse max_file_size %q: %w", cfg.MaxFileSize, err)
		}
		s.maxFileSize = size
	}

	return s, nil
}

// Resolve expands a leading "~" to the home directory and makes the path
// absolute.
func Resolve(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// resolveReal is Resolve followed by symlink evaluation. Components that do
// not exist yet are kept as written below the deepest existing ancestor, and
// a dangling link is replaced by its target.
func resolveReal(path string) (string, error) {
	abs, err := Resolve(path)
	if err != nil {
		return "", err
	}
	return evalExisting(abs, 0)
}

const maxLinkHops = 64

func evalExisting(abs string, hops int) (string, error) {
	var missing []string
	dir := abs
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return joinMissing(resolved, missing), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		if info, lerr := os.Lstat(dir); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
			if hops >= maxLinkHops {
				return "", fmt.Errorf("too many links resolving %q", abs)
			}
			target, err := os.Readlink(dir)
			if err != nil {
				return "", err
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(dir), target)
			}
			return evalExisting(joinMissing(filepath.Clean(target), missing), hops+1)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		missing = append(missing, filepath.Base(dir))
		dir = parent
	}
}

// joinMissing appends the components collected deepest-first to base.
func joinMissing(base string, missing []string) string {
	for i := len(missing) - 1; i >= 0; i-- {
		base = filepath.Join(base, missing[i])
	}
	return base
}

// CheckPath classifies path. It returns nil for a path under a safe root,
// an error wrapping ErrDenied for a denied path, and an error wrapping
// ErrOutsideSafe otherwise. Symlinks are followed, so a link is judged by
// its target. With no safe roots configured every non-denied path is safe.
func (s *Sandbox) CheckPath(path string) error {
	abs, err := resolveReal(path)
	if err != nil {
		return fmt.Errorf("sandbox: resolve path %q: %w", path, err)
	}

	// Deny takes precedence.
	for _, denied := range s.deniedPaths {
		if within(abs, denied) {
			return fmt.Errorf("%w: %q is under %q", ErrDenied, abs, denied)
		}
	}

	if len(s.safePaths) == 0 {
		return nil
	}

	for _, safe := range s.safePaths {
		if within(abs, safe) {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrOutsideSafe, abs)
}

func within(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// CheckFileSize validates that size does not exceed the configured limit.
// The error wraps ErrTooLarge.
func (s *Sandbox) CheckFileSize(size int64) error {
	if s.maxFileSize <= 0 {
		return nil
	}
	if size > s.maxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds maximum %s",
			ErrTooLarge, size, FormatFileSize(s.maxFileSize))
	}
	return nil
}

// MaxFileSize returns the configured maximum file size in bytes.
// Returns 0 if no limit is configured.
func (s *Sandbox) MaxFileSize() int64 {
	return s.maxFileSize
}

// SafePaths returns the list of safe absolute paths.
func (s *Sandbox) SafePaths() []string {
	return s.safePaths
}

// DeniedPaths returns the list of denied absolute paths.
func (s *Sandbox) DeniedPaths() []string {
	return s.deniedPaths
}

// ParseFileSize parses a human-readable file size string into bytes.
// Supported suffixes: B, KB, MB, GB, TB (case-insensitive).
func ParseFileSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)

	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"TB", 1024 * 1024 * 1024 * 1024},
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.suffix))
			n, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q", numStr)
			}
			return int64(n * float64(sf.multiplier)), nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid file size %q", s)
	}
	return n, nil
}

// FormatFileSize formats bytes into a human-readable string.
func FormatFileSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
		tb = gb * 1024
	)
	switch {
	case bytes >= tb:
		return fmt.Sprintf("%.1fTB", float64(bytes)/float64(tb))
	case bytes >= gb:
		return fmt.Sprintf("%.1fGB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1fMB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1fKB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
