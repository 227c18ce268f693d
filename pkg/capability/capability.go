// Package capability holds the operator-controlled feature flags that gate
// whole classes of intents. Flags live in a YAML file owned by a Registry;
// every mutation re-reads the file, merges it with the defaults, applies the
// change and rewrites the file before the in-memory view is updated.
package capability

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cgast/agdesk/internal/fsutil"
)

// Name identifies a capability.
type Name string

const (
	FS             Name = "fs"
	ProcessControl Name = "process_control"
	WindowControl  Name = "window_control"
	BrowserControl Name = "browser_control"
	RunShell       Name = "run_shell"
	Network        Name = "network"
	Clipboard      Name = "clipboard"
	Screenshot     Name = "screenshot"
	Microphone     Name = "microphone"
	SystemInfo     Name = "system_info"
)

var ErrUnknownCapability = errors.New("capability: unknown capability")

type definition struct {
	enabled     bool
	description string
}

var definitions = map[Name]definition{
	FS:             {false, "Access to file system operations (read, write, list files)"},
	ProcessControl: {false, "Control over system processes (kill, list processes)"},
	WindowControl:  {true, "Control over application windows (open, close, switch)"},
	BrowserControl: {true, "Control over web browser (open URLs, search)"},
	RunShell:       {false, "Execute shell commands"},
	Network:        {true, "Network operations (web requests, downloads)"},
	Clipboard:      {true, "Access to system clipboard"},
	Screenshot:     {true, "Take screenshots"},
	Microphone:     {true, "Access to microphone for voice input"},
	SystemInfo:     {true, "Access to system information"},
}

// Names returns every capability name, sorted.
func Names() []Name {
	names := make([]Name, 0, len(definitions))
	for n := range definitions {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Defaults returns the documented default for every capability.
func Defaults() map[Name]bool {
	out := make(map[Name]bool, len(definitions))
	for n, d := range definitions {
		out[n] = d.enabled
	}
	return out
}

// Known reports whether name is a capability.
func Known(name Name) bool {
	_, ok := definitions[name]
	return ok
}

// Change describes a flag flip observed by the registry.
type Change struct {
	Name    Name
	Enabled bool
}

type fileFormat struct {
	Capabilities map[string]bool `yaml:"capabilities"`
}

// Registry owns the flags file.
type Registry struct {
	mu       sync.RWMutex
	path     string
	flags    map[Name]bool
	logger   *zap.Logger
	onChange func(Change)
}

// Open loads the flags at path, merges them with the defaults and writes the
// merged set back so the file always lists every capability. A missing file
// is created.
func Open(path string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{path: path, logger: logger}

	flags, err := r.load()
	if err != nil {
		return nil, err
	}
	if err := r.store(flags); err != nil {
		return nil, err
	}
	r.flags = flags
	return r, nil
}

// OnChange registers fn to be called for every flag whose value changes.
// fn runs after the registry lock is released.
func (r *Registry) OnChange(fn func(Change)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Path returns the flags file path.
func (r *Registry) Path() string { return r.path }

// IsEnabled reports whether name is enabled. Unknown names are disabled.
func (r *Registry) IsEnabled(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[name]
}

// All returns a copy of the current flags.
func (r *Registry) All() map[Name]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Name]bool, len(r.flags))
	for n, v := range r.flags {
		out[n] = v
	}
	return out
}

// Describe returns the human description of name, or "" for unknown names.
func (r *Registry) Describe(name Name) string {
	return definitions[name].description
}

// Enable turns name on and persists the change.
func (r *Registry) Enable(name Name) error {
	return r.Update(map[Name]bool{name: true})
}

// Disable turns name off and persists the change.
func (r *Registry) Disable(name Name) error {
	return r.Update(map[Name]bool{name: false})
}

// Update applies every flag in changes. Unknown names reject the whole batch
// before anything is written.
func (r *Registry) Update(changes map[Name]bool) error {
	for n := range changes {
		if !Known(n) {
			return fmt.Errorf("%w: %s", ErrUnknownCapability, n)
		}
	}

	r.mu.Lock()
	flags, err := r.load()
	if err != nil {
		r.mu.Unlock()
		return err
	}
	for n, v := range changes {
		flags[n] = v
	}
	if err := r.store(flags); err != nil {
		r.mu.Unlock()
		return err
	}
	diff, notify := r.swap(flags)
	r.mu.Unlock()

	r.notify(notify, diff)
	for n, v := range changes {
		r.logger.Info("capability updated", zap.String("capability", string(n)), zap.Bool("enabled", v))
	}
	return nil
}

// Reload re-reads the flags file, picking up edits made outside the process.
func (r *Registry) Reload() error {
	r.mu.Lock()
	flags, err := r.load()
	if err != nil {
		r.mu.Unlock()
		return err
	}
	diff, notify := r.swap(flags)
	r.mu.Unlock()

	r.notify(notify, diff)
	return nil
}

// swap replaces the in-memory flags and returns what changed. Caller holds mu.
func (r *Registry) swap(flags map[Name]bool) ([]Change, func(Change)) {
	var diff []Change
	for _, n := range Names() {
		if r.flags[n] != flags[n] {
			diff = append(diff, Change{Name: n, Enabled: flags[n]})
		}
	}
	r.flags = flags
	return diff, r.onChange
}

func (r *Registry) notify(fn func(Change), diff []Change) {
	if fn == nil {
		return
	}
	for _, c := range diff {
		fn(c)
	}
}

// load reads the file and merges it over the defaults.
func (r *Registry) load() (map[Name]bool, error) {
	flags := Defaults()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return flags, nil
		}
		return nil, fmt.Errorf("capability: read %s: %w", r.path, err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("capability: parse %s: %w", r.path, err)
	}
	for k, v := range f.Capabilities {
		if !Known(Name(k)) {
			r.logger.Warn("ignoring unknown capability in flags file", zap.String("capability", k))
			continue
		}
		flags[Name(k)] = v
	}
	return flags, nil
}

func (r *Registry) store(flags map[Name]bool) error {
	f := fileFormat{Capabilities: make(map[string]bool, len(flags))}
	for n, v := range flags {
		f.Capabilities[string(n)] = v
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("capability: encode: %w", err)
	}
	if err := fsutil.WriteFileAtomic(r.path, data, 0o644); err != nil {
		return fmt.Errorf("capability: save: %w", err)
	}
	return nil
}
