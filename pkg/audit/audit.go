// Package audit keeps the append-only journals of what the assistant was
// asked, what it did, what failed and which consent decisions were made.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cgast/agdesk/internal/fsutil"
	"github.com/cgast/agdesk/pkg/confirm"
	"github.com/cgast/agdesk/pkg/intent"
)

const (
	DefaultMaxEntries = 1000
	DefaultMaxSize    = 5 * 1024 * 1024
	DefaultMaxFiles   = 5

	HistoryFile = "history.json"
	ErrorsFile  = "errors.json"
	ConsentFile = "consents.json"
)

// IntentRecord is the journaled form of an intent. It decodes without the
// required-field checks of intent.Intent so old entries always load.
type IntentRecord struct {
	Type    string         `json:"intent"`
	Target  string         `json:"target"`
	Options map[string]any `json:"options"`
}

// Interaction is one processed utterance.
type Interaction struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserInput string         `json:"user_input"`
	Intent    IntentRecord   `json:"intent"`
	Result    map[string]any `json:"result"`
	Success   bool           `json:"success"`
}

// ErrorEntry is a failure worth keeping outside the interaction stream.
type ErrorEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error"`
	Context   map[string]any `json:"context"`
}

// ConsentEntry is one consent decision, whether or not it was remembered.
type ConsentEntry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Action    string          `json:"action"`
	Target    string          `json:"target"`
	Outcome   confirm.Outcome `json:"outcome"`
	Allowed   bool            `json:"allowed"`
	Permanent bool            `json:"permanent"`
	Cancelled bool            `json:"cancelled"`
}

// Options tune the journals. Zero values take the defaults.
type Options struct {
	MaxEntries int
	MaxSize    int64
	MaxFiles   int
	Logger     *zap.Logger
	Now        func() time.Time
}

// Log owns the journals in one directory.
type Log struct {
	mu       sync.Mutex
	dir      string
	logger   *zap.Logger
	now      func() time.Time
	history  *journal[Interaction]
	errors   *journal[ErrorEntry]
	consents *journal[ConsentEntry]
}

// Open creates dir if needed and returns a Log writing into it.
func Open(dir string, opts Options) (*Log, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create %s: %w", dir, err)
	}

	l := &Log{dir: dir, logger: opts.Logger, now: opts.Now}
	l.history = newJournal[Interaction](filepath.Join(dir, HistoryFile), opts)
	l.errors = newJournal[ErrorEntry](filepath.Join(dir, ErrorsFile), opts)
	l.consents = newJournal[ConsentEntry](filepath.Join(dir, ConsentFile), opts)
	return l, nil
}

func newJournal[T any](path string, opts Options) *journal[T] {
	return &journal[T]{
		path:       path,
		maxEntries: opts.MaxEntries,
		maxSize:    opts.MaxSize,
		maxFiles:   opts.MaxFiles,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// Dir returns the journal directory.
func (l *Log) Dir() string { return l.dir }

// LogInteraction records an utterance, the intent it became and the result.
// Success is taken from the result's "success" field.
func (l *Log) LogInteraction(userInput string, in intent.Intent, result map[string]any) error {
	success, _ := result["success"].(bool)
	e := Interaction{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		UserInput: userInput,
		Intent:    IntentRecord{Type: string(in.Type), Target: in.Target, Options: in.Options.Clone()},
		Result:    result,
		Success:   success,
	}

	l.mu.Lock()
	err := l.history.append(e)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.logger.Debug("logged interaction", zap.String("intent", string(in.Type)), zap.Bool("success", success))
	return nil
}

// LogError records a failure with optional context.
func (l *Log) LogError(msg string, ctx map[string]any) error {
	if ctx == nil {
		ctx = map[string]any{}
	}
	e := ErrorEntry{ID: uuid.NewString(), Timestamp: l.now(), Error: msg, Context: ctx}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors.append(e)
}

// LogConsent records a consent decision.
func (l *Log) LogConsent(action, target string, res confirm.Result) error {
	e := ConsentEntry{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Action:    action,
		Target:    target,
		Outcome:   res.Outcome(),
		Allowed:   res.Allowed,
		Permanent: res.Permanent,
		Cancelled: res.Cancelled,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consents.append(e)
}

// RecentInteractions returns up to n of the newest interactions.
func (l *Log) RecentInteractions(n int) ([]Interaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history.recent(n)
}

// RecentErrors returns up to n of the newest errors.
func (l *Log) RecentErrors(n int) ([]ErrorEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors.recent(n)
}

// RecentConsents returns up to n of the newest consent decisions.
func (l *Log) RecentConsents(n int) ([]ConsentEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.consents.recent(n)
}

// Stats summarizes the current journals.
type Stats struct {
	TotalInteractions      int            `json:"total_interactions"`
	SuccessfulInteractions int            `json:"successful_interactions"`
	FailedInteractions     int            `json:"failed_interactions"`
	TotalErrors            int            `json:"total_errors"`
	TotalConsentDecisions  int            `json:"total_consent_decisions"`
	IntentCounts           map[string]int `json:"most_used_intents"`
	LastDay                int            `json:"recent_activity"`
}

// Statistics computes Stats over the live journals. Archives are not read.
func (l *Log) Statistics() (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{IntentCounts: map[string]int{}}

	history, err := l.history.load()
	if err != nil {
		return stats, err
	}
	dayAgo := l.now().Add(-24 * time.Hour)
	for _, e := range history {
		stats.TotalInteractions++
		if e.Success {
			stats.SuccessfulInteractions++
		} else {
			stats.FailedInteractions++
		}
		name := e.Intent.Type
		if name == "" {
			name = "unknown"
		}
		stats.IntentCounts[name]++
		if e.Timestamp.After(dayAgo) {
			stats.LastDay++
		}
	}

	errs, err := l.errors.load()
	if err != nil {
		return stats, err
	}
	stats.TotalErrors = len(errs)

	consents, err := l.consents.load()
	if err != nil {
		return stats, err
	}
	stats.TotalConsentDecisions = len(consents)
	return stats, nil
}

type export struct {
	ExportedAt   time.Time      `json:"exported_at"`
	Statistics   Stats          `json:"statistics"`
	Interactions []Interaction  `json:"interactions"`
	Errors       []ErrorEntry   `json:"errors"`
	Consents     []ConsentEntry `json:"consents"`
}

// Export writes every live journal plus statistics to one JSON file.
func (l *Log) Export(path string) error {
	stats, err := l.Statistics()
	if err != nil {
		return err
	}

	l.mu.Lock()
	doc := export{ExportedAt: l.now(), Statistics: stats}
	doc.Interactions, err = l.history.load()
	if err == nil {
		doc.Errors, err = l.errors.load()
	}
	if err == nil {
		doc.Consents, err = l.consents.load()
	}
	l.mu.Unlock()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: encode export: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("audit: export: %w", err)
	}
	return nil
}

// Clear removes every journal and archive.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.history.clear(); err != nil {
		return err
	}
	if err := l.errors.clear(); err != nil {
		return err
	}
	return l.consents.clear()
}
