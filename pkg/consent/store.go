// Package consent remembers permanent operator grants for (action, target)
// pairs and asks the operator through a confirm.Prompt when no valid grant
// exists.
package consent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/cgast/agdesk/pkg/confirm"
)

// DefaultExpiry is how long a permanent grant stays valid.
const DefaultExpiry = 30 * 24 * time.Hour

var bucketConsents = []byte("consents")

// Record is a stored grant.
type Record struct {
	Key       string    `json:"key"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
	Permanent bool      `json:"permanent"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the record still short-circuits the prompt at now.
func (r Record) Valid(now time.Time) bool {
	return r.Permanent && now.Before(r.ExpiresAt)
}

// Key hashes an (action, target) pair. Targets are used as given; "chrome"
// and "/usr/bin/chrome" are different keys.
func Key(action, target string) string {
	sum := sha256.Sum256([]byte(action + ":" + target))
	return hex.EncodeToString(sum[:])
}

// Journal receives every prompted decision.
type Journal interface {
	LogConsent(action, target string, res confirm.Result) error
}

// Store is a bbolt-backed consent store.
type Store struct {
	db      *bolt.DB
	mu      sync.Mutex
	prompt  confirm.Prompt
	journal Journal
	now     func() time.Time
	expiry  time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithExpiry sets how long permanent grants last.
func WithExpiry(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithTimeout sets the prompt deadline for requests that carry none.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens or creates the store at path. prompt asks the operator; a nil
// prompt denies everything. journal may be nil.
func Open(path string, prompt confirm.Prompt, journal Journal, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("consent: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketConsents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("consent: init bucket: %w", err)
	}

	if prompt == nil {
		prompt = confirm.Deny{}
	}
	s := &Store{
		db:      db,
		prompt:  prompt,
		journal: journal,
		now:     time.Now,
		expiry:  DefaultExpiry,
		timeout: confirm.DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ConfirmAction returns allowed-permanent at once when a valid grant exists.
// Otherwise it asks the prompt, stores a new grant when the answer is
// allowed-permanent, and journals the decision. Storage faults are logged
// and never turn a denial into an allow.
func (s *Store) ConfirmAction(ctx context.Context, req confirm.Request) confirm.Result {
	if req.Description == "" {
		req.Description = confirm.DefaultDescription(req.Action, req.Target)
	}
	if req.Timeout <= 0 {
		req.Timeout = s.timeout
	}
	key := Key(req.Action, req.Target)

	rec, ok, err := s.get(key)
	if err != nil {
		s.logger.Warn("consent lookup failed", zap.String("action", req.Action), zap.Error(err))
	}
	if ok && rec.Valid(s.now()) {
		s.logger.Info("using stored consent", zap.String("action", req.Action), zap.String("target", req.Target))
		return confirm.AllowedPermanent()
	}

	res := s.prompt.Confirm(ctx, req)

	if res.Allowed && res.Permanent {
		now := s.now()
		rec := Record{
			Key:       key,
			Action:    req.Action,
			Target:    req.Target,
			Timestamp: now,
			Permanent: true,
			ExpiresAt: now.Add(s.expiry),
		}
		if err := s.put(rec); err != nil {
			s.logger.Warn("consent not persisted", zap.String("action", req.Action), zap.Error(err))
		}
	}

	if s.journal != nil {
		if err := s.journal.LogConsent(req.Action, req.Target, res); err != nil {
			s.logger.Warn("consent decision not journaled", zap.Error(err))
		}
	}
	s.logger.Info("consent decision",
		zap.String("action", req.Action),
		zap.String("target", req.Target),
		zap.String("outcome", res.String()))
	return res
}

// Revoke removes the grant for (action, target). It reports whether a
// record existed.
func (s *Store) Revoke(action, target string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConsents)
		key := []byte(Key(action, target))
		if b.Get(key) == nil {
			return nil
		}
		removed = true
		return b.Delete(key)
	})
	if err != nil {
		return false, fmt.Errorf("consent: revoke %s: %w", action, err)
	}
	return removed, nil
}

// RevokeAll removes every grant for action and returns how many there were.
func (s *Store) RevokeAll(action string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConsents)
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			if rec.Action == action {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("consent: revoke %s: %w", action, err)
	}
	return removed, nil
}

// List returns every stored record, newest first.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConsents).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("consent: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Clear removes every record.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketConsents); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketConsents)
		return err
	})
	if err != nil {
		return fmt.Errorf("consent: clear: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec Record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketConsents).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return Record{}, false, err
	}
	return rec, found, nil
}

func (s *Store) put(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConsents).Put([]byte(rec.Key), data)
	})
}
