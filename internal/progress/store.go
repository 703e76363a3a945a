// Package progress remembers, per phase sequence, which phase a player
// should see next. Data lives in the user's data directory through gdata.
package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quasilyte/gdata/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/paulaanasilva/mazephases/internal/orchestrator"
)

const progressObject = "progress"

// Record is the persisted progress for one sequence.
type Record struct {
	Next      int       `yaml:"next"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Store is an orchestrator.ProgressStore. With a nil manager it keeps
// progress in memory only.
type Store struct {
	manager *gdata.Manager
	logger  *zap.Logger

	mu     sync.Mutex
	memory map[orchestrator.ProgressKey]Record
	now    func() time.Time
}

// Open opens the gdata storage for appName. If the storage cannot be
// opened the store falls back to memory and the error is logged.
func Open(appName string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	manager, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		logger.Warn("progress storage unavailable, keeping progress in memory",
			zap.String("app", appName), zap.Error(err))
		manager = nil
	}
	return New(manager, logger)
}

// New wraps an open manager, which may be nil.
func New(manager *gdata.Manager, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		manager: manager,
		logger:  logger,
		memory:  make(map[orchestrator.ProgressKey]Record),
		now:     time.Now,
	}
}

// Persistent reports whether progress survives a restart.
func (s *Store) Persistent() bool {
	return s.manager != nil
}

// propName turns key into a file-safe property name. Letters, digits, '-'
// and '.' are kept; anything else is written as _<hex>.
func propName(key orchestrator.ProgressKey) string {
	if key == "" {
		return "none"
	}
	var b strings.Builder
	for _, r := range string(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "_%x", r)
		}
	}
	return b.String()
}

// SaveProgress records that next is the index to play for key.
func (s *Store) SaveProgress(key orchestrator.ProgressKey, next int) error {
	rec := Record{Next: next, UpdatedAt: s.now().UTC()}

	s.mu.Lock()
	s.memory[key] = rec
	s.mu.Unlock()

	if s.manager == nil {
		return nil
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := s.manager.SaveObjectProp(progressObject, propName(key), data); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// LoadProgress returns the stored index for key.
func (s *Store) LoadProgress(_ context.Context, key orchestrator.ProgressKey) (int, bool, error) {
	rec, ok, err := s.Load(key)
	if err != nil || !ok {
		return 0, false, err
	}
	return rec.Next, true, nil
}

// Load returns the full record for key.
func (s *Store) Load(key orchestrator.ProgressKey) (Record, bool, error) {
	if s.manager == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		rec, ok := s.memory[key]
		return rec, ok, nil
	}

	prop := propName(key)
	if !s.manager.ObjectPropExists(progressObject, prop) {
		return Record{}, false, nil
	}

	data, err := s.manager.LoadObjectProp(progressObject, prop)
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to load progress: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	if rec.Next < 0 {
		return Record{}, false, fmt.Errorf("corrupt progress for %s: next=%d", prop, rec.Next)
	}
	return rec, true, nil
}
