package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paulaanasilva/mazephases/internal/events"
)

// Item is a test-application entry the run should be redirected to.
type Item struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ItemService is the external level source.
type ItemService interface {
	// InstantiatePlaygroundItem fetches the level record of the playground item.
	InstantiatePlaygroundItem(ctx context.Context) (*LevelRecord, error)
	// FirstTestApplicationItem returns the first pending test-application
	// item, or nil when there is none.
	FirstTestApplicationItem() *Item
}

// ItemServiceFactory builds the item service for one run.
type ItemServiceFactory func(ctx context.Context, run RunConfiguration) (ItemService, error)

// Navigator sends the game client somewhere else. Navigating is irreversible.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Outcome describes how a Load resolved.
type Outcome struct {
	LoadID    string
	Strategy  Strategy
	Source    Source
	Phases    int
	Navigated bool
	// Err is the acquisition failure that caused the fallback, if any.
	Err *AcquisitionError
}

// Fallback reports whether the hardcoded set replaced the intended content.
func (o Outcome) Fallback() bool {
	return o.Source == SourceHardcoded
}

// Fatal reports whether the swallowed failure was classified as fatal.
func (o Outcome) Fatal() bool {
	return o.Err != nil && !o.Err.Kind.Recoverable()
}

// Status is a snapshot of the sequence for inspection.
type Status struct {
	Loaded      bool        `json:"loaded"`
	LoadID      string      `json:"load_id,omitempty"`
	Strategy    string      `json:"strategy"`
	Source      Source      `json:"source"`
	ProgressKey ProgressKey `json:"progress_key,omitempty"`
	Cursor      int         `json:"cursor"`
	Total       int         `json:"total"`
	Remaining   int         `json:"remaining"`
}

// Loader resolves which phases a run plays and hands them out one at a time.
type Loader struct {
	loadMu sync.Mutex // serializes Load

	mu       sync.Mutex
	phases   []*Descriptor
	cursor   int
	loaded   bool
	loadID   string
	source   Source
	strategy Strategy
	key      ProgressKey

	items     ItemServiceFactory
	navigator Navigator
	hardcoded HardcodedBuilder
	progress  ProgressStore
	logger    *zap.Logger
}

// NewLoader creates a loader that falls back to hardcoded.
func NewLoader(hardcoded HardcodedBuilder, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cursor:    -1,
		hardcoded: hardcoded,
		logger:    logger,
	}
}

// SetItemServices sets the factory used to reach the external item service.
func (l *Loader) SetItemServices(f ItemServiceFactory) {
	l.items = f
}

// SetNavigator sets the navigator used by the test-application path.
func (l *Loader) SetNavigator(n Navigator) {
	l.navigator = n
}

// Load resolves the phase sequence for run. It never fails: any acquisition
// problem is logged and the hardcoded set is loaded instead. The previous
// sequence and cursor are replaced.
func (l *Loader) Load(ctx context.Context, run RunConfiguration) Outcome {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	out := Outcome{
		LoadID:   uuid.NewString(),
		Strategy: SelectStrategy(run),
	}
	events.SetSessionID(out.LoadID)
	events.Emit("info", "phases.load_started", "", map[string]interface{}{
		"load_id":  out.LoadID,
		"strategy": out.Strategy.String(),
	})

	phases, navigated, err := l.acquire(ctx, out.Strategy, run)
	out.Navigated = navigated
	if err == nil && len(phases) == 0 {
		err = ErrEmptyResult
	}

	if err != nil {
		out.Err = classify(out.Strategy, err)
		l.logFailure(out)
		phases = l.fallback(run)
		out.Source = SourceHardcoded
	} else {
		out.Source = SourcePlayground
	}
	out.Phases = len(phases)

	l.mu.Lock()
	l.phases = phases
	l.cursor = -1
	l.loaded = true
	l.loadID = out.LoadID
	l.source = out.Source
	l.strategy = out.Strategy
	l.key = KeyFor(out.Source, run)
	l.mu.Unlock()

	events.Emit("info", "phases.loaded", "", map[string]interface{}{
		"load_id":  out.LoadID,
		"strategy": out.Strategy.String(),
		"source":   string(out.Source),
		"phases":   out.Phases,
	})
	l.logger.Info("phases loaded",
		zap.String("load_id", out.LoadID),
		zap.Stringer("strategy", out.Strategy),
		zap.String("source", string(out.Source)),
		zap.Int("phases", out.Phases))

	return out
}

// acquire runs the selected strategy. navigated is true once the redirect
// side effect has happened, whatever err says.
func (l *Loader) acquire(ctx context.Context, s Strategy, run RunConfiguration) ([]*Descriptor, bool, error) {
	switch s {
	case StrategyPlayground:
		svc, err := l.itemService(ctx, run)
		if err != nil {
			return nil, false, err
		}
		rec, err := svc.InstantiatePlaygroundItem(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("instantiate playground item: %w", err)
		}
		if rec == nil {
			return nil, false, fmt.Errorf("playground item has no record: %w", ErrEmptyResult)
		}
		return []*Descriptor{Convert(rec)}, false, nil

	case StrategyTestApplication:
		svc, err := l.itemService(ctx, run)
		if err != nil {
			return nil, false, err
		}
		item := svc.FirstTestApplicationItem()
		if item == nil || item.URL == "" {
			return nil, false, fmt.Errorf("no test application item: %w", ErrEmptyResult)
		}
		if l.navigator == nil {
			return nil, false, errors.New("no navigator configured")
		}
		if err := l.navigator.Navigate(ctx, item.URL); err != nil {
			return nil, false, fmt.Errorf("navigate to %s: %w", item.URL, err)
		}
		events.Emit("info", "phases.navigated", "", map[string]interface{}{
			"item_id": item.ID,
			"url":     item.URL,
		})
		// The client has left this run; nothing is played in-process.
		return nil, true, fmt.Errorf("redirected to %s: %w", item.URL, ErrEmptyResult)

	default:
		return nil, false, fmt.Errorf("no acquisition strategy applies: %w", ErrEmptyResult)
	}
}

func (l *Loader) itemService(ctx context.Context, run RunConfiguration) (ItemService, error) {
	if l.items == nil {
		return nil, errors.New("no item service configured")
	}
	svc, err := l.items(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("item service: %w", err)
	}
	return svc, nil
}

func (l *Loader) fallback(run RunConfiguration) []*Descriptor {
	testing := run != nil && run.IsAutomaticTesting()
	phases := l.hardcoded.Build(testing)
	if len(phases) == 0 {
		panic("orchestrator: hardcoded phase set is empty")
	}
	return phases
}

func (l *Loader) logFailure(out Outcome) {
	fields := []zap.Field{
		zap.String("load_id", out.LoadID),
		zap.Stringer("strategy", out.Strategy),
		zap.Stringer("kind", out.Err.Kind),
		zap.Error(out.Err.Err),
	}
	switch {
	case out.Navigated:
		l.logger.Info("run redirected, serving hardcoded phases", fields...)
	case out.Fatal():
		l.logger.Error("fatal acquisition failure, serving hardcoded phases", fields...)
	default:
		l.logger.Error("failed to load phases, serving hardcoded phases", fields...)
	}

	events.Emit("warning", "phases.fallback", out.Err.Error(), map[string]interface{}{
		"load_id":   out.LoadID,
		"strategy":  out.Strategy.String(),
		"kind":      out.Err.Kind.String(),
		"navigated": out.Navigated,
	})
}

// NextPhase advances the cursor and returns the phase under it. Past the end
// it returns ErrNoMorePhases and the cursor stays put.
func (l *Loader) NextPhase() (*Descriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return nil, ErrNotLoaded
	}

	if l.cursor+1 >= len(l.phases) {
		if l.cursor < len(l.phases) {
			l.cursor = len(l.phases)
			events.Emit("info", "phase.exhausted", "", map[string]interface{}{
				"load_id":      l.loadID,
				"source":       string(l.source),
				"progress_key": string(l.key),
				"total":        len(l.phases),
			})
			l.saveProgress(0)
		}
		return nil, ErrNoMorePhases
	}

	l.cursor++
	d := l.phases[l.cursor]
	events.Emit("info", "phase.served", "", map[string]interface{}{
		"load_id":      l.loadID,
		"source":       string(l.source),
		"progress_key": string(l.key),
		"index":        l.cursor,
		"name":         d.Name,
	})
	l.saveProgress(l.cursor + 1)
	return d, nil
}

func (l *Loader) saveProgress(next int) {
	if l.progress == nil {
		return
	}
	if err := l.progress.SaveProgress(l.key, next); err != nil {
		l.logger.Warn("failed to save progress",
			zap.String("progress_key", string(l.key)),
			zap.Int("next", next),
			zap.Error(err))
	}
}

// Seek positions the cursor so the next NextPhase returns phase index.
// Seeking to the sequence length drains it.
func (l *Loader) Seek(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return ErrNotLoaded
	}
	if index < 0 || index > len(l.phases) {
		return fmt.Errorf("seek %d: out of range [0,%d]", index, len(l.phases))
	}
	l.cursor = index - 1
	events.Emit("info", "phases.resumed", "", map[string]interface{}{
		"load_id": l.loadID,
		"index":   index,
	})
	return nil
}

// Remaining returns how many phases NextPhase will still hand out.
func (l *Loader) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining()
}

func (l *Loader) remaining() int {
	if !l.loaded {
		return 0
	}
	if n := len(l.phases) - (l.cursor + 1); n > 0 {
		return n
	}
	return 0
}

// Status returns a snapshot of the current sequence.
func (l *Loader) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Loaded:      l.loaded,
		LoadID:      l.loadID,
		Strategy:    l.strategy.String(),
		Source:      l.source,
		ProgressKey: l.key,
		Cursor:      l.cursor,
		Total:       len(l.phases),
		Remaining:   l.remaining(),
	}
}
