package orchestrator

import (
	"context"

	"github.com/paulaanasilva/mazephases/internal/storage/postgres"
)

// DefaultRestoreLimit is the default number of events replayed on resume.
const DefaultRestoreLimit = 1000

// ProgressKey names the sequence progress is stored under.
type ProgressKey string

// ItemTarget is implemented by run configurations that name a playground
// item.
type ItemTarget interface {
	PlaygroundTarget() (baseURL, itemID string)
}

// KeyFor returns the progress key of a sequence loaded from source for run.
func KeyFor(source Source, run RunConfiguration) ProgressKey {
	switch source {
	case SourceHardcoded:
		if run != nil && run.IsAutomaticTesting() {
			return "hardcoded:testing"
		}
		return "hardcoded"
	case SourcePlayground:
		if t, ok := run.(ItemTarget); ok {
			if _, id := t.PlaygroundTarget(); id != "" {
				return ProgressKey("playground:" + id)
			}
		}
		return "playground"
	default:
		return "none"
	}
}

// ProgressStore remembers, per sequence, which phase a run should play next.
type ProgressStore interface {
	SaveProgress(key ProgressKey, next int) error
	LoadProgress(ctx context.Context, key ProgressKey) (next int, ok bool, err error)
}

// EventQuerier is the part of the event store needed to replay progress.
type EventQuerier interface {
	Query(ctx context.Context, limit int, names ...string) ([]postgres.EventRow, error)
}

// EventProgress derives progress from persisted phase.served and
// phase.exhausted events. Saving is a no-op: the events are already
// persisted by the emitter.
type EventProgress struct {
	Events EventQuerier
	Limit  int
}

func (p *EventProgress) SaveProgress(ProgressKey, int) error {
	return nil
}

// LoadProgress replays the event log for key.
func (p *EventProgress) LoadProgress(ctx context.Context, key ProgressKey) (int, bool, error) {
	if p == nil || p.Events == nil {
		return 0, false, nil
	}

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultRestoreLimit
	}

	rows, err := p.Events.Query(ctx, limit, "phase.served", "phase.exhausted")
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}

	// Query returns newest first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	next, found := 0, false
	for _, row := range rows {
		if k, _ := row.Fields["progress_key"].(string); k != string(key) {
			continue
		}
		switch row.Event {
		case "phase.served":
			// JSONB numbers come back as float64.
			if idx, ok := row.Fields["index"].(float64); ok {
				next = int(idx) + 1
				found = true
			}
		case "phase.exhausted":
			next = 0
			found = true
		}
	}

	return next, found, nil
}

// SetProgressStore enables resume and progress tracking.
func (l *Loader) SetProgressStore(p ProgressStore) {
	l.progress = p
}

// Resume moves the cursor to the stored progress for the current sequence.
// Progress at or beyond the end of the sequence is ignored so a finished
// campaign starts over. It returns the index the next phase will have.
func (l *Loader) Resume(ctx context.Context) (int, error) {
	if l.progress == nil {
		return 0, nil
	}

	st := l.Status()
	if !st.Loaded {
		return 0, ErrNotLoaded
	}

	next, ok, err := l.progress.LoadProgress(ctx, st.ProgressKey)
	if err != nil {
		return 0, err
	}
	if !ok || next <= 0 || next >= st.Total {
		return 0, nil
	}

	if err := l.Seek(next); err != nil {
		return 0, err
	}
	return next, nil
}
