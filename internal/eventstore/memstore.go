package eventstore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/councilerr"
	"github.com/llmcouncil/macrotrader/internal/metrics"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// MemStore is the in-memory Gateway backend, guarded by a single
// sync.RWMutex exactly as internal/data.Store guards its cache: list
// reads take RLock, appends take Lock. It is the default backend when
// no Postgres DSN is configured, and the backend every package's unit
// tests use.
type MemStore struct {
	mu     sync.RWMutex
	logger *zap.Logger
	events []council.Event
	nextID int64
}

// NewMemStore returns an empty in-memory event store.
func NewMemStore(logger *zap.Logger) *MemStore {
	return &MemStore{logger: logger}
}

func (m *MemStore) Append(ctx context.Context, weekID council.WeekId, accountID *council.AccountId, eventType council.EventType, payload any) (council.Event, error) {
	select {
	case <-ctx.Done():
		return council.Event{}, &councilerr.CancellationError{Stage: "eventstore.append"}
	default:
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return council.Event{}, &councilerr.PersistenceError{Op: "append", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ev := council.Event{
		EventID:   m.nextID,
		WeekId:    weekID,
		AccountId: accountID,
		EventType: eventType,
		CreatedAt: clockNow(),
		Payload:   raw,
	}
	m.events = append(m.events, ev)
	metrics.EventsAppendedTotal.WithLabelValues(string(eventType)).Inc()
	if m.logger != nil {
		m.logger.Debug("event appended", zap.String("week_id", string(weekID)), zap.String("event_type", string(eventType)), zap.Int64("event_id", ev.EventID))
	}
	return ev, nil
}

func (m *MemStore) List(ctx context.Context, weekID council.WeekId, eventType council.EventType) ([]council.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []council.Event
	for _, e := range m.events {
		if e.WeekId == weekID && e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) ListAll(ctx context.Context, weekID council.WeekId) ([]council.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []council.Event
	for _, e := range m.events {
		if e.WeekId == weekID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) Latest(ctx context.Context, weekID council.WeekId, eventType council.EventType) (council.Event, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest council.Event
	found := false
	for _, e := range m.events {
		if e.WeekId == weekID && e.EventType == eventType {
			latest = e
			found = true
		}
	}
	return latest, found, nil
}

// Size returns the total number of events appended, across all weeks.
func (m *MemStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
