// Package eventstore defines the append-only event gateway every
// pipeline artifact is persisted through, and ships two backends: an
// in-memory store used by default and by every unit test, and a
// Postgres store for production deployments. It generalizes the
// teacher's internal/data.Store (a mutex-guarded cache with an
// append/load shape) from a disk-JSON OHLCV cache into an
// append-only, multi-backend event gateway.
package eventstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/llmcouncil/macrotrader/pkg/council"
)

// Gateway is the append-only contract every event-store backend
// implements: append a new event, list events for a week (optionally
// filtered by type), and fetch the latest event of a given type.
type Gateway interface {
	Append(ctx context.Context, weekID council.WeekId, accountID *council.AccountId, eventType council.EventType, payload any) (council.Event, error)
	List(ctx context.Context, weekID council.WeekId, eventType council.EventType) ([]council.Event, error)
	Latest(ctx context.Context, weekID council.WeekId, eventType council.EventType) (council.Event, bool, error)
	ListAll(ctx context.Context, weekID council.WeekId) ([]council.Event, error)
}

func marshalPayload(payload any) ([]byte, error) {
	if b, ok := payload.([]byte); ok {
		return b, nil
	}
	return json.Marshal(payload)
}

// Decode unmarshals an event's JSON payload into v.
func Decode(e council.Event, v any) error {
	return json.Unmarshal(e.Payload, v)
}

// clockNow exists so tests can't accidentally depend on wall-clock
// ordering beyond "append order" — backends stamp CreatedAt
// themselves, this is just the shared default.
func clockNow() time.Time { return time.Now().UTC() }
