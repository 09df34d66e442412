package eventstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/llmcouncil/macrotrader/internal/councilerr"
	"github.com/llmcouncil/macrotrader/internal/metrics"
	"github.com/llmcouncil/macrotrader/pkg/council"
)

// schemaDDL creates the events table if it does not already exist.
// Run once at PGStore construction, the way the teacher's data.Store
// creates its data directory in NewStore.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	event_id   BIGSERIAL PRIMARY KEY,
	week_id    TEXT NOT NULL,
	account_id TEXT NULL,
	event_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS events_week_type_idx ON events (week_id, event_type);
`

// PGStore is the Postgres-backed Gateway implementation, used in
// production when COUNCIL_EVENT_STORE_DSN is configured.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPGStore connects to dsn, creates the events table if missing,
// and returns a ready Gateway.
func NewPGStore(ctx context.Context, dsn string, logger *zap.Logger) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &councilerr.PersistenceError{Op: "connect", Err: err}
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, &councilerr.PersistenceError{Op: "migrate", Err: err}
	}
	return &PGStore{pool: pool, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (p *PGStore) Close() { p.pool.Close() }

func (p *PGStore) Append(ctx context.Context, weekID council.WeekId, accountID *council.AccountId, eventType council.EventType, payload any) (council.Event, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return council.Event{}, &councilerr.PersistenceError{Op: "append", Err: err}
	}

	var acct *string
	if accountID != nil {
		s := string(*accountID)
		acct = &s
	}

	var ev council.Event
	now := clockNow()
	row := p.pool.QueryRow(ctx,
		`INSERT INTO events (week_id, account_id, event_type, created_at, payload)
		 VALUES ($1, $2, $3, $4, $5) RETURNING event_id`,
		string(weekID), acct, string(eventType), now, raw)
	if err := row.Scan(&ev.EventID); err != nil {
		return council.Event{}, &councilerr.PersistenceError{Op: "append", Err: err}
	}
	ev.WeekId = weekID
	ev.AccountId = accountID
	ev.EventType = eventType
	ev.CreatedAt = now
	ev.Payload = raw
	metrics.EventsAppendedTotal.WithLabelValues(string(eventType)).Inc()
	return ev, nil
}

func (p *PGStore) List(ctx context.Context, weekID council.WeekId, eventType council.EventType) ([]council.Event, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT event_id, week_id, account_id, event_type, created_at, payload
		 FROM events WHERE week_id = $1 AND event_type = $2 ORDER BY event_id ASC`,
		string(weekID), string(eventType))
	if err != nil {
		return nil, &councilerr.PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (p *PGStore) ListAll(ctx context.Context, weekID council.WeekId) ([]council.Event, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT event_id, week_id, account_id, event_type, created_at, payload
		 FROM events WHERE week_id = $1 ORDER BY event_id ASC`,
		string(weekID))
	if err != nil {
		return nil, &councilerr.PersistenceError{Op: "list_all", Err: err}
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (p *PGStore) Latest(ctx context.Context, weekID council.WeekId, eventType council.EventType) (council.Event, bool, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT event_id, week_id, account_id, event_type, created_at, payload
		 FROM events WHERE week_id = $1 AND event_type = $2 ORDER BY event_id DESC LIMIT 1`,
		string(weekID), string(eventType))

	ev, err := scanEventRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return council.Event{}, false, nil
		}
		return council.Event{}, false, &councilerr.PersistenceError{Op: "latest", Err: err}
	}
	return ev, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEventRow(row rowScanner) (council.Event, error) {
	var ev council.Event
	var acct *string
	if err := row.Scan(&ev.EventID, (*string)(&ev.WeekId), &acct, (*string)(&ev.EventType), &ev.CreatedAt, &ev.Payload); err != nil {
		return council.Event{}, err
	}
	if acct != nil {
		a := council.AccountId(*acct)
		ev.AccountId = &a
	}
	return ev, nil
}

func scanEvents(rows pgx.Rows) ([]council.Event, error) {
	var out []council.Event
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, &councilerr.PersistenceError{Op: "scan", Err: err}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
