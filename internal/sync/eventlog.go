package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mind-engage/mindengage-testprep/internal/db"
)

const (
	TypeAttemptStarted   = "AttemptStarted"
	TypeAttemptSubmitted = "AttemptSubmitted"
	TypeAttemptCancelled = "AttemptCancelled"
	TypeAttemptRegraded  = "AttemptRegraded"
)

type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// Execer is satisfied by *sql.DB and *sql.Tx so events can join the
// transaction that produced them.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type EventRepo struct {
	driver db.Driver
	siteID string
}

func NewEventRepo(driver db.Driver, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{driver: driver, siteID: siteID}
}

// Append records typ for key with data marshalled as JSON.
func (r *EventRepo) Append(ctx context.Context, ex Execer, typ, key string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, db.Rebind(r.driver,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`),
		r.siteID, typ, key, string(b), time.Now().Unix())
	return err
}

// List returns events for key in append order.
func (r *EventRepo) List(ctx context.Context, q Queryer, key string) ([]Event, error) {
	rows, err := q.QueryContext(ctx, db.Rebind(r.driver,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE key=$1 ORDER BY seq`), key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
