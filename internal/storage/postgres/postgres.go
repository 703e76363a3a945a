package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/paulaanasilva/mazephases/internal/config"
)

// EventRow is an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	GameID    string                 `json:"game_id"`
	LoadID    *string                `json:"load_id,omitempty"`
}

// Client manages the Postgres connection for the phase event log.
type Client struct {
	db     *sql.DB
	gameID string
}

// ConnString builds a lib/pq connection string from PG* environment variables.
// PGPASSWORD honours the *_FILE convention.
func ConnString() (string, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "mazephases")
	dbname := getEnv("PGDATABASE", "mazephases")
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return "", err
	}

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname), nil
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname), nil
}

// New connects to Postgres and makes sure the events table exists.
// Callers treat an error as "run without persistence".
func New(ctx context.Context, gameID string) (*Client, error) {
	connStr, err := ConnString()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:     db,
		gameID: gameID,
	}

	if err := client.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create phase_events table: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS phase_events (
			event_id BIGSERIAL PRIMARY KEY,
			ts       TIMESTAMPTZ NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   JSONB,
			game_id  TEXT NOT NULL,
			load_id  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_phase_events_ts ON phase_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_phase_events_game_event ON phase_events(game_id, event);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

// Append inserts an event. It satisfies events.Store.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, loadID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var loadPtr *string
	if loadID != "" {
		loadPtr = &loadID
	}

	query := `
		INSERT INTO phase_events (ts, level, event, msg, fields, game_id, load_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.gameID, loadPtr)
	return err
}

// Query returns the last N events, newest first. When names is non-empty
// only those event names are returned.
func (c *Client) Query(ctx context.Context, limit int, names ...string) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	var (
		rows *sql.Rows
		err  error
	)
	if len(names) == 0 {
		rows, err = c.db.QueryContext(ctx, `
			SELECT event_id, ts, level, event, msg, fields, game_id, load_id
			FROM phase_events
			WHERE game_id = $1
			ORDER BY ts DESC, event_id DESC
			LIMIT $2
		`, c.gameID, limit)
	} else {
		rows, err = c.db.QueryContext(ctx, `
			SELECT event_id, ts, level, event, msg, fields, game_id, load_id
			FROM phase_events
			WHERE game_id = $1 AND event = ANY($2)
			ORDER BY ts DESC, event_id DESC
			LIMIT $3
		`, c.gameID, pq.Array(names), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, loadID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.GameID, &loadID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if loadID.Valid {
			e.LoadID = &loadID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
