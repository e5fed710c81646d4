// Package records stores the request records clients submit, together with
// any image uploaded alongside them.
package records

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schemaFS embed.FS

// SavedImageKey is set on a record when an image was stored for it.
const SavedImageKey = "server_saved_image"

// Entry is one stored record.
type Entry struct {
	ID         string         `json:"id"`
	ClientID   any            `json:"client_id,omitempty"`
	SavedImage string         `json:"saved_image,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
	Record     map[string]any `json:"record"`
}

// Store persists records in SQLite in arrival order.
type Store struct {
	db  *sql.DB
	hub *Hub
}

// NewStore applies the schema and returns a Store. hub may be nil.
func NewStore(db *sql.DB, hub *Hub) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, errors.Wrapf(err, "set pragma %q", p)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, errors.Wrap(err, "read schema.sql")
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, errors.Wrap(err, "execute schema")
	}
	return &Store{db: db, hub: hub}, nil
}

// Append stores rec and announces it on the hub.
func (s *Store) Append(ctx context.Context, rec map[string]any) (*Entry, error) {
	if rec == nil {
		rec = map[string]any{}
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode record")
	}

	e := &Entry{
		ID:         uuid.New().String(),
		ClientID:   rec["id"],
		ReceivedAt: time.Now().UTC(),
		Record:     rec,
	}
	if v, ok := rec[SavedImageKey].(string); ok {
		e.SavedImage = v
	}

	var clientID sql.NullString
	if e.ClientID != nil {
		clientID = sql.NullString{String: fmt.Sprint(e.ClientID), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, client_id, saved_image, received_at, payload)
         VALUES (?, ?, ?, ?, ?)`,
		e.ID, clientID, e.SavedImage, e.ReceivedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert record")
	}

	if s.hub != nil {
		s.hub.Publish(*e)
	}
	return e, nil
}

// List returns stored records oldest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT id, saved_image, received_at, payload FROM records ORDER BY seq ASC`
	args := []any{}
	if limit > 0 {
		q = `SELECT id, saved_image, received_at, payload FROM (
                 SELECT seq, id, saved_image, received_at, payload FROM records ORDER BY seq DESC LIMIT ?
             ) ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			ms      int64
			payload string
		)
		if err := rows.Scan(&e.ID, &e.SavedImage, &ms, &payload); err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		e.ReceivedAt = time.UnixMilli(ms).UTC()
		if err := json.Unmarshal([]byte(payload), &e.Record); err != nil {
			return nil, errors.Wrapf(err, "decode record %s", e.ID)
		}
		e.ClientID = e.Record["id"]
		out = append(out, e)
	}
	return out, rows.Err()
}
