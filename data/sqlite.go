package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id         TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteDirectory stores incidents as JSON documents in SQLite
type SQLiteDirectory struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the incident database at path
func OpenSQLite(path string) (*SQLiteDirectory, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps sqlite happy
	db.SetMaxOpenConns(1)

	d := &SQLiteDirectory{db: db}
	if err := d.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Migrate creates the schema
func (d *SQLiteDirectory) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate incidents: %w", err)
	}
	return nil
}

// Seed loads incidents when the table is empty
func (d *SQLiteDirectory) Seed(ctx context.Context, incidents []*Incident) error {
	var count int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, inc := range incidents {
		if err := d.Put(ctx, inc); err != nil {
			return err
		}
	}
	log.Printf("[data] seeded %d incidents", len(incidents))
	return nil
}

// Put inserts or replaces an incident
func (d *SQLiteDirectory) Put(ctx context.Context, inc *Incident) error {
	body, err := marshalIncident(inc)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO incidents (id, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		inc.ID, string(body))
	if err != nil {
		return fmt.Errorf("put incident %s: %w", inc.ID, err)
	}
	return nil
}

func (d *SQLiteDirectory) FindByID(ctx context.Context, id string) (*Incident, error) {
	return findIncident(ctx, d.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findIncident(ctx context.Context, q queryer, id string) (*Incident, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM incidents WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalIncident([]byte(body))
}

func (d *SQLiteDirectory) List(ctx context.Context) ([]*Incident, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT body FROM incidents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*Incident
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		inc, err := unmarshalIncident([]byte(body))
		if err != nil {
			log.Printf("[data] skipping unreadable incident: %v", err)
			continue
		}
		list = append(list, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortIncidents(list)
	return list, nil
}

func (d *SQLiteDirectory) SetResponderLocation(ctx context.Context, id string, loc Location) (Location, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Location{}, err
	}
	defer tx.Rollback()

	inc, err := findIncident(ctx, tx, id)
	if err != nil {
		return Location{}, err
	}
	prev := inc.ResponderLocation
	inc.ResponderLocation = loc

	body, err := marshalIncident(inc)
	if err != nil {
		return Location{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE incidents SET body = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(body), id); err != nil {
		return Location{}, err
	}
	return prev, tx.Commit()
}

// Close closes the database
func (d *SQLiteDirectory) Close() error {
	return d.db.Close()
}
