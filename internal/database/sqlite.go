// Package database stores observations received by the reference sink.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"PharmacyScanner/internal/models"
)

// Observation is one stored availability payload.
type Observation struct {
	ID         int64     `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
	models.AvailabilityPayload
}

// Filters narrows ListObservations. Zero values mean "any".
type Filters struct {
	PharmacyID string
	Product    string
	Status     models.Status
	Limit      int
	Offset     int
}

// Repository is a thin layer over the SQLite connection.
type Repository struct {
	DB  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS availability (
	"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	"pharmacy_id" TEXT NOT NULL,
	"product" TEXT NOT NULL,
	"status" TEXT NOT NULL,
	"price" REAL,
	"details" TEXT,
	"observed_at" TEXT NOT NULL,
	"received_at" DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_availability_lookup ON availability (pharmacy_id, product, id);`

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating availability table: %w", err)
	}
	return &Repository{DB: db, now: time.Now}, nil
}

// Close closes the connection.
func (repo *Repository) Close() error {
	return repo.DB.Close()
}

// SaveObservation inserts one payload and returns its row id.
func (repo *Repository) SaveObservation(ctx context.Context, p models.AvailabilityPayload) (int64, error) {
	details, err := json.Marshal(p.Details)
	if err != nil {
		return 0, fmt.Errorf("encoding details: %w", err)
	}

	var price sql.NullFloat64
	if p.Price != nil {
		price = sql.NullFloat64{Float64: *p.Price, Valid: true}
	}

	res, err := repo.DB.ExecContext(ctx, `
	INSERT INTO availability (pharmacy_id, product, status, price, details, observed_at, received_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PharmacyID, p.Product, string(p.Status), price, string(details), p.Timestamp, repo.now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting observation: %w", err)
	}
	return res.LastInsertId()
}

// ListObservations returns the newest observations first.
func (repo *Repository) ListObservations(ctx context.Context, f Filters) ([]Observation, error) {
	where, args := f.where()
	query := `SELECT id, pharmacy_id, product, status, price, details, observed_at, received_at FROM availability` +
		where + ` ORDER BY id DESC LIMIT ? OFFSET ?`

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := repo.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var (
			o       Observation
			status  string
			price   sql.NullFloat64
			details sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.PharmacyID, &o.Product, &status, &price, &details, &o.Timestamp, &o.ReceivedAt); err != nil {
			return nil, err
		}
		o.Status = models.Status(status)
		if price.Valid {
			v := price.Float64
			o.Price = &v
		}
		if details.Valid && details.String != "" && details.String != "null" {
			if err := json.Unmarshal([]byte(details.String), &o.Details); err != nil {
				return nil, fmt.Errorf("decoding details of %d: %w", o.ID, err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountObservations counts rows matching f, ignoring paging.
func (repo *Repository) CountObservations(ctx context.Context, f Filters) (int, error) {
	where, args := f.where()
	var n int
	err := repo.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM availability`+where, args...).Scan(&n)
	return n, err
}

func (f Filters) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.PharmacyID != "" {
		conds = append(conds, "pharmacy_id = ?")
		args = append(args, f.PharmacyID)
	}
	if f.Product != "" {
		conds = append(conds, "product = ?")
		args = append(args, f.Product)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
