// Package catalog persists deduplicated product rows to SQLite and
// exposes the read-only query surface the external viewer consumes.
//
// Materialization is end-of-run and transactional: the traversal never
// writes partial product rows, only optional raw-debug artifacts.
package catalog

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver dbopen expects

	"github.com/pricecheckph/shelfwatch/dbopen"
	"github.com/pricecheckph/shelfwatch/product"
)

// Run is one harvest run's metadata row.
type Run struct {
	ID            string    `json:"id"`
	Branch        string    `json:"branch"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	TotalProducts int       `json:"total_products"`
	APIPages      int       `json:"api_pages"`
	SeedURL       string    `json:"seed_url"`
	BreakReason   string    `json:"break_reason"`
	StoreOutcome  string    `json:"store_outcome"`
}

// Store wraps the catalog database.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the catalog database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	return &Store{DB: db}, nil
}

// NewStore wraps an already-opened database. The caller is responsible
// for the schema (tests use dbopen.OpenMemory + ApplySchema).
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.DB.Close() }

// SaveRun materializes a finished run and its deduplicated products in
// one transaction. An empty product slice is valid: a total-failure run
// still records its metadata.
func (s *Store) SaveRun(ctx context.Context, run *Run, products []*product.Product) error {
	run.TotalProducts = len(products)
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, branch, started_at, finished_at, total_products,
			api_pages, seed_url, break_reason, store_outcome)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Branch, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
			run.TotalProducts, run.APIPages, run.SeedURL, run.BreakReason, run.StoreOutcome,
		)
		if err != nil {
			return fmt.Errorf("catalog: insert run: %w", err)
		}
		for _, p := range products {
			_, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO products (run_id, id, name, price, size_value,
				size_unit, unit_price, url, source, branch, source_page, api_page, collected_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, p.ID, p.Name, nullable(p.Price), nullable(p.SizeValue),
				string(p.SizeUnit), nullable(p.UnitPrice), p.URL, p.Source, p.Branch,
				p.SourcePage, p.APIPage, p.CollectedAt.UnixMilli(),
			)
			if err != nil {
				return fmt.Errorf("catalog: insert product %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// LatestRun returns the most recent run, or nil when none exist.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, branch, started_at, finished_at, total_products, api_pages,
		seed_url, break_reason, store_outcome
		FROM runs ORDER BY finished_at DESC LIMIT 1`)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, branch, started_at, finished_at, total_products, api_pages,
		seed_url, break_reason, store_outcome
		FROM runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var started, finished int64
	err := row.Scan(&r.ID, &r.Branch, &started, &finished, &r.TotalProducts,
		&r.APIPages, &r.SeedURL, &r.BreakReason, &r.StoreOutcome)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("catalog: scan run: %w", err)
	}
	r.StartedAt = time.UnixMilli(started)
	r.FinishedAt = time.UnixMilli(finished)
	return &r, nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// csvHeader mirrors the persisted products table column order.
var csvHeader = []string{
	"id", "name", "price", "size_value", "size_unit", "unit_price",
	"url", "source", "branch", "source_page", "api_page", "collected_at",
}

// WriteCSV writes products to w with a header row, mirroring the
// persisted table.
func WriteCSV(w io.Writer, products []*product.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("catalog: csv header: %w", err)
	}
	for _, p := range products {
		rec := []string{
			p.ID, p.Name, formatFloat(p.Price), formatFloat(p.SizeValue),
			string(p.SizeUnit), formatFloat(p.UnitPrice), p.URL, p.Source, p.Branch,
			strconv.Itoa(p.SourcePage), strconv.Itoa(p.APIPage),
			p.CollectedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("catalog: csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
