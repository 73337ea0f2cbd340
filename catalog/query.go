package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pricecheckph/shelfwatch/product"
)

// ErrNoCatalog is returned when the products table does not exist yet.
// Viewers surface it as "run the harvester first".
var ErrNoCatalog = errors.New("catalog: no catalog table, run the harvester first")

// sortColumns is the whitelist of sortable columns for the read-only
// query surface.
var sortColumns = map[string]bool{
	"name":         true,
	"price":        true,
	"unit_price":   true,
	"collected_at": true,
}

// Query selects products from the latest run (or a specific run when
// RunID is set), optionally filtered by a case-insensitive name
// substring.
type Query struct {
	RunID   string
	NameHas string
	SortBy  string // name | price | unit_price | collected_at
	Desc    bool
	Limit   int
}

// Search runs a read-only product query. An empty result is a normal
// outcome, not an error. A database without the products table yields
// ErrNoCatalog.
func (s *Store) Search(ctx context.Context, q Query) ([]*product.Product, error) {
	runID := q.RunID
	if runID == "" {
		latest, err := s.LatestRun(ctx)
		if err != nil {
			return nil, wrapQueryErr(err)
		}
		if latest == nil {
			return nil, nil
		}
		runID = latest.ID
	}

	sortBy := q.SortBy
	if !sortColumns[sortBy] {
		sortBy = "name"
	}
	order := "ASC"
	if q.Desc {
		order = "DESC"
	}
	limit := q.Limit
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}

	sqlq := `SELECT id, name, price, size_value, size_unit, unit_price, url,
		source, branch, source_page, api_page, collected_at
		FROM products WHERE run_id = ?`
	args := []any{runID}
	if q.NameHas != "" {
		sqlq += ` AND name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(q.NameHas)+"%")
	}
	sqlq += fmt.Sprintf(` ORDER BY %s %s LIMIT ?`, sortBy, order)
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()

	var out []*product.Product
	for rows.Next() {
		var p product.Product
		var price, sizeVal, unitPrice *float64
		var unit string
		var collected int64
		if err := rows.Scan(&p.ID, &p.Name, &price, &sizeVal, &unit, &unitPrice,
			&p.URL, &p.Source, &p.Branch, &p.SourcePage, &p.APIPage, &collected); err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		p.Price = price
		p.SizeValue = sizeVal
		p.SizeUnit = product.Unit(unit)
		p.UnitPrice = unitPrice
		p.CollectedAt = time.UnixMilli(collected)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// wrapQueryErr maps "no such table" to ErrNoCatalog so consumers can
// distinguish an unpopulated database from a real failure.
func wrapQueryErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return ErrNoCatalog
	}
	return err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
