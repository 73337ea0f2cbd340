// Package mergecsv collapses duplicate product rows in a harvested CSV.
//
// Rows merge under a normalized-name key. The canonical row per key is
// chosen by the same collision policy the harvester uses: priced over
// unpriced, lower price, then populated/longer URL. The output gains
// merged_ids, merged_count, canonical_id, min_price, and max_price
// columns; merging is idempotent on already-merged input.
package mergecsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pricecheckph/shelfwatch/product"
)

// extraColumns are appended to the input header unless already present.
var extraColumns = []string{"merged_ids", "merged_count", "canonical_id", "min_price", "max_price"}

// Options controls a merge pass.
type Options struct {
	Sep         string // separator for merged_ids. Default ";".
	KeepNoPrice bool   // retain keys whose rows are all unpriced
}

// Row is one CSV record keyed by header name.
type Row map[string]string

// Result is the outcome of a merge pass.
type Result struct {
	Header []string
	Rows   []Row // canonical rows in first-seen key order
	In     int   // input rows read
}

// Merge reads CSV from r and collapses rows by normalized name.
func Merge(r io.Reader, opts Options) (*Result, error) {
	if opts.Sep == "" {
		opts.Sep = ";"
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("mergecsv: read: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("mergecsv: empty input, no header row")
	}

	header := records[0]
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	if _, ok := idx["name"]; !ok {
		return nil, fmt.Errorf("mergecsv: input has no name column")
	}

	type group struct {
		best   Row
		ids    []string
		prices []float64
		count  int
	}
	groups := make(map[string]*group)
	var order []string

	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}

		key := product.NormalizeName(row["name"])
		if key == "" {
			continue
		}
		price := toFloat(row["price"])
		if price == nil && !opts.KeepNoPrice {
			continue
		}

		g := groups[key]
		if g == nil {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}

		// A row that is itself the product of a previous merge carries
		// its collapsed count, ids, and price range; folding those in
		// makes the merge idempotent on converged input.
		contribution := 1
		if mc, err := strconv.Atoi(strings.TrimSpace(row["merged_count"])); err == nil && mc > 0 {
			contribution = mc
		}
		g.count += contribution

		if id := strings.TrimSpace(row["id"]); id != "" && !contains(g.ids, id) {
			g.ids = append(g.ids, id)
		}
		if prev := strings.TrimSpace(row["merged_ids"]); prev != "" {
			for _, id := range strings.Split(prev, opts.Sep) {
				if id = strings.TrimSpace(id); id != "" && !contains(g.ids, id) {
					g.ids = append(g.ids, id)
				}
			}
		}

		if price != nil {
			g.prices = append(g.prices, *price)
		}
		for _, col := range []string{"min_price", "max_price"} {
			if v := toFloat(row[col]); v != nil {
				g.prices = append(g.prices, *v)
			}
		}

		if g.best == nil || rowReplaces(row, g.best) {
			g.best = row
		}
	}

	outHeader := append([]string{}, header...)
	for _, c := range extraColumns {
		if _, ok := idx[c]; !ok {
			outHeader = append(outHeader, c)
		}
	}

	res := &Result{Header: outHeader, In: len(records) - 1}
	for _, key := range order {
		g := groups[key]
		row := g.best

		canonical := strings.TrimSpace(row["id"])
		if canonical == "" && len(g.ids) > 0 {
			canonical = g.ids[0]
		}
		row["merged_ids"] = strings.Join(g.ids, opts.Sep)
		row["merged_count"] = strconv.Itoa(g.count)
		row["canonical_id"] = canonical
		if len(g.prices) > 0 {
			min, max := g.prices[0], g.prices[0]
			for _, p := range g.prices[1:] {
				if p < min {
					min = p
				}
				if p > max {
					max = p
				}
			}
			row["min_price"] = fmt.Sprintf("%.2f", min)
			row["max_price"] = fmt.Sprintf("%.2f", max)
		} else {
			row["min_price"] = ""
			row["max_price"] = ""
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// Write serializes a merge result as CSV.
func (res *Result) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.Header); err != nil {
		return fmt.Errorf("mergecsv: write header: %w", err)
	}
	for _, row := range res.Rows {
		rec := make([]string, len(res.Header))
		for i, h := range res.Header {
			rec[i] = row[h]
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("mergecsv: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MergeFile merges inPath into outPath, keeping a .bak copy of the
// pre-merge file next to the output.
func MergeFile(inPath, outPath string, opts Options) (*Result, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("mergecsv: open input: %w", err)
	}
	defer in.Close()

	res, err := Merge(in, opts)
	if err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(inPath); err == nil {
		// Backup failure is non-fatal; the merge still proceeds.
		os.WriteFile(outPath+".bak", data, 0o644)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("mergecsv: create output: %w", err)
	}
	defer out.Close()

	if err := res.Write(out); err != nil {
		return nil, err
	}
	return res, nil
}

// rowReplaces applies the canonical-row policy: priced over unpriced,
// lower price, tie broken by populated URL then longer URL.
func rowReplaces(next, cur Row) bool {
	np, cp := toFloat(next["price"]), toFloat(cur["price"])
	switch {
	case cp == nil && np != nil:
		return true
	case cp == nil || np == nil:
		return false
	case *np < *cp:
		return true
	case *np > *cp:
		return false
	}
	nu, cu := strings.TrimSpace(next["url"]), strings.TrimSpace(cur["url"])
	if nu != "" && cu == "" {
		return true
	}
	return nu != "" && len(nu) > len(cu)
}

var nonNumRe = regexp.MustCompile(`[^0-9.]+`)

func toFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return &v
	}
	cleaned := nonNumRe.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return &v
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
