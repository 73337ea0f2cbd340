package product

import (
	"regexp"
	"strings"
	"time"
)

// Product is one harvested catalog row. Price is a pointer because a
// record can legitimately arrive unpriced; whether it is retained is a
// run-level policy decision.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       *float64  `json:"price"`
	SizeValue   *float64  `json:"size_value,omitempty"`
	SizeUnit    Unit      `json:"size_unit,omitempty"`
	UnitPrice   *float64  `json:"unit_price,omitempty"`
	URL         string    `json:"url"`
	Source      string    `json:"source"` // originating endpoint or page URL, kept for provenance
	Branch      string    `json:"branch"`
	SourcePage  int       `json:"source_page,omitempty"` // rendered page index the record came from
	APIPage     int       `json:"api_page,omitempty"`    // data-endpoint page index
	CollectedAt time.Time `json:"collected_at"`
}

// Priced reports whether the product carries a parsed price.
func (p *Product) Priced() bool { return p.Price != nil }

// Enrich fills SizeValue/SizeUnit from the name and derives UnitPrice.
// UnitPrice is never set independently of price and size.
func (p *Product) Enrich() {
	v, u, ok := ParseSize(p.Name)
	if !ok {
		return
	}
	p.SizeValue = &v
	p.SizeUnit = u
	if p.Price != nil {
		if up, ok := UnitPrice(*p.Price, v, u); ok {
			p.UnitPrice = &up
		}
	}
}

var (
	wsRe    = regexp.MustCompile(`\s+`)
	punctRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeName lowercases, strips punctuation, and collapses whitespace.
// It is the merge-utility dedup key and the single-pass dedup variant key.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = wsRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// Ptr returns a pointer to v. Convenience for optional numeric fields.
func Ptr(v float64) *float64 { return &v }
