package product

import (
	"math"
	"testing"
)

func TestParseSize(t *testing.T) {
	// WHAT: A number directly followed by a supported unit token parses to (value, unit).
	// WHY: Pack size is the input to the canonical unit-price computation.
	tests := []struct {
		text  string
		value float64
		unit  Unit
		ok    bool
	}{
		{"Corned Beef 150g", 150, UnitGram, true},
		{"Bottled Water 1.5L", 1.5, UnitLiter, true},
		{"Evap Milk 370ml", 370, UnitMilliliter, true},
		{"Rice 5kg", 5, UnitKilogram, true},
		{"Juice 1 L", 1, UnitLiter, true},
		{"Tuna 155G Easy Open", 155, UnitGram, true},
		{"Assorted Snacks", 0, "", false},
		{"", 0, "", false},
		{"500 grams", 0, "", false}, // "grams" is not word-bounded "g"
		{"Pack of 12", 0, "", false},
	}
	for _, tt := range tests {
		v, u, ok := ParseSize(tt.text)
		if ok != tt.ok {
			t.Errorf("ParseSize(%q): ok = %v, want %v", tt.text, ok, tt.ok)
			continue
		}
		if ok && (v != tt.value || u != tt.unit) {
			t.Errorf("ParseSize(%q) = (%v, %q), want (%v, %q)", tt.text, v, u, tt.value, tt.unit)
		}
	}
}

func TestParseSize_FirstMatchOnly(t *testing.T) {
	// WHAT: With two size tokens in one name, only the first is returned.
	// WHY: The normalizer never aggregates multiple sizes.
	v, u, ok := ParseSize("Bundle 100g + 250ml refill")
	if !ok || v != 100 || u != UnitGram {
		t.Errorf("got (%v, %q, %v), want (100, g, true)", v, u, ok)
	}
}

func TestUnitPrice(t *testing.T) {
	// WHAT: Mass canonicalizes to price per kg, volume to price per L.
	// WHY: Unit prices from different pack sizes must be comparable.
	tests := []struct {
		price, value float64
		unit         Unit
		want         float64
		ok           bool
	}{
		{90, 150, UnitGram, 600, true},
		{45, 1.5, UnitLiter, 30, true},
		{120, 2, UnitKilogram, 60, true},
		{20, 500, UnitMilliliter, 40, true},
		{90, 0, UnitGram, 0, false},
		{90, 150, "oz", 0, false},
	}
	for _, tt := range tests {
		got, ok := UnitPrice(tt.price, tt.value, tt.unit)
		if ok != tt.ok {
			t.Errorf("UnitPrice(%v, %v, %q): ok = %v, want %v", tt.price, tt.value, tt.unit, ok, tt.ok)
			continue
		}
		if ok && math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("UnitPrice(%v, %v, %q) = %v, want %v", tt.price, tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestEnrich(t *testing.T) {
	// WHAT: Enrich fills size fields from the name and derives unit price.
	// WHY: Unit price is derived, never independently set.
	p := &Product{Name: "Tuna 155g", Price: Ptr(35.5)}
	p.Enrich()
	if p.SizeValue == nil || *p.SizeValue != 155 || p.SizeUnit != UnitGram {
		t.Fatalf("size: got (%v, %q)", p.SizeValue, p.SizeUnit)
	}
	if p.UnitPrice == nil || math.Abs(*p.UnitPrice-229.0322580645161) > 1e-6 {
		t.Errorf("unit price: got %v, want ≈229.03", p.UnitPrice)
	}

	// No price: size parses, unit price stays unset.
	q := &Product{Name: "Tuna 155g"}
	q.Enrich()
	if q.SizeValue == nil || q.UnitPrice != nil {
		t.Errorf("unpriced: size %v, unit price %v", q.SizeValue, q.UnitPrice)
	}
}

func TestNormalizeName(t *testing.T) {
	// WHAT: Name normalization collapses case, punctuation, and whitespace.
	// WHY: It is the merge-utility dedup key; variants must converge.
	tests := []struct{ in, want string }{
		{"  Spam   Lite 155g ", "spam lite 155g"},
		{"SPAM-Lite, 155G", "spam lite 155g"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
