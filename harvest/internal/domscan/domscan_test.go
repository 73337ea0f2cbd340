package domscan

import (
	"fmt"
	"strings"
	"testing"
)

const cardHTML = `<html><body>
<div class="product-card">
  <h3 class="product-title">Fresh Milk 1L</h3>
  <span class="product-price">₱92.50</span>
  <a href="/store/p/10001/fresh-milk">view</a>
</div>
<div class="product-card">
  <h3 class="product-title">Brown Eggs Tray</h3>
  <span class="product-price">P 215.00</span>
  <a href="https://shop.example.com/store/p/10002/brown-eggs">view</a>
</div>
<div class="product-card">
  <h3 class="product-title">Display Only Rack</h3>
  <span class="product-price">call for price</span>
</div>
</body></html>`

// WHAT: Tests card extraction with price text cleanup, link resolution
// and URL-derived identifiers.
// WHY: The card selectors and the price digit strip are the only path
// to records when the background API is silent.
func TestScanCards(t *testing.T) {
	got := Scan(cardHTML, Options{BaseURL: "https://shop.example.com", SourcePage: 3})
	if len(got) != 2 {
		t.Fatalf("Scan returned %d products, want 2 (priceless skipped)", len(got))
	}

	milk := got[0]
	if milk.Name != "Fresh Milk 1L" {
		t.Errorf("name = %q", milk.Name)
	}
	if milk.Price == nil || *milk.Price != 92.50 {
		t.Errorf("price = %v, want 92.50", milk.Price)
	}
	if milk.URL != "https://shop.example.com/store/p/10001/fresh-milk" {
		t.Errorf("url = %q", milk.URL)
	}
	if milk.ID != "10001" {
		t.Errorf("id = %q, want numeric id from URL", milk.ID)
	}
	if milk.Source != "dom" || milk.SourcePage != 3 {
		t.Errorf("source tags = %q/%d", milk.Source, milk.SourcePage)
	}

	if got[1].ID != "10002" {
		t.Errorf("absolute link id = %q", got[1].ID)
	}
}

// WHAT: Tests that IncludeNoPrice keeps priceless cards with a
// name-derived identifier.
// WHY: Survey runs need shelf presence even when prices render lazily.
func TestScanIncludeNoPrice(t *testing.T) {
	got := Scan(cardHTML, Options{BaseURL: "https://shop.example.com", IncludeNoPrice: true})
	if len(got) != 3 {
		t.Fatalf("Scan returned %d products, want 3", len(got))
	}
	last := got[2]
	if last.Price != nil {
		t.Errorf("price = %v, want nil", last.Price)
	}
	if last.ID != "Display Only Rack" {
		t.Errorf("name-derived id = %q", last.ID)
	}
}

// WHAT: Tests that the first matching selector in the cascade claims
// the page and later selectors are not consulted.
// WHY: Mixing match sets across selectors would double-extract cards
// that satisfy several generic class patterns.
func TestScanCascadeFirstMatchWins(t *testing.T) {
	html := `<html><body>
	<div id="products"><div class="fp-item">
	  <h3>Canned Tuna 180g</h3><span class="price">₱45.00</span>
	</div></div>
	<div class="product-card">
	  <h3>Duplicate Card</h3><span class="price">₱45.00</span>
	</div>
	</body></html>`

	got := Scan(html, Options{BaseURL: "https://shop.example.com"})
	if len(got) != 1 {
		t.Fatalf("Scan returned %d products, want 1", len(got))
	}
	if got[0].Name != "Canned Tuna 180g" {
		t.Errorf("name = %q, want the higher-priority selector's card", got[0].Name)
	}
}

// WHAT: Tests the per-page node cap.
// WHY: A pathological page with thousands of matching elements must
// not make a single scan unbounded.
func TestScanNodeCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, `<div class="product-item"><h3>Item %d</h3><span class="price">₱%d.00</span></div>`, i, i+1)
	}
	b.WriteString("</body></html>")

	got := Scan(b.String(), Options{BaseURL: "https://shop.example.com", MaxNodes: 10})
	if len(got) != 10 {
		t.Fatalf("Scan returned %d products, want capped 10", len(got))
	}
}

// WHAT: Tests that empty and garbage markup yield no products and no
// panic.
// WHY: Snapshot input comes straight from a flaky renderer.
func TestScanHostileInput(t *testing.T) {
	for _, html := range []string{"", "<div", "plain text", "<html><body></body></html>"} {
		if got := Scan(html, Options{}); len(got) != 0 {
			t.Errorf("Scan(%q) = %d products, want 0", html, len(got))
		}
	}
}

func TestParsePriceText(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"₱1,059.00", 1059, true},
		{"P 92.50", 92.5, true},
		{"92", 92, true},
		{"call for price", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got := ParsePriceText(tc.in)
		if tc.ok {
			if got == nil || *got != tc.want {
				t.Errorf("ParsePriceText(%q) = %v, want %v", tc.in, got, tc.want)
			}
		} else if got != nil {
			t.Errorf("ParsePriceText(%q) = %v, want nil", tc.in, *got)
		}
	}
}
