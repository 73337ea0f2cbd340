package harvest

import (
	"regexp"
	"testing"
	"time"

	"github.com/pricecheckph/shelfwatch/product"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Site.BaseURL = "https://shop.example.com"
	cfg.Site.StartURL = "https://shop.example.com/store/shop#!/?page=1"
	cfg.Site.Branch = "Dasmariñas"
	cfg.Site.BranchPattern = `(?i)Dasmari(?:ñas|nas)`
	return cfg
}

// WHAT: Tests page-window resolution and configuration validation.
// WHY: CLI page ranges are optional; the window must fall back to the
// configured maximum, and a missing start URL must fail fast instead
// of launching a browser at nothing.
func TestNewWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Walk.MaxPages = 30

	h, err := New(cfg, 0, 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if h.startPage != 1 || h.endPage != 30 {
		t.Errorf("window = [%d,%d], want [1,30]", h.startPage, h.endPage)
	}

	h, err = New(cfg, 5, 12, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if h.startPage != 5 || h.endPage != 12 {
		t.Errorf("window = [%d,%d], want [5,12]", h.startPage, h.endPage)
	}

	cfg.Site.StartURL = ""
	if _, err := New(cfg, 0, 0, nil); err == nil {
		t.Error("New accepted config without a start URL")
	}

	cfg = testConfig()
	cfg.Site.BranchPattern = "(["
	if _, err := New(cfg, 0, 0, nil); err == nil {
		t.Error("New accepted an invalid branch pattern")
	}
}

// WHAT: Tests the raw-artifact directory name shape and uniqueness.
// WHY: Debug dirs must sort chronologically on disk and never collide
// when two runs start inside the same second.
func TestRawDirName(t *testing.T) {
	re := regexp.MustCompile(`^run_\d{8}T\d{6}Z_[0-9a-z]{6}$`)
	a, b := newRawDirName(), newRawDirName()
	if !re.MatchString(a) {
		t.Errorf("raw dir name %q does not match %v", a, re)
	}
	if a == b {
		t.Errorf("two raw dir names collided: %q", a)
	}
}

// WHAT: Tests finalization: price filter, size/unit-price derivation,
// branch and timestamp stamping.
// WHY: Finalize is the last gate before persistence; a leak here puts
// unpriced or unstamped rows in the published table.
func TestFinalize(t *testing.T) {
	cfg := testConfig()
	h, err := New(cfg, 1, 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	set := product.NewSet()
	set.Add(&product.Product{ID: "1", Name: "Fresh Milk 1L", Price: product.Ptr(92.50)})
	set.Add(&product.Product{ID: "2", Name: "Mystery Item"}) // unpriced
	set.Add(&product.Product{ID: "3", Name: "Canned Tuna 180g", Price: product.Ptr(45)})

	got := h.finalize(set)
	if len(got) != 2 {
		t.Fatalf("finalize kept %d products, want 2", len(got))
	}
	for _, p := range got {
		if p.Branch != "Dasmariñas" {
			t.Errorf("branch = %q", p.Branch)
		}
		if p.CollectedAt.IsZero() {
			t.Error("collected_at not stamped")
		}
	}

	milk := got[0]
	if milk.UnitPrice == nil || *milk.UnitPrice != 92.50 {
		t.Errorf("1L unit price = %v, want 92.50 per L", milk.UnitPrice)
	}
	tuna := got[1]
	if tuna.SizeValue == nil || *tuna.SizeValue != 180 || tuna.SizeUnit != product.UnitGram {
		t.Errorf("tuna size = %v %v", tuna.SizeValue, tuna.SizeUnit)
	}
	if tuna.UnitPrice == nil || *tuna.UnitPrice != 250 {
		t.Errorf("180g at 45 unit price = %v, want 250 per kg", tuna.UnitPrice)
	}
}

// WHAT: Tests that IncludeNoPrice keeps unpriced rows through
// finalization.
// WHY: Availability surveys run with the filter off.
func TestFinalizeIncludeNoPrice(t *testing.T) {
	cfg := testConfig()
	cfg.Walk.IncludeNoPrice = true
	h, err := New(cfg, 1, 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	set := product.NewSet()
	set.Add(&product.Product{ID: "1", Name: "Mystery Item"})
	got := h.finalize(set)
	if len(got) != 1 {
		t.Fatalf("finalize kept %d products, want 1", len(got))
	}
	if got[0].UnitPrice != nil {
		t.Error("unit price derived for unpriced product")
	}
	if !got[0].CollectedAt.Before(time.Now().Add(time.Minute)) {
		t.Error("collected_at in the future")
	}
}
