package product

import "testing"

func TestSet_AddDeduplicates(t *testing.T) {
	// WHAT: Two records with the same (id, url) key retain one row.
	// WHY: Many raw occurrences map to one logical product within a run.
	s := NewSet()
	if !s.Add(&Product{ID: "42", Name: "Spam 155g", URL: "https://x/p/42", Price: Ptr(105)}) {
		t.Fatal("first add should be new")
	}
	if s.Add(&Product{ID: "42", Name: "Spam 155g", URL: "https://x/p/42", Price: Ptr(99)}) {
		t.Fatal("second add with same key should not be new")
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestSet_CollisionLowerPriceWins(t *testing.T) {
	// WHAT: On key collision the lower of two prices is retained.
	// WHY: The promotional/lowest price is the documented tie-break.
	s := NewSet()
	s.Add(&Product{ID: "1", Name: "Spam", URL: "u", Price: Ptr(105)})
	s.Add(&Product{ID: "1", Name: "Spam", URL: "u", Price: Ptr(99)})
	got := s.Products()[0]
	if got.Price == nil || *got.Price != 99 {
		t.Errorf("price = %v, want 99", got.Price)
	}

	// Higher price does not displace a lower one.
	s.Add(&Product{ID: "1", Name: "Spam", URL: "u", Price: Ptr(120)})
	if *s.Products()[0].Price != 99 {
		t.Errorf("higher price displaced lower")
	}
}

func TestSet_CollisionPricedBeatsUnpriced(t *testing.T) {
	// WHAT: A priced record replaces an unpriced one, never the reverse.
	// WHY: Price presence is the first collision criterion.
	s := NewSet()
	s.Add(&Product{ID: "1", Name: "Spam", URL: "u"})
	s.Add(&Product{ID: "1", Name: "Spam", URL: "u", Price: Ptr(99)})
	if s.Products()[0].Price == nil {
		t.Fatal("priced record should replace unpriced")
	}
	s.Add(&Product{ID: "1", Name: "Spam", URL: "u"})
	if s.Products()[0].Price == nil {
		t.Fatal("unpriced record must not displace priced")
	}
}

func TestSet_CollisionURLTieBreak(t *testing.T) {
	// WHAT: Equal prices break ties on populated URL, then longer URL.
	// WHY: Keeps the record most likely to carry a resolvable detail link.
	s := NewSet()
	s.Add(&Product{ID: "1", Name: "Spam", Price: Ptr(99)})
	s.Add(&Product{ID: "1", Name: "Spam", Price: Ptr(99), URL: ""})
	// Both URLs empty and equal price: first stays. Now offer the same key
	// via a record with a URL. Note: URL is part of the key, so use a
	// same-key comparison through replaces directly.
	a := &Product{ID: "1", Name: "Spam", Price: Ptr(99), URL: "https://x/p/1"}
	b := &Product{ID: "1", Name: "Spam", Price: Ptr(99), URL: ""}
	if !replaces(a, b) {
		t.Error("populated URL should win over empty at equal price")
	}
	c := &Product{ID: "1", Name: "Spam", Price: Ptr(99), URL: "https://x/p/1?variant=big"}
	if !replaces(c, a) {
		t.Error("longer URL should win at equal price")
	}
	if replaces(a, c) {
		t.Error("shorter URL must not displace longer")
	}
}

func TestSet_NamelessDiscarded(t *testing.T) {
	// WHAT: Records with no name are not retained.
	// WHY: A record with no name is unusable downstream.
	s := NewSet()
	if s.Add(&Product{ID: "1", Name: "  "}) {
		t.Error("nameless record should be discarded")
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

func TestSet_OrderStable(t *testing.T) {
	// WHAT: Products() preserves first-seen key order.
	// WHY: Stable output makes persisted tables and CSVs diffable.
	s := NewSet()
	s.Add(&Product{ID: "b", Name: "B"})
	s.Add(&Product{ID: "a", Name: "A"})
	s.Add(&Product{ID: "b", Name: "B", Price: Ptr(5)}) // collision, no reorder
	ps := s.Products()
	if len(ps) != 2 || ps[0].ID != "b" || ps[1].ID != "a" {
		t.Errorf("order = %v", []string{ps[0].ID, ps[1].ID})
	}
}
