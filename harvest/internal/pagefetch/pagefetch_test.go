package pagefetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		UserAgent:     "shelfwatch-test/1.0",
		MaxRetries:    2,
		RetryWaitBase: time.Millisecond,
		StagnantLimit: 3,
		Timeout:       5 * time.Second,
	}
}

func TestPageURL(t *testing.T) {
	cases := []struct {
		name string
		seed string
		page int
		want string
	}{
		{
			"existing page param replaced",
			"https://api.example.com/v1/products?limit=48&page=1",
			5,
			"https://api.example.com/v1/products?limit=48&page=5",
		},
		{
			"page param added when absent",
			"https://api.example.com/v1/products?limit=48",
			2,
			"https://api.example.com/v1/products?limit=48&page=2",
		},
		{
			"hashbang fragment query",
			"https://shop.example.com/store/shop#!/?department=dairy&page=1",
			3,
			"https://shop.example.com/store/shop#!/?department=dairy&page=3",
		},
		{
			"offset fallback scales by page size",
			"https://api.example.com/v1/products?offset=0&limit=48",
			3,
			"https://api.example.com/v1/products?offset=96&limit=48",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PageURL(tc.seed, tc.page); got != tc.want {
				t.Errorf("PageURL(%q, %d)\n got %q\nwant %q", tc.seed, tc.page, got, tc.want)
			}
		})
	}
}

// WHAT: Tests a clean walk over a window where every page contributes.
// WHY: The fetcher must visit each page of the window exactly once and
// route every body through the shared ingest sink.
func TestWalkAllPages(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.Header.Get("User-Agent"); got != "shelfwatch-test/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		fmt.Fprintf(w, `{"page":%q}`, r.URL.Query().Get("page"))
	}))
	defer srv.Close()

	var pages []string
	f := NewFetcher(testConfig(), func(pageURL string, body []byte) int {
		pages = append(pages, pageURL)
		return 1
	})

	rep, err := f.Walk(context.Background(), srv.URL+"/v1/products?page=1", 1, 4)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if rep.PagesFetched != 4 || rep.Added != 4 || rep.BreakReason != "" {
		t.Errorf("report = %+v", rep)
	}
	if int(hits.Load()) != 4 || len(pages) != 4 {
		t.Errorf("hits = %d, ingested = %d", hits.Load(), len(pages))
	}
}

// WHAT: Tests that the walk halts after exactly StagnantLimit
// consecutive zero-contribution pages.
// WHY: Stagnation is the only end-of-catalog signal; off-by-one here
// either hammers empty pages or truncates the catalog.
func TestWalkStagnationExact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	contributions := []int{1, 0, 0, 1, 0, 0, 0, 1, 1}
	calls := 0
	f := NewFetcher(testConfig(), func(string, []byte) int {
		c := contributions[calls]
		calls++
		return c
	})

	rep, err := f.Walk(context.Background(), srv.URL+"/v1/products", 1, 20)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	// Pages 5,6,7 are the third run of zeroes; the walk must stop at
	// page 7 and never reach the recovery on page 8.
	if calls != 7 {
		t.Errorf("pages visited = %d, want 7", calls)
	}
	if rep.BreakReason != "api-stagnation" {
		t.Errorf("BreakReason = %q", rep.BreakReason)
	}
}

// WHAT: Tests retry with eventual success and retry exhaustion.
// WHY: Transient 5xx responses are routine; a page must be retried a
// bounded number of times, then written off without failing the walk.
func TestWalkRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		page := r.URL.Query().Get("page")
		switch {
		case page == "1" && n < 3: // first page fails twice, then recovers
			w.WriteHeader(http.StatusBadGateway)
		case page == "2": // second page never recovers
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	ingested := 0
	f := NewFetcher(testConfig(), func(string, []byte) int {
		ingested++
		return 1
	})

	rep, err := f.Walk(context.Background(), srv.URL+"/v1/products", 1, 2)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if ingested != 1 {
		t.Errorf("ingested pages = %d, want 1 (page 2 gave up)", ingested)
	}
	if rep.PagesFetched != 1 {
		t.Errorf("PagesFetched = %d, want 1", rep.PagesFetched)
	}
	// 2 failures + 1 success on page 1, then 1 + MaxRetries attempts on page 2.
	if got := int(hits.Load()); got != 6 {
		t.Errorf("server hits = %d, want 6", got)
	}
}

// WHAT: Tests that cancelling the context aborts the walk promptly.
// WHY: Ctrl-C during a long backoff must not hang the process.
func TestWalkCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RetryWaitBase = time.Hour
	f := NewFetcher(cfg, func(string, []byte) int { return 0 })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := f.Walk(ctx, srv.URL+"/v1/products", 1, 5); err == nil {
			t.Error("Walk returned nil error after cancellation")
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Walk did not return after cancellation")
	}
}

// WHAT: Tests that dump callbacks receive each fetched body.
// WHY: Debug runs persist raw pages for cascade diagnosis.
func TestWalkDump(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items":[]}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	var dumped []int
	cfg.DumpFn = func(page int, body []byte) {
		dumped = append(dumped, page)
		if string(body) != `{"items":[]}` {
			t.Errorf("dump body = %q", body)
		}
	}
	f := NewFetcher(cfg, func(string, []byte) int { return 1 })
	if _, err := f.Walk(context.Background(), srv.URL+"/v1/products", 2, 3); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(dumped) != 2 || dumped[0] != 2 || dumped[1] != 3 {
		t.Errorf("dumped pages = %v, want [2 3]", dumped)
	}
}
