// Package harvest orchestrates one full catalog harvest: store-context
// selection, rendered capture, direct API pagination, DOM recovery,
// and end-of-run persistence.
//
// The three record sources are parallel-redundant, not a strict
// fallback chain: the capture channel and the DOM walk both run even
// when the API walk succeeds, and the shared set deduplicates their
// overlap by (id, url).
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pricecheckph/shelfwatch/catalog"
	"github.com/pricecheckph/shelfwatch/harvest/internal/browser"
	"github.com/pricecheckph/shelfwatch/harvest/internal/capture"
	"github.com/pricecheckph/shelfwatch/harvest/internal/domscan"
	"github.com/pricecheckph/shelfwatch/harvest/internal/pagefetch"
	"github.com/pricecheckph/shelfwatch/harvest/internal/storectx"
	"github.com/pricecheckph/shelfwatch/idgen"
	"github.com/pricecheckph/shelfwatch/product"
)

// RunReport summarises one finished harvest.
type RunReport struct {
	RunID        string
	Total        int
	APIPages     int
	SeedURL      string
	BreakReason  string
	StoreOutcome string
	CSVPath      string
	Started      time.Time
	Finished     time.Time
}

// newRawDirName names the per-run raw-artifact directory. The
// timestamp keeps debug dirs chronological on disk; the nano suffix
// keeps two runs inside one second apart.
var newRawDirName = idgen.Prefixed("run_", idgen.Timestamped(idgen.NanoID(6)))

// Harvester drives one branch's catalog walk end to end.
type Harvester struct {
	cfg       *Config
	log       *slog.Logger
	startPage int
	endPage   int
	branchRe  *regexp.Regexp
}

// New validates the configuration and prepares a harvester for the
// page window [startPage, endPage]. Zero bounds take the configured
// defaults.
func New(cfg *Config, startPage, endPage int, log *slog.Logger) (*Harvester, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Site.StartURL == "" {
		return nil, fmt.Errorf("harvest: start URL not configured")
	}
	if startPage < 1 {
		startPage = 1
	}
	if endPage < startPage {
		endPage = startPage + cfg.Walk.MaxPages - 1
	}
	branchRe, err := regexp.Compile(cfg.Site.BranchPattern)
	if err != nil {
		return nil, fmt.Errorf("harvest: branch pattern: %w", err)
	}
	return &Harvester{
		cfg:       cfg,
		log:       log,
		startPage: startPage,
		endPage:   endPage,
		branchRe:  branchRe,
	}, nil
}

// Run executes the full pipeline. Only setup failures (browser launch,
// database open) return an error; source-level faults degrade to an
// emptier result and are recorded on the report.
func (h *Harvester) Run(ctx context.Context) (*RunReport, error) {
	rep := &RunReport{
		RunID:   idgen.New(),
		Started: time.Now().UTC(),
	}

	rawDir := ""
	if h.cfg.Output.Debug {
		rawDir = filepath.Join(h.cfg.Output.Dir, "raw", newRawDirName())
		if err := os.MkdirAll(rawDir, 0o755); err != nil {
			return nil, fmt.Errorf("harvest: raw dir: %w", err)
		}
		h.log.Info("raw artifacts enabled", "dir", rawDir)
	}

	mgr := browser.NewManager(browser.Config{
		Headless:         h.cfg.Browser.Headless,
		UserAgent:        h.cfg.Browser.UserAgent,
		NavTimeout:       h.cfg.Browser.NavTimeout,
		ResourceBlocking: h.cfg.Browser.ResourceBlocking,
		Logger:           h.log,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("harvest: %w", err)
	}
	defer mgr.Close()

	tab, err := browser.OpenTab(ctx, mgr)
	if err != nil {
		return nil, fmt.Errorf("harvest: %w", err)
	}
	defer tab.Close()

	// Store context is best-effort; the outcome travels with the run.
	sel := storectx.NewSelector(storectx.Config{
		LocatorURL:    h.cfg.Site.StoreLocatorURL,
		BranchPattern: h.branchRe,
		Retries:       h.cfg.Walk.StoreRetries,
		Logger:        h.log,
	})
	outcome := sel.Select(ctx, tab)
	rep.StoreOutcome = outcome.String()
	h.log.Info("store context", "outcome", outcome, "state", sel.State())

	set := product.NewSet()
	listener := capture.NewListener(capture.Config{
		BaseURL:  h.cfg.Site.BaseURL,
		Source:   "api",
		Keywords: h.cfg.Site.Keywords,
		Logger:   h.log,
		DumpDir:  rawDir,
	}, set)
	listener.Attach(ctx, tab.Page)
	defer listener.Detach()

	h.seedCapture(ctx, tab, set)
	rep.SeedURL = listener.SeedURL()

	if rep.SeedURL != "" {
		h.apiWalk(ctx, listener, rep, rawDir)
	} else {
		h.log.Warn("no API seed observed, relying on DOM walk")
	}

	h.domWalk(ctx, tab, set, rep)

	if set.Len() == 0 {
		h.lastResort(ctx, mgr, tab, set)
	}

	products := h.finalize(set)
	rep.Total = len(products)
	rep.Finished = time.Now().UTC()

	if err := h.persist(ctx, rep, products); err != nil {
		return rep, err
	}
	if rep.Total == 0 {
		h.snapshot(ctx, tab)
	}
	return rep, nil
}

// seedCapture opens the catalog start view and scrolls it so the
// storefront fires the XHRs the listener feeds on.
func (h *Harvester) seedCapture(ctx context.Context, tab *browser.Tab, set *product.Set) {
	if err := tab.Navigate(ctx, h.cfg.Site.StartURL); err != nil {
		h.log.Warn("start view navigation failed", "error", err)
		return
	}
	tab.Settle(500*time.Millisecond, 20*time.Second)
	tab.ScrollToEnd(ctx, h.cfg.Walk.ScrollCycles, h.cfg.Walk.ScrollStable, h.cfg.Walk.ScrollWait)
	// Trailing XHRs land after the last scroll.
	tab.Settle(300*time.Millisecond, 5*time.Second)
	h.log.Info("seed capture done", "captured", set.Len())
}

func (h *Harvester) apiWalk(ctx context.Context, listener *capture.Listener, rep *RunReport, rawDir string) {
	fcfg := pagefetch.Config{
		UserAgent:     h.cfg.Browser.UserAgent,
		MaxRetries:    h.cfg.Walk.MaxRetries,
		RetryWaitBase: h.cfg.Walk.RetryWaitBase,
		StagnantLimit: h.cfg.Walk.StagnantLimit,
		PageDelay:     h.cfg.Walk.PageDelay,
		Logger:        h.log,
	}
	if rawDir != "" {
		fcfg.DumpFn = func(page int, body []byte) {
			path := filepath.Join(rawDir, fmt.Sprintf("api_page_%d.json", page))
			if err := os.WriteFile(path, body, 0o644); err != nil {
				h.log.Debug("api dump failed", "path", path, "error", err)
			}
		}
	}
	fetcher := pagefetch.NewFetcher(fcfg, listener.Ingest)
	fr, err := fetcher.Walk(ctx, rep.SeedURL, h.startPage, h.endPage)
	if err != nil {
		h.log.Warn("api walk aborted", "error", err)
	}
	rep.APIPages = fr.PagesFetched
	if fr.BreakReason != "" {
		rep.BreakReason = fr.BreakReason
	}
	h.log.Info("api walk done", "pages", fr.PagesFetched, "added", fr.Added)
}

// domWalk renders pages start..end in the same tab and scans each for
// cards. It keeps its own stagnation counter; navigation errors count
// toward it just like empty pages.
func (h *Harvester) domWalk(ctx context.Context, tab *browser.Tab, set *product.Set, rep *RunReport) {
	stagnant := 0
	totalBefore := set.Len()
	for page := h.startPage; page <= h.endPage; page++ {
		if ctx.Err() != nil {
			return
		}
		pageURL := pagefetch.PageURL(h.cfg.Site.StartURL, page)
		if err := tab.Navigate(ctx, pageURL); err != nil {
			h.log.Warn("dom page navigation failed", "page", page, "error", err)
			stagnant++
			if stagnant >= h.cfg.Walk.StagnantLimit {
				h.breakWalk(rep, "dom-stagnation", page)
				return
			}
			continue
		}
		tab.Settle(300*time.Millisecond, 20*time.Second)
		tab.ScrollToEnd(ctx, h.cfg.Walk.ScrollCycles, h.cfg.Walk.ScrollStable, h.cfg.Walk.ScrollWait)

		added := h.scanInto(ctx, tab, set, page)
		h.log.Info("dom page scanned", "page", page, "added", added, "total", set.Len())

		if set.Len() == totalBefore {
			stagnant++
		} else {
			stagnant = 0
		}
		totalBefore = set.Len()
		if stagnant >= h.cfg.Walk.StagnantLimit {
			h.breakWalk(rep, "dom-stagnation", page)
			return
		}
	}
}

func (h *Harvester) breakWalk(rep *RunReport, reason string, page int) {
	h.log.Info("dom walk stagnation limit reached", "page", page)
	if rep.BreakReason == "" {
		rep.BreakReason = reason
	}
}

// scanInto extracts cards from the tab's current DOM into the set.
func (h *Harvester) scanInto(ctx context.Context, tab *browser.Tab, set *product.Set, page int) int {
	html, err := tab.HTML(ctx)
	if err != nil {
		h.log.Warn("dom read failed", "page", page, "error", err)
		return 0
	}
	items := domscan.Scan(html, domscan.Options{
		BaseURL:        h.cfg.Site.BaseURL,
		MaxNodes:       h.cfg.Walk.DOMNodeCap,
		IncludeNoPrice: h.cfg.Walk.IncludeNoPrice,
		SourcePage:     page,
		Logger:         h.log,
	})
	added := 0
	for _, p := range items {
		if set.Add(p) {
			added++
		}
	}
	return added
}

// maxDetailVisits bounds the per-listing detail-page pass; a listing
// with hundreds of links would otherwise turn the fallback into a
// crawl of the whole catalog.
const maxDetailVisits = 60

// lastResort re-renders the start view (and any configured fallback
// filters) for one final DOM pass when every channel came up empty.
// A listing whose cards still yield nothing gets a bounded pass over
// its product-detail links.
func (h *Harvester) lastResort(ctx context.Context, mgr *browser.Manager, tab *browser.Tab, set *product.Set) {
	h.log.Warn("no products collected, running last-resort DOM pass")
	urls := append([]string{h.cfg.Site.StartURL}, h.cfg.Site.FallbackFilters...)
	for _, u := range urls {
		if ctx.Err() != nil {
			return
		}
		if err := tab.Navigate(ctx, u); err != nil {
			continue
		}
		tab.Settle(500*time.Millisecond, 20*time.Second)
		tab.ScrollToEnd(ctx, h.cfg.Walk.ScrollCycles, h.cfg.Walk.ScrollStable, h.cfg.Walk.ScrollWait)
		if h.scanInto(ctx, tab, set, 1) > 0 {
			return
		}
		if h.detailPass(ctx, mgr, tab, set) > 0 {
			return
		}
	}
}

// detailPass collects product-detail links off the tab's current DOM
// and renders each in its own short-lived tab, one at a time with a
// per-visit pause. The listing tab stays parked on the listing so its
// capture listener keeps running.
func (h *Harvester) detailPass(ctx context.Context, mgr *browser.Manager, tab *browser.Tab, set *product.Set) int {
	html, err := tab.HTML(ctx)
	if err != nil {
		h.log.Warn("detail link read failed", "error", err)
		return 0
	}
	links := domscan.ProductLinks(html, h.cfg.Site.BaseURL, maxDetailVisits)
	if len(links) == 0 {
		return 0
	}
	h.log.Info("visiting product detail pages", "links", len(links))

	added := 0
	for _, link := range links {
		if p := h.visitDetail(ctx, mgr, link); p != nil && set.Add(p) {
			added++
		}
		select {
		case <-ctx.Done():
			return added
		case <-time.After(time.Second):
		}
	}
	h.log.Info("detail pass done", "added", added)
	return added
}

func (h *Harvester) visitDetail(ctx context.Context, mgr *browser.Manager, link string) *product.Product {
	dt, err := browser.OpenTab(ctx, mgr)
	if err != nil {
		h.log.Warn("detail tab open failed", "error", err)
		return nil
	}
	defer dt.Close()

	if err := dt.Navigate(ctx, link); err != nil {
		h.log.Warn("detail page navigation failed", "url", link, "error", err)
		return nil
	}
	dt.Settle(500*time.Millisecond, 6*time.Second)

	html, err := dt.HTML(ctx)
	if err != nil {
		h.log.Warn("detail page read failed", "url", link, "error", err)
		return nil
	}
	return domscan.ScanDetail(html, link, domscan.Options{
		BaseURL:        h.cfg.Site.BaseURL,
		IncludeNoPrice: h.cfg.Walk.IncludeNoPrice,
		SourcePage:     1,
		Logger:         h.log,
	})
}

// finalize applies the price filter, derives size and unit price, and
// stamps branch identity and collection time on every survivor.
func (h *Harvester) finalize(set *product.Set) []*product.Product {
	now := time.Now().UTC()
	var out []*product.Product
	for _, p := range set.Products() {
		if !p.Priced() && !h.cfg.Walk.IncludeNoPrice {
			continue
		}
		p.Enrich()
		p.Branch = h.cfg.Site.Branch
		if p.CollectedAt.IsZero() {
			p.CollectedAt = now
		}
		out = append(out, p)
	}
	return out
}

func (h *Harvester) persist(ctx context.Context, rep *RunReport, products []*product.Product) error {
	store, err := catalog.Open(h.cfg.Output.DBPath)
	if err != nil {
		return fmt.Errorf("harvest: %w", err)
	}
	defer store.Close()

	run := &catalog.Run{
		ID:           rep.RunID,
		Branch:       h.cfg.Site.Branch,
		StartedAt:    rep.Started,
		FinishedAt:   rep.Finished,
		APIPages:     rep.APIPages,
		SeedURL:      rep.SeedURL,
		BreakReason:  rep.BreakReason,
		StoreOutcome: rep.StoreOutcome,
	}
	if err := store.SaveRun(ctx, run, products); err != nil {
		return fmt.Errorf("harvest: %w", err)
	}

	csvPath := h.cfg.Output.CSVPath
	if dir := filepath.Dir(csvPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("harvest: csv dir: %w", err)
		}
	}
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("harvest: create csv: %w", err)
	}
	defer f.Close()
	if err := catalog.WriteCSV(f, products); err != nil {
		return fmt.Errorf("harvest: %w", err)
	}
	rep.CSVPath = csvPath

	h.log.Info("run persisted",
		"run_id", rep.RunID, "total", len(products),
		"csv", csvPath, "db", h.cfg.Output.DBPath)
	return nil
}

// snapshot saves the last rendered page for diagnosing an empty run.
func (h *Harvester) snapshot(ctx context.Context, tab *browser.Tab) {
	path := filepath.Join(h.cfg.Output.Dir, "last_page.html")
	if err := tab.SnapshotTo(ctx, path); err != nil {
		h.log.Warn("snapshot failed", "error", err)
		return
	}
	h.log.Info("empty run, page snapshot written", "path", path)
}
