// Package capture listens to the tab's network traffic and harvests
// product records from JSON responses as the storefront loads them.
//
// The listener is deliberately promiscuous on admission (any JSON-ish
// response whose URL looks catalog-related) and strict on extraction:
// a response only contributes products when its body contains arrays
// of record-shaped objects. Every fault inside the handler is logged
// and swallowed; a bad response must never abort the harvest.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"

	"github.com/pricecheckph/shelfwatch/product"
	"github.com/pricecheckph/shelfwatch/record"
)

// defaultKeywords marks response URLs worth the cost of a body fetch.
var defaultKeywords = []string{
	"freshop", "products", "search", "department",
	"category", "aisle", "browse", "catalog", "items",
}

// seedPathRe recognises endpoints that can serve as the seed for the
// direct API walk.
var seedPathRe = regexp.MustCompile(`/products|/catalog|/search`)

// Config tunes a capture listener.
type Config struct {
	BaseURL string // resolves relative product links
	Source  string // tag stamped on captured products
	Logger  *slog.Logger

	// Keywords overrides the URL admission list; empty keeps the default.
	Keywords []string

	// DumpDir, when set, receives one raw body file per response that
	// yielded at least one product.
	DumpDir string
}

// Listener drains product records from a page's network responses.
type Listener struct {
	cfg  Config
	set  *product.Set
	page *rod.Page

	mu      sync.Mutex
	seedURL string
	pages   int
	stop    func()
	done    chan struct{}
	dumpSeq int
}

// NewListener prepares a listener that feeds the given set. Call
// Attach before navigating so early responses are not missed.
func NewListener(cfg Config, set *product.Set) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = defaultKeywords
	}
	return &Listener{cfg: cfg, set: set}
}

// Attach subscribes to the page's response events and starts the
// background drain. It returns immediately.
func (l *Listener) Attach(ctx context.Context, page *rod.Page) {
	evCtx, cancel := context.WithCancel(ctx)
	l.page = page.Context(evCtx)
	l.stop = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		l.page.EachEvent(func(e *proto.NetworkResponseReceived) {
			l.handle(e)
		})()
	}()
}

// Detach stops the drain and waits for the event loop to exit.
func (l *Listener) Detach() {
	if l.stop != nil {
		l.stop()
	}
	if l.done != nil {
		<-l.done
	}
}

// SeedURL returns the first API endpoint that yielded records, or ""
// when none was observed.
func (l *Listener) SeedURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seedURL
}

// Pages returns how many distinct responses contributed records.
func (l *Listener) Pages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages
}

func (l *Listener) handle(e *proto.NetworkResponseReceived) {
	defer func() {
		if r := recover(); r != nil {
			l.cfg.Logger.Debug("capture: handler panic", "error", fmt.Sprint(r))
		}
	}()

	resp := e.Response
	if resp == nil || !l.admit(resp.URL, resp.MIMEType) {
		return
	}

	body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(l.page)
	if err != nil {
		// Body already evicted from the renderer cache; routine.
		return
	}
	l.Ingest(resp.URL, []byte(body.Body))
}

// Ingest extracts product records from a captured response body and
// merges them into the set. It returns the number of newly admitted
// products.
//
// The seed endpoint is recorded from the URL alone, before extraction:
// a catalog response whose items are all duplicates (or an empty first
// page) must still arm the direct API walk.
func (l *Listener) Ingest(respURL string, raw []byte) int {
	l.mu.Lock()
	if l.seedURL == "" && isSeedEndpoint(respURL) {
		l.seedURL = respURL
		l.cfg.Logger.Info("capture: seed endpoint observed", "url", respURL)
	}
	l.mu.Unlock()

	added := 0
	for _, arr := range record.Arrays(raw) {
		arr.ForEach(func(_, item gjson.Result) bool {
			p, ok := record.FromJSON(item, l.cfg.BaseURL, l.cfg.Source)
			if !ok {
				return true
			}
			if l.set.Add(p) {
				added++
			}
			return true
		})
	}
	if added == 0 {
		return 0
	}

	l.mu.Lock()
	l.pages++
	seq := l.dumpSeq
	l.dumpSeq++
	l.mu.Unlock()

	l.cfg.Logger.Debug("capture: response yielded products",
		"url", respURL, "added", added)

	if l.cfg.DumpDir != "" {
		l.dump(seq, respURL, raw)
	}
	return added
}

// admit decides whether a response body is worth fetching.
func (l *Listener) admit(rawURL, mime string) bool {
	m := strings.ToLower(mime)
	jsonish := strings.Contains(m, "json") || strings.Contains(m, "javascript")
	if !jsonish {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, kw := range l.cfg.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// isSeedEndpoint reports whether the URL path marks a paginatable
// catalog endpoint.
func isSeedEndpoint(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return seedPathRe.MatchString(strings.ToLower(u.Path))
}

func (l *Listener) dump(seq int, rawURL string, body []byte) {
	name := fmt.Sprintf("capture_%03d_%s.json", seq, sanitizeName(rawURL))
	path := filepath.Join(l.cfg.DumpDir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		l.cfg.Logger.Debug("capture: dump failed", "path", path, "error", err)
	}
}

var unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)

func sanitizeName(rawURL string) string {
	u, err := url.Parse(rawURL)
	host, path := "resp", ""
	if err == nil {
		host, path = u.Host, u.Path
	}
	s := unsafeNameRe.ReplaceAllString(strings.ToLower(host+path), "_")
	s = strings.Trim(s, "_")
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
