package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page with harvest-specific setup: stealth, UA
// override, and resource blocking. Navigation is a method because the
// catalog walk revisits the same tab with successive page URLs.
type Tab struct {
	Page    *rod.Page
	manager *Manager
}

// OpenTab creates a new stealth tab. The tab starts blank; call
// Navigate to load a URL.
func OpenTab(ctx context.Context, mgr *Manager) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if mgr.cfg.UserAgent != "" {
		ua := &proto.NetworkSetUserAgentOverride{UserAgent: mgr.cfg.UserAgent}
		if err := page.SetUserAgent(ua); err != nil {
			mgr.cfg.Logger.Warn("browser: set user agent failed", "error", err)
		}
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return &Tab{Page: page, manager: mgr}, nil
}

// Navigate loads a URL with the configured navigation timeout and waits
// for the load event. A load-event timeout is soft: SPA catalog views
// keep streaming XHRs long after they are usable.
func (t *Tab) Navigate(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, t.manager.cfg.NavTimeout)
	defer cancel()

	if err := t.Page.Context(navCtx).Navigate(pageURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := t.Page.Context(navCtx).WaitLoad(); err != nil {
		t.manager.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return nil
}

// Settle waits until the page has gone quiet for idle, bounded by max.
// Best-effort: a page that never settles is not an error.
func (t *Tab) Settle(idle, max time.Duration) {
	defer func() { recover() }() // rod cancels waiters with a panic on timeout
	wait := t.Page.Timeout(max).WaitRequestIdle(idle, nil, nil, nil)
	wait()
}

// ScrollToEnd performs bounded incremental scroll-and-wait cycles to
// trigger lazy-loaded content. It stops when the body height has not
// grown for stable consecutive cycles, or after cycles iterations,
// whichever comes first.
func (t *Tab) ScrollToEnd(ctx context.Context, cycles, stable int, wait time.Duration) {
	lastHeight := 0
	stableRounds := 0
	for i := 0; i < cycles; i++ {
		h, err := t.bodyHeight(ctx)
		if err != nil {
			return
		}
		if h <= lastHeight {
			stableRounds++
		} else {
			stableRounds = 0
		}
		lastHeight = h
		if stableRounds >= stable {
			return
		}
		if _, err := t.Page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (t *Tab) bodyHeight(ctx context.Context) (int, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// HTML serialises the complete rendered DOM as outer HTML.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// HeaderText returns the visible text of the page header/banner region.
func (t *Tab) HeaderText(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(
		`() => {
			const el = document.querySelector("header, [role='banner']");
			return el ? el.innerText : "";
		}`)
	if err != nil {
		return "", fmt.Errorf("browser: header text: %w", err)
	}
	return res.Value.Str(), nil
}

// LocalStorageItem reads a localStorage key, returning "" when absent.
func (t *Tab) LocalStorageItem(ctx context.Context, key string) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`(k) => localStorage.getItem(k) || ""`, key)
	if err != nil {
		return "", fmt.Errorf("browser: localStorage: %w", err)
	}
	return res.Value.Str(), nil
}

// SnapshotTo writes the current rendered HTML to path for diagnosis.
func (t *Tab) SnapshotTo(ctx context.Context, path string) error {
	html, err := t.HTML(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("browser: write snapshot: %w", err)
	}
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
