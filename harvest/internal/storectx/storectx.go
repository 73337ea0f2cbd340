// Package storectx pins the browsing session to one physical branch
// before any catalog traversal. The storefront prices per store, so a
// session without store context returns a generic (often empty)
// catalog.
//
// Selection runs a small state machine and verification is soft: the
// site gives no reliable confirmation signal, so after bounded retries
// the pipeline proceeds anyway and records the uncertainty.
package storectx

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/pricecheckph/shelfwatch/harvest/internal/browser"
)

// State tracks progress through the selection flow.
type State int

const (
	StateIdle State = iota
	StateLocatorOpened
	StateStoreCardFound
	StateCTAClicked
	StateVerified
	StateUnverified
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLocatorOpened:
		return "locator-opened"
	case StateStoreCardFound:
		return "store-card-found"
	case StateCTAClicked:
		return "cta-clicked"
	case StateVerified:
		return "verified"
	case StateUnverified:
		return "unverified"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is what the orchestrator acts on.
type Outcome int

const (
	// OutcomeVerified means a positive signal confirmed the branch.
	OutcomeVerified Outcome = iota
	// OutcomeUnverifiedProceeding means selection was attempted but
	// never positively confirmed; the run continues regardless.
	OutcomeUnverifiedProceeding
	// OutcomeFailedSetup means the locator flow itself could not run.
	OutcomeFailedSetup
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeUnverifiedProceeding:
		return "unverified-proceeding"
	case OutcomeFailedSetup:
		return "failed-setup"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ctaLabels are the select-store control captions seen across tenant
// skins, most specific first. Buttons are tried before links.
var ctaLabels = []string{
	"Shop this store",
	"Make this my store",
	"Select Store",
	"Shop Now",
	"Start Shopping",
}

// localStorage keys tenants use for the active store's display name.
var storeNameKeys = []string{"storeName", "store_name"}

// Config tunes a selection run.
type Config struct {
	LocatorURL    string
	BranchPattern *regexp.Regexp // case-insensitive, diacritic-tolerant
	Retries       int            // full flow re-attempts after failed verification
	Logger        *slog.Logger
}

// Selector drives the store-locator flow on a tab.
type Selector struct {
	cfg   Config
	state State
}

func NewSelector(cfg Config) *Selector {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 2
	}
	return &Selector{cfg: cfg}
}

// State returns how far the most recent attempt progressed.
func (s *Selector) State() State { return s.state }

// Select runs the full flow with bounded retries. It never returns an
// error for verification failure; only a flow that cannot even open
// the locator yields OutcomeFailedSetup.
func (s *Selector) Select(ctx context.Context, tab *browser.Tab) Outcome {
	ranFlow := false
	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		s.cfg.Logger.Info("store selection attempt", "attempt", attempt)
		err := s.runFlow(ctx, tab)
		if err != nil {
			s.cfg.Logger.Warn("store selection flow failed", "attempt", attempt, "error", err)
		} else {
			ranFlow = true
		}
		if s.verify(ctx, tab) {
			s.state = StateVerified
			s.cfg.Logger.Info("store context verified")
			return OutcomeVerified
		}
		select {
		case <-ctx.Done():
			return OutcomeFailedSetup
		case <-time.After(1500 * time.Millisecond):
		}
	}
	if !ranFlow {
		return OutcomeFailedSetup
	}
	s.state = StateUnverified
	s.cfg.Logger.Warn("store context not confirmed, proceeding anyway")
	return OutcomeUnverifiedProceeding
}

// runFlow executes one pass: locator page, branch card, CTA click.
func (s *Selector) runFlow(ctx context.Context, tab *browser.Tab) error {
	s.state = StateIdle

	if err := tab.Navigate(ctx, s.cfg.LocatorURL); err != nil {
		return fmt.Errorf("storectx: open locator: %w", err)
	}
	tab.Settle(300*time.Millisecond, 15*time.Second)
	s.state = StateLocatorOpened

	if err := s.clickBranchCard(ctx, tab); err != nil {
		return err
	}
	s.state = StateStoreCardFound
	tab.Settle(300*time.Millisecond, 10*time.Second)

	if s.clickCTA(ctx, tab) {
		s.state = StateCTAClicked
	} else {
		// Some tenants auto-apply the store on card click.
		s.cfg.Logger.Info("no store CTA found, selection may have auto-applied")
	}
	time.Sleep(1200 * time.Millisecond)
	return nil
}

// clickBranchCard finds the branch's card or link on the locator page
// by case-insensitive text match and opens it.
func (s *Selector) clickBranchCard(ctx context.Context, tab *browser.Tab) error {
	pattern := jsRegex(s.cfg.BranchPattern)
	for _, sel := range []string{"a", "h1, h2, h3, h4", "*"} {
		el, err := tab.Page.Context(ctx).Timeout(4 * time.Second).ElementR(sel, pattern)
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			continue
		}
		return nil
	}
	return fmt.Errorf("storectx: branch card not found on locator page")
}

// clickCTA tries the known select-store captions, buttons before links.
func (s *Selector) clickCTA(ctx context.Context, tab *browser.Tab) bool {
	for _, sel := range []string{"button", "a"} {
		for _, label := range ctaLabels {
			el, err := tab.Page.Context(ctx).Timeout(2*time.Second).
				ElementR(sel, "/"+label+"/i")
			if err != nil {
				continue
			}
			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				continue
			}
			s.cfg.Logger.Debug("store CTA clicked", "label", label, "as", sel)
			return true
		}
	}
	return false
}

// verify reads the soft confirmation signals off the live tab.
func (s *Selector) verify(ctx context.Context, tab *browser.Tab) bool {
	storeName := ""
	for _, key := range storeNameKeys {
		v, err := tab.LocalStorageItem(ctx, key)
		if err == nil && v != "" {
			storeName = v
			break
		}
	}
	header, _ := tab.HeaderText(ctx)
	return Confirmed(storeName, header, s.cfg.BranchPattern)
}

// Confirmed reports whether a soft signal names the target branch:
// the tenant's stored store name or the page header. Being redirected
// into the shop view is NOT confirmation; a tenant lands there with a
// default store too, and a run row claiming "verified" off that would
// misattribute every price to the wrong branch. Selection that only
// got that far surfaces as unverified-proceeding.
func Confirmed(storeName, headerText string, branch *regexp.Regexp) bool {
	if storeName != "" && branch.MatchString(storeName) {
		return true
	}
	return headerText != "" && branch.MatchString(headerText)
}

// jsRegex renders a Go pattern as the /pattern/i literal Rod passes to
// the page's matcher. Inline flags are stripped; matching is forced
// case-insensitive.
func jsRegex(re *regexp.Regexp) string {
	p := re.String()
	p = strings.TrimPrefix(p, "(?i)")
	return "/" + p + "/i"
}
