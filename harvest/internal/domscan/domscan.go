// Package domscan recovers product cards from rendered page HTML.
//
// It is the redundant twin of the capture channel: where capture reads
// the storefront's own JSON, domscan reads what the user would see.
// Card discovery walks a prioritized selector cascade from the
// site-specific container down to generic card classes and stops at
// the first selector with matches.
package domscan

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricecheckph/shelfwatch/product"
)

// resultContainer is the grid wrapper the storefront renders listing
// results into.
const resultContainer = "#products > div.container-fluid.fp-container-results.fp-has-total > div.fp-result-list-wrapper > div.fp-result-list-content"

// cardSelectors is tried in order; the first selector matching at
// least one element wins the whole page.
var cardSelectors = []string{
	resultContainer + " > ul > li",
	"#products .fp-item",
	"#products [data-product-id]",
	"#products .product-list .product",
	".product-card",
	".product-item",
	"li.product",
	"div.product",
	"[data-testid*='product']",
}

// containerItemSelector picks items inside resultContainer when the
// container itself is present.
const containerItemSelector = "ul > li, li, .fp-resultitem, [role='listitem']"

const (
	nameSelector  = ".fp-item-name a, .fp-item-name, h3, .product-title, .product-name, [class*='product-name']"
	priceSelector = ".fp-item-price, .price, .product-price, [class*='price']"
)

var (
	priceTextRe = regexp.MustCompile(`[^\d.,]`)
	urlIDRe     = regexp.MustCompile(`/(\d{5,})(?:/|$)`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Options bounds a scan.
type Options struct {
	BaseURL        string
	MaxNodes       int // hard cap on cards inspected per page
	IncludeNoPrice bool
	SourcePage     int
	Logger         *slog.Logger
}

// Scan parses rendered HTML and extracts one product per matched card.
// A card that yields neither a usable name nor a price is skipped; the
// scan itself never fails on malformed markup.
func Scan(html string, opts Options) []*product.Product {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Warn("domscan: parse failed", "error", err)
		return nil
	}

	cards := findCards(doc, log)
	if cards == nil {
		return nil
	}

	max := opts.MaxNodes
	if max <= 0 {
		max = 1000
	}

	var out []*product.Product
	cards.EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= max {
			return false
		}
		if p := extractCard(sel, opts); p != nil {
			out = append(out, p)
		}
		return true
	})
	return out
}

// findCards walks the selector cascade and returns the first non-empty
// match set.
func findCards(doc *goquery.Document, log *slog.Logger) *goquery.Selection {
	if container := doc.Find(resultContainer); container.Length() > 0 {
		if items := container.Find(containerItemSelector); items.Length() > 0 {
			log.Debug("domscan: container items", "count", items.Length())
			return items
		}
	}
	for _, sel := range cardSelectors {
		if items := doc.Find(sel); items.Length() > 0 {
			log.Debug("domscan: selector matched", "selector", sel, "count", items.Length())
			return items
		}
	}
	return nil
}

func extractCard(sel *goquery.Selection, opts Options) *product.Product {
	name := firstText(sel, nameSelector)
	if name == "" {
		// Fall back to the card's own text, clipped.
		name = clip(strings.TrimSpace(sel.Text()), 160)
	}
	if name == "" {
		return nil
	}

	price := ParsePriceText(firstText(sel, priceSelector))
	if price == nil && !opts.IncludeNoPrice {
		return nil
	}

	link := ""
	if href, ok := sel.Find("a[href]").First().Attr("href"); ok {
		link = resolveHref(opts.BaseURL, href)
	}

	id := ""
	if m := urlIDRe.FindStringSubmatch(link); m != nil {
		id = m[1]
	}
	if id == "" {
		id = clip(spaceRe.ReplaceAllString(name, " "), 64)
	}

	return &product.Product{
		ID:         id,
		Name:       name,
		Price:      price,
		URL:        link,
		Source:     "dom",
		SourcePage: opts.SourcePage,
	}
}

// ParsePriceText extracts a numeric price from display text such as
// "₱1,059.00". Returns nil when no digits survive.
func ParsePriceText(text string) *float64 {
	s := priceTextRe.ReplaceAllString(text, "")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func firstText(sel *goquery.Selection, selector string) string {
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

func resolveHref(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
}

func clip(s string, n int) string {
	if len(s) > n {
		return strings.TrimSpace(s[:n])
	}
	return s
}
