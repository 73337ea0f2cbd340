package domscan

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricecheckph/shelfwatch/product"
)

// detailLinkSelectors is tried in order when no card yields a product;
// every selector's matches are pooled, so a link only one tenant skin
// renders still gets collected.
var detailLinkSelectors = []string{
	"a:has(.product-item)",
	".product-card a",
	"a[href*='/shop/']:has(h3), a[href*='/shop/']:has(.product-title)",
	"a.product-item__link, a.product-link",
	"a[href*='/p/']",
}

const detailNameSelector = "h1, .product-title"

// ProductLinks collects same-site product-detail links out of rendered
// listing HTML. Only root-relative hrefs pointing at a /p/ detail path
// qualify; anything absolute is an off-site or CDN link. Results keep
// first-seen order, deduplicated, capped at max.
func ProductLinks(html, base string, max int) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, sel := range detailLinkSelectors {
		doc.Find(sel).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok || !strings.HasPrefix(href, "/") || !strings.Contains(href, "/p/") {
				return
			}
			u := resolveHref(base, href)
			if seen[u] {
				return
			}
			seen[u] = true
			out = append(out, u)
		})
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// ScanDetail extracts the single product a rendered detail page
// describes. pageURL becomes the product URL and, when it carries a
// numeric id segment, the product id.
func ScanDetail(html, pageURL string, opts Options) *product.Product {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	name := strings.TrimSpace(doc.Find(detailNameSelector).First().Text())
	if name == "" {
		return nil
	}
	name = clip(spaceRe.ReplaceAllString(name, " "), 160)

	price := ParsePriceText(strings.TrimSpace(doc.Find(priceSelector).First().Text()))
	if price == nil && !opts.IncludeNoPrice {
		return nil
	}

	id := ""
	if m := urlIDRe.FindStringSubmatch(pageURL); m != nil {
		id = m[1]
	}
	if id == "" {
		id = clip(name, 64)
	}

	return &product.Product{
		ID:         id,
		Name:       name,
		Price:      price,
		URL:        pageURL,
		Source:     "dom",
		SourcePage: opts.SourcePage,
	}
}
