package record

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pricecheckph/shelfwatch/product"
)

// Candidate-key cascades. Order is a contract: it decides which of
// several conflicting fields wins and is reproduced in tests.
var (
	nameKeys = []string{"name", "title", "product_name"}
	idKeys   = []string{"id", "product_id", "sku"}
	linkKeys = []string{"link", "url"}

	// Flat price keys. *_in_cents values are scaled by 1/100.
	priceKeys = []string{"price", "current_price", "sale_price", "regular_price", "price_in_cents"}

	// One nesting level under a "pricing" sub-structure: each child is
	// either numeric or an object with amount/value.
	pricingKeys = []string{"current", "sale", "regular", "price"}
	amountKeys  = []string{"amount", "value"}
)

// FromJSON resolves one item-like JSON object into a Product. Relative
// links are resolved against base (the site origin). ok is false when
// the item has no usable name.
//
// Price resolution collects every numeric candidate and returns the
// MINIMUM, deliberately favoring the promotional price when several
// price fields coexist.
func FromJSON(item gjson.Result, base, source string) (*product.Product, bool) {
	if !item.IsObject() {
		return nil, false
	}

	name := firstString(item, nameKeys)
	if name == "" {
		return nil, false
	}

	p := &product.Product{
		Name:        strings.TrimSpace(name),
		Source:      source,
		CollectedAt: time.Now().UTC(),
	}

	if id := firstString(item, idKeys); id != "" {
		p.ID = id
	} else {
		p.ID = p.Name
	}

	if v, ok := minPrice(item); ok {
		p.Price = product.Ptr(v)
	}

	if link := firstString(item, linkKeys); link != "" {
		p.URL = ResolveLink(base, link)
	}

	return p, true
}

// minPrice returns the minimum over all price candidates found in item.
func minPrice(item gjson.Result) (float64, bool) {
	var candidates []float64

	for _, k := range priceKeys {
		v := item.Get(k)
		if v.Type != gjson.Number {
			continue
		}
		n := v.Num
		if strings.HasSuffix(k, "_in_cents") {
			n /= 100
		}
		candidates = append(candidates, n)
	}

	if pricing := item.Get("pricing"); pricing.IsObject() {
		for _, k := range pricingKeys {
			v := pricing.Get(k)
			switch {
			case v.Type == gjson.Number:
				candidates = append(candidates, v.Num)
			case v.IsObject():
				for _, kk := range amountKeys {
					if vv := v.Get(kk); vv.Type == gjson.Number {
						candidates = append(candidates, vv.Num)
					}
				}
			}
		}
	}

	if len(candidates) == 0 {
		return 0, false
	}
	min := candidates[0]
	for _, c := range candidates[1:] {
		if c < min {
			min = c
		}
	}
	return min, true
}

func firstString(item gjson.Result, keys []string) string {
	for _, k := range keys {
		v := item.Get(k)
		if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			return v.Str
		}
		if v.Type == gjson.Number {
			return v.String()
		}
	}
	return ""
}

// ResolveLink makes a link absolute against the site base origin.
func ResolveLink(base, link string) string {
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if strings.HasPrefix(link, "/") {
		return strings.TrimRight(base, "/") + link
	}
	return strings.TrimRight(base, "/") + "/" + link
}
