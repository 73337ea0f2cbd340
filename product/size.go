// Package product defines the harvested product model, the pack-size
// normalizer, and the deduplicating collected set.
package product

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit is a canonical pack-size unit parsed from a product name.
type Unit string

const (
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMilliliter Unit = "ml"
	UnitLiter      Unit = "l"
)

// sizeRe matches the first number immediately followed by a supported
// unit token, word-bounded: "Corned Beef 150g", "Water 1.5L".
var sizeRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(g|kg|ml|l)\b`)

// ParseSize scans text for a pack size. It returns the first match only;
// multiple sizes in one string are not aggregated. ok is false when no
// size pattern is present.
func ParseSize(text string) (value float64, unit Unit, ok bool) {
	if text == "" {
		return 0, "", false
	}
	m := sizeRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	return v, Unit(strings.ToLower(m[2])), true
}

// UnitPrice computes the canonical per-kg (mass) or per-L (volume) price.
// ok is false when the unit is unknown or the size value is not positive.
func UnitPrice(price, value float64, unit Unit) (float64, bool) {
	if value <= 0 {
		return 0, false
	}
	switch unit {
	case UnitKilogram, UnitLiter:
		return price / value, true
	case UnitGram, UnitMilliliter:
		return price / (value / 1000), true
	}
	return 0, false
}
