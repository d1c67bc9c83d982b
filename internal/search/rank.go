package search

import (
	"math"
	"sort"
	"strings"

	"pricescout/searchservice/internal/domain"
)

// DefaultPriorityVendors is the vendor order used for tiering. Matching is a
// case-insensitive substring test against Offer.Source.
var DefaultPriorityVendors = []string{
	"mobilesentrix", "amazon", "ebay", "fixez", "mengtor", "laptopscreen",
}

// Rank returns a sorted copy of offers with best-price flags recomputed.
// Equal inputs in any order produce the same output.
func Rank(offers []domain.Offer, mode domain.SortMode) []domain.Offer {
	if mode == domain.SortVendor {
		return RankByVendorPriority(offers, DefaultPriorityVendors)
	}
	out := cloneOffers(offers)
	sort.SliceStable(out, func(i, j int) bool {
		return compareOffers(out[i], out[j], mode) < 0
	})
	return MarkBestPrice(out)
}

// RankByVendorPriority orders offers by vendor tier, then by price ascending.
func RankByVendorPriority(offers []domain.Offer, vendors []string) []domain.Offer {
	out := cloneOffers(offers)
	tiers := make(map[string]int, len(out))
	tierOf := func(source string) int {
		if tier, ok := tiers[source]; ok {
			return tier
		}
		tier := vendorTier(source, vendors)
		tiers[source] = tier
		return tier
	}
	sort.SliceStable(out, func(i, j int) bool {
		left, right := out[i], out[j]
		if cmp := compareInt(tierOf(left.Source), tierOf(right.Source)); cmp != 0 {
			return cmp < 0
		}
		return compareOffers(left, right, domain.SortPrice) < 0
	})
	return MarkBestPrice(out)
}

// vendorTier is the index of the first vendor contained in source, or
// len(vendors) when none is.
func vendorTier(source string, vendors []string) int {
	name := strings.ToLower(source)
	for i, vendor := range vendors {
		vendor = strings.ToLower(strings.TrimSpace(vendor))
		if vendor != "" && strings.Contains(name, vendor) {
			return i
		}
	}
	return len(vendors)
}

// MarkBestPrice flags every offer whose price equals the lowest known price.
func MarkBestPrice(offers []domain.Offer) []domain.Offer {
	out := cloneOffers(offers)
	lowest := math.Inf(1)
	for _, offer := range out {
		if offer.HasPrice() && *offer.PriceValue < lowest {
			lowest = *offer.PriceValue
		}
	}
	for i := range out {
		out[i].BestPrice = out[i].HasPrice() && *out[i].PriceValue == lowest
	}
	return out
}

func compareOffers(left, right domain.Offer, mode domain.SortMode) int {
	switch mode {
	case domain.SortPrice:
		if cmp := compareFloat64(left.SortPrice(), right.SortPrice()); cmp != 0 {
			return cmp
		}
		if cmp := compareFloat64(right.Relevance, left.Relevance); cmp != 0 {
			return cmp
		}
	default:
		if cmp := compareFloat64(right.Relevance, left.Relevance); cmp != 0 {
			return cmp
		}
		if cmp := compareFloat64(left.SortPrice(), right.SortPrice()); cmp != 0 {
			return cmp
		}
	}
	return compareIdentity(left, right)
}

// compareIdentity is the final tie-break so that sorting never depends on
// input order.
func compareIdentity(left, right domain.Offer) int {
	if cmp := strings.Compare(strings.ToLower(left.Title), strings.ToLower(right.Title)); cmp != 0 {
		return cmp
	}
	if cmp := strings.Compare(domain.NormalizedLink(left.Link), domain.NormalizedLink(right.Link)); cmp != 0 {
		return cmp
	}
	if cmp := strings.Compare(left.Source, right.Source); cmp != 0 {
		return cmp
	}
	if cmp := strings.Compare(left.Title, right.Title); cmp != 0 {
		return cmp
	}
	if cmp := strings.Compare(left.Link, right.Link); cmp != 0 {
		return cmp
	}
	if cmp := strings.Compare(left.Image, right.Image); cmp != 0 {
		return cmp
	}
	if cmp := strings.Compare(left.PriceText, right.PriceText); cmp != 0 {
		return cmp
	}
	return compareBool(left.InStock, right.InStock)
}

func compareInt(left, right int) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

func compareFloat64(left, right float64) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

func compareBool(left, right bool) int {
	switch {
	case left == right:
		return 0
	case right:
		return -1
	default:
		return 1
	}
}

func cloneOffers(offers []domain.Offer) []domain.Offer {
	if len(offers) == 0 {
		return nil
	}
	return append([]domain.Offer(nil), offers...)
}
