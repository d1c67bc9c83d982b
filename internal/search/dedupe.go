package search

import (
	"strings"

	"pricescout/searchservice/internal/domain"
)

// Dedupe drops repeated offers keeping the first occurrence. Identity is the
// normalized link, or the lower-cased title for offers without one. Offers
// with neither are dropped; the placeholder title from Normalize does not
// count as a title.
func Dedupe(offers []domain.Offer) []domain.Offer {
	if len(offers) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(offers))
	out := make([]domain.Offer, 0, len(offers))
	for _, offer := range offers {
		key := dedupeKey(offer)
		if key == "" {
			continue
		}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, offer)
	}
	return out
}

func dedupeKey(offer domain.Offer) string {
	if link := domain.NormalizedLink(offer.Link); link != "" {
		return "link:" + link
	}
	title := strings.ToLower(strings.TrimSpace(offer.Title))
	if title != "" && title != strings.ToLower(domain.UnknownTitle) {
		return "title:" + title
	}
	return ""
}
