package search

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"pricescout/searchservice/internal/domain"
)

var (
	tokenPattern        = regexp.MustCompile(`[\p{L}\p{N}]+`)
	priceLeadInPattern  = regexp.MustCompile(`(?i)\b(from|starting at)\b`)
	priceNumberPattern  = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
	priceDashReplacer   = strings.NewReplacer("–", "-", "—", "-")
	inStockTruthyValues = map[string]struct{}{
		"true": {}, "yes": {}, "y": {}, "1": {}, "available": {}, "in stock": {},
	}
)

// Normalize converts a raw adapter record into an Offer. Missing or malformed
// fields fall back to defaults; it never fails.
func Normalize(raw domain.RawOffer) domain.Offer {
	offer := domain.Offer{
		Title:   strings.TrimSpace(raw.Title),
		InStock: coerceInStock(raw.InStock),
		Source:  strings.TrimSpace(raw.Source),
		Link:    strings.TrimSpace(raw.Link),
		Image:   strings.TrimSpace(raw.Image),
	}
	if offer.Title == "" {
		offer.Title = domain.UnknownTitle
	}
	if offer.Source == "" {
		offer.Source = domain.UnknownSource
	}
	offer.PriceText, offer.PriceValue = coercePrice(raw.Price)
	return offer
}

// NormalizeAll normalizes a batch, preserving order.
func NormalizeAll(raws []domain.RawOffer) []domain.Offer {
	if len(raws) == 0 {
		return nil
	}
	out := make([]domain.Offer, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw))
	}
	return out
}

// ParsePrice extracts a numeric price from display text such as "$129.99",
// "From $10 - $20" or "Starting at 1,299". A range yields the mean of its
// first two numbers. ok is false when the text holds no number.
func ParsePrice(text string) (value float64, ok bool) {
	cleaned := priceLeadInPattern.ReplaceAllString(text, "")
	cleaned = priceDashReplacer.Replace(cleaned)
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	matches := priceNumberPattern.FindAllString(cleaned, -1)
	if len(matches) == 0 {
		return 0, false
	}

	first, err := strconv.ParseFloat(matches[0], 64)
	if err != nil {
		return 0, false
	}
	if strings.Contains(cleaned, "-") && len(matches) >= 2 {
		second, err := strconv.ParseFloat(matches[1], 64)
		if err == nil {
			return (first + second) / 2, true
		}
	}
	return first, true
}

func coercePrice(value any) (string, *float64) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		text := strings.TrimSpace(v)
		parsed, ok := ParsePrice(text)
		if !ok {
			return text, nil
		}
		return text, domain.Price(parsed)
	case json.Number:
		return coercePrice(v.String())
	case bool:
		return "", nil
	}

	number, ok := numericValue(value)
	if !ok || math.IsNaN(number) || math.IsInf(number, 0) || number < 0 {
		return "", nil
	}
	return strconv.FormatFloat(number, 'f', -1, 64), domain.Price(number)
}

func coerceInStock(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		_, ok := inStockTruthyValues[strings.ToLower(strings.TrimSpace(v))]
		return ok
	case json.Number:
		number, err := v.Float64()
		return err == nil && number != 0 && !math.IsNaN(number)
	}
	number, ok := numericValue(value)
	return ok && number != 0 && !math.IsNaN(number)
}

func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
