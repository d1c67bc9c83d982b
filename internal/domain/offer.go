package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	UnknownTitle  = "Unknown Product"
	UnknownSource = "Unknown"
)

// Offer is one normalized listing. Stages of the pipeline copy offers, they
// never modify one after it was produced.
type Offer struct {
	Title      string   `json:"title"`
	PriceText  string   `json:"price,omitempty"`
	PriceValue *float64 `json:"price_value"`
	InStock    bool     `json:"in_stock"`
	Source     string   `json:"source"`
	Link       string   `json:"link"`
	Image      string   `json:"image,omitempty"`
	Relevance  float64  `json:"relevance"`
	MatchScore *float64 `json:"match_score,omitempty"`
	BestPrice  bool     `json:"best_price"`
}

// HasPrice reports whether the offer carries a known price.
func (o Offer) HasPrice() bool {
	return o.PriceValue != nil
}

// SortPrice returns the price for ordering purposes; unknown prices sort last.
func (o Offer) SortPrice() float64 {
	if o.PriceValue == nil {
		return math.Inf(1)
	}
	return *o.PriceValue
}

// Price returns a pointer suitable for Offer.PriceValue.
func Price(value float64) *float64 {
	return &value
}

// RawOffer is what a source adapter hands back. Price and InStock keep the
// value the source produced: a string, any numeric kind, a bool or nil.
type RawOffer struct {
	Title   string `json:"title,omitempty"`
	Price   any    `json:"price,omitempty"`
	InStock any    `json:"in_stock,omitempty"`
	Source  string `json:"source,omitempty"`
	Link    string `json:"link,omitempty"`
	Image   string `json:"image,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// RawOfferFromMap builds a RawOffer from loosely decoded JSON. Scalar values
// in text fields are stringified; anything else is ignored.
func RawOfferFromMap(item map[string]any) RawOffer {
	if item == nil {
		return RawOffer{}
	}
	return RawOffer{
		Title:   scalarString(item["title"]),
		Price:   item["price"],
		InStock: item["in_stock"],
		Source:  scalarString(item["source"]),
		Link:    scalarString(firstPresent(item, "link", "url")),
		Image:   scalarString(firstPresent(item, "image", "image_url")),
		Snippet: scalarString(item["snippet"]),
	}
}

func firstPresent(item map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := item[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func scalarString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// NormalizedLink is the identity form of a link used for de-duplication.
func NormalizedLink(link string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(link), "/"))
}
