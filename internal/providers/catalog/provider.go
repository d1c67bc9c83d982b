// Package catalog serves offers from a curated list compiled into the
// binary, so searches return something predictable without network access.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/titanous/json5"

	"pricescout/searchservice/internal/domain"
)

const defaultMaxResults = 10

//go:embed catalog.json5
var embeddedCatalog []byte

type Item struct {
	Title      string  `json:"title"`
	Price      string  `json:"price"`
	PriceValue float64 `json:"price_value"`
	InStock    bool    `json:"in_stock"`
	Source     string  `json:"source"`
	Link       string  `json:"link"`
	Image      string  `json:"image"`
	Keywords   string  `json:"keywords"`
}

type Config struct {
	// Items replaces the embedded catalog when non-nil.
	Items      []Item
	MaxResults int
}

type Provider struct {
	items      []Item
	maxResults int
}

// Load parses a JSON5 catalog document.
func Load(data []byte) ([]Item, error) {
	var items []Item
	if err := json5.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return items, nil
}

func NewProvider(cfg Config) (*Provider, error) {
	items := cfg.Items
	if items == nil {
		loaded, err := Load(embeddedCatalog)
		if err != nil {
			return nil, err
		}
		items = loaded
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Provider{items: items, maxResults: maxResults}, nil
}

func (p *Provider) Name() string {
	return "catalog"
}

func (p *Provider) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:    p.Name(),
		Label:   "Offline catalog",
		Kind:    domain.SourceKindCatalog,
		Tier:    domain.TierPrimary,
		Enabled: len(p.items) > 0,
	}
}

func (p *Provider) Fetch(ctx context.Context, query string) ([]domain.RawOffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	type scored struct {
		score int
		item  Item
	}
	matches := make([]scored, 0, len(p.items))
	for _, item := range p.items {
		haystack := strings.ToLower(item.Title + " " + item.Keywords)
		score := 0
		for _, token := range tokens {
			if strings.Contains(haystack, token) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{score: score, item: item})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].item.PriceValue < matches[j].item.PriceValue
	})
	if len(matches) > p.maxResults {
		matches = matches[:p.maxResults]
	}

	offers := make([]domain.RawOffer, 0, len(matches))
	for _, match := range matches {
		offers = append(offers, domain.RawOffer{
			Title:   match.item.Title,
			Price:   match.item.Price,
			InStock: match.item.InStock,
			Source:  match.item.Source,
			Link:    match.item.Link,
			Image:   match.item.Image,
		})
	}
	return offers, nil
}

// queryTokens keeps lowercase query words longer than two characters.
func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := fields[:0]
	for _, field := range fields {
		if len(field) > 2 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}
