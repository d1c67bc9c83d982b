package amazon

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricescout/searchservice/internal/domain"
	"pricescout/searchservice/internal/providers/common"
)

const (
	defaultEndpoint   = "https://www.amazon.com"
	defaultMaxResults = 10
	sourceLabel       = "Amazon"
)

type Config struct {
	Endpoint   string
	Fetcher    *common.Fetcher
	MaxResults int
}

type Provider struct {
	fetcher    *common.Fetcher
	endpoint   string
	maxResults int
}

func NewProvider(cfg Config) *Provider {
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = common.NewFetcher(common.FetcherConfig{})
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Provider{fetcher: fetcher, endpoint: endpoint, maxResults: maxResults}
}

func (p *Provider) Name() string {
	return "amazon"
}

func (p *Provider) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:    p.Name(),
		Label:   sourceLabel,
		Kind:    domain.SourceKindStorefront,
		Tier:    domain.TierPrimary,
		Enabled: true,
	}
}

func (p *Provider) Fetch(ctx context.Context, query string) ([]domain.RawOffer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	base, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	searchURL := base.ResolveReference(&url.URL{Path: "/s"})
	params := searchURL.Query()
	params.Set("k", query)
	searchURL.RawQuery = params.Encode()

	doc, err := p.fetcher.Document(ctx, searchURL.String())
	if err != nil {
		return nil, err
	}
	return parseResults(doc, base, p.maxResults), nil
}

func parseResults(doc *goquery.Document, base *url.URL, limit int) []domain.RawOffer {
	offers := make([]domain.RawOffer, 0, limit)
	doc.Find("div[data-component-type='s-search-result']").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		title := common.SelectionText(card.Find("h2 a span"))
		if title == "" {
			title = common.SelectionText(card.Find("h2 span"))
		}
		href := common.FirstAttr(card.Find("h2 a"), "href")
		if href == "" {
			href = common.FirstAttr(card.Find("a.a-link-normal[href*='/dp/']"), "href")
		}
		if title == "" || href == "" {
			return true
		}

		// Listings without a buy box still show up; stock is only known on the
		// product page, so search hits are treated as available.
		offer := domain.RawOffer{
			Title:   title,
			Source:  sourceLabel,
			Link:    common.ResolveURL(base, href),
			InStock: true,
		}
		price := common.SelectionText(card.Find("span.a-price > span.a-offscreen"))
		if price == "" {
			price = common.SelectionText(card.Find("span.a-offscreen"))
		}
		if price != "" {
			offer.Price = price
		}
		offer.Image = common.FirstAttr(card.Find("img.s-image"), "src")
		offers = append(offers, offer)
		return len(offers) < limit
	})
	return offers
}
