package ebay

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
	defaultEndpoint   = "https://www.ebay.com"
	defaultMaxResults = 10
	sourceLabel       = "eBay"
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
	return "ebay"
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
	searchURL := base.ResolveReference(&url.URL{Path: "/sch/i.html"})
	params := searchURL.Query()
	params.Set("_nkw", query)
	searchURL.RawQuery = params.Encode()

	doc, err := p.fetcher.Document(ctx, searchURL.String())
	if err != nil {
		return nil, err
	}
	return parseResults(doc, base, p.maxResults), nil
}

func parseResults(doc *goquery.Document, base *url.URL, limit int) []domain.RawOffer {
	offers := make([]domain.RawOffer, 0, limit)
	doc.Find("li.s-item").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		title := strings.TrimPrefix(common.SelectionText(card.Find(".s-item__title")), "New Listing")
		title = strings.TrimSpace(title)
		// The first card on every results page is a "Shop on eBay" placeholder.
		if title == "" || strings.EqualFold(title, "Shop on eBay") {
			return true
		}
		href := common.FirstAttr(card.Find("a.s-item__link"), "href")
		price := common.SelectionText(card.Find(".s-item__price"))
		if href == "" || price == "" {
			return true
		}

		offers = append(offers, domain.RawOffer{
			Title:   title,
			Price:   price,
			InStock: true,
			Source:  sourceLabel,
			Link:    common.ResolveURL(base, href),
			Image:   common.FirstAttr(card.Find("img"), "src", "data-src"),
		})
		return len(offers) < limit
	})
	return offers
}
