package mobilesentrix

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
	defaultEndpoint   = "https://www.mobilesentrix.com"
	defaultMaxResults = 10
	sourceLabel       = "MobileSentrix"
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
	return "mobilesentrix"
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
	searchURL := base.ResolveReference(&url.URL{Path: "/catalogsearch/result/"})
	params := searchURL.Query()
	params.Set("q", query)
	searchURL.RawQuery = params.Encode()

	doc, err := p.fetcher.Document(ctx, searchURL.String())
	if err != nil {
		return nil, err
	}
	return parseResults(doc, base, p.maxResults), nil
}

func parseResults(doc *goquery.Document, base *url.URL, limit int) []domain.RawOffer {
	offers := make([]domain.RawOffer, 0, limit)
	doc.Find("li.product-item").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		linkEl := card.Find("a.product-item-link")
		title := common.SelectionText(linkEl)
		link := common.ResolveURL(base, common.FirstAttr(linkEl, "href"))
		if title == "" || link == "" {
			return true
		}

		offer := domain.RawOffer{
			Title:   title,
			Source:  sourceLabel,
			Link:    link,
			InStock: !common.ContainsFold(card.Text(), "out of stock"),
		}
		if price := common.SelectionText(card.Find("span.price")); price != "" {
			offer.Price = price
		}
		if image := common.FirstAttr(card.Find("img.product-image-photo"), "src", "data-src"); image != "" {
			offer.Image = common.ResolveURL(base, image)
		}
		offers = append(offers, offer)
		return len(offers) < limit
	})
	return offers
}
