package google

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
	defaultEndpoint   = "https://www.google.com/search"
	defaultMaxResults = 10
)

type Config struct {
	Endpoint   string
	Fetcher    *common.Fetcher
	MaxResults int
}

// Provider scrapes a Google results page. Shopping cards carry prices and
// come first; organic hits follow without one.
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
	endpoint := strings.TrimSpace(cfg.Endpoint)
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
	return "google"
}

func (p *Provider) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:    p.Name(),
		Label:   "Google",
		Kind:    domain.SourceKindWebSearch,
		Tier:    domain.TierFallback,
		Enabled: true,
	}
}

func (p *Provider) Fetch(ctx context.Context, query string) ([]domain.RawOffer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	searchURL, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	params := searchURL.Query()
	params.Set("q", query)
	params.Set("hl", "en")
	searchURL.RawQuery = params.Encode()

	doc, err := p.fetcher.Document(ctx, searchURL.String())
	if err != nil {
		return nil, err
	}
	offers := parseShopping(doc, searchURL, p.maxResults)
	offers = append(offers, parseOrganic(doc, searchURL, p.maxResults)...)
	if len(offers) > p.maxResults {
		offers = offers[:p.maxResults]
	}
	return offers, nil
}

func parseShopping(doc *goquery.Document, base *url.URL, limit int) []domain.RawOffer {
	offers := make([]domain.RawOffer, 0, limit)
	doc.Find("div.sh-dgr__content").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		title := common.SelectionText(card.Find("h3, div.EI11Pd").First())
		price := common.SelectionText(card.Find("span.a8Pemb").First())
		link := resolveLink(base, common.FirstAttr(card.Find("a"), "href"))
		if title == "" || price == "" || link == "" {
			return true
		}
		source := common.SelectionText(card.Find("div.aULzUe").First())
		if source == "" {
			source = common.DomainFor(link)
		}

		offers = append(offers, domain.RawOffer{
			Title:   title,
			Price:   price,
			InStock: true,
			Source:  source,
			Link:    link,
			Image:   common.FirstAttr(card.Find("img"), "src", "data-src"),
		})
		return len(offers) < limit
	})
	return offers
}

func parseOrganic(doc *goquery.Document, base *url.URL, limit int) []domain.RawOffer {
	offers := make([]domain.RawOffer, 0, limit)
	doc.Find("div.g, div.MjjYud").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		// div.g is often nested in div.MjjYud; the inner card is visited too.
		if card.HasClass("MjjYud") && card.Find("div.g").Length() > 0 {
			return true
		}
		title := common.SelectionText(card.Find("h3").First())
		link := resolveLink(base, common.FirstAttr(card.Find("a"), "href"))
		source := common.DomainFor(link)
		if title == "" || link == "" || strings.HasSuffix(source, "google.com") {
			return true
		}
		snippet := common.SelectionText(card.Find("div.VwiC3b").First())
		if snippet == "" {
			snippet = common.SelectionText(card.Find("div.IsZvec").First())
		}

		offers = append(offers, domain.RawOffer{
			Title:   title,
			InStock: false,
			Source:  source,
			Link:    link,
			Snippet: snippet,
		})
		return len(offers) < limit
	})
	return offers
}

// resolveLink unwraps /url?q= redirects and resolves relative hrefs.
func resolveLink(base *url.URL, href string) string {
	link := common.ResolveURL(base, href)
	if link == "" {
		return ""
	}
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	if parsed.Path == "/url" {
		for _, key := range []string{"q", "url"} {
			if target := parsed.Query().Get(key); strings.HasPrefix(target, "http") {
				return target
			}
		}
		return ""
	}
	return link
}
