package websearch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"pricescout/searchservice/internal/domain"
	"pricescout/searchservice/internal/providers/common"
)

const (
	defaultEndpoint          = "https://html.duckduckgo.com/html/"
	defaultMaxResults        = 10
	defaultMaxPreviews       = 5
	defaultPreviewConcurrent = 3
)

var guideIndicators = []string{"repair guide", "ifixit", "how to", "tutorial", "step-by-step"}

var previewImageSelectors = []string{
	"meta[property='og:image']",
	"meta[name='og:image']",
	"meta[name='twitter:image']",
	"meta[property='twitter:image']",
	"link[rel='image_src']",
}

var previewPriceSelectors = []string{
	"meta[property='product:price:amount']",
	"meta[property='og:price:amount']",
	"meta[name='price']",
	"meta[itemprop='price']",
}

type Config struct {
	Endpoint    string
	Fetcher     *common.Fetcher
	MaxResults  int
	MaxPreviews int
}

// Provider searches the DuckDuckGo HTML endpoint and enriches the top hits
// with image and price metadata from the linked pages.
type Provider struct {
	fetcher     *common.Fetcher
	endpoint    string
	maxResults  int
	maxPreviews int
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
	maxPreviews := cfg.MaxPreviews
	if maxPreviews < 0 {
		maxPreviews = 0
	} else if maxPreviews == 0 {
		maxPreviews = defaultMaxPreviews
	}
	return &Provider{
		fetcher:     fetcher,
		endpoint:    endpoint,
		maxResults:  maxResults,
		maxPreviews: maxPreviews,
	}
}

func (p *Provider) Name() string {
	return "websearch"
}

func (p *Provider) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:    p.Name(),
		Label:   "Web search",
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
	params.Set("kl", "us-en")
	searchURL.RawQuery = params.Encode()

	doc, err := p.fetcher.Document(ctx, searchURL.String())
	if err != nil {
		return nil, err
	}
	offers := parseResults(doc, query, p.maxResults)
	p.enrich(ctx, offers)
	return offers, nil
}

// enrich fills missing image and price fields from page metadata. Preview
// failures are ignored; the hit is still useful without them.
func (p *Provider) enrich(ctx context.Context, offers []domain.RawOffer) {
	count := min(len(offers), p.maxPreviews)
	if count == 0 {
		return
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(defaultPreviewConcurrent)
	for i := 0; i < count; i++ {
		offer := &offers[i]
		group.Go(func() error {
			doc, err := p.fetcher.Document(groupCtx, offer.Link)
			if err != nil {
				return nil
			}
			image, price := previewDetails(doc)
			if offer.Image == "" && image != "" {
				offer.Image = common.ResolveURL(parseOrNil(offer.Link), image)
			}
			if offer.Price == nil && price != "" {
				offer.Price = price
			}
			return nil
		})
	}
	_ = group.Wait()
}

func parseResults(doc *goquery.Document, query string, limit int) []domain.RawOffer {
	allowGuides := common.ContainsFold(query, "guide")
	offers := make([]domain.RawOffer, 0, limit)
	doc.Find("div.result").EachWithBreak(func(_ int, block *goquery.Selection) bool {
		linkEl := block.Find("a.result__a")
		if linkEl.Length() == 0 {
			return true
		}
		link := resolveLink(common.FirstAttr(linkEl, "href"))
		source := common.DomainFor(link)
		if link == "" || strings.HasSuffix(source, "duckduckgo.com") {
			return true
		}
		title := common.SelectionText(linkEl)
		snippet := common.SelectionText(block.Find(".result__snippet"))
		if !allowGuides && isRepairGuide(title, snippet) {
			return true
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

// resolveLink unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasSuffix(parsed.Host, "duckduckgo.com") && strings.HasPrefix(parsed.Path, "/l/") {
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if parsed.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func isRepairGuide(title, snippet string) bool {
	text := strings.ToLower(title + " " + snippet)
	for _, indicator := range guideIndicators {
		if strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}

func previewDetails(doc *goquery.Document) (image, price string) {
	for _, selector := range previewImageSelectors {
		if value := common.FirstAttr(doc.Find(selector), "content", "href"); value != "" {
			image = value
			break
		}
	}
	for _, selector := range previewPriceSelectors {
		if value := common.FirstAttr(doc.Find(selector), "content", "value"); value != "" {
			price = value
			break
		}
	}
	return image, price
}

func parseOrNil(raw string) *url.URL {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return parsed
}
