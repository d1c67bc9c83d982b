package ebay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricescout/searchservice/internal/domain"
	"pricescout/searchservice/internal/providers/common"
)

const resultsPage = `
<ul class="srp-results">
  <li class="s-item">
    <div class="s-item__title"><span>Shop on eBay</span></div>
    <a class="s-item__link" href="https://ebay.com/itm/123456"></a>
    <span class="s-item__price">$20.00</span>
  </li>
  <li class="s-item">
    <img class="s-item__image-img" src="https://i.ebayimg.com/ps5.jpg">
    <a class="s-item__link" href="https://www.ebay.com/itm/2001">
      <div class="s-item__title"><span class="LIGHT_HIGHLIGHT">New Listing</span>PS5 HDMI Port Replacement</div>
    </a>
    <span class="s-item__price">$8.49 to $12.99</span>
  </li>
  <li class="s-item">
    <a class="s-item__link" href="/itm/2002"><div class="s-item__title">PS5 HDMI Port (no price)</div></a>
  </li>
</ul>`

func TestFetchParsesListings(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("_nkw")
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer server.Close()

	provider := NewProvider(Config{
		Endpoint: server.URL,
		Fetcher:  common.NewFetcher(common.FetcherConfig{Client: server.Client()}),
	})
	offers, err := provider.Fetch(context.Background(), "ps5 hdmi port")
	require.NoError(t, err)

	assert.Equal(t, "/sch/i.html", gotPath)
	assert.Equal(t, "ps5 hdmi port", gotQuery)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.RawOffer{
		Title:   "PS5 HDMI Port Replacement",
		Price:   "$8.49 to $12.99",
		InStock: true,
		Source:  "eBay",
		Link:    "https://www.ebay.com/itm/2001",
		Image:   "https://i.ebayimg.com/ps5.jpg",
	}, offers[0])
}

func TestParseResultsRespectsLimit(t *testing.T) {
	var page strings.Builder
	for i := 0; i < 5; i++ {
		page.WriteString(`<li class="s-item"><a class="s-item__link" href="/itm/1"><span class="s-item__title">Fan</span></a><span class="s-item__price">$5</span></li>`)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.String()))
	require.NoError(t, err)

	assert.Len(t, parseResults(doc, nil, 3), 3)
}
