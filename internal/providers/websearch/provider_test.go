package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricescout/searchservice/internal/providers/common"
)

func resultBlock(href, title, snippet string) string {
	return fmt.Sprintf(`<div class="result results_links"><h2><a class="result__a" href="%s">%s</a></h2><a class="result__snippet">%s</a></div>`, href, title, snippet)
}

func wrapped(target string) string {
	return "//duckduckgo.com/l/?uddg=" + url.QueryEscape(target) + "&amp;rut=abc"
}

func TestFetchParsesAndEnrichesResults(t *testing.T) {
	var previews atomic.Int32
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/html/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ps5 hdmi port", r.URL.Query().Get("q"))
		page := resultBlock(wrapped(server.URL+"/p/1"), "PS5 HDMI Port", "Genuine replacement port") +
			resultBlock(wrapped(server.URL+"/p/2"), "PS5 HDMI Repair Guide", "Step-by-step teardown") +
			resultBlock("https://duckduckgo.com/y.js?ad=1", "Sponsored", "") +
			resultBlock(server.URL+"/p/3", "HDMI port for PS5", "")
		_, _ = w.Write([]byte("<html><body>" + page + "</body></html>"))
	})
	mux.HandleFunc("/p/1", func(w http.ResponseWriter, r *http.Request) {
		previews.Add(1)
		_, _ = w.Write([]byte(`<html><head>
<meta property="og:image" content="/img/port.jpg">
<meta property="product:price:amount" content="12.50">
</head></html>`))
	})
	mux.HandleFunc("/p/3", func(w http.ResponseWriter, r *http.Request) {
		previews.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	provider := NewProvider(Config{
		Endpoint: server.URL + "/html/",
		Fetcher:  common.NewFetcher(common.FetcherConfig{Client: server.Client()}),
	})
	offers, err := provider.Fetch(context.Background(), "ps5 hdmi port")
	require.NoError(t, err)
	require.Len(t, offers, 2)

	host := strings.TrimPrefix(server.URL, "http://")
	first := offers[0]
	assert.Equal(t, "PS5 HDMI Port", first.Title)
	assert.Equal(t, server.URL+"/p/1", first.Link)
	assert.Equal(t, host, first.Source)
	assert.Equal(t, "Genuine replacement port", first.Snippet)
	assert.Equal(t, server.URL+"/img/port.jpg", first.Image)
	assert.Equal(t, "12.50", first.Price)
	assert.Equal(t, false, first.InStock)

	second := offers[1]
	assert.Equal(t, server.URL+"/p/3", second.Link)
	assert.Nil(t, second.Price)
	assert.Empty(t, second.Image)
	assert.EqualValues(t, 2, previews.Load())
}

func TestParseResultsAllowsGuidesWhenAsked(t *testing.T) {
	page := resultBlock("https://www.ifixit.com/Guide/PS5+HDMI", "PS5 HDMI Port Replacement", "iFixit repair guide")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	assert.Empty(t, parseResults(doc, "ps5 hdmi port", 10))
	assert.Len(t, parseResults(doc, "ps5 hdmi port guide", 10), 1)
}

func TestResolveLink(t *testing.T) {
	tests := map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fshop.example%2Fp%3Fid%3D1&rut=x": "https://shop.example/p?id=1",
		"https://shop.example/direct": "https://shop.example/direct",
		"//shop.example/relative":     "https://shop.example/relative",
		"":                            "",
	}
	for input, want := range tests {
		assert.Equal(t, want, resolveLink(input), input)
	}
}

func TestPreviewDetailsFallbackSelectors(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<head>
<meta property="og:image" content="">
<meta name="twitter:image" content="https://cdn.example/t.jpg">
<meta itemprop="price" content="19.99">
</head>`))
	require.NoError(t, err)

	image, price := previewDetails(doc)
	assert.Equal(t, "https://cdn.example/t.jpg", image)
	assert.Equal(t, "19.99", price)
}
