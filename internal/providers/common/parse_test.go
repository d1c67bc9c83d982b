package common

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanHTMLText(t *testing.T) {
	assert.Equal(t, "iPhone 13 & Screen", CleanHTMLText("  <b>iPhone 13</b>\n &amp;  Screen "))
	assert.Empty(t, CleanHTMLText("   "))
}

func TestSelectionHelpers(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
<div>
  <a class="x" href="/p/1" data-src="ignored">  First
     link </a>
  <a class="x" href="/p/2">Second</a>
  <img class="pic" src="" data-src="/img/1.jpg">
</div>`))
	require.NoError(t, err)

	assert.Equal(t, "First link", SelectionText(doc.Find("a.x")))
	assert.Equal(t, "/p/1", FirstAttr(doc.Find("a.x"), "href"))
	assert.Equal(t, "/img/1.jpg", FirstAttr(doc.Find("img.pic"), "src", "data-src"))
	assert.Empty(t, SelectionText(doc.Find("span.missing")))
	assert.Empty(t, FirstAttr(doc.Find("span.missing"), "href"))
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://www.example.com/catalog/")
	assert.Equal(t, "https://www.example.com/p/1", ResolveURL(base, "/p/1"))
	assert.Equal(t, "https://www.example.com/catalog/p/2", ResolveURL(base, "p/2"))
	assert.Equal(t, "https://cdn.example.net/x.jpg", ResolveURL(base, "https://cdn.example.net/x.jpg"))
	assert.Empty(t, ResolveURL(base, "  "))
}

func TestDomainFor(t *testing.T) {
	assert.Equal(t, "www.ifixit.com", DomainFor("https://www.ifixit.com/parts/1"))
	assert.Equal(t, "Web", DomainFor("not a url"))
	assert.Equal(t, "Web", DomainFor(""))
}
