package common

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// CleanHTMLText strips markup and entities and collapses whitespace.
func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// SelectionText returns the collapsed text of the first node in sel.
func SelectionText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(sel.First().Text()), " ")
}

// FirstAttr returns the first non-empty attribute among names on the first
// node in sel.
func FirstAttr(sel *goquery.Selection, names ...string) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	node := sel.First()
	for _, name := range names {
		if value, ok := node.Attr(name); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

// ResolveURL resolves href against base. Unparseable input is returned
// trimmed but otherwise unchanged.
func ResolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// DomainFor returns the host of link, or "Web" when there is none.
func DomainFor(link string) string {
	parsed, err := url.Parse(strings.TrimSpace(link))
	if err != nil || parsed.Host == "" {
		return "Web"
	}
	return parsed.Host
}

// ContainsFold reports whether substr occurs in s ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
