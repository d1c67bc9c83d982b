package search

import (
	"reflect"
	"testing"

	"pricescout/searchservice/internal/domain"
)

func TestDedupeByNormalizedLink(t *testing.T) {
	offers := []domain.Offer{
		{Title: "Screen A", Link: "https://shop.example/item/1/", Source: "first"},
		{Title: "Screen A (copy)", Link: "  HTTPS://SHOP.EXAMPLE/item/1", Source: "second"},
		{Title: "Screen B", Link: "https://shop.example/item/2"},
	}
	got := Dedupe(offers)
	if len(got) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(got))
	}
	if got[0].Source != "first" {
		t.Fatalf("first occurrence must win, got %q", got[0].Source)
	}
}

func TestDedupeFallsBackToTitle(t *testing.T) {
	offers := []domain.Offer{
		{Title: " Pixel 6 Battery "},
		{Title: "pixel 6 battery"},
		{Title: "Pixel 6 Battery", Link: "https://x/1"},
	}
	got := Dedupe(offers)
	if len(got) != 2 {
		t.Fatalf("expected title duplicate removed, got %+v", got)
	}
}

func TestDedupeDropsOffersWithoutIdentity(t *testing.T) {
	got := Dedupe([]domain.Offer{{Title: "  ", Link: ""}, {Title: "ok"}})
	if len(got) != 1 || got[0].Title != "ok" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestDedupeIsIdempotent(t *testing.T) {
	offers := []domain.Offer{
		{Title: "a", Link: "https://x/1"},
		{Title: "b", Link: "https://x/1/"},
		{Title: "c"},
		{Title: "C"},
		{Title: "d", Link: "https://x/2"},
	}
	once := Dedupe(offers)
	twice := Dedupe(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("dedupe is not idempotent:\n%+v\n%+v", once, twice)
	}

	unique := []domain.Offer{{Title: "a", Link: "https://x/1"}, {Title: "b", Link: "https://x/2"}}
	if got := Dedupe(unique); !reflect.DeepEqual(got, unique) {
		t.Fatalf("unique input must pass through unchanged, got %+v", got)
	}
}

func TestDedupeDropsLinklessPlaceholderTitles(t *testing.T) {
	offers := NormalizeAll([]domain.RawOffer{
		{Title: "", Price: "$10", Source: "a"},
		{Title: "   ", Price: "$12", Source: "b"},
		{Title: "Unknown Product", Price: "$14", Link: "https://x/1", Source: "c"},
		{Title: "Pixel 6 Battery", Price: "$16", Source: "d"},
	})
	got := Dedupe(offers)
	if len(got) != 2 {
		t.Fatalf("expected linked placeholder and titled offer, got %+v", got)
	}
	if got[0].Source != "c" || got[1].Source != "d" {
		t.Fatalf("unexpected survivors: %+v", got)
	}
}
