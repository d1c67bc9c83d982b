package search

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type stubRewriter struct {
	variants []string
	err      error
	block    bool
	panics   bool
}

func (r *stubRewriter) Rewrite(ctx context.Context, query string, limit int) ([]string, error) {
	if r.panics {
		panic("rewriter bug")
	}
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.variants, r.err
}

func TestExpandVendorFallback(t *testing.T) {
	expander := NewExpander(3, []string{"mobilesentrix", "amazon", "ebay"})
	got := expander.Expand(context.Background(), "  iphone 13 screen ")
	want := []string{"iphone 13 screen", "iphone 13 screen mobilesentrix", "iphone 13 screen amazon"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestExpandSkipsVendorsAlreadyInQuery(t *testing.T) {
	expander := NewExpander(3, []string{"mobilesentrix", "amazon", "ebay"})
	got := expander.Expand(context.Background(), "Amazon kindle screen")
	want := []string{"Amazon kindle screen", "Amazon kindle screen mobilesentrix", "Amazon kindle screen ebay"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestExpandBlankQuery(t *testing.T) {
	expander := NewExpander(3, nil)
	if got := expander.Expand(context.Background(), "   "); got != nil {
		t.Fatalf("expected nil for blank query, got %v", got)
	}
}

func TestExpandSingleVariant(t *testing.T) {
	expander := NewExpander(1, nil, WithRewriter(&stubRewriter{variants: []string{"other"}}))
	if got := expander.Expand(context.Background(), "pixel 8 screen"); !reflect.DeepEqual(got, []string{"pixel 8 screen"}) {
		t.Fatalf("unexpected variants %v", got)
	}
}

func TestExpandUsesRewriterAndDeduplicates(t *testing.T) {
	rewriter := &stubRewriter{variants: []string{
		"IPHONE 13 SCREEN",
		"  ",
		"iphone 13 screen amazon",
		"iPhone 13 Screen Amazon",
		"iphone 13 oled mobilesentrix",
		"iphone 13 display ebay",
	}}
	expander := NewExpander(3, nil, WithRewriter(rewriter))
	got := expander.Expand(context.Background(), "iphone 13 screen")
	want := []string{"iphone 13 screen", "iphone 13 screen amazon", "iphone 13 oled mobilesentrix"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestExpandFallsBackOnRewriterProblems(t *testing.T) {
	want := []string{"ps5 hdmi port", "ps5 hdmi port mobilesentrix", "ps5 hdmi port amazon"}
	cases := map[string]*stubRewriter{
		"error":           {err: errors.New("quota exceeded")},
		"empty":           {variants: nil},
		"panic":           {panics: true},
		"blocks":          {block: true},
		"only duplicates": {variants: []string{"PS5 HDMI Port", " ps5 hdmi port ", ""}},
	}
	for name, rewriter := range cases {
		t.Run(name, func(t *testing.T) {
			expander := NewExpander(3, nil, WithRewriter(rewriter), WithRewriteTimeout(20*time.Millisecond))
			started := time.Now()
			got := expander.Expand(context.Background(), "ps5 hdmi port")
			if time.Since(started) > time.Second {
				t.Fatalf("rewriter timeout not applied")
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("Expand = %v, want %v", got, want)
			}
		})
	}
}
