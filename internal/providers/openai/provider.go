// Package openai asks a chat-completion model for product listings and query
// rewrites. Replies are free text, so every parser here is lenient.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/titanous/json5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pricescout/searchservice/internal/domain"
	"pricescout/searchservice/internal/providers/common"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 20 * time.Second
	defaultSource  = "OpenAI"
	temperature    = 0.2
)

const productPrompt = `Return ONLY a valid JSON array (no markdown, no commentary) describing at least
five relevant products for the search query %q. Each product must be an
object containing: title (string), price (number), in_stock (boolean), source
(string), link (string URL), and image (string URL). If exact data is unknown,
provide your best estimate and set in_stock to false. Make sure prices are
numeric values (floats) without currency symbols.`

const rewritePrompt = `Rewrite the repair-part search query %q into at most %d alternative
search queries that a parts storefront would match well. Return ONLY a JSON
array of strings, most specific first.`

var (
	jsonObjectArrayPattern = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)
	jsonArrayPattern       = regexp.MustCompile(`(?s)\[.*\]`)
	preferredObjectKeys    = []string{"products", "results", "items", "data"}
)

var ErrNoJSONArray = errors.New("model reply contains no JSON array")

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// Client overrides the resty client, mainly for tests.
	Client *resty.Client
}

type Provider struct {
	client *resty.Client
	apiKey string
	model  string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = resty.New().
			SetTimeout(timeout).
			SetTransport(otelhttp.NewTransport(http.DefaultTransport))
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client.SetBaseURL(baseURL)
	client.SetHeader("Content-Type", "application/json")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		client: client,
		apiKey: strings.TrimSpace(cfg.APIKey),
		model:  model,
	}
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:    p.Name(),
		Label:   "OpenAI",
		Kind:    domain.SourceKindGenerative,
		Tier:    domain.TierFallback,
		Enabled: p.apiKey != "",
	}
}

// Fetch asks the model for listings. A reply without a parseable array is an
// empty result, not a failure.
func (p *Provider) Fetch(ctx context.Context, query string) ([]domain.RawOffer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	reply, err := p.complete(ctx, fmt.Sprintf(productPrompt, query))
	if err != nil {
		return nil, err
	}
	items, err := extractObjects(reply)
	if errors.Is(err, ErrNoJSONArray) {
		return []domain.RawOffer{}, nil
	}
	if err != nil {
		return nil, err
	}

	offers := make([]domain.RawOffer, 0, len(items))
	for _, item := range items {
		offer := domain.RawOfferFromMap(item)
		if strings.TrimSpace(offer.Source) == "" {
			offer.Source = defaultSource
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// Rewrite implements search.Rewriter.
func (p *Provider) Rewrite(ctx context.Context, query string, limit int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	reply, err := p.complete(ctx, fmt.Sprintf(rewritePrompt, query, limit))
	if err != nil {
		return nil, err
	}
	return extractStrings(reply)
}

func (p *Provider) complete(ctx context.Context, prompt string) (string, error) {
	var result chatResponse
	var failure apiError
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(p.apiKey).
		SetBody(chatRequest{
			Model:       p.model,
			Temperature: temperature,
			Messages: []chatMessage{
				{Role: "system", Content: "You are a repair-parts sourcing assistant."},
				{Role: "user", Content: prompt},
			},
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		message := strings.TrimSpace(failure.Error.Message)
		if message == "" {
			message = http.StatusText(resp.StatusCode())
		}
		return "", fmt.Errorf("%w: openai returned %d: %s", common.ErrUnexpectedStatus, resp.StatusCode(), message)
	}
	for _, choice := range result.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", nil
}

// extractObjects parses the whole reply first, then falls back to the first
// array of objects embedded in prose.
func extractObjects(reply string) ([]map[string]any, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, ErrNoJSONArray
	}

	var parsed any
	if err := json5.Unmarshal([]byte(reply), &parsed); err == nil {
		if items := coerceObjects(parsed); len(items) > 0 {
			return items, nil
		}
	}

	match := jsonObjectArrayPattern.FindString(reply)
	if match == "" {
		return nil, ErrNoJSONArray
	}
	parsed = nil
	if err := json5.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, ErrNoJSONArray
	}
	items := coerceObjects(parsed)
	if len(items) == 0 {
		return nil, ErrNoJSONArray
	}
	return items, nil
}

func coerceObjects(candidate any) []map[string]any {
	switch value := candidate.(type) {
	case []any:
		items := make([]map[string]any, 0, len(value))
		for _, element := range value {
			if item, ok := element.(map[string]any); ok {
				items = append(items, item)
			}
		}
		return items
	case map[string]any:
		for _, key := range preferredObjectKeys {
			if nested, ok := value[key].([]any); ok {
				return coerceObjects(nested)
			}
		}
	}
	return nil
}

func extractStrings(reply string) ([]string, error) {
	reply = strings.TrimSpace(reply)
	candidates := []string{reply}
	if match := jsonArrayPattern.FindString(reply); match != "" && match != reply {
		candidates = append(candidates, match)
	}
	for _, candidate := range candidates {
		var values []any
		if err := json5.Unmarshal([]byte(candidate), &values); err != nil {
			continue
		}
		out := make([]string, 0, len(values))
		for _, value := range values {
			if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
				out = append(out, strings.TrimSpace(text))
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, ErrNoJSONArray
}
