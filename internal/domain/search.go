package domain

import (
	"strings"
	"time"
)

type SortMode string

const (
	SortDefault SortMode = "default"
	SortPrice   SortMode = "price"
	SortMatch   SortMode = "match"
	SortVendor  SortMode = "vendor"
)

func NormalizeSortMode(raw string) SortMode {
	switch SortMode(strings.ToLower(strings.TrimSpace(raw))) {
	case SortPrice:
		return SortPrice
	case SortMatch:
		return SortMatch
	case SortVendor:
		return SortVendor
	default:
		return SortDefault
	}
}

type SearchRequest struct {
	Query       string
	InStockOnly bool
	Sort        SortMode
	NoCache     bool
}

type SourceKind string

const (
	SourceKindStorefront SourceKind = "storefront"
	SourceKindWebSearch  SourceKind = "websearch"
	SourceKindGenerative SourceKind = "generative"
	SourceKindCatalog    SourceKind = "catalog"
)

type SourceTier string

const (
	TierPrimary  SourceTier = "primary"
	TierFallback SourceTier = "fallback"
)

type SourceInfo struct {
	Name    string     `json:"name"`
	Label   string     `json:"label"`
	Kind    SourceKind `json:"kind"`
	Tier    SourceTier `json:"tier"`
	Enabled bool       `json:"enabled"`
}

type SourceStatus struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Count    int    `json:"count"`
	Calls    int    `json:"calls"`
	Failures int    `json:"failures,omitempty"`
	TimedOut int    `json:"timedOut,omitempty"`
	Error    string `json:"error,omitempty"`
}

type SourceDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                SourceKind `json:"kind"`
	Tier                SourceTier `json:"tier"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

type SearchResponse struct {
	Query       string         `json:"query"`
	Items       []Offer        `json:"items"`
	Variants    []string       `json:"variants,omitempty"`
	Sources     []SourceStatus `json:"sources"`
	ElapsedMS   int64          `json:"elapsedMs"`
	TotalItems  int            `json:"totalItems"`
	Sort        SortMode       `json:"sort"`
	InStockOnly bool           `json:"inStockOnly"`
	Fallback    bool           `json:"fallback,omitempty"`
	Unsupported bool           `json:"unsupported,omitempty"`
	Cached      bool           `json:"cached,omitempty"`
}
