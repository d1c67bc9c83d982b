package search

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"pricescout/searchservice/internal/domain"
)

const (
	DefaultRelevanceThreshold = 0.80

	significantTokenMinLength = 3
	fuzzyTokenMinLength       = 5
	fuzzyTokenMaxDistance     = 1
	fuzzyTokenWeight          = 0.8

	coverageWeight      = 0.75
	sequenceWeight      = 0.25
	noiseTokenPenalty   = 0.3
	noisePenaltyCeiling = 0.6
)

// DefaultNoiseKeywords are accessory words that usually mean the listing is
// not the part itself.
var DefaultNoiseKeywords = []string{
	"case", "cover", "cable", "charger", "manual", "adapter", "protector",
	"sticker", "stand", "holder", "skin", "strap", "pouch", "mount",
}

// RelevanceScorer scores titles against a query and drops weak matches.
// It holds no per-request state and is safe for concurrent use.
type RelevanceScorer struct {
	threshold float64
	noise     map[string]struct{}
}

// NewRelevanceScorer falls back to DefaultRelevanceThreshold outside [0,1].
// A zero threshold keeps every offer.
func NewRelevanceScorer(threshold float64, noiseKeywords []string) *RelevanceScorer {
	if threshold < 0 || threshold > 1 {
		threshold = DefaultRelevanceThreshold
	}
	if noiseKeywords == nil {
		noiseKeywords = DefaultNoiseKeywords
	}
	noise := make(map[string]struct{}, len(noiseKeywords))
	for _, keyword := range noiseKeywords {
		keyword = foldText(strings.ToLower(strings.TrimSpace(keyword)))
		if keyword != "" {
			noise[keyword] = struct{}{}
		}
	}
	return &RelevanceScorer{threshold: threshold, noise: noise}
}

func (r *RelevanceScorer) Threshold() float64 {
	return r.threshold
}

type queryTerms struct {
	normalized  string
	significant []string
	all         map[string]struct{}
}

func parseQueryTerms(query string) queryTerms {
	normalized := normalizeForMatch(query)
	terms := queryTerms{normalized: normalized, all: make(map[string]struct{})}
	for _, token := range tokenPattern.FindAllString(normalized, -1) {
		if _, seen := terms.all[token]; seen {
			continue
		}
		terms.all[token] = struct{}{}
		if utf8.RuneCountInString(token) >= significantTokenMinLength {
			terms.significant = append(terms.significant, token)
		}
	}
	return terms
}

// Score returns a similarity in [0,1] between query and title.
func (r *RelevanceScorer) Score(query, title string) float64 {
	return r.score(parseQueryTerms(query), title)
}

func (r *RelevanceScorer) score(terms queryTerms, title string) float64 {
	normalizedTitle := normalizeForMatch(title)
	titleTokens := tokenPattern.FindAllString(normalizedTitle, -1)
	titleSet := make(map[string]struct{}, len(titleTokens))
	for _, token := range titleTokens {
		titleSet[token] = struct{}{}
	}

	sequence := sequenceRatio(terms.normalized, normalizedTitle)
	coverage := sequence
	if len(terms.significant) > 0 {
		var matched float64
		for _, token := range terms.significant {
			matched += tokenMatchWeight(token, titleSet)
		}
		coverage = matched / float64(len(terms.significant))
	}

	penalty := 0.0
	for token := range titleSet {
		if _, isNoise := r.noise[token]; !isNoise {
			continue
		}
		if _, inQuery := terms.all[token]; inQuery {
			continue
		}
		penalty += noiseTokenPenalty
	}
	penalty = math.Min(penalty, noisePenaltyCeiling)

	return clamp01(coverageWeight*coverage + sequenceWeight*sequence - penalty)
}

func tokenMatchWeight(token string, titleSet map[string]struct{}) float64 {
	if _, ok := titleSet[token]; ok {
		return 1
	}
	length := utf8.RuneCountInString(token)
	if length < fuzzyTokenMinLength {
		return 0
	}
	for candidate := range titleSet {
		if utf8.RuneCountInString(candidate) != length {
			continue
		}
		if matchr.DamerauLevenshtein(token, candidate) <= fuzzyTokenMaxDistance {
			return fuzzyTokenWeight
		}
	}
	return 0
}

// Annotate sets Relevance on every offer without dropping any.
func (r *RelevanceScorer) Annotate(query string, offers []domain.Offer) []domain.Offer {
	if len(offers) == 0 {
		return nil
	}
	terms := parseQueryTerms(query)
	out := make([]domain.Offer, len(offers))
	for i, offer := range offers {
		offer.Relevance = r.score(terms, offer.Title)
		out[i] = offer
	}
	return out
}

// Filter keeps offers scoring at or above the threshold. When none do, the
// single best scoring offer is returned so a non-empty input never yields an
// empty result.
func (r *RelevanceScorer) Filter(query string, offers []domain.Offer) []domain.Offer {
	scored := r.Annotate(query, offers)
	if len(scored) == 0 {
		return nil
	}

	kept := make([]domain.Offer, 0, len(scored))
	best := -1
	for i := range scored {
		score := scored[i].Relevance
		scored[i].MatchScore = &score
		if score >= r.threshold {
			kept = append(kept, scored[i])
		}
		if best < 0 || betterFallback(scored[i], scored[best]) {
			best = i
		}
	}
	if len(kept) > 0 {
		return kept
	}
	return []domain.Offer{scored[best]}
}

func betterFallback(candidate, current domain.Offer) bool {
	if cmp := compareFloat64(candidate.Relevance, current.Relevance); cmp != 0 {
		return cmp > 0
	}
	if cmp := compareFloat64(candidate.SortPrice(), current.SortPrice()); cmp != 0 {
		return cmp < 0
	}
	return compareIdentity(candidate, current) < 0
}

func normalizeForMatch(value string) string {
	return strings.Join(strings.Fields(foldText(strings.ToLower(value))), " ")
}

// foldText strips combining marks so "écran" matches "ecran".
func foldText(value string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, value)
	if err != nil {
		return value
	}
	return folded
}

// sequenceRatio is the Ratcliff/Obershelp similarity 2*M/T, where M is the
// total size of the longest matching blocks found recursively.
func sequenceRatio(a, b string) float64 {
	left := []rune(a)
	right := []rune(b)
	total := len(left) + len(right)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(left, right)) / float64(total)
}

func matchingRunes(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(a), 0, len(b)}}
	matched := 0
	for len(queue) > 0 {
		current := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, size := longestMatch(a, b, current.alo, current.ahi, current.blo, current.bhi)
		if size == 0 {
			continue
		}
		matched += size
		if current.alo < i && current.blo < j {
			queue = append(queue, span{current.alo, i, current.blo, j})
		}
		if i+size < current.ahi && j+size < current.bhi {
			queue = append(queue, span{i + size, current.ahi, j + size, current.bhi})
		}
	}
	return matched
}

func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (int, int, int) {
	bestI, bestJ, bestSize := alo, blo, 0
	prev := make([]int, bhi-blo+1)
	next := make([]int, bhi-blo+1)
	for i := alo; i < ahi; i++ {
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				next[j-blo+1] = 0
				continue
			}
			size := prev[j-blo] + 1
			next[j-blo+1] = size
			if size > bestSize {
				bestI, bestJ, bestSize = i-size+1, j-size+1, size
			}
		}
		prev, next = next, prev
	}
	return bestI, bestJ, bestSize
}

func clamp01(value float64) float64 {
	switch {
	case math.IsNaN(value) || value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
