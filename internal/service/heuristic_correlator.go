package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"docflow/internal/models"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
)

const (
	minTaxIDLen          = 6
	amountTolerance      = 0.01 // relative
	counterpartyMinScore = 0.85
)

// HeuristicCorrelator groups documents with three deterministic
// passes, strongest signal first:
//
//  1. shared tax id, sub-grouped by amount magnitude
//  2. matching amounts with similar counterparties
//  3. shared significant counterparty word
//
// A document joins at most one group; earlier passes claim first.
type HeuristicCorrelator struct{}

func NewHeuristicCorrelator() *HeuristicCorrelator {
	return &HeuristicCorrelator{}
}

func (h *HeuristicCorrelator) Suggest(_ context.Context, docs []models.DocumentProjection) ([]models.CorrelationSuggestion, error) {
	claimed := make(map[uuid.UUID]bool)
	var suggestions []models.CorrelationSuggestion

	suggestions = append(suggestions, h.byTaxID(docs, claimed)...)
	suggestions = append(suggestions, h.byAmount(docs, claimed)...)
	suggestions = append(suggestions, h.byCounterpartyWord(docs, claimed)...)

	return suggestions, nil
}

// byTaxID groups documents sharing a tax id, then splits each group by
// amount rounded to the nearest hundred so one supplier's unrelated
// transactions do not collapse into a single group.
func (h *HeuristicCorrelator) byTaxID(docs []models.DocumentProjection, claimed map[uuid.UUID]bool) []models.CorrelationSuggestion {
	byID := make(map[string][]models.DocumentProjection)
	var order []string
	for _, doc := range docs {
		if claimed[doc.ID] || len(doc.TaxID) < minTaxIDLen {
			continue
		}
		if _, seen := byID[doc.TaxID]; !seen {
			order = append(order, doc.TaxID)
		}
		byID[doc.TaxID] = append(byID[doc.TaxID], doc)
	}

	var suggestions []models.CorrelationSuggestion
	for _, taxID := range order {
		group := byID[taxID]
		if len(group) < 2 {
			continue
		}

		byMagnitude := make(map[int64][]models.DocumentProjection)
		var magnitudes []int64
		for _, doc := range group {
			var key int64 = -1
			if doc.Amount != nil {
				key = int64(math.Round(*doc.Amount/100) * 100)
			}
			if _, seen := byMagnitude[key]; !seen {
				magnitudes = append(magnitudes, key)
			}
			byMagnitude[key] = append(byMagnitude[key], doc)
		}
		sort.Slice(magnitudes, func(i, j int) bool { return magnitudes[i] < magnitudes[j] })

		for _, key := range magnitudes {
			sub := byMagnitude[key]
			if len(sub) < 2 {
				continue
			}
			ids := make([]uuid.UUID, 0, len(sub))
			for _, doc := range sub {
				claimed[doc.ID] = true
				ids = append(ids, doc.ID)
			}
			suggestions = append(suggestions, models.CorrelationSuggestion{
				GroupLabel:      groupLabel(sub),
				DocumentIDs:     ids,
				Confidence:      models.ConfidenceHigh,
				CorrelationType: "tax_id",
				Rationale:       fmt.Sprintf("%d documentos con NIT %s y valores similares", len(sub), taxID),
			})
		}
	}
	return suggestions
}

// byAmount seeds groups from unclaimed documents carrying both an
// amount and a counterparty, pulling in others whose amount is within
// the relative tolerance. High confidence needs three members, or two
// with exactly equal amounts and similar counterparties.
func (h *HeuristicCorrelator) byAmount(docs []models.DocumentProjection, claimed map[uuid.UUID]bool) []models.CorrelationSuggestion {
	var suggestions []models.CorrelationSuggestion

	for i, seed := range docs {
		if claimed[seed.ID] || seed.Amount == nil || seed.Counterparty == "" {
			continue
		}

		group := []models.DocumentProjection{seed}
		for _, other := range docs[i+1:] {
			if claimed[other.ID] || other.Amount == nil {
				continue
			}
			if amountsMatch(*seed.Amount, *other.Amount) {
				group = append(group, other)
			}
		}
		if len(group) < 2 {
			continue
		}

		confidence := models.ConfidenceMedium
		if len(group) >= 3 {
			confidence = models.ConfidenceHigh
		} else if *group[0].Amount == *group[1].Amount &&
			counterpartySimilarity(group[0].Counterparty, group[1].Counterparty) >= counterpartyMinScore {
			confidence = models.ConfidenceHigh
		}

		ids := make([]uuid.UUID, 0, len(group))
		for _, doc := range group {
			claimed[doc.ID] = true
			ids = append(ids, doc.ID)
		}
		suggestions = append(suggestions, models.CorrelationSuggestion{
			GroupLabel:      groupLabel(group),
			DocumentIDs:     ids,
			Confidence:      confidence,
			CorrelationType: "amount",
			Rationale:       fmt.Sprintf("%d documentos con valor cercano a %.2f", len(group), *seed.Amount),
		})
	}
	return suggestions
}

// byCounterpartyWord groups the leftovers on a shared significant word
// of the counterparty name. Always medium confidence.
func (h *HeuristicCorrelator) byCounterpartyWord(docs []models.DocumentProjection, claimed map[uuid.UUID]bool) []models.CorrelationSuggestion {
	var suggestions []models.CorrelationSuggestion

	for i, seed := range docs {
		if claimed[seed.ID] || seed.Counterparty == "" {
			continue
		}
		seedWords := significantWords(seed.Counterparty)
		if len(seedWords) == 0 {
			continue
		}

		group := []models.DocumentProjection{seed}
		var shared string
		for _, other := range docs[i+1:] {
			if claimed[other.ID] || other.Counterparty == "" {
				continue
			}
			if w := sharedWord(seedWords, significantWords(other.Counterparty)); w != "" {
				group = append(group, other)
				shared = w
			}
		}
		if len(group) < 2 {
			continue
		}

		ids := make([]uuid.UUID, 0, len(group))
		for _, doc := range group {
			claimed[doc.ID] = true
			ids = append(ids, doc.ID)
		}
		suggestions = append(suggestions, models.CorrelationSuggestion{
			GroupLabel:      groupLabel(group),
			DocumentIDs:     ids,
			Confidence:      models.ConfidenceMedium,
			CorrelationType: "counterparty",
			Rationale:       fmt.Sprintf("%d documentos mencionan %q", len(group), shared),
		})
	}
	return suggestions
}

func amountsMatch(a, b float64) bool {
	if a == b {
		return true
	}
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return true
	}
	return math.Abs(a-b)/larger <= amountTolerance
}

// counterpartySimilarity is 1 - normalized levenshtein distance over
// the already upper-cased names.
func counterpartySimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func significantWords(name string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToUpper(name)) {
		if len([]rune(w)) > 3 {
			words = append(words, w)
		}
	}
	return words
}

func sharedWord(a, b []string) string {
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	for _, w := range b {
		if set[w] {
			return w
		}
	}
	return ""
}

// groupLabel names a suggestion after the first counterparty found,
// falling back to a generic label.
func groupLabel(group []models.DocumentProjection) string {
	for _, doc := range group {
		if doc.Counterparty != "" {
			return doc.Counterparty
		}
	}
	return "Grupo sin tercero"
}
