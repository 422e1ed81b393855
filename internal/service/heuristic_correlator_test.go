package service

import (
	"context"
	"testing"

	"docflow/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func projection(docType models.DocumentType, amount float64, counterparty, taxID string) models.DocumentProjection {
	return models.DocumentProjection{
		ID:           uuid.New(),
		Type:         docType,
		Amount:       &amount,
		Counterparty: counterparty,
		TaxID:        taxID,
	}
}

func TestHeuristicGroupsByTaxID(t *testing.T) {
	h := NewHeuristicCorrelator()

	docs := []models.DocumentProjection{
		projection(models.DocumentTypeExpenseVoucher, 8500000, "GLOBAL CONSULTING GROUP SAS", "900123456"),
		projection(models.DocumentTypeInvoice, 8500040, "GLOBAL CONSULTING SAS", "900123456"),
		projection(models.DocumentTypePaymentProof, 120000, "OTRA EMPRESA SA", "811222333"),
	}

	suggestions, err := h.Suggest(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, "tax_id", suggestions[0].CorrelationType)
	require.Equal(t, models.ConfidenceHigh, suggestions[0].Confidence)
	require.ElementsMatch(t, []uuid.UUID{docs[0].ID, docs[1].ID}, suggestions[0].DocumentIDs)
}

func TestHeuristicShortTaxIDIgnored(t *testing.T) {
	h := NewHeuristicCorrelator()

	docs := []models.DocumentProjection{
		projection(models.DocumentTypeExpenseVoucher, 100, "ALPHA LTDA", "123"),
		projection(models.DocumentTypeInvoice, 99999, "BETA LTDA", "123"),
	}

	suggestions, err := h.Suggest(context.Background(), docs)
	require.NoError(t, err)
	for _, s := range suggestions {
		require.NotEqual(t, "tax_id", s.CorrelationType)
	}
}

func TestHeuristicExactAmountSimilarCounterpartyIsHigh(t *testing.T) {
	h := NewHeuristicCorrelator()

	docs := []models.DocumentProjection{
		projection(models.DocumentTypeExpenseVoucher, 8500000, "GLOBAL CONSULTING GROUP SAS", ""),
		projection(models.DocumentTypePaymentProof, 8500000, "GLOBAL CONSULTING GROUP S.A.S", ""),
	}

	suggestions, err := h.Suggest(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, "amount", suggestions[0].CorrelationType)
	require.Equal(t, models.ConfidenceHigh, suggestions[0].Confidence)
}

func TestHeuristicNearAmountDifferentCounterpartyIsMedium(t *testing.T) {
	h := NewHeuristicCorrelator()

	docs := []models.DocumentProjection{
		projection(models.DocumentTypeExpenseVoucher, 1000000, "ALPHA SUMINISTROS SA", ""),
		projection(models.DocumentTypePaymentProof, 1005000, "COMPLETAMENTE DISTINTO LTDA", ""),
	}

	suggestions, err := h.Suggest(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, models.ConfidenceMedium, suggestions[0].Confidence)
}

func TestHeuristicThreeAmountMatchesAreHigh(t *testing.T) {
	h := NewHeuristicCorrelator()

	docs := []models.DocumentProjection{
		projection(models.DocumentTypeExpenseVoucher, 500000, "UNO SA", ""),
		projection(models.DocumentTypePayableAccount, 500000, "DOS SA", ""),
		projection(models.DocumentTypePaymentProof, 501000, "TRES SA", ""),
	}

	suggestions, err := h.Suggest(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, models.ConfidenceHigh, suggestions[0].Confidence)
	require.Len(t, suggestions[0].DocumentIDs, 3)
}

func TestHeuristicCounterpartyWordFallback(t *testing.T) {
	h := NewHeuristicCorrelator()

	a := models.DocumentProjection{ID: uuid.New(), Counterparty: "AVIANCA CARGO SAS"}
	b := models.DocumentProjection{ID: uuid.New(), Counterparty: "SERVICIOS AVIANCA LTDA"}
	c := models.DocumentProjection{ID: uuid.New(), Counterparty: "PANADERIA EL TRIGAL"}

	suggestions, err := h.Suggest(context.Background(), []models.DocumentProjection{a, b, c})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, "counterparty", suggestions[0].CorrelationType)
	require.Equal(t, models.ConfidenceMedium, suggestions[0].Confidence)
	require.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, suggestions[0].DocumentIDs)
}

func TestHeuristicEachDocumentAtMostOneGroup(t *testing.T) {
	h := NewHeuristicCorrelator()

	// Qualifies for tax id AND amount AND counterparty passes; must
	// appear exactly once across all suggestions.
	docs := []models.DocumentProjection{
		projection(models.DocumentTypeExpenseVoucher, 8500000, "GLOBAL CONSULTING GROUP SAS", "900123456"),
		projection(models.DocumentTypeInvoice, 8500000, "GLOBAL CONSULTING GROUP SAS", "900123456"),
		projection(models.DocumentTypePaymentProof, 8500000, "GLOBAL PAGOS SA", ""),
	}

	suggestions, err := h.Suggest(context.Background(), docs)
	require.NoError(t, err)

	seen := make(map[uuid.UUID]int)
	for _, s := range suggestions {
		for _, id := range s.DocumentIDs {
			seen[id]++
		}
	}
	for id, n := range seen {
		require.Equal(t, 1, n, "document %s appears in %d groups", id, n)
	}
}

func TestHeuristicAmountPassNeedsCounterparty(t *testing.T) {
	h := NewHeuristicCorrelator()

	docs := []models.DocumentProjection{
		projection(models.DocumentTypeInvoice, 250000, "", ""),
		projection(models.DocumentTypePaymentProof, 250000, "", ""),
	}

	suggestions, err := h.Suggest(context.Background(), docs)
	require.NoError(t, err)
	require.Empty(t, suggestions, "counterparty-less documents must not group on amount alone")
}
