package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"docflow/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestAICorrelatorParsesFencedArray(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	completer := &fakeCompleter{response: fmt.Sprintf("```json\n"+`[
		{
			"group_label": "ACME SA",
			"document_ids": ["%s", "%s"],
			"confidence": "high",
			"correlation_type": "tax_id",
			"rationale": "mismo NIT"
		}
	]`+"\n```", id1, id2)}

	correlator := NewAICorrelator(completer, zap.NewNop())
	suggestions, err := correlator.Suggest(context.Background(), []models.DocumentProjection{
		{ID: id1, Counterparty: "ACME SA"},
		{ID: id2, Counterparty: "ACME SA"},
	})
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Equal(t, []uuid.UUID{id1, id2}, suggestions[0].DocumentIDs)
	require.Equal(t, models.ConfidenceHigh, suggestions[0].Confidence)

	// The prompt carries the projections.
	require.Contains(t, completer.prompt, id1.String())
	require.Contains(t, completer.prompt, "ACME SA")
}

func TestAICorrelatorUnknownConfidenceBecomesLow(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	completer := &fakeCompleter{response: fmt.Sprintf(
		`[{"group_label": "X", "document_ids": ["%s", "%s"], "confidence": "muy alta"}]`, id1, id2)}

	correlator := NewAICorrelator(completer, zap.NewNop())
	suggestions, err := correlator.Suggest(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, models.ConfidenceLow, suggestions[0].Confidence)
}

func TestAICorrelatorErrorsPropagate(t *testing.T) {
	correlator := NewAICorrelator(&fakeCompleter{err: errors.New("unavailable")}, zap.NewNop())
	_, err := correlator.Suggest(context.Background(), nil)
	require.Error(t, err)

	correlator = NewAICorrelator(&fakeCompleter{response: "no hay grupos"}, zap.NewNop())
	_, err = correlator.Suggest(context.Background(), nil)
	require.Error(t, err, "replies without a JSON array are errors so the heuristic takes over")
}
