package service

import (
	"context"
	"encoding/json"
	"fmt"

	"docflow/internal/models"

	"go.uber.org/zap"
)

// Completer is the text-completion capability the AI correlator needs.
// Satisfied by ExtractionService.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AICorrelator asks the model to group document projections. Any
// failure (transport, malformed reply) is returned to the caller, who
// falls back to the heuristic.
type AICorrelator struct {
	completer Completer
	logger    *zap.Logger
}

func NewAICorrelator(completer Completer, logger *zap.Logger) *AICorrelator {
	return &AICorrelator{completer: completer, logger: logger}
}

const correlationPromptHeader = `Eres un asistente contable. Agrupa los siguientes documentos en lotes que correspondan a la misma transacción.

Criterios, en orden de prioridad:
1. mismo NIT
2. valores iguales o dentro del 5%
3. nombres de tercero similares
4. fechas separadas por menos de 30 días
5. referencia bancaria o número de documento compartido
6. suma de facturas igual al valor del soporte de pago

Cada documento puede pertenecer a lo sumo a un grupo. Solo propone grupos de dos o más documentos.

Responde únicamente con un arreglo JSON con esta forma:
[
  {
    "group_label": "nombre del tercero o etiqueta del grupo",
    "document_ids": ["uuid", "uuid"],
    "confidence": "high" | "medium" | "low",
    "correlation_type": "tax_id" | "amount" | "counterparty" | "reference",
    "rationale": "breve razón de la agrupación"
  }
]

Documentos:
`

func (a *AICorrelator) Suggest(ctx context.Context, docs []models.DocumentProjection) ([]models.CorrelationSuggestion, error) {
	payload, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal projections: %w", err)
	}

	content, err := a.completer.Complete(ctx, correlationPromptHeader+string(payload))
	if err != nil {
		return nil, fmt.Errorf("correlation completion failed: %w", err)
	}

	jsonStr := extractJSON(content, '[', ']')
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON array in correlation response")
	}

	var suggestions []models.CorrelationSuggestion
	if err := json.Unmarshal([]byte(jsonStr), &suggestions); err != nil {
		return nil, fmt.Errorf("failed to parse correlation response: %w", err)
	}

	for i := range suggestions {
		switch suggestions[i].Confidence {
		case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
		default:
			suggestions[i].Confidence = models.ConfidenceLow
		}
	}

	a.logger.Debug("AI correlation produced suggestions", zap.Int("count", len(suggestions)))
	return suggestions, nil
}
