package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExtractionResponseStructured(t *testing.T) {
	content := "```json\n" + `{
		"tipo_documento": "comprobante_egreso",
		"valor": 8500000,
		"fecha": "2025-03-10",
		"tercero": "GLOBAL CONSULTING GROUP SAS",
		"nit": "900.123.456",
		"numero_documento": "CE-2025-999"
	}` + "\n```"

	result, err := parseExtractionResponse(content, false)
	require.NoError(t, err)
	require.NotNil(t, result.Fields)
	require.Equal(t, "comprobante_egreso", result.Fields.DocumentType.String())
	// Numeric JSON values survive as their literal text.
	require.Equal(t, "8500000", result.Fields.Amount.String())
	require.Equal(t, "CE-2025-999", result.Fields.DocumentNumber.String())
}

func TestParseExtractionResponseWithSurroundingChatter(t *testing.T) {
	content := `Claro, aquí está el análisis del documento: {"tipo_documento": "factura", "valor": "120000", "tercero": null} Espero que sea útil.`

	result, err := parseExtractionResponse(content, false)
	require.NoError(t, err)
	require.NotNil(t, result.Fields)
	require.Equal(t, "factura", result.Fields.DocumentType.String())
	require.Equal(t, "", result.Fields.Counterparty.String(), "null maps to empty")
}

func TestParseExtractionResponseUnstructured(t *testing.T) {
	content := "No puedo leer este documento, la imagen está demasiado borrosa."

	result, err := parseExtractionResponse(content, false)
	require.NoError(t, err, "unstructured replies are data, not errors")
	require.Nil(t, result.Fields)
	require.Equal(t, content, result.RawText)
	require.NotEmpty(t, result.Raw)
}

func TestParseExtractionResponsePagewise(t *testing.T) {
	content := `{"es_documento_valido": true, "descripcion": "comprobante de egreso", "tipo_documento": "comprobante_egreso", "tercero": "ACME SA"}`

	result, err := parseExtractionResponse(content, true)
	require.NoError(t, err)
	require.True(t, result.IsValidDocument)
	require.Equal(t, "comprobante de egreso", result.PageDescription)

	blank := `{"es_documento_valido": false, "descripcion": "página en blanco"}`
	result, err = parseExtractionResponse(blank, true)
	require.NoError(t, err)
	require.False(t, result.IsValidDocument)
}

func TestExtractJSONArray(t *testing.T) {
	content := "```json\n[{\"group_label\": \"A\"}]\n```"
	require.Equal(t, `[{"group_label": "A"}]`, extractJSON(content, '[', ']'))

	require.Equal(t, "", extractJSON("sin json", '[', ']'))
}

func TestTokenAccessorsAreConcurrencySafe(t *testing.T) {
	s := &ExtractionService{accessToken: "initial"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.setToken(fmt.Sprintf("token-%d", n))
		}(i)
		go func() {
			defer wg.Done()
			_ = s.token()
		}()
	}
	wg.Wait()

	require.NotEmpty(t, s.token())
}
