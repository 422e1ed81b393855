package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"docflow/pkg/config"

	"github.com/Role1776/gigago"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExtractedFields is the structured half of an extraction result.
// Values arrive as raw strings; normalization happens in the lifecycle
// service.
type ExtractedFields struct {
	DocumentType   flexString `json:"tipo_documento"`
	Amount         flexString `json:"valor"`
	Date           flexString `json:"fecha"`
	Concept        flexString `json:"concepto"`
	Counterparty   flexString `json:"tercero"`
	TaxID          flexString `json:"nit"`
	BankReference  flexString `json:"referencia_bancaria"`
	BankName       flexString `json:"banco"`
	DocumentNumber flexString `json:"numero_documento"`
}

// ExtractionResult is a tagged union: Fields set means the model
// returned structured data; otherwise RawText holds the unstructured
// reply. Raw always carries the untouched response for provenance.
type ExtractionResult struct {
	Fields  *ExtractedFields
	RawText string
	Raw     json.RawMessage

	// Pagewise mode only.
	IsValidDocument bool
	PageDescription string
}

// Extractor is the AI extraction capability. pagewise mode classifies
// a single page and adds IsValidDocument/PageDescription.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string, pagewise bool) (*ExtractionResult, error)
}

// flexString tolerates JSON strings, numbers and null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	*f = flexString(s)
	return nil
}

func (f flexString) String() string { return string(f) }

const systemInstruction = `Eres un experto en análisis de documentos contables colombianos. ` +
	`Extraes información precisa de comprobantes de egreso, cuentas por pagar, facturas y soportes de pago. ` +
	`Siempre respondes con JSON válido, sin texto adicional.`

// ExtractionService talks to GigaChat. Chat prompts go through the
// gigago client; file uploads and vision calls use the REST API with
// a cached OAuth token.
type ExtractionService struct {
	client     *gigago.Client
	model      *gigago.GenerativeModel
	config     *config.GigaChatConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string

	// tokenMu guards accessToken; page extraction fans out over a
	// shared service.
	tokenMu     sync.Mutex
	accessToken string
}

func (s *ExtractionService) token() string {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	return s.accessToken
}

func (s *ExtractionService) setToken(token string) {
	s.tokenMu.Lock()
	s.accessToken = token
	s.tokenMu.Unlock()
}

func NewExtractionService(cfg *config.GigaChatConfig, logger *zap.Logger) (*ExtractionService, error) {
	ctx := context.Background()

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel("GigaChat")
	model.SystemInstruction = systemInstruction
	model.Temperature = 0.1

	httpClient := &http.Client{}
	if cfg.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	accessToken, err := getAccessToken(ctx, cfg, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	return &ExtractionService{
		client:      client,
		model:       model,
		config:      cfg,
		logger:      logger,
		httpClient:  httpClient,
		accessToken: accessToken,
		baseURL:     "https://gigachat.devices.sberbank.ru/api/v1",
	}, nil
}

func (s *ExtractionService) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// getAccessToken obtains an OAuth token for direct REST calls (file
// upload, vision). The API key must already be Base64-encoded.
func getAccessToken(ctx context.Context, cfg *config.GigaChatConfig, httpClient *http.Client, logger *zap.Logger) (string, error) {
	oauthURL := "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"

	formData := url.Values{}
	formData.Set("scope", cfg.Scope)

	req, err := http.NewRequestWithContext(ctx, "POST", oauthURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create OAuth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.New().String())
	req.Header.Set("Authorization", "Basic "+cfg.APIKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		logger.Error("OAuth request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(bodyBytes)),
		)
		return "", fmt.Errorf("OAuth failed with status %d", resp.StatusCode)
	}

	var oauthResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oauthResp); err != nil {
		return "", fmt.Errorf("failed to decode OAuth response: %w", err)
	}
	if oauthResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in OAuth response")
	}

	return oauthResp.AccessToken, nil
}

const documentPrompt = `Analiza este documento contable y extrae la siguiente información en formato JSON:
{
    "tipo_documento": "comprobante_egreso" | "cuenta_por_pagar" | "factura" | "soporte_pago",
    "valor": "valor total del documento",
    "fecha": "YYYY-MM-DD",
    "concepto": "texto del concepto",
    "tercero": "nombre del beneficiario o proveedor",
    "nit": "NIT o identificación tributaria del tercero",
    "referencia_bancaria": "número de referencia bancaria si existe",
    "banco": "nombre del banco si aparece",
    "numero_documento": "número del comprobante, factura o documento"
}

Si algún campo no está presente, usa null. Responde solo con el JSON, sin texto adicional.`

const pagePrompt = `Analiza esta página de un documento escaneado. Responde en formato JSON:
{
    "es_documento_valido": true | false,
    "descripcion": "breve descripción de lo que contiene la página",
    "tipo_documento": "comprobante_egreso" | "cuenta_por_pagar" | "factura" | "soporte_pago" | null,
    "valor": "valor total si existe",
    "fecha": "YYYY-MM-DD",
    "concepto": "texto del concepto",
    "tercero": "nombre del beneficiario o proveedor",
    "nit": "NIT del tercero",
    "referencia_bancaria": "referencia bancaria si existe",
    "banco": "nombre del banco si aparece",
    "numero_documento": "número del documento"
}

es_documento_valido es true solo si la página es un documento contable legible (no una página en blanco, separador o carátula). Si algún campo no está presente, usa null. Responde solo con el JSON.`

// Extract uploads the payload and asks the model for structured
// fields. A response that contains no JSON object comes back as the
// unstructured variant, not as an error.
func (s *ExtractionService) Extract(ctx context.Context, data []byte, mimeType string, pagewise bool) (*ExtractionResult, error) {
	fileID, err := s.uploadFile(ctx, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}

	prompt := documentPrompt
	if pagewise {
		prompt = pagePrompt
	}

	content, err := s.completeWithAttachment(ctx, fileID, prompt)
	if err != nil {
		return nil, err
	}

	return parseExtractionResponse(content, pagewise)
}

// Complete runs a plain text prompt through the generative model.
// Used by the AI correlator.
func (s *ExtractionService) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func mimeExtension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	}
	return ".bin"
}

// uploadFile pushes bytes to the GigaChat files API and returns the
// file id used for vision attachments.
func (s *ExtractionService) uploadFile(ctx context.Context, data []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("purpose", "general"); err != nil {
		return "", fmt.Errorf("failed to write purpose field: %w", err)
	}

	fileName := uuid.New().String() + mimeExtension(mimeType)
	part, err := writer.CreatePart(map[string][]string{
		"Content-Type":        {mimeType},
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write file payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token expired; refresh once and let the caller retry.
		if token, terr := getAccessToken(ctx, s.config, s.httpClient, s.logger); terr == nil {
			s.setToken(token)
		}
		return "", fmt.Errorf("upload unauthorized, token refreshed, retry the operation")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var uploadResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	return uploadResp.ID, nil
}

// completeWithAttachment calls chat completions with a file attachment.
// Attachments format per the GigaChat API: [["file_id"]].
func (s *ExtractionService) completeWithAttachment(ctx context.Context, fileID, prompt string) (string, error) {
	requestBody := map[string]interface{}{
		"model": "GigaChat",
		"messages": []map[string]interface{}{
			{
				"role":        "user",
				"content":     prompt,
				"attachments": [][]string{{fileID}},
			},
		},
		"temperature": 0.1,
		"stream":      false,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var completionResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completionResp); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(completionResp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	return strings.TrimSpace(completionResp.Choices[0].Message.Content), nil
}

// parseExtractionResponse scrapes the first JSON object out of the
// model reply, tolerating markdown fences and surrounding chatter.
func parseExtractionResponse(content string, pagewise bool) (*ExtractionResult, error) {
	jsonStr := extractJSON(content, '{', '}')
	if jsonStr == "" {
		return &ExtractionResult{RawText: content, Raw: quoteRaw(content)}, nil
	}

	var payload struct {
		ExtractedFields
		IsValid     *bool      `json:"es_documento_valido"`
		Description flexString `json:"descripcion"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return &ExtractionResult{RawText: content, Raw: quoteRaw(content)}, nil
	}

	result := &ExtractionResult{
		Fields:          &payload.ExtractedFields,
		Raw:             json.RawMessage(jsonStr),
		PageDescription: payload.Description.String(),
	}
	if pagewise {
		result.IsValidDocument = payload.IsValid != nil && *payload.IsValid
	}
	return result, nil
}

// extractJSON cuts the region between the first opening and last
// closing delimiter, stripping markdown code fences first.
func extractJSON(content string, opening, closing byte) string {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.IndexByte(cleaned, opening)
	end := strings.LastIndexByte(cleaned, closing)
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return cleaned[start : end+1]
}

// quoteRaw JSON-quotes a raw reply so it can live in a RawMessage.
func quoteRaw(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
