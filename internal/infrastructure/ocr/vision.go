package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/contabil/fiscore/internal/config"
	"github.com/contabil/fiscore/internal/domain/intake"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
)

// extractionPrompt is the instruction sent with every slip image. The
// model must answer with a single JSON object matching the
// visionResult shape.
const extractionPrompt = `Você é um extrator de dados de guias de pagamento fiscais brasileiras.
Analise a imagem e identifique se é uma guia DARF ou GPS.

Responda SOMENTE com um objeto JSON, sem texto adicional:
{
  "document_type": "darf" | "gps" | "unknown",
  "confidence": 0.0-1.0,
  "extracted_data": {
    "identifier": "CPF/CNPJ (DARF) ou NIT/PIS/PASEP (GPS), como impresso",
    "fiscal_code": "código da receita (ex: 0190)",
    "competence": "MM/YYYY",
    "due_date": "YYYY-MM-DD",
    "amount": "valor principal, ponto decimal"
  },
  "raw_text": "texto legível da guia"
}
Campos ilegíveis ou ausentes devem ser omitidos. Nunca invente valores.`

// Typed extraction failures.
var (
	ErrRateLimited         = errors.New(errors.ErrCodeOCRRateLimited, "extraction backend rate limited")
	ErrQuotaExhausted      = errors.New(errors.ErrCodeOCRQuotaExhausted, "extraction quota exhausted")
	ErrUpstreamUnavailable = errors.New(errors.ErrCodeOCRUpstreamError, "extraction backend unavailable")
)

// VisionExtractor implements intake.Extractor against an
// OpenAI-compatible vision chat-completions endpoint.
type VisionExtractor struct {
	cfg        config.OCRConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewVisionExtractor creates an extractor from the OCR config section.
func NewVisionExtractor(cfg config.OCRConfig, logger logging.Logger) (*VisionExtractor, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "ocr base_url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxFileBytes == 0 {
		cfg.MaxFileBytes = 10 << 20
	}
	return &VisionExtractor{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// NewVisionExtractorWithClient creates an extractor around an existing
// HTTP client. Used by tests.
func NewVisionExtractorWithClient(cfg config.OCRConfig, client *http.Client, logger logging.Logger) *VisionExtractor {
	if cfg.MaxFileBytes == 0 {
		cfg.MaxFileBytes = 10 << 20
	}
	return &VisionExtractor{cfg: cfg, httpClient: client, logger: logger}
}

// chat-completions request/response wire shapes, narrowed to the fields
// this extractor uses.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Extract sends one staged file to the vision backend and parses the
// structured answer.
func (e *VisionExtractor) Extract(ctx context.Context, req intake.ExtractionRequest) (*intake.ExtractionResult, error) {
	if len(req.Data) == 0 {
		return nil, errors.New(errors.ErrCodeUploadEmptyFile, "file content is empty")
	}
	if int64(len(req.Data)) > e.cfg.MaxFileBytes {
		return nil, errors.New(errors.ErrCodeValidation,
			fmt.Sprintf("file exceeds maximum size of %d bytes", e.cfg.MaxFileBytes))
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(req.Data)
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(req.Data))

	body := chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: extractionPrompt},
				{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
			},
		}},
		MaxTokens:   2048,
		Temperature: 0,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal extraction request")
	}

	endpoint := strings.TrimRight(e.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "build extraction request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOCRUpstreamError, "call extraction backend")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOCRUpstreamError, "read extraction response")
	}

	if err := e.checkStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOCRUnparseableResponse, "decode chat completion")
	}
	if chat.Error != nil {
		if isQuotaError(chat.Error.Type, chat.Error.Code) {
			return nil, ErrQuotaExhausted
		}
		return nil, errors.New(errors.ErrCodeOCRUpstreamError, chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New(errors.ErrCodeOCRUnparseableResponse, "chat completion has no choices")
	}

	result, err := parseModelAnswer(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	if e.cfg.MinConfidence > 0 && result.Confidence < e.cfg.MinConfidence {
		result.DocumentType = intake.DocumentUnknown
	}

	e.logger.Debug("extraction completed",
		logging.String("file_name", req.FileName),
		logging.String("document_type", string(result.DocumentType)),
		logging.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (e *VisionExtractor) checkStatus(status int, raw []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		if quotaBody(raw) {
			return ErrQuotaExhausted
		}
		return ErrRateLimited
	case status == http.StatusPaymentRequired:
		return ErrQuotaExhausted
	case status >= 500:
		return errors.Wrap(ErrUpstreamUnavailable, errors.ErrCodeOCRUpstreamError,
			fmt.Sprintf("extraction backend returned status %d", status))
	default:
		return errors.New(errors.ErrCodeOCRUpstreamError,
			fmt.Sprintf("extraction backend returned status %d: %s", status, truncate(string(raw), 256)))
	}
}

// parseModelAnswer decodes the model's JSON answer, tolerating markdown
// code fences or surrounding prose.
func parseModelAnswer(content string) (*intake.ExtractionResult, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var result intake.ExtractionResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		object, ok := firstJSONObject(text)
		if !ok {
			return nil, errors.Wrap(err, errors.ErrCodeOCRUnparseableResponse, "model answer is not valid JSON")
		}
		if err := json.Unmarshal([]byte(object), &result); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeOCRUnparseableResponse, "model answer is not valid JSON")
		}
	}

	switch result.DocumentType {
	case intake.DocumentDARF, intake.DocumentGPS, intake.DocumentUnknown:
	case "":
		result.DocumentType = intake.DocumentUnknown
	default:
		return nil, errors.New(errors.ErrCodeOCRUnparseableResponse,
			fmt.Sprintf("model answered with unknown document type %q", result.DocumentType))
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, errors.New(errors.ErrCodeOCRUnparseableResponse,
			fmt.Sprintf("model answered with out-of-range confidence %v", result.Confidence))
	}
	return &result, nil
}

// firstJSONObject returns the first balanced top-level {...} region of
// text.  Models sometimes narrate around the payload instead of fencing
// it.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func isQuotaError(errType, errCode string) bool {
	return errType == "insufficient_quota" || errCode == "insufficient_quota" || errCode == "billing_hard_limit_reached"
}

func quotaBody(raw []byte) bool {
	return bytes.Contains(raw, []byte("insufficient_quota"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
