package intake

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/contabil/fiscore/internal/domain/obligation"
)

// ─────────────────────────────────────────────────────────────────────────────
// Extraction contract
// ─────────────────────────────────────────────────────────────────────────────

// DocumentType is the kind of fiscal payment slip recognized by extraction.
type DocumentType string

const (
	// DocumentDARF is a federal tax payment slip identified by CPF/CNPJ
	// and a fiscal (revenue) code.
	DocumentDARF DocumentType = "darf"

	// DocumentGPS is a social-insurance payment slip identified by
	// NIT/PIS/PASEP.
	DocumentGPS DocumentType = "gps"

	// DocumentUnknown could not be recognized with usable confidence.
	DocumentUnknown DocumentType = "unknown"
)

// IdentifierKind returns the client-identifier family a document type is
// matched by.
func (d DocumentType) IdentifierKind() obligation.IdentifierKind {
	if d == DocumentGPS {
		return obligation.IdentifierNIT
	}
	return obligation.IdentifierCPFCNPJ
}

// ExtractedFields holds the typed values pulled out of a payment slip.
// Empty strings and nil values mean the field was not present or not
// readable; absence is normal, not an error.
type ExtractedFields struct {
	// Identifier is the taxpayer identifier as printed (CPF/CNPJ for DARF,
	// NIT for GPS), punctuation preserved.
	Identifier string `json:"identifier,omitempty"`

	// FiscalCode is the revenue-service code (e.g. DARF code "0190").
	FiscalCode string `json:"fiscal_code,omitempty"`

	// Competence in MM/YYYY as printed on the slip.
	Competence string `json:"competence,omitempty"`

	// DueDate in ISO 8601 (YYYY-MM-DD) as printed on the slip.
	DueDate string `json:"due_date,omitempty"`

	// Amount is the payable amount.
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// ExtractionResult is the typed outcome of one successful extraction call.
type ExtractionResult struct {
	DocumentType DocumentType    `json:"document_type"`
	Confidence   float64         `json:"confidence"`
	Fields       ExtractedFields `json:"extracted_data"`
	RawText      string          `json:"raw_text,omitempty"`
}

// ExtractionRequest carries one staged file to the extraction backend.
type ExtractionRequest struct {
	FileName string
	MimeType string
	Data     []byte
}

// Extractor is the vision-extraction capability boundary.  Implementations
// return an ExtractionResult or a typed failure (one of the OCR_* error
// codes); they never pass malformed upstream data through as success.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Match results
// ─────────────────────────────────────────────────────────────────────────────

// ClientMatch records the outcome of resolving an extracted identifier to a
// client.  "Not found" is a first-class result: a staged upload can stay in
// needs_review indefinitely.
type ClientMatch struct {
	Found      bool   `json:"found"`
	ClientID   string `json:"client_id,omitempty"`
	ClientName string `json:"client_name,omitempty"`
	ClientCode string `json:"client_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ObligationMatch records the outcome of resolving a fiscal code to a
// catalog obligation.
type ObligationMatch struct {
	Found          bool   `json:"found"`
	ObligationID   string `json:"obligation_id,omitempty"`
	ObligationName string `json:"obligation_name,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// OCRData is the full annotation written back onto a staging upload after
// extraction and matching.
type OCRData struct {
	DocumentType DocumentType    `json:"document_type"`
	Confidence   float64         `json:"confidence"`
	Fields       ExtractedFields `json:"extracted_data"`
	Client       ClientMatch     `json:"client_match"`
	Obligation   ObligationMatch `json:"obligation_match"`
	RawText      string          `json:"raw_text,omitempty"`
}
