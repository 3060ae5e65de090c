package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_015"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_016"
)

// Short aliases used at call sites throughout the codebase.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeUnauthorized = ErrCodeUnauthorized
	CodeForbidden    = ErrCodeForbidden
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeRateLimit    = ErrCodeTooManyRequests
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Obligation Module Error Codes
const (
	ErrCodeObligationNotFound    ErrorCode = "OBL_001"
	ErrCodeInstanceNotFound      ErrorCode = "OBL_002"
	ErrCodeInstanceDuplicate     ErrorCode = "OBL_003"
	ErrCodeInstanceAlreadyDone   ErrorCode = "OBL_004"
	ErrCodeInstanceNotDone       ErrorCode = "OBL_005"
	ErrCodeCompletionNotesTooShort ErrorCode = "OBL_006"
	ErrCodeCompetenceInvalid     ErrorCode = "OBL_007"
	ErrCodeScheduleRuleInvalid   ErrorCode = "OBL_008"
	ErrCodeClientNotFound        ErrorCode = "OBL_009"
	ErrCodeLinkInactive          ErrorCode = "OBL_010"
)

// Intake (staging upload) Module Error Codes
const (
	ErrCodeUploadNotFound        ErrorCode = "INT_001"
	ErrCodeUploadNotPending      ErrorCode = "INT_002"
	ErrCodeUploadNotReady        ErrorCode = "INT_003"
	ErrCodeUploadAlreadyClassified ErrorCode = "INT_004"
	ErrCodeUploadEmptyFile       ErrorCode = "INT_005"
	ErrCodeDuplicateFileNameExhausted ErrorCode = "INT_006"
)

// Document Module Error Codes
const (
	ErrCodeDocumentNotFound ErrorCode = "DOC_001"
	ErrCodeDocumentDeleted  ErrorCode = "DOC_002"
)

// OCR Extraction Error Codes
const (
	ErrCodeOCRRateLimited         ErrorCode = "OCR_001"
	ErrCodeOCRQuotaExhausted      ErrorCode = "OCR_002"
	ErrCodeOCRUpstreamError       ErrorCode = "OCR_003"
	ErrCodeOCRUnparseableResponse ErrorCode = "OCR_004"
	ErrCodeOCRInProgress          ErrorCode = "OCR_005"
)

// Delivery Queue Error Codes
const (
	ErrCodeDeliveryNotFound       ErrorCode = "DLV_001"
	ErrCodeDeliveryNotCancellable ErrorCode = "DLV_002"
	ErrCodeDeliveryNotReprocessable ErrorCode = "DLV_003"
	ErrCodeDeliveryExhausted      ErrorCode = "DLV_004"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessageQueueError:  http.StatusInternalServerError,

	ErrCodeObligationNotFound:      http.StatusNotFound,
	ErrCodeInstanceNotFound:        http.StatusNotFound,
	ErrCodeInstanceDuplicate:       http.StatusConflict,
	ErrCodeInstanceAlreadyDone:     http.StatusConflict,
	ErrCodeInstanceNotDone:         http.StatusConflict,
	ErrCodeCompletionNotesTooShort: http.StatusUnprocessableEntity,
	ErrCodeCompetenceInvalid:       http.StatusUnprocessableEntity,
	ErrCodeScheduleRuleInvalid:     http.StatusUnprocessableEntity,
	ErrCodeClientNotFound:          http.StatusNotFound,
	ErrCodeLinkInactive:            http.StatusConflict,

	ErrCodeUploadNotFound:             http.StatusNotFound,
	ErrCodeUploadNotPending:           http.StatusConflict,
	ErrCodeUploadNotReady:             http.StatusConflict,
	ErrCodeUploadAlreadyClassified:    http.StatusConflict,
	ErrCodeUploadEmptyFile:            http.StatusBadRequest,
	ErrCodeDuplicateFileNameExhausted: http.StatusConflict,

	ErrCodeDocumentNotFound: http.StatusNotFound,
	ErrCodeDocumentDeleted:  http.StatusGone,

	ErrCodeOCRRateLimited:         http.StatusTooManyRequests,
	ErrCodeOCRQuotaExhausted:      http.StatusServiceUnavailable,
	ErrCodeOCRUpstreamError:       http.StatusBadGateway,
	ErrCodeOCRUnparseableResponse: http.StatusBadGateway,
	ErrCodeOCRInProgress:          http.StatusConflict,

	ErrCodeDeliveryNotFound:         http.StatusNotFound,
	ErrCodeDeliveryNotCancellable:   http.StatusConflict,
	ErrCodeDeliveryNotReprocessable: http.StatusConflict,
	ErrCodeDeliveryExhausted:        http.StatusConflict,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessageQueueError:  "message queue error",

	ErrCodeObligationNotFound:      "obligation not found",
	ErrCodeInstanceNotFound:        "obligation instance not found",
	ErrCodeInstanceDuplicate:       "obligation instance already exists for this competence",
	ErrCodeInstanceAlreadyDone:     "obligation instance already completed",
	ErrCodeInstanceNotDone:         "obligation instance is not completed",
	ErrCodeCompletionNotesTooShort: "completion notes must be at least 10 characters",
	ErrCodeCompetenceInvalid:       "competence must be in MM/YYYY format",
	ErrCodeScheduleRuleInvalid:     "invalid schedule rule",
	ErrCodeClientNotFound:          "client not found",
	ErrCodeLinkInactive:            "client obligation link is inactive",

	ErrCodeUploadNotFound:             "staging upload not found",
	ErrCodeUploadNotPending:           "staging upload is no longer pending",
	ErrCodeUploadNotReady:             "staging upload is not ready for classification",
	ErrCodeUploadAlreadyClassified:    "staging upload already classified",
	ErrCodeUploadEmptyFile:            "uploaded file is empty",
	ErrCodeDuplicateFileNameExhausted: "could not resolve a unique destination file name",

	ErrCodeDocumentNotFound: "document not found",
	ErrCodeDocumentDeleted:  "document has been deleted",

	ErrCodeOCRRateLimited:         "extraction service rate limited",
	ErrCodeOCRQuotaExhausted:      "extraction service quota exhausted",
	ErrCodeOCRUpstreamError:       "extraction service error",
	ErrCodeOCRUnparseableResponse: "extraction service returned an unparseable response",
	ErrCodeOCRInProgress:          "extraction already in progress",

	ErrCodeDeliveryNotFound:         "delivery queue item not found",
	ErrCodeDeliveryNotCancellable:   "delivery can only be cancelled while pending",
	ErrCodeDeliveryNotReprocessable: "delivery can only be reprocessed after terminal failure",
	ErrCodeDeliveryExhausted:        "delivery retry attempts exhausted",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode ("OBL", "INT", ...).
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
