package errors

import (
	"net/http"
	"strings"
)

// ErrorCode identifies a failure category. The prefix before the underscore
// names the owning module.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Module returns the prefix of the code, e.g. "NLU".
func (c ErrorCode) Module() string {
	if mod, _, ok := strings.Cut(string(c), "_"); ok && mod != "" {
		return mod
	}
	return "UNKNOWN"
}

// Common codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
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
	ErrCodeFeatureDisabled    ErrorCode = "COMMON_015"
)

// NLU codes.
const (
	ErrCodeModelNotAvailable   ErrorCode = "NLU_001"
	ErrCodeInferenceFailed     ErrorCode = "NLU_002"
	ErrCodeLabelMappingInvalid ErrorCode = "NLU_003"
	ErrCodeTextTooLong         ErrorCode = "NLU_004"
	ErrCodeBatchTooLarge       ErrorCode = "NLU_005"
	ErrCodeModelArtifactSync   ErrorCode = "NLU_006"
)

// Short names used by the infrastructure packages.
const (
	CodeInternal   = ErrCodeInternal
	CodeNotFound   = ErrCodeNotFound
	CodeConflict   = ErrCodeConflict
	CodeRateLimit  = ErrCodeTooManyRequests
	CodeCacheError = ErrCodeCacheError
	CodeOK         = ErrorCode("OK")
	CodeUnknown    = ErrorCode("UNKNOWN")
)

type codeSpec struct {
	status  int
	message string
}

var codeTable = map[ErrorCode]codeSpec{
	ErrCodeInternal:           {http.StatusInternalServerError, "internal server error"},
	ErrCodeBadRequest:         {http.StatusBadRequest, "bad request"},
	ErrCodeUnauthorized:       {http.StatusUnauthorized, "unauthorized"},
	ErrCodeNotFound:           {http.StatusNotFound, "resource not found"},
	ErrCodeConflict:           {http.StatusConflict, "resource conflict"},
	ErrCodeTooManyRequests:    {http.StatusTooManyRequests, "too many requests"},
	ErrCodeServiceUnavailable: {http.StatusServiceUnavailable, "service unavailable"},
	ErrCodeTimeout:            {http.StatusGatewayTimeout, "request timeout"},
	ErrCodeValidation:         {http.StatusUnprocessableEntity, "validation failed"},
	ErrCodeSerialization:      {http.StatusInternalServerError, "serialization failed"},
	ErrCodeDatabaseError:      {http.StatusInternalServerError, "database error"},
	ErrCodeCacheError:         {http.StatusInternalServerError, "cache error"},
	ErrCodeExternalService:    {http.StatusBadGateway, "external service error"},
	ErrCodeFeatureDisabled:    {http.StatusForbidden, "feature disabled"},

	ErrCodeModelNotAvailable:   {http.StatusServiceUnavailable, "NLU model not available"},
	ErrCodeInferenceFailed:     {http.StatusBadGateway, "NLU model inference failed"},
	ErrCodeLabelMappingInvalid: {http.StatusInternalServerError, "invalid label mapping"},
	ErrCodeTextTooLong:         {http.StatusRequestEntityTooLarge, "text exceeds maximum length"},
	ErrCodeBatchTooLarge:       {http.StatusRequestEntityTooLarge, "batch exceeds maximum size"},
	ErrCodeModelArtifactSync:   {http.StatusServiceUnavailable, "failed to sync model artifacts"},
}

// HTTPStatusForCode returns the HTTP status for code, 500 when unknown.
func HTTPStatusForCode(code ErrorCode) int {
	if spec, ok := codeTable[code]; ok {
		return spec.status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the public message for code.
func DefaultMessageForCode(code ErrorCode) string {
	if spec, ok := codeTable[code]; ok {
		return spec.message
	}
	return "unknown error"
}

// IsClientError reports whether code maps to a 4xx status.
func IsClientError(code ErrorCode) bool {
	return HTTPStatusForCode(code)/100 == 4
}

// IsServerError reports whether code maps to a 5xx status.
func IsServerError(code ErrorCode) bool {
	return HTTPStatusForCode(code)/100 == 5
}

//Personal.AI order the ending
