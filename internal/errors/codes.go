// Package errors provides structured error handling for figurechat.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and decode errors (file, disk, extraction)
//   - 3XX: Network and transport errors (embedding endpoint, LLM endpoint)
//   - 4XX: Validation errors
//   - 5XX: Internal and index errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and decode errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network and transport errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid  = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigNotFound = "ERR_102_CONFIG_NOT_FOUND"

	// IO / decode errors (200-299)
	ErrCodeFigureNotFound      = "ERR_201_FIGURE_NOT_FOUND"
	ErrCodeChunkNotFound       = "ERR_202_CHUNK_NOT_FOUND"
	ErrCodeDecodeFailed        = "ERR_203_DECODE_FAILED"
	ErrCodeFileTooLarge        = "ERR_204_FILE_TOO_LARGE"
	ErrCodeCorruptIndex        = "ERR_205_CORRUPT_INDEX"
	ErrCodeUnsupportedFileType = "ERR_206_UNSUPPORTED_FILE_TYPE"

	// Network / transport errors (300-399)
	ErrCodeNetworkTimeout  = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeEmbeddingRemote = "ERR_302_EMBEDDING_REMOTE"
	ErrCodeLLMTransport    = "ERR_303_LLM_TRANSPORT"

	// Validation errors (400-499)
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidFigureID = "ERR_402_INVALID_FIGURE_ID"
	ErrCodeFieldTooLong    = "ERR_403_FIELD_TOO_LONG"
	ErrCodeFigureExists    = "ERR_404_FIGURE_EXISTS"

	// Internal / index errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed  = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeCorruptIndex:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Remote embedding and LLM calls are not auto-retried by the core; the flag
// only informs callers.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeEmbeddingRemote, ErrCodeLLMTransport:
		return true
	default:
		return false
	}
}
