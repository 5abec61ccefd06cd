// Package errors provides structured error handling for docpipe.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (blob read/write, artifact decode)
//   - 3XX: Network/index connectivity errors
//   - 4XX: Validation errors (malformed input, unsupported content)
//   - 5XX: Internal errors
package errors

// Class is the retry classification of a stage error.
// The retry/dead-letter manager decides retry-vs-escalate from the class
// alone, never from message text.
type Class string

const (
	// ClassTransient marks errors worth retrying: timeouts, throttling,
	// connectivity, storage I/O.
	ClassTransient Class = "TRANSIENT"
	// ClassPermanent marks errors that will not heal on retry: malformed
	// input, unsupported content, validation failures.
	ClassPermanent Class = "PERMANENT"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageRead    = "ERR_201_STORAGE_READ"
	ErrCodeStorageWrite   = "ERR_202_STORAGE_WRITE"
	ErrCodeArtifactDecode = "ERR_203_ARTIFACT_DECODE"

	// Network/index errors (300-399)
	ErrCodeIndexUnavailable = "ERR_301_INDEX_UNAVAILABLE"
	ErrCodeStageTimeout     = "ERR_302_STAGE_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeDocumentCorrupt   = "ERR_401_DOCUMENT_CORRUPT"
	ErrCodeNoExtractableText = "ERR_402_NO_EXTRACTABLE_TEXT"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodePayloadInvalid    = "ERR_404_PAYLOAD_INVALID"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// classFromCode derives the default class for an error code.
// Storage and network failures retry; config, validation, and internal
// failures do not.
func classFromCode(code string) Class {
	if len(code) < 5 {
		return ClassPermanent
	}
	switch code[4] {
	case '2', '3':
		return ClassTransient
	default:
		return ClassPermanent
	}
}
