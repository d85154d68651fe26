package codexpc

// Severity indicates how serious a validation warning is
type Severity string

const (
	SeverityInfo    Severity = "info"    // Informational (might be expected)
	SeverityWarning Severity = "warning" // Potentially problematic
	SeverityError   Severity = "error"   // Likely to make the daemon reject or mangle the request
)

// WarningCode is a machine-readable identifier for validation warnings
type WarningCode string

const (
	// Encoding warnings
	WarningCodeEncodingUnknown WarningCode = "ENCODING_UNKNOWN"

	// Tool warnings
	WarningCodeToolSchemaInvalid           WarningCode = "TOOL_SCHEMA_INVALID"
	WarningCodeToolDuplicate               WarningCode = "TOOL_DUPLICATE"
	WarningCodeEncodingDoesNotSupportTools WarningCode = "ENCODING_DOES_NOT_SUPPORT_TOOLS"

	// Content warnings
	WarningCodeImageSkipped       WarningCode = "IMAGE_SKIPPED"
	WarningCodeToolHistoryDropped WarningCode = "TOOL_HISTORY_DROPPED"

	// Parameter warnings
	WarningCodeTemperatureOutOfRange WarningCode = "TEMPERATURE_OUT_OF_RANGE"
	WarningCodeTopPOutOfRange        WarningCode = "TOP_P_OUT_OF_RANGE"
	WarningCodePrimeFinalUnsupported WarningCode = "PRIME_FINAL_UNSUPPORTED"
)

// ValidationWarning represents a potential issue with a prompt.
// These are informational; requests are never blocked on warnings.
type ValidationWarning struct {
	Code     WarningCode // Machine-readable code
	Category string      // "encoding", "tool", "content", "parameter"
	Field    string      // Field that might cause issues
	Value    any         // The potentially problematic value
	Message  string      // Human-readable warning
	Severity Severity    // How serious this warning is
}

// ValidationContext describes how a prompt is about to be sent
type ValidationContext struct {
	// Encoding is the capability profile name in effect
	Encoding string

	// TokenMode is true when the conversation is rendered to tokens locally
	TokenMode bool
}

// ValidationRule interface allows adding custom validation logic
type ValidationRule interface {
	// Name returns a human-readable name for this rule
	Name() string

	// Check validates a prompt and returns warnings
	Check(vctx ValidationContext, prompt *Prompt) []ValidationWarning
}
