package codexpc

import (
	"fmt"
)

// EncodingValidationRule warns when no capability profile matches the encoding
type EncodingValidationRule struct {
	registry *CapabilityRegistry
}

func (r *EncodingValidationRule) Name() string {
	return "Encoding Validation"
}

func (r *EncodingValidationRule) Check(vctx ValidationContext, prompt *Prompt) []ValidationWarning {
	var warnings []ValidationWarning

	if !r.registry.HasProfile(vctx.Encoding) {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeEncodingUnknown,
			Category: "encoding",
			Field:    "encoding",
			Value:    vctx.Encoding,
			Message:  fmt.Sprintf("Encoding %s has no capability profile (profiles may be outdated)", vctx.Encoding),
			Severity: SeverityWarning,
		})
	}

	return warnings
}

// ToolValidationRule checks the tool manifest
type ToolValidationRule struct {
	registry *CapabilityRegistry
}

func (r *ToolValidationRule) Name() string {
	return "Tool Validation"
}

func (r *ToolValidationRule) Check(vctx ValidationContext, prompt *Prompt) []ValidationWarning {
	var warnings []ValidationWarning

	if len(prompt.Tools) == 0 {
		return warnings
	}

	if r.registry.HasProfile(vctx.Encoding) && !r.registry.SupportsTools(vctx.Encoding) {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeEncodingDoesNotSupportTools,
			Category: "tool",
			Field:    "tools",
			Value:    len(prompt.Tools),
			Message:  fmt.Sprintf("Encoding %s might not support tools", vctx.Encoding),
			Severity: SeverityWarning,
		})
	}

	seen := make(map[string]bool, len(prompt.Tools))
	for i := range prompt.Tools {
		tool := &prompt.Tools[i]
		if seen[tool.Function.Name] {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeToolDuplicate,
				Category: "tool",
				Field:    fmt.Sprintf("tools[%d]", i),
				Value:    tool.Function.Name,
				Message:  fmt.Sprintf("Tool %s appears more than once in the manifest", tool.Function.Name),
				Severity: SeverityWarning,
			})
		}
		seen[tool.Function.Name] = true

		if err := tool.Validate(); err != nil {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeToolSchemaInvalid,
				Category: "tool",
				Field:    fmt.Sprintf("tools[%d]", i),
				Value:    tool.Function.Name,
				Message:  err.Error(),
				Severity: SeverityError,
			})
		}
	}

	return warnings
}

// ContentValidationRule reports history content the encoder will not forward
type ContentValidationRule struct {
	registry *CapabilityRegistry
}

func (r *ContentValidationRule) Name() string {
	return "Content Validation"
}

func (r *ContentValidationRule) Check(vctx ValidationContext, prompt *Prompt) []ValidationWarning {
	var warnings []ValidationWarning

	images, toolItems := 0, 0
	for _, item := range prompt.Input {
		switch {
		case item.IsMessage():
			for _, part := range item.Content {
				if part.IsImage() {
					images++
				}
			}
		default:
			toolItems++
		}
	}

	// Token rendering always drops images; the JSON paths forward them as
	// opaque references, which only some encodings understand.
	switch {
	case images > 0 && vctx.TokenMode:
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeImageSkipped,
			Category: "content",
			Field:    "input",
			Value:    images,
			Message:  fmt.Sprintf("%d image part(s) will be skipped when rendering tokens", images),
			Severity: SeverityInfo,
		})
	case images > 0 && r.registry.HasProfile(vctx.Encoding) && !r.registry.SupportsImages(vctx.Encoding):
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeImageSkipped,
			Category: "content",
			Field:    "input",
			Value:    images,
			Message:  fmt.Sprintf("Encoding %s might ignore %d image part(s)", vctx.Encoding, images),
			Severity: SeverityWarning,
		})
	}

	if toolItems > 0 {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeToolHistoryDropped,
			Category: "content",
			Field:    "input",
			Value:    toolItems,
			Message:  fmt.Sprintf("%d tool call/output item(s) are not encoded into the conversation", toolItems),
			Severity: SeverityInfo,
		})
	}

	return warnings
}

// ParameterValidationRule checks sampling parameters against profile constraints
type ParameterValidationRule struct {
	registry *CapabilityRegistry
}

func (r *ParameterValidationRule) Name() string {
	return "Parameter Validation"
}

func (r *ParameterValidationRule) Check(vctx ValidationContext, prompt *Prompt) []ValidationWarning {
	var warnings []ValidationWarning

	params := prompt.Params
	if params == nil {
		return warnings
	}

	profile, err := r.registry.GetProfile(vctx.Encoding)
	if err != nil {
		// Can't check without a profile
		return warnings
	}
	c := profile.Constraints

	if params.Temperature != nil && (*params.Temperature < c.TemperatureMin || *params.Temperature > c.TemperatureMax) {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeTemperatureOutOfRange,
			Category: "parameter",
			Field:    "temperature",
			Value:    *params.Temperature,
			Message:  fmt.Sprintf("Temperature %.2f outside %.1f-%.1f for %s", *params.Temperature, c.TemperatureMin, c.TemperatureMax, vctx.Encoding),
			Severity: SeverityWarning,
		})
	}

	if params.TopP != nil && (*params.TopP < c.TopPMin || *params.TopP > c.TopPMax) {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeTopPOutOfRange,
			Category: "parameter",
			Field:    "top_p",
			Value:    *params.TopP,
			Message:  fmt.Sprintf("top_p %.2f outside %.1f-%.1f for %s", *params.TopP, c.TopPMin, c.TopPMax, vctx.Encoding),
			Severity: SeverityWarning,
		})
	}

	if params.GetPrimeFinal(false) && (!vctx.TokenMode || !profile.Features.PrimeFinal) {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodePrimeFinalUnsupported,
			Category: "parameter",
			Field:    "prime_final",
			Value:    true,
			Message:  "prime_final only applies to token input on encodings that support it",
			Severity: SeverityInfo,
		})
	}

	return warnings
}
