package codexpc

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RequestParams holds the optional sampling and generation controls for a prompt.
// All fields are optional pointers to distinguish "not set" from "set to zero value".
type RequestParams struct {
	// MaxTokens caps generated tokens. Nil or 0 means unlimited; the daemon
	// stops on Harmony stop tokens.
	MaxTokens *int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-2.0)
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// TopP (nucleus sampling) - cumulative probability cutoff (0.0-1.0)
	TopP *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`

	// ReasoningEffort is "low", "medium" or "high"
	ReasoningEffort *string `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty"`

	// ReasoningSummary is "auto", "concise", "detailed" or "none"
	ReasoningSummary *string `json:"reasoning_summary,omitempty" yaml:"reasoning_summary,omitempty"`

	// PrimeFinal asks the daemon to seed the assistant's final channel before
	// generating. Only meaningful for token input.
	PrimeFinal *bool `json:"prime_final,omitempty" yaml:"prime_final,omitempty"`
}

var (
	validReasoningEfforts   = map[string]bool{"low": true, "medium": true, "high": true}
	validReasoningSummaries = map[string]bool{"auto": true, "concise": true, "detailed": true, "none": true}
)

// ValidateRequestParams validates request parameters
func ValidateRequestParams(params *RequestParams) error {
	if params == nil {
		return nil // nil params is valid
	}

	if params.Temperature != nil {
		if *params.Temperature < 0.0 || *params.Temperature > 2.0 {
			return invalidParam("temperature", *params.Temperature, "must be between 0.0 and 2.0")
		}
	}

	if params.TopP != nil {
		if *params.TopP < 0.0 || *params.TopP > 1.0 {
			return invalidParam("top_p", *params.TopP, "must be between 0.0 and 1.0")
		}
	}

	if params.MaxTokens != nil {
		if *params.MaxTokens < 0 {
			return invalidParam("max_tokens", *params.MaxTokens, "must be non-negative")
		}
	}

	if params.ReasoningEffort != nil {
		if !validReasoningEfforts[strings.ToLower(*params.ReasoningEffort)] {
			return invalidParam("reasoning_effort", *params.ReasoningEffort, "must be 'low', 'medium', or 'high'")
		}
	}

	if params.ReasoningSummary != nil {
		if !validReasoningSummaries[strings.ToLower(*params.ReasoningSummary)] {
			return invalidParam("reasoning_summary", *params.ReasoningSummary, "must be 'auto', 'concise', 'detailed', or 'none'")
		}
	}

	return nil
}

func invalidParam(field string, value any, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Err: ErrInvalidRequest}
}

// GetMaxTokens returns max_tokens as the daemon expects it (0 = unlimited).
func (rp *RequestParams) GetMaxTokens() uint64 {
	if rp == nil || rp.MaxTokens == nil || *rp.MaxTokens < 0 {
		return 0
	}
	return uint64(*rp.MaxTokens)
}

// GetPrimeFinal returns prime_final with default fallback
func (rp *RequestParams) GetPrimeFinal(defaultValue bool) bool {
	if rp == nil || rp.PrimeFinal == nil {
		return defaultValue
	}
	return *rp.PrimeFinal
}

type samplingDoc struct {
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Reasoning   *reasoningDoc `json:"reasoning,omitempty"`
}

type reasoningDoc struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// SamplingJSON renders the sampling_json argument for the daemon.
// Returns nil when no sampling control is set, so the daemon applies its defaults.
func (rp *RequestParams) SamplingJSON() *string {
	if rp == nil {
		return nil
	}
	doc := samplingDoc{Temperature: rp.Temperature, TopP: rp.TopP}
	if rp.ReasoningEffort != nil || rp.ReasoningSummary != nil {
		doc.Reasoning = &reasoningDoc{}
		if rp.ReasoningEffort != nil {
			doc.Reasoning.Effort = strings.ToLower(*rp.ReasoningEffort)
		}
		if rp.ReasoningSummary != nil {
			doc.Reasoning.Summary = strings.ToLower(*rp.ReasoningSummary)
		}
	}
	if doc.Temperature == nil && doc.TopP == nil && doc.Reasoning == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// GetRequestParamStruct unmarshals a generic map (e.g. decoded YAML or JSON)
// into a typed RequestParams struct
func GetRequestParamStruct(params map[string]interface{}) (*RequestParams, error) {
	if params == nil {
		return &RequestParams{}, nil
	}

	jsonBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	var rp RequestParams
	if err := json.Unmarshal(jsonBytes, &rp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	return &rp, nil
}
