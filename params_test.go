package codexpc

import (
	"errors"
	"testing"
)

func TestValidateRequestParams_Temperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature *float64
		wantErr     bool
	}{
		{"nil temperature is valid", nil, false},
		{"temperature 0.0", float64Ptr(0.0), false},
		{"temperature 1.0", float64Ptr(1.0), false},
		{"temperature 2.0", float64Ptr(2.0), false},
		{"temperature -0.1 is invalid", float64Ptr(-0.1), true},
		{"temperature 2.1 is invalid", float64Ptr(2.1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := &RequestParams{
				Temperature: tt.temperature,
			}
			err := ValidateRequestParams(params)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequestParams() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil && !IsInvalidRequest(err) {
				t.Error("validation error should be classified as invalid request")
			}
		})
	}
}

func TestValidateRequestParams_TopP(t *testing.T) {
	tests := []struct {
		name    string
		topP    *float64
		wantErr bool
	}{
		{"nil topP is valid", nil, false},
		{"topP 0.0", float64Ptr(0.0), false},
		{"topP 1.0", float64Ptr(1.0), false},
		{"topP -0.1 is invalid", float64Ptr(-0.1), true},
		{"topP 1.1 is invalid", float64Ptr(1.1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequestParams(&RequestParams{TopP: tt.topP})
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequestParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRequestParams_MaxTokens(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens *int
		wantErr   bool
	}{
		{"nil maxTokens is valid", nil, false},
		{"maxTokens 0 means unlimited", intPtr(0), false},
		{"maxTokens 4096", intPtr(4096), false},
		{"maxTokens -1 is invalid", intPtr(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequestParams(&RequestParams{MaxTokens: tt.maxTokens})
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequestParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRequestParams_Reasoning(t *testing.T) {
	tests := []struct {
		name    string
		params  *RequestParams
		wantErr bool
	}{
		{"effort low", &RequestParams{ReasoningEffort: stringPtr("low")}, false},
		{"effort is case insensitive", &RequestParams{ReasoningEffort: stringPtr("High")}, false},
		{"effort unknown", &RequestParams{ReasoningEffort: stringPtr("extreme")}, true},
		{"summary detailed", &RequestParams{ReasoningSummary: stringPtr("detailed")}, false},
		{"summary unknown", &RequestParams{ReasoningSummary: stringPtr("verbose")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequestParams(tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRequestParams() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestParams_GetMaxTokens(t *testing.T) {
	tests := []struct {
		name     string
		params   *RequestParams
		expected uint64
	}{
		{"nil params is unlimited", nil, 0},
		{"nil maxTokens is unlimited", &RequestParams{}, 0},
		{"negative maxTokens is unlimited", &RequestParams{MaxTokens: intPtr(-5)}, 0},
		{"positive maxTokens is used", &RequestParams{MaxTokens: intPtr(500)}, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.GetMaxTokens(); got != tt.expected {
				t.Errorf("GetMaxTokens() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestRequestParams_SamplingJSON(t *testing.T) {
	tests := []struct {
		name     string
		params   *RequestParams
		expected *string
	}{
		{"nil params", nil, nil},
		{"nothing set", &RequestParams{MaxTokens: intPtr(10)}, nil},
		{
			name:     "temperature only",
			params:   &RequestParams{Temperature: float64Ptr(0.5)},
			expected: stringPtr(`{"temperature":0.5}`),
		},
		{
			name: "reasoning is lowercased",
			params: &RequestParams{
				TopP:             float64Ptr(0.9),
				ReasoningEffort:  stringPtr("High"),
				ReasoningSummary: stringPtr("auto"),
			},
			expected: stringPtr(`{"top_p":0.9,"reasoning":{"effort":"high","summary":"auto"}}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.params.SamplingJSON()
			if (got == nil) != (tt.expected == nil) {
				t.Fatalf("SamplingJSON() = %v, want %v", got, tt.expected)
			}
			if got != nil && *got != *tt.expected {
				t.Errorf("SamplingJSON() = %s, want %s", *got, *tt.expected)
			}
		})
	}
}

func TestGetRequestParamStruct(t *testing.T) {
	rp, err := GetRequestParamStruct(map[string]interface{}{
		"max_tokens":  256,
		"temperature": 0.2,
		"prime_final": true,
	})
	if err != nil {
		t.Fatalf("GetRequestParamStruct() error = %v", err)
	}
	if rp.GetMaxTokens() != 256 {
		t.Errorf("max_tokens = %d, want 256", rp.GetMaxTokens())
	}
	if !rp.GetPrimeFinal(false) {
		t.Error("prime_final should be true")
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:  "temperature",
		Value:  2.5,
		Reason: "must be between 0.0 and 2.0",
		Err:    ErrInvalidRequest,
	}

	msg := err.Error()
	if msg == "" {
		t.Error("error message is empty")
	}

	if !errors.Is(err, ErrInvalidRequest) {
		t.Error("ValidationError should wrap ErrInvalidRequest")
	}
}

// Helper functions are in test_helpers.go
