package codexpc

import (
	"sync"
)

// ValidationEngine manages validation rules and executes them
type ValidationEngine struct {
	rules []ValidationRule
	mu    sync.RWMutex
}

var (
	globalValidationEngine     *ValidationEngine
	globalValidationEngineOnce sync.Once
)

// NewValidationEngine returns an engine with the default rules bound to registry
func NewValidationEngine(registry *CapabilityRegistry) *ValidationEngine {
	ve := &ValidationEngine{rules: make([]ValidationRule, 0)}
	ve.registerDefaultRules(registry)
	return ve
}

// GetValidationEngine returns the global validation engine (singleton)
func GetValidationEngine() *ValidationEngine {
	globalValidationEngineOnce.Do(func() {
		globalValidationEngine = NewValidationEngine(GetCapabilityRegistry())
	})
	return globalValidationEngine
}

// registerDefaultRules registers the built-in validation rules
func (ve *ValidationEngine) registerDefaultRules(registry *CapabilityRegistry) {
	ve.AddRule(&EncodingValidationRule{registry: registry})
	ve.AddRule(&ToolValidationRule{registry: registry})
	ve.AddRule(&ContentValidationRule{registry: registry})
	ve.AddRule(&ParameterValidationRule{registry: registry})
}

// AddRule adds a validation rule to the engine
func (ve *ValidationEngine) AddRule(rule ValidationRule) {
	ve.mu.Lock()
	defer ve.mu.Unlock()
	ve.rules = append(ve.rules, rule)
}

// RemoveRule removes a validation rule by name
func (ve *ValidationEngine) RemoveRule(name string) bool {
	ve.mu.Lock()
	defer ve.mu.Unlock()

	for i, rule := range ve.rules {
		if rule.Name() == name {
			ve.rules = append(ve.rules[:i], ve.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Validate runs all validation rules and returns warnings
func (ve *ValidationEngine) Validate(vctx ValidationContext, prompt *Prompt) []ValidationWarning {
	if prompt == nil {
		return nil
	}

	ve.mu.RLock()
	defer ve.mu.RUnlock()

	var warnings []ValidationWarning
	for _, rule := range ve.rules {
		warnings = append(warnings, rule.Check(vctx, prompt)...)
	}
	return warnings
}

// GetValidationWarnings returns potential issues with a prompt.
// These are INFORMATIONAL: callers can choose to log warnings or ignore them,
// and requests are never blocked on them. The daemon is the source of truth.
//
// This is the main entry point for validation. It uses the global validation engine.
func GetValidationWarnings(vctx ValidationContext, prompt *Prompt) []ValidationWarning {
	return GetValidationEngine().Validate(vctx, prompt)
}

// FilterWarningsBySeverity returns warnings matching the specified severities
func FilterWarningsBySeverity(warnings []ValidationWarning, severities ...Severity) []ValidationWarning {
	return filterWarnings(warnings, severities, func(w ValidationWarning) Severity { return w.Severity })
}

// FilterWarningsByCategory returns warnings matching the specified categories
func FilterWarningsByCategory(warnings []ValidationWarning, categories ...string) []ValidationWarning {
	return filterWarnings(warnings, categories, func(w ValidationWarning) string { return w.Category })
}

// FilterWarningsByCode returns warnings matching the specified codes
func FilterWarningsByCode(warnings []ValidationWarning, codes ...WarningCode) []ValidationWarning {
	return filterWarnings(warnings, codes, func(w ValidationWarning) WarningCode { return w.Code })
}

// HasErrors reports whether any warning carries SeverityError.
func HasErrors(warnings []ValidationWarning) bool {
	return len(FilterWarningsBySeverity(warnings, SeverityError)) > 0
}

func filterWarnings[K comparable](warnings []ValidationWarning, keys []K, key func(ValidationWarning) K) []ValidationWarning {
	want := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	filtered := make([]ValidationWarning, 0, len(warnings))
	for _, w := range warnings {
		if _, ok := want[key(w)]; ok {
			filtered = append(filtered, w)
		}
	}
	return filtered
}
