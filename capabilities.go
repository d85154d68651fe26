package codexpc

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/capabilities/harmony.yaml
var harmonyCapabilitiesYAML []byte

// DefaultEncoding is the encoding assumed when the daemon does not answer the handshake.
const DefaultEncoding = "o200k_harmony"

// Capability profiles are descriptive metadata for diagnostics and request
// warnings. They never block a request; the daemon is the source of truth.
// The embedded profiles can be overridden with LoadCapabilitiesFromFile or
// RegisterProfile.

// CapabilityFile is the on-disk layout of a capability profile set
type CapabilityFile struct {
	Version     string                     `yaml:"version"`      // Semantic version (e.g., "1.0.0")
	LastUpdated string                     `yaml:"last_updated"` // ISO 8601 date
	Profiles    map[string]EncodingProfile `yaml:"profiles"`
}

// EncodingProfile describes what a daemon speaking one encoding accepts
type EncodingProfile struct {
	Description                   string            `yaml:"description"`
	DefaultChannel                string            `yaml:"default_channel"`
	Channels                      []string          `yaml:"channels"`
	SpecialTokens                 map[string]uint32 `yaml:"special_tokens"`
	StopTokensForAssistantActions []string          `yaml:"stop_tokens_for_assistant_actions"`
	Features                      EncodingFeatures  `yaml:"features"`
	Constraints                   ParamConstraints  `yaml:"constraints"`
}

// EncodingFeatures indicates which request features the encoding supports
type EncodingFeatures struct {
	Tools         bool `yaml:"tools"`
	ToolNamespace bool `yaml:"tool_namespace"`
	Images        bool `yaml:"images"`
	PrimeFinal    bool `yaml:"prime_final"`
}

// ParamConstraints defines sampling parameter limits
type ParamConstraints struct {
	TemperatureMin float64 `yaml:"temperature_min"`
	TemperatureMax float64 `yaml:"temperature_max"`
	TopPMin        float64 `yaml:"top_p_min"`
	TopPMax        float64 `yaml:"top_p_max"`
}

// SpecialTokenNames returns the profile's special token names, sorted
func (p *EncodingProfile) SpecialTokenNames() []string {
	names := make([]string, 0, len(p.SpecialTokens))
	for name := range p.SpecialTokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceInfo is the capability metadata returned by a handshake.
// EncodingName is nil when the daemon did not report one.
type ServiceInfo struct {
	EncodingName                  *string  `json:"encoding_name,omitempty"`
	SpecialTokens                 []string `json:"special_tokens"`
	StopTokensForAssistantActions []string `json:"stop_tokens_for_assistant_actions"`
}

// Encoding returns the reported encoding or DefaultEncoding
func (s *ServiceInfo) Encoding() string {
	if s == nil || s.EncodingName == nil || *s.EncodingName == "" {
		return DefaultEncoding
	}
	return *s.EncodingName
}

// Profile resolves the profile for the reported encoding and overlays what the
// daemon reported. Stop tokens reported by the daemon replace the profile's.
// The registry's copy is not modified.
func (s *ServiceInfo) Profile(r *CapabilityRegistry) (*EncodingProfile, error) {
	base, err := r.GetProfile(s.Encoding())
	if err != nil {
		return nil, err
	}
	merged := *base
	merged.SpecialTokens = make(map[string]uint32, len(base.SpecialTokens))
	for k, v := range base.SpecialTokens {
		merged.SpecialTokens[k] = v
	}
	if s != nil && len(s.StopTokensForAssistantActions) > 0 {
		merged.StopTokensForAssistantActions = append([]string(nil), s.StopTokensForAssistantActions...)
	}
	return &merged, nil
}

// MissingSpecialTokens lists tokens the daemon reported that the profile cannot map to ids
func (s *ServiceInfo) MissingSpecialTokens(p *EncodingProfile) []string {
	if s == nil || p == nil {
		return nil
	}
	var missing []string
	for _, tok := range s.SpecialTokens {
		if _, ok := p.SpecialTokens[tok]; !ok {
			missing = append(missing, tok)
		}
	}
	return missing
}

// CapabilityRegistry manages encoding profiles
type CapabilityRegistry struct {
	profiles map[string]*EncodingProfile
	mu       sync.RWMutex
}

var (
	globalRegistry     *CapabilityRegistry
	globalRegistryOnce sync.Once
)

// NewCapabilityRegistry returns a registry loaded with the embedded profiles
func NewCapabilityRegistry() (*CapabilityRegistry, error) {
	r := &CapabilityRegistry{profiles: make(map[string]*EncodingProfile)}
	if err := r.load(harmonyCapabilitiesYAML); err != nil {
		return nil, fmt.Errorf("failed to load embedded capabilities: %w", err)
	}
	return r, nil
}

// GetCapabilityRegistry returns the global capability registry (singleton)
func GetCapabilityRegistry() *CapabilityRegistry {
	globalRegistryOnce.Do(func() {
		reg, err := NewCapabilityRegistry()
		if err != nil {
			// Validation falls back to "unknown profile" warnings.
			slog.Warn("capability profiles unavailable", "error", err)
			reg = &CapabilityRegistry{profiles: make(map[string]*EncodingProfile)}
		}
		globalRegistry = reg
	})
	return globalRegistry
}

func (r *CapabilityRegistry) load(data []byte) error {
	var file CapabilityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal capabilities: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, profile := range file.Profiles {
		p := profile
		r.profiles[name] = &p
	}
	return nil
}

// GetProfile returns the profile for an encoding
func (r *CapabilityRegistry) GetProfile(encoding string) (*EncodingProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[encoding]
	if !ok {
		return nil, fmt.Errorf("no capability profile for encoding: %s", encoding)
	}
	return p, nil
}

// HasProfile checks if an encoding has a registered profile
func (r *CapabilityRegistry) HasProfile(encoding string) bool {
	_, err := r.GetProfile(encoding)
	return err == nil
}

// SupportsImages checks if an encoding accepts image parts
func (r *CapabilityRegistry) SupportsImages(encoding string) bool {
	p, err := r.GetProfile(encoding)
	if err != nil {
		return false
	}
	return p.Features.Images
}

// SupportsTools checks if an encoding accepts a tool manifest
func (r *CapabilityRegistry) SupportsTools(encoding string) bool {
	p, err := r.GetProfile(encoding)
	if err != nil {
		return false
	}
	return p.Features.Tools
}

// SpecialTokenID returns the id of a special token under an encoding
func (r *CapabilityRegistry) SpecialTokenID(encoding, token string) (uint32, error) {
	p, err := r.GetProfile(encoding)
	if err != nil {
		return 0, err
	}
	id, ok := p.SpecialTokens[token]
	if !ok {
		return 0, fmt.Errorf("special token %s not defined for encoding %s", token, encoding)
	}
	return id, nil
}

// Encodings returns registered encoding names, sorted
func (r *CapabilityRegistry) Encodings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadCapabilitiesFromFile loads profiles from a YAML file, replacing embedded
// profiles with the same encoding name
func (r *CapabilityRegistry) LoadCapabilitiesFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read capabilities file: %w", err)
	}
	return r.load(data)
}

// RegisterProfile programmatically registers an encoding profile
func (r *CapabilityRegistry) RegisterProfile(encoding string, profile *EncodingProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[encoding] = profile
}

// LoadCapabilitiesFromFile is a convenience function that calls the global registry's LoadCapabilitiesFromFile.
func LoadCapabilitiesFromFile(path string) error {
	return GetCapabilityRegistry().LoadCapabilitiesFromFile(path)
}

// RegisterProfile is a convenience function that calls the global registry's RegisterProfile.
func RegisterProfile(encoding string, profile *EncodingProfile) {
	GetCapabilityRegistry().RegisterProfile(encoding, profile)
}
