package codexpc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedProfiles(t *testing.T) {
	registry, err := NewCapabilityRegistry()
	if err != nil {
		t.Fatalf("NewCapabilityRegistry() error = %v", err)
	}

	tests := []struct {
		name       string
		encoding   string
		wantTools  bool
		wantImages bool
	}{
		{"o200k harmony", "o200k_harmony", true, false},
		{"harmony text", "harmony_text", true, true},
		{"unknown encoding", "cl100k_base", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := registry.SupportsTools(tt.encoding); got != tt.wantTools {
				t.Errorf("SupportsTools(%s) = %v, want %v", tt.encoding, got, tt.wantTools)
			}
			if got := registry.SupportsImages(tt.encoding); got != tt.wantImages {
				t.Errorf("SupportsImages(%s) = %v, want %v", tt.encoding, got, tt.wantImages)
			}
		})
	}
}

func TestSpecialTokenID(t *testing.T) {
	registry, err := NewCapabilityRegistry()
	if err != nil {
		t.Fatalf("NewCapabilityRegistry() error = %v", err)
	}

	tests := []struct {
		token   string
		want    uint32
		wantErr bool
	}{
		{"<|start|>", 200006, false},
		{"<|message|>", 200008, false},
		{"<|end|>", 200007, false},
		{"<|nope|>", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := registry.SpecialTokenID(DefaultEncoding, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SpecialTokenID(%s) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SpecialTokenID(%s) = %d, want %d", tt.token, got, tt.want)
			}
		})
	}
}

func TestServiceInfo_Profile(t *testing.T) {
	registry, err := NewCapabilityRegistry()
	if err != nil {
		t.Fatalf("NewCapabilityRegistry() error = %v", err)
	}

	t.Run("nil info uses default encoding", func(t *testing.T) {
		var info *ServiceInfo
		if info.Encoding() != DefaultEncoding {
			t.Errorf("Encoding() = %s, want %s", info.Encoding(), DefaultEncoding)
		}
		p, err := info.Profile(registry)
		if err != nil {
			t.Fatalf("Profile() error = %v", err)
		}
		if len(p.StopTokensForAssistantActions) != 2 {
			t.Errorf("expected profile stop tokens, got %v", p.StopTokensForAssistantActions)
		}
	})

	t.Run("reported stop tokens override profile", func(t *testing.T) {
		info := &ServiceInfo{
			EncodingName:                  stringPtr("o200k_harmony"),
			SpecialTokens:                 []string{"<|start|>", "<|weird|>"},
			StopTokensForAssistantActions: []string{"<|return|>"},
		}
		p, err := info.Profile(registry)
		if err != nil {
			t.Fatalf("Profile() error = %v", err)
		}
		if len(p.StopTokensForAssistantActions) != 1 || p.StopTokensForAssistantActions[0] != "<|return|>" {
			t.Errorf("StopTokensForAssistantActions = %v", p.StopTokensForAssistantActions)
		}

		base, _ := registry.GetProfile("o200k_harmony")
		if len(base.StopTokensForAssistantActions) != 2 {
			t.Error("registry profile must not be modified by a merge")
		}

		missing := info.MissingSpecialTokens(p)
		if len(missing) != 1 || missing[0] != "<|weird|>" {
			t.Errorf("MissingSpecialTokens() = %v", missing)
		}
	})

	t.Run("unknown encoding", func(t *testing.T) {
		info := &ServiceInfo{EncodingName: stringPtr("mystery")}
		if _, err := info.Profile(registry); err == nil {
			t.Error("expected error for unknown encoding")
		}
	})
}

func TestLoadCapabilitiesFromFile(t *testing.T) {
	registry, err := NewCapabilityRegistry()
	if err != nil {
		t.Fatalf("NewCapabilityRegistry() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := `version: "0.1.0"
profiles:
  custom_enc:
    default_channel: final
    special_tokens:
      "<|start|>": 1
      "<|message|>": 2
      "<|end|>": 3
    features:
      tools: false
      images: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := registry.LoadCapabilitiesFromFile(path); err != nil {
		t.Fatalf("LoadCapabilitiesFromFile() error = %v", err)
	}

	if !registry.HasProfile("custom_enc") {
		t.Fatal("custom profile not registered")
	}
	if !registry.HasProfile(DefaultEncoding) {
		t.Error("embedded profiles should survive loading a file")
	}
	if registry.SupportsTools("custom_enc") {
		t.Error("custom profile should not support tools")
	}
	if id, _ := registry.SpecialTokenID("custom_enc", "<|end|>"); id != 3 {
		t.Errorf("SpecialTokenID = %d, want 3", id)
	}
}

func TestLoadCapabilitiesFromFile_Missing(t *testing.T) {
	registry, err := NewCapabilityRegistry()
	if err != nil {
		t.Fatalf("NewCapabilityRegistry() error = %v", err)
	}
	if err := registry.LoadCapabilitiesFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRegisterProfile(t *testing.T) {
	registry, err := NewCapabilityRegistry()
	if err != nil {
		t.Fatalf("NewCapabilityRegistry() error = %v", err)
	}

	registry.RegisterProfile("programmatic", &EncodingProfile{
		Features: EncodingFeatures{Images: true},
	})
	if !registry.SupportsImages("programmatic") {
		t.Error("registered profile should support images")
	}

	encodings := registry.Encodings()
	if len(encodings) != 3 {
		t.Errorf("Encodings() = %v, want 3 entries", encodings)
	}
}
