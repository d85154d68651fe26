package codexpc

import (
	"errors"
	"strings"
	"testing"
)

func TestBuiltInTools(t *testing.T) {
	tests := []struct {
		name    string
		factory func() (*Tool, error)
	}{
		{ToolNameEcho, NewEchoTool},
		{ToolNameUpper, NewUpperTool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, err := tt.factory()
			if err != nil {
				t.Fatalf("factory error = %v", err)
			}
			if tool.Name() != tt.name {
				t.Errorf("Name() = %s, want %s", tool.Name(), tt.name)
			}
			props, ok := tool.Function.Parameters["properties"].(map[string]interface{})
			if !ok {
				t.Fatalf("properties missing from %v", tool.Function.Parameters)
			}
			if _, ok := props["msg"]; !ok {
				t.Errorf("msg property missing from %v", props)
			}
			if _, ok := tool.Function.Parameters["$schema"]; ok {
				t.Error("reflected schema should not carry $schema")
			}
		})
	}
}

func TestTool_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tool    Tool
		wantErr string
	}{
		{
			name:    "missing type",
			tool:    Tool{Function: FunctionDetails{Name: "x"}},
			wantErr: "tool type is required",
		},
		{
			name:    "wrong type",
			tool:    Tool{Type: "retrieval", Function: FunctionDetails{Name: "x"}},
			wantErr: "unsupported tool type",
		},
		{
			name:    "missing name",
			tool:    Tool{Type: "function", Function: FunctionDetails{Parameters: map[string]interface{}{"type": "object"}}},
			wantErr: "function name is required",
		},
		{
			name:    "non-object schema",
			tool:    Tool{Type: "function", Function: FunctionDetails{Name: "x", Parameters: map[string]interface{}{"type": "string"}}},
			wantErr: "type 'object'",
		},
		{
			name: "schema does not compile",
			tool: Tool{Type: "function", Function: FunctionDetails{Name: "x", Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"n": map[string]interface{}{"type": 7}},
			}}},
			wantErr: "function parameters for x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tool.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestTool_ValidateInput(t *testing.T) {
	tool, err := NewCustomTool("echo_strict", "echo with required msg", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"msg": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"msg"},
	})
	if err != nil {
		t.Fatalf("NewCustomTool() error = %v", err)
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"msg":"hello"}`, false},
		{"missing required", `{}`, true},
		{"wrong type", `{"msg":5}`, true},
		{"not json", `msg=hello`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tool.ValidateInput(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInput(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestNewCustomTool_RequiredFields(t *testing.T) {
	params := map[string]interface{}{"type": "object"}
	if _, err := NewCustomTool("", "d", params); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := NewCustomTool("n", "", params); err == nil {
		t.Error("expected error for empty description")
	}
	if _, err := NewCustomTool("n", "d", nil); err == nil {
		t.Error("expected error for nil parameters")
	}
}

func TestToolRegistry(t *testing.T) {
	r := NewToolRegistry()

	if got := r.List(); len(got) != 2 || got[0] != ToolNameEcho || got[1] != ToolNameUpper {
		t.Fatalf("List() = %v, want [echo upper]", got)
	}

	type weatherArgs struct {
		City string `json:"city"`
	}
	err := r.Register(ToolDefinition{
		Name: "weather",
		Factory: func() (*Tool, error) {
			return NewToolFromStruct[weatherArgs]("weather", "Look up the weather")
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(ToolDefinition{Name: "weather", Factory: NewEchoTool}); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	manifest, err := r.Manifest("upper", "weather", "echo")
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	names := ToolNames(manifest)
	if strings.Join(names, ",") != "upper,weather,echo" {
		t.Errorf("manifest order = %v", names)
	}
	if _, ok := FindTool(manifest, "weather"); !ok {
		t.Error("FindTool(weather) not found")
	}

	if _, err := r.Manifest("echo", "missing"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Manifest(missing) error = %v, want ErrInvalidRequest", err)
	}
	if _, err := r.Create("echo"); err != nil {
		t.Errorf("Create(echo) error = %v", err)
	}

	err = r.Register(ToolDefinition{Name: "liar", Factory: NewEchoTool})
	if err != nil {
		t.Fatalf("Register(liar) error = %v", err)
	}
	if _, err := r.Create("liar"); err == nil {
		t.Error("expected error when the factory returns a differently named tool")
	}

	if err := r.Unregister("weather"); err != nil {
		t.Errorf("Unregister() error = %v", err)
	}
	if r.IsRegistered("weather") {
		t.Error("weather still registered")
	}
}
