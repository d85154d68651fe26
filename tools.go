package codexpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Built-in tool names understood by the reference daemon
const (
	ToolNameEcho  = "echo"
	ToolNameUpper = "upper"
)

// ToolNamespace is the Harmony namespace tool definitions are published under
const ToolNamespace = "functions"

// FunctionDetails represents the function definition within a tool (OpenAI format).
type FunctionDetails struct {
	Name        string                 `json:"name"`                  // Function name (required)
	Description string                 `json:"description,omitempty"` // What the function does
	Parameters  map[string]interface{} `json:"parameters"`            // JSON Schema for parameters
}

// Tool represents one entry of the tool manifest (OpenAI function format).
// The manifest is ordered; encoders keep the caller's order.
type Tool struct {
	Type     string          `json:"type"`     // Always "function"
	Function FunctionDetails `json:"function"` // Function definition
}

// Name returns the function name
func (t *Tool) Name() string {
	return t.Function.Name
}

// Validate checks if the Tool is properly configured and its parameters
// compile as a JSON schema
func (t *Tool) Validate() error {
	if t.Type == "" {
		return errors.New("tool type is required")
	}

	if t.Type != "function" {
		return fmt.Errorf("unsupported tool type: %s (only 'function' is supported)", t.Type)
	}

	if t.Function.Name == "" {
		return errors.New("function name is required")
	}

	if t.Function.Parameters == nil {
		return errors.New("function parameters are required")
	}

	if schemaType, ok := t.Function.Parameters["type"].(string); !ok || schemaType != "object" {
		return errors.New("function parameters must be a JSON schema with type 'object'")
	}

	if _, err := t.compiledSchema(); err != nil {
		return fmt.Errorf("function parameters for %s: %w", t.Function.Name, err)
	}

	return nil
}

// ValidateInput checks raw tool-call arguments against the tool's parameter schema.
func (t *Tool) ValidateInput(input string) error {
	schema, err := t.compiledSchema()
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal([]byte(input), &decoded); err != nil {
		return fmt.Errorf("tool %s input is not JSON: %w", t.Function.Name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tool %s input invalid: %w", t.Function.Name, err)
	}
	return nil
}

// SchemaJSON returns the parameter schema as compact JSON
func (t *Tool) SchemaJSON() (string, error) {
	b, err := json.Marshal(t.Function.Parameters)
	if err != nil {
		return "", fmt.Errorf("marshal schema for %s: %w", t.Function.Name, err)
	}
	return string(b), nil
}

var schemaCache sync.Map

func (t *Tool) compiledSchema() (*jsonschema.Schema, error) {
	key, err := t.SchemaJSON()
	if err != nil {
		return nil, err
	}
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(t.Function.Name+".schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// FindTool returns the manifest entry with the given name
func FindTool(tools []Tool, name string) (*Tool, bool) {
	for i := range tools {
		if tools[i].Function.Name == name {
			return &tools[i], true
		}
	}
	return nil, false
}

// ToolNames returns the manifest's names in order
func ToolNames(tools []Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Function.Name)
	}
	return names
}
