package codexpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

// EchoArgs are the arguments of the built-in echo tool
type EchoArgs struct {
	Msg string `json:"msg" jsonschema:"description=Text to echo back"`
}

// UpperArgs are the arguments of the built-in upper tool
type UpperArgs struct {
	Msg string `json:"msg" jsonschema:"description=Text to convert to upper case"`
}

// NewEchoTool creates the built-in echo tool. The daemon executes it and
// reports the result as a tool_call.output item.
func NewEchoTool() (*Tool, error) {
	return newReflectedTool[EchoArgs](ToolNameEcho, "Echo a message back unchanged")
}

// NewUpperTool creates the built-in upper tool.
func NewUpperTool() (*Tool, error) {
	return newReflectedTool[UpperArgs](ToolNameUpper, "Return a message in upper case")
}

// NewCustomTool creates a custom function tool (OpenAI format).
//
// Parameters:
//   - name: Function name (required)
//   - description: What the function does (required)
//   - parameters: JSON Schema object defining function parameters (required)
func NewCustomTool(name string, description string, parameters map[string]interface{}) (*Tool, error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}

	if description == "" {
		return nil, errors.New("tool description is required")
	}

	if parameters == nil {
		return nil, errors.New("parameters are required")
	}

	tool := &Tool{
		Type: "function",
		Function: FunctionDetails{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}

	if err := tool.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create custom tool: %w", err)
	}

	return tool, nil
}

// NewToolFromStruct creates a tool whose parameter schema is reflected from T.
func NewToolFromStruct[T any](name, description string) (*Tool, error) {
	return newReflectedTool[T](name, description)
}

func newReflectedTool[T any](name, description string) (*Tool, error) {
	params, err := reflectParameters[T]()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s tool: %w", name, err)
	}
	return NewCustomTool(name, description, params)
}

// reflectParameters builds an inline object schema from a Go struct's json and
// jsonschema tags.
func reflectParameters[T any]() (map[string]interface{}, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: false,
	}

	var zero T
	schema := reflector.Reflect(zero)
	// The daemon parses schemas without meta-schema support.
	schema.Version = ""
	schema.ID = ""

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %T: %w", zero, err)
	}

	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("decode schema for %T: %w", zero, err)
	}
	return params, nil
}
