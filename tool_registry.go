package codexpc

import (
	"fmt"
	"sort"
	"sync"
)

// ToolDefinition describes how to create a tool
type ToolDefinition struct {
	Name        string                // Unique tool name
	Description string                // Human-readable description
	Factory     func() (*Tool, error) // Factory function to create tool
}

// ToolRegistry manages runtime registration of tools that can be placed in a
// prompt's manifest by name
type ToolRegistry struct {
	tools map[string]ToolDefinition
	mu    sync.RWMutex
}

var (
	globalToolRegistry     *ToolRegistry
	globalToolRegistryOnce sync.Once
)

// NewToolRegistry returns a registry holding only the built-in tools
func NewToolRegistry() *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]ToolDefinition)}
	r.registerBuiltInTools()
	return r
}

// GetToolRegistry returns the global tool registry (singleton)
func GetToolRegistry() *ToolRegistry {
	globalToolRegistryOnce.Do(func() {
		globalToolRegistry = NewToolRegistry()
	})
	return globalToolRegistry
}

func (r *ToolRegistry) registerBuiltInTools() {
	_ = r.Register(ToolDefinition{
		Name:        ToolNameEcho,
		Description: "Echo tool (daemon-executed)",
		Factory:     NewEchoTool,
	})

	_ = r.Register(ToolDefinition{
		Name:        ToolNameUpper,
		Description: "Upper-case tool (daemon-executed)",
		Factory:     NewUpperTool,
	})
}

// Register adds a tool definition. Names must be unique and non-empty.
func (r *ToolRegistry) Register(def ToolDefinition) error {
	switch {
	case def.Name == "":
		return &ValidationError{Field: "tool.name", Reason: "tool name is required", Err: ErrInvalidRequest}
	case def.Factory == nil:
		return &ValidationError{Field: "tool.factory", Value: def.Name, Reason: "factory is required", Err: ErrInvalidRequest}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.tools[def.Name]; taken {
		return &ValidationError{Field: "tool.name", Value: def.Name, Reason: "already registered", Err: ErrInvalidRequest}
	}
	r.tools[def.Name] = def
	return nil
}

// Unregister removes a tool definition.
func (r *ToolRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return unknownTool(name)
	}
	delete(r.tools, name)
	return nil
}

// Get returns the definition registered under name.
func (r *ToolRegistry) Get(name string) (ToolDefinition, error) {
	r.mu.RLock()
	def, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ToolDefinition{}, unknownTool(name)
	}
	return def, nil
}

// IsRegistered reports whether name has a definition.
func (r *ToolRegistry) IsRegistered(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// List returns the registered names, sorted.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Create builds a tool from its factory. The factory's result must pass
// Tool.Validate and carry the registered name, so a manifest never holds a
// tool the daemon would reject.
func (r *ToolRegistry) Create(name string) (*Tool, error) {
	def, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	tool, err := def.Factory()
	if err != nil {
		return nil, fmt.Errorf("create tool %s: %w", name, err)
	}
	if err := tool.Validate(); err != nil {
		return nil, fmt.Errorf("create tool %s: %w", name, err)
	}
	if tool.Name() != name {
		return nil, fmt.Errorf("create tool %s: factory returned tool %q", name, tool.Name())
	}
	return tool, nil
}

func unknownTool(name string) error {
	return &ValidationError{Field: "tool", Value: name, Reason: "unknown tool", Err: ErrInvalidRequest}
}

// Manifest builds an ordered tool manifest from registered names.
// Order follows names, so the same input always yields the same manifest.
func (r *ToolRegistry) Manifest(names ...string) ([]Tool, error) {
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tool, err := r.Create(name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, *tool)
	}
	return tools, nil
}

// RegisterTool registers def with the global registry.
func RegisterTool(def ToolDefinition) error {
	return GetToolRegistry().Register(def)
}

// CreateTool creates a tool from the global registry.
func CreateTool(name string) (*Tool, error) {
	return GetToolRegistry().Create(name)
}

// ToolManifest builds a manifest from the global registry.
func ToolManifest(names ...string) ([]Tool, error) {
	return GetToolRegistry().Manifest(names...)
}
