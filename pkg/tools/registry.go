package tools

import (
	"fmt"
	"sort"
	"sync"
)

// Tool categories. Each maps to an enable flag group in the engine config.
const (
	CategoryWarehouse  = "warehouse"
	CategoryRepository = "repository"
	CategoryCI         = "ci"
	CategoryDocs       = "docs"
	CategoryEscalation = "escalation"
	CategoryProgress   = "progress"
)

// ToolFactory creates a tool instance bound to the engine's collaborators.
type ToolFactory func(deps Deps) (Tool, error)

// ToolMeta contains metadata about a tool for discovery and enable flags.
type ToolMeta struct {
	Name     string
	Category string
}

// toolDescriptor contains the factory and metadata for a tool.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type toolDescriptor struct {
	meta    ToolMeta
	factory ToolFactory
}

// immutableRegistry is the global, read-only tool registry.
//
//nolint:govet // fieldalignment: Logical grouping preferred over memory optimization
type immutableRegistry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]toolDescriptor
}

//nolint:gochecknoglobals // Factory pattern requires global registry
var globalRegistry = &immutableRegistry{
	tools: make(map[string]toolDescriptor),
}

// Register adds a tool factory to the global registry.
// Panics if called after the registry is sealed.
func Register(meta ToolMeta, factory ToolFactory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry sealed - cannot register tool '%s'", meta.Name))
	}

	globalRegistry.tools[meta.Name] = toolDescriptor{
		meta:    meta,
		factory: factory,
	}
}

// Seal prevents further tool registrations.
// Called automatically when the first Provider is created.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// Enabler reports whether a tool operation within a category is enabled.
// Satisfied by *config.Config.
type Enabler interface {
	ToolEnabled(category, operation string) bool
}

// allowAll enables every registered tool.
type allowAll struct{}

func (allowAll) ToolEnabled(_, _ string) bool { return true }

// AllowAll returns an Enabler that enables every tool. Used in tests.
func AllowAll() Enabler { return allowAll{} }

// Provider resolves enabled tools instantiated against one set of deps.
type Provider struct {
	tools map[string]Tool
}

// NewProvider instantiates every registered tool the enabler allows. Seals
// the registry.
func NewProvider(deps Deps, enabler Enabler) (*Provider, error) {
	Seal()

	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	instances := make(map[string]Tool)
	for name, desc := range globalRegistry.tools {
		if !enabler.ToolEnabled(desc.meta.Category, name) {
			continue
		}
		tool, err := desc.factory(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to create tool %s: %w", name, err)
		}
		instances[name] = tool
	}

	return &Provider{tools: instances}, nil
}

// Get retrieves an enabled tool by name.
func (p *Provider) Get(name string) (Tool, error) {
	tool, exists := p.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	return tool, nil
}

// Has reports whether a tool is enabled.
func (p *Provider) Has(name string) bool {
	_, exists := p.tools[name]
	return exists
}

// Names returns the enabled tool names, sorted.
func (p *Provider) Names() []string {
	names := make([]string, 0, len(p.tools))
	for name := range p.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the definitions of all enabled tools, sorted by name.
func (p *Provider) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(p.tools))
	for _, name := range p.Names() {
		defs = append(defs, p.tools[name].Definition())
	}
	return defs
}
