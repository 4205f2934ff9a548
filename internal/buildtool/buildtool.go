package buildtool

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Tool defines how one build-tool kind compiles and tests a submission.
type Tool interface {
	// Name returns the kind identifier (e.g., "gradle", "maven").
	Name() string

	// ConfigFiles returns the tool's canonical project config files as
	// relative path -> content.
	ConfigFiles(projectName string) map[string]string

	// SourceRoot returns the relative directory for submitted source files.
	SourceRoot() string

	// TestRoot returns the relative directory for grading test files.
	TestRoot() string

	// TestCommand returns the shell command that runs the test suite inside
	// the given container workspace.
	TestCommand(workspace string) string

	// ReportDir returns the workspace-relative directory where the tool
	// writes test reports.
	ReportDir() string
}

// Registry maps build-tool kinds to their Tool implementations.
type Registry struct {
	tools       map[string]Tool
	defaultKind string
}

// NewRegistry creates a registry with all supported tools.
func NewRegistry(defaultKind string) *Registry {
	r := &Registry{
		tools:       make(map[string]Tool),
		defaultKind: defaultKind,
	}
	r.Register(&GradleTool{})
	r.Register(&MavenTool{})
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns the tool for the given kind.
func (r *Registry) Get(kind string) (Tool, error) {
	t, ok := r.tools[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported build tool: %q (supported: gradle, maven)", kind)
	}
	return t, nil
}

// Resolve returns the tool for the given kind, falling back to the default
// kind when the request omits one or names an unknown kind. Resolution never
// fails: an unrecognized kind is a warning, not an error.
func (r *Registry) Resolve(kind string) Tool {
	if kind == "" {
		return r.tools[r.defaultKind]
	}
	t, ok := r.tools[kind]
	if !ok {
		log.Warn().
			Str("requested", kind).
			Str("fallback", r.defaultKind).
			Msg("unrecognized build tool, falling back to default")
		return r.tools[r.defaultKind]
	}
	return t
}

// Kinds returns all registered kind names.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.tools))
	for name := range r.tools {
		kinds = append(kinds, name)
	}
	return kinds
}
