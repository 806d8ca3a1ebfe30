// Package tools implements the declarative tool registry and the
// concrete tool bodies the ReAct driver dispatches actions to: parameter
// alias resolution, validation with a fuzzy-matched "unknown tool" error,
// and documentation generation.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// ParamType names the accepted shape of a parameter value.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "int"
	TypeBool   ParamType = "bool"
	TypeObject ParamType = "object"
	TypeArray  ParamType = "array"
)

// Parameter describes one named input to a tool, including any aliases
// callers may use instead of its canonical name.
type Parameter struct {
	Name        string
	Type        ParamType
	Required    bool
	Default     any
	Description string
	Example     any
	Aliases     []string
}

// Schema is a tool's full declarative contract.
type Schema struct {
	Name        string
	Description string
	Parameters  []Parameter
	Returns     string
}

// paramMap returns alias name -> canonical name, including each
// parameter's own name mapped to itself.
func (s Schema) paramMap() map[string]string {
	m := map[string]string{}
	for _, p := range s.Parameters {
		m[p.Name] = p.Name
		for _, a := range p.Aliases {
			m[a] = p.Name
		}
	}
	return m
}

// NormalizeParams rewrites alias keys in params to their canonical
// parameter names, leaving unrecognized keys untouched.
func (s Schema) NormalizeParams(params map[string]any) map[string]any {
	out := map[string]any{}
	pm := s.paramMap()
	for k, v := range params {
		if canonical, ok := pm[k]; ok {
			out[canonical] = v
		} else {
			out[k] = v
		}
	}
	return out
}

// Validate checks params against the schema: required parameters must be
// present (after alias normalization) and typed values must match their
// declared type. Unknown parameter names are tolerated, not rejected —
// they're reported back to the caller as a warning string so a caller can
// log it, but they never block execution.
func (s Schema) Validate(params map[string]any) (valid bool, errMsg string, warning string) {
	if params == nil {
		params = map[string]any{}
	}
	pm := s.paramMap()
	normalized := map[string]any{}
	var unknown []string

	for k, v := range params {
		if canonical, ok := pm[k]; ok {
			normalized[canonical] = v
		} else {
			unknown = append(unknown, k)
			normalized[k] = v
		}
	}

	var missing []Parameter
	for _, p := range s.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := normalized[p.Name]; !ok && p.Default == nil {
			missing = append(missing, p)
		}
	}

	if len(missing) > 0 {
		var b strings.Builder
		names := make([]string, len(missing))
		for i, p := range missing {
			names[i] = p.Name
		}
		fmt.Fprintf(&b, "missing required parameters: %s\n\nparameter reference:\n", strings.Join(names, ", "))
		for _, p := range missing {
			aliasStr := ""
			if len(p.Aliases) > 0 {
				aliasStr = fmt.Sprintf(" (aliases: %s)", strings.Join(p.Aliases, ", "))
			}
			fmt.Fprintf(&b, "  - %s%s (%s)\n    %s\n", p.Name, aliasStr, p.Type, p.Description)
			if p.Example != nil {
				fmt.Fprintf(&b, "    example: %v\n", p.Example)
			}
		}
		return false, b.String(), ""
	}

	if len(unknown) > 0 {
		var names []string
		for _, p := range s.Parameters {
			names = append(names, p.Name)
			names = append(names, p.Aliases...)
		}
		var suggestions []string
		for _, u := range unknown {
			matches := fuzzy.Find(u, names)
			if len(matches) > 0 {
				suggestions = append(suggestions, fmt.Sprintf("%s -> %s", u, names[matches[0].Index]))
			}
		}
		warning = fmt.Sprintf("unrecognized parameters: %s", strings.Join(unknown, ", "))
		if len(suggestions) > 0 {
			warning += fmt.Sprintf("\nsuggestions: %s", strings.Join(suggestions, ", "))
		}
	}

	var typeErrors []string
	for _, p := range s.Parameters {
		v, ok := normalized[p.Name]
		if !ok || v == nil {
			continue
		}
		if !matchesType(v, p.Type) {
			typeErrors = append(typeErrors, fmt.Sprintf("parameter %q expected type %s, got %T", p.Name, p.Type, v))
		}
	}
	if len(typeErrors) > 0 {
		return false, strings.Join(typeErrors, "\n"), warning
	}

	return true, "", warning
}

func matchesType(v any, t ParamType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInt:
		switch v.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return true
}

// Documentation renders a human-readable description of the schema.
func (s Schema) Documentation() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.Name, s.Description)
	if len(s.Parameters) > 0 {
		b.WriteString("### Parameters\n\n")
		for _, p := range s.Parameters {
			req := "optional"
			if p.Required {
				req = "required"
			}
			def := ""
			if p.Default != nil {
				def = fmt.Sprintf(", default: %v", p.Default)
			}
			aliasStr := ""
			if len(p.Aliases) > 0 {
				aliasStr = fmt.Sprintf(" (aliases: %s)", strings.Join(p.Aliases, ", "))
			}
			fmt.Fprintf(&b, "- **%s**%s (%s, %s%s)\n  %s\n", p.Name, aliasStr, p.Type, req, def, p.Description)
			if p.Example != nil {
				fmt.Fprintf(&b, "  example: `%v`\n", p.Example)
			}
			b.WriteString("\n")
		}
	}
	if s.Returns != "" {
		fmt.Fprintf(&b, "### Returns\n\n%s\n\n", s.Returns)
	}
	return b.String()
}

// Result is what a tool body returns.
type Result struct {
	Success bool
	Output  string
	Error   string
	Extra   map[string]any
}

// Func is the signature every concrete tool body implements.
type Func func(ctx context.Context, params map[string]any) (Result, error)

type entry struct {
	schema Schema
	fn     Func
}

// Registry holds every tool the driver can dispatch actions to.
type Registry struct {
	entries map[string]entry
	order   []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// Register adds a tool under its schema's canonical name.
func (r *Registry) Register(schema Schema, fn Func) {
	if _, exists := r.entries[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.entries[schema.Name] = entry{schema: schema, fn: fn}
}

// Names lists every registered tool name, declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Schema returns a tool's schema, or false if unknown.
func (r *Registry) Schema(name string) (Schema, bool) {
	e, ok := r.entries[name]
	return e.schema, ok
}

// ValidateCall checks whether params are valid for the named tool.
func (r *Registry) ValidateCall(name string, params map[string]any) (valid bool, errMsg string, warning string) {
	e, ok := r.entries[name]
	if !ok {
		return false, r.FormatToolNotFoundError(name), ""
	}
	return e.schema.Validate(params)
}

// Execute runs the named tool after normalizing its parameter aliases.
// The caller is expected to have already validated the call.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	e, ok := r.entries[name]
	if !ok {
		return Result{Success: false, Error: r.FormatToolNotFoundError(name)}, nil
	}
	normalized := e.schema.NormalizeParams(params)
	return e.fn(ctx, normalized)
}

// GetDocumentation returns one tool's rendered documentation.
func (r *Registry) GetDocumentation(name string) string {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Sprintf("tool %q does not exist", name)
	}
	return e.schema.Documentation()
}

// SuggestSimilarTools fuzzy-matches name against every registered tool.
func (r *Registry) SuggestSimilarTools(name string, max int) []string {
	names := r.sortedNames()
	matches := fuzzy.Find(name, names)
	var out []string
	for i, m := range matches {
		if i >= max {
			break
		}
		out = append(out, names[m.Index])
	}
	return out
}

func (r *Registry) sortedNames() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// FormatToolNotFoundError reproduces the wire-level "tool not found" error
// text exactly as the rest of this system's tooling keys on it — this is a
// protocol string, not prose, so it is kept byte-for-byte rather than
// localized.
func (r *Registry) FormatToolNotFoundError(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "错误：未知工具 '%s'\n\n", name)

	similar := r.SuggestSimilarTools(name, 3)
	if len(similar) > 0 {
		b.WriteString("你是否想使用以下工具？\n")
		for _, t := range similar {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
		b.WriteString("\n")
	}

	b.WriteString("可用工具列表：\n")
	for _, name := range r.sortedNames() {
		schema := r.entries[name].schema
		desc := schema.Description
		if len(desc) > 60 {
			desc = desc[:60]
		}
		fmt.Fprintf(&b, "  - %s: %s...\n", name, desc)
	}
	return b.String()
}
