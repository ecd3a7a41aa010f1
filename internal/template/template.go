// Package template provides CloudFormation template building from typed resources.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	wetwire "github.com/lex00/wetwire-crm-go"
	"github.com/lex00/wetwire-crm-go/internal/serialize"
)

// ErrDuplicateResource is returned when a logical id is added twice.
var ErrDuplicateResource = errors.New("duplicate logical id")

// ErrUnknownResource is returned when an operation names a logical id the
// builder does not hold.
var ErrUnknownResource = errors.New("unknown logical id")

type entry struct {
	value          wetwire.Resource
	deps           []string
	deletionPolicy string
}

// Builder constructs CloudFormation templates from typed resources.
//
// Resource values are serialized at Build time, so a pointer added early can
// still be mutated (for example to attach events to a function) until then.
type Builder struct {
	description string
	resources   map[string]*entry
	outputs     map[string]wetwire.Output
}

// Option configures a resource added to the Builder.
type Option func(*entry)

// DependsOn declares explicit dependencies on other logical ids.
func DependsOn(names ...string) Option {
	return func(e *entry) {
		e.deps = append(e.deps, names...)
	}
}

// WithDeletionPolicy sets both DeletionPolicy and UpdateReplacePolicy.
func WithDeletionPolicy(policy string) Option {
	return func(e *entry) {
		e.deletionPolicy = policy
	}
}

// NewBuilder creates an empty template builder.
func NewBuilder(description string) *Builder {
	return &Builder{
		description: description,
		resources:   make(map[string]*entry),
		outputs:     make(map[string]wetwire.Output),
	}
}

// AddResource registers a resource under a logical id.
func (b *Builder) AddResource(name string, res wetwire.Resource, opts ...Option) error {
	if name == "" {
		return fmt.Errorf("adding %s: logical id is required", res.ResourceType())
	}
	if _, exists := b.resources[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, name)
	}
	e := &entry{value: res}
	for _, opt := range opts {
		opt(e)
	}
	b.resources[name] = e
	return nil
}

// AddDependency records that name depends on dep.
func (b *Builder) AddDependency(name, dep string) error {
	e, ok := b.resources[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	for _, d := range e.deps {
		if d == dep {
			return nil
		}
	}
	e.deps = append(e.deps, dep)
	return nil
}

// Resource returns the value registered under name.
func (b *Builder) Resource(name string) (wetwire.Resource, bool) {
	e, ok := b.resources[name]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Has reports whether name is registered.
func (b *Builder) Has(name string) bool {
	_, ok := b.resources[name]
	return ok
}

// Len returns the number of registered resources.
func (b *Builder) Len() int {
	return len(b.resources)
}

// AddOutput registers a template output.
func (b *Builder) AddOutput(name string, out wetwire.Output) {
	b.outputs[name] = out
}

// Order returns logical ids in dependency order.
func (b *Builder) Order() ([]string, error) {
	return b.topologicalSort()
}

// Build constructs the CloudFormation template.
func (b *Builder) Build() (*wetwire.Template, error) {
	order, err := b.topologicalSort()
	if err != nil {
		return nil, err
	}

	template := &wetwire.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Description:              b.description,
		Resources:                make(map[string]wetwire.ResourceDef),
	}

	hasSAMResources := false

	for _, name := range order {
		e := b.resources[name]
		resourceType := e.value.ResourceType()
		if isSAMResourceType(resourceType) {
			hasSAMResources = true
		}

		props, err := serialize.Resource(e.value)
		if err != nil {
			return nil, fmt.Errorf("serializing %s: %w", name, err)
		}

		def := wetwire.ResourceDef{
			Type:       resourceType,
			Properties: b.transformRefs(props),
			DependsOn:  b.knownDeps(e),
		}
		if e.deletionPolicy != "" {
			def.DeletionPolicy = e.deletionPolicy
			def.UpdateReplacePolicy = e.deletionPolicy
		}
		template.Resources[name] = def
	}

	if len(b.outputs) > 0 {
		template.Outputs = make(map[string]wetwire.Output, len(b.outputs))
		for name, out := range b.outputs {
			normalized, err := normalizeOutput(out)
			if err != nil {
				return nil, fmt.Errorf("serializing output %s: %w", name, err)
			}
			template.Outputs[name] = normalized
		}
	}

	if hasSAMResources {
		template.Transform = wetwire.SAMTransform
	}

	return template, nil
}

// normalizeOutput converts intrinsic values to their plain JSON shape so the
// template marshals identically to JSON and YAML.
func normalizeOutput(out wetwire.Output) (wetwire.Output, error) {
	value, err := normalize(out.Value)
	if err != nil {
		return out, err
	}
	out.Value = value
	if out.Export != nil {
		name, err := normalize(out.Export.Name)
		if err != nil {
			return out, err
		}
		out.Export = &wetwire.Export{Name: name}
	}
	return out, nil
}

func normalize(v any) (any, error) {
	if _, ok := v.(string); ok || v == nil {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// knownDeps returns the sorted dependencies of e that exist in the builder.
func (b *Builder) knownDeps(e *entry) []string {
	var deps []string
	seen := make(map[string]bool)
	for _, dep := range e.deps {
		if _, ok := b.resources[dep]; ok && !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	sort.Strings(deps)
	return deps
}

// transformRefs normalizes property values so that intrinsic functions are
// kept intact and nested maps are copied.
func (b *Builder) transformRefs(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	result := make(map[string]any, len(props))
	for key, value := range props {
		result[key] = b.transformValue(value)
	}
	return result
}

func (b *Builder) transformValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if isIntrinsic(v) {
			return v
		}
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = b.transformValue(val)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, elem := range v {
			result[i] = b.transformValue(elem)
		}
		return result

	default:
		return value
	}
}

func isIntrinsic(m map[string]any) bool {
	if len(m) != 1 {
		return false
	}
	for key := range m {
		return key == "Ref" || strings.HasPrefix(key, "Fn::")
	}
	return false
}

// topologicalSort returns resources in dependency order.
func (b *Builder) topologicalSort() ([]string, error) {
	graph := make(map[string][]string)
	inDegree := make(map[string]int)

	for name := range b.resources {
		graph[name] = nil
		inDegree[name] = 0
	}

	for name, e := range b.resources {
		for _, dep := range b.knownDeps(e) {
			graph[dep] = append(graph[dep], name)
			inDegree[name]++
		}
	}

	// Kahn's algorithm
	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, neighbor := range graph[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(b.resources) {
		return nil, b.detectCycle()
	}

	return result, nil
}

// detectCycle finds and reports a cycle in the dependency graph.
func (b *Builder) detectCycle() error {
	visited := make(map[string]bool)
	path := make(map[string]bool)

	var cycle []string
	var findCycle func(node string) bool
	findCycle = func(node string) bool {
		visited[node] = true
		path[node] = true

		for _, dep := range b.knownDeps(b.resources[node]) {
			if !visited[dep] {
				if findCycle(dep) {
					cycle = append([]string{node}, cycle...)
					return true
				}
			} else if path[dep] {
				cycle = append([]string{dep, node}, cycle...)
				return true
			}
		}

		path[node] = false
		return false
	}

	names := make([]string, 0, len(b.resources))
	for name := range b.resources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !visited[name] {
			if findCycle(name) {
				break
			}
		}
	}

	if len(cycle) > 0 {
		msg := "circular dependency detected:\n"
		for i, name := range cycle {
			msg += fmt.Sprintf("  %s (%s)", name, b.resources[name].value.ResourceType())
			if i < len(cycle)-1 {
				msg += "\n    → "
			}
		}
		return errors.New(msg)
	}

	return errors.New("circular dependency detected")
}

// isSAMResourceType returns true for AWS::Serverless::* types.
func isSAMResourceType(resourceType string) bool {
	return strings.HasPrefix(resourceType, "AWS::Serverless::")
}

// ToJSON serializes the template to JSON.
func ToJSON(t *wetwire.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *wetwire.Template) ([]byte, error) {
	return yaml.Marshal(t)
}
