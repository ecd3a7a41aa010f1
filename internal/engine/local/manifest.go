package local

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lex00/wetwire-crm-go/construct"
)

// Manifest records what an apply created. Buckets and tables exist on the
// local endpoints; handlers, grants, subscriptions and API fronts are
// recorded for the local runtime that serves them.
type Manifest struct {
	Assembly      string               `yaml:"assembly"`
	Region        string               `yaml:"region"`
	Buckets       []BucketRecord       `yaml:"buckets,omitempty"`
	Tables        []TableRecord        `yaml:"tables,omitempty"`
	Handlers      []*HandlerRecord     `yaml:"handlers,omitempty"`
	Subscriptions []SubscriptionRecord `yaml:"subscriptions,omitempty"`
	Apis          []ApiRecord          `yaml:"apis,omitempty"`
}

type BucketRecord struct {
	ID                string                  `yaml:"id"`
	Name              string                  `yaml:"name"`
	RemovalPolicy     construct.RemovalPolicy `yaml:"removalPolicy"`
	AutoDeleteObjects bool                    `yaml:"autoDeleteObjects"`
}

type TableRecord struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Arn  string `yaml:"arn"`
}

// HandlerRecord describes a handler and the policies granted to it.
type HandlerRecord struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Runtime     construct.Runtime `yaml:"runtime"`
	EntryPoint  string            `yaml:"entryPoint"`
	Code        string            `yaml:"code"`
	Bundled     bool              `yaml:"bundled,omitempty"`
	Timeout     string            `yaml:"timeout"`
	MemoryMB    int               `yaml:"memoryMB"`
	Description string            `yaml:"description,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Policies    []map[string]any  `yaml:"policies,omitempty"`
}

type SubscriptionRecord struct {
	Bucket  string   `yaml:"bucket"`
	Handler string   `yaml:"handler"`
	Events  []string `yaml:"events"`
}

type ApiRecord struct {
	ID      string                `yaml:"id"`
	Handler string                `yaml:"handler"`
	URL     string                `yaml:"url"`
	Cors    *construct.CorsConfig `yaml:"cors,omitempty"`
}

// handler returns the record for id, or nil.
func (m *Manifest) handler(id string) *HandlerRecord {
	for _, h := range m.Handlers {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// Marshal renders the manifest as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	return yaml.Marshal(m)
}

// WriteFile writes the manifest to path.
func (m *Manifest) WriteFile(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteFile.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}
