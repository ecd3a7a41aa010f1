// Package assembly composes the units of a CRM deployment from declared
// configuration.
package assembly

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lex00/wetwire-crm-go/construct"
)

// DomainEnv overrides the configured base domain when set.
const DomainEnv = "CRM_DOMAIN"

// DefaultName is the assembly name used when the config does not set one.
const DefaultName = "crm-infra"

// Config declares an assembly: named ingestion units and at most one
// response unit.
type Config struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Domain      string            `yaml:"domain"`
	Ingestion   []IngestionConfig `yaml:"ingestion"`
	Response    *ResponseConfig   `yaml:"response,omitempty"`
}

// IngestionConfig is one declared IngestionUnit.
type IngestionConfig struct {
	ID                       string `yaml:"id"`
	construct.IngestionProps `yaml:",inline"`
}

// ResponseConfig is the declared ResponseUnit.
type ResponseConfig struct {
	ID                      string `yaml:"id"`
	construct.ResponseProps `yaml:",inline"`
}

// UnitIDs returns the unit ids in declaration order.
func (c *Config) UnitIDs() []string {
	ids := make([]string, 0, len(c.Ingestion)+1)
	for _, in := range c.Ingestion {
		ids = append(ids, in.ID)
	}
	if c.Response != nil {
		ids = append(ids, c.Response.ID)
	}
	return ids
}

// Load reads an assembly file. A .env file next to it is loaded into the
// process environment first, and relative code paths are resolved against
// the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading assembly: %w", err)
	}

	dir := filepath.Dir(path)
	if err := LoadDotEnv(dir); err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.resolvePaths(dir)
	return cfg, nil
}

// Parse decodes an assembly document. Unknown fields are rejected. The
// DomainEnv variable, when set, replaces the declared domain.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if domain := os.Getenv(DomainEnv); domain != "" {
		cfg.Domain = domain
	}
	return &cfg, nil
}

var (
	dotEnvMu  sync.Mutex
	dotEnvSet = make(map[string]string)
)

// LoadDotEnv applies dir/.env to the process environment. Variables set
// outside the file keep their value. Variables the file set on an earlier
// call follow the file, so an edited .env takes effect on reload and a
// removed entry is unset.
func LoadDotEnv(dir string) error {
	values, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	dotEnvMu.Lock()
	defer dotEnvMu.Unlock()

	for key, prev := range dotEnvSet {
		if _, ok := values[key]; ok {
			continue
		}
		if os.Getenv(key) == prev {
			os.Unsetenv(key)
		}
		delete(dotEnvSet, key)
	}
	for key, value := range values {
		current, ok := os.LookupEnv(key)
		prev, owned := dotEnvSet[key]
		if ok && current != "" && !(owned && current == prev) {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("loading .env: %w", err)
		}
		dotEnvSet[key] = value
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	for i := range c.Ingestion {
		c.Ingestion[i].Code.Path = resolvePath(dir, c.Ingestion[i].Code.Path)
	}
	if c.Response != nil {
		c.Response.Code.Path = resolvePath(dir, c.Response.Code.Path)
	}
}

func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Validate checks assembly-level rules: at least one ingestion unit is
// declared and unit ids are non-empty and unique. Unit props are validated
// by Compose.
func (c *Config) Validate() error {
	if len(c.Ingestion) == 0 {
		return construct.NewConfigurationError("", "Ingestion", "at least one ingestion unit is required")
	}
	seen := make(map[string]bool)
	for _, id := range c.UnitIDs() {
		if id == "" {
			return construct.NewConfigurationError("", "ID", "unit id is required")
		}
		if seen[id] {
			return construct.NewConfigurationError(id, "ID", "duplicate unit id")
		}
		seen[id] = true
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$\{([^}]*)\}`)

// Expand returns a copy of c with ${DOMAIN} replaced by the base domain in
// every handler environment value. Any other placeholder is a
// ConfigurationError.
func (c *Config) Expand() (*Config, error) {
	out := *c
	out.Ingestion = make([]IngestionConfig, len(c.Ingestion))
	for i, in := range c.Ingestion {
		if len(in.Env) > 0 {
			env := make(map[string]string, len(in.Env))
			for k, v := range in.Env {
				expanded, err := c.expand(v)
				if err != nil {
					return nil, construct.NewConfigurationError(in.ID, "Env."+k, err.Error())
				}
				env[k] = expanded
			}
			in.Env = env
		}
		out.Ingestion[i] = in
	}
	return &out, nil
}

func (c *Config) expand(s string) (string, error) {
	var err error
	result := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		switch {
		case name != "DOMAIN":
			if err == nil {
				err = fmt.Errorf("unknown placeholder %s", m)
			}
		case c.Domain == "":
			if err == nil {
				err = fmt.Errorf("%s is used but no domain is set", m)
			}
		default:
			return c.Domain
		}
		return m
	})
	return result, err
}
