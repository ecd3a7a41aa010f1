// Package construct defines the reusable infrastructure units of the CRM
// stack and the provisioning boundary they are composed against.
//
// An IngestionUnit binds an object-storage bucket, a key-value table and an
// event-triggered handler; a ResponseUnit binds a table to an HTTP handler
// behind a proxying API. Units never talk to a cloud API directly: they
// validate their props, package their code through a Packager and describe
// resources and edges to an Engine.
package construct

import (
	"strings"
	"time"
)

// RemovalPolicy declares what happens to a resource on teardown.
type RemovalPolicy string

const (
	RemovalDestroy RemovalPolicy = "destroy"
	RemovalRetain  RemovalPolicy = "retain"
)

// BillingMode is the table capacity mode.
type BillingMode string

const (
	BillingPayPerRequest BillingMode = "PAY_PER_REQUEST"
	BillingProvisioned   BillingMode = "PROVISIONED"
)

// AttributeType is the scalar type of a key attribute.
type AttributeType string

const (
	AttributeString AttributeType = "S"
	AttributeNumber AttributeType = "N"
	AttributeBinary AttributeType = "B"
)

// KeyDef names a key attribute and its type. An empty Type means string.
type KeyDef struct {
	Name string        `yaml:"name" json:"name" validate:"required"`
	Type AttributeType `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,oneof=S N B"`
}

func (k KeyDef) withDefaults() KeyDef {
	if k.Type == "" {
		k.Type = AttributeString
	}
	return k
}

// IndexDef is a global secondary index. A nil SortKey means the index has a
// partition key only.
type IndexDef struct {
	Name         string  `yaml:"name" json:"name" validate:"required"`
	PartitionKey KeyDef  `yaml:"partitionKey" json:"partitionKey"`
	SortKey      *KeyDef `yaml:"sortKey,omitempty" json:"sortKey,omitempty"`
}

func (i IndexDef) withDefaults() IndexDef {
	i.PartitionKey = i.PartitionKey.withDefaults()
	if i.SortKey != nil {
		sk := i.SortKey.withDefaults()
		i.SortKey = &sk
	}
	return i
}

// GrantMode is the capability a handler is given on a table.
type GrantMode string

const (
	GrantRead      GrantMode = "read"
	GrantWrite     GrantMode = "write"
	GrantReadWrite GrantMode = "read-write"
)

// Runtime identifies a Lambda runtime.
type Runtime string

const (
	RuntimePython310      Runtime = "python3.10"
	RuntimePython311      Runtime = "python3.11"
	RuntimePython312      Runtime = "python3.12"
	RuntimePython313      Runtime = "python3.13"
	RuntimeNodeJS20       Runtime = "nodejs20.x"
	RuntimeNodeJS22       Runtime = "nodejs22.x"
	RuntimeProvidedAL2023 Runtime = "provided.al2023"
)

// EnvKey is the name of a handler environment variable.
type EnvKey string

// DefaultTableNameEnv is the injection key used when a unit does not name one.
const DefaultTableNameEnv EnvKey = "TABLE_NAME"

// CorsConfig is the preflight policy of an ApiFront.
type CorsConfig struct {
	AllowOrigins []string `yaml:"allowOrigins" json:"allowOrigins"`
	AllowMethods []string `yaml:"allowMethods,omitempty" json:"allowMethods,omitempty"`
	AllowHeaders []string `yaml:"allowHeaders,omitempty" json:"allowHeaders,omitempty"`
}

// Preflight values matching every origin and method.
var (
	AllOrigins = []string{"*"}
	AllMethods = []string{"OPTIONS", "GET", "PUT", "POST", "DELETE", "PATCH", "HEAD"}

	DefaultCorsHeaders = []string{
		"Content-Type",
		"X-Amz-Date",
		"Authorization",
		"X-Api-Key",
		"X-Amz-Security-Token",
		"X-Amz-User-Agent",
	}
)

// AllowAll returns a CORS policy that accepts every origin and method.
func AllowAll() *CorsConfig {
	return &CorsConfig{
		AllowOrigins: append([]string(nil), AllOrigins...),
		AllowMethods: append([]string(nil), AllMethods...),
		AllowHeaders: append([]string(nil), DefaultCorsHeaders...),
	}
}

// CodeSpec locates handler code on disk. When Bundling is set the directory
// needs a dependency-install step before it can be deployed.
type CodeSpec struct {
	Path     string        `yaml:"path" json:"path" validate:"required"`
	Bundling *BundlingSpec `yaml:"bundling,omitempty" json:"bundling,omitempty"`
}

// BundlingSpec pins the parameters of the dependency-install step.
// Empty fields are filled by the packager.
type BundlingSpec struct {
	Manifest string `yaml:"manifest,omitempty" json:"manifest,omitempty"`
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty"`
	Image    string `yaml:"image,omitempty" json:"image,omitempty"`
}

// CodeRef is packaged, deployable handler code.
type CodeRef struct {
	// Path is the directory the engine deploys.
	Path string
	// Bundled reports whether Path is the output of a bundling step.
	Bundled bool
}

// ResourceID joins a unit id and a child name into the path engines use to
// derive logical ids and physical names, e.g. "QuotesIngestion/Table".
func ResourceID(unit, child string) string {
	return strings.Trim(unit, "/") + "/" + child
}

// SplitResourceID is the inverse of ResourceID.
func SplitResourceID(id string) (unit, child string) {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}
