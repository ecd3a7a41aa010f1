package construct

import (
	"context"
	"time"
)

// Engine is the provisioning boundary. Units describe resources and the
// edges between them; an Engine turns them into a deployable artifact or
// live resources.
//
// Implementations must reject edges whose refs they did not hand out.
type Engine interface {
	CreateBucket(ctx context.Context, id string, spec BucketSpec) (BucketRef, error)
	CreateTable(ctx context.Context, id string, spec TableSpec) (TableRef, error)
	CreateComputeHandler(ctx context.Context, id string, spec HandlerSpec) (HandlerRef, error)
	Grant(ctx context.Context, handler HandlerRef, table TableRef, mode GrantMode) error
	SubscribeOnCreate(ctx context.Context, bucket BucketRef, handler HandlerRef) error
	CreateApiFront(ctx context.Context, id string, handler HandlerRef, cors *CorsConfig) (ApiRef, error)
}

// Packager turns a CodeSpec into deployable code.
type Packager interface {
	Package(ctx context.Context, spec CodeSpec, runtime Runtime) (CodeRef, error)
}

// BucketSpec configures an object-storage bucket.
type BucketSpec struct {
	RemovalPolicy     RemovalPolicy
	AutoDeleteObjects bool
}

// TableSpec configures a key-value table. An empty Name lets the engine
// generate one.
type TableSpec struct {
	Name          string
	PartitionKey  KeyDef
	Indexes       []IndexDef
	BillingMode   BillingMode
	RemovalPolicy RemovalPolicy
}

// AttributeDefinitions returns every key attribute used by the table and its
// indexes, once each, in first-use order.
func (s TableSpec) AttributeDefinitions() []KeyDef {
	seen := make(map[string]bool)
	var defs []KeyDef
	add := func(k KeyDef) {
		if seen[k.Name] {
			return
		}
		seen[k.Name] = true
		defs = append(defs, k.withDefaults())
	}
	add(s.PartitionKey)
	for _, idx := range s.Indexes {
		add(idx.PartitionKey)
		if idx.SortKey != nil {
			add(*idx.SortKey)
		}
	}
	return defs
}

// HandlerSpec configures a compute handler. Environment values are literal
// strings or engine references such as TableRef.Name.
type HandlerSpec struct {
	Runtime     Runtime
	EntryPoint  string
	Code        CodeRef
	Timeout     time.Duration
	MemoryMB    int
	Description string
	Environment map[string]any
}

// TimeoutSeconds returns the timeout in whole seconds.
func (s HandlerSpec) TimeoutSeconds() int {
	return seconds(s.Timeout)
}

// BucketRef identifies a bucket created by an Engine.
type BucketRef struct {
	ID   string
	Name any
}

// TableRef identifies a table created by an Engine. Name is the resolved
// table name: a literal string or an engine reference.
type TableRef struct {
	ID   string
	Name any
	Arn  any
}

// HandlerRef identifies a compute handler created by an Engine.
type HandlerRef struct {
	ID  string
	Arn any
}

// ApiRef identifies an HTTP front created by an Engine.
type ApiRef struct {
	ID  string
	URL any
}

// Table actions implied by each grant mode.
var (
	tableReadActions = []string{
		"dynamodb:BatchGetItem",
		"dynamodb:GetRecords",
		"dynamodb:GetShardIterator",
		"dynamodb:Query",
		"dynamodb:GetItem",
		"dynamodb:Scan",
		"dynamodb:ConditionCheckItem",
		"dynamodb:DescribeTable",
	}
	tableWriteActions = []string{
		"dynamodb:BatchWriteItem",
		"dynamodb:PutItem",
		"dynamodb:UpdateItem",
		"dynamodb:DeleteItem",
		"dynamodb:DescribeTable",
	}
)

// Actions returns the IAM actions a grant of this mode allows on a table.
func (m GrantMode) Actions() []string {
	switch m {
	case GrantRead:
		return append([]string(nil), tableReadActions...)
	case GrantWrite:
		return append([]string(nil), tableWriteActions...)
	case GrantReadWrite:
		out := append([]string(nil), tableReadActions...)
		for _, a := range tableWriteActions {
			if a != "dynamodb:DescribeTable" {
				out = append(out, a)
			}
		}
		return out
	}
	return nil
}

// Valid reports whether m is a known grant mode.
func (m GrantMode) Valid() bool {
	switch m {
	case GrantRead, GrantWrite, GrantReadWrite:
		return true
	}
	return false
}
