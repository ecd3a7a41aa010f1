package construct

import (
	"context"
	"time"
)

// Ingestion defaults.
const (
	DefaultIngestionRuntime     = RuntimePython313
	DefaultEntryPoint           = "main.handler"
	DefaultIngestionTimeout     = 5 * time.Minute
	DefaultIngestionMemoryMB    = 1024
	DefaultIngestionDescription = "Processes CRM ingestion files from S3 to DynamoDB"
)

// IngestionProps parameterizes an IngestionUnit. Zero values take the
// defaults above.
type IngestionProps struct {
	TableName         string            `yaml:"tableName,omitempty" json:"tableName,omitempty" validate:"omitempty,tablename"`
	PartitionKey      KeyDef            `yaml:"partitionKey" json:"partitionKey"`
	Indexes           []IndexDef        `yaml:"indexes,omitempty" json:"indexes,omitempty" validate:"dive"`
	Code              CodeSpec          `yaml:"code" json:"code"`
	Runtime           Runtime           `yaml:"runtime,omitempty" json:"runtime,omitempty" validate:"required"`
	EntryPoint        string            `yaml:"entryPoint,omitempty" json:"entryPoint,omitempty" validate:"required"`
	Timeout           time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"min=1s,max=15m"`
	MemoryMB          int               `yaml:"memoryMB,omitempty" json:"memoryMB,omitempty" validate:"min=128,max=10240"`
	Description       string            `yaml:"description,omitempty" json:"description,omitempty"`
	Env               map[string]string `yaml:"env,omitempty" json:"env,omitempty" validate:"dive,keys,envkey,unreserved,endkeys"`
	TableNameEnv      EnvKey            `yaml:"tableNameEnv,omitempty" json:"tableNameEnv,omitempty" validate:"envkey,unreserved"`
	RemovalPolicy     RemovalPolicy     `yaml:"removalPolicy,omitempty" json:"removalPolicy,omitempty" validate:"oneof=destroy retain"`
	AutoDeleteObjects *bool             `yaml:"autoDeleteObjects,omitempty" json:"autoDeleteObjects,omitempty"`
}

func (p IngestionProps) withDefaults() IngestionProps {
	if p.Runtime == "" {
		p.Runtime = DefaultIngestionRuntime
	}
	if p.EntryPoint == "" {
		p.EntryPoint = DefaultEntryPoint
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultIngestionTimeout
	}
	if p.MemoryMB == 0 {
		p.MemoryMB = DefaultIngestionMemoryMB
	}
	if p.Description == "" {
		p.Description = DefaultIngestionDescription
	}
	if p.TableNameEnv == "" {
		p.TableNameEnv = DefaultTableNameEnv
	}
	if p.RemovalPolicy == "" {
		p.RemovalPolicy = RemovalDestroy
	}
	if p.AutoDeleteObjects == nil {
		v := true
		p.AutoDeleteObjects = &v
	}
	p.PartitionKey = p.PartitionKey.withDefaults()
	if len(p.Indexes) > 0 {
		indexes := make([]IndexDef, len(p.Indexes))
		for i, idx := range p.Indexes {
			indexes[i] = idx.withDefaults()
		}
		p.Indexes = indexes
	}
	return p
}

// IngestionUnit is a bucket, a table and an event-triggered handler bound
// into an ingest-and-persist pipeline.
type IngestionUnit struct {
	ID      string
	Bucket  BucketRef
	Table   TableRef
	Handler HandlerRef
	// Environment is the final handler environment, including the
	// injected table name.
	Environment map[string]any
}

// IngestionPlan is a validated IngestionUnit.
type IngestionPlan struct {
	id    string
	props IngestionProps
}

// PlanIngestion applies defaults to props and validates them. It returns a
// ConfigurationError when the unit cannot be built.
func PlanIngestion(id string, props IngestionProps) (*IngestionPlan, error) {
	if err := validateUnitID(id); err != nil {
		return nil, err
	}
	props = props.withDefaults()
	if err := validateStruct(id, props); err != nil {
		return nil, err
	}
	if err := validateKeys(id, props.PartitionKey, props.Indexes); err != nil {
		return nil, err
	}
	return &IngestionPlan{id: id, props: props}, nil
}

func (p *IngestionPlan) ID() string         { return p.id }
func (p *IngestionPlan) CodeSpec() CodeSpec { return p.props.Code }
func (p *IngestionPlan) Runtime() Runtime   { return p.props.Runtime }

// Props returns the props with defaults applied.
func (p *IngestionPlan) Props() IngestionProps { return p.props }

// Provision creates the unit's resources and edges on eng using packaged
// code. Entities are created before the edges that reference them.
func (p *IngestionPlan) Provision(ctx context.Context, eng Engine, code CodeRef) (*IngestionUnit, error) {
	props := p.props

	bucketID := ResourceID(p.id, "Bucket")
	bucket, err := eng.CreateBucket(ctx, bucketID, BucketSpec{
		RemovalPolicy:     props.RemovalPolicy,
		AutoDeleteObjects: *props.AutoDeleteObjects,
	})
	if err != nil {
		return nil, provisioned("CreateBucket", bucketID, err)
	}

	tableID := ResourceID(p.id, "Table")
	table, err := eng.CreateTable(ctx, tableID, TableSpec{
		Name:          props.TableName,
		PartitionKey:  props.PartitionKey,
		Indexes:       props.Indexes,
		BillingMode:   BillingPayPerRequest,
		RemovalPolicy: props.RemovalPolicy,
	})
	if err != nil {
		return nil, provisioned("CreateTable", tableID, err)
	}

	env := mergeEnv(props.Env, props.TableNameEnv, table.Name)

	handlerID := ResourceID(p.id, "Processor")
	handler, err := eng.CreateComputeHandler(ctx, handlerID, HandlerSpec{
		Runtime:     props.Runtime,
		EntryPoint:  props.EntryPoint,
		Code:        code,
		Timeout:     props.Timeout,
		MemoryMB:    props.MemoryMB,
		Description: props.Description,
		Environment: env,
	})
	if err != nil {
		return nil, provisioned("CreateComputeHandler", handlerID, err)
	}

	if err := eng.Grant(ctx, handler, table, GrantReadWrite); err != nil {
		return nil, provisioned("Grant", handlerID, err)
	}
	if err := eng.SubscribeOnCreate(ctx, bucket, handler); err != nil {
		return nil, provisioned("SubscribeOnCreate", bucketID, err)
	}

	return &IngestionUnit{
		ID:          p.id,
		Bucket:      bucket,
		Table:       table,
		Handler:     handler,
		Environment: env,
	}, nil
}

// NewIngestionUnit validates props, packages the handler code and
// provisions the unit. Nothing reaches eng when validation or packaging
// fails.
func NewIngestionUnit(ctx context.Context, eng Engine, pkg Packager, id string, props IngestionProps) (*IngestionUnit, error) {
	plan, err := PlanIngestion(id, props)
	if err != nil {
		return nil, err
	}
	code, err := PackagePlan(ctx, pkg, plan)
	if err != nil {
		return nil, err
	}
	return plan.Provision(ctx, eng, code)
}
