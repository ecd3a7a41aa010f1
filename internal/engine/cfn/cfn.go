// Package cfn implements construct.Engine by synthesizing a CloudFormation
// template that uses the AWS SAM transform.
package cfn

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	wetwire "github.com/lex00/wetwire-crm-go"
	"github.com/lex00/wetwire-crm-go/construct"
	"github.com/lex00/wetwire-crm-go/internal/serialize"
	"github.com/lex00/wetwire-crm-go/internal/template"
	"github.com/lex00/wetwire-crm-go/intrinsics"
	"github.com/lex00/wetwire-crm-go/resources/dynamodb"
	"github.com/lex00/wetwire-crm-go/resources/s3"
	"github.com/lex00/wetwire-crm-go/resources/serverless"
)

// AutoDeleteTag marks buckets whose objects are emptied before deletion.
const AutoDeleteTag = "crm-infra:auto-delete-objects"

// StageName is the deployment stage of every API front.
const StageName = "prod"

// Default capacity for PROVISIONED tables and their indexes.
const (
	defaultReadCapacity  = 5
	defaultWriteCapacity = 5
)

// Engine collects resources into a template.Builder.
type Engine struct {
	builder *template.Builder
	logger  *zap.Logger

	buckets   map[string]bool
	tables    map[string]bool
	functions map[string]*serverless.Function

	autoDelete *serverless.Function
}

var _ construct.Engine = (*Engine)(nil)

// New creates an Engine whose template carries description.
func New(description string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		builder:   template.NewBuilder(description),
		logger:    logger,
		buckets:   make(map[string]bool),
		tables:    make(map[string]bool),
		functions: make(map[string]*serverless.Function),
	}
}

// Template builds the synthesized template.
func (e *Engine) Template() (*wetwire.Template, error) {
	return e.builder.Build()
}

// Order returns logical ids in dependency order.
func (e *Engine) Order() ([]string, error) {
	return e.builder.Order()
}

func (e *Engine) add(op, logical string, res wetwire.Resource, opts ...template.Option) error {
	if err := e.builder.AddResource(logical, res, opts...); err != nil {
		return &construct.ProvisioningError{Op: op, Resource: logical, Err: err}
	}
	e.logger.Debug("resource added",
		zap.String("resource", logical),
		zap.String("type", res.ResourceType()),
	)
	return nil
}

// CreateBucket adds an AWS::S3::Bucket.
func (e *Engine) CreateBucket(_ context.Context, id string, spec construct.BucketSpec) (construct.BucketRef, error) {
	logical := serialize.LogicalID(id)

	bucket := &s3.Bucket{}
	if spec.AutoDeleteObjects {
		bucket.Tags = []s3.Tag{{Key: AutoDeleteTag, Value: "true"}}
	}
	if err := e.add("CreateBucket", logical, bucket, template.WithDeletionPolicy(deletionPolicy(spec.RemovalPolicy))); err != nil {
		return construct.BucketRef{}, err
	}
	e.buckets[logical] = true
	if spec.AutoDeleteObjects {
		if err := e.addAutoDelete(logical); err != nil {
			return construct.BucketRef{}, err
		}
	}

	name := intrinsics.Ref{LogicalName: logical}
	e.builder.AddOutput(logical+"Name", wetwire.Output{
		Description: "Name of bucket " + id,
		Value:       name,
	})
	return construct.BucketRef{ID: logical, Name: name}, nil
}

// CreateTable adds an AWS::DynamoDB::Table with its indexes.
func (e *Engine) CreateTable(_ context.Context, id string, spec construct.TableSpec) (construct.TableRef, error) {
	logical := serialize.LogicalID(id)

	billing := spec.BillingMode
	if billing == "" {
		billing = construct.BillingPayPerRequest
	}

	table := &dynamodb.Table{
		TableName:   spec.Name,
		BillingMode: string(billing),
		KeySchema: []dynamodb.Table_KeySchema{
			{AttributeName: spec.PartitionKey.Name, KeyType: dynamodb.KeyTypeHash},
		},
	}
	for _, def := range spec.AttributeDefinitions() {
		table.AttributeDefinitions = append(table.AttributeDefinitions, dynamodb.Table_AttributeDefinition{
			AttributeName: def.Name,
			AttributeType: string(def.Type),
		})
	}
	for _, idx := range spec.Indexes {
		gsi := dynamodb.Table_GlobalSecondaryIndex{
			IndexName: idx.Name,
			KeySchema: []dynamodb.Table_KeySchema{
				{AttributeName: idx.PartitionKey.Name, KeyType: dynamodb.KeyTypeHash},
			},
			Projection: dynamodb.Table_Projection{ProjectionType: "ALL"},
		}
		if idx.SortKey != nil {
			gsi.KeySchema = append(gsi.KeySchema, dynamodb.Table_KeySchema{
				AttributeName: idx.SortKey.Name,
				KeyType:       dynamodb.KeyTypeRange,
			})
		}
		if billing == construct.BillingProvisioned {
			gsi.ProvisionedThroughput = provisionedThroughput()
		}
		table.GlobalSecondaryIndexes = append(table.GlobalSecondaryIndexes, gsi)
	}
	if billing == construct.BillingProvisioned {
		table.ProvisionedThroughput = provisionedThroughput()
	}

	if err := e.add("CreateTable", logical, table, template.WithDeletionPolicy(deletionPolicy(spec.RemovalPolicy))); err != nil {
		return construct.TableRef{}, err
	}
	e.tables[logical] = true

	e.builder.AddOutput(logical+"Name", wetwire.Output{
		Description: "Name of table " + id,
		Value:       intrinsics.Ref{LogicalName: logical},
	})

	var name any = intrinsics.Ref{LogicalName: logical}
	if spec.Name != "" {
		name = spec.Name
	}
	return construct.TableRef{
		ID:   logical,
		Name: name,
		Arn:  intrinsics.GetAtt{LogicalName: logical, Attribute: "Arn"},
	}, nil
}

// CreateComputeHandler adds an AWS::Serverless::Function. Environment
// values that reference other resources become dependencies.
func (e *Engine) CreateComputeHandler(_ context.Context, id string, spec construct.HandlerSpec) (construct.HandlerRef, error) {
	logical := serialize.LogicalID(id)

	fn := &serverless.Function{
		Description: spec.Description,
		CodeUri:     spec.Code.Path,
		Handler:     spec.EntryPoint,
		Runtime:     string(spec.Runtime),
		Timeout:     spec.TimeoutSeconds(),
		MemorySize:  spec.MemoryMB,
	}
	var deps []string
	if len(spec.Environment) > 0 {
		vars := make(map[string]any, len(spec.Environment))
		for k, v := range spec.Environment {
			vars[k] = v
			if ref := intrinsics.LogicalName(v); ref != "" {
				deps = append(deps, ref)
			}
		}
		fn.Environment = &serverless.Function_Environment{Variables: vars}
	}

	if err := e.add("CreateComputeHandler", logical, fn, template.DependsOn(deps...)); err != nil {
		return construct.HandlerRef{}, err
	}
	e.functions[logical] = fn

	return construct.HandlerRef{
		ID:  logical,
		Arn: intrinsics.GetAtt{LogicalName: logical, Attribute: "Arn"},
	}, nil
}

// Grant attaches an inline policy allowing the mode's table actions on the
// table and its indexes.
func (e *Engine) Grant(_ context.Context, handler construct.HandlerRef, table construct.TableRef, mode construct.GrantMode) error {
	fn, ok := e.functions[handler.ID]
	if !ok {
		return unknownRef("Grant", handler.ID)
	}
	if !e.tables[table.ID] {
		return unknownRef("Grant", table.ID)
	}
	if !mode.Valid() {
		return &construct.ProvisioningError{Op: "Grant", Resource: handler.ID, Err: fmt.Errorf("unsupported grant mode %q", mode)}
	}

	statement := intrinsics.Allow(mode.Actions(),
		intrinsics.GetAtt{LogicalName: table.ID, Attribute: "Arn"},
		intrinsics.Sub{String: "${" + table.ID + ".Arn}/index/*"},
	)
	fn.Policies = append(fn.Policies, intrinsics.NewPolicyDocument(statement))

	if err := e.builder.AddDependency(handler.ID, table.ID); err != nil {
		return &construct.ProvisioningError{Op: "Grant", Resource: handler.ID, Err: err}
	}
	e.logger.Debug("grant added",
		zap.String("resource", handler.ID),
		zap.String("table", table.ID),
		zap.String("mode", string(mode)),
	)
	return nil
}

// SubscribeOnCreate adds an S3 event source to the handler. The event
// carries the reference to the bucket; an explicit DependsOn would form a
// cycle once the transform attaches the notification to the bucket.
func (e *Engine) SubscribeOnCreate(_ context.Context, bucket construct.BucketRef, handler construct.HandlerRef) error {
	fn, ok := e.functions[handler.ID]
	if !ok {
		return unknownRef("SubscribeOnCreate", handler.ID)
	}
	if !e.buckets[bucket.ID] {
		return unknownRef("SubscribeOnCreate", bucket.ID)
	}

	e.addEvent(fn, bucket.ID+"ObjectCreated", serverless.Function_Event{
		Type_: "S3",
		Properties: serverless.Function_S3Event{
			Bucket: intrinsics.Ref{LogicalName: bucket.ID},
			Events: "s3:ObjectCreated:*",
		},
	})
	return nil
}

// CreateApiFront adds an AWS::Serverless::Api and routes every path and
// method to the handler.
func (e *Engine) CreateApiFront(_ context.Context, id string, handler construct.HandlerRef, cors *construct.CorsConfig) (construct.ApiRef, error) {
	fn, ok := e.functions[handler.ID]
	if !ok {
		return construct.ApiRef{}, unknownRef("CreateApiFront", handler.ID)
	}
	logical := serialize.LogicalID(id)
	unit, _ := construct.SplitResourceID(id)

	api := &serverless.Api{
		Description: construct.ApiDescription(unit),
		StageName:   StageName,
		Cors:        corsConfiguration(cors),
	}
	if err := e.add("CreateApiFront", logical, api); err != nil {
		return construct.ApiRef{}, err
	}

	restAPI := intrinsics.Ref{LogicalName: logical}
	e.addEvent(fn, logical+"Root", serverless.Function_Event{
		Type_:      "Api",
		Properties: serverless.Function_ApiEvent{Path: "/", Method: "ANY", RestApiId: restAPI},
	})
	e.addEvent(fn, logical+"Proxy", serverless.Function_Event{
		Type_:      "Api",
		Properties: serverless.Function_ApiEvent{Path: "/{proxy+}", Method: "ANY", RestApiId: restAPI},
	})

	url := intrinsics.Sub{String: "https://${" + logical + "}.execute-api.${AWS::Region}.${AWS::URLSuffix}/" + StageName + "/"}
	e.builder.AddOutput(logical+"Url", wetwire.Output{
		Description: construct.ApiDescription(unit),
		Value:       url,
		Export:      &wetwire.Export{Name: intrinsics.Sub{String: "${AWS::StackName}-" + logical + "Url"}},
	})

	return construct.ApiRef{ID: logical, URL: url}, nil
}

func (e *Engine) addEvent(fn *serverless.Function, name string, event serverless.Function_Event) {
	if fn.Events == nil {
		fn.Events = make(map[string]serverless.Function_Event)
	}
	fn.Events[name] = event
}

func unknownRef(op, resource string) error {
	return &construct.ProvisioningError{Op: op, Resource: resource, Err: construct.ErrUnknownRef}
}

func deletionPolicy(p construct.RemovalPolicy) string {
	if p == construct.RemovalRetain {
		return wetwire.DeletionPolicyRetain
	}
	return wetwire.DeletionPolicyDelete
}

func provisionedThroughput() *dynamodb.Table_ProvisionedThroughput {
	return &dynamodb.Table_ProvisionedThroughput{
		ReadCapacityUnits:  defaultReadCapacity,
		WriteCapacityUnits: defaultWriteCapacity,
	}
}

// corsConfiguration renders a CORS policy in SAM's quoted-literal form.
func corsConfiguration(cors *construct.CorsConfig) *serverless.Api_CorsConfiguration {
	if cors == nil {
		return nil
	}
	out := &serverless.Api_CorsConfiguration{
		AllowOrigin: quote(cors.AllowOrigins),
	}
	if len(cors.AllowMethods) > 0 {
		out.AllowMethods = quote(cors.AllowMethods)
	}
	if len(cors.AllowHeaders) > 0 {
		out.AllowHeaders = quote(cors.AllowHeaders)
	}
	return out
}

func quote(values []string) string {
	return "'" + strings.Join(values, ",") + "'"
}
