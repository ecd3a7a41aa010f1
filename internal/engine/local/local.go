// Package local implements construct.Engine against S3 and DynamoDB
// compatible endpoints for local development. Buckets and tables are
// created through the AWS SDK. Handlers and the edges between resources are
// recorded in a Manifest.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lex00/wetwire-crm-go/construct"
	"github.com/lex00/wetwire-crm-go/internal/serialize"
	"github.com/lex00/wetwire-crm-go/intrinsics"
)

// AutoDeleteTag is the bucket tag the auto-delete provider checks before
// emptying a bucket.
const AutoDeleteTag = "crm-infra:auto-delete-objects"

// DefaultAPIBaseURL is where the local runtime serves API fronts.
const DefaultAPIBaseURL = "http://127.0.0.1:3000"

const accountID = "000000000000"

// Options configures New.
type Options struct {
	// Assembly prefixes generated resource names.
	Assembly         string
	DynamoDBEndpoint string
	S3Endpoint       string
	APIBaseURL       string
	Factory          ClientFactory
	Logger           *zap.Logger
}

// Engine applies units to local endpoints.
type Engine struct {
	assembly   string
	region     string
	apiBaseURL string
	dynamo     DynamoDBAPI
	s3         S3API
	logger     *zap.Logger
	suffix     func(id string) string

	ids      map[string]bool
	buckets  map[string]string
	tables   map[string]string
	manifest Manifest
}

var _ construct.Engine = (*Engine)(nil)

// New creates an Engine with clients for the configured endpoints. Empty
// endpoints are read from DYNAMODB_ENDPOINT and S3_ENDPOINT.
func New(ctx context.Context, opts Options) (*Engine, error) {
	factory := opts.Factory
	if factory == nil {
		factory = DefaultClientFactory()
	}
	ddbEndpoint := opts.DynamoDBEndpoint
	if ddbEndpoint == "" {
		ddbEndpoint = envOr(EnvDynamoDBEndpoint, "")
	}
	s3Endpoint := opts.S3Endpoint
	if s3Endpoint == "" {
		s3Endpoint = envOr(EnvS3Endpoint, "")
	}

	dynamo, err := factory.DynamoDB(ctx, ddbEndpoint)
	if err != nil {
		return nil, fmt.Errorf("creating DynamoDB client: %w", err)
	}
	s3c, err := factory.S3(ctx, s3Endpoint)
	if err != nil {
		return nil, fmt.Errorf("creating S3 client: %w", err)
	}
	return NewWithClients(opts, dynamo, s3c), nil
}

// NewWithClients creates an Engine that uses the given clients.
func NewWithClients(opts Options, dynamo DynamoDBAPI, s3c S3API) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	assembly := opts.Assembly
	if assembly == "" {
		assembly = "crm-infra"
	}
	base := opts.APIBaseURL
	if base == "" {
		base = DefaultAPIBaseURL
	}
	return &Engine{
		assembly:   assembly,
		region:     Region(),
		apiBaseURL: strings.TrimSuffix(base, "/"),
		dynamo:     dynamo,
		s3:         s3c,
		logger:     logger,
		suffix:     nameSuffix(assembly),
		ids:        make(map[string]bool),
		buckets:    make(map[string]string),
		tables:     make(map[string]string),
		manifest:   Manifest{Assembly: assembly, Region: Region()},
	}
}

// Manifest returns what has been applied so far.
func (e *Engine) Manifest() *Manifest {
	return &e.manifest
}

// generatedName is <assembly>-<id>-<8 hex>, lowercased.
func (e *Engine) generatedName(id string) string {
	return serialize.ToKebabCase(e.assembly) + "-" + serialize.ToKebabCase(id) + "-" + e.suffix(id)
}

// nameSuffix derives the suffix from the assembly and id so repeated
// applies address the same bucket or table.
func nameSuffix(assembly string) func(id string) string {
	return func(id string) string {
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte(assembly+"/"+id)).String()[:8]
	}
}

func (e *Engine) claim(op, id string) (string, error) {
	logical := serialize.LogicalID(id)
	if e.ids[logical] {
		return "", &construct.ProvisioningError{Op: op, Resource: logical, Err: fmt.Errorf("duplicate logical id")}
	}
	e.ids[logical] = true
	return logical, nil
}

// CreateBucket creates an S3 bucket with a generated name. A bucket the
// caller already owns is reused.
func (e *Engine) CreateBucket(ctx context.Context, id string, spec construct.BucketSpec) (construct.BucketRef, error) {
	logical, err := e.claim("CreateBucket", id)
	if err != nil {
		return construct.BucketRef{}, err
	}
	name := e.generatedName(id)

	_, err = e.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	var owned *s3types.BucketAlreadyOwnedByYou
	switch {
	case errors.As(err, &owned):
		e.logger.Info("bucket exists", zap.String("resource", logical), zap.String("bucket", name))
	case err != nil:
		return construct.BucketRef{}, &construct.ProvisioningError{Op: "CreateBucket", Resource: logical, Err: err}
	}

	if spec.AutoDeleteObjects {
		_, err := e.s3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
			Bucket: aws.String(name),
			Tagging: &s3types.Tagging{TagSet: []s3types.Tag{
				{Key: aws.String(AutoDeleteTag), Value: aws.String("true")},
			}},
		})
		if err != nil {
			return construct.BucketRef{}, &construct.ProvisioningError{Op: "CreateBucket", Resource: logical, Err: fmt.Errorf("tagging: %w", err)}
		}
	}

	e.buckets[logical] = name
	e.manifest.Buckets = append(e.manifest.Buckets, BucketRecord{
		ID:                logical,
		Name:              name,
		RemovalPolicy:     spec.RemovalPolicy,
		AutoDeleteObjects: spec.AutoDeleteObjects,
	})
	e.logger.Info("bucket created", zap.String("resource", logical), zap.String("bucket", name))
	return construct.BucketRef{ID: logical, Name: name}, nil
}

// CreateTable creates a DynamoDB table. An existing table with the same
// name is reused.
func (e *Engine) CreateTable(ctx context.Context, id string, spec construct.TableSpec) (construct.TableRef, error) {
	logical, err := e.claim("CreateTable", id)
	if err != nil {
		return construct.TableRef{}, err
	}
	name := spec.Name
	if name == "" {
		name = e.generatedName(id)
	}

	arn := fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", e.region, accountID, name)
	out, err := e.dynamo.CreateTable(ctx, createTableInput(name, spec))
	var inUse *ddbtypes.ResourceInUseException
	switch {
	case errors.As(err, &inUse):
		e.logger.Info("table exists", zap.String("resource", logical), zap.String("table", name))
	case err != nil:
		return construct.TableRef{}, &construct.ProvisioningError{Op: "CreateTable", Resource: logical, Err: err}
	case out != nil && out.TableDescription != nil && out.TableDescription.TableArn != nil:
		arn = *out.TableDescription.TableArn
	}

	e.tables[logical] = name
	e.manifest.Tables = append(e.manifest.Tables, TableRecord{ID: logical, Name: name, Arn: arn})
	e.logger.Info("table created", zap.String("resource", logical), zap.String("table", name))
	return construct.TableRef{ID: logical, Name: name, Arn: arn}, nil
}

func createTableInput(name string, spec construct.TableSpec) *dynamodb.CreateTableInput {
	billing := spec.BillingMode
	if billing == "" {
		billing = construct.BillingPayPerRequest
	}
	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(name),
		BillingMode: ddbtypes.BillingMode(billing),
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(spec.PartitionKey.Name), KeyType: ddbtypes.KeyTypeHash},
		},
	}
	for _, def := range spec.AttributeDefinitions() {
		input.AttributeDefinitions = append(input.AttributeDefinitions, ddbtypes.AttributeDefinition{
			AttributeName: aws.String(def.Name),
			AttributeType: ddbtypes.ScalarAttributeType(def.Type),
		})
	}
	for _, idx := range spec.Indexes {
		gsi := ddbtypes.GlobalSecondaryIndex{
			IndexName: aws.String(idx.Name),
			KeySchema: []ddbtypes.KeySchemaElement{
				{AttributeName: aws.String(idx.PartitionKey.Name), KeyType: ddbtypes.KeyTypeHash},
			},
			Projection: &ddbtypes.Projection{ProjectionType: ddbtypes.ProjectionTypeAll},
		}
		if idx.SortKey != nil {
			gsi.KeySchema = append(gsi.KeySchema, ddbtypes.KeySchemaElement{
				AttributeName: aws.String(idx.SortKey.Name),
				KeyType:       ddbtypes.KeyTypeRange,
			})
		}
		if billing == construct.BillingProvisioned {
			gsi.ProvisionedThroughput = throughput()
		}
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, gsi)
	}
	if billing == construct.BillingProvisioned {
		input.ProvisionedThroughput = throughput()
	}
	return input
}

func throughput() *ddbtypes.ProvisionedThroughput {
	return &ddbtypes.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(5),
		WriteCapacityUnits: aws.Int64(5),
	}
}

// CreateComputeHandler records the handler in the manifest.
func (e *Engine) CreateComputeHandler(_ context.Context, id string, spec construct.HandlerSpec) (construct.HandlerRef, error) {
	logical, err := e.claim("CreateComputeHandler", id)
	if err != nil {
		return construct.HandlerRef{}, err
	}
	name := e.generatedName(id)

	env := make(map[string]string, len(spec.Environment))
	for k, v := range spec.Environment {
		env[k] = fmt.Sprint(v)
	}
	e.manifest.Handlers = append(e.manifest.Handlers, &HandlerRecord{
		ID:          logical,
		Name:        name,
		Runtime:     spec.Runtime,
		EntryPoint:  spec.EntryPoint,
		Code:        spec.Code.Path,
		Bundled:     spec.Code.Bundled,
		Timeout:     spec.Timeout.String(),
		MemoryMB:    spec.MemoryMB,
		Description: spec.Description,
		Environment: env,
	})
	e.logger.Info("handler recorded", zap.String("resource", logical), zap.String("path", spec.Code.Path))
	return construct.HandlerRef{
		ID:  logical,
		Arn: fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", e.region, accountID, name),
	}, nil
}

// Grant records a policy allowing the mode's table actions.
func (e *Engine) Grant(_ context.Context, handler construct.HandlerRef, table construct.TableRef, mode construct.GrantMode) error {
	h := e.manifest.handler(handler.ID)
	if h == nil {
		return unknownRef("Grant", handler.ID)
	}
	if _, ok := e.tables[table.ID]; !ok {
		return unknownRef("Grant", table.ID)
	}
	if !mode.Valid() {
		return &construct.ProvisioningError{Op: "Grant", Resource: handler.ID, Err: fmt.Errorf("unsupported grant mode %q", mode)}
	}

	arn := fmt.Sprint(table.Arn)
	doc, err := policyDocument(intrinsics.NewPolicyDocument(intrinsics.Allow(mode.Actions(), arn, arn+"/index/*")))
	if err != nil {
		return &construct.ProvisioningError{Op: "Grant", Resource: handler.ID, Err: err}
	}
	h.Policies = append(h.Policies, doc)
	return nil
}

// policyDocument converts a policy to its JSON shape so the manifest uses
// IAM key names.
func policyDocument(doc intrinsics.PolicyDocument) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubscribeOnCreate records an object-created notification.
func (e *Engine) SubscribeOnCreate(_ context.Context, bucket construct.BucketRef, handler construct.HandlerRef) error {
	if e.manifest.handler(handler.ID) == nil {
		return unknownRef("SubscribeOnCreate", handler.ID)
	}
	if _, ok := e.buckets[bucket.ID]; !ok {
		return unknownRef("SubscribeOnCreate", bucket.ID)
	}
	e.manifest.Subscriptions = append(e.manifest.Subscriptions, SubscriptionRecord{
		Bucket:  bucket.ID,
		Handler: handler.ID,
		Events:  []string{"s3:ObjectCreated:*"},
	})
	return nil
}

// CreateApiFront records an API front served under the local base URL.
func (e *Engine) CreateApiFront(_ context.Context, id string, handler construct.HandlerRef, cors *construct.CorsConfig) (construct.ApiRef, error) {
	if e.manifest.handler(handler.ID) == nil {
		return construct.ApiRef{}, unknownRef("CreateApiFront", handler.ID)
	}
	logical, err := e.claim("CreateApiFront", id)
	if err != nil {
		return construct.ApiRef{}, err
	}
	url := e.apiBaseURL + "/" + serialize.ToKebabCase(id) + "/"
	e.manifest.Apis = append(e.manifest.Apis, ApiRecord{
		ID:      logical,
		Handler: handler.ID,
		URL:     url,
		Cors:    cors,
	})
	e.logger.Info("api recorded", zap.String("resource", logical), zap.String("url", url))
	return construct.ApiRef{ID: logical, URL: url}, nil
}

func unknownRef(op, resource string) error {
	return &construct.ProvisioningError{Op: op, Resource: resource, Err: construct.ErrUnknownRef}
}
