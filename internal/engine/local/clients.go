package local

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Environment variables read by the default client factory.
const (
	EnvDynamoDBEndpoint  = "DYNAMODB_ENDPOINT"
	EnvS3Endpoint        = "S3_ENDPOINT"
	EnvDynamoDBAccessKey = "DYNAMODB_ACCESS_KEY"
	EnvDynamoDBSecretKey = "DYNAMODB_SECRET_KEY"
	EnvS3AccessKey       = "S3_ACCESS_KEY"
	EnvS3SecretKey       = "S3_SECRET_KEY"
)

// DefaultRegion is used when AWS_REGION is unset.
const DefaultRegion = "us-east-1"

// DynamoDBAPI is the subset of the DynamoDB client the engine uses.
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// S3API is the subset of the S3 client the engine uses.
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketTagging(ctx context.Context, params *s3.PutBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error)
}

// ClientFactory builds SDK clients bound to local endpoints.
type ClientFactory interface {
	DynamoDB(ctx context.Context, endpoint string) (DynamoDBAPI, error)
	S3(ctx context.Context, endpoint string) (S3API, error)
}

type awsClientFactory struct{}

// DefaultClientFactory returns a factory that configures the AWS SDK with
// static credentials from the environment.
func DefaultClientFactory() ClientFactory {
	return awsClientFactory{}
}

func (awsClientFactory) DynamoDB(ctx context.Context, endpoint string) (DynamoDBAPI, error) {
	cfg, err := loadAWSConfig(ctx, dynamodb.ServiceID, endpoint,
		envOr(EnvDynamoDBAccessKey, "dummy"), envOr(EnvDynamoDBSecretKey, "dummy"))
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func (awsClientFactory) S3(ctx context.Context, endpoint string) (S3API, error) {
	cfg, err := loadAWSConfig(ctx, s3.ServiceID, endpoint,
		envOr(EnvS3AccessKey, "dummy"), envOr(EnvS3SecretKey, "dummy"))
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(options *s3.Options) {
		options.UsePathStyle = true
	}), nil
}

func loadAWSConfig(ctx context.Context, serviceID, endpoint, accessKey, secretKey string) (aws.Config, error) {
	if endpoint == "" {
		return aws.Config{}, fmt.Errorf("%s endpoint is required", serviceID)
	}

	resolver := aws.EndpointResolverWithOptionsFunc(
		func(service, _ string, _ ...any) (aws.Endpoint, error) {
			if service != serviceID {
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}
			return aws.Endpoint{
				URL:               endpoint,
				HostnameImmutable: true,
			}, nil
		},
	)

	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(Region()),
		config.WithCredentialsProvider(creds),
		config.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// Region returns AWS_REGION or DefaultRegion.
func Region() string {
	return envOr("AWS_REGION", DefaultRegion)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
