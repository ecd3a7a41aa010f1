package cfn

import (
	_ "embed"

	"go.uber.org/zap"

	"github.com/lex00/wetwire-crm-go/internal/template"
	"github.com/lex00/wetwire-crm-go/intrinsics"
	"github.com/lex00/wetwire-crm-go/resources/s3"
	"github.com/lex00/wetwire-crm-go/resources/serverless"
)

// AutoDeleteProvider is the logical id of the function that backs every
// Custom::S3AutoDeleteObjects resource in a template.
const AutoDeleteProvider = "CustomS3AutoDeleteObjectsProvider"

//go:embed autodelete.py
var autoDeleteSource string

// addAutoDelete attaches an object-emptying custom resource to bucket. The
// custom resource depends on the bucket, so CloudFormation deletes it first
// and the provider empties the bucket while it still exists.
func (e *Engine) addAutoDelete(bucket string) error {
	provider, err := e.autoDeleteProvider()
	if err != nil {
		return err
	}
	provider.Policies = append(provider.Policies, intrinsics.NewPolicyDocument(
		intrinsics.Allow([]string{"s3:GetBucketTagging", "s3:ListBucket"},
			intrinsics.GetAtt{LogicalName: bucket, Attribute: "Arn"},
		),
		intrinsics.Allow([]string{"s3:DeleteObject"},
			intrinsics.Sub{String: "${" + bucket + ".Arn}/*"},
		),
	))

	custom := &s3.AutoDeleteObjects{
		ServiceToken: intrinsics.GetAtt{LogicalName: AutoDeleteProvider, Attribute: "Arn"},
		BucketName:   intrinsics.Ref{LogicalName: bucket},
	}
	return e.add("CreateBucket", bucket+"AutoDeleteObjects", custom, template.DependsOn(bucket, AutoDeleteProvider))
}

func (e *Engine) autoDeleteProvider() (*serverless.Function, error) {
	if e.autoDelete != nil {
		return e.autoDelete, nil
	}
	fn := &serverless.Function{
		Description: "Empties tagged buckets before stack deletion",
		InlineCode:  autoDeleteSource,
		Handler:     "index.handler",
		Runtime:     "python3.13",
		Timeout:     900,
		MemorySize:  128,
	}
	if err := e.add("CreateBucket", AutoDeleteProvider, fn); err != nil {
		return nil, err
	}
	e.autoDelete = fn
	e.logger.Debug("auto-delete provider added", zap.String("resource", AutoDeleteProvider))
	return fn, nil
}
