// Package s3 contains AWS::S3 resource types.
package s3

// Bucket represents an AWS::S3::Bucket.
type Bucket struct {
	BucketName string `json:"BucketName,omitempty"`
	Tags       []Tag  `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation resource type.
func (Bucket) ResourceType() string {
	return "AWS::S3::Bucket"
}

// Tag is a key/value pair attached to a bucket.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// AutoDeleteObjects is the custom resource that empties a bucket before
// CloudFormation deletes it. ServiceToken is the provider function ARN.
type AutoDeleteObjects struct {
	ServiceToken any `json:"ServiceToken"`
	BucketName   any `json:"BucketName"`
}

// ResourceType returns the CloudFormation resource type.
func (AutoDeleteObjects) ResourceType() string {
	return "Custom::S3AutoDeleteObjects"
}
