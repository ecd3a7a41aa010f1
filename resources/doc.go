// Package resources groups the CloudFormation resource property types used by
// the template engine. Each subpackage mirrors one CloudFormation namespace:
//
//	s3          AWS::S3::*
//	dynamodb    AWS::DynamoDB::*
//	serverless  AWS::Serverless::* (SAM)
//
// Field names follow the CloudFormation property names so that values
// serialize without a mapping layer. Optional fields use omitempty.
package resources
