// Package intrinsics provides the CloudFormation intrinsic functions used by
// the template engine.
//
// The core intrinsic types are re-exported from cloudformation-schema-go:
//
//	Ref{LogicalName: "QuotesIngestionTable"} → {"Ref": "QuotesIngestionTable"}
//	GetAtt{LogicalName: "QuotesIngestionTable", Attribute: "Arn"}
//	Sub{String: "${QuotesIngestionTable.Arn}/index/*"}
//
// Pseudo-parameters:
//
//	AWS_REGION, AWS_ACCOUNT_ID, AWS_STACK_NAME, AWS_URL_SUFFIX
package intrinsics

import (
	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

type (
	// Ref represents a CloudFormation Ref intrinsic function.
	Ref = intrinsics.Ref

	// GetAtt represents a CloudFormation Fn::GetAtt intrinsic function.
	GetAtt = intrinsics.GetAtt

	// Sub represents a CloudFormation Fn::Sub intrinsic function.
	Sub = intrinsics.Sub

	// Join represents a CloudFormation Fn::Join intrinsic function.
	Join = intrinsics.Join
)

// Pseudo-parameters return values specific to the current stack.
var (
	AWS_ACCOUNT_ID = intrinsics.AWS_ACCOUNT_ID
	AWS_PARTITION  = intrinsics.AWS_PARTITION
	AWS_REGION     = intrinsics.AWS_REGION
	AWS_STACK_NAME = intrinsics.AWS_STACK_NAME
	AWS_URL_SUFFIX = intrinsics.AWS_URL_SUFFIX
)

// LogicalName returns the logical id referenced by v when v is a Ref or
// GetAtt, and "" otherwise. Engines use it to derive resource dependencies
// from property values.
func LogicalName(v any) string {
	switch r := v.(type) {
	case Ref:
		return r.LogicalName
	case *Ref:
		if r != nil {
			return r.LogicalName
		}
	case GetAtt:
		return r.LogicalName
	case *GetAtt:
		if r != nil {
			return r.LogicalName
		}
	}
	return ""
}
