// Package intrinsics provides CloudFormation intrinsic functions.
// This file contains IAM policy document types and helpers.
package intrinsics

// Json is a shorthand for map[string]any.
type Json = map[string]any

// PolicyDocument represents an IAM policy document.
//
// Example:
//
//	var CrudPolicy = PolicyDocument{
//	    Version:   "2012-10-17",
//	    Statement: []any{TableStatement},
//	}
type PolicyDocument struct {
	Version   string `json:"Version,omitempty"`
	Statement []any  `json:"Statement"`
}

// NewPolicyDocument creates a PolicyDocument with the default version and
// the given statements.
func NewPolicyDocument(statements ...any) PolicyDocument {
	return PolicyDocument{Version: "2012-10-17", Statement: statements}
}

// PolicyStatement represents an IAM policy statement.
//
// Example:
//
//	var TableStatement = PolicyStatement{
//	    Effect:   "Allow",
//	    Action:   []string{"dynamodb:PutItem"},
//	    Resource: []any{GetAtt{LogicalName: "ApiResponseTable", Attribute: "Arn"}},
//	}
type PolicyStatement struct {
	Sid       string `json:"Sid,omitempty"`
	Effect    string `json:"Effect"`
	Principal any    `json:"Principal,omitempty"`
	Action    any    `json:"Action,omitempty"`
	Resource  any    `json:"Resource,omitempty"`
	Condition Json   `json:"Condition,omitempty"`
}

// Allow creates an Allow statement for the given actions and resources.
func Allow(actions []string, resources ...any) PolicyStatement {
	return PolicyStatement{
		Effect:   "Allow",
		Action:   actions,
		Resource: resources,
	}
}
