// Package serverless contains AWS::Serverless (SAM) resource types.
package serverless

// Function represents an AWS::Serverless::Function.
type Function struct {
	Description string                    `json:"Description,omitempty"`
	CodeUri     any                       `json:"CodeUri,omitempty"`
	InlineCode  string                    `json:"InlineCode,omitempty"`
	Handler     string                    `json:"Handler,omitempty"`
	Runtime     string                    `json:"Runtime,omitempty"`
	Timeout     int                       `json:"Timeout,omitempty"`
	MemorySize  int                       `json:"MemorySize,omitempty"`
	Environment *Function_Environment     `json:"Environment,omitempty"`
	Policies    []any                     `json:"Policies,omitempty"`
	Events      map[string]Function_Event `json:"Events,omitempty"`
}

// ResourceType returns the CloudFormation resource type.
func (Function) ResourceType() string {
	return "AWS::Serverless::Function"
}

// Function_Environment holds the function's environment variables.
// Values are literal strings or intrinsic functions.
type Function_Environment struct {
	Variables map[string]any `json:"Variables,omitempty"`
}

// Function_Event is an event source that invokes the function.
type Function_Event struct {
	Type_      string `json:"Type"`
	Properties any    `json:"Properties"`
}

// Function_S3Event is the Properties block of an S3 event source.
type Function_S3Event struct {
	Bucket any `json:"Bucket"`
	Events any `json:"Events"`
}

// Function_ApiEvent is the Properties block of an Api event source.
type Function_ApiEvent struct {
	Path      string `json:"Path"`
	Method    string `json:"Method"`
	RestApiId any    `json:"RestApiId,omitempty"`
}
