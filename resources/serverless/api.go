package serverless

// Api represents an AWS::Serverless::Api.
type Api struct {
	Name        any                    `json:"Name,omitempty"`
	Description string                 `json:"Description,omitempty"`
	StageName   string                 `json:"StageName"`
	Cors        *Api_CorsConfiguration `json:"Cors,omitempty"`
}

// ResourceType returns the CloudFormation resource type.
func (Api) ResourceType() string {
	return "AWS::Serverless::Api"
}

// Api_CorsConfiguration configures preflight responses.
// SAM expects each value as a quoted string literal, e.g. "'*'".
type Api_CorsConfiguration struct {
	AllowOrigin  string `json:"AllowOrigin"`
	AllowMethods string `json:"AllowMethods,omitempty"`
	AllowHeaders string `json:"AllowHeaders,omitempty"`
}
