// Package dynamodb contains AWS::DynamoDB resource types.
package dynamodb

// Table represents an AWS::DynamoDB::Table.
type Table struct {
	TableName              string                       `json:"TableName,omitempty"`
	AttributeDefinitions   []Table_AttributeDefinition  `json:"AttributeDefinitions,omitempty"`
	KeySchema              []Table_KeySchema            `json:"KeySchema"`
	GlobalSecondaryIndexes []Table_GlobalSecondaryIndex `json:"GlobalSecondaryIndexes,omitempty"`
	BillingMode            string                       `json:"BillingMode,omitempty"`
	ProvisionedThroughput  *Table_ProvisionedThroughput `json:"ProvisionedThroughput,omitempty"`
}

// ResourceType returns the CloudFormation resource type.
func (Table) ResourceType() string {
	return "AWS::DynamoDB::Table"
}

// Table_AttributeDefinition declares the type of a key attribute.
type Table_AttributeDefinition struct {
	AttributeName string `json:"AttributeName"`
	AttributeType string `json:"AttributeType"`
}

// Table_KeySchema is one element of a primary or index key.
type Table_KeySchema struct {
	AttributeName string `json:"AttributeName"`
	KeyType       string `json:"KeyType"`
}

// Table_GlobalSecondaryIndex is a GSI definition.
type Table_GlobalSecondaryIndex struct {
	IndexName             string                       `json:"IndexName"`
	KeySchema             []Table_KeySchema            `json:"KeySchema"`
	Projection            Table_Projection             `json:"Projection"`
	ProvisionedThroughput *Table_ProvisionedThroughput `json:"ProvisionedThroughput,omitempty"`
}

// Table_Projection selects the attributes copied into an index.
type Table_Projection struct {
	ProjectionType   string   `json:"ProjectionType,omitempty"`
	NonKeyAttributes []string `json:"NonKeyAttributes,omitempty"`
}

// Table_ProvisionedThroughput sets capacity for PROVISIONED billing.
type Table_ProvisionedThroughput struct {
	ReadCapacityUnits  int `json:"ReadCapacityUnits"`
	WriteCapacityUnits int `json:"WriteCapacityUnits"`
}

// Key types for Table_KeySchema.
const (
	KeyTypeHash  = "HASH"
	KeyTypeRange = "RANGE"
)
