package assembly

import "github.com/lex00/wetwire-crm-go/construct"

// Default returns the CRM deployment: quotes, sales reps and products
// ingestion plus the prospect response API. Code paths are relative to the
// working directory.
func Default(domain string) *Config {
	bundled := &construct.BundlingSpec{}
	return &Config{
		Name:        DefaultName,
		Description: "CRM ingestion and response infrastructure",
		Domain:      domain,
		Ingestion: []IngestionConfig{
			{
				ID: "QuotesIngestion",
				IngestionProps: construct.IngestionProps{
					TableName:    "crm-quotes-emails-transactions",
					PartitionKey: construct.KeyDef{Name: "transaction_id"},
					Indexes: []construct.IndexDef{
						{Name: "by_quote_id", PartitionKey: construct.KeyDef{Name: "quote_id"}},
					},
					Code: construct.CodeSpec{Path: "./lambda/crm-sync-quotes", Bundling: bundled},
					Env: map[string]string{
						"SENDER_EMAIL": "contacto@${DOMAIN}",
						"DOMAIN":       "${DOMAIN}",
					},
				},
			},
			{
				ID: "SalesRepsIngestion",
				IngestionProps: construct.IngestionProps{
					TableName:    "crm-sales-reps",
					PartitionKey: construct.KeyDef{Name: "id"},
					Code:         construct.CodeSpec{Path: "./lambda/crm-sync-sales-reps", Bundling: bundled},
				},
			},
			{
				ID: "ProductsIngestion",
				IngestionProps: construct.IngestionProps{
					TableName:    "crm-products",
					PartitionKey: construct.KeyDef{Name: "id"},
					Code:         construct.CodeSpec{Path: "./lambda/crm-sync-products", Bundling: bundled},
				},
			},
		},
		Response: &ResponseConfig{
			ID: "ApiResponse",
			ResponseProps: construct.ResponseProps{
				TableName: "crm-api-responses",
				Code:      construct.CodeSpec{Path: "./lambda/crm-web-response"},
			},
		},
	}
}
