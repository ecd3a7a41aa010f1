package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lex00/wetwire-crm-go/assembly"
	"github.com/lex00/wetwire-crm-go/internal/engine/local"
)

type applyOptions struct {
	dynamoDBEndpoint string
	s3Endpoint       string
	apiBaseURL       string
	manifestPath     string
}

func newApplyLocalCmd(opts *globalOptions) *cobra.Command {
	var applyOpts applyOptions

	cmd := &cobra.Command{
		Use:   "apply-local",
		Short: "Create the assembly's tables and buckets on local endpoints",
		Long: `Apply-local composes the assembly against local DynamoDB and S3
endpoints. Tables and buckets are created (existing ones are reused);
handlers, grants, subscriptions and API routes are written to a manifest
for the local runtime.

Endpoints default to $DYNAMODB_ENDPOINT and $S3_ENDPOINT.

Examples:
    crm-infra apply-local --dynamodb-endpoint http://localhost:8000 --s3-endpoint http://localhost:9000
    crm-infra apply-local --manifest local.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			eng, err := local.New(cmd.Context(), local.Options{
				Assembly:         cfg.Name,
				DynamoDBEndpoint: applyOpts.dynamoDBEndpoint,
				S3Endpoint:       applyOpts.s3Endpoint,
				APIBaseURL:       applyOpts.apiBaseURL,
				Logger:           logger,
			})
			if err != nil {
				return err
			}

			result, err := assembly.Compose(cmd.Context(), cfg, eng, opts.packager(logger), assembly.WithLogger(logger))
			if err != nil {
				return err
			}

			if dir := filepath.Dir(applyOpts.manifestPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("creating manifest directory: %w", err)
				}
			}
			if err := eng.Manifest().WriteFile(applyOpts.manifestPath); err != nil {
				return err
			}
			logger.Info("manifest written",
				zap.String("path", applyOpts.manifestPath),
				zap.Int("units", len(cfg.UnitIDs())),
			)

			if result.Response != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "API: %v\n", result.Response.Api.URL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&applyOpts.dynamoDBEndpoint, "dynamodb-endpoint", "", "DynamoDB endpoint (default: $"+local.EnvDynamoDBEndpoint+")")
	cmd.Flags().StringVar(&applyOpts.s3Endpoint, "s3-endpoint", "", "S3 endpoint (default: $"+local.EnvS3Endpoint+")")
	cmd.Flags().StringVar(&applyOpts.apiBaseURL, "api-base-url", local.DefaultAPIBaseURL, "Base URL the local runtime serves APIs on")
	cmd.Flags().StringVar(&applyOpts.manifestPath, "manifest", ".crm-infra/local-manifest.yaml", "Where to write the local manifest")

	return cmd
}

