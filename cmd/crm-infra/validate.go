package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-crm-go"
	"github.com/lex00/wetwire-crm-go/internal/validation"
)

// newValidateCmd creates the "validate" subcommand.
func newValidateCmd(opts *globalOptions) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the synthesized template",
		Long: `Validate synthesizes the assembly and checks the template.

Checks performed:
  - Reference validity: every Ref, GetAtt, Sub and DependsOn names a resource
  - Transform: serverless resources require the SAM transform
  - cfn-lint: CloudFormation schema and best-practice rules

Examples:
    crm-infra validate --no-bundle
    crm-infra validate --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := synthesizeFromFlags(cmd.Context(), opts)
			if err != nil {
				return err
			}
			result, err := validation.ValidateTemplate(tmpl)
			if err != nil {
				return err
			}
			return outputValidateResult(cmd.OutOrStdout(), *result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func outputValidateResult(w io.Writer, result wetwire.ValidateResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))

	case "text":
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
		if result.Success {
			fmt.Fprintf(w, "Validation passed: %d resources OK\n", result.Resources)
			return nil
		}
		fmt.Fprintln(w, "Validation FAILED:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", errMsg)
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if !result.Success {
		return fmt.Errorf("validation failed with %d errors", len(result.Errors))
	}
	return nil
}
