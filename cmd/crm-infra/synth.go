package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-crm-go"
)

func newSynthCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat string
		outputFile   string
		jsonResult   bool
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate the CloudFormation template",
		Long: `Synth composes the assembly on the CloudFormation engine and prints the
resulting SAM template.

Handler code with bundling enabled is built in a container first; pass
--no-bundle to reference the code directories as they are.

Examples:
    crm-infra synth
    crm-infra synth --config assembly.yaml -o template.json
    crm-infra synth --no-bundle --format yaml
    crm-infra synth --json-result`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := synthesizeFromFlags(cmd.Context(), opts)
			if jsonResult {
				return outputBuildResult(cmd.OutOrStdout(), tmpl, err)
			}
			if err != nil {
				return err
			}
			data, err := encodeTemplate(tmpl, outputFormat)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), data, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&jsonResult, "json-result", false, "Print a JSON result with the template, resource names and errors")

	return cmd
}

// outputBuildResult prints the synthesis outcome as a BuildResult. A
// failed synthesis is still returned as an error after printing.
func outputBuildResult(w io.Writer, tmpl *wetwire.Template, synthErr error) error {
	result := wetwire.BuildResult{Success: synthErr == nil}
	if synthErr != nil {
		result.Errors = []string{synthErr.Error()}
	} else {
		result.Template = *tmpl
		for name := range tmpl.Resources {
			result.Resources = append(result.Resources, name)
		}
		sort.Strings(result.Resources)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))

	if synthErr != nil {
		return fmt.Errorf("synth failed: %w", synthErr)
	}
	return nil
}
