package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-crm-go/internal/graph"
)

func newGraphCmd(opts *globalOptions) *cobra.Command {
	var (
		outputFormat  string
		clusterByType bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate a graph of resource dependencies",
		Long: `Generate a DOT or Mermaid graph of the synthesized resources and the
references between them.

The output can be rendered with Graphviz:
    crm-infra graph --no-bundle | dot -Tpng -o deps.png

Or used in GitHub markdown (Mermaid format):
    crm-infra graph --no-bundle -f mermaid

Examples:
    crm-infra graph -c              # cluster by service`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var graphFormat graph.Format
			switch outputFormat {
			case "dot":
				graphFormat = graph.FormatDOT
			case "mermaid":
				graphFormat = graph.FormatMermaid
			default:
				return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", outputFormat)
			}

			tmpl, err := synthesizeFromFlags(cmd.Context(), opts)
			if err != nil {
				return err
			}
			gen := &graph.Generator{
				Format:        graphFormat,
				ClusterByType: clusterByType,
			}
			return gen.Generate(tmpl, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVarP(&clusterByType, "cluster", "c", false, "Cluster resources by AWS service type")

	return cmd
}
