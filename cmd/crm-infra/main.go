// Command crm-infra synthesizes and applies the CRM ingestion infrastructure.
//
// Usage:
//
//	crm-infra synth                  Generate the CloudFormation template
//	crm-infra validate               Check references and run cfn-lint
//	crm-infra graph -f mermaid       Draw resource dependencies
//	crm-infra diff old.json new.json Compare two templates
//	crm-infra apply-local            Create tables and buckets on local endpoints
//	crm-infra watch                  Re-synthesize when the assembly changes
//	crm-infra init                   Write an example assembly.yaml
//	crm-infra version                Show version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "crm-infra",
		Short: "Provision CRM ingestion and response infrastructure",
		Long: `crm-infra composes ingestion units (bucket, table, processing function)
and a response unit (table, handler, HTTP API) from an assembly file.

Without --config, ./assembly.yaml is used when present; otherwise the
built-in CRM assembly is composed for --domain.

    crm-infra synth --domain example.com -o template.yaml -f yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Assembly file (default: ./assembly.yaml or the built-in assembly)")
	flags.StringVar(&opts.domain, "domain", "", "Domain substituted for ${DOMAIN} (overrides the assembly and "+domainEnvHint+")")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.BoolVar(&opts.devLog, "dev-log", false, "Human-readable console logs")
	flags.BoolVar(&opts.noBundle, "no-bundle", false, "Reference handler code directories without bundling dependencies")
	flags.StringVar(&opts.assetDir, "asset-dir", ".crm-infra/assets", "Directory for bundled handler code")

	rootCmd.AddCommand(
		newSynthCmd(opts),
		newValidateCmd(opts),
		newGraphCmd(opts),
		newDiffCmd(),
		newApplyLocalCmd(opts),
		newWatchCmd(opts),
		newInitCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "crm-infra %s\n", getVersion())
		},
	}
}
