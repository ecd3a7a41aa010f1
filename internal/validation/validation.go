// Package validation checks synthesized templates.
//
// Two passes run over a template:
//   - reference checks: every DependsOn, Ref, Fn::GetAtt and Fn::Sub target
//     names a resource of the template
//   - cfn-lint-go: CloudFormation schema and best-practice rules
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lex00/cfn-lint-go/pkg/lint"

	wetwire "github.com/lex00/wetwire-crm-go"
	"github.com/lex00/wetwire-crm-go/internal/graph"
	"github.com/lex00/wetwire-crm-go/internal/template"
)

// CfnLintResult contains the result of running cfn-lint.
type CfnLintResult struct {
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Informational []string `json:"informational"`
}

// TotalIssues returns the total number of issues found.
func (r CfnLintResult) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Informational)
}

// CheckReferences returns one message per reference to a name the template
// does not define, and one if serverless resources lack the SAM transform.
func CheckReferences(t *wetwire.Template) []string {
	var problems []string
	for _, ref := range graph.References(t) {
		if _, ok := t.Resources[ref.To]; !ok {
			problems = append(problems, fmt.Sprintf("%s: %s reference to undefined resource %s", ref.From, ref.Kind, ref.To))
		}
	}
	if t.Transform != wetwire.SAMTransform {
		for _, name := range sortedNames(t) {
			if strings.HasPrefix(t.Resources[name].Type, "AWS::Serverless::") {
				problems = append(problems, fmt.Sprintf("%s: %s requires the %s transform", name, t.Resources[name].Type, wetwire.SAMTransform))
				break
			}
		}
	}
	return problems
}

// ValidateTemplate runs the reference checks and cfn-lint over t. Lint
// warnings do not fail validation.
func ValidateTemplate(t *wetwire.Template) (*wetwire.ValidateResult, error) {
	result := &wetwire.ValidateResult{
		Resources: len(t.Resources),
		Errors:    CheckReferences(t),
	}

	lintResult, err := LintTemplate(t)
	if err != nil {
		return nil, err
	}
	result.Errors = append(result.Errors, lintResult.Errors...)
	result.Warnings = append(result.Warnings, lintResult.Warnings...)
	result.Success = len(result.Errors) == 0
	return result, nil
}

// LintTemplate writes t to a temporary file and runs cfn-lint over it.
func LintTemplate(t *wetwire.Template) (*CfnLintResult, error) {
	data, err := template.ToYAML(t)
	if err != nil {
		return nil, fmt.Errorf("encoding template: %w", err)
	}

	dir, err := os.MkdirTemp("", "crm-infra-lint-*")
	if err != nil {
		return nil, fmt.Errorf("creating lint dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "template.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing template: %w", err)
	}
	return RunCfnLint(path)
}

// RunCfnLint runs cfn-lint-go on the given template file.
func RunCfnLint(templatePath string) (*CfnLintResult, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Template file not found: %s", templatePath)},
		}, nil
	}

	linter := lint.New(lint.Options{})
	matches, err := linter.LintFile(templatePath)
	if err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Linter error: %v", err)},
		}, nil
	}

	result := &CfnLintResult{
		Errors:        []string{},
		Warnings:      []string{},
		Informational: []string{},
	}
	for _, match := range matches {
		formatted := formatMatch(match)
		switch match.Level {
		case "Error":
			result.Errors = append(result.Errors, formatted)
		case "Warning":
			result.Warnings = append(result.Warnings, formatted)
		default:
			result.Informational = append(result.Informational, formatted)
		}
	}
	result.Passed = len(result.Errors) == 0
	return result, nil
}

// formatMatch formats a cfn-lint-go match for display.
func formatMatch(match lint.Match) string {
	pathStr := ""
	if len(match.Location.Path) > 0 {
		parts := make([]string, len(match.Location.Path))
		for i, p := range match.Location.Path {
			parts[i] = fmt.Sprintf("%v", p)
		}
		pathStr = strings.Join(parts, "/")
	}

	if pathStr != "" {
		return fmt.Sprintf("%s: %s (at %s)", match.Rule.ID, match.Message, pathStr)
	}
	return fmt.Sprintf("%s: %s", match.Rule.ID, match.Message)
}

func sortedNames(t *wetwire.Template) []string {
	names := make([]string, 0, len(t.Resources))
	for name := range t.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
