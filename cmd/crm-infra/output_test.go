package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wetwire "github.com/lex00/wetwire-crm-go"
	"github.com/lex00/wetwire-crm-go/internal/differ"
)

func TestOutputValidateResult(t *testing.T) {
	var out bytes.Buffer
	err := outputValidateResult(&out, wetwire.ValidateResult{Success: true, Resources: 12, Warnings: []string{"W1: minor"}}, "text")
	require.NoError(t, err)
	assert.Equal(t, "warning: W1: minor\nValidation passed: 12 resources OK\n", out.String())

	out.Reset()
	err = outputValidateResult(&out, wetwire.ValidateResult{Errors: []string{"A: dependsOn reference to undefined resource B"}}, "text")
	assert.ErrorContains(t, err, "validation failed with 1 errors")
	assert.Contains(t, out.String(), "  - A: dependsOn reference to undefined resource B")

	out.Reset()
	err = outputValidateResult(&out, wetwire.ValidateResult{Success: true, Resources: 1}, "json")
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"success": true`)

	assert.Error(t, outputValidateResult(&out, wetwire.ValidateResult{}, "xml"))
}

func TestDiffCmd(t *testing.T) {
	cmd := newDiffCmd()
	assert.Equal(t, "diff <template1> <template2>", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("format"))
	assert.NotNil(t, cmd.Flags().Lookup("ignore-order"))

	dir := t.TempDir()
	before := filepath.Join(dir, "before.json")
	after := filepath.Join(dir, "after.yaml")
	require.NoError(t, os.WriteFile(before, []byte(`{"Resources":{"QuotesTable":{"Type":"AWS::DynamoDB::Table","Properties":{"BillingMode":"PAY_PER_REQUEST"}}}}`), 0o644))
	require.NoError(t, os.WriteFile(after, []byte("Resources:\n  QuotesTable:\n    Type: AWS::DynamoDB::Table\n    Properties:\n      BillingMode: PROVISIONED\n  RepsTable:\n    Type: AWS::DynamoDB::Table\n"), 0o644))

	out, err := execute(t, "diff", before, after)
	require.NoError(t, err)
	assert.Equal(t, "+ RepsTable (AWS::DynamoDB::Table)\n~ QuotesTable (AWS::DynamoDB::Table)\n    BillingMode modified\n\n1 added, 0 removed, 1 modified\n", out)

	out, err = execute(t, "diff", before, before)
	require.NoError(t, err)
	assert.Equal(t, "No differences\n", out)
}

func TestOutputDiff_JSON(t *testing.T) {
	result := differ.Compare(&wetwire.Template{}, &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{"Bucket": {Type: "AWS::S3::Bucket"}},
	}, differ.Options{})

	var out bytes.Buffer
	require.NoError(t, outputDiff(&out, result, "json"))
	assert.Contains(t, out.String(), `"Bucket"`)
	assert.Error(t, outputDiff(&out, result, "html"))
}

func TestOutputBuildResult(t *testing.T) {
	tmpl := &wetwire.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources: map[string]wetwire.ResourceDef{
			"QuotesIngestionTable":  {Type: "AWS::DynamoDB::Table"},
			"QuotesIngestionBucket": {Type: "AWS::S3::Bucket"},
		},
	}

	var out bytes.Buffer
	require.NoError(t, outputBuildResult(&out, tmpl, nil))

	var result wetwire.BuildResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, []string{"QuotesIngestionBucket", "QuotesIngestionTable"}, result.Resources)

	out.Reset()
	cause := errors.New("QuotesIngestion: PartitionKey.Name: partition key name is required")
	err := outputBuildResult(&out, nil, cause)
	assert.ErrorIs(t, err, cause)
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, []string{cause.Error()}, result.Errors)
}
