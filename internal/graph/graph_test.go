package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wetwire "github.com/lex00/wetwire-crm-go"
	"github.com/lex00/wetwire-crm-go/construct"
	"github.com/lex00/wetwire-crm-go/internal/engine/cfn"
)

func simpleTemplate() *wetwire.Template {
	return &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"QuotesBucket": {Type: "AWS::S3::Bucket"},
			"QuotesTable":  {Type: "AWS::DynamoDB::Table"},
			"QuotesProcessor": {
				Type:      "AWS::Serverless::Function",
				DependsOn: []string{"QuotesTable"},
				Properties: map[string]any{
					"Environment": map[string]any{
						"Variables": map[string]any{
							"TABLE_NAME": map[string]any{"Ref": "QuotesTable"},
							"REGION":     map[string]any{"Ref": "AWS::Region"},
						},
					},
					"Policies": []any{
						map[string]any{
							"Statement": []any{map[string]any{
								"Resource": []any{
									map[string]any{"Fn::GetAtt": []any{"QuotesTable", "Arn"}},
									map[string]any{"Fn::Sub": "${QuotesTable.Arn}/index/*"},
								},
							}},
						},
					},
					"Events": map[string]any{
						"QuotesBucketObjectCreated": map[string]any{
							"Type": "S3",
							"Properties": map[string]any{
								"Bucket": map[string]any{"Ref": "QuotesBucket"},
							},
						},
					},
				},
			},
		},
	}
}

func TestEdges(t *testing.T) {
	edges := Edges(simpleTemplate())

	assert.Equal(t, []Edge{
		{From: "QuotesProcessor", To: "QuotesBucket", Kind: EdgeEvent},
		{From: "QuotesProcessor", To: "QuotesTable", Kind: EdgeGetAtt},
	}, edges)
}

func TestEdges_SubForms(t *testing.T) {
	tmpl := &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"Api": {Type: "AWS::Serverless::Api"},
			"Fn": {
				Type: "AWS::Serverless::Function",
				Properties: map[string]any{
					"Description": map[string]any{"Fn::Sub": []any{"${Api} in ${AWS::Region} ${!Literal}", map[string]any{}}},
				},
			},
			"Other": {
				Type:       "AWS::S3::Bucket",
				Properties: map[string]any{"Name": map[string]any{"Fn::GetAtt": "Fn.Arn"}},
			},
		},
	}

	assert.Equal(t, []Edge{
		{From: "Fn", To: "Api", Kind: EdgeRef},
		{From: "Other", To: "Fn", Kind: EdgeGetAtt},
	}, Edges(tmpl))
}

func TestGenerator_DOT(t *testing.T) {
	gen := &Generator{}
	output, err := gen.GenerateString(simpleTemplate())
	require.NoError(t, err)

	assert.Contains(t, output, "digraph")
	assert.Contains(t, output, "QuotesProcessor")
	assert.Contains(t, output, "[AWS::Serverless::Function]")
	assert.Contains(t, output, "blue")
	assert.Contains(t, output, "dashed")
	assert.NotContains(t, output, "AWS::Region")
}

func TestGenerator_Mermaid(t *testing.T) {
	gen := &Generator{Format: FormatMermaid}
	output, err := gen.GenerateString(simpleTemplate())
	require.NoError(t, err)

	assert.True(t, strings.Contains(output, "flowchart") || strings.Contains(output, "graph"), output)
	assert.NotContains(t, output, "digraph")
}

func TestGenerator_ClusterByType(t *testing.T) {
	tmpl := simpleTemplate()
	tmpl.Resources["OtherBucket"] = wetwire.ResourceDef{Type: "AWS::S3::Bucket"}

	gen := &Generator{ClusterByType: true}
	output, err := gen.GenerateString(tmpl)
	require.NoError(t, err)

	assert.Contains(t, output, "cluster_S3")
	assert.NotContains(t, output, "cluster_DynamoDB")
}

func TestGenerator_Deterministic(t *testing.T) {
	gen := &Generator{ClusterByType: true}
	first, err := gen.GenerateString(simpleTemplate())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := gen.GenerateString(simpleTemplate())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

type dirPackager struct{}

func (dirPackager) Package(_ context.Context, spec construct.CodeSpec, _ construct.Runtime) (construct.CodeRef, error) {
	return construct.CodeRef{Path: spec.Path}, nil
}

func TestEdges_SynthesizedUnits(t *testing.T) {
	eng := cfn.New("", nil)
	ctx := context.Background()
	_, err := construct.NewIngestionUnit(ctx, eng, dirPackager{}, "Quotes", construct.IngestionProps{
		PartitionKey: construct.KeyDef{Name: "quote_id"},
		Code:         construct.CodeSpec{Path: "./handler"},
	})
	require.NoError(t, err)
	_, err = construct.NewResponseUnit(ctx, eng, dirPackager{}, "ApiResponse", construct.ResponseProps{
		Code: construct.CodeSpec{Path: "./response"},
	})
	require.NoError(t, err)

	tmpl, err := eng.Template()
	require.NoError(t, err)

	kinds := make(map[string]EdgeKind)
	for _, e := range Edges(tmpl) {
		kinds[e.From+"->"+e.To] = e.Kind
	}
	assert.Equal(t, EdgeEvent, kinds["QuotesProcessor->QuotesBucket"])
	assert.Equal(t, EdgeGetAtt, kinds["QuotesProcessor->QuotesTable"])
	assert.Equal(t, EdgeEvent, kinds["ApiResponseHandler->ApiResponseApi"])
	assert.Equal(t, EdgeGetAtt, kinds["ApiResponseHandler->ApiResponseTable"])
	assert.Equal(t, EdgeRef, kinds["QuotesBucketAutoDeleteObjects->QuotesBucket"])
	assert.Equal(t, EdgeGetAtt, kinds["QuotesBucketAutoDeleteObjects->"+cfn.AutoDeleteProvider])
	assert.Contains(t, kinds, cfn.AutoDeleteProvider+"->QuotesBucket")
	assert.Len(t, kinds, 7)
}

func TestReferences_KeepsUnknownTargets(t *testing.T) {
	tmpl := simpleTemplate()
	tmpl.Resources["Dangling"] = wetwire.ResourceDef{
		Type:       "AWS::Serverless::Function",
		DependsOn:  []string{"Missing"},
		Properties: map[string]any{"Role": map[string]any{"Fn::GetAtt": []any{"GhostRole", "Arn"}}},
	}

	refs := References(tmpl)
	assert.Contains(t, refs, Edge{From: "Dangling", To: "Missing", Kind: EdgeDependsOn})
	assert.Contains(t, refs, Edge{From: "Dangling", To: "GhostRole", Kind: EdgeGetAtt})
	assert.NotContains(t, Edges(tmpl), Edge{From: "Dangling", To: "Missing", Kind: EdgeDependsOn})
	for _, r := range refs {
		assert.NotEqual(t, "AWS::Region", r.To)
	}
}

func TestEdgeKind_String(t *testing.T) {
	assert.Equal(t, "dependsOn", EdgeDependsOn.String())
	assert.Equal(t, "ref", EdgeRef.String())
	assert.Equal(t, "getatt", EdgeGetAtt.String())
	assert.Equal(t, "event", EdgeEvent.String())
}
