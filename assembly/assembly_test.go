package assembly

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-crm-go/construct"
	"github.com/lex00/wetwire-crm-go/internal/engine/cfn"
)

// countingEngine records primitive names and refuses nothing.
type countingEngine struct {
	ops []string
}

func (e *countingEngine) CreateBucket(_ context.Context, id string, _ construct.BucketSpec) (construct.BucketRef, error) {
	e.ops = append(e.ops, "CreateBucket:"+id)
	return construct.BucketRef{ID: id, Name: id}, nil
}

func (e *countingEngine) CreateTable(_ context.Context, id string, spec construct.TableSpec) (construct.TableRef, error) {
	e.ops = append(e.ops, "CreateTable:"+id)
	return construct.TableRef{ID: id, Name: spec.Name}, nil
}

func (e *countingEngine) CreateComputeHandler(_ context.Context, id string, _ construct.HandlerSpec) (construct.HandlerRef, error) {
	e.ops = append(e.ops, "CreateComputeHandler:"+id)
	return construct.HandlerRef{ID: id}, nil
}

func (e *countingEngine) Grant(_ context.Context, h construct.HandlerRef, _ construct.TableRef, _ construct.GrantMode) error {
	e.ops = append(e.ops, "Grant:"+h.ID)
	return nil
}

func (e *countingEngine) SubscribeOnCreate(_ context.Context, b construct.BucketRef, _ construct.HandlerRef) error {
	e.ops = append(e.ops, "SubscribeOnCreate:"+b.ID)
	return nil
}

func (e *countingEngine) CreateApiFront(_ context.Context, id string, _ construct.HandlerRef, _ *construct.CorsConfig) (construct.ApiRef, error) {
	e.ops = append(e.ops, "CreateApiFront:"+id)
	return construct.ApiRef{ID: id, URL: "https://" + id}, nil
}

type fakePackager struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]error
}

func (p *fakePackager) Package(_ context.Context, spec construct.CodeSpec, _ construct.Runtime) (construct.CodeRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, spec.Path)
	if err := p.fail[spec.Path]; err != nil {
		return construct.CodeRef{}, err
	}
	return construct.CodeRef{Path: spec.Path + "/out", Bundled: spec.Bundling != nil}, nil
}

func TestCompose_Default(t *testing.T) {
	eng := &countingEngine{}
	pkg := &fakePackager{}

	result, err := Compose(context.Background(), Default("example.com"), eng, pkg)
	require.NoError(t, err)

	require.Len(t, result.Ingestion, 3)
	assert.Equal(t, "QuotesIngestion", result.Ingestion[0].ID)
	assert.Equal(t, "SalesRepsIngestion", result.Ingestion[1].ID)
	assert.Equal(t, "ProductsIngestion", result.Ingestion[2].ID)
	require.NotNil(t, result.Response)
	assert.Equal(t, "ApiResponse", result.Response.ID)
	assert.Equal(t, DefaultName, result.Name)

	quotes := result.Ingestion[0]
	assert.Equal(t, "contacto@example.com", quotes.Environment["SENDER_EMAIL"])
	assert.Equal(t, "example.com", quotes.Environment["DOMAIN"])
	assert.Equal(t, "crm-quotes-emails-transactions", quotes.Environment["TABLE_NAME"])

	assert.Len(t, pkg.paths, 4)
	// 5 ops per ingestion unit, 4 for the response unit
	assert.Len(t, eng.ops, 19)
	assert.Equal(t, "CreateBucket:QuotesIngestion/Bucket", eng.ops[0])
	assert.Equal(t, "CreateApiFront:ApiResponse/Api", eng.ops[len(eng.ops)-1])
}

func TestCompose_DoesNotMutateConfig(t *testing.T) {
	cfg := Default("example.com")

	_, err := Compose(context.Background(), cfg, &countingEngine{}, &fakePackager{})
	require.NoError(t, err)

	assert.Equal(t, "${DOMAIN}", cfg.Ingestion[0].Env["DOMAIN"])
}

func TestCompose_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		unit   string
		field  string
	}{
		{
			name:   "duplicate unit id",
			mutate: func(c *Config) { c.Response.ID = "QuotesIngestion" },
			unit:   "QuotesIngestion",
			field:  "ID",
		},
		{
			name:   "empty unit id",
			mutate: func(c *Config) { c.Ingestion[1].ID = "" },
			field:  "ID",
		},
		{
			name:   "unknown placeholder",
			mutate: func(c *Config) { c.Ingestion[0].Env["REGION"] = "${REGION}" },
			unit:   "QuotesIngestion",
			field:  "Env.REGION",
		},
		{
			name:   "domain not set",
			mutate: func(c *Config) { c.Domain = "" },
			unit:   "QuotesIngestion",
		},
		{
			name:   "invalid unit props",
			mutate: func(c *Config) { c.Ingestion[2].PartitionKey.Name = "" },
			unit:   "ProductsIngestion",
			field:  "PartitionKey.Name",
		},
		{
			name:   "invalid response props",
			mutate: func(c *Config) { c.Response.Code.Path = "" },
			unit:   "ApiResponse",
			field:  "Code.Path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("example.com")
			tt.mutate(cfg)
			eng := &countingEngine{}
			pkg := &fakePackager{}

			_, err := Compose(context.Background(), cfg, eng, pkg)
			require.Error(t, err)
			assert.True(t, construct.IsConfigurationError(err))

			var cerr *construct.ConfigurationError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.unit, cerr.Unit)
			if tt.field != "" {
				assert.Equal(t, tt.field, cerr.Field)
			}

			assert.Empty(t, eng.ops)
			assert.Empty(t, pkg.paths)
		})
	}
}

func TestCompose_PackagingFailureStopsProvisioning(t *testing.T) {
	boom := errors.New("docker: not found")
	eng := &countingEngine{}
	pkg := &fakePackager{fail: map[string]error{"./lambda/crm-sync-products": boom}}

	_, err := Compose(context.Background(), Default("example.com"), eng, pkg)
	require.Error(t, err)
	assert.True(t, construct.IsPackagingError(err))
	assert.ErrorIs(t, err, boom)

	var perr *construct.PackagingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "ProductsIngestion", perr.Unit)
	assert.Empty(t, eng.ops)
}

func TestCompose_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := &countingEngine{}

	_, err := Compose(ctx, Default("example.com"), eng, &fakePackager{})
	require.Error(t, err)
	assert.True(t, construct.IsPackagingError(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, eng.ops)
}

func TestCompose_IngestionOnly(t *testing.T) {
	cfg := Default("example.com")
	cfg.Response = nil

	result, err := Compose(context.Background(), cfg, &countingEngine{}, &fakePackager{})
	require.NoError(t, err)
	assert.Nil(t, result.Response)
	assert.Len(t, result.Ingestion, 3)
}

func TestCompose_CfnTemplate(t *testing.T) {
	eng := cfn.New("CRM infrastructure", nil)

	_, err := Compose(context.Background(), Default("example.com"), eng, &fakePackager{})
	require.NoError(t, err)

	tmpl, err := eng.Template()
	require.NoError(t, err)

	for _, name := range []string{
		"QuotesIngestionBucket", "QuotesIngestionTable", "QuotesIngestionProcessor",
		"SalesRepsIngestionBucket", "SalesRepsIngestionTable", "SalesRepsIngestionProcessor",
		"ProductsIngestionBucket", "ProductsIngestionTable", "ProductsIngestionProcessor",
		"ApiResponseTable", "ApiResponseHandler", "ApiResponseApi",
		"QuotesIngestionBucketAutoDeleteObjects", "SalesRepsIngestionBucketAutoDeleteObjects",
		"ProductsIngestionBucketAutoDeleteObjects", cfn.AutoDeleteProvider,
	} {
		assert.Contains(t, tmpl.Resources, name)
	}
	assert.Len(t, tmpl.Resources, 16)
	assert.Contains(t, tmpl.Outputs, "ApiResponseApiUrl")
}

func TestPlan(t *testing.T) {
	plans, err := Plan(Default("example.com"))
	require.NoError(t, err)
	require.Len(t, plans, 4)
	assert.Equal(t, "ApiResponse", plans[3].ID())
	assert.Equal(t, construct.RuntimePython311, plans[3].Runtime())
	assert.Equal(t, construct.RuntimePython313, plans[0].Runtime())
}
