package assembly

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-crm-go/construct"
)

func TestLoad(t *testing.T) {
	t.Setenv(DomainEnv, "")

	cfg, err := Load("testdata/assembly.yaml")
	require.NoError(t, err)

	assert.Equal(t, "crm-infra", cfg.Name)
	assert.Equal(t, "example.com", cfg.Domain)
	assert.Equal(t, []string{"QuotesIngestion", "SalesRepsIngestion", "ApiResponse"}, cfg.UnitIDs())

	quotes := cfg.Ingestion[0]
	assert.Equal(t, "crm-quotes-emails-transactions", quotes.TableName)
	assert.Equal(t, "transaction_id", quotes.PartitionKey.Name)
	require.Len(t, quotes.Indexes, 2)
	assert.Nil(t, quotes.Indexes[0].SortKey)
	require.NotNil(t, quotes.Indexes[1].SortKey)
	assert.Equal(t, construct.AttributeNumber, quotes.Indexes[1].SortKey.Type)
	assert.Equal(t, 2*time.Minute, quotes.Timeout)
	assert.Equal(t, construct.EnvKey("TABLE_NAME"), quotes.TableNameEnv)
	assert.NotNil(t, quotes.Code.Bundling)
	assert.Equal(t, filepath.Join("testdata", "lambda", "crm-sync-quotes"), quotes.Code.Path)

	reps := cfg.Ingestion[1]
	assert.Nil(t, reps.Code.Bundling)
	assert.Equal(t, construct.RemovalRetain, reps.RemovalPolicy)
	require.NotNil(t, reps.AutoDeleteObjects)
	assert.False(t, *reps.AutoDeleteObjects)

	require.NotNil(t, cfg.Response)
	assert.Equal(t, "/srv/lambda/crm-web-response", cfg.Response.Code.Path)
	require.NotNil(t, cfg.Response.CorsEnabled)
	assert.False(t, *cfg.Response.CorsEnabled)
}

func TestLoad_DomainFromDotEnv(t *testing.T) {
	require.NoError(t, os.Unsetenv(DomainEnv))
	t.Cleanup(func() { os.Unsetenv(DomainEnv) })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assembly.yaml"), []byte("domain: example.com\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CRM_DOMAIN=crm.example.org\n"), 0o644))

	cfg, err := Load(filepath.Join(dir, "assembly.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "crm.example.org", cfg.Domain)
	assert.Equal(t, DefaultName, cfg.Name)
}

func TestLoad_DotEnvReload(t *testing.T) {
	require.NoError(t, os.Unsetenv(DomainEnv))
	t.Cleanup(func() { os.Unsetenv(DomainEnv) })

	dir := t.TempDir()
	path := filepath.Join(dir, "assembly.yaml")
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("domain: example.com\n"), 0o644))

	steps := []struct {
		name     string
		dotEnv   *string
		external string
		expected string
	}{
		{name: "initial", dotEnv: strPtr("CRM_DOMAIN=first.example\n"), expected: "first.example"},
		{name: "edited", dotEnv: strPtr("CRM_DOMAIN=second.example\n"), expected: "second.example"},
		{name: "removed", dotEnv: nil, expected: "example.com"},
		{name: "external wins", dotEnv: strPtr("CRM_DOMAIN=third.example\n"), external: "shell.example", expected: "shell.example"},
	}

	for _, step := range steps {
		if step.dotEnv != nil {
			require.NoError(t, os.WriteFile(envPath, []byte(*step.dotEnv), 0o644), step.name)
		} else {
			require.NoError(t, os.Remove(envPath), step.name)
		}
		if step.external != "" {
			require.NoError(t, os.Setenv(DomainEnv, step.external), step.name)
		}

		cfg, err := Load(path)
		require.NoError(t, err, step.name)
		assert.Equal(t, step.expected, cfg.Domain, step.name)
	}
}

func strPtr(s string) *string { return &s }

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "assembly.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading assembly")
}

func TestParse_DomainOverride(t *testing.T) {
	t.Setenv(DomainEnv, "override.example")

	cfg, err := Parse([]byte("name: crm\ndomain: example.com\n"))
	require.NoError(t, err)
	assert.Equal(t, "override.example", cfg.Domain)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("name: crm\ningestion:\n  - id: Quotes\n    partitonKey: {name: id}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partitonKey")
}

func TestExpand(t *testing.T) {
	cfg := &Config{
		Domain: "example.com",
		Ingestion: []IngestionConfig{{
			ID: "Quotes",
			IngestionProps: construct.IngestionProps{
				Env: map[string]string{
					"SENDER_EMAIL": "contacto@${DOMAIN}",
					"PLAIN":        "no placeholders, $5 fee",
				},
			},
		}},
	}

	out, err := cfg.Expand()
	require.NoError(t, err)
	assert.Equal(t, "contacto@example.com", out.Ingestion[0].Env["SENDER_EMAIL"])
	assert.Equal(t, "no placeholders, $5 fee", out.Ingestion[0].Env["PLAIN"])
	assert.Equal(t, "contacto@${DOMAIN}", cfg.Ingestion[0].Env["SENDER_EMAIL"])
}

func TestExpand_Errors(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		value  string
		msg    string
	}{
		{name: "unknown placeholder", domain: "example.com", value: "${STAGE}", msg: "unknown placeholder ${STAGE}"},
		{name: "empty placeholder", domain: "example.com", value: "x${}", msg: "unknown placeholder ${}"},
		{name: "no domain", value: "${DOMAIN}", msg: "no domain is set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Domain: tt.domain,
				Ingestion: []IngestionConfig{{
					ID:             "Quotes",
					IngestionProps: construct.IngestionProps{Env: map[string]string{"VALUE": tt.value}},
				}},
			}
			_, err := cfg.Expand()
			require.Error(t, err)
			assert.True(t, construct.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.msg)
			assert.Contains(t, err.Error(), "Env.VALUE")
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default("example.com")
	require.NoError(t, cfg.Validate())

	cfg.Ingestion[2].ID = "SalesRepsIngestion"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, construct.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "duplicate unit id")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{name: "no ingestion units", mutate: func(c *Config) { c.Ingestion = nil }, msg: "Ingestion: at least one ingestion unit is required"},
		{name: "response only", mutate: func(c *Config) { c.Ingestion = []IngestionConfig{} }, msg: "at least one ingestion unit is required"},
		{name: "empty id", mutate: func(c *Config) { c.Ingestion[0].ID = "" }, msg: "unit id is required"},
		{name: "duplicate response id", mutate: func(c *Config) { c.Response.ID = "QuotesIngestion" }, msg: "duplicate unit id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("example.com")
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, construct.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
