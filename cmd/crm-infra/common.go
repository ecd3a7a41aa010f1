package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"

	wetwire "github.com/lex00/wetwire-crm-go"
	"github.com/lex00/wetwire-crm-go/assembly"
	"github.com/lex00/wetwire-crm-go/construct"
	"github.com/lex00/wetwire-crm-go/internal/engine/cfn"
	"github.com/lex00/wetwire-crm-go/internal/logging"
	"github.com/lex00/wetwire-crm-go/internal/packaging"
	"github.com/lex00/wetwire-crm-go/internal/template"
)

const (
	defaultConfigFile = "assembly.yaml"
	domainEnvHint     = "$" + assembly.DomainEnv
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	domain     string
	logLevel   string
	devLog     bool
	noBundle   bool
	assetDir   string
}

func (o *globalOptions) logger() (*zap.Logger, error) {
	return logging.New(o.logLevel, o.devLog)
}

// configFile returns the assembly file to load, or "" for the built-in
// assembly.
func (o *globalOptions) configFile() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	return "", nil
}

// loadConfig loads the assembly and applies --domain. The built-in
// assembly reads .env from the working directory.
func (o *globalOptions) loadConfig() (*assembly.Config, error) {
	path, err := o.configFile()
	if err != nil {
		return nil, err
	}

	var cfg *assembly.Config
	if path == "" {
		if err := assembly.LoadDotEnv("."); err != nil {
			return nil, err
		}
		cfg = assembly.Default(os.Getenv(assembly.DomainEnv))
	} else if cfg, err = assembly.Load(path); err != nil {
		return nil, err
	}
	if o.domain != "" {
		cfg.Domain = o.domain
	}
	return cfg, nil
}

func (o *globalOptions) packager(logger *zap.Logger) construct.Packager {
	if o.noBundle {
		return packaging.Passthrough{}
	}
	return packaging.New(o.assetDir, packaging.WithLogger(logger))
}

// synthesize composes cfg on a cfn engine and returns its template.
func synthesize(ctx context.Context, cfg *assembly.Config, pkg construct.Packager, logger *zap.Logger) (*wetwire.Template, error) {
	eng := cfn.New(cfg.Description, logger)
	if _, err := assembly.Compose(ctx, cfg, eng, pkg, assembly.WithLogger(logger)); err != nil {
		return nil, err
	}
	return eng.Template()
}

// synthesizeFromFlags loads the configured assembly and synthesizes it.
func synthesizeFromFlags(ctx context.Context, opts *globalOptions) (*wetwire.Template, error) {
	logger, err := opts.logger()
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	return synthesize(ctx, cfg, opts.packager(logger), logger)
}

func encodeTemplate(t *wetwire.Template, format string) ([]byte, error) {
	switch format {
	case "json":
		return template.ToJSON(t)
	case "yaml":
		return template.ToYAML(t)
	default:
		return nil, fmt.Errorf("unknown format: %s", format)
	}
}

// writeOutput writes data to outputFile, or to w when outputFile is empty.
func writeOutput(w io.Writer, data []byte, outputFile string) error {
	if outputFile == "" {
		_, err := fmt.Fprintln(w, string(data))
		return err
	}
	return os.WriteFile(outputFile, data, 0o644)
}
