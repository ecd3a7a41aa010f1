// Package packaging turns handler code directories into deployable assets.
//
// A directory without bundling parameters is used as is. A directory with
// bundling parameters has its dependencies installed by a container step:
//
//	docker run --rm -v <src>:/asset-input -v <out>:/asset-output -w /asset-input \
//	  public.ecr.aws/sam/build-python3.13 \
//	  bash -c "pip install -r requirements.txt --platform manylinux2014_x86_64 \
//	    --only-binary=:all: -t /asset-output && cp -au . /asset-output"
package packaging

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lex00/wetwire-crm-go/construct"
	"github.com/lex00/wetwire-crm-go/internal/serialize"
)

// Bundling defaults.
const (
	DefaultManifest    = "requirements.txt"
	DefaultPlatform    = "manylinux2014_x86_64"
	DefaultImagePrefix = "public.ecr.aws/sam/build-"

	assetInput  = "/asset-input"
	assetOutput = "/asset-output"
)

// CommandRunner runs an external command.
type CommandRunner interface {
	Run(ctx context.Context, cmd []string) error
}

type execRunner struct {
	stdout io.Writer
	stderr io.Writer
}

func (r execRunner) Run(ctx context.Context, cmd []string) error {
	if len(cmd) == 0 {
		return fmt.Errorf("command is empty")
	}
	command := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	command.Stdout = r.stdout
	command.Stderr = r.stderr
	return command.Run()
}

// Packager implements construct.Packager. Identical concurrent requests
// share one bundling run and finished bundles are reused.
type Packager struct {
	outDir string
	runner CommandRunner
	logger *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	done  map[string]construct.CodeRef
}

var _ construct.Packager = (*Packager)(nil)

// Option configures a Packager.
type Option func(*Packager)

// WithRunner replaces the command runner.
func WithRunner(r CommandRunner) Option {
	return func(p *Packager) {
		p.runner = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Packager) {
		p.logger = logger
	}
}

// New creates a Packager that writes bundles under outDir.
func New(outDir string, opts ...Option) *Packager {
	p := &Packager{
		outDir: outDir,
		runner: execRunner{stdout: os.Stderr, stderr: os.Stderr},
		logger: zap.NewNop(),
		done:   make(map[string]construct.CodeRef),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package resolves spec to deployable code. Errors are PackagingErrors.
func (p *Packager) Package(ctx context.Context, spec construct.CodeSpec, runtime construct.Runtime) (construct.CodeRef, error) {
	src, err := filepath.Abs(spec.Path)
	if err != nil {
		return construct.CodeRef{}, &construct.PackagingError{Path: spec.Path, Err: err}
	}
	info, err := os.Stat(src)
	if err != nil {
		return construct.CodeRef{}, &construct.PackagingError{Path: spec.Path, Err: err}
	}
	if !info.IsDir() {
		return construct.CodeRef{}, &construct.PackagingError{Path: spec.Path, Err: fmt.Errorf("not a directory")}
	}

	if spec.Bundling == nil {
		return construct.CodeRef{Path: spec.Path}, nil
	}

	bundling := resolveBundling(*spec.Bundling, runtime)
	if _, err := os.Stat(filepath.Join(src, bundling.Manifest)); err != nil {
		return construct.CodeRef{}, &construct.PackagingError{Path: spec.Path, Err: fmt.Errorf("dependency manifest: %w", err)}
	}

	key := src + "|" + bundling.Manifest + "|" + bundling.Platform + "|" + bundling.Image
	p.mu.Lock()
	if ref, ok := p.done[key]; ok {
		p.mu.Unlock()
		return ref, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.bundle(ctx, src, key, bundling)
	})
	if err != nil {
		return construct.CodeRef{}, &construct.PackagingError{Path: spec.Path, Err: err}
	}
	ref := v.(construct.CodeRef)

	p.mu.Lock()
	p.done[key] = ref
	p.mu.Unlock()
	return ref, nil
}

func (p *Packager) bundle(ctx context.Context, src, key string, bundling construct.BundlingSpec) (construct.CodeRef, error) {
	out, err := filepath.Abs(filepath.Join(p.outDir, AssetName(src, key)))
	if err != nil {
		return construct.CodeRef{}, err
	}
	if err := os.RemoveAll(out); err != nil {
		return construct.CodeRef{}, fmt.Errorf("cleaning %s: %w", out, err)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return construct.CodeRef{}, fmt.Errorf("creating %s: %w", out, err)
	}

	p.logger.Info("bundling handler code",
		zap.String("path", src),
		zap.String("image", bundling.Image),
		zap.String("output", out),
	)
	if err := p.runner.Run(ctx, BundleCommand(src, out, bundling)); err != nil {
		return construct.CodeRef{}, fmt.Errorf("bundling with %s: %w", bundling.Image, err)
	}
	return construct.CodeRef{Path: out, Bundled: true}, nil
}

// resolveBundling fills empty bundling fields. The image defaults to the
// build image of the handler runtime.
func resolveBundling(b construct.BundlingSpec, runtime construct.Runtime) construct.BundlingSpec {
	if b.Manifest == "" {
		b.Manifest = DefaultManifest
	}
	if b.Platform == "" {
		b.Platform = DefaultPlatform
	}
	if b.Image == "" {
		b.Image = DefaultImagePrefix + string(runtime)
	}
	return b
}

// AssetName returns a stable directory name for the bundle of src. key
// distinguishes bundles of one directory built with different parameters.
func AssetName(src, key string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(key))
	return serialize.ToKebabCase(filepath.Base(src)) + "-" + id.String()[:8]
}

// BundleCommand returns the container invocation that installs
// dependencies from src into out.
func BundleCommand(src, out string, b construct.BundlingSpec) []string {
	script := fmt.Sprintf(
		"pip install -r %s --platform %s --only-binary=:all: -t %s && cp -au . %s",
		b.Manifest, b.Platform, assetOutput, assetOutput,
	)
	return []string{
		"docker", "run", "--rm",
		"-v", src + ":" + assetInput,
		"-v", out + ":" + assetOutput,
		"-w", assetInput,
		b.Image,
		"bash", "-c", script,
	}
}

// Passthrough is a construct.Packager that references code directories as
// they are, without checking or bundling them. It suits synthesis when a
// later step such as `sam build` prepares the code.
type Passthrough struct{}

var _ construct.Packager = Passthrough{}

// Package returns spec.Path unchanged.
func (Passthrough) Package(_ context.Context, spec construct.CodeSpec, _ construct.Runtime) (construct.CodeRef, error) {
	return construct.CodeRef{Path: spec.Path}, nil
}
