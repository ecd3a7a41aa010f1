package packaging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-crm-go/construct"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *fakeRunner) Run(_ context.Context, cmd []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	return r.err
}

func codeDir(t *testing.T, files ...string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "handler")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("def handler(e, c):\n    pass\n"), 0o644))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("boto3\n"), 0o644))
	}
	return dir
}

func TestPackage_ReadyDirectory(t *testing.T) {
	runner := &fakeRunner{}
	p := New(t.TempDir(), WithRunner(runner))
	dir := codeDir(t)

	ref, err := p.Package(context.Background(), construct.CodeSpec{Path: dir}, construct.RuntimePython313)
	require.NoError(t, err)

	assert.Equal(t, dir, ref.Path)
	assert.False(t, ref.Bundled)
	assert.Empty(t, runner.calls)
}

func TestPackage_MissingDirectory(t *testing.T) {
	p := New(t.TempDir(), WithRunner(&fakeRunner{}))
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := p.Package(context.Background(), construct.CodeSpec{Path: missing}, construct.RuntimePython313)
	require.Error(t, err)
	assert.True(t, construct.IsPackagingError(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPackage_NotADirectory(t *testing.T) {
	p := New(t.TempDir(), WithRunner(&fakeRunner{}))
	file := filepath.Join(codeDir(t), "main.py")

	_, err := p.Package(context.Background(), construct.CodeSpec{Path: file}, construct.RuntimePython313)
	require.Error(t, err)
	assert.True(t, construct.IsPackagingError(err))
	assert.Contains(t, err.Error(), "not a directory")
}

func TestPackage_Bundled(t *testing.T) {
	runner := &fakeRunner{}
	out := t.TempDir()
	p := New(out, WithRunner(runner))
	dir := codeDir(t, DefaultManifest)

	ref, err := p.Package(context.Background(), construct.CodeSpec{
		Path:     dir,
		Bundling: &construct.BundlingSpec{},
	}, construct.RuntimePython313)
	require.NoError(t, err)

	assert.True(t, ref.Bundled)
	assert.Equal(t, out, filepath.Dir(ref.Path))
	assert.DirExists(t, ref.Path)

	require.Len(t, runner.calls, 1)
	cmd := runner.calls[0]
	assert.Equal(t, "docker", cmd[0])
	assert.Contains(t, cmd, "public.ecr.aws/sam/build-python3.13")
	assert.Contains(t, cmd, dir+":/asset-input")
	assert.Contains(t, cmd, ref.Path+":/asset-output")
	assert.Contains(t, cmd[len(cmd)-1], "--platform manylinux2014_x86_64")
}

func TestPackage_BundledIsReused(t *testing.T) {
	runner := &fakeRunner{}
	p := New(t.TempDir(), WithRunner(runner))
	dir := codeDir(t, DefaultManifest)
	spec := construct.CodeSpec{Path: dir, Bundling: &construct.BundlingSpec{}}

	var wg sync.WaitGroup
	refs := make([]construct.CodeRef, 4)
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := p.Package(context.Background(), spec, construct.RuntimePython313)
			assert.NoError(t, err)
			refs[i] = ref
		}(i)
	}
	wg.Wait()

	ref, err := p.Package(context.Background(), spec, construct.RuntimePython313)
	require.NoError(t, err)
	for _, r := range refs {
		assert.Equal(t, ref, r)
	}
	assert.LessOrEqual(t, len(runner.calls), len(refs))
	assert.GreaterOrEqual(t, len(runner.calls), 1)
}

func TestPackage_DifferentRuntimesBundleSeparately(t *testing.T) {
	runner := &fakeRunner{}
	p := New(t.TempDir(), WithRunner(runner))
	spec := construct.CodeSpec{Path: codeDir(t, DefaultManifest), Bundling: &construct.BundlingSpec{}}

	a, err := p.Package(context.Background(), spec, construct.RuntimePython313)
	require.NoError(t, err)
	b, err := p.Package(context.Background(), spec, construct.RuntimePython311)
	require.NoError(t, err)

	assert.NotEqual(t, a.Path, b.Path)
	assert.Len(t, runner.calls, 2)
}

func TestPackage_MissingManifest(t *testing.T) {
	runner := &fakeRunner{}
	p := New(t.TempDir(), WithRunner(runner))

	_, err := p.Package(context.Background(), construct.CodeSpec{
		Path:     codeDir(t),
		Bundling: &construct.BundlingSpec{Manifest: "Pipfile"},
	}, construct.RuntimePython313)
	require.Error(t, err)
	assert.True(t, construct.IsPackagingError(err))
	assert.Contains(t, err.Error(), "dependency manifest")
	assert.Empty(t, runner.calls)
}

func TestPackage_RunnerFailure(t *testing.T) {
	boom := errors.New("docker: not found")
	p := New(t.TempDir(), WithRunner(&fakeRunner{err: boom}))

	_, err := p.Package(context.Background(), construct.CodeSpec{
		Path:     codeDir(t, DefaultManifest),
		Bundling: &construct.BundlingSpec{},
	}, construct.RuntimePython313)
	require.Error(t, err)
	assert.True(t, construct.IsPackagingError(err))
	assert.ErrorIs(t, err, boom)
}

func TestBundleCommand(t *testing.T) {
	cmd := BundleCommand("/src/quotes", "/out/quotes-1234", construct.BundlingSpec{
		Manifest: "requirements-prod.txt",
		Platform: "manylinux2014_aarch64",
		Image:    "custom/build:latest",
	})

	assert.Equal(t, []string{
		"docker", "run", "--rm",
		"-v", "/src/quotes:/asset-input",
		"-v", "/out/quotes-1234:/asset-output",
		"-w", "/asset-input",
		"custom/build:latest",
		"bash", "-c",
		"pip install -r requirements-prod.txt --platform manylinux2014_aarch64 --only-binary=:all: -t /asset-output && cp -au . /asset-output",
	}, cmd)
}

func TestResolveBundling(t *testing.T) {
	b := resolveBundling(construct.BundlingSpec{}, construct.RuntimePython311)
	assert.Equal(t, DefaultManifest, b.Manifest)
	assert.Equal(t, DefaultPlatform, b.Platform)
	assert.Equal(t, "public.ecr.aws/sam/build-python3.11", b.Image)

	custom := resolveBundling(construct.BundlingSpec{Image: "x"}, construct.RuntimePython311)
	assert.Equal(t, "x", custom.Image)
}

func TestAssetName(t *testing.T) {
	a := AssetName("/src/QuoteHandler", "k1")
	assert.Equal(t, a, AssetName("/src/QuoteHandler", "k1"))
	assert.NotEqual(t, a, AssetName("/src/QuoteHandler", "k2"))
	assert.Regexp(t, `^quote-handler-[0-9a-f]{8}$`, a)
}

func TestPassthrough(t *testing.T) {
	spec := construct.CodeSpec{Path: "./lambda/does-not-exist", Bundling: &construct.BundlingSpec{}}

	ref, err := Passthrough{}.Package(context.Background(), spec, construct.RuntimePython313)
	require.NoError(t, err)
	assert.Equal(t, construct.CodeRef{Path: "./lambda/does-not-exist"}, ref)
}
