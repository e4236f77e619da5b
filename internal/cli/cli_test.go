package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pcmtone.click/internal/audio"
	"pcmtone.click/internal/config"
)

// testXDG roots every path under a temporary directory
type testXDG struct {
	root string
}

func (x *testXDG) GetConfigPaths(filename string) []string {
	return []string{filepath.Join(x.root, "config", filename)}
}

func (x *testXDG) GetCachePath(purpose string) string {
	return filepath.Join(x.root, "cache", purpose)
}

func (x *testXDG) CreateCacheDir(purpose string) error {
	return os.MkdirAll(x.GetCachePath(purpose), 0o755)
}

func (x *testXDG) GetRuntimePath(purpose string) string {
	return filepath.Join(x.root, "run", purpose)
}

// reusableBackend lets one null backend serve several runs
type reusableBackend struct {
	*audio.NullBackend
	closes int
}

func (b *reusableBackend) Close() error {
	b.closes++
	return nil
}

// stubFactory hands out one prepared backend regardless of the requested type
type stubFactory struct {
	backend *reusableBackend
	created []string
}

func (f *stubFactory) CreateBackend(backendType string) (audio.Backend, error) {
	f.created = append(f.created, backendType)
	return f.backend, nil
}

func (f *stubFactory) GetSupportedBackends() []string {
	return []string{audio.BackendNull}
}

func (f *stubFactory) IsValidBackendType(backendType string) bool {
	return true
}

type fakeTerminal struct {
	interactive bool
}

func (f *fakeTerminal) IsTerminal(fd int) bool { return f.interactive }

var testClock = time.Date(2026, time.March, 18, 15, 0, 0, 0, time.Local)

type testEnv struct {
	t       *testing.T
	xdg     *testXDG
	fs      afero.Fs
	backend *audio.NullBackend
	factory *stubFactory
	stdout  bytes.Buffer
	stderr  bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, name := range []string{
		"PCMTONE_DEVICE", "PCMTONE_AUDIO_BACKEND", "PCMTONE_FREQUENCY", "PCMTONE_DURATION",
		"PCMTONE_VOLUME", "PCMTONE_LOG_LEVEL", "PCMTONE_HISTORY", "PCMTONE_HISTORY_DB",
	} {
		t.Setenv(name, "")
	}

	backend := audio.NewNullBackend()
	return &testEnv{
		t:       t,
		xdg:     &testXDG{root: t.TempDir()},
		fs:      afero.NewMemMapFs(),
		backend: backend,
		factory: &stubFactory{backend: &reusableBackend{NullBackend: backend}},
	}
}

// run builds a fresh CLI (cobra flags keep state between executions) and
// runs it with args
func (e *testEnv) run(args ...string) int {
	e.stdout.Reset()
	e.stderr.Reset()
	c := NewCLI(
		WithConfigManager(config.NewConfigManagerWithDependencies(e.xdg, e.fs)),
		WithBackendFactory(e.factory),
		WithFilesystem(e.fs),
		WithTerminalDetector(&fakeTerminal{}),
		WithClock(func() time.Time { return testClock }),
	)
	return c.Run(append([]string{"pcmtone"}, args...), strings.NewReader(""), &e.stdout, &e.stderr)
}

func (e *testEnv) historyPath() string {
	return filepath.Join(e.xdg.GetCachePath(""), "history.db")
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	code := env.run("--version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "pcmtone version "+Version+"\n", env.stdout.String())
	assert.Empty(t, env.factory.created, "version must not touch the audio system")
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	code := env.run("explode")
	assert.Equal(t, 1, code)
	assert.Contains(t, env.stderr.String(), "Error:")
}

func TestInvalidFlagValue(t *testing.T) {
	env := newTestEnv(t)
	code := env.run("play", "--rate", "fast")
	assert.Equal(t, 1, code)
	assert.Nil(t, env.backend.LastStream())
}

func TestInvalidConfigurationAggregatesProblems(t *testing.T) {
	env := newTestEnv(t)
	code := env.run("play", "--volume", "3", "--repeat", "0", "--format", "s24")
	assert.Equal(t, 1, code)

	msg := env.stderr.String()
	assert.Contains(t, msg, "volume must be between 0.0 and 1.0")
	assert.Contains(t, msg, "repeat must be at least 1")
	assert.Contains(t, msg, "s24")
	assert.Equal(t, 1, strings.Count(msg, "\n"))
	assert.Nil(t, env.backend.LastStream(), "device must not be opened")
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	env := newTestEnv(t)
	cm := config.NewConfigManagerWithDependencies(env.xdg, env.fs)

	cfg := cm.GetDefaultConfig()
	cfg.SampleRate = 8000
	cfg.DurationSeconds = 1
	cfg.Device = "hw:from-file"
	require.NoError(t, cm.SaveToFile(cfg, filepath.Join(env.xdg.root, "config", "config.json")))

	t.Setenv("PCMTONE_DEVICE", "hw:from-env")

	code := env.run("play", "--duration", "0.5", "--no-history")
	require.Equal(t, 0, code, env.stderr.String())

	stream := env.backend.LastStream()
	require.NotNil(t, stream)
	assert.Equal(t, "hw:from-env", stream.Name())

	hw, ok := stream.Config()
	require.True(t, ok)
	assert.Equal(t, uint32(8000), hw.Rate, "rate comes from the file")
	assert.Len(t, stream.Bytes(), 8000, "duration flag wins: 4000 frames of 2 bytes")
}

func TestExplicitConfigFileMissing(t *testing.T) {
	env := newTestEnv(t)
	code := env.run("play", "--config", "/nowhere/config.json")
	assert.Equal(t, 1, code)
	assert.Contains(t, env.stderr.String(), "error loading config")
}

func TestLogLevelWritesToStderr(t *testing.T) {
	env := newTestEnv(t)
	code := env.run("play", "--duration", "0.1", "--log-level", "info", "--no-history")
	require.Equal(t, 0, code)
	assert.Contains(t, env.stderr.String(), "playback complete")
}

func TestFileLoggingWritesToCache(t *testing.T) {
	env := newTestEnv(t)
	code := env.run("play", "--duration", "0.1", "--no-history")
	require.Equal(t, 0, code)

	assert.Empty(t, env.stderr.String())
	data, err := os.ReadFile(filepath.Join(env.xdg.GetCachePath("logs"), "pcmtone.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "playback complete")
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "a; b", singleLine("a\nb\n"))
	assert.Equal(t, "plain", singleLine("plain"))
}
