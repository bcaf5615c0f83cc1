package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/morikuni/failure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-etl/internal/config"
	"github.com/JakeFAU/wayback-etl/internal/pipeline"
	"github.com/JakeFAU/wayback-etl/internal/wayback"
)

type fakeApp struct {
	urls   []string
	runErr error
	closed bool
	ctxErr error
}

func (f *fakeApp) Run(_ context.Context, urls []string) (pipeline.Summary, error) {
	f.urls = urls
	return pipeline.Summary{Records: len(urls) * 3}, f.runErr
}

func (f *fakeApp) RunID() string { return "run-test" }

func (f *fakeApp) Close(ctx context.Context) error {
	f.closed = true
	f.ctxErr = ctx.Err()
	return nil
}

func withFakeApp(t *testing.T, fake *fakeApp) *config.Config {
	t.Helper()
	var got config.Config
	origApp, origLogger := newApp, newLogger
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		got = cfg
		return fake, nil
	}
	newLogger = func(bool, string) (*zap.Logger, error) { return zap.NewNop(), nil }
	t.Cleanup(func() {
		newApp, newLogger = origApp, origLogger
	})
	return &got
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestRootUsesDefaultURLs(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	require.NoError(t, execute())
	assert.Equal(t, []string{"https://example.com"}, fake.urls)
	assert.True(t, fake.closed)
}

func TestRootPassesArgumentURLs(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	require.NoError(t, execute("https://go.dev", "https://golang.org"))
	assert.Equal(t, []string{"https://go.dev", "https://golang.org"}, fake.urls)
}

func TestRootClosesAppWhenRunFails(t *testing.T) {
	fake := &fakeApp{runErr: failure.New(wayback.ErrFetchExhausted, failure.Message("archive unreachable"))}
	withFakeApp(t, fake)

	err := execute("https://example.com")
	require.Error(t, err)
	assert.True(t, failure.Is(err, wayback.ErrFetchExhausted))
	assert.True(t, fake.closed)
	assert.NoError(t, fake.ctxErr)
	assert.Equal(t, "archive unreachable", userMessage(err))
}

func TestRootReadsConfigFile(t *testing.T) {
	fake := &fakeApp{}
	got := withFakeApp(t, fake)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mongo:\n  database: archive\n  collection: snapshots\n"), 0o600))

	require.NoError(t, execute("--config", path))
	assert.Equal(t, "archive", got.Mongo.Database)
	assert.Equal(t, "snapshots", got.Mongo.Collection)
}

func TestRootRejectsMissingConfigFile(t *testing.T) {
	fake := &fakeApp{}
	withFakeApp(t, fake)

	err := execute("--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
	assert.False(t, fake.closed)
}

func TestRootReportsAppInitFailure(t *testing.T) {
	withFakeApp(t, &fakeApp{})
	newApp = func(context.Context, config.Config, *zap.Logger) (App, error) {
		return nil, errors.New("mongo store init failed")
	}

	require.ErrorContains(t, execute(), "mongo store init failed")
}

func TestUserMessageFallsBackToError(t *testing.T) {
	assert.Equal(t, "plain", userMessage(errors.New("plain")))
}
