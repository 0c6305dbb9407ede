package container

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-bridge-go/config"
	"market-bridge-go/infrastructure/logger"
)

func clearVendorEnv(t *testing.T) {
	t.Helper()
	groups := [][]string{
		config.APIKeyEnvNames, config.APISecretEnvNames, config.BaseURLEnvNames,
		config.FeedEnvNames, config.SymbolsEnvNames,
	}
	for _, names := range groups {
		for _, n := range names {
			t.Setenv(n, "")
		}
	}
}

func TestNewFailsWithoutCredentials(t *testing.T) {
	clearVendorEnv(t)
	c, err := New("")
	require.Error(t, err)
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, config.ErrMissingCredentials))
}

func testConfig() config.AppConfig {
	cfg := config.Default()
	cfg.Alpaca.APIKey = "key"
	cfg.Alpaca.APISecret = "secret"
	// 不可达地址：行情流停留在 connecting/backoff 之间
	cfg.Stream.URL = "ws://127.0.0.1:1"
	cfg.Stream.ReconnectDelay = 50 * time.Millisecond
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.HTTP.MetricsAddr = "127.0.0.1:0"
	return cfg
}

type notifyRecorder struct {
	mu     sync.Mutex
	states []string
}

func (n *notifyRecorder) notify(state string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
	return false, nil
}

func fetch(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestContainerStartServeStop(t *testing.T) {
	c := NewWithConfig(testConfig(), "")
	rec := &notifyRecorder{}
	c.notify = rec.notify
	require.NoError(t, c.Build())

	require.NoError(t, c.Start(context.Background()))
	require.NotEmpty(t, c.APIAddr())
	require.NotEmpty(t, c.MetricsAddr())
	assert.NoError(t, c.HealthCheck())

	code, body := fetch(t, "http://"+c.APIAddr()+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"credentials_configured":true`)

	code, body = fetch(t, "http://"+c.APIAddr()+"/quote?symbol=SPY")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"detail":"No quote received yet for SPY."}`, body)

	code, body = fetch(t, "http://"+c.MetricsAddr()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "bridge_http_requests_total")

	require.NoError(t, c.Stop())
	assert.Equal(t, []string{"READY=1", "STOPPING=1"}, rec.states)

	_, err := http.Get("http://" + c.APIAddr() + "/health")
	assert.Error(t, err)
}

func TestMetricsListenerDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.MetricsAddr = ""
	c := NewWithConfig(cfg, "")
	c.notify = (&notifyRecorder{}).notify
	require.NoError(t, c.Build())
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	assert.Empty(t, c.MetricsAddr())
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	first := NewWithConfig(testConfig(), "")
	first.notify = (&notifyRecorder{}).notify
	require.NoError(t, first.Build())
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop()

	cfg := testConfig()
	cfg.HTTP.Addr = first.APIAddr()
	second := NewWithConfig(cfg, "")
	rec := &notifyRecorder{}
	second.notify = rec.notify
	require.NoError(t, second.Build())
	err := second.Start(context.Background())
	require.Error(t, err)
	assert.Empty(t, rec.states)
}

func TestConfigReloadAppliesLogLevel(t *testing.T) {
	clearVendorEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alpaca:\n  api_key: k\n  api_secret: s\n"), 0o644))

	cfg := testConfig()
	c := NewWithConfig(cfg, path)
	c.logger = logger.NewNop()

	next := cfg
	next.Log.Level = "debug"
	next.Alpaca.Symbols = []string{"SPY", "QQQ"}
	c.onConfigReload(next)

	assert.Equal(t, "debug", c.logger.Level())
	got := c.Config()
	assert.Equal(t, "debug", got.Log.Level)
	assert.Equal(t, []string{"SPY"}, got.Alpaca.Symbols)
}

func TestLifecycleRollback(t *testing.T) {
	m := NewLifecycleManager()
	a := &fakeComponent{}
	b := &fakeComponent{startErr: errors.New("boom")}
	m.Register(a)
	m.Register(b)

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.True(t, a.started)
	assert.True(t, a.stopped)
	assert.False(t, b.stopped)
}

type fakeComponent struct {
	startErr         error
	started, stopped bool
}

func (f *fakeComponent) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeComponent) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeComponent) Health() error { return nil }
