package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sirosfoundation/go-listener-manager/internal/api"
	"github.com/sirosfoundation/go-listener-manager/internal/configstore"
	"github.com/sirosfoundation/go-listener-manager/internal/events"
	"github.com/sirosfoundation/go-listener-manager/internal/listener"
	"github.com/sirosfoundation/go-listener-manager/internal/logstore"
	"github.com/sirosfoundation/go-listener-manager/internal/supervisor"
	"github.com/sirosfoundation/go-listener-manager/internal/websocket"
	"github.com/sirosfoundation/go-listener-manager/pkg/config"
)

const testToken = "test-admin-token"

func newTestHandlers(t *testing.T) *api.Handlers {
	t.Helper()

	logger := zap.NewNop()
	router := events.NewRouter(logger)
	hub := websocket.NewHub(logger)

	registry, err := supervisor.New(supervisor.Options{
		Router:   router,
		Logs:     logstore.New(filepath.Join(t.TempDir(), "logs"), logger),
		Listener: listener.Options{BindHost: "127.0.0.1", GracePeriod: time.Second},
		Notify:   hub.Broadcast,
		Logger:   logger,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = registry.ShutdownAll(context.Background())
		hub.Close()
		router.Close()
	})

	return api.NewHandlers(registry, configstore.NewMemoryStore(), hub, logger)
}

func startManager(t *testing.T, rl config.RateLimitConfig) (*Manager, string) {
	t.Helper()
	return startManagerWithLogger(t, rl, zap.NewNop())
}

func startManagerWithLogger(t *testing.T, rl config.RateLimitConfig, logger *zap.Logger) (*Manager, string) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Port = 0
	serverCfg := ServerConfigFrom(cfg)
	serverCfg.Address = "127.0.0.1:0"

	mgr := NewManager(serverCfg, logger)
	mgr.AddProvider(NewAdminProvider(newTestHandlers(t), testToken, rl, zap.NewNop()))
	require.NoError(t, mgr.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})

	return mgr, fmt.Sprintf("http://%s", mgr.Addr().String())
}

func get(t *testing.T, url, token string) (int, http.Header) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, resp.Header
}

func TestManager_StatusIsPublic(t *testing.T) {
	_, base := startManager(t, config.RateLimitConfig{})

	for _, path := range []string{"/status", "/health"} {
		status, _ := get(t, base+path, "")
		assert.Equal(t, http.StatusOK, status, path)
	}
}

func TestManager_APIRequiresToken(t *testing.T) {
	_, base := startManager(t, config.RateLimitConfig{})

	status, _ := get(t, base+"/api/servers", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = get(t, base+"/api/servers", "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = get(t, base+"/api/servers", testToken)
	assert.Equal(t, http.StatusOK, status)
}

func TestManager_QueryTokenOnlyOnEventStream(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	_, base := startManagerWithLogger(t, config.RateLimitConfig{}, zap.New(core))

	status, _ := get(t, base+"/api/servers?token="+testToken, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = get(t, base+"/api/events?token=wrong", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	wsURL := strings.Replace(base, "http://", "ws://", 1) + "/api/events?token=" + testToken
	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("Request").Len() >= 3
	}, 5*time.Second, 20*time.Millisecond)

	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, testToken)
		for key, value := range entry.ContextMap() {
			assert.NotContains(t, fmt.Sprint(value), testToken, "field %s of %q", key, entry.Message)
		}
	}
}

func TestManager_RateLimit(t *testing.T) {
	_, base := startManager(t, config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, BurstSize: 2})

	for i := 0; i < 2; i++ {
		status, _ := get(t, base+"/api/servers", testToken)
		require.Equal(t, http.StatusOK, status)
	}

	status, header := get(t, base+"/api/servers", testToken)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.NotEmpty(t, header.Get("Retry-After"))

	// Status endpoints are not limited
	status, _ = get(t, base+"/status", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestManager_CORS(t *testing.T) {
	_, base := startManager(t, config.RateLimitConfig{})

	req, err := http.NewRequest(http.MethodOptions, base+"/api/servers", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestManager_StartBindError(t *testing.T) {
	mgr, _ := startManager(t, config.RateLimitConfig{})

	other := NewManager(&ServerConfig{Address: mgr.Addr().String()}, zap.NewNop())
	err := other.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestManager_Shutdown(t *testing.T) {
	mgr, base := startManager(t, config.RateLimitConfig{Enabled: true})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(ctx))

	_, err := http.Get(base + "/status")
	assert.Error(t, err)
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	mgr := NewManager(&ServerConfig{Address: "127.0.0.1:0"}, zap.NewNop())
	assert.NoError(t, mgr.Shutdown(context.Background()))
	assert.Nil(t, mgr.Addr())
}

func TestResolveAdminToken(t *testing.T) {
	token, err := ResolveAdminToken("fixed", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "fixed", token)

	core, logs := observer.New(zap.InfoLevel)
	token, err = ResolveAdminToken("", zap.New(core))
	require.NoError(t, err)
	assert.Len(t, token, 64)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, token, logs.All()[0].ContextMap()["token"])
}
