package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atelier/studio/internal/config"
	"github.com/atelier/studio/internal/events"
	"github.com/atelier/studio/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct{ err error }

func (f fakeStore) Ping() error { return f.err }

type fakeBroker bool

func (b fakeBroker) IsHealthy() bool { return bool(b) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		store  fakeStore
		broker fakeBroker
		code   int
		body   string
	}{
		{"healthy", fakeStore{}, true, http.StatusOK, "healthy"},
		{"store down", fakeStore{err: errors.New("dial tcp: refused")}, true, http.StatusServiceUnavailable, "unhealthy: store connection failed"},
		{"broker down", fakeStore{}, false, http.StatusOK, "healthy: notifications degraded"},
		{"store and broker down", fakeStore{err: errors.New("dial tcp: refused")}, false, http.StatusServiceUnavailable, "unhealthy: store connection failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			healthHandler(tt.store, tt.broker, nil, zap.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestHealthHandlerExportsBrokerState(t *testing.T) {
	m := metrics.New("test")
	rec := httptest.NewRecorder()

	healthHandler(fakeStore{}, fakeBroker(false), m, zap.NewNop())(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, scrape.Body.String(), `atelier_broker_up{service="test"} 0`)
}

func TestConnectNotifierWithoutBroker(t *testing.T) {
	n := connectNotifier(&config.Config{}, zap.NewNop())

	_, ok := n.(events.NoopNotifier)
	assert.True(t, ok)
	assert.True(t, n.IsHealthy())
}

func TestLoadConfigFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_URL", ":memory:")
	t.Setenv("STORE_AUTO_MIGRATE", "false")
	t.Setenv("LOG_LEVEL", "info")

	cmd := rootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--migrate", "--log-level", "debug"}))

	cfg, err := loadConfig(cmd, flags{logLevel: "debug", migrate: true})
	require.NoError(t, err)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STORE_DRIVER", "mysql")

	_, err := loadConfig(rootCmd(), flags{})
	assert.ErrorContains(t, err, "unsupported STORE_DRIVER")
}
