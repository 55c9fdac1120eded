package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("INVENTORY_MAX_RETRIES", "5")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.InventoryMaxRetries)
	require.Equal(t, 30*time.Minute, cfg.InventoryReservationTTL)
	require.Equal(t, 10*time.Millisecond, cfg.InventoryRetryBackoff)
	require.Equal(t, "@every 1m", cfg.InventorySweepSpec)
	require.Equal(t, "inventory.alerts", cfg.AlertChannel)
	require.False(t, cfg.IsProduction())
	require.Equal(t, cfg.RedisAddr, cfg.Redis().Addr)
}

func TestLoadConfigRejectsNegativeRetries(t *testing.T) {
	t.Setenv("INVENTORY_MAX_RETRIES", "-1")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigAllowsReservationsWithoutExpiry(t *testing.T) {
	t.Setenv("INVENTORY_DEFAULT_RESERVATION_TTL", "0s")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Zero(t, cfg.InventoryReservationTTL)

	t.Setenv("INVENTORY_DEFAULT_RESERVATION_TTL", "-1m")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsNegativeBackoff(t *testing.T) {
	t.Setenv("INVENTORY_RETRY_BACKOFF", "-5ms")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestJSONLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("dropped")
	logger.Warn("kept", slog.String("variant", "v-1"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "kept", entry["msg"])
	require.Equal(t, "v-1", entry["variant"])
}

func TestActorMiddlewareStoresHeader(t *testing.T) {
	var seen string
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(shared.ActorHeader, "picker-12")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "picker-12", seen)
}

func TestRouterHealthAndReadiness(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	router := NewRouter(RouterParams{
		Logger:  logger,
		Config:  &Config{AppRequestTimeout: time.Second},
		Metrics: observability.NewMetrics(),
		Readiness: map[string]Pinger{
			"postgres": PingFunc(func(context.Context) error { return nil }),
			"redis":    PingFunc(func(context.Context) error { return errors.New("down") }),
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body["postgres"])
	require.Equal(t, "unavailable", body["redis"])

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
