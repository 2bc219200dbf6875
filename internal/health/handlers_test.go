package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bundle-quote/internal/catalog"
	"github.com/noah-isme/bundle-quote/internal/health"
)

type stubChecker struct {
	catalogErr error
	redisErr   error
}

func (s stubChecker) PingCatalog(context.Context, time.Duration) error { return s.catalogErr }
func (s stubChecker) PingRedis(context.Context, time.Duration) error   { return s.redisErr }

func readyStatus(t *testing.T, handler health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return rr.Code, status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadySuccess(t *testing.T) {
	code, status := readyStatus(t, health.Handler{Checker: stubChecker{}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"catalog": "ok", "redis": "ok"}, status)
}

func TestReadyToleratesDisabledRedis(t *testing.T) {
	code, status := readyStatus(t, health.Handler{Checker: stubChecker{redisErr: health.ErrDisabled}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "disabled", status["redis"])
}

func TestReadyFailure(t *testing.T) {
	code, status := readyStatus(t, health.Handler{Checker: stubChecker{catalogErr: errors.New("catalog missing")}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "catalog missing", status["catalog"])
}

func TestReadinessAfterShutdown(t *testing.T) {
	handler := health.Handler{Checker: stubChecker{}}
	t.Cleanup(func() { health.SetReady(true) })

	health.SetReady(false)
	code, _ := readyStatus(t, handler)
	require.Equal(t, http.StatusServiceUnavailable, code)

	health.SetReady(true)
	code, _ = readyStatus(t, handler)
	require.Equal(t, http.StatusOK, code)
}

func TestDependenciesCheckRealBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	deps := health.Dependencies{
		Catalog: catalog.NewCached(catalog.EmbeddedSource{}),
		Redis:   client,
	}
	ctx := context.Background()
	require.NoError(t, deps.PingCatalog(ctx, time.Second))
	require.NoError(t, deps.PingRedis(ctx, time.Second))

	require.ErrorIs(t, health.Dependencies{}.PingRedis(ctx, time.Second), health.ErrDisabled)
	require.Error(t, health.Dependencies{}.PingCatalog(ctx, time.Second))
}
