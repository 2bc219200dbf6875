package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/bundle-quote/internal/catalog"
	"github.com/noah-isme/bundle-quote/internal/common"
)

// ErrDisabled marks an optional dependency that is not configured.
var ErrDisabled = errors.New("disabled")

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles readiness, e.g. while draining during shutdown.
func SetReady(v bool) { ready.Store(v) }

// Checker represents dependencies that can be checked for readiness.
type Checker interface {
	PingCatalog(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// CatalogGetter resolves the pricing catalog.
type CatalogGetter interface {
	Get(ctx context.Context) (*catalog.Catalog, error)
}

// Dependencies is the production Checker. A nil Redis reports ErrDisabled.
type Dependencies struct {
	Catalog CatalogGetter
	Redis   *redis.Client
}

// PingCatalog loads the catalog if it has not been loaded yet.
func (d Dependencies) PingCatalog(ctx context.Context, timeout time.Duration) error {
	if d.Catalog == nil {
		return errors.New("catalog not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := d.Catalog.Get(ctx)
	return err
}

// PingRedis issues PING against the configured client.
func (d Dependencies) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker        Checker
	CatalogTimeout time.Duration
	RedisTimeout   time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency checks. A disabled Redis does not
// fail readiness.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil || !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	ctx := r.Context()
	status := map[string]string{
		"catalog": checkStatus(h.Checker.PingCatalog(ctx, orDefault(h.CatalogTimeout, 2*time.Second))),
		"redis":   checkStatus(h.Checker.PingRedis(ctx, orDefault(h.RedisTimeout, 300*time.Millisecond))),
	}
	code := http.StatusOK
	for _, s := range status {
		if s != "ok" && s != ErrDisabled.Error() {
			code = http.StatusServiceUnavailable
		}
	}
	common.JSON(w, code, status)
}

func checkStatus(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
