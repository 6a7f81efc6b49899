package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/config"
	redisrepo "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository/redis"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/http/middleware"
	httproutes "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/http/routes"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/usecase"
)

type rejectingService struct{}

func (rejectingService) Authenticate(context.Context, string) (domain.TokenClaims, error) {
	return domain.TokenClaims{}, usecase.ErrTokenMalformed
}

func (rejectingService) Login(context.Context, usecase.LoginInput) (*usecase.LoginResult, error) {
	return nil, usecase.ErrInvalidCredentials
}

func (rejectingService) Refresh(context.Context, string, domain.DeviceInfo) (*usecase.RefreshResult, error) {
	return nil, usecase.ErrTokenMalformed
}

func (rejectingService) Logout(context.Context, domain.TokenClaims) error { return nil }

func (rejectingService) LogoutAll(context.Context, domain.TokenClaims, bool) (*usecase.LogoutAllResult, error) {
	return &usecase.LogoutAllResult{}, nil
}

func (rejectingService) ListSessions(context.Context, domain.TokenClaims) ([]domain.SessionView, error) {
	return nil, nil
}

func (rejectingService) RevokeSession(context.Context, domain.TokenClaims, string) error { return nil }

func (rejectingService) Validate(context.Context, string) usecase.ValidationResult {
	return usecase.ValidationResult{Err: usecase.ErrTokenMalformed}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error        { return f(ctx) }
func (f pingFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadinessReportsDatabaseOutage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config:   &config.AppConfig{},
		Logger:   zaptest.NewLogger(t),
		Database: pingFunc(func(context.Context) error { return errors.New("connection refused") }),
		Cache:    pingFunc(func(context.Context) error { return nil }),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.AppConfig{RateLimit: config.RateLimitSettings{LoginMaxAttempts: 2, WindowDuration: time.Minute}}
	limiter := middleware.NewRateLimiter(redisrepo.NewRateLimitRepository(client, "tokens"), zaptest.NewLogger(t))

	r := httproutes.Register(httproutes.Dependencies{
		Config:      cfg,
		Logger:      zaptest.NewLogger(t),
		Auth:        rejectingService{},
		RateLimiter: limiter,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"ada@example.com","password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 401, 401, 429, got %v", codes)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config: &config.AppConfig{},
		Logger: zaptest.NewLogger(t),
		Auth:   rejectingService{},
	})

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/sessions"},
		{http.MethodDelete, "/api/v1/sessions/abc"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodPost, "/api/v1/auth/logout-all"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, w.Code)
		}
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewHTTPMetrics returned error: %v", err)
	}

	r := httproutes.Register(httproutes.Dependencies{
		Config:         &config.AppConfig{},
		Logger:         zaptest.NewLogger(t),
		HTTPMetrics:    httpMetrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "tokens_http_requests_total") {
		t.Fatalf("expected http metrics to be exposed, got %d", w.Code)
	}
}
