package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	redisrepo "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository/redis"
)

type fakeRateLimitStore struct {
	window redisrepo.RateLimitWindow
	err    error
	keys   []string
}

func (f *fakeRateLimitStore) Hit(_ context.Context, identifier string, _ time.Duration, _ time.Time) (redisrepo.RateLimitWindow, error) {
	f.keys = append(f.keys, identifier)
	return f.window, f.err
}

func newLimitedRouter(t *testing.T, store RateLimitStore, now time.Time) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })

	router := gin.New()
	router.POST("/login", limiter.RateLimit(RateLimitRule{
		Name:   "login",
		Limit:  5,
		Window: time.Minute,
		Identifier: func(c *gin.Context) (string, bool) {
			return "192.0.2.1", true
		},
	}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	oldest := now.Add(-30 * time.Second)
	store := &fakeRateLimitStore{window: redisrepo.RateLimitWindow{Count: 3, Oldest: oldest}}

	rr := httptest.NewRecorder()
	newLimitedRouter(t, store, now).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(store.keys) != 1 || store.keys[0] != "login:192.0.2.1" {
		t.Fatalf("unexpected store keys %v", store.keys)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Fatalf("expected remaining header 2, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != strconv.FormatInt(oldest.Add(time.Minute).Unix(), 10) {
		t.Fatalf("unexpected reset header %q", got)
	}
	if got := rr.Header().Get("Retry-After"); got != "" {
		t.Fatalf("expected no retry-after header, got %q", got)
	}
}

func TestRateLimiterBlocksWhenLimitExceeded(t *testing.T) {
	now := time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)
	store := &fakeRateLimitStore{window: redisrepo.RateLimitWindow{Count: 6, Oldest: now.Add(-30 * time.Second)}}

	rr := httptest.NewRecorder()
	newLimitedRouter(t, store, now).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected retry-after 30, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests || problem.RetryAfter != 30 || problem.Instance != "/login" {
		t.Fatalf("unexpected problem %+v", problem)
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	store := &fakeRateLimitStore{err: errors.New("redis down")}

	rr := httptest.NewRecorder()
	newLimitedRouter(t, store, time.Now()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected store failure to let the request through, got %d", rr.Code)
	}
}
