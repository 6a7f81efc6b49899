package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/usecase"
)

type stubAuthenticator struct {
	err error
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (domain.TokenClaims, error) {
	if s.err != nil {
		return domain.TokenClaims{}, s.err
	}
	return domain.TokenClaims{UserID: "user-1", JTI: token, SessionID: "session-1"}, nil
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		header string
		err    error
		want   int
	}{
		{name: "valid", header: "Bearer abc", want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer abc", want: http.StatusOK},
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "revoked", header: "Bearer abc", err: usecase.ErrTokenRevoked, want: http.StatusUnauthorized},
		{name: "outdated", header: "Bearer abc", err: usecase.ErrTokenVersionOutdated, want: http.StatusUnauthorized},
		{name: "store outage", header: "Bearer abc", err: usecase.ErrRevocationUnavailable, want: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(EnrichContext())
			r.GET("/me", RequireAuth(stubAuthenticator{err: tc.err}), func(c *gin.Context) {
				claims, ok := GetClaims(c)
				if !ok || claims.JTI != "abc" {
					c.Status(http.StatusTeapot)
					return
				}
				if id, _ := GetAuthenticatedUserID(c); id != "user-1" {
					c.Status(http.StatusTeapot)
					return
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
			if rr.Header().Get(TraceIDHeader) == "" {
				t.Fatalf("expected trace id header to be set")
			}
		})
	}
}

func TestEnrichContextKeepsCallerTraceIDWithoutTracer(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(EnrichContext())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "caller-trace")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Body.String() != "caller-trace" {
		t.Fatalf("expected caller trace id to be echoed, got %q", rr.Body.String())
	}
}
