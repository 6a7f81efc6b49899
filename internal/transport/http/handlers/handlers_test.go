package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/usecase"
)

func newTestRouter(t *testing.T, svc *stubLifecycle) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	api := r.Group("/api/v1")
	NewAuthHandler(svc, zaptest.NewLogger(t)).RegisterRoutes(api.Group("/auth"))
	NewSessionHandler(svc).RegisterRoutes(api.Group("/sessions"))
	NewTokenHandler(svc).RegisterRoutes(api.Group("/tokens"))
	return r
}

func doJSON(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handlers-test")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestLoginIssuesTokens(t *testing.T) {
	svc := newStubLifecycle()
	r := newTestRouter(t, svc)

	rr := doJSON(r, http.MethodPost, "/api/v1/auth/login", "", AuthLoginRequest{
		Email:      " ada@example.com ",
		Password:   "secret",
		RememberMe: true,
		DeviceID:   "laptop",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp TokenResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.AccessToken != validAccessToken {
		t.Fatalf("unexpected token response %+v", resp)
	}
	if resp.ExpiresIn <= 0 || resp.RefreshExpiresIn <= resp.ExpiresIn {
		t.Fatalf("unexpected lifetimes access=%d refresh=%d", resp.ExpiresIn, resp.RefreshExpiresIn)
	}
	if resp.Session == nil || !resp.Session.IsCurrent {
		t.Fatalf("expected the new session to be returned as current, got %+v", resp.Session)
	}

	if svc.loginInput.Email != "ada@example.com" || !svc.loginInput.RememberMe {
		t.Fatalf("unexpected login input %+v", svc.loginInput)
	}
	if svc.loginInput.Device.UserAgent != "handlers-test" || svc.loginInput.Device.DeviceID == nil || *svc.loginInput.Device.DeviceID != "laptop" {
		t.Fatalf("expected device info from the request, got %+v", svc.loginInput.Device)
	}
}

func TestLoginErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body any
		want int
	}{
		{name: "missing fields", body: map[string]string{"email": "ada@example.com"}, want: http.StatusBadRequest},
		{name: "bad credentials", err: usecase.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{name: "invalid input", err: fmt.Errorf("%w: password", usecase.ErrInvalidInput), want: http.StatusBadRequest},
		{name: "signing failure", err: usecase.ErrTokenSigning, want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newStubLifecycle()
			svc.loginErr = tc.err
			body := tc.body
			if body == nil {
				body = AuthLoginRequest{Email: "ada@example.com", Password: "secret"}
			}

			rr := doJSON(newTestRouter(t, svc), http.MethodPost, "/api/v1/auth/login", "", body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRefreshMapsLifecycleErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: nil, want: http.StatusOK},
		{err: usecase.ErrTokenRevoked, want: http.StatusUnauthorized},
		{err: usecase.ErrWrongTokenType, want: http.StatusUnauthorized},
		{err: usecase.ErrRevocationUnavailable, want: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		svc := newStubLifecycle()
		svc.refreshErr = tc.err
		rr := doJSON(newTestRouter(t, svc), http.MethodPost, "/api/v1/auth/refresh", "", TokenRefreshRequest{RefreshToken: "refresh-token"})
		if rr.Code != tc.want {
			t.Fatalf("err=%v: expected %d, got %d", tc.err, tc.want, rr.Code)
		}
	}
}

func TestLogoutRequiresAuthentication(t *testing.T) {
	svc := newStubLifecycle()
	r := newTestRouter(t, svc)

	if rr := doJSON(r, http.MethodPost, "/api/v1/auth/logout", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := doJSON(r, http.MethodPost, "/api/v1/auth/logout", validAccessToken, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if svc.logoutCalls != 1 {
		t.Fatalf("expected one logout call, got %d", svc.logoutCalls)
	}
}

func TestLogoutAll(t *testing.T) {
	svc := newStubLifecycle()
	r := newTestRouter(t, svc)

	rr := doJSON(r, http.MethodPost, "/api/v1/auth/logout-all", validAccessToken, LogoutAllRequest{KeepCurrent: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp LogoutAllResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.RevokedCount != 2 {
		t.Fatalf("unexpected response %s err=%v", rr.Body.String(), err)
	}
	if !svc.keepCurrent {
		t.Fatalf("expected keep_current to be forwarded")
	}
	if resp.Tokens == nil || resp.Tokens.AccessToken != "access-token-kept" || resp.Tokens.RefreshToken != "refresh-token-kept" {
		t.Fatalf("expected the reissued pair in the response, got %+v", resp.Tokens)
	}

	rr = doJSON(r, http.MethodPost, "/api/v1/auth/logout-all", validAccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for an empty body, got %d", rr.Code)
	}
	resp = LogoutAllResponse{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Tokens != nil || svc.keepCurrent {
		t.Fatalf("expected defaults for an empty body, got %s err=%v", rr.Body.String(), err)
	}

	svc.logoutAllErr = usecase.ErrRevocationUnavailable
	if rr := doJSON(r, http.MethodPost, "/api/v1/auth/logout-all", validAccessToken, nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the version bump is lost, got %d", rr.Code)
	}
}

func TestLogoutAllReadsChunkedBody(t *testing.T) {
	svc := newStubLifecycle()
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout-all", io.MultiReader(strings.NewReader(`{"keep_current":true}`)))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+validAccessToken)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !svc.keepCurrent {
		t.Fatalf("expected keep_current from a body without a declared length")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout-all", io.MultiReader(strings.NewReader(`{"keep_current":`)))
	req.ContentLength = -1
	req.Header.Set("Authorization", "Bearer "+validAccessToken)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a truncated body, got %d", rr.Code)
	}
	if svc.logoutAllCalls != 1 {
		t.Fatalf("expected the truncated body to stop before logout-all, got %d calls", svc.logoutAllCalls)
	}
}

func TestAuthenticationOutageIsUnavailable(t *testing.T) {
	svc := newStubLifecycle()
	svc.authErr = usecase.ErrRevocationUnavailable

	rr := doJSON(newTestRouter(t, svc), http.MethodGet, "/api/v1/sessions", validAccessToken, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestListSessions(t *testing.T) {
	svc := newStubLifecycle()
	svc.sessions = []domain.SessionView{
		{Session: domain.Session{ID: "session-1", UserID: "user-1"}, IsCurrent: true},
		{Session: domain.Session{ID: "session-2", UserID: "user-1"}},
	}

	rr := doJSON(newTestRouter(t, svc), http.MethodGet, "/api/v1/sessions", validAccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp SessionListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 2 || !resp.Sessions[0].IsCurrent || resp.Sessions[1].IsCurrent {
		t.Fatalf("unexpected sessions %+v", resp)
	}
}

func TestRevokeSession(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "revoked", want: http.StatusOK},
		{name: "current session", err: usecase.ErrCannotRevokeCurrentSession, want: http.StatusForbidden},
		{name: "unknown session", err: usecase.ErrSessionNotFound, want: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newStubLifecycle()
			svc.revokeErr = tc.err

			rr := doJSON(newTestRouter(t, svc), http.MethodDelete, "/api/v1/sessions/session-2", validAccessToken, nil)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if svc.revokedID != "session-2" {
				t.Fatalf("expected path id to be forwarded, got %q", svc.revokedID)
			}
		})
	}
}

func TestValidateReportsInBand(t *testing.T) {
	cases := []struct {
		name      string
		result    usecase.ValidationResult
		wantCode  int
		wantValid bool
	}{
		{name: "valid", result: usecase.ValidationResult{Valid: true, Payload: domain.TokenPayload{UserID: "user-1"}}, wantCode: http.StatusOK, wantValid: true},
		{name: "revoked", result: usecase.ValidationResult{Err: usecase.ErrTokenRevoked}, wantCode: http.StatusOK},
		{name: "outage", result: usecase.ValidationResult{Err: usecase.ErrRevocationUnavailable}, wantCode: http.StatusServiceUnavailable},
		{name: "unexpected", result: usecase.ValidationResult{Err: errors.New("boom")}, wantCode: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newStubLifecycle()
			svc.validation = tc.result

			rr := doJSON(newTestRouter(t, svc), http.MethodPost, "/api/v1/tokens/validate", "", TokenValidateRequest{Token: "whatever"})
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if rr.Code != http.StatusOK {
				return
			}
			var resp TokenValidateResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Valid != tc.wantValid {
				t.Fatalf("expected valid=%v, got %+v", tc.wantValid, resp)
			}
			if !resp.Valid && resp.Error == "" {
				t.Fatalf("expected a rejection reason")
			}
		})
	}
}

type staticJWKS struct {
	payload []byte
	err     error
}

func (s staticJWKS) JWKS() ([]byte, error) { return s.payload, s.err }

func TestJWKSKeys(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/jwks", NewJWKSHandler(staticJWKS{payload: []byte(`{"keys":[]}`)}).Keys)
	r.GET("/broken", NewJWKSHandler(staticJWKS{err: errors.New("no keys")}).Keys)
	r.GET("/missing", NewJWKSHandler(nil).Keys)

	rr := doJSON(r, http.MethodGet, "/jwks", "", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Cache-Control") != jwksCacheControl {
		t.Fatalf("unexpected jwks response %d %v", rr.Code, rr.Header())
	}
	if rr := doJSON(r, http.MethodGet, "/broken", "", nil); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if rr := doJSON(r, http.MethodGet, "/missing", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	failing := func(context.Context) error { return errors.New("down") }
	healthy := func(context.Context) error { return nil }

	cases := []struct {
		name       string
		opts       []HealthOption
		wantCode   int
		wantStatus string
	}{
		{name: "all healthy", opts: []HealthOption{WithReadinessCheck("database", healthy), WithReadinessCheck(CacheCheckName, healthy)}, wantCode: http.StatusOK, wantStatus: "ready"},
		{name: "cache down", opts: []HealthOption{WithReadinessCheck("database", healthy), WithReadinessCheck(CacheCheckName, failing)}, wantCode: http.StatusOK, wantStatus: "degraded"},
		{name: "database down", opts: []HealthOption{WithReadinessCheck("database", failing), WithReadinessCheck(CacheCheckName, healthy)}, wantCode: http.StatusServiceUnavailable, wantStatus: "unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/readyz", NewHealthHandler(tc.opts...).Readiness)

			rr := doJSON(r, http.MethodGet, "/readyz", "", nil)
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			var resp ReadyResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tc.wantStatus {
				t.Fatalf("expected status %q, got %q", tc.wantStatus, resp.Status)
			}
		})
	}
}
