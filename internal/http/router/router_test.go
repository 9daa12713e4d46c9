package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apphttp "bbys_backend/internal/http"
	"bbys_backend/internal/http/middleware"
	"bbys_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const secret = "test-secret"

type routerConfig struct{}

func (routerConfig) GetHTTPAddr() string        { return ":0" }
func (routerConfig) GetCORSAllowAll() bool      { return false }
func (routerConfig) GetCORSOrigins() []string   { return []string{"https://app.example.com"} }
func (routerConfig) GetCORSAllowCreds() bool    { return true }
func (routerConfig) GetJWTAccessSecret() string { return secret }
func (routerConfig) GetAgentGroup() string      { return "agent" }

type probeModule struct{}

func (probeModule) Name() string { return "probe" }

func (probeModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	ctx.Protected.GET("/probe", ok)
	ctx.Admin.GET("/probe", ok)
	ctx.Agent.GET("/probe", ok)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newEngine(health apphttp.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(&apphttp.App{
		Config:  routerConfig{},
		Logger:  logger.New("development"),
		Health:  health,
		Modules: []apphttp.Module{probeModule{}},
	})
}

func token(t *testing.T, roles, groups []string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    uuid.NewString(),
		"type":   "access",
		"email":  "lee@realty.com",
		"roles":  roles,
		"groups": groups,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func get(engine *gin.Engine, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	if rec := get(newEngine(pinger{}), "/api/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if rec := get(newEngine(pinger{}), "/api/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready: %d", rec.Code)
	}
	if rec := get(newEngine(pinger{err: errors.New("down")}), "/api/ready", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the store is down, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	if rec := get(newEngine(nil), "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	engine := newEngine(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-1")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if got := rec.Header().Get(middleware.HeaderRequestID); got != "req-1" {
		t.Fatalf("expected the request id echoed, got %q", got)
	}
	if rec := get(engine, "/api/health", ""); rec.Header().Get(middleware.HeaderRequestID) == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestGroupAccess(t *testing.T) {
	engine := newEngine(nil)
	user := token(t, nil, nil)
	agent := token(t, nil, []string{"agent"})
	admin := token(t, []string{"admin"}, nil)

	cases := []struct {
		path   string
		bearer string
		want   int
	}{
		{"/api/v1/probe", "", http.StatusUnauthorized},
		{"/api/v1/probe", "not-a-token", http.StatusUnauthorized},
		{"/api/v1/probe", user, http.StatusNoContent},
		{"/api/v1/admin/probe", user, http.StatusForbidden},
		{"/api/v1/admin/probe", agent, http.StatusForbidden},
		{"/api/v1/admin/probe", admin, http.StatusNoContent},
		{"/api/v1/agent-user/probe", user, http.StatusForbidden},
		{"/api/v1/agent-user/probe", agent, http.StatusNoContent},
		{"/api/v1/agent-user/probe", admin, http.StatusNoContent},
	}
	for _, tc := range cases {
		if rec := get(engine, tc.path, tc.bearer); rec.Code != tc.want {
			t.Errorf("GET %s: expected %d, got %d", tc.path, tc.want, rec.Code)
		}
	}
}
