package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/airwave/internal/app"
	"github.com/dkeye/airwave/internal/app/orch"
	"github.com/dkeye/airwave/internal/config"
	"github.com/dkeye/airwave/internal/core"
	"github.com/dkeye/airwave/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{ id domain.ConnID }

func (c nopConn) ID() domain.ConnID        { return c.id }
func (c nopConn) TrySend(core.Frame) error { return nil }
func (c nopConn) Close()                   {}

func newRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o := orch.New(app.NewRegistry(nil))
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return SetupRouter(context.Background(), cfg, o), o
}

func TestHealthz(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestBroadcastersList(t *testing.T) {
	r, o := newRouter(t)
	for _, id := range []domain.ConnID{"b1", "b2", "l1", "l2"} {
		o.Connect(nopConn{id: id})
	}
	o.StartBroadcast("b1", "Radio")
	o.StartBroadcast("b2", "")
	o.Join("l1", "b1")
	o.Join("l2", "b1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/broadcasters", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got []BroadcasterView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Radio", got[0].Name)
	assert.Equal(t, 2, got[0].Listeners)
	assert.Equal(t, domain.DefaultName("b2"), got[1].Name)
	assert.Zero(t, got[1].Listeners)
}

func TestBroadcastersListEmptyIsArray(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/broadcasters", nil))

	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestClientTokenIsStable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r, _ := newRouter(t)
	var tokens []string
	r.GET("/token", func(c *gin.Context) {
		tokens = append(tokens, c.GetString(clientTokenKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/token", nil))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, tokens, 2)
	assert.NotEmpty(t, tokens[0])
	assert.Equal(t, tokens[0], tokens[1])
}

func TestWebSocketRouteRejectsPlainGet(t *testing.T) {
	r, _ := newRouter(t)

	for _, path := range []string{"/api/ws", "/api/ws/signal"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}
