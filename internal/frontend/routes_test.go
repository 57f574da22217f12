package frontend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user00265/dxbridge/internal/cluster"
	"github.com/user00265/dxbridge/internal/config"
	"github.com/user00265/dxbridge/internal/frontend"
	"github.com/user00265/dxbridge/internal/gateway"
	"github.com/user00265/dxbridge/internal/registry"
	"github.com/user00265/dxbridge/internal/spot"
)

var now = time.Date(2026, 10, 16, 21, 7, 0, 0, time.UTC)

func testSpot(call string, freq float64, band string, age time.Duration) spot.Spot {
	return spot.Spot{
		DXCall:       call,
		Spotter:      "W1AW",
		FrequencyKHz: freq,
		Band:         band,
		Mode:         "CW",
		SpottedAt:    "21:07",
		ReceivedAt:   now.Add(-age),
		Cluster:      "Mock",
	}
}

func setupTestRouter(t *testing.T, origins ...string) (*gin.Engine, *frontend.Cache, *gateway.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache := frontend.NewCache(10)
	cache.AddSpot(testSpot("TEST1", 14025, "20m", 2*time.Minute))
	cache.AddSpot(testSpot("TEST2", 7025, "40m", time.Minute))

	reg := registry.NewStatic([]config.ClusterConfig{
		{ID: "2", Name: "Second", Host: "127.0.0.1", Port: "7300"},
		{ID: "1", Name: "First", Host: "127.0.0.1", Port: "7373"},
	})
	hub := gateway.NewHub(reg, cache, cluster.Options{}, 8)

	router := frontend.NewRouter(nil)
	frontend.SetupRoutes(router.Group("/"), frontend.Options{
		Cache:          cache,
		Registry:       reg,
		Hub:            hub,
		AllowedOrigins: origins,
		PingInterval:   time.Second,
	})
	return router, cache, hub
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSpotsEndpointVariations(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	for _, path := range []string{"/spots", "/spots/", "//spots", "//spots/", "///spots"} {
		t.Run(path, func(t *testing.T) {
			w := get(t, router, path)
			assert.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

			var got []spot.Payload
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			require.Len(t, got, 2)
			assert.Equal(t, "TEST2", got[0].DXCall, "newest first")
		})
	}
}

func TestSpotsByBand(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	for _, path := range []string{"/spots/20m", "/spots/20", "/spots/20M", "/spots?band=20"} {
		t.Run(path, func(t *testing.T) {
			w := get(t, router, path)
			require.Equal(t, http.StatusOK, w.Code)
			var got []spot.Payload
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			require.Len(t, got, 1)
			assert.Equal(t, "TEST1", got[0].DXCall)
		})
	}

	w := get(t, router, "/spots/6m")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestClustersAndHealth(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	assert.Equal(t, http.StatusOK, get(t, router, "/healthz").Code)

	w := get(t, router, "/clusters")
	require.Equal(t, http.StatusOK, w.Code)
	var got []registry.Cluster
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "First", got[0].Name)
	assert.Equal(t, "7373", got[0].Port)
}

func TestStats(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := get(t, router, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats["entries"])
	assert.EqualValues(t, 0, stats["sessions"])
	assert.Equal(t, now.Add(-time.Minute).Format(time.RFC3339), stats["freshest"])
	assert.Equal(t, now.Add(-2*time.Minute).Format(time.RFC3339), stats["oldest"])
}

func TestCache(t *testing.T) {
	c := frontend.NewCache(3)

	assert.False(t, c.AddSpot(testSpot("A1A", 14000, "20m", 5*time.Minute)))
	assert.False(t, c.AddSpot(testSpot("B1B", 14001, "20m", 4*time.Minute)))
	assert.False(t, c.AddSpot(testSpot("C1C", 14002, "20m", 3*time.Minute)))
	assert.True(t, c.AddSpot(testSpot("A1A", 14000, "20m", time.Minute)), "same station, frequency and cluster replaces")
	assert.Equal(t, 3, c.Len())

	require.NoError(t, c.Store(context.Background(), testSpot("D1D", 14003, "20m", 0)))
	assert.Equal(t, 3, c.Len())

	var calls []string
	for _, s := range c.GetAllSpots() {
		calls = append(calls, s.DXCall)
	}
	assert.Equal(t, []string{"D1D", "A1A", "C1C"}, calls, "B1B was the oldest entry and is evicted")
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebSocketSession(t *testing.T) {
	router, _, hub := setupTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer ws.Close()

	assert.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"type": "connect", "clusterId": 42, "loginCallsign": "N0CALL"}))
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, gateway.MsgClusterNotFound, msg.Data)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "command", "data": "sh/dx"}))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, gateway.MsgNotConnected, msg.Data)

	w := get(t, router, "/sessions")
	var sessions []gateway.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "Idle", sessions[0].State)

	ws.Close()
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestWebSocketOriginCheck(t *testing.T) {
	router, _, _ := setupTestRouter(t, "https://dx.example.org")
	srv := httptest.NewServer(router)
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://dx.example.org"}}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	ws.Close()
}
