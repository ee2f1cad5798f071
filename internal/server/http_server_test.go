package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/venue-match/internal/server"
)

func up() server.Pinger   { return server.PingFunc(func(context.Context) error { return nil }) }
func down() server.Pinger { return server.PingFunc(func(context.Context) error { return errors.New("refused") }) }

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		checks map[string]server.Pinger
		status int
		body   map[string]string
	}{
		{"all up", map[string]server.Pinger{"db": up(), "redis": up()}, http.StatusOK, map[string]string{"db": "up", "redis": "up"}},
		{"redis down", map[string]server.Pinger{"db": up(), "redis": down()}, http.StatusServiceUnavailable, map[string]string{"db": "up", "redis": "down"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := server.NewRouter(zerolog.Nop(), tt.checks, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.body, body)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := server.NewRouter(zerolog.Nop(), nil, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestRecoveryAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := server.NewRouter(zerolog.Nop(), nil, func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
