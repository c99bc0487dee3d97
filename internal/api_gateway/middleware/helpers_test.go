package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// chain wires the middleware the way the gateway does and captures the log
type chain struct {
	router *gin.Engine
	logs   *bytes.Buffer
}

func newChain(t *testing.T) *chain {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logs := &bytes.Buffer{}
	log := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := gin.New()
	r.Use(CorrelationID(), Logger(log), Recovery(log))
	return &chain{router: r, logs: logs}
}

func (c *chain) do(method, target string, body io.Reader, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rr := httptest.NewRecorder()
	c.router.ServeHTTP(rr, req)
	return rr
}

func withCorrelation(id string) http.Header {
	return http.Header{CorrelationIDHeader: []string{id}}
}
