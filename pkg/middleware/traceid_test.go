package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func traceIDRouter(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TraceIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		*captured = c.GetString("trace_id")
		c.Status(http.StatusOK)
	})
	return router
}

func TestTraceIDMiddleware(t *testing.T) {
	t.Run("propagates the inbound id", func(t *testing.T) {
		var seen string
		router := traceIDRouter(&seen)
		inbound := uuid.NewString()

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(TraceIDHeader, inbound)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if seen != inbound {
			t.Fatalf("handler saw trace id %q, want %q", seen, inbound)
		}
		if rec.Header().Get(TraceIDHeader) != inbound {
			t.Fatalf("response echoed %q, want %q", rec.Header().Get(TraceIDHeader), inbound)
		}
	})

	t.Run("mints an id when none is sent", func(t *testing.T) {
		var seen string
		router := traceIDRouter(&seen)

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if seen == "" {
			t.Fatalf("expected a minted trace id")
		}
		if rec.Header().Get(TraceIDHeader) != seen {
			t.Fatalf("response header %q does not match context id %q", rec.Header().Get(TraceIDHeader), seen)
		}
	})

	t.Run("replaces an oversized id", func(t *testing.T) {
		var seen string
		router := traceIDRouter(&seen)

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(TraceIDHeader, strings.Repeat("x", 200))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if len(seen) > 64 {
			t.Fatalf("oversized inbound id must be replaced, got %q", seen)
		}
	})
}
