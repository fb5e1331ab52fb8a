package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/journeys-backend/internal/platform/ctxutil"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

func TestRequestIDEchoesOrMints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if seen != "req-123" || rec.Header().Get(HeaderRequestID) != "req-123" {
		t.Fatalf("propagated id: ctx=%q header=%q", seen, rec.Header().Get(HeaderRequestID))
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if seen == "" || seen == "req-123" || rec.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("minted id: ctx=%q header=%q", seen, rec.Header().Get(HeaderRequestID))
	}
}

func TestObserveLogsRouteAndParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestID(), Observe(logger.NewWithCore(core), nil))
	r.POST("/api/assignments/:assignmentId/tasks/:taskId/complete", func(c *gin.Context) {
		c.Status(http.StatusForbidden)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/assignments/a1/tasks/t1/complete", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries: %d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel {
		t.Fatalf("level: %s", e.Level)
	}
	f := e.ContextMap()
	if f["route"] != "/api/assignments/:assignmentId/tasks/:taskId/complete" {
		t.Fatalf("route: %v", f["route"])
	}
	if f["assignmentId"] != "a1" || f["taskId"] != "t1" {
		t.Fatalf("params: %v", f)
	}
	if f["request_id"] == "" {
		t.Fatalf("missing request id")
	}
}
