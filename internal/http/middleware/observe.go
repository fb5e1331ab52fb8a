package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/journeys-backend/internal/observability"
	"github.com/yungbote/journeys-backend/internal/platform/ctxutil"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

const HeaderRequestID = "X-Request-Id"

// routeParams are copied into the request log when the route has them.
var routeParams = []string{"userId", "journeyId", "assignmentId", "taskId"}

// RequestID propagates X-Request-Id, minting one when the caller sent none.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), id))
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Next()
	}
}

// Observe logs each request and feeds the API metrics. Either sink may be nil.
func Observe(log *logger.Logger, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()
		c.Next()

		dur := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(status), dur)
		if log == nil {
			return
		}

		ctx := c.Request.Context()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", dur.Milliseconds(),
			"request_id", ctxutil.RequestID(ctx),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			fields = append(fields, "trace_id", sc.TraceID().String())
		}
		if rd := ctxutil.GetRequestData(ctx); rd != nil {
			fields = append(fields, "caller_id", rd.UserID.String(), "role", rd.Role)
		}
		for _, p := range routeParams {
			if v := c.Param(p); v != "" {
				fields = append(fields, p, v)
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.Last().Error())
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}
