package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/journeys-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/modules/journeys"
	"github.com/yungbote/journeys-backend/internal/platform/ctxutil"
)

func respond(t *testing.T, err error) (int, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondDomainError(c, err)
	var env ErrorEnvelope
	if jerr := json.Unmarshal(rec.Body.Bytes(), &env); jerr != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), jerr)
	}
	return rec.Code, env
}

func TestRespondDomainErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{aggregates.MapError("op", aggregates.ValidationError("bad input")), http.StatusBadRequest, "validation"},
		{domainagg.NewError(domainagg.CodeNotFound, "op", "assignment not found", nil), http.StatusNotFound, "not_found"},
		{aggregates.MapError("op", aggregates.ForbiddenError("complete the previous chapter first")), http.StatusForbidden, "forbidden"},
		{aggregates.MapError("op", aggregates.ConflictError("already assigned")), http.StatusConflict, "conflict"},
		{aggregates.MapError("op", aggregates.PreconditionError("journey is inactive")), http.StatusPreconditionFailed, "precondition_failed"},
		{aggregates.MapError("op", aggregates.RetryableError("busy")), http.StatusServiceUnavailable, "retryable"},
		{aggregates.MapError("op", aggregates.InvariantError("broken")), http.StatusInternalServerError, "invariant_violation"},
		{errors.New("raw"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, env := respond(t, tc.err)
		if status != tc.status || env.Error.Code != tc.code {
			t.Fatalf("%v: got status=%d code=%q want status=%d code=%q", tc.err, status, env.Error.Code, tc.status, tc.code)
		}
	}
}

func TestRespondDomainErrorMessages(t *testing.T) {
	_, env := respond(t, aggregates.MapError("op", aggregates.ForbiddenError("complete the previous chapter first")))
	if env.Error.Message != "complete the previous chapter first" {
		t.Fatalf("message: got %q", env.Error.Message)
	}
	_, env = respond(t, aggregates.MapError("op", errors.New("pq: connection refused to 10.0.0.1")))
	if env.Error.Message != "internal error" {
		t.Fatalf("internal detail leaked: %q", env.Error.Message)
	}
}

func TestRespondDomainErrorRejection(t *testing.T) {
	rej := &journeys.Rejection{Reason: journeys.ReasonTooShort, Field: "text", Message: "write at least 10 characters"}
	status, env := respond(t, aggregates.MapError("op", aggregates.RejectionError(rej)))
	if status != http.StatusBadRequest {
		t.Fatalf("status: got %d", status)
	}
	if env.Error.Reason != "too_short" || env.Error.Field != "text" || env.Error.Message != rej.Message {
		t.Fatalf("unexpected envelope: %+v", env.Error)
	}
}

func TestRespondErrorCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request = req.WithContext(ctxutil.WithRequestID(req.Context(), "req-9"))
	RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing token"))

	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusUnauthorized || env.Error.RequestID != "req-9" || env.Error.Message != "missing token" {
		t.Fatalf("unexpected: %d %+v", rec.Code, env.Error)
	}
}
