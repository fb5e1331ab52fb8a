package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/modules/journeys"
	"github.com/yungbote/journeys-backend/internal/platform/ctxutil"
)

// APIError is the body of every non-2xx response. Reason and Field are set
// only for validator rejections.
type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

var statusByCode = map[domainagg.ErrorCode]int{
	domainagg.CodeValidation:         http.StatusBadRequest,
	domainagg.CodeNotFound:           http.StatusNotFound,
	domainagg.CodeForbidden:          http.StatusForbidden,
	domainagg.CodeConflict:           http.StatusConflict,
	domainagg.CodePreconditionFailed: http.StatusPreconditionFailed,
	domainagg.CodeRetryable:          http.StatusServiceUnavailable,
}

func StatusForCode(code domainagg.ErrorCode) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func RespondOK(c *gin.Context, payload any)      { c.JSON(http.StatusOK, payload) }
func RespondCreated(c *gin.Context, payload any) { c.JSON(http.StatusCreated, payload) }

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	abort(c, status, APIError{Message: msg, Code: code})
}

// RespondDomainError writes a classified error. Internal failures keep
// their detail in the request log only.
func RespondDomainError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	var aggErr *domainagg.Error
	if !errors.As(err, &aggErr) {
		abort(c, http.StatusInternalServerError, APIError{Message: "internal error", Code: string(domainagg.CodeInternal)})
		return
	}

	status := StatusForCode(aggErr.Code)
	body := APIError{Code: string(aggErr.Code), Message: aggErr.Message}
	var rej *journeys.Rejection
	switch {
	case errors.As(err, &rej):
		body.Message, body.Reason, body.Field = rej.Error(), rej.Reason, rej.Field
	case status == http.StatusInternalServerError:
		body.Message = "internal error"
	case body.Message == "":
		body.Message = string(aggErr.Code)
	}
	abort(c, status, body)
}

func abort(c *gin.Context, status int, body APIError) {
	if c.Request != nil {
		body.RequestID = ctxutil.RequestID(c.Request.Context())
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: body})
}
