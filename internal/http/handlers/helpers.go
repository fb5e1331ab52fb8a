package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/journeys-backend/internal/http/response"
	"github.com/yungbote/journeys-backend/internal/platform/ctxutil"
)

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, errors.New(name+" must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

func caller(c *gin.Context) (*ctxutil.RequestData, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing request identity"))
		return nil, false
	}
	return rd, true
}

// actorFor is the user an assignment-scoped write must belong to. Managers
// act on any assignment, so they get uuid.Nil.
func actorFor(rd *ctxutil.RequestData) uuid.UUID {
	if rd.CanManage() {
		return uuid.Nil
	}
	return rd.UserID
}
