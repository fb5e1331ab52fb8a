package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/journeys-backend/internal/domain"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/http/response"
)

type AssignmentHandler struct {
	progress domainagg.JourneyProgressAggregate
}

func NewAssignmentHandler(progress domainagg.JourneyProgressAggregate) *AssignmentHandler {
	return &AssignmentHandler{progress: progress}
}

// POST /api/journeys/:journeyId/assign/:userId
func (h *AssignmentHandler) Assign(c *gin.Context) {
	journeyID, ok := uuidParam(c, "journeyId")
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	res, err := h.progress.Assign(c.Request.Context(), domainagg.AssignJourneyInput{
		UserID:    userID,
		JourneyID: journeyID,
		Source:    types.AssignmentSourceManual,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"assignment": res.Assignment})
}

// DELETE /api/journeys/:journeyId/assign/:userId
func (h *AssignmentHandler) Unassign(c *gin.Context) {
	journeyID, ok := uuidParam(c, "journeyId")
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	if err := h.progress.Unassign(c.Request.Context(), domainagg.UnassignJourneyInput{
		UserID:    userID,
		JourneyID: journeyID,
	}); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/users/:userId/activate
func (h *AssignmentHandler) Activate(c *gin.Context) {
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	res, err := h.progress.AssignOnActivation(c.Request.Context(), domainagg.AssignOnActivationInput{UserID: userID})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	assigned := res.Assigned
	if assigned == nil {
		assigned = []*types.JourneyAssignment{}
	}
	response.RespondOK(c, gin.H{"assigned": assigned})
}
