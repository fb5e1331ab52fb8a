package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/journeys-backend/internal/http/response"
	"github.com/yungbote/journeys-backend/internal/services"
)

type JourneyHandler struct {
	journeys services.JourneyService
}

func NewJourneyHandler(journeys services.JourneyService) *JourneyHandler {
	return &JourneyHandler{journeys: journeys}
}

// GET /api/me/journeys
func (h *JourneyHandler) ListMyJourneys(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	h.listFor(c, rd.UserID)
}

// GET /api/users/:userId/journeys
func (h *JourneyHandler) ListUserJourneys(c *gin.Context) {
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	h.listFor(c, userID)
}

func (h *JourneyHandler) listFor(c *gin.Context, userID uuid.UUID) {
	list, err := h.journeys.ListUserJourneys(c.Request.Context(), userID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"journeys": list})
}

// GET /api/me/journeys/:journeyId
func (h *JourneyHandler) GetMyJourney(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	journeyID, ok := uuidParam(c, "journeyId")
	if !ok {
		return
	}
	view, err := h.journeys.GetJourneyView(c.Request.Context(), rd.UserID, journeyID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// GET /api/me/xp
func (h *JourneyHandler) GetMyXP(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	h.xpFor(c, rd.UserID)
}

// GET /api/users/:userId/xp
func (h *JourneyHandler) GetUserXP(c *gin.Context) {
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	h.xpFor(c, userID)
}

func (h *JourneyHandler) xpFor(c *gin.Context, userID uuid.UUID) {
	total, err := h.journeys.UserXP(c.Request.Context(), userID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"user_id": userID, "total_xp": total})
}

// GET /api/me/onboarding
func (h *JourneyHandler) GetMyOnboarding(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	status, err := h.journeys.OnboardingStatus(c.Request.Context(), rd.UserID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, status)
}
