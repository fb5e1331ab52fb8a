package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/journeys-backend/internal/domain"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/http/response"
	"github.com/yungbote/journeys-backend/internal/services"
)

type TaskHandler struct {
	progress    domainagg.JourneyProgressAggregate
	attachments services.AttachmentService
}

func NewTaskHandler(progress domainagg.JourneyProgressAggregate, attachments services.AttachmentService) *TaskHandler {
	return &TaskHandler{progress: progress, attachments: attachments}
}

type completeTaskRequest struct {
	ValidationData map[string]any `json:"validation_data"`
}

type taskProgressResponse struct {
	Assignment     *types.JourneyAssignment   `json:"assignment"`
	Progress       *types.JourneyProgress     `json:"progress"`
	XPDelta        int                        `json:"xp_delta"`
	JustCompleted  bool                       `json:"just_completed"`
	Reopened       bool                       `json:"reopened"`
	ChainAssigned  []*types.JourneyAssignment `json:"chain_assigned"`
	OnboardingDone bool                       `json:"onboarding_completed"`
}

func toTaskProgressResponse(res domainagg.TaskProgressResult) taskProgressResponse {
	chained := res.ChainAssigned
	if chained == nil {
		chained = []*types.JourneyAssignment{}
	}
	return taskProgressResponse{
		Assignment:     res.Assignment,
		Progress:       res.Progress,
		XPDelta:        res.XPDelta,
		JustCompleted:  res.JustCompleted,
		Reopened:       res.Reopened,
		ChainAssigned:  chained,
		OnboardingDone: res.OnboardingDone,
	}
}

// POST /api/assignments/:assignmentId/tasks/:taskId/complete
// body: { "validation_data": { ... } }
func (h *TaskHandler) Complete(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	assignmentID, ok := uuidParam(c, "assignmentId")
	if !ok {
		return
	}
	taskID, ok := uuidParam(c, "taskId")
	if !ok {
		return
	}
	var req completeTaskRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	if req.ValidationData == nil {
		req.ValidationData = map[string]any{}
	}
	res, err := h.progress.CompleteTask(c.Request.Context(), domainagg.CompleteTaskInput{
		AssignmentID: assignmentID,
		TaskID:       taskID,
		Data:         req.ValidationData,
		ActorUserID:  actorFor(rd),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, toTaskProgressResponse(res))
}

// DELETE /api/assignments/:assignmentId/tasks/:taskId/complete
func (h *TaskHandler) Uncomplete(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	assignmentID, ok := uuidParam(c, "assignmentId")
	if !ok {
		return
	}
	taskID, ok := uuidParam(c, "taskId")
	if !ok {
		return
	}
	res, err := h.progress.UncompleteTask(c.Request.Context(), domainagg.UncompleteTaskInput{
		AssignmentID: assignmentID,
		TaskID:       taskID,
		ActorUserID:  actorFor(rd),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, toTaskProgressResponse(res))
}

// POST /api/assignments/:assignmentId/tasks/:taskId/attachments (multipart "file")
func (h *TaskHandler) UploadAttachment(c *gin.Context) {
	rd, ok := caller(c)
	if !ok {
		return
	}
	assignmentID, ok := uuidParam(c, "assignmentId")
	if !ok {
		return
	}
	taskID, ok := uuidParam(c, "taskId")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "no_attachment", errors.New("multipart field \"file\" is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	defer f.Close()

	att, err := h.attachments.UploadAttachment(c.Request.Context(), services.UploadAttachmentInput{
		AssignmentID: assignmentID,
		TaskID:       taskID,
		ActorUserID:  actorFor(rd),
		OriginalName: fh.Filename,
		Body:         f,
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"file": att})
}
