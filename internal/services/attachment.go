package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/yungbote/journeys-backend/internal/data/aggregates"
	"github.com/yungbote/journeys-backend/internal/data/repos"
	types "github.com/yungbote/journeys-backend/internal/domain"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/modules/journeys"
	"github.com/yungbote/journeys-backend/internal/observability"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

const DefaultMaxUploadBytes int64 = 25 << 20

// ErrAttachmentsDisabled is returned when no blob store is configured.
var ErrAttachmentsDisabled = errors.New("attachment store is not configured")

// AttachmentStore is the blob store behind file_upload tasks.
type AttachmentStore interface {
	UploadFile(ctx context.Context, key, contentType string, body io.Reader) error
	DeleteFile(ctx context.Context, key string) error
	GetPublicURL(key string) string
}

type UploadAttachmentInput struct {
	AssignmentID uuid.UUID
	TaskID       uuid.UUID
	// ActorUserID, when set, must own the assignment.
	ActorUserID  uuid.UUID
	OriginalName string
	Body         io.Reader
}

type AttachmentService interface {
	UploadAttachment(ctx context.Context, in UploadAttachmentInput) (*types.Attachment, error)
}

type attachmentService struct {
	log         *logger.Logger
	store       AttachmentStore
	catalog     repos.CatalogStore
	assignments repos.JourneyAssignmentRepo
	completions repos.TaskCompletionRepo
	metrics     *observability.Metrics
	maxBytes    int64
}

// NewAttachmentService wires uploads. A nil store disables them.
func NewAttachmentService(
	log *logger.Logger,
	store AttachmentStore,
	catalog repos.CatalogStore,
	assignments repos.JourneyAssignmentRepo,
	completions repos.TaskCompletionRepo,
	metrics *observability.Metrics,
	maxBytes int64,
) AttachmentService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &attachmentService{
		log:         log.With("service", "AttachmentService"),
		store:       store,
		catalog:     catalog,
		assignments: assignments,
		completions: completions,
		metrics:     metrics,
		maxBytes:    maxBytes,
	}
}

func (s *attachmentService) UploadAttachment(ctx context.Context, in UploadAttachmentInput) (*types.Attachment, error) {
	const op = "Journeys.UploadAttachment"
	att, result, err := s.upload(ctx, op, in)
	size := int64(0)
	if att != nil {
		size = att.SizeBytes
	}
	s.metrics.ObserveAttachmentUpload(result, size)
	return att, err
}

func (s *attachmentService) upload(ctx context.Context, op string, in UploadAttachmentInput) (*types.Attachment, string, error) {
	if s.store == nil {
		return nil, "disabled", domainagg.NewError(domainagg.CodePreconditionFailed, op, ErrAttachmentsDisabled.Error(), ErrAttachmentsDisabled)
	}
	if in.AssignmentID == uuid.Nil || in.TaskID == uuid.Nil {
		return nil, "rejected", domainagg.NewError(domainagg.CodeValidation, op, "assignment_id and task_id are required", nil)
	}
	if in.Body == nil {
		return nil, "rejected", rejectionError(op, &journeys.Rejection{
			Reason: journeys.ReasonNoAttachment, Field: "file", Message: "no file was uploaded",
		})
	}

	rule, err := s.resolveRule(ctx, op, in)
	if err != nil {
		return nil, resultOf(err), err
	}

	limit := s.maxBytes
	if mb := rule.MaxBytes(); mb > 0 && mb < limit {
		limit = mb
	}
	buf, err := io.ReadAll(io.LimitReader(in.Body, limit+1))
	if err != nil {
		return nil, "error", domainagg.NewError(domainagg.CodeValidation, op, "read upload body", err)
	}
	if len(buf) == 0 {
		return nil, "rejected", rejectionError(op, &journeys.Rejection{
			Reason: journeys.ReasonNoAttachment, Field: "file", Message: "uploaded file is empty",
		})
	}
	size := int64(len(buf))
	if size > limit {
		msg := fmt.Sprintf("file exceeds %d bytes", limit)
		if limit == rule.MaxBytes() {
			msg = fmt.Sprintf("file exceeds %g MB", rule.MaxSizeMB)
		}
		return nil, "rejected", rejectionError(op, &journeys.Rejection{
			Reason: journeys.ReasonTooLarge, Field: "file", Message: msg,
		})
	}

	mt := mimetype.Detect(buf)
	mimeType := baseMIME(mt.String())
	if rej := rule.CheckFile(mimeType, size); rej != nil {
		return nil, "rejected", rejectionError(op, rej)
	}

	key := path.Join("attachments", in.AssignmentID.String(), in.TaskID.String(), uuid.NewString()+mt.Extension())
	if err := s.store.UploadFile(ctx, key, mimeType, bytes.NewReader(buf)); err != nil {
		s.log.Warn("Attachment upload failed", "assignment_id", in.AssignmentID, "task_id", in.TaskID, "error", err)
		return nil, "error", domainagg.NewError(domainagg.CodeRetryable, op, "attachment store unavailable", err)
	}

	original := strings.TrimSpace(path.Base(strings.ReplaceAll(in.OriginalName, "\\", "/")))
	if original == "" || original == "." || original == "/" {
		original = path.Base(key)
	}
	return &types.Attachment{
		Filename:     key,
		OriginalName: original,
		MimeType:     mimeType,
		SizeBytes:    size,
		URL:          s.store.GetPublicURL(key),
	}, "accepted", nil
}

// resolveRule checks ownership, task membership and lock state, and returns
// the task's upload constraints.
func (s *attachmentService) resolveRule(ctx context.Context, op string, in UploadAttachmentInput) (journeys.FileUploadRule, error) {
	dbc := dbctx.Context{Ctx: ctx}
	asg, err := s.assignments.GetByID(dbc, in.AssignmentID)
	if err != nil {
		return journeys.FileUploadRule{}, aggregates.MapError(op, err)
	}
	if asg == nil {
		return journeys.FileUploadRule{}, domainagg.NewError(domainagg.CodeNotFound, op, "assignment not found", nil)
	}
	if in.ActorUserID != uuid.Nil && asg.UserID != in.ActorUserID {
		return journeys.FileUploadRule{}, domainagg.NewError(domainagg.CodeForbidden, op, "assignment belongs to another user", nil)
	}
	rows, err := s.catalog.LoadJourneyTree(dbc, asg.JourneyID)
	if err != nil {
		return journeys.FileUploadRule{}, aggregates.MapError(op, err)
	}
	if rows == nil {
		return journeys.FileUploadRule{}, domainagg.NewError(domainagg.CodeNotFound, op, "journey not found", nil)
	}
	cat := journeys.NewCatalog(*rows)
	lineage, ok := cat.Lineage(in.TaskID)
	if !ok {
		return journeys.FileUploadRule{}, domainagg.NewError(domainagg.CodeNotFound, op, "task is not part of this journey", nil)
	}
	rule, err := journeys.RuleForTask(lineage.Task)
	if err != nil {
		return journeys.FileUploadRule{}, domainagg.NewError(domainagg.CodeInvariantViolation, op, err.Error(), err)
	}
	fileRule, ok := rule.(journeys.FileUploadRule)
	if !ok {
		return journeys.FileUploadRule{}, domainagg.NewError(domainagg.CodeValidation, op, "task does not accept attachments", nil)
	}

	completions, err := s.completions.ListByAssignment(dbc, asg.ID)
	if err != nil {
		return journeys.FileUploadRule{}, aggregates.MapError(op, err)
	}
	done := journeys.CompletionSetFrom(completions)
	locks := journeys.ComputeLockState(cat, journeys.Aggregate(cat, done), done)
	if locks.IsLocked(lineage.Chapter.ID) {
		return journeys.FileUploadRule{}, domainagg.NewError(domainagg.CodeForbidden, op, "complete the previous chapter first", nil)
	}
	return fileRule, nil
}

func rejectionError(op string, rej *journeys.Rejection) error {
	return aggregates.MapError(op, aggregates.RejectionError(rej))
}

func resultOf(err error) string {
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation:
		return "rejected"
	case domainagg.CodeNotFound, domainagg.CodeForbidden:
		return "denied"
	default:
		return "error"
	}
}

func baseMIME(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, ";"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
