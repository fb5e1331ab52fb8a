package journeys

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/journeys-backend/internal/domain"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

type TaskCompletionRepo interface {
	// Upsert overwrites validation_data and completed_at for an existing pair.
	Upsert(dbc dbctx.Context, row *types.TaskCompletion) error
	// Remove reports whether a row was deleted.
	Remove(dbc dbctx.Context, assignmentID, taskID uuid.UUID) (bool, error)
	Get(dbc dbctx.Context, assignmentID, taskID uuid.UUID) (*types.TaskCompletion, error)
	ListByAssignment(dbc dbctx.Context, assignmentID uuid.UUID) ([]*types.TaskCompletion, error)
	ListByAssignments(dbc dbctx.Context, assignmentIDs []uuid.UUID) ([]*types.TaskCompletion, error)
	DeleteByAssignment(dbc dbctx.Context, assignmentID uuid.UUID) error
}

type taskCompletionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskCompletionRepo(db *gorm.DB, baseLog *logger.Logger) TaskCompletionRepo {
	return &taskCompletionRepo{db: db, log: baseLog.With("repo", "TaskCompletionRepo")}
}

func (r *taskCompletionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *taskCompletionRepo) Upsert(dbc dbctx.Context, row *types.TaskCompletion) error {
	if row == nil || row.AssignmentID == uuid.Nil || row.TaskID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	if row.CompletedAt.IsZero() {
		row.CompletedAt = now
	}
	row.UpdatedAt = now
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "assignment_id"},
				{Name: "task_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"validation_data", "completed_at", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *taskCompletionRepo) Remove(dbc dbctx.Context, assignmentID, taskID uuid.UUID) (bool, error) {
	if assignmentID == uuid.Nil || taskID == uuid.Nil {
		return false, nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("assignment_id = ? AND task_id = ?", assignmentID, taskID).
		Delete(&types.TaskCompletion{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *taskCompletionRepo) Get(dbc dbctx.Context, assignmentID, taskID uuid.UUID) (*types.TaskCompletion, error) {
	if assignmentID == uuid.Nil || taskID == uuid.Nil {
		return nil, nil
	}
	var row types.TaskCompletion
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("assignment_id = ? AND task_id = ?", assignmentID, taskID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *taskCompletionRepo) ListByAssignment(dbc dbctx.Context, assignmentID uuid.UUID) ([]*types.TaskCompletion, error) {
	out := []*types.TaskCompletion{}
	if assignmentID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("assignment_id = ?", assignmentID).
		Order("completed_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskCompletionRepo) ListByAssignments(dbc dbctx.Context, assignmentIDs []uuid.UUID) ([]*types.TaskCompletion, error) {
	out := []*types.TaskCompletion{}
	if len(assignmentIDs) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("assignment_id IN ?", assignmentIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskCompletionRepo) DeleteByAssignment(dbc dbctx.Context, assignmentID uuid.UUID) error {
	if assignmentID == uuid.Nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Where("assignment_id = ?", assignmentID).
		Delete(&types.TaskCompletion{}).Error
}

type ChapterXPGrantRepo interface {
	Get(dbc dbctx.Context, assignmentID, chapterID uuid.UUID) (*types.ChapterXPGrant, error)
	Create(dbc dbctx.Context, row *types.ChapterXPGrant) error
	Delete(dbc dbctx.Context, assignmentID, chapterID uuid.UUID) error
	ListByAssignment(dbc dbctx.Context, assignmentID uuid.UUID) ([]*types.ChapterXPGrant, error)
	DeleteByAssignment(dbc dbctx.Context, assignmentID uuid.UUID) error
}

type chapterXPGrantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterXPGrantRepo(db *gorm.DB, baseLog *logger.Logger) ChapterXPGrantRepo {
	return &chapterXPGrantRepo{db: db, log: baseLog.With("repo", "ChapterXPGrantRepo")}
}

func (r *chapterXPGrantRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *chapterXPGrantRepo) Get(dbc dbctx.Context, assignmentID, chapterID uuid.UUID) (*types.ChapterXPGrant, error) {
	if assignmentID == uuid.Nil || chapterID == uuid.Nil {
		return nil, nil
	}
	var row types.ChapterXPGrant
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("assignment_id = ? AND chapter_id = ?", assignmentID, chapterID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// Create fails with a unique violation if the marker already exists, which
// surfaces a double grant as a conflict instead of silently adding XP twice.
func (r *chapterXPGrantRepo) Create(dbc dbctx.Context, row *types.ChapterXPGrant) error {
	if row == nil || row.AssignmentID == uuid.Nil || row.ChapterID == uuid.Nil {
		return nil
	}
	if row.GrantedAt.IsZero() {
		row.GrantedAt = time.Now().UTC()
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *chapterXPGrantRepo) Delete(dbc dbctx.Context, assignmentID, chapterID uuid.UUID) error {
	if assignmentID == uuid.Nil || chapterID == uuid.Nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Where("assignment_id = ? AND chapter_id = ?", assignmentID, chapterID).
		Delete(&types.ChapterXPGrant{}).Error
}

func (r *chapterXPGrantRepo) ListByAssignment(dbc dbctx.Context, assignmentID uuid.UUID) ([]*types.ChapterXPGrant, error) {
	out := []*types.ChapterXPGrant{}
	if assignmentID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("assignment_id = ?", assignmentID).
		Order("granted_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterXPGrantRepo) DeleteByAssignment(dbc dbctx.Context, assignmentID uuid.UUID) error {
	if assignmentID == uuid.Nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Where("assignment_id = ?", assignmentID).
		Delete(&types.ChapterXPGrant{}).Error
}

type UserOnboardingRepo interface {
	Get(dbc dbctx.Context, userID uuid.UUID) (*types.UserOnboarding, error)
	// MarkCompleted keeps the first completion timestamp.
	MarkCompleted(dbc dbctx.Context, userID uuid.UUID, at time.Time) (bool, error)
}

type userOnboardingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserOnboardingRepo(db *gorm.DB, baseLog *logger.Logger) UserOnboardingRepo {
	return &userOnboardingRepo{db: db, log: baseLog.With("repo", "UserOnboardingRepo")}
}

func (r *userOnboardingRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *userOnboardingRepo) Get(dbc dbctx.Context, userID uuid.UUID) (*types.UserOnboarding, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	var row types.UserOnboarding
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("user_id = ?", userID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.UserID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *userOnboardingRepo) MarkCompleted(dbc dbctx.Context, userID uuid.UUID, at time.Time) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&types.UserOnboarding{UserID: userID, CompletedAt: at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
