package journeys

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/journeys-backend/internal/domain"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

type JourneyAssignmentRepo interface {
	Create(dbc dbctx.Context, row *types.JourneyAssignment) error
	// CreateIfAbsent inserts unless (user_id, journey_id) exists. It reports
	// whether a row was written.
	CreateIfAbsent(dbc dbctx.Context, row *types.JourneyAssignment) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JourneyAssignment, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.JourneyAssignment, error)
	// LockUser serializes, until commit, every transaction that reads the
	// user's whole ledger to make a decision.
	LockUser(dbc dbctx.Context, userID uuid.UUID) error
	GetByUserAndJourney(dbc dbctx.Context, userID, journeyID uuid.UUID) (*types.JourneyAssignment, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.JourneyAssignment, error)
	SumXPByUser(dbc dbctx.Context, userID uuid.UUID) (int, error)
	DeleteByID(dbc dbctx.Context, id uuid.UUID) error
}

type journeyAssignmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJourneyAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) JourneyAssignmentRepo {
	return &journeyAssignmentRepo{db: db, log: baseLog.With("repo", "JourneyAssignmentRepo")}
}

func (r *journeyAssignmentRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *journeyAssignmentRepo) Create(dbc dbctx.Context, row *types.JourneyAssignment) error {
	if row == nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(row).Error
}

func (r *journeyAssignmentRepo) CreateIfAbsent(dbc dbctx.Context, row *types.JourneyAssignment) (bool, error) {
	if row == nil || row.UserID == uuid.Nil || row.JourneyID == uuid.Nil {
		return false, nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "journey_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *journeyAssignmentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JourneyAssignment, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.JourneyAssignment
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// LockByID reads the assignment with FOR UPDATE. SQLite has no row locks and
// already serializes writers, so the clause is skipped there.
func (r *journeyAssignmentRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.JourneyAssignment, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx)
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row types.JourneyAssignment
	if err := q.Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// LockUser takes pg_advisory_xact_lock on a key derived from the user id. The
// lock is released by commit or rollback, so the next holder's statements see
// everything the previous one wrote. SQLite serializes writers already.
func (r *journeyAssignmentRepo) LockUser(dbc dbctx.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx)
	if q.Dialector.Name() == "sqlite" {
		return nil
	}
	if dbc.Tx == nil {
		return errors.New("LockUser requires a transaction")
	}
	return q.Exec("SELECT pg_advisory_xact_lock(?)", userLockKey(userID)).Error
}

func userLockKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:]))
}

func (r *journeyAssignmentRepo) GetByUserAndJourney(dbc dbctx.Context, userID, journeyID uuid.UUID) (*types.JourneyAssignment, error) {
	if userID == uuid.Nil || journeyID == uuid.Nil {
		return nil, nil
	}
	var row types.JourneyAssignment
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND journey_id = ?", userID, journeyID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *journeyAssignmentRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.JourneyAssignment, error) {
	out := []*types.JourneyAssignment{}
	if userID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("assigned_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *journeyAssignmentRepo) SumXPByUser(dbc dbctx.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, nil
	}
	var total int64
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.JourneyAssignment{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(total_xp), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

func (r *journeyAssignmentRepo) DeleteByID(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.JourneyAssignment{}).Error
}
