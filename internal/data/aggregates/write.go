package aggregates

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	types "github.com/yungbote/journeys-backend/internal/domain"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/lock"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

// TxRunner opens the transaction a progression or import write runs in.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if r == nil || r.db == nil {
		return InvariantError("transaction runner has no database")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

type BaseDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	return d
}

// executeWrite runs fn in one transaction and reports the classified outcome
// to the hooks under op.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	err := MapError(op, deps.Runner.InTx(ctx, fn))
	status := statusOf(err)
	switch status {
	case string(domainagg.CodeConflict):
		deps.Hooks.IncConflict(op)
	case string(domainagg.CodeRetryable):
		deps.Hooks.IncRetry(op)
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return err
}

// lockedWrite holds the per-assignment lock around executeWrite. A lock that
// cannot be taken in time comes back as retryable.
func lockedWrite(ctx context.Context, deps BaseDeps, locker lock.Locker, op string, assignmentID uuid.UUID, fn func(dbc dbctx.Context) error) error {
	if locker == nil {
		return executeWrite(ctx, deps, op, fn)
	}
	unlock, err := locker.Lock(ctx, assignmentLockKey(assignmentID))
	if err != nil {
		deps.Hooks.IncRetry(op)
		return MapError(op, RetryableError("assignment is busy: "+err.Error()))
	}
	defer unlock()
	return executeWrite(ctx, deps, op, fn)
}

func assignmentLockKey(id uuid.UUID) string {
	return "assignment:" + id.String()
}

func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	if code := domainagg.CodeOf(err); code != "" {
		return string(code)
	}
	return string(domainagg.CodeInternal)
}

// saveAssignmentState writes the derived assignment columns only if the
// status is still the one the write started from. Both callers hold the row
// lock, so a miss means something bypassed it.
func saveAssignmentState(dbc dbctx.Context, asg *types.JourneyAssignment, prevStatus string) error {
	if dbc.Tx == nil {
		return InvariantError("assignment update outside a transaction")
	}
	res := dbc.Tx.WithContext(dbc.Ctx).
		Model(&types.JourneyAssignment{}).
		Where("id = ? AND status = ?", asg.ID, prevStatus).
		Updates(map[string]any{
			"status":       asg.Status,
			"started_at":   asg.StartedAt,
			"completed_at": asg.CompletedAt,
			"total_xp":     asg.TotalXP,
			"updated_at":   asg.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ConflictError(fmt.Sprintf("assignment %s left status %q during write", asg.ID, prevStatus))
	}
	return nil
}

func isKnownAssignmentStatus(s string) bool {
	switch s {
	case types.AssignmentStatusAssigned, types.AssignmentStatusInProgress, types.AssignmentStatusCompleted:
		return true
	}
	return false
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(domainagg.CodeOf(err)))
}
