package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/modules/journeys"
)

// writeError is a failure raised inside an aggregate write that already
// knows its code. MapError turns it into a domainagg.Error at the boundary.
type writeError struct {
	code  domainagg.ErrorCode
	msg   string
	cause error
}

func (e *writeError) Error() string {
	if e.cause != nil && e.msg == "" {
		return e.cause.Error()
	}
	return e.msg
}

func (e *writeError) Unwrap() error { return e.cause }

func tagged(code domainagg.ErrorCode, msg string) error {
	return &writeError{code: code, msg: strings.TrimSpace(msg)}
}

func ValidationError(msg string) error   { return tagged(domainagg.CodeValidation, msg) }
func InvariantError(msg string) error    { return tagged(domainagg.CodeInvariantViolation, msg) }
func ConflictError(msg string) error     { return tagged(domainagg.CodeConflict, msg) }
func RetryableError(msg string) error    { return tagged(domainagg.CodeRetryable, msg) }
func ForbiddenError(msg string) error    { return tagged(domainagg.CodeForbidden, msg) }
func PreconditionError(msg string) error { return tagged(domainagg.CodePreconditionFailed, msg) }

// RejectionError reports a validator rejection as a validation failure. The
// rejection stays reachable through errors.As.
func RejectionError(rej *journeys.Rejection) error {
	if rej == nil {
		return nil
	}
	return &writeError{code: domainagg.CodeValidation, cause: rej}
}

// pgCodes maps Postgres SQLSTATE values the journey tables can raise.
var pgCodes = map[string]domainagg.ErrorCode{
	"23505": domainagg.CodeConflict,           // unique_violation: double assign, double grant
	"23503": domainagg.CodePreconditionFailed, // foreign_key_violation: catalog row removed underneath
	"40001": domainagg.CodeRetryable,          // serialization_failure
	"40P01": domainagg.CodeRetryable,          // deadlock_detected
	"55P03": domainagg.CodeRetryable,          // lock_not_available
}

// MapError classifies any failure from a progression write or read into a
// domainagg.Error. Already-classified errors pass through untouched.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*domainagg.Error); ok {
		return err
	}
	var we *writeError
	if errors.As(err, &we) {
		return domainagg.Wrap(we.code, op, err)
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domainagg.Wrap(domainagg.CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := pgCodes[strings.TrimSpace(pgErr.Code)]; ok {
			return domainagg.Wrap(code, op, err)
		}
	}

	// sqlite surfaces constraint and locking failures only as text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint failed"),
		strings.Contains(msg, "duplicate key"):
		return domainagg.Wrap(domainagg.CodeConflict, op, err)
	case strings.Contains(msg, "foreign key constraint failed"):
		return domainagg.Wrap(domainagg.CodePreconditionFailed, op, err)
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "deadlock"):
		return domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}
	return domainagg.Wrap(domainagg.CodeInternal, op, err)
}
