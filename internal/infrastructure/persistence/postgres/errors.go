package postgres

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/turtacn/compliance-advisor/pkg/errors"
)

// PostgreSQL SQLSTATE codes the repositories translate.
const (
	pgForeignKeyViolation   = "23503"
	pgRaiseException        = "P0001"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgConnectionExceptionCl = "08"
)

// translate maps a driver error onto the application taxonomy. Errors that are
// already *errors.AppError pass through unchanged.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound("%s: record not found", op).WithCause(err)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgForeignKeyViolation:
			return errors.Referential("%s: %s", op, pgErr.Message).WithCause(err)
		case pgErr.Code == pgRaiseException:
			return errors.Invariant("%s: %s", op, pgErr.Message).WithCause(err)
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected,
			strings.HasPrefix(pgErr.Code, pgConnectionExceptionCl):
			return errors.TransientUpstream("%s: %s", op, pgErr.Message).WithCause(err)
		}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return errors.TransientUpstream("%s: %v", op, err).WithCause(err)
	}

	// SQLite reports constraint and trigger failures only through the message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return errors.Referential("%s: %s", op, msg).WithCause(err)
	case strings.Contains(msg, auditImmutableMessage):
		return errors.Invariant("%s: %s", op, msg).WithCause(err)
	case strings.Contains(msg, "database is locked"):
		return errors.TransientUpstream("%s: %s", op, msg).WithCause(err)
	}

	return fmt.Errorf("%w: %s: %v", errors.ErrDatabaseOperation, op, err)
}
