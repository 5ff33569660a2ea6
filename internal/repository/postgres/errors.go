package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories react to
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// pgCode extracts the SQLSTATE of a server error, "" for anything else
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsPgDuplicateError reports a unique constraint violation: a duplicate
// grant for the same recipient, a second account for the same email, or a
// sibling folder name that is already taken.
func IsPgDuplicateError(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// IsPgForeignKeyError reports a dangling reference. On insert it means the
// parent row is gone; on delete it means children still point at the row.
func IsPgForeignKeyError(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

// IsPgNoRowsError reports that a single-row query matched nothing
func IsPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isRetryableTx reports failures after which the whole transaction can be
// replayed: serialization conflicts between concurrent quota reservations
// and deadlocks between cascades touching the same grants.
func isRetryableTx(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// emptyIDs reports whether a batch query can be skipped entirely
func emptyIDs(ids []string) bool {
	return len(ids) == 0
}
