package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField pulls the column list out of "Key (email)=(x) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// constraintSuffixes are the naming conventions used by the migrations.
var constraintSuffixes = []string{"_key", "_check", "_unique", "_idx", "_fkey"}

// constraintTables are stripped from constraint names when inferring a field.
var constraintTables = []string{"identities_", "profiles_"}

// MapDBError converts driver and context errors from the identity and profile stores into
// AppErrors. Errors it does not recognize are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "request timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "request canceled", Cause: err}
	case errors.Is(err, pgx.ErrNoRows):
		return &AppError{Code: ErrCodeNotFound, Message: "not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{Code: ErrCodeConflict, Message: "value already exists", Field: conflictField(pgErr), Cause: pgErr}
	case pgerrcode.CheckViolation:
		return &AppError{Code: ErrCodeValidation, Message: "invalid value", Field: violationField(pgErr), Cause: pgErr}
	case pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: "value is required", Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.ForeignKeyViolation:
		return &AppError{Code: ErrCodeForeignKey, Message: "referenced record does not exist", Cause: pgErr}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: pgErr}
	}
}

// conflictField prefers column metadata, then the detail message, then the constraint name.
// Multi-column keys yield "".
func conflictField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		if strings.Contains(m[1], ",") {
			return ""
		}
		return unwrapExpression(m[1])
	}
	return fieldFromConstraint(pgErr.ConstraintName)
}

func violationField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	return fieldFromConstraint(pgErr.ConstraintName)
}

// unwrapExpression turns "lower(email)" into "email".
func unwrapExpression(col string) string {
	col = strings.TrimSpace(col)
	if open := strings.IndexByte(col, '('); open >= 0 && strings.HasSuffix(col, ")") {
		return strings.TrimSpace(col[open+1 : len(col)-1])
	}
	return col
}

// fieldFromConstraint infers a single column from names like "profiles_role_check".
func fieldFromConstraint(name string) string {
	name = strings.ToLower(name)
	table := ""
	for _, prefix := range constraintTables {
		if strings.HasPrefix(name, prefix) {
			table = prefix
			break
		}
	}
	if table == "" {
		return ""
	}
	rest := strings.TrimPrefix(name, table)
	for _, suffix := range constraintSuffixes {
		if strings.HasSuffix(rest, suffix) {
			rest = strings.TrimSuffix(rest, suffix)
			if rest == "" || strings.Contains(rest, "_") {
				return ""
			}
			return rest
		}
	}
	return ""
}
