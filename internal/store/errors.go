package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDuplicate        = errors.New("duplicate value")
	ErrAlreadyInvited   = errors.New("user already invited")
	ErrInUse            = errors.New("record is still referenced")
	ErrInvalidReference = errors.New("referenced record does not exist")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify maps constraint violations onto store sentinels.
func classify(err error) error {
	switch pgCode(err) {
	case uniqueViolation:
		return ErrDuplicate
	case foreignKeyViolation:
		return ErrInvalidReference
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
