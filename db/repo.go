package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"library_lending/apperr"
)

// Repo is the postgres Store.
type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return apperr.Dependency("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperr.Dependency("ping", err)
	}
	return nil
}

const (
	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02" // e.g. "abc" against a uuid column
)

// validID reports whether id can be a primary key here. Anything else cannot match a row,
// so finders answer NotFound without a round trip.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// classify maps driver errors onto apperr kinds. what/id describe the record for NotFound.
func classify(op, what, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what, id)
	}
	if pgCode(err) == invalidTextRepresentation {
		return apperr.NotFound(what, id)
	}
	if isUniqueViolation(err) {
		return apperr.Conflict(op + ": " + what + " already exists")
	}
	return apperr.Dependency(op, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return pgCode(err) == uniqueViolation
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
