package repository

import (
	"errors"

	"idportal/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// translate turns driver errors into apperr kinds; anything else passes through.
func translate(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity + " not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return apperr.New(apperr.KindConflict, entity+" already exists", err)
	}
	return err
}

// likePattern escapes LIKE wildcards in user input.
func likePattern(search string) string {
	r := make([]rune, 0, len(search)+2)
	r = append(r, '%')
	for _, c := range search {
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return string(append(r, '%'))
}
