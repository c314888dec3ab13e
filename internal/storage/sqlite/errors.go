package sqlite

import (
	"database/sql"
	"errors"

	"github.com/whatleads/campaignd/internal/storage/model"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
