package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/whatleads/campaignd/internal/storage/model"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
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
