package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/whatleads/campaignd/internal/storage/model"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	assert.ErrorIs(t, mapError(pgx.ErrNoRows), model.ErrNotFound)
	assert.ErrorIs(t, mapError(fmt.Errorf("consulta: %w", pgx.ErrNoRows)), model.ErrNotFound)

	outro := errors.New("conexão recusada")
	assert.Equal(t, outro, mapError(outro))
}
