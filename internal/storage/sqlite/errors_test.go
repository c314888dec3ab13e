package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whatleads/campaignd/internal/storage/model"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	// Ausência de linha vira o sentinela compartilhado do pacote model, que é
	// o que os serviços testam com errors.Is.
	assert.ErrorIs(t, mapError(sql.ErrNoRows), model.ErrNotFound)
	assert.ErrorIs(t, mapError(fmt.Errorf("consulta: %w", sql.ErrNoRows)), model.ErrNotFound)

	outro := errors.New("disco cheio")
	assert.Equal(t, outro, mapError(outro))
}
