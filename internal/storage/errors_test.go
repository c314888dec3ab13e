package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whatleads/campaignd/internal/storage/model"
)

// O sentinela dos drivers e o reexportado aqui precisam ser o mesmo valor,
// senão errors.Is deixa de casar nos serviços que checam storage.ErrNotFound.
func TestErrNotFoundIsSharedSentinel(t *testing.T) {
	assert.ErrorIs(t, model.ErrNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrNotFound, model.ErrNotFound)
}
