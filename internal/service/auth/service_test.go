package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

type fakeUserRepo struct {
	user model.User
	ok   bool
}

func (f *fakeUserRepo) Create(_ context.Context, u model.User) (model.User, error) { return u, nil }

func (f *fakeUserRepo) GetByID(_ context.Context, _ string) (model.User, error) {
	if !f.ok {
		return model.User{}, storage.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (model.User, error) {
	if !f.ok || f.user.Email != email {
		return model.User{}, storage.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]model.User, error) { return nil, nil }
func (f *fakeUserRepo) Delete(_ context.Context, _ string) error     { return nil }

func repoWithUser(t *testing.T, password string) *fakeUserRepo {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &fakeUserRepo{
		ok: true,
		user: model.User{
			ID:           "user-1",
			Email:        "ana@exemplo.com",
			PasswordHash: string(hash),
			Role:         "user",
		},
	}
}

func TestLoginAndValidateToken(t *testing.T) {
	svc := NewService("segredo-dos-testes", 24, repoWithUser(t, "senha-correta"))

	token, user, err := svc.Login(context.Background(), "ana@exemplo.com", "senha-correta")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	require.NotEmpty(t, token)

	sub, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := NewService("segredo-dos-testes", 24, repoWithUser(t, "senha-correta"))
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "ana@exemplo.com", "senha-errada")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// email desconhecido devolve o mesmo erro, sem vazar existência de conta
	_, _, err = svc.Login(ctx, "outra@exemplo.com", "senha-correta")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsForgery(t *testing.T) {
	svc := NewService("segredo-dos-testes", 24, repoWithUser(t, "senha-correta"))
	outro := NewService("outro-segredo", 24, repoWithUser(t, "senha-correta"))

	token, _, err := outro.Login(context.Background(), "ana@exemplo.com", "senha-correta")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.ValidateToken("não-é-um-jwt")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
