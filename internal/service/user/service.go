package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/whatleads/campaignd/internal/storage"
	"github.com/whatleads/campaignd/internal/storage/model"
)

var (
	ErrInvalidEmail    = errors.New("email inválido")
	ErrInvalidPassword = errors.New("senha deve ter ao menos 8 caracteres")
	ErrEmailTaken      = errors.New("email já cadastrado")
)

type Service struct {
	repo storage.UserRepository
}

func NewService(repo storage.UserRepository) *Service {
	return &Service{repo: repo}
}

type CreateInput struct {
	Email    string
	Password string
	Role     string
}

func (s *Service) Create(ctx context.Context, input CreateInput) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, ErrInvalidEmail
	}
	if len(input.Password) < 8 {
		return model.User{}, ErrInvalidPassword
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return model.User{}, ErrEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return model.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}

	role := input.Role
	if role == "" {
		role = "user"
	}

	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	return s.repo.Create(ctx, user)
}

func (s *Service) Get(ctx context.Context, id string) (model.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.User, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
