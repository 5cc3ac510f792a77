package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/Dosada05/esports-betting/models"
	"github.com/Dosada05/esports-betting/repositories"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // предел bcrypt
	maxUsernameLength = 50
)

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, input LoginInput) (*models.User, error)
	GetUser(ctx context.Context, userID int) (*models.User, error)
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string
	Password string
}

type authService struct {
	userRepo   repositories.UserRepository
	bcryptCost int
}

func NewAuthService(userRepo repositories.UserRepository) AuthService {
	return &authService{
		userRepo:   userRepo,
		bcryptCost: bcrypt.DefaultCost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegister(input RegisterInput) error {
	v := newValidator()
	username := strings.TrimSpace(input.Username)
	v.check(username != "", "username", "is required")
	v.check(utf8.RuneCountInString(username) <= maxUsernameLength, "username", fmt.Sprintf("must be at most %d characters", maxUsernameLength))

	email := normalizeEmail(input.Email)
	v.check(email != "", "email", "is required")
	if email != "" {
		_, err := mail.ParseAddress(email)
		v.check(err == nil, "email", "must be a valid email address")
	}

	v.check(input.Password != "", "password", "is required")
	v.check(len(input.Password) >= minPasswordLength, "password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	v.check(len(input.Password) <= maxPasswordLength, "password", fmt.Sprintf("must be at most %d bytes", maxPasswordLength))
	return v.err()
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if err := validateRegister(input); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хеширования пароля: %w", err)
	}

	user := &models.User{
		Username:     strings.TrimSpace(input.Username),
		Email:        normalizeEmail(input.Email),
		PasswordHash: string(hashedPassword),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repositories.ErrUserEmailConflict):
			return nil, ErrUserEmailConflict
		case errors.Is(err, repositories.ErrUserUsernameConflict):
			return nil, ErrUserUsernameConflict
		default:
			return nil, fmt.Errorf("ошибка создания пользователя: %w", err)
		}
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	v := newValidator()
	v.check(strings.TrimSpace(input.Email) != "", "email", "is required")
	v.check(input.Password != "", "password", "is required")
	if err := v.err(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *authService) GetUser(ctx context.Context, userID int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	user.PasswordHash = ""
	return user, nil
}
