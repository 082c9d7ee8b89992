package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/logger"
	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/pkg/apperror"
	"github.com/refermarket/referral-backend/internal/repository"
	"github.com/refermarket/referral-backend/internal/validation"
)

// AuthRepository описывает зависимости AuthService от слоя хранилища.
type AuthRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error
	SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error
	UpdateCompanies(ctx context.Context, userID uuid.UUID, companies []string) error
}

// AuthService инкапсулирует бизнес-логику регистрации и аутентификации.
type AuthService struct {
	repo         AuthRepository
	tokenManager *TokenManager
}

// RegisterInput содержит данные пользователя при регистрации.
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Role      string
	Companies []string
}

// LoginInput содержит данные для входа.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult возвращает итог регистрации или авторизации.
type AuthResult struct {
	User      *models.User
	TokenPair *TokenPair
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(repo AuthRepository, tokenManager *TokenManager) *AuthService {
	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
	}
}

// Register создаёт нового пользователя.
// Реферер регистрируется неподтверждённым: принимать запросы он сможет
// только после верификации места работы.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	if err := validation.ValidateName(in.Name); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	role := in.Role
	if role == "" {
		role = models.RoleSeeker
	}
	if role != models.RoleSeeker && role != models.RoleReferrer {
		return nil, fmt.Errorf("auth service: некорректная роль")
	}

	if role == models.RoleReferrer {
		if err := validation.ValidateCompanies(in.Companies); err != nil {
			return nil, fmt.Errorf("auth service: %w", err)
		}
	} else {
		in.Companies = nil
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, fmt.Errorf("auth service: email уже зарегистрирован")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth service: не удалось захешировать пароль: %w", err)
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(passHash),
		Role:         role,
		Verified:     false,
		Companies:    in.Companies,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	tokenPair, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// Login проверяет учётные данные и возвращает токены.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	user, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if err := s.repo.UpdateLastLoginAt(ctx, user.ID); err != nil {
		logger.Log.WithError(err).WithField("user_id", user.ID).Warn("auth service: не удалось обновить last_login_at")
	}

	tokenPair, err := s.tokenManager.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: user, TokenPair: tokenPair}, nil
}

// Refresh выпускает новую пару токенов по действующему refresh токену.
func (s *AuthService) Refresh(ctx context.Context, oldToken string) (*TokenPair, error) {
	claims, err := s.tokenManager.ParseRefresh(oldToken)
	if err != nil {
		return nil, fmt.Errorf("auth service: refresh токен невалиден: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("auth service: некорректный subject: %w", err)
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.tokenManager.GeneratePair(user)
}

// GetMe возвращает текущего пользователя.
func (s *AuthService) GetMe(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.repo.GetByID(ctx, userID)
}

// UpdateCompanies обновляет список компаний реферера.
// После изменения списка подтверждение сбрасывается.
func (s *AuthService) UpdateCompanies(ctx context.Context, userID uuid.UUID, companies []string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleReferrer {
		return nil, fmt.Errorf("auth service: компании указываются только у реферера")
	}
	if err := validation.ValidateCompanies(companies); err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	if err := s.repo.UpdateCompanies(ctx, userID, companies); err != nil {
		return nil, err
	}
	if user.Verified {
		if err := s.repo.SetVerified(ctx, userID, false); err != nil {
			return nil, err
		}
		user.Verified = false
	}
	user.Companies = companies
	return user, nil
}
