package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/pkg/apperror"
	"github.com/refermarket/referral-backend/internal/repository"
)

type mockAuthRepo struct {
	mock.Mock
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockAuthRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockAuthRepo) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockAuthRepo) SetVerified(ctx context.Context, userID uuid.UUID, verified bool) error {
	args := m.Called(ctx, userID, verified)
	return args.Error(0)
}

func (m *mockAuthRepo) UpdateCompanies(ctx context.Context, userID uuid.UUID, companies []string) error {
	args := m.Called(ctx, userID, companies)
	return args.Error(0)
}

func newTestTokenManager() *TokenManager {
	return NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 720*time.Hour)
}

func TestAuthService_Register_Seeker(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := NewAuthService(repo, newTestTokenManager())

	repo.On("GetByEmail", mock.Anything, "ivan@example.com").Return(nil, repository.ErrUserNotFound)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.User")).Return(nil)

	result, err := svc.Register(context.Background(), RegisterInput{
		Email:    "ivan@example.com",
		Password: "Passw0rdOk",
		Name:     "Иван",
		// Соискателю компании не нужны даже если переданы
		Companies: []string{"Acme"},
	})

	assert.NoError(t, err)
	assert.Equal(t, models.RoleSeeker, result.User.Role)
	assert.False(t, result.User.Verified)
	assert.Empty(t, result.User.Companies)
	assert.NotEmpty(t, result.TokenPair.AccessToken)
	repo.AssertExpectations(t)
}

func TestAuthService_Register_ReferrerRequiresCompanies(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := NewAuthService(repo, newTestTokenManager())

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "ref@example.com",
		Password: "Passw0rdOk",
		Name:     "Мария",
		Role:     models.RoleReferrer,
	})

	assert.Error(t, err)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := NewAuthService(repo, newTestTokenManager())

	existing := &models.User{ID: uuid.New(), Email: "taken@example.com"}
	repo.On("GetByEmail", mock.Anything, "taken@example.com").Return(existing, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "taken@example.com",
		Password: "Passw0rdOk",
		Name:     "Иван",
	})

	assert.Error(t, err)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_Login_Success(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := NewAuthService(repo, newTestTokenManager())

	hash, err := bcrypt.GenerateFromPassword([]byte("Passw0rdOk"), bcrypt.DefaultCost)
	assert.NoError(t, err)

	user := &models.User{
		ID:           uuid.New(),
		Email:        "ivan@example.com",
		PasswordHash: string(hash),
		Role:         models.RoleSeeker,
	}
	repo.On("GetByEmail", mock.Anything, "ivan@example.com").Return(user, nil)
	repo.On("UpdateLastLoginAt", mock.Anything, user.ID).Return(nil)

	result, err := svc.Login(context.Background(), LoginInput{
		Email:    "ivan@example.com",
		Password: "Passw0rdOk",
	})

	assert.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.NotEmpty(t, result.TokenPair.RefreshToken)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := NewAuthService(repo, newTestTokenManager())

	hash, _ := bcrypt.GenerateFromPassword([]byte("Passw0rdOk"), bcrypt.DefaultCost)
	user := &models.User{ID: uuid.New(), Email: "ivan@example.com", PasswordHash: string(hash)}
	repo.On("GetByEmail", mock.Anything, "ivan@example.com").Return(user, nil)

	_, err := svc.Login(context.Background(), LoginInput{
		Email:    "ivan@example.com",
		Password: "wrong-password",
	})

	assert.True(t, errors.Is(err, apperror.ErrInvalidCredentials))
}

func TestAuthService_Login_UnknownEmailSameError(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := NewAuthService(repo, newTestTokenManager())

	repo.On("GetByEmail", mock.Anything, "nobody@example.com").Return(nil, repository.ErrUserNotFound)

	_, err := svc.Login(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: "Passw0rdOk",
	})

	// Несуществующий email неотличим от неверного пароля
	assert.True(t, errors.Is(err, apperror.ErrInvalidCredentials))
}

func TestAuthService_Refresh_ReturnsNewPair(t *testing.T) {
	repo := new(mockAuthRepo)
	tokens := newTestTokenManager()
	svc := NewAuthService(repo, tokens)

	user := &models.User{ID: uuid.New(), Email: "ivan@example.com", Role: models.RoleSeeker}
	pair, err := tokens.GeneratePair(user)
	assert.NoError(t, err)

	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	newPair, err := svc.Refresh(context.Background(), pair.RefreshToken)
	assert.NoError(t, err)
	assert.NotEmpty(t, newPair.AccessToken)
	assert.NotEmpty(t, newPair.RefreshToken)
}

func TestAuthService_Refresh_RejectsGarbage(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := NewAuthService(repo, newTestTokenManager())

	_, err := svc.Refresh(context.Background(), "not-a-token")
	assert.Error(t, err)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestAuthService_UpdateCompanies_ResetsVerification(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := NewAuthService(repo, newTestTokenManager())

	user := &models.User{
		ID:        uuid.New(),
		Role:      models.RoleReferrer,
		Verified:  true,
		Companies: []string{"Acme"},
	}
	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	repo.On("UpdateCompanies", mock.Anything, user.ID, []string{"Globex"}).Return(nil)
	repo.On("SetVerified", mock.Anything, user.ID, false).Return(nil)

	updated, err := svc.UpdateCompanies(context.Background(), user.ID, []string{"Globex"})

	assert.NoError(t, err)
	assert.False(t, updated.Verified)
	assert.Equal(t, []string(updated.Companies), []string{"Globex"})
	repo.AssertExpectations(t)
}

func TestAuthService_UpdateCompanies_SeekerRejected(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := NewAuthService(repo, newTestTokenManager())

	user := &models.User{ID: uuid.New(), Role: models.RoleSeeker}
	repo.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	_, err := svc.UpdateCompanies(context.Background(), user.ID, []string{"Acme"})

	assert.Error(t, err)
	repo.AssertNotCalled(t, "UpdateCompanies", mock.Anything, mock.Anything, mock.Anything)
}
