package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-systems/enroll-api/internal/models"
	"github.com/campus-systems/enroll-api/pkg/config"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

type mockUserRepo struct {
	created *models.User
	byEmail map[string]*models.User
	err     error
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.err != nil {
		return m.err
	}
	m.created = user
	return nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range m.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "enroll-api"}
}

func TestAuthServiceRegisterStudent(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewAuthService(repo, testJWTConfig(), nil, zap.NewNop())

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:      "ada@example.com",
		Password:   "hunter22",
		FullName:   "Ada Lovelace",
		Role:       "student",
		RollNumber: "R-1001",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.Equal(t, models.RoleStudent, res.User.Role)

	require.NotNil(t, repo.created)
	require.NotEqual(t, "hunter22", repo.created.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created.PasswordHash), []byte("hunter22")))
	require.NotNil(t, repo.created.RollNumber)
	require.Equal(t, "R-1001", *repo.created.RollNumber)
}

func TestAuthServiceRegisterStudentRequiresRollNumber(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, testJWTConfig(), nil, zap.NewNop())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "ada@example.com",
		Password: "hunter22",
		FullName: "Ada Lovelace",
		Role:     "student",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockUserRepo{byEmail: map[string]*models.User{
		"ada@example.com": {
			ID:           "user-1",
			Email:        "ada@example.com",
			PasswordHash: string(hash),
			Role:         models.RoleStudent,
			FullName:     "Ada Lovelace",
		},
	}}
	svc := NewAuthService(repo, testJWTConfig(), nil, zap.NewNop())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "hunter22"})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
	require.Equal(t, int64(3600), res.ExpiresIn)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockUserRepo{byEmail: map[string]*models.User{
		"ada@example.com": {ID: "user-1", Email: "ada@example.com", PasswordHash: string(hash)},
	}}
	svc := NewAuthService(repo, testJWTConfig(), nil, zap.NewNop())

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, testJWTConfig(), nil, zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "whatever"})
	require.Error(t, err)
	// Unknown email and wrong password must be indistinguishable.
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsTampering(t *testing.T) {
	svc := NewAuthService(&mockUserRepo{}, testJWTConfig(), nil, zap.NewNop())
	other := NewAuthService(&mockUserRepo{}, config.JWTConfig{Secret: "other-secret", Expiration: time.Hour}, nil, zap.NewNop())

	res, err := other.issueToken(&models.User{ID: "user-1", Email: "ada@example.com", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = svc.ValidateToken(res.AccessToken)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
