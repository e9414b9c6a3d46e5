package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-systems/enroll-api/internal/models"
	"github.com/campus-systems/enroll-api/pkg/config"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
)

type userRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AuthService handles registration, login, and token validation.
type AuthService struct {
	repo      userRepository
	jwtCfg    config.JWTConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuthService constructs AuthService.
func NewAuthService(repo userRepository, jwtCfg config.JWTConfig, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{repo: repo, jwtCfg: jwtCfg, validator: validate, logger: logger}
}

// Register creates an account and signs the user in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         models.UserRole(req.Role),
		FullName:     req.FullName,
	}
	if user.Role == models.RoleStudent {
		roll := req.RollNumber
		user.RollNumber = &roll
	}

	if err := s.repo.Create(ctx, user); err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		s.logger.Error("failed to create user", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return s.issueToken(user)
}

// Login authenticates the user and issues an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		var typed *appErrors.Error
		if errors.Is(err, sql.ErrNoRows) || (errors.As(err, &typed) && typed.Code == appErrors.ErrNotFound.Code) {
			return nil, appErrors.ErrInvalidCredentials
		}
		s.logger.Error("failed to look up user", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "login failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return s.issueToken(user)
}

// ValidateToken parses and verifies an access token, returning its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.ErrUnauthorized
		}
		return []byte(s.jwtCfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.ErrUnauthorized
	}
	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

func (s *AuthService) issueToken(user *models.User) (*models.LoginResponse, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.jwtCfg.Expiration)

	claims := models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.jwtCfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	return &models.LoginResponse{
		AccessToken: signed,
		ExpiresIn:   int64(s.jwtCfg.Expiration.Seconds()),
		IssuedAt:    now,
		User: models.UserInfo{
			ID:         user.ID,
			Email:      user.Email,
			FullName:   user.FullName,
			Role:       user.Role,
			RollNumber: user.RollNumber,
		},
	}, nil
}
