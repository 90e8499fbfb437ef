package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/com2u/Pickup/internal/core/domain"
	"github.com/com2u/Pickup/internal/port"
)

const (
	tokenTTL   = 24 * time.Hour
	bcryptCost = 10
)

// AuthService issues and verifies credentials at the edge. The core only
// ever sees the resolved domain.Identity this service produces.
type AuthService struct {
	users  port.UserRepository
	secret []byte
	log    *zap.Logger
}

func NewAuthService(users port.UserRepository, secret []byte, log *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		secret: secret,
		log:    log,
	}
}

// Login verifies the password and returns a signed token plus the user.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		s.log.Warn("login attempt with unknown username", zap.String("username", username))
		return "", nil, domain.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.Warn("login attempt with invalid password",
			zap.String("username", user.Username),
			zap.Int64("user", user.ID),
		)
		return "", nil, domain.ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}

	s.log.Info("user login successful",
		zap.Int64("user", user.ID),
		zap.String("username", user.Username),
	)
	return token, user, nil
}

// Identify resolves a bearer token to the caller's identity.
func (s *AuthService) Identify(ctx context.Context, tokenString string) (domain.Identity, *domain.User, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.Identity{}, nil, domain.ErrInvalidCredentials
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return domain.Identity{}, nil, domain.ErrInvalidCredentials
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return domain.Identity{}, nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.Identity{}, nil, err
	}
	if user == nil {
		return domain.Identity{}, nil, domain.ErrInvalidCredentials
	}

	return domain.Identity{UserID: user.ID, IsPrivileged: user.IsPrivileged()}, user, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, ident domain.Identity) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// Register creates a new account. Privileged callers only.
func (s *AuthService) Register(ctx context.Context, ident domain.Identity, username, password string) (*domain.User, error) {
	if !ident.IsPrivileged {
		return nil, domain.ErrForbidden
	}

	existing, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Int64("user", user.ID), zap.String("username", username))
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.ListUsers(ctx)
}

// ChangePassword is allowed for privileged callers and for the user
// changing their own password.
func (s *AuthService) ChangePassword(ctx context.Context, ident domain.Identity, targetID int64, password string) error {
	if !ident.IsPrivileged && ident.UserID != targetID {
		return domain.ErrForbidden
	}

	user, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrUserNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, targetID, string(hash))
}

// DeleteUser removes an account. Privileged callers only; the admin
// account itself can never be deleted.
func (s *AuthService) DeleteUser(ctx context.Context, ident domain.Identity, targetID int64) error {
	if !ident.IsPrivileged {
		return domain.ErrForbidden
	}

	user, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrUserNotFound
	}
	if user.IsPrivileged() {
		return domain.ErrAdminProtected
	}

	if err := s.users.DeleteUser(ctx, targetID); err != nil {
		return err
	}
	s.log.Info("user deleted", zap.Int64("user", targetID), zap.Int64("actor", ident.UserID))
	return nil
}
