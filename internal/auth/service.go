// Package auth implements the credential service: bcrypt password hashing,
// HS256 bearer tokens, and the lookups that tie a token back to a live user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"soundcrate/internal/apperr"
	"soundcrate/internal/models"
	"soundcrate/internal/storage"
)

// Client-facing credential messages.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgTokenFailed        = "Not authorized, token failed"
	MsgUserNotFound       = "Not authorized, user not found"
	MsgPasswordRequired   = "Password is required"
)

// UserStore is the slice of storage.Repository the credential service needs.
type UserStore interface {
	CreateUser(ctx context.Context, params storage.CreateUserParams) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	UpdateUser(ctx context.Context, id string, patch storage.UserPatch) (models.User, error)
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithPasswordCost sets the bcrypt cost used for new hashes.
func WithPasswordCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.cost = cost
		}
	}
}

// WithLogger sets the logger used for credential events.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service registers users, checks passwords, and verifies bearer tokens.
type Service struct {
	users  UserStore
	tokens *TokenManager
	cost   int
	logger *slog.Logger
}

// NewService wires a Service to its user store and token manager.
func NewService(users UserStore, tokens *TokenManager, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token manager is required")
	}
	service := &Service{
		users:  users,
		tokens: tokens,
		cost:   DefaultPasswordCost,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service, nil
}

// Login is the outcome of a successful Authenticate call.
type Login struct {
	User      models.User
	Token     string
	ExpiresAt time.Time
}

// Register creates a non-admin user. Only the bcrypt hash of password is
// stored.
func (s *Service) Register(ctx context.Context, name, email, password string) (models.User, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	user, err := s.users.CreateUser(ctx, storage.CreateUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate checks email and password and issues a token. Unknown
// addresses and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Login, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Login{}, apperr.Auth(MsgInvalidCredentials)
	}
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Login{}, apperr.Auth(MsgInvalidCredentials)
		}
		return Login{}, err
	}
	ok, err := ComparePassword(user.PasswordHash, password)
	if err != nil {
		s.logger.Warn("stored password hash unreadable", "user_id", user.ID, "error", err)
		return Login{}, apperr.Auth(MsgInvalidCredentials)
	}
	if !ok {
		return Login{}, apperr.Auth(MsgInvalidCredentials)
	}
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Login{}, fmt.Errorf("issue token: %w", err)
	}
	return Login{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Verify resolves a bearer token to the user it was issued for.
func (s *Service) Verify(ctx context.Context, token string) (models.User, error) {
	userID, err := s.tokens.Parse(strings.TrimSpace(token))
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.KindAuth, err, MsgTokenFailed)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.User{}, apperr.Auth(MsgUserNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

// HashPassword enforces the password policy and hashes password.
func (s *Service) HashPassword(password string) (string, error) {
	if password == "" {
		return "", apperr.Validation(MsgPasswordRequired)
	}
	if len([]rune(password)) < MinPasswordLength {
		return "", apperr.Validation("Password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return "", apperr.Validation("Password must be at most %d bytes", MaxPasswordBytes)
	}
	return HashPassword(password, s.cost)
}

// ProfileUpdate lists the profile fields a user may change. Nil fields are
// left alone.
type ProfileUpdate struct {
	Name           *string
	Email          *string
	Password       *string
	ProfilePicture *string
}

// UpdateProfile applies update to the user, rehashing a new password.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (models.User, error) {
	patch := storage.UserPatch{
		Name:           update.Name,
		Email:          update.Email,
		ProfilePicture: update.ProfilePicture,
	}
	if update.Password != nil {
		hash, err := s.HashPassword(*update.Password)
		if err != nil {
			return models.User{}, err
		}
		patch.PasswordHash = &hash
	}
	return s.users.UpdateUser(ctx, userID, patch)
}

// BootstrapAdmin creates an admin account, or promotes the existing account
// with that email. A non-empty password replaces the stored one on
// promotion. The boolean reports whether a new user was created.
func (s *Service) BootstrapAdmin(ctx context.Context, name, email, password string) (models.User, bool, error) {
	existing, err := s.users.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		admin := true
		patch := storage.UserPatch{IsAdmin: &admin}
		if password != "" {
			hash, err := s.HashPassword(password)
			if err != nil {
				return models.User{}, false, err
			}
			patch.PasswordHash = &hash
		}
		promoted, err := s.users.UpdateUser(ctx, existing.ID, patch)
		if err != nil {
			return models.User{}, false, err
		}
		s.logger.Info("user promoted to admin", "user_id", promoted.ID)
		return promoted, false, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return models.User{}, false, err
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return models.User{}, false, err
	}
	created, err := s.users.CreateUser(ctx, storage.CreateUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      true,
	})
	if err != nil {
		return models.User{}, false, err
	}
	s.logger.Info("admin user created", "user_id", created.ID)
	return created, true, nil
}
