package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/vovakirdan/commhub-server/internal/core"
	"github.com/vovakirdan/commhub-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("username already used")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidEmail is returned when the email address cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrNotAccountOwner is returned when a user tries to delete someone else's account.
	ErrNotAccountOwner = core.NewError(core.ErrForbidden, "Not authorized to delete this user")
	// ErrUserNotFound is returned when the account to delete does not exist.
	ErrUserNotFound = core.NewError(core.ErrNotFound, "User not found")
)

const defaultAvatarURL = "https://api.multiavatar.com/"

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns it with a JWT token.
func (s *Service) Register(ctx context.Context, username, email, password string) (string, *store.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return "", nil, ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", nil, ErrInvalidPassword
	}
	email = strings.TrimSpace(email)
	if email != "" && !strings.Contains(email, "@") {
		return "", nil, ErrInvalidEmail
	}

	if existing, err := s.store.GetUserByUsername(ctx, username); err == nil && existing != nil {
		return "", nil, ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	user := &store.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		AvatarImage:  defaultAvatarURL + url.PathEscape(username) + ".svg",
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", nil, ErrUserExists
		}
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// Login validates credentials and returns a JWT token with the user.
func (s *Service) Login(ctx context.Context, username, password string) (string, *store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	return token, user, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// DeleteAccount removes the account id. Only its owner may delete it.
func (s *Service) DeleteAccount(ctx context.Context, requester, id string) error {
	if requester == "" || requester != id {
		return ErrNotAccountOwner
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
