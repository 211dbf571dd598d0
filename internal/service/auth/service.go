package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/uww-saigusa/messageboard/internal/domain"
	"github.com/uww-saigusa/messageboard/internal/repository"
	"github.com/uww-saigusa/messageboard/pkg/config"
	"github.com/uww-saigusa/messageboard/pkg/crypto"
	jwtpkg "github.com/uww-saigusa/messageboard/pkg/jwt"
)

var (
	// ErrUnauthenticated covers every reason a bearer token cannot be accepted.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrIdentityNotFound means the token was genuine but its subject no longer
	// exists. It matches ErrUnauthenticated under errors.Is.
	ErrIdentityNotFound = fmt.Errorf("%w: identity not found", ErrUnauthenticated)
	// ErrInvalidCredentials is returned by Login for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrEmailTaken is returned by Register when the email already has an account.
	ErrEmailTaken = errors.New("auth: email already registered")
)

// TokenTypeBearer is reported alongside issued access tokens.
const TokenTypeBearer = "bearer"

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// TokenService signs and verifies access tokens.
type TokenService interface {
	Issue(claims jwtpkg.Claims, ttl time.Duration) (string, error)
	Verify(token string) (jwtpkg.Claims, error)
	// TTL is the lifetime applied when Issue receives a non-positive ttl.
	TTL() time.Duration
}

// Service handles registration, login and bearer token resolution.
type Service struct {
	store     repository.Store
	hasher    PasswordHasher
	tokens    TokenService
	logger    *slog.Logger
	accessTTL time.Duration
	now       func() time.Time
}

// New constructs a Service.
func New(store repository.Store, hasher PasswordHasher, tokens TokenService, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logger,
		accessTTL: cfg.AccessTokenTTL,
		now:       time.Now,
	}
}

// AccessToken is the result of a successful login.
type AccessToken struct {
	Token     string
	Type      string
	ExpiresIn time.Duration
}

// Register creates a user with a hashed password.
func (s Service) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if verr := domain.ValidateCredentials(email, password); verr != nil {
		return nil, verr
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return nil, &domain.ValidationError{Field: "password", Message: "password is too long"}
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.Session(ctx, func(sess repository.Session) error {
		if _, err := sess.GetUserByEmail(ctx, email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := sess.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrEmailTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login checks credentials and issues an access token for the user's email.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, AccessToken, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, AccessToken{}, ErrInvalidCredentials
	}
	var user *domain.User
	err := s.store.Session(ctx, func(sess repository.Session) error {
		found, err := sess.GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		user = found
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("login rejected", "reason", "unknown email")
			return nil, AccessToken{}, ErrInvalidCredentials
		}
		return nil, AccessToken{}, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logger.Warn("login rejected", "reason", "password mismatch", "user_id", user.ID)
		return nil, AccessToken{}, ErrInvalidCredentials
	}
	ttl := s.accessTTL
	if ttl <= 0 {
		ttl = s.tokens.TTL()
	}
	token, err := s.tokens.Issue(jwtpkg.Claims{Subject: user.Email}, ttl)
	if err != nil {
		return nil, AccessToken{}, fmt.Errorf("issue access token: %w", err)
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, AccessToken{Token: token, Type: TokenTypeBearer, ExpiresIn: ttl}, nil
}

// Authorize validates a bearer token and returns the user it names.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := s.tokens.Verify(trimmed)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	var user *domain.User
	err = s.store.Session(ctx, func(sess repository.Session) error {
		found, err := sess.GetUserByEmail(ctx, claims.Subject)
		if err != nil {
			return err
		}
		user = found
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("resolve token subject: %w", err)
	}
	return user, nil
}
