package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"dms-backend/internal/users"
)

const bcryptCost = 10

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// TokenIssuer signs access tokens for an authenticated user.
type TokenIssuer interface {
	Sign(userID, email string) (string, error)
}

// Service registers and authenticates users.
type Service struct {
	Users  users.Repo
	Tokens TokenIssuer
	cost   int

	dummyOnce sync.Once
	dummy     []byte
}

func NewService(repo users.Repo, tokens TokenIssuer) *Service {
	return &Service{Users: repo, Tokens: tokens, cost: bcryptCost}
}

// Register creates a user and returns a signed token.
func (s *Service) Register(ctx context.Context, email, password string) (string, error) {
	if err := validateCredentials(email, password); err != nil {
		return "", err
	}

	if _, err := s.Users.GetByEmail(ctx, email); err == nil {
		return "", users.ErrDuplicateEmail
	} else if !errors.Is(err, users.ErrNotFound) {
		return "", fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost())
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.Users.Create(ctx, users.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return "", users.ErrDuplicateEmail
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	return s.Tokens.Sign(user.ID, user.Email)
}

// Login verifies credentials. Unknown email and wrong password both yield
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, users.Summary, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return "", users.Summary{}, ErrInvalidCredentials
	}

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
			return "", users.Summary{}, ErrInvalidCredentials
		}
		return "", users.Summary{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", users.Summary{}, ErrInvalidCredentials
	}

	token, err := s.Tokens.Sign(user.ID, user.Email)
	if err != nil {
		return "", users.Summary{}, err
	}
	return token, user.Summary(), nil
}

func (s *Service) bcryptCost() int {
	if s.cost == 0 {
		return bcryptCost
	}
	return s.cost
}

func (s *Service) dummyHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummy, _ = bcrypt.GenerateFromPassword([]byte("placeholder-password"), s.bcryptCost())
	})
	return s.dummy
}

func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if len(password) > 72 {
		return fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidInput)
	}
	return nil
}
