package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for any login failure; the cause is never
// disclosed to the caller.
var ErrBadCredentials = errors.New("invalid username or password")

// Service authenticates the configured operator
type Service struct {
	jwtManager *JWTManager
	username   string
	passHash   string // bcrypt
}

// NewService creates an auth service for the single operator identity
func NewService(jwtManager *JWTManager, username, passHash string) *Service {
	return &Service{
		jwtManager: jwtManager,
		username:   username,
		passHash:   passHash,
	}
}

// Login verifies operator credentials and issues a token
func (s *Service) Login(username, password string) (string, error) {
	if username != s.username || s.passHash == "" {
		return "", ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passHash), []byte(password)); err != nil {
		return "", ErrBadCredentials
	}
	return s.jwtManager.GenerateToken(username)
}

// HashPassword produces a bcrypt hash for operator provisioning
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
