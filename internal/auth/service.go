package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// AccountSource abstracts account lookups for the auth service.
type AccountSource interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindPrincipal(ctx context.Context, userID int64) (rbac.Principal, error)
}

// Claims is the bearer token payload.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Session is the login result returned to clients.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service authenticates credentials and issues signed bearer tokens.
type Service struct {
	accounts AccountSource
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewService constructs the auth service.
func NewService(accounts AccountSource, secret []byte, ttl time.Duration) *Service {
	return &Service{accounts: accounts, secret: secret, ttl: ttl, now: time.Now}
}

// Authenticate verifies credentials and returns the principal plus a fresh
// session token. All failure paths collapse to shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (rbac.Principal, Session, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return rbac.Principal{}, Session{}, shared.ErrInvalidCredentials
		}
		return rbac.Principal{}, Session{}, err
	}
	if !account.IsActive {
		return rbac.Principal{}, Session{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return rbac.Principal{}, Session{}, shared.ErrInvalidCredentials
	}

	principal := account.Principal()
	session, err := s.IssueToken(principal)
	if err != nil {
		return rbac.Principal{}, Session{}, err
	}
	return principal, session, nil
}

// IssueToken signs an HS256 bearer token for the principal.
func (s *Service) IssueToken(principal rbac.Principal) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   formatSubject(principal.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: principal.Email,
		Role:  principal.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt}, nil
}

// VerifyToken parses a bearer token and returns the subject user id.
func (s *Service) VerifyToken(token string) (int64, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, shared.ErrTokenExpired
		}
		return 0, shared.ErrInvalidCredentials
	}
	if !parsed.Valid {
		return 0, shared.ErrInvalidCredentials
	}
	userID, err := parseSubject(claims.Subject)
	if err != nil {
		return 0, shared.ErrInvalidCredentials
	}
	return userID, nil
}

// Principal resolves the request identity for a verified user id.
func (s *Service) Principal(ctx context.Context, userID int64) (rbac.Principal, error) {
	return s.accounts.FindPrincipal(ctx, userID)
}
