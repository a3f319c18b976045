package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

type mockAccounts struct {
	byEmail map[string]Account
	byID    map[int64]Account
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{byEmail: make(map[string]Account), byID: make(map[int64]Account)}
}

func (m *mockAccounts) add(a Account) {
	m.byEmail[a.Email] = a
	m.byID[a.ID] = a
}

func (m *mockAccounts) FindByEmail(ctx context.Context, email string) (Account, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return Account{}, shared.ErrInvalidCredentials
	}
	return a, nil
}

func (m *mockAccounts) FindPrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	a, ok := m.byID[userID]
	if !ok || !a.IsActive {
		return rbac.Principal{}, shared.ErrNotFound
	}
	return a.Principal(), nil
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestAuthService(t *testing.T) (*Service, *mockAccounts) {
	accounts := newMockAccounts()
	svc := NewService(accounts, []byte("test-secret"), time.Hour)
	return svc, accounts
}

func TestAuthenticateSuccess(t *testing.T) {
	svc, accounts := newTestAuthService(t)
	accounts.add(Account{
		ID: 1, Name: "Hana", Email: "hana@meridian.local",
		RoleName: "HR", PasswordHash: hashFor(t, "s3cret"), IsActive: true,
	})

	principal, session, err := svc.Authenticate(context.Background(), "hana@meridian.local", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), principal.ID)
	assert.Equal(t, "HR", principal.Role)
	assert.NotEmpty(t, session.Token)
	assert.True(t, session.ExpiresAt.After(time.Now()))
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc, accounts := newTestAuthService(t)
	accounts.add(Account{ID: 1, Email: "hana@meridian.local", PasswordHash: hashFor(t, "s3cret"), IsActive: true})

	_, _, err := svc.Authenticate(context.Background(), "hana@meridian.local", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc, _ := newTestAuthService(t)
	_, _, err := svc.Authenticate(context.Background(), "nobody@meridian.local", "x")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	svc, accounts := newTestAuthService(t)
	accounts.add(Account{ID: 1, Email: "hana@meridian.local", PasswordHash: hashFor(t, "s3cret"), IsActive: false})

	_, _, err := svc.Authenticate(context.Background(), "hana@meridian.local", "s3cret")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	svc, _ := newTestAuthService(t)

	session, err := svc.IssueToken(rbac.Principal{ID: 42, Email: "x@meridian.local", Role: "ADMIN"})
	require.NoError(t, err)

	userID, err := svc.VerifyToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestVerifyTokenExpired(t *testing.T) {
	accounts := newMockAccounts()
	svc := NewService(accounts, []byte("test-secret"), time.Hour)

	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }
	session, err := svc.IssueToken(rbac.Principal{ID: 42})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.VerifyToken(session.Token)
	assert.ErrorIs(t, err, shared.ErrTokenExpired)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	svc, _ := newTestAuthService(t)
	other := NewService(newMockAccounts(), []byte("other-secret"), time.Hour)

	session, err := other.IssueToken(rbac.Principal{ID: 42})
	require.NoError(t, err)

	_, err = svc.VerifyToken(session.Token)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestVerifyTokenGarbage(t *testing.T) {
	svc, _ := newTestAuthService(t)
	_, err := svc.VerifyToken("not.a.token")
	assert.Error(t, err)
}
