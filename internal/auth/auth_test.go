package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayoubbns/vinscan/internal/db"
	"github.com/ayoubbns/vinscan/internal/domain"
	"github.com/ayoubbns/vinscan/internal/store"
)

func newTestService(t *testing.T, ttl time.Duration) (*Service, *store.OperatorStore) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	operators := store.NewOperatorStore(database)
	return NewService(operators, "test-secret", ttl), operators
}

func TestEncodeSecret(t *testing.T) {
	assert.Equal(t, "MTIzNA==", EncodeSecret("1234"))
}

func TestLogin_SeedAdmin(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	op, token, err := svc.Login(context.Background(), "admin", "1234")
	require.NoError(t, err)
	assert.Equal(t, domain.SeedAdminID, op.ID)
	assert.Equal(t, "Administrateur", op.Name)
	assert.NotEmpty(t, token)
}

func TestLogin_UsernameIsCaseFolded(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	op, _, err := svc.Login(context.Background(), "  ADMIN ", "1234")
	require.NoError(t, err)
	assert.Equal(t, domain.SeedAdminID, op.ID)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	_, _, err := svc.Login(context.Background(), "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidLogin)
}

func TestLogin_UnknownUser(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	_, _, err := svc.Login(context.Background(), "nobody", "1234")
	assert.ErrorIs(t, err, ErrInvalidLogin)
}

func TestAuthenticate_RoundTrip(t *testing.T) {
	svc, operators := newTestService(t, time.Hour)

	created, err := operators.Create(context.Background(), &domain.Operator{
		Username:    "agent1",
		Secret:      EncodeSecret("s3cret"),
		Name:        "Agent Un",
		Role:        domain.RoleAgent,
		Permissions: domain.DefaultPermissions(domain.RoleAgent),
	})
	require.NoError(t, err)

	_, token, err := svc.Login(context.Background(), "agent1", "s3cret")
	require.NoError(t, err)

	op, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, op.ID)
	assert.True(t, op.Permissions.Scanner)
	assert.False(t, op.Permissions.ConfigUsers)
}

func TestAuthenticate_Garbage(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)

	_, err := svc.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidLogin)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	svc, operators := newTestService(t, time.Hour)

	other := NewService(operators, "other-secret", time.Hour)
	token, err := other.mint(domain.SeedAdminID, time.Now())
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidLogin)
}

func TestAuthenticate_Expired(t *testing.T) {
	svc, _ := newTestService(t, -time.Minute)

	_, token, err := svc.Login(context.Background(), "admin", "1234")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidLogin)
}

func TestAuthenticate_DeletedOperator(t *testing.T) {
	svc, operators := newTestService(t, time.Hour)

	created, err := operators.Create(context.Background(), &domain.Operator{
		Username: "agent2",
		Secret:   EncodeSecret("pw"),
		Name:     "Agent Deux",
		Role:     domain.RoleAgent,
	})
	require.NoError(t, err)

	_, token, err := svc.Login(context.Background(), "agent2", "pw")
	require.NoError(t, err)

	require.NoError(t, operators.Delete(context.Background(), created.ID))

	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidLogin)
}
