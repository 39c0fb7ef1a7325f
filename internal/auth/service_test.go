package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petermazzocco/dsgnr/internal/common"
	"github.com/petermazzocco/dsgnr/internal/database"
	"github.com/petermazzocco/dsgnr/internal/logging"
	"github.com/petermazzocco/dsgnr/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewService(db, logging.Discard()).WithCost(bcrypt.MinCost), db
}

func TestRegisterThenLogin(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)

	u, err := s.Register(ctx, "  mira ", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "mira", u.Username)
	assert.Equal(t, models.RoleMember, u.Role)
	assert.NotEqual(t, "hunter2", u.PasswordHash)

	var stored models.User
	require.NoError(t, db.First(&stored, u.ID).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter2")))

	id, err := s.Login(ctx, "mira", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: u.ID, Username: "mira", Role: models.RoleMember}, id)
	assert.True(t, id.Authenticated())
	assert.False(t, id.IsAdmin())
}

func TestRegister_Duplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	_, err := s.Register(ctx, "mira", "a")
	require.NoError(t, err)
	_, err = s.Register(ctx, "mira", "b")
	assert.ErrorIs(t, err, common.ErrDuplicateIdentity)

	// The first password still works.
	_, err = s.Login(ctx, "mira", "a")
	assert.NoError(t, err)
}

func TestRegister_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	_, err := s.Register(ctx, "   ", "pw")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = s.Register(ctx, "mira", "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = s.Register(ctx, "mira", strings.Repeat("x", 73))
	assert.ErrorIs(t, err, common.ErrPasswordTooLong)
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	_, err := s.Register(ctx, "mira", "right")
	require.NoError(t, err)

	_, wrongPassword := s.Login(ctx, "mira", "wrong")
	_, unknownUser := s.Login(ctx, "nobody", "right")

	assert.ErrorIs(t, wrongPassword, common.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, common.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)

	created, err := s.EnsureAdmin(ctx, "admin", "adminpass")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureAdmin(ctx, "admin", "adminpass")
	require.NoError(t, err)
	assert.False(t, created)

	// An existing admin under another name also counts.
	created, err = s.EnsureAdmin(ctx, "root", "x")
	require.NoError(t, err)
	assert.False(t, created)

	var admins int64
	require.NoError(t, db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error)
	assert.EqualValues(t, 1, admins)

	id, err := s.Login(ctx, "admin", "adminpass")
	require.NoError(t, err)
	assert.True(t, id.IsAdmin())
}

func TestEnsureAdmin_NameTakenByMember(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	_, err := s.Register(ctx, "admin", "member-pw")
	require.NoError(t, err)

	_, err = s.EnsureAdmin(ctx, "admin", "adminpass")
	assert.ErrorIs(t, err, common.ErrDuplicateIdentity)
}

func TestFindOrCreateExternal(t *testing.T) {
	ctx := context.Background()
	s, db := newTestService(t)

	first, err := s.FindOrCreateExternal(ctx, "google", "1001", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", first.Username)
	assert.Equal(t, models.RoleMember, first.Role)

	// The provider's user id is the key; a changed e-mail keeps the account.
	again, err := s.FindOrCreateExternal(ctx, "google", "1001", "ana@new.example.com")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	_, err = s.FindOrCreateExternal(ctx, "", "1001", "ana@example.com")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = s.FindOrCreateExternal(ctx, "google", " ", "ana@example.com")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFindOrCreateExternal_NameTaken(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	first, err := s.FindOrCreateExternal(ctx, "google", "1001", "ana@example.com")
	require.NoError(t, err)

	// Another provider account reporting the same e-mail gets its own row.
	other, err := s.FindOrCreateExternal(ctx, "google", "2002", "ana@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.UserID, other.UserID)
	assert.Equal(t, "google:2002", other.Username)

	_, err = s.FindOrCreateExternal(ctx, "google", "3003", "")
	require.NoError(t, err)
	byID, err := s.FindOrCreateExternal(ctx, "google", "3003", "")
	require.NoError(t, err)
	assert.Equal(t, "google:3003", byID.Username)
}

func TestFindOrCreateExternal_NeverReturnsLocalAccount(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	local, err := s.Register(ctx, "mira", "hunter2")
	require.NoError(t, err)

	ext, err := s.FindOrCreateExternal(ctx, "google", "1001", "mira")
	require.NoError(t, err)
	assert.NotEqual(t, local.ID, ext.UserID)
	assert.Equal(t, "google:1001", ext.Username)

	id, err := s.Login(ctx, "mira", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, local.ID, id.UserID)
}

func TestRegister_ReservedUsernames(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	// An e-mail registered locally first must not capture a later OAuth
	// sign-in for that address.
	for _, name := range []string{"victim@example.com", "google:1001", strings.Repeat("n", MaxUsernameLength+1)} {
		_, err := s.Register(ctx, name, "pw")
		assert.ErrorIs(t, err, common.ErrInvalidUsername, name)
		assert.ErrorIs(t, err, common.ErrInvalidInput, name)
	}

	_, err := s.Register(ctx, strings.Repeat("n", MaxUsernameLength), "pw")
	assert.NoError(t, err)

	ext, err := s.FindOrCreateExternal(ctx, "google", "1001", "victim@example.com")
	require.NoError(t, err)
	assert.Equal(t, "victim@example.com", ext.Username)
}

func TestEnsureAdmin_ReservedName(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.EnsureAdmin(context.Background(), "admin@example.com", "adminpass")
	assert.ErrorIs(t, err, common.ErrInvalidUsername)
}
