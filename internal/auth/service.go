// Package auth implements the credential store, password login, the startup
// admin bootstrap and the cookie-backed session that carries an Identity
// between requests.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/petermazzocco/dsgnr/internal/common"
	"github.com/petermazzocco/dsgnr/internal/logging"
	"github.com/petermazzocco/dsgnr/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	log  logging.Logger
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewService(db *gorm.DB, log logging.Logger) *Service {
	return &Service{db: db, log: log, cost: bcrypt.DefaultCost}
}

// WithCost sets the bcrypt cost for new hashes.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// MaxUsernameLength bounds local usernames, in characters.
const MaxUsernameLength = 64

// maxStoredUsername matches the users.username column size.
const maxStoredUsername = 255

// checkLocalUsername rejects names that could collide with an OAuth
// account name ("someone@mail", "google:123") or are too long.
func checkLocalUsername(username string) error {
	username = strings.TrimSpace(username)
	if strings.ContainsAny(username, "@:") || utf8.RuneCountInString(username) > MaxUsernameLength {
		return common.ErrInvalidUsername
	}
	return nil
}

// Register creates a member account.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	if err := checkLocalUsername(username); err != nil {
		return nil, err
	}
	return s.create(ctx, &models.User{Username: username, Role: models.RoleMember}, password)
}

// Login checks the password for username. Unknown users and wrong passwords
// both return common.ErrInvalidCredentials after a bcrypt comparison.
func (s *Service) Login(ctx context.Context, username, password string) (Identity, error) {
	username = strings.TrimSpace(username)

	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, fmt.Errorf("%w: find user: %v", common.ErrStorageFailure, err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return Identity{}, common.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Identity{}, common.ErrInvalidCredentials
	}
	return IdentityOf(&user), nil
}

// EnsureAdmin creates an admin account named username unless an admin
// already exists. It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	var admins int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error; err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if admins > 0 {
		return false, nil
	}

	if err := checkLocalUsername(username); err != nil {
		return false, fmt.Errorf("admin %q: %w", username, err)
	}
	if _, err := s.create(ctx, &models.User{Username: username, Role: models.RoleAdmin}, password); err != nil {
		return false, fmt.Errorf("create admin %q: %w", username, err)
	}
	s.log.Warn(ctx, "default admin account created; rotate its password", "username", username)
	return true, nil
}

// FindOrCreateExternal returns the account linked to the provider's user
// id, creating a member with an unusable password on first sign-in. The
// account is named username when that name is free, else provider:subject.
// Local accounts are never matched, whatever their name.
func (s *Service) FindOrCreateExternal(ctx context.Context, provider, subject, username string) (Identity, error) {
	provider = strings.TrimSpace(provider)
	subject = strings.TrimSpace(subject)
	if provider == "" || subject == "" {
		return Identity{}, common.ErrInvalidInput
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("provider = ? AND provider_user_id = ?", provider, subject).First(&user).Error
	if err == nil {
		return IdentityOf(&user), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, fmt.Errorf("%w: find user: %v", common.ErrStorageFailure, err)
	}

	fallback := provider + ":" + subject
	name := strings.TrimSpace(username)
	if name == "" || utf8.RuneCountInString(name) > maxStoredUsername {
		name = fallback
	}
	external := func(name string) *models.User {
		return &models.User{Username: name, Role: models.RoleMember, Provider: &provider, ProviderUserID: &subject}
	}

	u, err := s.create(ctx, external(name), randomSecret())
	if errors.Is(err, common.ErrDuplicateIdentity) && name != fallback {
		u, err = s.create(ctx, external(fallback), randomSecret())
	}
	if err != nil {
		return Identity{}, err
	}
	s.log.Info(ctx, "external account created", "username", u.Username, "provider", provider)
	return IdentityOf(u), nil
}

func (s *Service) create(ctx context.Context, user *models.User, password string) (*models.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" || password == "" {
		return nil, common.ErrInvalidInput
	}
	if utf8.RuneCountInString(user.Username) > maxStoredUsername {
		return nil, common.ErrInvalidUsername
	}
	if len(password) > 72 {
		return nil, common.ErrPasswordTooLong
	}

	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", user.Username).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("%w: check username: %v", common.ErrStorageFailure, err)
	}
	if exists > 0 {
		return nil, common.ErrDuplicateIdentity
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("%w: create user: %v", common.ErrStorageFailure, err)
	}
	return user, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(randomSecret()), s.cost)
	})
	return s.dummyHash
}

// isUniqueViolation covers the postgres dialect (translated by gorm) and
// SQLite, whose driver errors gorm does not translate.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
