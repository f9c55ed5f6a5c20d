package user

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/otep/portal-core/internal/user/entity"
	userrepo "github.com/otep/portal-core/internal/user/repo"
)

// ProtectedUsername is the built-in administrator account that can never be
// deleted.
const ProtectedUsername = "admin"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrProtectedAccount   = errors.New("cannot delete built-in admin account")
	ErrUserNotFound       = errors.New("user not found")
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// dummyHash is compared against when the username is unknown so a lookup
// miss costs the same as a wrong password. Hash of an unguessable value.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("portal-core-no-such-user"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// Service orchestrates credential verification and account lifecycle.
type Service struct {
	store  userrepo.Store
	hasher PasswordHasher
}

func NewService(store userrepo.Store, hasher PasswordHasher) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &Service{store: store, hasher: hasher}
}

// CheckCredentials verifies username/password. Unknown username and wrong
// password both return ErrInvalidCredentials so callers cannot tell them
// apart.
func (s *Service) CheckCredentials(ctx context.Context, username, password string) (*entity.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.hasher.Verify(dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	u, err := s.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			s.hasher.Verify(dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Get fetches a user record or ErrUserNotFound.
func (s *Service) Get(ctx context.Context, username string) (*entity.User, error) {
	u, err := s.store.Get(ctx, username)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// List returns all user records.
func (s *Service) List(ctx context.Context) ([]entity.User, error) {
	return s.store.List(ctx)
}

// Create adds an account. The password is hashed before it touches the store.
func (s *Service) Create(ctx context.Context, username, password, displayName string, role entity.Role, email string, allowedViews []string) (*entity.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password required")
	}
	if _, err := entity.ParseRole(string(role)); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		Username:     username,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         role,
		Email:        strings.TrimSpace(email),
		AllowedViews: allowedViews,
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicate) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}
	return u, nil
}

// UpdatePassword sets a new password for an existing account.
func (s *Service) UpdatePassword(ctx context.Context, username, newPassword string) error {
	if newPassword == "" {
		return errors.New("password required")
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, username, hash); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// UpdateEmail sets the address OTP codes are dispatched to.
func (s *Service) UpdateEmail(ctx context.Context, username, email string) error {
	if err := s.store.UpdateEmail(ctx, username, strings.TrimSpace(email)); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// UpdateAllowedViews replaces the dashboard allow-list for a User-role account.
func (s *Service) UpdateAllowedViews(ctx context.Context, username string, views []string) error {
	if err := s.store.UpdateAllowedViews(ctx, username, views); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// Delete removes an account. The built-in admin is refused with
// ErrProtectedAccount rather than a generic error.
func (s *Service) Delete(ctx context.Context, username string) error {
	if username == ProtectedUsername {
		return ErrProtectedAccount
	}
	if err := s.store.Delete(ctx, username); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// EnsureAdmin seeds the built-in admin account when it does not exist yet.
// Unlike the legacy portal it never rewrites an existing record on load;
// email and password come from explicit configuration.
func (s *Service) EnsureAdmin(ctx context.Context, password, email string) error {
	_, err := s.store.Get(ctx, ProtectedUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, userrepo.ErrNotFound) {
		return err
	}
	_, err = s.Create(ctx, ProtectedUsername, password, "Administrator", entity.RoleAdmin, email, nil)
	if errors.Is(err, ErrDuplicateUsername) {
		// lost a race with another bootstrapper; the account exists
		return nil
	}
	return err
}
