// Package account implements the register, login, and profile endpoints
// that issue the tokens the relay resolves at handshake time.
package account

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrUserExists is returned when the username is taken.
	ErrUserExists = errors.New("account: username already registered")
	// ErrUserNotFound is returned when no user has the username.
	ErrUserNotFound = errors.New("account: user not found")
)

// User is a registered account.
type User struct {
	ID           string
	Username     string
	PasswordHash []byte
}

// Users persists accounts.
type Users interface {
	Create(ctx context.Context, username string, passwordHash []byte) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
}

// MemoryUsers keeps accounts in process.
type MemoryUsers struct {
	mu     sync.RWMutex
	byName map[string]User
}

// NewMemoryUsers creates an empty account table.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byName: make(map[string]User)}
}

// Create implements Users.
func (m *MemoryUsers) Create(_ context.Context, username string, passwordHash []byte) (User, error) {
	key := strings.ToLower(username)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[key]; exists {
		return User{}, ErrUserExists
	}
	u := User{ID: uuid.NewString(), Username: username, PasswordHash: passwordHash}
	m.byName[key] = u
	return u, nil
}

// FindByUsername implements Users.
func (m *MemoryUsers) FindByUsername(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}
