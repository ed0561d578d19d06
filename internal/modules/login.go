// SPDX-License-Identifier: MIT

package modules

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// PublicUser is a User without credentials.
type PublicUser struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Login authenticates users by email and password.
type Login struct {
	mu    sync.RWMutex
	users map[string]User
	cost  int
	fire  func()
	// dummy is compared against when the email is unknown so lookups of
	// missing accounts cost the same as wrong passwords.
	dummy []byte
}

func newLogin(fire func()) *Login {
	return &Login{
		users: make(map[string]User),
		cost:  bcrypt.DefaultCost,
		fire:  fire,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user. Emails are compared case-insensitively.
func (l *Login) Register(email, password string) error {
	key := normalizeEmail(email)
	if key == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrInvalidCredentials)
	}

	l.mu.RLock()
	_, exists := l.users[key]
	l.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrUserExists, key)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	l.mu.Lock()
	if _, exists := l.users[key]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUserExists, key)
	}
	l.users[key] = User{Email: key, PasswordHash: string(hash), CreatedAt: time.Now().UTC()}
	l.mu.Unlock()

	l.fire()
	return nil
}

// Login verifies credentials and returns the account.
func (l *Login) Login(email, password string) (PublicUser, error) {
	key := normalizeEmail(email)

	l.mu.RLock()
	u, ok := l.users[key]
	l.mu.RUnlock()

	if !ok {
		_ = bcrypt.CompareHashAndPassword(l.dummyHash(), []byte(password))
		return PublicUser{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return PublicUser{}, ErrInvalidCredentials
	}
	return PublicUser{Email: u.Email, CreatedAt: u.CreatedAt}, nil
}

func (l *Login) dummyHash() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dummy == nil {
		l.dummy, _ = bcrypt.GenerateFromPassword([]byte("minios-dummy"), l.cost)
	}
	return l.dummy
}

// Exists reports whether email is registered.
func (l *Login) Exists(email string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.users[normalizeEmail(email)]
	return ok
}

// Users lists accounts sorted by email, without hashes.
func (l *Login) Users() []PublicUser {
	l.mu.RLock()
	out := make([]PublicUser, 0, len(l.users))
	for _, u := range l.users {
		out = append(out, PublicUser{Email: u.Email, CreatedAt: u.CreatedAt})
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// Count returns the number of users.
func (l *Login) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.users)
}

func (l *Login) export() []User {
	l.mu.RLock()
	out := make([]User, 0, len(l.users))
	for _, u := range l.users {
		out = append(out, u)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (l *Login) load(users []User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = make(map[string]User, len(users))
	for _, u := range users {
		key := normalizeEmail(u.Email)
		if key == "" || u.PasswordHash == "" {
			continue
		}
		u.Email = key
		l.users[key] = u
	}
}
