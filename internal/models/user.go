package models

import (
	"fmt"
	"strings"
	"time"
)

// User owns a set of mirrored playlists. The name doubles as the owner handle in the
// storage layout, so it must be a single path segment.
type User struct {
	base
	name      string
	email     string
	active    bool
	deletedAt *time.Time
}

// NewUser creates an active user.
func NewUser(sequence int, name, email string) *User {
	return &User{base: newBase(sequence), name: name, email: email, active: true}
}

func (u *User) Name() string { return u.name }
func (u *User) Email() string { return u.email }
func (u *User) Active() bool { return u.active }
func (u *User) DeletedAt() *time.Time { return u.deletedAt }
func (u *User) SetEmail(email string) { u.email = email }
func (u *User) SetActive(active bool) { u.active = active }
func (u *User) SetDeletedAt(t *time.Time) { u.deletedAt = t }

// Validate checks the owner handle is usable as a directory name.
func (u *User) Validate() error {
	if err := ValidateSegment("user name", u.name); err != nil {
		return err
	}
	return nil
}

// ValidateSegment rejects values that cannot serve as a single path segment.
func ValidateSegment(field, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%s is required", field)
	case value == "." || value == "..":
		return fmt.Errorf("%s cannot be %q", field, value)
	case strings.ContainsAny(value, `/\`):
		return fmt.Errorf("%s cannot contain path separators: %q", field, value)
	}
	return nil
}
