package security

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const DefaultMinPasswordLength = 8

var (
	ErrHashingFailed    = errors.New("password hashing failed")
	ErrPasswordTooShort = errors.New("password too short")
	// bcrypt ignores everything past 72 bytes
	ErrPasswordTooLong = errors.New("password longer than 72 bytes")
)

// PasswordHasher provides interface for password operations
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) error
	NeedsRehash(hashedPassword string) bool
}

// PasswordPolicy configures staff password hashing.
type PasswordPolicy struct {
	Cost      int
	MinLength int
}

type bcryptHasher struct {
	cost      int
	minLength int
}

// NewBcryptHasher creates a new password hasher using bcrypt. Out of range
// values fall back to bcrypt.DefaultCost and DefaultMinPasswordLength.
func NewBcryptHasher(policy PasswordPolicy) PasswordHasher {
	if policy.Cost < bcrypt.MinCost || policy.Cost > bcrypt.MaxCost {
		policy.Cost = bcrypt.DefaultCost
	}
	if policy.MinLength <= 0 {
		policy.MinLength = DefaultMinPasswordLength
	}
	return &bcryptHasher{cost: policy.Cost, minLength: policy.MinLength}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	if utf8.RuneCountInString(password) < b.minLength {
		return "", fmt.Errorf("%w: at least %d characters", ErrPasswordTooShort, b.minLength)
	}
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashingFailed, err)
	}
	return string(hash), nil
}

func (b *bcryptHasher) Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// NeedsRehash reports whether hashedPassword was produced with a cost other
// than the configured one.
func (b *bcryptHasher) NeedsRehash(hashedPassword string) bool {
	cost, err := bcrypt.Cost([]byte(hashedPassword))
	return err != nil || cost != b.cost
}

// IsPolicyViolation reports whether err rejects the password itself rather
// than a hashing failure.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrPasswordTooShort) || errors.Is(err, ErrPasswordTooLong)
}
