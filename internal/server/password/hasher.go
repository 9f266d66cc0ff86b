// Package password hashes and verifies user passwords.
//
// Two algorithms are supported: bcrypt (default) and argon2id in PHC string
// form. Verification dispatches on the stored hash prefix, so switching the
// configured algorithm keeps existing hashes valid.
package password

import (
	"errors"
	"fmt"
	"strings"
)

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// ErrTooLong is returned by Hash when the plaintext exceeds what the
// algorithm can take without silent truncation.
var ErrTooLong = errors.New("password too long")

// Hasher is a one-way adaptive password hash.
type Hasher interface {
	Hash(plain string) (string, error)
	// Verify reports whether plain matches hash in constant time. A malformed
	// hash yields false after the same amount of work as a real comparison.
	Verify(plain, hash string) bool
}

// Options select and tune the algorithm used for new hashes.
type Options struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Params
}

// Multi hashes with the configured algorithm and verifies either kind.
type Multi struct {
	primary Hasher
	bcrypt  *Bcrypt
	argon2  *Argon2id
}

func New(opts Options) (*Multi, error) {
	b, err := NewBcrypt(opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	params := opts.Argon2
	if params == (Argon2Params{}) {
		params = DefaultArgon2Params
	}
	a, err := NewArgon2id(params)
	if err != nil {
		return nil, err
	}

	m := &Multi{bcrypt: b, argon2: a}
	switch opts.Algorithm {
	case "", AlgorithmBcrypt:
		m.primary = b
	case AlgorithmArgon2id:
		m.primary = a
	default:
		return nil, fmt.Errorf("unknown password algorithm %q", opts.Algorithm)
	}
	return m, nil
}

func (m *Multi) Hash(plain string) (string, error) {
	return m.primary.Hash(plain)
}

func (m *Multi) Verify(plain, hash string) bool {
	if strings.HasPrefix(hash, "$"+argon2ID+"$") {
		return m.argon2.Verify(plain, hash)
	}
	return m.bcrypt.Verify(plain, hash)
}
