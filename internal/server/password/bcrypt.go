package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 12

// bcryptMaxBytes is the input limit of bcrypt; longer inputs are rejected
// rather than truncated.
const bcryptMaxBytes = 72

type Bcrypt struct {
	cost  int
	dummy []byte
}

func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt dummy hash: %w", err)
	}

	return &Bcrypt{cost: cost, dummy: dummy}, nil
}

func (b *Bcrypt) Hash(plain string) (string, error) {
	if len(plain) > bcryptMaxBytes {
		return "", ErrTooLong
	}

	h, err := bcrypt.GenerateFromPassword([]byte(plain), b.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b *Bcrypt) Verify(plain, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return true
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false
	}

	// malformed hash: burn the same cost before answering
	_ = bcrypt.CompareHashAndPassword(b.dummy, []byte(plain))
	return false
}
