package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2ID = "argon2id"

// Argon2Params are the argon2id cost parameters. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

type Argon2id struct {
	params Argon2Params
	dummy  phc
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func NewArgon2id(p Argon2Params) (*Argon2id, error) {
	if p.Memory < 8*1024 || p.Time < 1 || p.Parallelism < 1 || p.SaltLength < 16 || p.KeyLength < 16 {
		return nil, errors.New("argon2id parameters below minimum (m>=8192, t>=1, p>=1, salt>=16, key>=16)")
	}

	a := &Argon2id{params: p}
	salt := make([]byte, p.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	a.dummy = phc{
		memory:      p.Memory,
		time:        p.Time,
		parallelism: p.Parallelism,
		salt:        salt,
		hash:        make([]byte, p.KeyLength),
	}
	return a, nil
}

func (a *Argon2id) Hash(plain string) (string, error) {
	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plain), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID,
		argon2.Version,
		a.params.Memory,
		a.params.Time,
		a.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

func (a *Argon2id) Verify(plain, hash string) bool {
	p, err := parsePHC(hash)
	malformed := err != nil
	if malformed {
		p = &a.dummy
	}

	key := argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	match := subtle.ConstantTimeCompare(key, p.hash) == 1

	return match && !malformed
}

func parsePHC(s string) (*phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2ID {
		return nil, errors.New("invalid PHC format")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	p := &phc{}
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.New("invalid parameter entry")
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter %s", k)
		}
		switch k {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, errors.New("invalid parallelism")
			}
			p.parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("unsupported parameter %s", k)
		}
	}
	if p.memory < 8*1024 || p.time < 1 || p.parallelism < 1 {
		return nil, errors.New("argon2 parameters out of range")
	}

	if p.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) < 16 {
		return nil, errors.New("invalid salt")
	}
	if p.hash, err = base64.StdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) < 16 {
		return nil, errors.New("invalid hash")
	}

	return p, nil
}
