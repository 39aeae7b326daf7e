// Package password hashes and verifies account secrets. New digests use
// argon2id by default; bcrypt digests remain verifiable so that accounts
// hashed by an older deployment keep working.
package password

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm names accepted by New.
const (
	Argon2id = "argon2id"
	Bcrypt   = "bcrypt"
)

var argonParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MiB
	Iterations:  2,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher produces salted slow digests and verifies plaintexts against them.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
}

type hasher struct {
	algorithm  string
	bcryptCost int
}

// New returns a Hasher that writes digests with the named algorithm.
func New(algorithm string) (Hasher, error) {
	switch algorithm {
	case Argon2id, "":
		return &hasher{algorithm: Argon2id, bcryptCost: bcrypt.DefaultCost}, nil
	case Bcrypt:
		return &hasher{algorithm: Bcrypt, bcryptCost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", algorithm)
	}
}

// NewBcrypt returns a bcrypt Hasher with an explicit cost.
// Tests use bcrypt.MinCost to stay fast.
func NewBcrypt(cost int) Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &hasher{algorithm: Bcrypt, bcryptCost: cost}
}

func (h *hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("empty password")
	}
	if h.algorithm == Bcrypt {
		b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.bcryptCost)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return argon2id.CreateHash(plaintext, argonParams)
}

// Verify picks the algorithm from the digest prefix, not from the hasher's
// configured algorithm.
func (h *hasher) Verify(plaintext, digest string) (bool, error) {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return argon2id.ComparePasswordAndHash(plaintext, digest)
	case strings.HasPrefix(digest, "$2"):
		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	default:
		return false, errors.New("unrecognised password digest")
	}
}
