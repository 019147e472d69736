// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tudu Contributors

package auth

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported hashing algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// DefaultBcryptCost matches bcrypt.DefaultCost.
const DefaultBcryptCost = bcrypt.DefaultCost

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of the password. Output differs between
	// calls for the same input.
	Hash(password string) ([]byte, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password string, hash []byte) (bool, error)
}

// NewHasher builds the hasher named by algorithm. cost is the bcrypt work
// factor and is ignored for argon2id.
func NewHasher(algorithm string, cost int) (PasswordHasher, error) {
	switch algorithm {
	case AlgorithmBcrypt, "":
		h, err := NewBcryptHasher(cost)
		if err != nil {
			return nil, err
		}
		return h, nil
	case AlgorithmArgon2id:
		return NewArgon2idHasher(DefaultArgon2Params()), nil
	default:
		return nil, oops.Code("AUTH_HASHER_CONFIG").
			With("algorithm", algorithm).
			Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// BcryptHasher implements PasswordHasher using bcrypt. Passwords longer than
// BcryptMaxPasswordBytes are reduced to a SHA-256 digest before hashing, so
// every byte of a long password counts and none is rejected.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. The cost must lie within
// [bcrypt.MinCost, bcrypt.MaxCost].
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, oops.Code("AUTH_HASHER_CONFIG").
			With("cost", cost).
			Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").
			With("algorithm", AlgorithmBcrypt).
			With("cost", h.cost).
			Wrap(err)
	}
	return hash, nil
}

// Verify checks if the password matches the bcrypt hash.
func (h *BcryptHasher) Verify(password string, hash []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, bcryptInput(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").
			With("algorithm", AlgorithmBcrypt).
			Wrap(err)
	}
}

// bcryptInput returns the bytes handed to bcrypt. Inputs within the bcrypt
// limit pass through unchanged.
func bcryptInput(password string) []byte {
	if len(password) <= BcryptMaxPasswordBytes {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// Argon2Params holds the argon2id work factors.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen int
	KeyLen  uint32
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Argon2idHasher implements PasswordHasher using argon2id. Hashes are PHC
// strings stored as bytes.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

const argon2Prefix = "$argon2id$"

// argon2LimitFactor caps the work factors Verify accepts from a stored hash
// at this multiple of the larger of the hasher's own and the default params.
const argon2LimitFactor = 4

// limits returns the largest memory (KiB) and time Verify will run.
func (h *Argon2idHasher) limits() (memory, iterations uint64) {
	d := DefaultArgon2Params()
	memory = uint64(max(h.params.Memory, d.Memory)) * argon2LimitFactor
	iterations = uint64(max(h.params.Time, d.Time)) * argon2LimitFactor
	return memory, iterations
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) ([]byte, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return []byte(encoded), nil
}

// Verify checks if the password matches the argon2id hash.
func (h *Argon2idHasher) Verify(password string, encoded []byte) (bool, error) {
	if !bytes.HasPrefix(encoded, []byte(argon2Prefix)) {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("not an argon2id hash")
	}

	parts := strings.Split(string(encoded), "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").With("version", version).Errorf("unsupported argon2 version")
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}
	maxMemory, maxIterations := h.limits()
	if memory == 0 || uint64(memory) > maxMemory {
		return false, oops.Code("AUTH_INVALID_HASH").
			With("memory", memory).
			With("max_memory", maxMemory).
			Errorf("memory value %d out of range", memory)
	}
	if iterations == 0 || uint64(iterations) > maxIterations {
		return false, oops.Code("AUTH_INVALID_HASH").
			With("time", iterations).
			With("max_time", maxIterations).
			Errorf("time value %d out of range", iterations)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1<<30 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

var (
	_ PasswordHasher = (*BcryptHasher)(nil)
	_ PasswordHasher = (*Argon2idHasher)(nil)
)
