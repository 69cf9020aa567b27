package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix marks keys issued by GenerateKey.
const KeyPrefix = "arca_"

var ErrInvalidKey = errors.New("invalid API key format")

type HashAlgorithm string

const (
	AlgorithmBcrypt HashAlgorithm = "bcrypt"
	AlgorithmArgon2 HashAlgorithm = "argon2"
)

// HashParams tunes key hashing. Zero values fall back to DefaultHashParams.
type HashParams struct {
	Algorithm     HashAlgorithm
	BcryptCost    int
	Argon2Time    uint32
	Argon2Memory  uint32
	Argon2Threads uint8
}

func DefaultHashParams() HashParams {
	return HashParams{
		Algorithm:     AlgorithmBcrypt,
		BcryptCost:    12,
		Argon2Time:    1,
		Argon2Memory:  64 * 1024,
		Argon2Threads: 4,
	}
}

// GenerateKey returns a fresh random key of the form arca_<base64url>.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey hashes rawKey for storage in server.api_key_hash.
func HashKey(rawKey string, p HashParams) (string, error) {
	data, ok := strings.CutPrefix(rawKey, KeyPrefix)
	if !ok || data == "" {
		return "", ErrInvalidKey
	}
	def := DefaultHashParams()
	switch p.Algorithm {
	case AlgorithmArgon2:
		if p.Argon2Time == 0 {
			p.Argon2Time = def.Argon2Time
		}
		if p.Argon2Memory == 0 {
			p.Argon2Memory = def.Argon2Memory
		}
		if p.Argon2Threads == 0 {
			p.Argon2Threads = def.Argon2Threads
		}
		return hashArgon2(data, p)
	case AlgorithmBcrypt, "":
		if p.BcryptCost == 0 {
			p.BcryptCost = def.BcryptCost
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(data), p.BcryptCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt hash failed: %w", err)
		}
		return string(hash), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", p.Algorithm)
	}
}

// VerifyKey checks rawKey against a stored bcrypt or argon2id hash. The
// algorithm is read from the hash prefix.
func VerifyKey(rawKey, storedHash string) bool {
	data, ok := strings.CutPrefix(rawKey, KeyPrefix)
	if !ok {
		return false
	}
	switch {
	case strings.HasPrefix(storedHash, "$2"):
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(data)) == nil
	case strings.HasPrefix(storedHash, "$argon2id$"):
		return verifyArgon2(data, storedHash)
	default:
		return false
	}
}

func hashArgon2(data string, p HashParams) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(data), salt, p.Argon2Time, p.Argon2Memory, p.Argon2Threads, 32)

	// $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Argon2Memory, p.Argon2Time, p.Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

func verifyArgon2(data, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}
	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}
	computed := argon2.IDKey([]byte(data), salt, iterations, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
