package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonMemory  = 64 * 1024
	argonTime    = 1
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashPassword hashes a secret with Argon2id and encodes salt and parameters
// alongside the hash, e.g. $argon2id$v=19$m=65536,t=1,p=4$BASE64_SALT$BASE64_HASH.
// It is used for both user passwords and refresh tokens at rest.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, encodedSalt, encodedHash), nil
}

// VerifyPassword compares a plaintext secret with an encoded Argon2id hash.
// Any parse failure counts as a mismatch.
func VerifyPassword(encodedHash, password string) bool {
	// Expected format: ["", "argon2id", "v=19", "m=65536,t=1,p=4", "salt", "hash"]
	sections := strings.Split(encodedHash, "$")
	if len(sections) != 6 || sections[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(sections[2], "v=%d", &version); err != nil {
		return false
	}

	var m, t, p uint32
	if _, err := fmt.Sscanf(sections[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}

	decodedSalt, err := base64.RawStdEncoding.DecodeString(sections[4])
	if err != nil {
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(sections[5])
	if err != nil {
		return false
	}

	// Re-hash the candidate with the stored parameters and salt
	comparisonHash := argon2.IDKey([]byte(password), decodedSalt, t, m, uint8(p), uint32(len(decodedHash)))

	return subtle.ConstantTimeCompare(comparisonHash, decodedHash) == 1
}
