package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/nerrad567/davinci-bridge/internal/infrastructure/config"
)

// Argon2id parameters (OWASP recommendation).
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16

	phcPrefix = "$argon2id$"
)

// HashAPIKey hashes key with Argon2id and returns it in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func HashAPIKey(key string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(key), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyAPIKey checks candidate against a configured key, which is either
// a PHC hash from HashAPIKey or the plaintext key.
func VerifyAPIKey(candidate, configured string) (bool, error) {
	if configured == "" {
		return false, nil
	}
	if !strings.HasPrefix(configured, phcPrefix) {
		return subtle.ConstantTimeCompare([]byte(candidate), []byte(configured)) == 1, nil
	}

	salt, hash, params, err := decodePHC(configured)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(candidate), salt, params.time, params.memory, params.threads, uint32(len(hash))) //nolint:gosec // G115: hash length fits uint32
	return subtle.ConstantTimeCompare(hash, got) == 1, nil
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil { //nolint:govet // shadow
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	return salt, hash, params, nil
}

// KeyRing maps configured API keys to roles.
type KeyRing struct {
	operator string
	viewer   string
}

// NewKeyRing builds a key ring from the security settings.
func NewKeyRing(cfg config.SecurityConfig) *KeyRing {
	return &KeyRing{operator: cfg.APIKey, viewer: cfg.ViewerAPIKey}
}

// Authenticate returns the role granted to key. The operator key wins if
// both keys are equal.
func (k *KeyRing) Authenticate(key string) (Role, error) {
	if key == "" {
		return "", ErrInvalidCredentials
	}
	ok, err := VerifyAPIKey(key, k.operator)
	if err != nil {
		return "", fmt.Errorf("operator key: %w", err)
	}
	if ok {
		return RoleOperator, nil
	}
	ok, err = VerifyAPIKey(key, k.viewer)
	if err != nil {
		return "", fmt.Errorf("viewer key: %w", err)
	}
	if ok {
		return RoleViewer, nil
	}
	return "", ErrInvalidCredentials
}
