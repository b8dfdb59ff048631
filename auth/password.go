package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"authgate/secure"
)

// PasswordComparator compares a presented password against the stored
// credential. Implementations must not leak timing about how far the
// comparison got.
type PasswordComparator interface {
	// Compare reports whether candidate matches stored. A mismatch is
	// (false, nil); errors are reserved for malformed stored credentials.
	Compare(stored, candidate *secure.String) (bool, error)
}

// PlainComparator compares plaintext passwords in constant time. Meant for
// demos and tests where the provider holds plaintext.
type PlainComparator struct{}

func (PlainComparator) Compare(stored, candidate *secure.String) (bool, error) {
	if stored == nil || candidate == nil {
		return false, nil
	}
	return stored.ConstantTimeEq(candidate), nil
}

// Argon2Comparator verifies argon2id hashes in PHC string format, e.g.
// $argon2id$v=19$m=65536,t=3,p=2$<b64 salt>$<b64 hash>. The parameters
// embedded in the stored hash drive verification, so old hashes keep
// working after the defaults change.
type Argon2Comparator struct {
	// Parameters used by Hash for new hashes.
	Memory  uint32
	Time    uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// NewArgon2Comparator returns a comparator with the RFC 9106 low-memory
// recommended parameters.
func NewArgon2Comparator() *Argon2Comparator {
	return &Argon2Comparator{
		Memory:  64 * 1024,
		Time:    3,
		Threads: 2,
		KeyLen:  32,
		SaltLen: 16,
	}
}

func (c *Argon2Comparator) Compare(stored, candidate *secure.String) (bool, error) {
	if stored == nil || candidate == nil {
		return false, nil
	}
	params, salt, want, err := decodeArgon2Hash(string(stored.Bytes()))
	if err != nil {
		return false, err
	}
	got := argon2.IDKey(candidate.Bytes(), salt, params.time, params.memory, params.threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// Hash derives a PHC-encoded argon2id hash of password with a fresh random
// salt. Used to provision users.
func (c *Argon2Comparator) Hash(password *secure.String) (string, error) {
	salt := make([]byte, c.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey(password.Bytes(), salt, c.Time, c.Memory, c.Threads, c.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, c.Memory, c.Time, c.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func decodeArgon2Hash(encoded string) (argon2Params, []byte, []byte, error) {
	var params argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, fmt.Errorf("malformed argon2 hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, fmt.Errorf("malformed argon2 version: %w", err)
	}
	if version != argon2.Version {
		return params, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return params, nil, nil, fmt.Errorf("malformed argon2 parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("malformed argon2 salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, fmt.Errorf("malformed argon2 hash bytes: %w", err)
	}
	return params, salt, key, nil
}
