package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/ruteri/certificate-ledger/cryptoutils"
	"github.com/ruteri/certificate-ledger/interfaces"
)

// StaticCredentials verifies logins against a single configured identity.
type StaticCredentials struct {
	username     [32]byte
	passwordHash string
}

var _ interfaces.CredentialVerifier = (*StaticCredentials)(nil)

// NewStaticCredentials hashes password and keeps only the hash.
func NewStaticCredentials(username, password string) (*StaticCredentials, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: admin username and password are required", interfaces.ErrValidation)
	}
	hash, err := cryptoutils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	return NewStaticCredentialsFromHash(username, hash)
}

// NewStaticCredentialsFromHash uses an argon2id PHC string produced by cryptoutils.HashPassword.
func NewStaticCredentialsFromHash(username, passwordHash string) (*StaticCredentials, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: admin username is required", interfaces.ErrValidation)
	}
	if _, err := cryptoutils.VerifyPassword(passwordHash, ""); err != nil {
		return nil, err
	}
	return &StaticCredentials{
		username:     sha256.Sum256([]byte(username)),
		passwordHash: passwordHash,
	}, nil
}

// Verify reports whether username and password match. Both halves are always checked.
func (c *StaticCredentials) Verify(username, password string) bool {
	return verifyPair(c.username, c.passwordHash, username, password)
}

func verifyPair(expectedUser [32]byte, passwordHash, username, password string) bool {
	given := sha256.Sum256([]byte(username))
	userOK := subtle.ConstantTimeCompare(given[:], expectedUser[:])

	passOK := 0
	if ok, err := cryptoutils.VerifyPassword(passwordHash, password); err == nil && ok {
		passOK = 1
	}

	return userOK&passOK == 1
}
