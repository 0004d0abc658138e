package interfaces

// CredentialVerifier checks a username/password pair against a configured identity.
// Implementations must not leak which of the two was wrong through timing.
type CredentialVerifier interface {
	Verify(username, password string) bool
}

// TokenService issues and validates stateless authorization tokens.
type TokenService interface {
	// Issue validates the credentials and returns a signed token for the subject.
	// Returns ErrInvalidCredentials when they do not match.
	Issue(username, password string) (*AuthorizationToken, error)

	// Validate verifies signature and expiry and returns the token subject.
	// Returns ErrInvalidToken or ErrExpiredToken.
	Validate(token string) (string, error)
}
