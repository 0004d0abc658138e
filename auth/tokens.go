package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/ruteri/certificate-ledger/interfaces"
)

const (
	// DefaultTokenTTL is how long an issued token stays valid.
	DefaultTokenTTL = 24 * time.Hour

	issuerName = "certificate-ledger"

	// errJWTExpiryKey identifies jwx validation failures caused by expiry.
	errJWTExpiryKey = `"exp" not satisfied`
)

// ErrWeakSecret is returned when the signing secret is too short for HS256.
var ErrWeakSecret = errors.New("jwt signing secret must be at least 32 bytes")

// TokenService implements interfaces.TokenService with HS256 JWTs.
type TokenService struct {
	secret      []byte
	ttl         time.Duration
	credentials interfaces.CredentialVerifier
	now         func() time.Time
	log         *slog.Logger
}

var _ interfaces.TokenService = (*TokenService)(nil)

// NewTokenService creates a token service signing with secret and checking
// logins against credentials. A zero ttl means DefaultTokenTTL.
func NewTokenService(secret []byte, ttl time.Duration, credentials interfaces.CredentialVerifier, log *slog.Logger) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if log == nil {
		log = slog.Default()
	}

	return &TokenService{
		secret:      secret,
		ttl:         ttl,
		credentials: credentials,
		now:         time.Now,
		log:         log,
	}, nil
}

// SetClock replaces the time source used for issuing and validating tokens.
func (s *TokenService) SetClock(now func() time.Time) {
	s.now = now
}

// Issue checks the credentials and returns a token for username.
func (s *TokenService) Issue(username, password string) (*interfaces.AuthorizationToken, error) {
	if !s.credentials.Verify(username, password) {
		s.log.Warn("Rejected login attempt")
		return nil, interfaces.ErrInvalidCredentials
	}

	issuedAt := s.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(s.ttl)

	tkn, err := jwt.NewBuilder().
		Issuer(issuerName).
		Subject(username).
		IssuedAt(issuedAt).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tkn, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.log.Info("Issued authorization token",
		slog.String("subject", username),
		slog.Time("expiresAt", expiresAt))

	return &interfaces.AuthorizationToken{
		Token:     string(signed),
		Subject:   username,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate verifies the signature, issuer and expiry of token and returns its subject.
func (s *TokenService) Validate(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", interfaces.ErrInvalidToken)
	}

	tkn, err := jwt.Parse(
		[]byte(token),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(s.now)),
		jwt.WithIssuer(issuerName),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	)
	if err != nil {
		if strings.Contains(err.Error(), errJWTExpiryKey) {
			return "", interfaces.ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", interfaces.ErrInvalidToken, err)
	}

	if tkn.Subject() == "" {
		return "", fmt.Errorf("%w: token has no subject", interfaces.ErrInvalidToken)
	}
	return tkn.Subject(), nil
}
