package interfaces

import "errors"

var (
	// ErrValidation is returned when request fields are missing or malformed.
	ErrValidation = errors.New("validation error")

	// ErrAuth is returned when a privileged operation is attempted without valid authorization.
	ErrAuth = errors.New("authorization required")

	// ErrInvalidToken is returned for malformed, unsigned or wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned for correctly signed tokens past their expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrInvalidCredentials is returned when a login does not match the configured identity.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotFound is returned when a certificate id is absent from the ledger.
	ErrNotFound = errors.New("certificate not found")

	// ErrDuplicateCertificate is returned when the ledger rejects an already issued id.
	ErrDuplicateCertificate = errors.New("certificate already exists")

	// ErrStorage is the parent of all pinning failures.
	ErrStorage = errors.New("storage error")

	// ErrTransport is returned when the pinning service cannot be reached.
	ErrTransport = wrapKind(ErrStorage, "pinning service unreachable")

	// ErrPinningRejected is returned when the pinning service answers with a non-success status.
	ErrPinningRejected = wrapKind(ErrStorage, "pinning rejected")

	// ErrSourceRead is returned when a staged artifact cannot be read or written on the server.
	// It is an internal failure, not a client error.
	ErrSourceRead = errors.New("failed to read artifact source")

	// ErrLedger is the parent of all ledger RPC and confirmation failures.
	ErrLedger = errors.New("ledger error")

	// ErrLedgerTimeout is returned when a submitted transaction is not confirmed in time.
	ErrLedgerTimeout = wrapKind(ErrLedger, "ledger confirmation timed out")

	// ErrNoTransactOpts is returned when a write is attempted without a signing account.
	ErrNoTransactOpts = wrapKind(ErrLedger, "no authorized transactor available")

	// ErrIndexNotReady is returned by listing before the event history was replayed.
	ErrIndexNotReady = errors.New("certificate index not ready")

	// ErrBackendUnavailable is returned when a pinning backend is not accessible.
	ErrBackendUnavailable = wrapKind(ErrTransport, "storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// kindError is a sentinel that also matches its parent with errors.Is.
type kindError struct {
	parent error
	msg    string
}

func wrapKind(parent error, msg string) error {
	return &kindError{parent: parent, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.parent }

// Error kinds reported to API clients and used as metric outcomes.
const (
	KindValidation         = "validation_error"
	KindAuth               = "auth_error"
	KindInvalidToken       = "invalid_token"
	KindExpiredToken       = "expired_token"
	KindInvalidCredentials = "invalid_credentials"
	KindNotFound           = "not_found"
	KindDuplicate          = "duplicate_certificate"
	KindStorage            = "storage_error"
	KindLedgerTimeout      = "ledger_timeout"
	KindLedger             = "ledger_error"
	KindIndexNotReady      = "index_not_ready"
	KindInternal           = "internal_error"
)

// ErrorKind classifies err into one of the Kind constants. Nil maps to "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceRead):
		return KindInternal
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidLocationURI):
		return KindValidation
	case errors.Is(err, ErrExpiredToken):
		return KindExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrDuplicateCertificate):
		return KindDuplicate
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrLedgerTimeout):
		return KindLedgerTimeout
	case errors.Is(err, ErrLedger):
		return KindLedger
	case errors.Is(err, ErrIndexNotReady):
		return KindIndexNotReady
	default:
		return KindInternal
	}
}
