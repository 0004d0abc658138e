package interfaces

import "context"

// Ledger wraps the certificate contract: record-issuance, lookup-by-id,
// record-revocation, plus event history replay for indexing.
//
// All write operations are signed by a single designated account and must be
// submitted in strict sequence; implementations serialize them internally.
type Ledger interface {
	// RecordIssuance submits an issuance transaction and blocks until it is
	// confirmed. Returns ErrDuplicateCertificate if the id already exists.
	RecordIssuance(ctx context.Context, fields CertificateFields, digest Digest) (*TransactionReceipt, error)

	// Lookup reads a certificate from ledger state. Returns ErrNotFound for unknown ids.
	Lookup(ctx context.Context, certificateID string) (*Certificate, error)

	// RecordRevocation submits a revocation transaction and blocks until it is
	// confirmed. Returns ErrNotFound for unknown ids; revoking twice is not an error.
	RecordRevocation(ctx context.Context, certificateID string) (*TransactionReceipt, error)

	// History returns issuance and revocation events from fromBlock up to the
	// current head, ordered by block and log index, together with that head.
	History(ctx context.Context, fromBlock uint64) ([]LedgerEvent, uint64, error)

	// Connected reports whether the ledger endpoint is reachable.
	Connected(ctx context.Context) bool

	// ContractAddress returns the address of the certificate contract.
	ContractAddress() Address
}
