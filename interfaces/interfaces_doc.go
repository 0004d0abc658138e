// Package interfaces defines the core interfaces and types for the certificate
// ledger service.
//
// This package provides the contracts between the components of the system
// without including implementation details, so that the workflow orchestrator
// can be exercised against in-memory doubles as well as a real ledger and
// pinning service.
//
// # Component Interfaces
//
//   - Ledger: records issuance and revocation on the ledger, looks certificates up
//     and replays the contract's event history
//   - StoragePinner: uploads artifact bytes to a content-addressed pinning service
//   - TokenService: issues and validates short-lived authorization tokens
//   - CredentialVerifier: checks admin credentials against a configured identity
//
// # Type Definitions
//
//   - Digest: SHA-256 fingerprint of artifact bytes
//   - ContentAddress: address returned by a pinning service (CID, object key)
//   - ContractAddress: a 20-byte Ethereum address
//   - Certificate / CertificateFields: ledger-resident certificate record
//   - TransactionReceipt: confirmation of a finalized ledger write
//   - LedgerEvent: an issuance or revocation event replayed from the ledger
//
// # Error Types
//
// Errors are sentinel values classified with errors.Is. See errors.go for the
// full taxonomy; every component wraps one of them with context.
package interfaces
