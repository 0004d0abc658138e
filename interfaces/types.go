package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Address represents an Ethereum account or contract address.
type Address [20]byte

// NewAddressFromBytes creates an address from a 20-byte slice.
func NewAddressFromBytes(addr []byte) (Address, error) {
	if len(addr) != 20 {
		return Address{}, errors.New("invalid address length: must be 20 bytes")
	}

	var res Address
	copy(res[:], addr)
	return res, nil
}

// NewAddressFromHex parses a 40-character hex string, with or without 0x prefix.
func NewAddressFromHex(addr string) (Address, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return Address{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewAddressFromBytes(addrBytes)
}

// String returns the 0x-prefixed hex representation of the address.
func (addr Address) String() string {
	return "0x" + hex.EncodeToString(addr[:])
}

// Bytes returns the raw 20-byte address.
func (addr Address) Bytes() []byte {
	return addr[:]
}

// MarshalText encodes the address as 0x-prefixed hex.
func (addr Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

// UnmarshalText decodes a hex address.
func (addr *Address) UnmarshalText(text []byte) error {
	parsed, err := NewAddressFromHex(string(text))
	if err != nil {
		return err
	}
	*addr = parsed
	return nil
}

// Digest is the SHA-256 fingerprint of an artifact.
// Identical byte sequences always produce the same digest.
type Digest [32]byte

// NewDigestFromHex parses a 64-character hex digest, with or without 0x prefix.
func NewDigestFromHex(source string) (Digest, error) {
	clean := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(source)), "0x")
	if len(clean) != 64 {
		return Digest{}, errors.New("invalid digest length: hex string must be 64 characters")
	}

	digestBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var d Digest
	copy(d[:], digestBytes)
	return d, nil
}

// String returns the lowercase hex representation, the form recorded on the ledger.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText encodes the digest as lowercase hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := NewDigestFromHex(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// IsZero reports whether the digest was never set.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ContentAddress is the address a pinning service assigns to uploaded bytes.
// It is informational; the ledger digest is authoritative.
type ContentAddress string

// String returns the address as a string.
func (a ContentAddress) String() string {
	return string(a)
}

// CertificateFields are the caller-supplied fields of a certificate.
type CertificateFields struct {
	CertificateID string `json:"certificateId"`
	StudentName   string `json:"studentName"`
	CourseName    string `json:"courseName"`
	IssueDate     string `json:"issueDate"`
}

// Validate checks that every field is present and non-empty.
func (f CertificateFields) Validate() error {
	var missing []string
	if strings.TrimSpace(f.CertificateID) == "" {
		missing = append(missing, "certificateId")
	}
	if strings.TrimSpace(f.StudentName) == "" {
		missing = append(missing, "studentName")
	}
	if strings.TrimSpace(f.CourseName) == "" {
		missing = append(missing, "courseName")
	}
	if strings.TrimSpace(f.IssueDate) == "" {
		missing = append(missing, "issueDate")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Certificate is the ledger-resident record of an issued certificate.
// Revocation flips IsValid; the record itself is never deleted.
type Certificate struct {
	CertificateFields
	Digest  Digest  `json:"digest"`
	Issuer  Address `json:"issuer"`
	IsValid bool    `json:"isValid"`
}

// TransactionReceipt confirms a finalized ledger write.
type TransactionReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	GasUsed         uint64 `json:"gasUsed"`

	// NoOp is set when the ledger accepted the call without changing state,
	// e.g. revoking an already revoked certificate.
	NoOp bool `json:"noOp,omitempty"`
}

// LedgerEventKind distinguishes the events replayed from the ledger.
type LedgerEventKind int

const (
	// EventIssued is emitted once per successful issuance.
	EventIssued LedgerEventKind = iota
	// EventRevoked is emitted for every revocation transaction.
	EventRevoked
)

// String returns the event kind name.
func (k LedgerEventKind) String() string {
	switch k {
	case EventIssued:
		return "issued"
	case EventRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// LedgerEvent is an issuance or revocation event read from the ledger history.
// For EventRevoked only CertificateID, Issuer and the position fields are set.
type LedgerEvent struct {
	Kind            LedgerEventKind
	Certificate     Certificate
	BlockNumber     uint64
	LogIndex        uint
	TransactionHash string
}

// AuthorizationToken is a signed, self-contained credential proving a prior login.
type AuthorizationToken struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
