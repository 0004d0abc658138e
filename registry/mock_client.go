package registry

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ruteri/certificate-ledger/interfaces"
)

// MockLedgerClient provides a simple in-memory implementation of the Ledger
// interface for testing and local development without a blockchain connection.
// It enforces the same rules as the contract: unique ids, revocation of known
// ids only, and an append-only event history.
type MockLedgerClient struct {
	mutex        sync.RWMutex
	certificates map[string]*interfaces.Certificate
	events       []interfaces.LedgerEvent
	issuer       interfaces.Address
	contract     interfaces.Address
	block        uint64
	nonce        uint64
	connected    bool
}

var _ interfaces.Ledger = (*MockLedgerClient)(nil)

// NewMockLedgerClient creates a new mock ledger with empty initial state.
func NewMockLedgerClient() *MockLedgerClient {
	return &MockLedgerClient{
		certificates: make(map[string]*interfaces.Certificate),
		issuer:       interfaces.Address{0xaa},
		contract:     interfaces.Address{0xcc},
		connected:    true,
	}
}

// SetConnected changes what Connected reports.
func (m *MockLedgerClient) SetConnected(connected bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.connected = connected
}

// Connected reports the configured connectivity.
func (m *MockLedgerClient) Connected(ctx context.Context) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.connected
}

// ContractAddress returns a fixed mock contract address.
func (m *MockLedgerClient) ContractAddress() interfaces.Address {
	return m.contract
}

// RecordIssuance stores the certificate and appends an issuance event.
func (m *MockLedgerClient) RecordIssuance(ctx context.Context, fields interfaces.CertificateFields, digest interfaces.Digest) (*interfaces.TransactionReceipt, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.certificates[fields.CertificateID]; exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrDuplicateCertificate, fields.CertificateID)
	}

	cert := &interfaces.Certificate{
		CertificateFields: fields,
		Digest:            digest,
		Issuer:            m.issuer,
		IsValid:           true,
	}
	m.certificates[fields.CertificateID] = cert

	receipt := m.nextReceipt()
	m.events = append(m.events, interfaces.LedgerEvent{
		Kind:            interfaces.EventIssued,
		Certificate:     *cert,
		BlockNumber:     receipt.BlockNumber,
		TransactionHash: receipt.TransactionHash,
	})
	return receipt, nil
}

// Lookup returns a copy of the stored certificate.
func (m *MockLedgerClient) Lookup(ctx context.Context, certificateID string) (*interfaces.Certificate, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	cert, exists := m.certificates[certificateID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, certificateID)
	}
	cp := *cert
	return &cp, nil
}

// RecordRevocation marks the certificate invalid and appends a revocation event.
func (m *MockLedgerClient) RecordRevocation(ctx context.Context, certificateID string) (*interfaces.TransactionReceipt, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	cert, exists := m.certificates[certificateID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, certificateID)
	}

	receipt := m.nextReceipt()
	receipt.NoOp = !cert.IsValid
	cert.IsValid = false

	m.events = append(m.events, interfaces.LedgerEvent{
		Kind: interfaces.EventRevoked,
		Certificate: interfaces.Certificate{
			CertificateFields: interfaces.CertificateFields{CertificateID: certificateID},
			Issuer:            m.issuer,
		},
		BlockNumber:     receipt.BlockNumber,
		TransactionHash: receipt.TransactionHash,
	})
	return receipt, nil
}

// History returns recorded events from fromBlock on.
func (m *MockLedgerClient) History(ctx context.Context, fromBlock uint64) ([]interfaces.LedgerEvent, uint64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var events []interfaces.LedgerEvent
	for _, e := range m.events {
		if e.BlockNumber >= fromBlock {
			events = append(events, e)
		}
	}
	return events, m.block, nil
}

// Count returns the number of certificates ever issued.
func (m *MockLedgerClient) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.certificates)
}

// nextReceipt mines one block per transaction. Caller holds the lock.
func (m *MockLedgerClient) nextReceipt() *interfaces.TransactionReceipt {
	m.block++
	m.nonce++

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], m.nonce)
	hash := sha256.Sum256(append(m.issuer[:], buf[:]...))

	return &interfaces.TransactionReceipt{
		TransactionHash: "0x" + hex.EncodeToString(hash[:]),
		BlockNumber:     m.block,
		GasUsed:         21000,
	}
}
