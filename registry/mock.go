package registry

import (
	"context"

	"github.com/ruteri/certificate-ledger/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockLedger mocks the Ledger interface
type MockLedger struct {
	mock.Mock
}

var _ interfaces.Ledger = (*MockLedger)(nil)

// RecordIssuance mocks the RecordIssuance method
func (m *MockLedger) RecordIssuance(ctx context.Context, fields interfaces.CertificateFields, digest interfaces.Digest) (*interfaces.TransactionReceipt, error) {
	args := m.Called(ctx, fields, digest)
	receipt, _ := args.Get(0).(*interfaces.TransactionReceipt)
	return receipt, args.Error(1)
}

// Lookup mocks the Lookup method
func (m *MockLedger) Lookup(ctx context.Context, certificateID string) (*interfaces.Certificate, error) {
	args := m.Called(ctx, certificateID)
	cert, _ := args.Get(0).(*interfaces.Certificate)
	return cert, args.Error(1)
}

// RecordRevocation mocks the RecordRevocation method
func (m *MockLedger) RecordRevocation(ctx context.Context, certificateID string) (*interfaces.TransactionReceipt, error) {
	args := m.Called(ctx, certificateID)
	receipt, _ := args.Get(0).(*interfaces.TransactionReceipt)
	return receipt, args.Error(1)
}

// History mocks the History method
func (m *MockLedger) History(ctx context.Context, fromBlock uint64) ([]interfaces.LedgerEvent, uint64, error) {
	args := m.Called(ctx, fromBlock)
	events, _ := args.Get(0).([]interfaces.LedgerEvent)
	return events, args.Get(1).(uint64), args.Error(2)
}

// Connected mocks the Connected method
func (m *MockLedger) Connected(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// ContractAddress mocks the ContractAddress method
func (m *MockLedger) ContractAddress() interfaces.Address {
	args := m.Called()
	return args.Get(0).(interfaces.Address)
}
