package storage

import (
	"context"
	"io"

	"github.com/ruteri/certificate-ledger/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockPinner mocks the StoragePinner interface
type MockPinner struct {
	mock.Mock
}

var _ interfaces.StoragePinner = (*MockPinner)(nil)

// Pin mocks the Pin method. The artifact is drained so callers observe a complete read.
func (m *MockPinner) Pin(ctx context.Context, artifact io.ReadSeeker, name string) (interfaces.ContentAddress, error) {
	_, _ = io.Copy(io.Discard, artifact)
	args := m.Called(ctx, name)
	return args.Get(0).(interfaces.ContentAddress), args.Error(1)
}

// ContentURL mocks the ContentURL method
func (m *MockPinner) ContentURL(addr interfaces.ContentAddress) string {
	args := m.Called(addr)
	return args.String(0)
}

// Available mocks the Available method
func (m *MockPinner) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// Name mocks the Name method
func (m *MockPinner) Name() string {
	return "mock-pinner"
}

// LocationURI mocks the LocationURI method
func (m *MockPinner) LocationURI() string {
	return "mock:"
}
