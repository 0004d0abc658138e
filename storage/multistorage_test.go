package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruteri/certificate-ledger/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMultiPinner_Available(t *testing.T) {
	tests := []struct {
		name     string
		backends []bool
		expected bool
	}{
		{
			name:     "all backends available",
			backends: []bool{true, true, true},
			expected: true,
		},
		{
			name:     "some backends available",
			backends: []bool{false, true, false},
			expected: true,
		},
		{
			name:     "no backends available",
			backends: []bool{false, false, false},
			expected: false,
		},
		{
			name:     "no backends",
			backends: []bool{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backends []interfaces.StoragePinner
			for _, available := range tt.backends {
				pinner := &MockPinner{}
				pinner.On("Available", mock.Anything).Return(available).Maybe()
				backends = append(backends, pinner)
			}

			multi := NewMultiPinner(backends, discardLogger())
			assert.Equal(t, tt.expected, multi.Available(context.Background()))

			for _, backend := range backends {
				backend.(*MockPinner).AssertExpectations(t)
			}
		})
	}
}

func TestMultiPinner_Pin(t *testing.T) {
	transportErr := fmt.Errorf("%w: connection refused", interfaces.ErrTransport)
	rejectedErr := fmt.Errorf("%w: status 401", interfaces.ErrPinningRejected)

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.StoragePinner
		expectedAddr  interfaces.ContentAddress
		expectedError error
	}{
		{
			name: "all backends pin, first address wins",
			setupMocks: func() []interfaces.StoragePinner {
				p1 := &MockPinner{}
				p1.On("Available", mock.Anything).Return(true)
				p1.On("Pin", mock.Anything, "diploma.pdf").Return(interfaces.ContentAddress("QmFirst"), nil)

				p2 := &MockPinner{}
				p2.On("Available", mock.Anything).Return(true)
				p2.On("Pin", mock.Anything, "diploma.pdf").Return(interfaces.ContentAddress("s3://bucket/key"), nil)

				return []interfaces.StoragePinner{p1, p2}
			},
			expectedAddr: "QmFirst",
		},
		{
			name: "first backend fails, second succeeds",
			setupMocks: func() []interfaces.StoragePinner {
				p1 := &MockPinner{}
				p1.On("Available", mock.Anything).Return(true)
				p1.On("Pin", mock.Anything, "diploma.pdf").Return(interfaces.ContentAddress(""), rejectedErr)

				p2 := &MockPinner{}
				p2.On("Available", mock.Anything).Return(true)
				p2.On("Pin", mock.Anything, "diploma.pdf").Return(interfaces.ContentAddress("QmSecond"), nil)

				return []interfaces.StoragePinner{p1, p2}
			},
			expectedAddr: "QmSecond",
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.StoragePinner {
				p1 := &MockPinner{}
				p1.On("Available", mock.Anything).Return(false)

				p2 := &MockPinner{}
				p2.On("Available", mock.Anything).Return(true)
				p2.On("Pin", mock.Anything, "diploma.pdf").Return(interfaces.ContentAddress("QmSecond"), nil)

				return []interfaces.StoragePinner{p1, p2}
			},
			expectedAddr: "QmSecond",
		},
		{
			name: "all backends fail",
			setupMocks: func() []interfaces.StoragePinner {
				p1 := &MockPinner{}
				p1.On("Available", mock.Anything).Return(true)
				p1.On("Pin", mock.Anything, "diploma.pdf").Return(interfaces.ContentAddress(""), transportErr)

				p2 := &MockPinner{}
				p2.On("Available", mock.Anything).Return(true)
				p2.On("Pin", mock.Anything, "diploma.pdf").Return(interfaces.ContentAddress(""), rejectedErr)

				return []interfaces.StoragePinner{p1, p2}
			},
			expectedError: interfaces.ErrStorage,
		},
		{
			name: "no backend available",
			setupMocks: func() []interfaces.StoragePinner {
				p1 := &MockPinner{}
				p1.On("Available", mock.Anything).Return(false)
				return []interfaces.StoragePinner{p1}
			},
			expectedError: interfaces.ErrTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			multi := NewMultiPinner(backends, discardLogger())

			addr, err := multi.Pin(context.Background(), strings.NewReader("hello"), "diploma.pdf")
			if tt.expectedError != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.expectedError))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expectedAddr, addr)

			for _, backend := range backends {
				backend.(*MockPinner).AssertExpectations(t)
			}
		})
	}
}

func TestMultiPinner_ReplaysArtifactForEachBackend(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	a, err := NewFileBackend(dirA, discardLogger())
	require.NoError(t, err)
	b, err := NewFileBackend(dirB, discardLogger())
	require.NoError(t, err)

	multi := NewMultiPinner([]interfaces.StoragePinner{a, b}, discardLogger())
	addr, err := multi.Pin(context.Background(), strings.NewReader("hello"), "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, interfaces.ContentAddress("file://"+dirA+"/"+helloDigest), addr)
	assert.FileExists(t, dirB+"/"+helloDigest)

	assert.Equal(t, string(addr), multi.ContentURL(addr))
	assert.Empty(t, multi.ContentURL("QmUnknown"))
	assert.Equal(t, "multi:[file://"+dirA+",file://"+dirB+"]", multi.LocationURI())
}
