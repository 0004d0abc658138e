package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/certificate-ledger/interfaces"
	"github.com/ruteri/certificate-ledger/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fields(id string) interfaces.CertificateFields {
	return interfaces.CertificateFields{
		CertificateID: id,
		StudentName:   "Alice",
		CourseName:    "Systems 101",
		IssueDate:     "2024-01-01",
	}
}

func TestListBeforeRebuild(t *testing.T) {
	idx := New(registry.NewMockLedgerClient(), 0, discardLogger())

	_, err := idx.List()
	require.ErrorIs(t, err, interfaces.ErrIndexNotReady)
	_, err = idx.ByDigest(interfaces.Digest{1})
	require.ErrorIs(t, err, interfaces.ErrIndexNotReady)
	assert.False(t, idx.Ready())
}

func TestRebuildAndSync(t *testing.T) {
	ctx := context.Background()
	ledger := registry.NewMockLedgerClient()

	_, err := ledger.RecordIssuance(ctx, fields("CERT-001"), interfaces.Digest{1})
	require.NoError(t, err)
	_, err = ledger.RecordIssuance(ctx, fields("CERT-002"), interfaces.Digest{2})
	require.NoError(t, err)
	_, err = ledger.RecordRevocation(ctx, "CERT-001")
	require.NoError(t, err)

	idx := New(ledger, 0, discardLogger())
	require.NoError(t, idx.Rebuild(ctx))
	assert.True(t, idx.Ready())
	assert.Equal(t, uint64(4), idx.NextBlock())

	certs, err := idx.List()
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, "CERT-001", certs[0].CertificateID)
	assert.False(t, certs[0].IsValid)
	assert.Equal(t, "CERT-002", certs[1].CertificateID)
	assert.True(t, certs[1].IsValid)

	_, err = ledger.RecordIssuance(ctx, fields("CERT-003"), interfaces.Digest{3})
	require.NoError(t, err)
	_, err = ledger.RecordRevocation(ctx, "CERT-002")
	require.NoError(t, err)

	require.NoError(t, idx.Sync(ctx))
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, uint64(6), idx.NextBlock())

	cert, ok := idx.Get("CERT-002")
	require.True(t, ok)
	assert.False(t, cert.IsValid)

	ids, err := idx.ByDigest(interfaces.Digest{3})
	require.NoError(t, err)
	assert.Equal(t, []string{"CERT-003"}, ids)

	// Nothing new: state is unchanged.
	require.NoError(t, idx.Sync(ctx))
	assert.Equal(t, 3, idx.Len())
}

func TestEmptyLedgerIsReadyAndEmpty(t *testing.T) {
	idx := New(registry.NewMockLedgerClient(), 0, discardLogger())
	require.NoError(t, idx.Sync(context.Background()))

	certs, err := idx.List()
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestObserveIsIdempotentWithReplay(t *testing.T) {
	ctx := context.Background()
	ledger := registry.NewMockLedgerClient()
	idx := New(ledger, 0, discardLogger())
	require.NoError(t, idx.Rebuild(ctx))

	digest := interfaces.Digest{9}
	receipt, err := ledger.RecordIssuance(ctx, fields("CERT-001"), digest)
	require.NoError(t, err)
	idx.ObserveIssued(interfaces.Certificate{CertificateFields: fields("CERT-001"), Digest: digest}, receipt)

	_, err = ledger.RecordRevocation(ctx, "CERT-001")
	require.NoError(t, err)
	idx.ObserveRevoked("CERT-001")

	cert, ok := idx.Get("CERT-001")
	require.True(t, ok)
	assert.False(t, cert.IsValid)

	// Replaying the same events must not resurrect or duplicate the certificate.
	require.NoError(t, idx.Sync(ctx))
	certs, err := idx.List()
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.False(t, certs[0].IsValid)

	ids, err := idx.ByDigest(digest)
	require.NoError(t, err)
	assert.Equal(t, []string{"CERT-001"}, ids)
}

func TestReplayFillsIssuerOfObservedIssuance(t *testing.T) {
	ctx := context.Background()
	ledger := registry.NewMockLedgerClient()
	idx := New(ledger, 0, discardLogger())
	require.NoError(t, idx.Rebuild(ctx))

	digest := interfaces.Digest{7}
	receipt, err := ledger.RecordIssuance(ctx, fields("CERT-001"), digest)
	require.NoError(t, err)
	idx.ObserveIssued(interfaces.Certificate{CertificateFields: fields("CERT-001"), Digest: digest, IsValid: true}, receipt)

	cert, ok := idx.Get("CERT-001")
	require.True(t, ok)
	assert.Equal(t, interfaces.Address{}, cert.Issuer)

	onLedger, err := ledger.Lookup(ctx, "CERT-001")
	require.NoError(t, err)

	require.NoError(t, idx.Sync(ctx))
	certs, err := idx.List()
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, onLedger.Issuer, certs[0].Issuer)
	assert.NotEqual(t, interfaces.Address{}, certs[0].Issuer)
	assert.True(t, certs[0].IsValid)
}

func TestSharedDigest(t *testing.T) {
	ctx := context.Background()
	ledger := registry.NewMockLedgerClient()
	digest := interfaces.Digest{7}

	_, err := ledger.RecordIssuance(ctx, fields("CERT-A"), digest)
	require.NoError(t, err)
	_, err = ledger.RecordIssuance(ctx, fields("CERT-B"), digest)
	require.NoError(t, err)

	idx := New(ledger, 0, discardLogger())
	require.NoError(t, idx.Rebuild(ctx))

	ids, err := idx.ByDigest(digest)
	require.NoError(t, err)
	assert.Equal(t, []string{"CERT-A", "CERT-B"}, ids)
}

func TestRebuildFailureKeepsIndexNotReady(t *testing.T) {
	ledger := &registry.MockLedger{}
	ledger.On("History", mock.Anything, uint64(5)).Return(nil, uint64(0), interfaces.ErrLedger)

	idx := New(ledger, 5, discardLogger())
	err := idx.Rebuild(context.Background())
	require.ErrorIs(t, err, interfaces.ErrLedger)
	assert.False(t, idx.Ready())

	_, err = idx.List()
	require.ErrorIs(t, err, interfaces.ErrIndexNotReady)
	ledger.AssertExpectations(t)
}

func TestRunRetriesUntilRebuilt(t *testing.T) {
	ledger := &registry.MockLedger{}
	ledger.On("History", mock.Anything, uint64(0)).Return(nil, uint64(0), errors.New("connection refused")).Once()
	ledger.On("History", mock.Anything, uint64(0)).Return([]interfaces.LedgerEvent{}, uint64(10), nil).Once()
	ledger.On("History", mock.Anything, uint64(11)).Return([]interfaces.LedgerEvent{}, uint64(10), nil).Maybe()

	idx := New(ledger, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		idx.Run(ctx, 20*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, idx.Ready, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(11), idx.NextBlock())

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
