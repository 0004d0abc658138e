// Package index maintains a local view of every certificate on the ledger.
//
// The ledger has no enumeration call, so the index replays the contract's
// issuance and revocation events on startup and then follows new blocks.
// Writes performed by this process are applied immediately after
// confirmation so that listing reflects them before the next sync.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/certificate-ledger/interfaces"
	"github.com/ruteri/certificate-ledger/metrics"
	"go.uber.org/atomic"
)

// DefaultSyncInterval is the delay between incremental syncs.
const DefaultSyncInterval = 15 * time.Second

// CertificateIndex maps certificate ids to their latest state and digests to
// the ids that recorded them.
type CertificateIndex struct {
	ledger     interfaces.Ledger
	startBlock uint64
	log        *slog.Logger

	// syncMu serializes Rebuild and Sync.
	syncMu sync.Mutex

	mu       sync.RWMutex
	byID     map[string]*interfaces.Certificate
	order    []string
	byDigest map[interfaces.Digest][]string

	nextBlock atomic.Uint64
	ready     atomic.Bool
}

// New creates an empty index replaying history from startBlock.
func New(ledger interfaces.Ledger, startBlock uint64, log *slog.Logger) *CertificateIndex {
	if log == nil {
		log = slog.Default()
	}
	idx := &CertificateIndex{
		ledger:     ledger,
		startBlock: startBlock,
		log:        log,
		byID:       make(map[string]*interfaces.Certificate),
		byDigest:   make(map[interfaces.Digest][]string),
	}
	idx.nextBlock.Store(startBlock)
	return idx
}

// Ready reports whether the initial replay has completed.
func (idx *CertificateIndex) Ready() bool {
	return idx.ready.Load()
}

// NextBlock returns the first block not yet applied.
func (idx *CertificateIndex) NextBlock() uint64 {
	return idx.nextBlock.Load()
}

// Rebuild discards the current state and replays history from the start block.
func (idx *CertificateIndex) Rebuild(ctx context.Context) error {
	idx.syncMu.Lock()
	defer idx.syncMu.Unlock()

	start := time.Now()
	events, head, err := idx.ledger.History(ctx, idx.startBlock)
	if err != nil {
		return fmt.Errorf("failed to replay ledger history: %w", err)
	}

	idx.mu.Lock()
	idx.byID = make(map[string]*interfaces.Certificate)
	idx.order = nil
	idx.byDigest = make(map[interfaces.Digest][]string)
	for _, event := range events {
		idx.applyLocked(event)
	}
	idx.mu.Unlock()

	idx.nextBlock.Store(head + 1)
	idx.ready.Store(true)
	idx.publish()

	idx.log.Info("Certificate index rebuilt",
		slog.Int("events", len(events)),
		slog.Int("certificates", idx.Len()),
		slog.Uint64("head", head),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Sync applies events recorded since the last processed block.
// It performs a full rebuild if the index is not ready yet.
func (idx *CertificateIndex) Sync(ctx context.Context) error {
	if !idx.Ready() {
		return idx.Rebuild(ctx)
	}

	idx.syncMu.Lock()
	defer idx.syncMu.Unlock()

	from := idx.nextBlock.Load()
	events, head, err := idx.ledger.History(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to sync ledger history: %w", err)
	}
	if head+1 < from {
		// The node is behind what was already applied; keep state and retry later.
		idx.log.Warn("Ledger head behind index", slog.Uint64("head", head), slog.Uint64("next", from))
		return nil
	}

	idx.mu.Lock()
	for _, event := range events {
		idx.applyLocked(event)
	}
	idx.mu.Unlock()

	idx.nextBlock.Store(head + 1)
	idx.publish()

	if len(events) > 0 {
		idx.log.Debug("Certificate index synced",
			slog.Int("events", len(events)),
			slog.Uint64("head", head))
	}
	return nil
}

// Run rebuilds the index, retrying with exponential backoff until it succeeds,
// and then syncs every interval until ctx is done.
func (idx *CertificateIndex) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = interval
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return idx.Rebuild(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		idx.log.Warn("Certificate index rebuild failed", "err", err, slog.Duration("retryIn", next))
	})
	if err != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := idx.Sync(ctx); err != nil && ctx.Err() == nil {
				idx.log.Warn("Certificate index sync failed", "err", err)
			}
		}
	}
}

// ObserveIssued applies a confirmed issuance performed by this process.
func (idx *CertificateIndex) ObserveIssued(cert interfaces.Certificate, receipt *interfaces.TransactionReceipt) {
	event := interfaces.LedgerEvent{Kind: interfaces.EventIssued, Certificate: cert}
	if receipt != nil {
		event.BlockNumber = receipt.BlockNumber
		event.TransactionHash = receipt.TransactionHash
	}

	idx.mu.Lock()
	idx.applyLocked(event)
	idx.mu.Unlock()
	idx.publish()
}

// ObserveRevoked applies a confirmed revocation performed by this process.
func (idx *CertificateIndex) ObserveRevoked(certificateID string) {
	event := interfaces.LedgerEvent{
		Kind: interfaces.EventRevoked,
		Certificate: interfaces.Certificate{
			CertificateFields: interfaces.CertificateFields{CertificateID: certificateID},
		},
	}

	idx.mu.Lock()
	idx.applyLocked(event)
	idx.mu.Unlock()
	idx.publish()
}

// List returns every indexed certificate in issuance order.
// Returns ErrIndexNotReady until the initial replay has completed.
func (idx *CertificateIndex) List() ([]interfaces.Certificate, error) {
	if !idx.Ready() {
		return nil, interfaces.ErrIndexNotReady
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	certs := make([]interfaces.Certificate, 0, len(idx.order))
	for _, id := range idx.order {
		certs = append(certs, *idx.byID[id])
	}
	return certs, nil
}

// Get returns the indexed state of a certificate.
func (idx *CertificateIndex) Get(certificateID string) (interfaces.Certificate, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	cert, ok := idx.byID[certificateID]
	if !ok {
		return interfaces.Certificate{}, false
	}
	return *cert, true
}

// ByDigest returns the ids whose recorded digest equals digest, oldest first.
// The ids are candidates only; the ledger stays authoritative.
func (idx *CertificateIndex) ByDigest(digest interfaces.Digest) ([]string, error) {
	if !idx.Ready() {
		return nil, interfaces.ErrIndexNotReady
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return append([]string(nil), idx.byDigest[digest]...), nil
}

// Len returns the number of indexed certificates.
func (idx *CertificateIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// applyLocked applies one event. Replaying an event already applied is a no-op.
func (idx *CertificateIndex) applyLocked(event interfaces.LedgerEvent) {
	id := event.Certificate.CertificateID
	if id == "" {
		return
	}

	switch event.Kind {
	case interfaces.EventIssued:
		if existing, exists := idx.byID[id]; exists {
			// Locally observed issuances learn their issuer from the replayed event.
			if existing.Issuer == (interfaces.Address{}) && existing.Digest == event.Certificate.Digest {
				existing.Issuer = event.Certificate.Issuer
			}
			return
		}
		cert := event.Certificate
		cert.IsValid = true
		idx.byID[id] = &cert
		idx.order = append(idx.order, id)
		idx.byDigest[cert.Digest] = append(idx.byDigest[cert.Digest], id)
	case interfaces.EventRevoked:
		if cert, exists := idx.byID[id]; exists {
			cert.IsValid = false
		}
	}
}

func (idx *CertificateIndex) publish() {
	idx.mu.RLock()
	var valid, revoked int
	for _, cert := range idx.byID {
		if cert.IsValid {
			valid++
		} else {
			revoked++
		}
	}
	idx.mu.RUnlock()

	next := idx.nextBlock.Load()
	var last uint64
	if next > 0 {
		last = next - 1
	}
	metrics.SetIndexState(valid, revoked, last)
}
