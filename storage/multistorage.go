package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/certificate-ledger/interfaces"
)

// MultiPinner implements interfaces.StoragePinner over several backends.
// An artifact is pinned on every available backend; the address reported
// by the first backend that succeeds is returned.
type MultiPinner struct {
	backends []interfaces.StoragePinner
	log      *slog.Logger
}

// NewMultiPinner creates a pinner that fans out to backends in order.
func NewMultiPinner(backends []interfaces.StoragePinner, logger *slog.Logger) *MultiPinner {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiPinner{
		backends: backends,
		log:      logger,
	}
}

// Pin uploads the artifact to all available backends.
// It fails only if no backend accepted the artifact.
func (m *MultiPinner) Pin(ctx context.Context, artifact io.ReadSeeker, name string) (interfaces.ContentAddress, error) {
	start := time.Now()

	offset, err := artifact.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrSourceRead, err)
	}

	var result interfaces.ContentAddress
	var errs []error

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		if _, err := artifact.Seek(offset, io.SeekStart); err != nil {
			return "", fmt.Errorf("%w: %v", interfaces.ErrSourceRead, err)
		}

		addr, err := backend.Pin(ctx, artifact, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to pin to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}

		if result == "" {
			result = addr
			m.log.Info("Pinned artifact",
				slog.String("backend_name", backend.Name()),
				slog.String("address", string(addr)),
				slog.Duration("duration", time.Since(start)))
		} else {
			m.log.Debug("Replicated artifact",
				slog.String("backend_name", backend.Name()),
				slog.String("address", string(addr)))
		}
	}

	if result == "" {
		m.log.Error("All backends failed to pin artifact",
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		if len(errs) == 0 {
			return "", fmt.Errorf("%w: no pinning backends configured", interfaces.ErrBackendUnavailable)
		}
		return "", errors.Join(errs...)
	}

	return result, nil
}

// ContentURL asks each backend in order for a URL of addr.
func (m *MultiPinner) ContentURL(addr interfaces.ContentAddress) string {
	for _, backend := range m.backends {
		if url := backend.ContentURL(addr); url != "" {
			return url
		}
	}
	return ""
}

// Available checks if any backend is available
func (m *MultiPinner) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiPinner) Name() string {
	return "multi-pinner"
}

// LocationURI returns the URI of this backend
func (m *MultiPinner) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
