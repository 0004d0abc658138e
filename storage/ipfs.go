package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/certificate-ledger/interfaces"
)

// DefaultIPFSGateway serves content addresses pinned on a private node.
const DefaultIPFSGateway = "https://ipfs.io"

// IPFSBackend pins artifacts on an IPFS node through its HTTP API.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	gateway     string
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a pinner for the IPFS API at host:port.
// Retrieval URLs are formed against gateway.
func NewIPFSBackend(host, port, gateway string, timeout time.Duration, log *slog.Logger) *IPFSBackend {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}

	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		gateway:     strings.TrimSuffix(gateway, "/"),
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?gateway=%s", apiURL, gateway),
	}
}

// Pin adds the artifact to the node with pinning enabled and returns its CID.
func (b *IPFSBackend) Pin(ctx context.Context, artifact io.ReadSeeker, name string) (interfaces.ContentAddress, error) {
	start := time.Now()

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return "", interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(artifact, shell.Pin(true))
	if err != nil {
		b.log.Error("Failed to pin artifact on IPFS",
			slog.String("name", name),
			"err", err,
			slog.Duration("duration", time.Since(start)))

		var apiErr *shell.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: ipfs: %s", interfaces.ErrPinningRejected, apiErr.Message)
		}
		return "", fmt.Errorf("%w: ipfs: %v", interfaces.ErrTransport, err)
	}

	b.log.Debug("Pinned artifact on IPFS",
		slog.String("name", name),
		slog.String("cid", cid),
		slog.Duration("duration", time.Since(start)))

	return interfaces.ContentAddress(cid), nil
}

// ContentURL returns the gateway URL of a CID.
func (b *IPFSBackend) ContentURL(addr interfaces.ContentAddress) string {
	if !isCID(addr) {
		return ""
	}
	return fmt.Sprintf("%s/ipfs/%s", b.gateway, addr)
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

// isCID reports whether addr is a bare IPFS content identifier rather than a
// scheme-prefixed address produced by another backend.
func isCID(addr interfaces.ContentAddress) bool {
	return addr != "" && !strings.Contains(string(addr), "://")
}
