package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/certificate-ledger/cryptoutils"
	"github.com/ruteri/certificate-ledger/interfaces"
)

// FileBackend keeps artifacts on the local file system, one file per digest.
// It serves local development and tests.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file pinner rooted at baseDir, creating it if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Pin copies the artifact to <baseDir>/<sha256> and returns file://<path> as its address.
func (b *FileBackend) Pin(ctx context.Context, artifact io.ReadSeeker, name string) (interfaces.ContentAddress, error) {
	tmp, err := os.CreateTemp(b.baseDir, ".pin-*")
	if err != nil {
		return "", fmt.Errorf("%w: failed to create file: %v", interfaces.ErrTransport, err)
	}
	defer os.Remove(tmp.Name())

	digest, err := cryptoutils.Digest(io.TeeReader(artifact, tmp))
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: failed to write file: %v", interfaces.ErrTransport, cerr)
	}
	if err != nil {
		return "", err
	}

	filePath := filepath.Join(b.baseDir, digest.String())
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", fmt.Errorf("%w: failed to write file: %v", interfaces.ErrTransport, err)
	}

	b.log.Debug("Stored artifact in file",
		slog.String("path", filePath),
		slog.String("name", name))

	return interfaces.ContentAddress("file://" + filePath), nil
}

// ContentURL returns the address itself for files under baseDir.
func (b *FileBackend) ContentURL(addr interfaces.ContentAddress) string {
	if !strings.HasPrefix(string(addr), "file://"+b.baseDir) {
		return ""
	}
	return string(addr)
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}
