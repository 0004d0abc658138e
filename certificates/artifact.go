package certificates

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ruteri/certificate-ledger/cryptoutils"
	"github.com/ruteri/certificate-ledger/interfaces"
)

// DefaultMaxUploadBytes caps the size of an uploaded artifact.
const DefaultMaxUploadBytes = 16 << 20

// stagedArtifact is an upload copied to a private temporary file.
// Release must be called on every path.
type stagedArtifact struct {
	file   *os.File
	digest interfaces.Digest
	size   int64
}

// stageArtifact copies src into dir, hashing it on the way, and enforces maxBytes.
func stageArtifact(dir string, src io.Reader, name string, maxBytes int64) (*stagedArtifact, error) {
	file, err := os.CreateTemp(dir, uuid.NewString()+"-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary artifact: %w", err)
	}
	staged := &stagedArtifact{file: file}

	digest, err := cryptoutils.Digest(io.TeeReader(io.LimitReader(src, maxBytes+1), file))
	if err != nil {
		staged.Release()
		return nil, err
	}

	size, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		staged.Release()
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSourceRead, err)
	}
	switch {
	case size == 0:
		staged.Release()
		return nil, fmt.Errorf("%w: artifact is empty", interfaces.ErrValidation)
	case size > maxBytes:
		staged.Release()
		return nil, fmt.Errorf("%w: artifact exceeds %d bytes", interfaces.ErrValidation, maxBytes)
	}

	staged.digest = digest
	staged.size = size
	return staged, nil
}

// Path returns the temporary file location.
func (a *stagedArtifact) Path() string {
	return a.file.Name()
}

// Release closes and deletes the temporary file.
func (a *stagedArtifact) Release() {
	_ = a.file.Close()
	_ = os.Remove(a.file.Name())
}

// SanitizeFilename reduces a client supplied file name to a safe base name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}

	clean := strings.TrimLeft(b.String(), "._")
	if clean == "" {
		return "artifact"
	}
	return clean
}
