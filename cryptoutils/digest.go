package cryptoutils

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/ruteri/certificate-ledger/interfaces"
)

// DigestChunkSize is the number of bytes read from the source per iteration.
const DigestChunkSize = 4096

// Digest computes the SHA-256 digest of everything readable from r.
// Read failures are reported wrapped in interfaces.ErrSourceRead.
func Digest(r io.Reader) (interfaces.Digest, error) {
	h := sha256.New()
	buf := make([]byte, DigestChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return interfaces.Digest{}, fmt.Errorf("%w: %v", interfaces.ErrSourceRead, err)
		}
	}

	var d interfaces.Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// DigestBytes computes the SHA-256 digest of an in-memory artifact.
func DigestBytes(data []byte) interfaces.Digest {
	return interfaces.Digest(sha256.Sum256(data))
}
