package interfaces

import (
	"context"
	"fmt"
	"io"
	"net/url"
)

// StorageBackendLocation represents URI for a pinning backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	User   *url.Userinfo
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "ipfs", "pinata":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme: %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		User:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// StoragePinner uploads artifacts to a content-addressed pinning service.
//
// Pin does not retry; retry policy belongs to the caller. Failures wrap
// ErrTransport (service unreachable) or ErrPinningRejected (non-success status).
type StoragePinner interface {
	// Pin uploads the artifact under the given name and returns its content address.
	// The artifact is read from its current position; implementations may seek.
	Pin(ctx context.Context, artifact io.ReadSeeker, name string) (ContentAddress, error)

	// ContentURL returns a retrieval URL for a content address, or "" if none.
	ContentURL(addr ContentAddress) string

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend, with secrets redacted.
	LocationURI() string
}
