package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/certificate-ledger/interfaces"
)

const (
	// DefaultPinataEndpoint is the Pinata pinning API.
	DefaultPinataEndpoint = "https://api.pinata.cloud"

	// DefaultPinataGateway serves pinned content.
	DefaultPinataGateway = "https://gateway.pinata.cloud"

	pinFilePath = "/pinning/pinFileToIPFS"
	authPath    = "/data/testAuthentication"
)

// PinataBackend pins artifacts through the Pinata HTTP API, authenticated
// with an API key pair.
type PinataBackend struct {
	client      *http.Client
	endpoint    string
	apiKey      string
	apiSecret   string
	gateway     string
	log         *slog.Logger
	locationURI string
}

type pinataPinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// NewPinataBackend creates a pinner for the Pinata API at endpoint.
func NewPinataBackend(endpoint, apiKey, apiSecret, gateway string, timeout time.Duration, log *slog.Logger) *PinataBackend {
	if endpoint == "" {
		endpoint = DefaultPinataEndpoint
	}
	if gateway == "" {
		gateway = DefaultPinataGateway
	}
	endpoint = strings.TrimSuffix(endpoint, "/")
	gateway = strings.TrimSuffix(gateway, "/")

	return &PinataBackend{
		client:      &http.Client{Timeout: timeout},
		endpoint:    endpoint,
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		gateway:     gateway,
		log:         log,
		locationURI: fmt.Sprintf("pinata://%s:***@%s?gateway=%s", apiKey, strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://"), gateway),
	}
}

// Pin uploads the artifact as a multipart file and returns the IPFS hash reported by Pinata.
func (b *PinataBackend) Pin(ctx context.Context, artifact io.ReadSeeker, name string) (interfaces.ContentAddress, error) {
	start := time.Now()

	body, contentType := streamMultipart(artifact, name)
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+pinFilePath, body)
	if err != nil {
		return "", fmt.Errorf("%w: pinata: %v", interfaces.ErrTransport, err)
	}
	req.Header.Set("Content-Type", contentType)
	b.authenticate(req)

	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Error("Pinata request failed",
			slog.String("name", name),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return "", fmt.Errorf("%w: pinata: %v", interfaces.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		b.log.Error("Pinata rejected artifact",
			slog.String("name", name),
			slog.Int("status", resp.StatusCode),
			slog.String("response", string(msg)))
		return "", fmt.Errorf("%w: pinata: status %d", interfaces.ErrPinningRejected, resp.StatusCode)
	}

	var pinned pinataPinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", fmt.Errorf("%w: pinata: malformed response: %v", interfaces.ErrPinningRejected, err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("%w: pinata: response carries no IpfsHash", interfaces.ErrPinningRejected)
	}

	b.log.Debug("Pinned artifact on Pinata",
		slog.String("name", name),
		slog.String("cid", pinned.IpfsHash),
		slog.Int64("size", pinned.PinSize),
		slog.Duration("duration", time.Since(start)))

	return interfaces.ContentAddress(pinned.IpfsHash), nil
}

// ContentURL returns the gateway URL of a CID.
func (b *PinataBackend) ContentURL(addr interfaces.ContentAddress) string {
	if !isCID(addr) {
		return ""
	}
	return fmt.Sprintf("%s/ipfs/%s", b.gateway, addr)
}

// Available checks that the API answers and accepts the key pair.
func (b *PinataBackend) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+authPath, nil)
	if err != nil {
		return false
	}
	b.authenticate(req)

	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Warn("Pinata unavailable", "err", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Name returns a unique identifier for this storage backend.
func (b *PinataBackend) Name() string {
	return "pinata"
}

// LocationURI returns the URI that identifies this storage backend, without the secret.
func (b *PinataBackend) LocationURI() string {
	return b.locationURI
}

func (b *PinataBackend) authenticate(req *http.Request) {
	req.Header.Set("pinata_api_key", b.apiKey)
	req.Header.Set("pinata_secret_api_key", b.apiSecret)
}

// multipartBody is the read side of a streamed multipart upload.
type multipartBody struct {
	*io.PipeReader
	done chan struct{}
}

// Close stops the encoder and waits until it no longer touches the artifact,
// so the caller may seek or close it afterwards.
func (b *multipartBody) Close() error {
	err := b.PipeReader.Close()
	<-b.done
	return err
}

// streamMultipart encodes artifact as the "file" part of a multipart body
// without buffering it in memory.
func streamMultipart(artifact io.Reader, name string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	body := &multipartBody{PipeReader: pr, done: make(chan struct{})}

	go func() {
		defer close(body.done)

		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, artifact)
		}
		if err == nil {
			var meta []byte
			meta, err = json.Marshal(map[string]string{"name": name})
			if err == nil {
				err = mw.WriteField("pinataMetadata", string(meta))
			}
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	return body, mw.FormDataContentType()
}
