package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ruteri/certificate-ledger/api"
	"github.com/ruteri/certificate-ledger/interfaces"
)

// DefaultTimeout bounds a single API call. Issuance waits for ledger confirmation.
const DefaultTimeout = 3 * time.Minute

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string

	// Recorded and ContentAddress are set on failed issuance after pinning.
	Recorded       *bool
	ContentAddress string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

var sentinelByKind = map[string]error{
	interfaces.KindValidation:         interfaces.ErrValidation,
	interfaces.KindAuth:               interfaces.ErrAuth,
	interfaces.KindInvalidToken:       interfaces.ErrInvalidToken,
	interfaces.KindExpiredToken:       interfaces.ErrExpiredToken,
	interfaces.KindInvalidCredentials: interfaces.ErrInvalidCredentials,
	interfaces.KindNotFound:           interfaces.ErrNotFound,
	interfaces.KindDuplicate:          interfaces.ErrDuplicateCertificate,
	interfaces.KindStorage:            interfaces.ErrStorage,
	interfaces.KindLedgerTimeout:      interfaces.ErrLedgerTimeout,
	interfaces.KindLedger:             interfaces.ErrLedger,
	interfaces.KindIndexNotReady:      interfaces.ErrIndexNotReady,
}

// Unwrap returns the sentinel error matching the error kind, if any.
func (e *APIError) Unwrap() error {
	return sentinelByKind[e.Kind]
}

// Client calls the certificate API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// SetToken sets the bearer token sent with privileged calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Health reports service status and ledger connectivity.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, api.PathHealth, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login obtains a bearer token and stores it for subsequent privileged calls.
func (c *Client) Login(ctx context.Context, username, password string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	req := api.LoginRequest{Username: username, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, api.PathLogin, req, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// IssueCertificate uploads artifact and records the certificate.
func (c *Client) IssueCertificate(ctx context.Context, fields interfaces.CertificateFields, filename string, artifact io.Reader) (*api.IssueResponse, error) {
	form := map[string]string{
		api.FieldCertificateID: fields.CertificateID,
		api.FieldStudentName:   fields.StudentName,
		api.FieldCourseName:    fields.CourseName,
		api.FieldIssueDate:     fields.IssueDate,
	}

	var resp api.IssueResponse
	if err := c.doMultipart(ctx, api.PathIssueCertificate, form, filename, artifact, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyCertificate uploads artifact and compares its digest with the ledger.
// certificateID may be empty.
func (c *Client) VerifyCertificate(ctx context.Context, filename string, artifact io.Reader, certificateID string) (*api.VerifyUploadResponse, error) {
	form := map[string]string{}
	if certificateID != "" {
		form[api.FieldCertificateID] = certificateID
	}

	var resp api.VerifyUploadResponse
	if err := c.doMultipart(ctx, api.PathVerifyCertificate, form, filename, artifact, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyByID looks a certificate up by id.
func (c *Client) VerifyByID(ctx context.Context, certificateID string) (*api.VerifyByIDResponse, error) {
	var resp api.VerifyByIDResponse
	req := api.CertificateIDRequest{CertificateID: certificateID}
	if err := c.doJSON(ctx, http.MethodPost, api.PathVerifyByID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RevokeCertificate revokes a certificate.
func (c *Client) RevokeCertificate(ctx context.Context, certificateID string) (*api.RevokeResponse, error) {
	var resp api.RevokeResponse
	req := api.CertificateIDRequest{CertificateID: certificateID}
	if err := c.doJSON(ctx, http.MethodPost, api.PathRevokeCertificate, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListCertificates returns every indexed certificate.
func (c *Client) ListCertificates(ctx context.Context) ([]interfaces.Certificate, error) {
	var resp api.CertificatesResponse
	if err := c.doJSON(ctx, http.MethodGet, api.PathListCertificates, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Certificates, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) doMultipart(ctx context.Context, path string, fields map[string]string, filename string, artifact io.Reader, out any) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeForm(mw, fields, filename, artifact)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func writeForm(mw *multipart.Writer, fields map[string]string, filename string, artifact io.Reader) error {
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return err
		}
	}
	if artifact == nil {
		return nil
	}
	part, err := mw.CreateFormFile(api.FieldArtifactFile, filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, artifact)
	return err
}

func (c *Client) do(req *http.Request, out any) error {
	if token := c.Token(); token != "" {
		req.Header.Set(api.AuthorizationHeader, api.BearerPrefix+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, api.DefaultMaxRequestBytes))
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Kind: interfaces.KindInternal, Message: resp.Status}
	}

	var payload api.ErrorResponse
	if err := json.Unmarshal(bodyBytes, &payload); err != nil || payload.Kind == "" {
		return &APIError{StatusCode: resp.StatusCode, Kind: interfaces.KindInternal, Message: strings.TrimSpace(string(bodyBytes))}
	}
	return &APIError{
		StatusCode:     resp.StatusCode,
		Kind:           payload.Kind,
		Message:        payload.Error,
		Recorded:       payload.Recorded,
		ContentAddress: payload.ContentAddress,
	}
}
