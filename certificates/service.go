// Package certificates coordinates issuing, verifying, revoking and listing
// certificates across the content hasher, the pinning backends, the ledger
// and the token service.
//
// Issuance runs hash, pin and record in that order. The ledger record is
// authoritative: if pinning succeeded but recording did not, the caller gets
// an IssueError stating the certificate was not recorded. Uploaded artifacts
// are staged in a temporary file that is removed before every operation returns.
package certificates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/certificate-ledger/index"
	"github.com/ruteri/certificate-ledger/interfaces"
	"github.com/ruteri/certificate-ledger/metrics"
)

const (
	// DefaultPinRetries is the number of retries after a failed pin caused by transport errors.
	DefaultPinRetries = 2

	// DefaultPinRetryInterval is the initial delay between pin attempts.
	DefaultPinRetryInterval = 500 * time.Millisecond
)

// Config tunes the orchestrator.
type Config struct {
	// UploadDir holds staged artifacts. Defaults to the OS temp dir.
	UploadDir string
	// MaxUploadBytes caps artifact size. Defaults to DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// PinRetries is the number of retries on transport errors. Negative disables retries.
	PinRetries int
	// PinRetryInterval is the initial backoff between pin attempts.
	PinRetryInterval time.Duration
}

// IssueResult describes a recorded certificate.
type IssueResult struct {
	CertificateID  string                         `json:"certificateId"`
	Digest         interfaces.Digest              `json:"digest"`
	ContentAddress interfaces.ContentAddress      `json:"contentAddress"`
	ContentURL     string                         `json:"contentUrl,omitempty"`
	Receipt        *interfaces.TransactionReceipt `json:"receipt"`
}

// VerifyResult is the outcome of a verification.
// Certificate is set whenever a ledger record was found, valid or not.
type VerifyResult struct {
	Digest      *interfaces.Digest      `json:"digest,omitempty"`
	Verified    bool                    `json:"verified"`
	Found       bool                    `json:"found"`
	Message     string                  `json:"message,omitempty"`
	Certificate *interfaces.Certificate `json:"certificate,omitempty"`
}

// Service implements the certificate workflows.
type Service struct {
	ledger interfaces.Ledger
	pinner interfaces.StoragePinner
	tokens interfaces.TokenService
	index  *index.CertificateIndex
	cfg    Config
	log    *slog.Logger
}

// NewService wires the orchestrator. idx may be nil, in which case listing
// reports ErrIndexNotReady and upload verification requires an id.
func NewService(ledger interfaces.Ledger, pinner interfaces.StoragePinner, tokens interfaces.TokenService, idx *index.CertificateIndex, cfg Config, log *slog.Logger) (*Service, error) {
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.PinRetries < 0 {
		cfg.PinRetries = 0
	}
	if cfg.PinRetryInterval <= 0 {
		cfg.PinRetryInterval = DefaultPinRetryInterval
	}
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &Service{
		ledger: ledger,
		pinner: pinner,
		tokens: tokens,
		index:  idx,
		cfg:    cfg,
		log:    log,
	}, nil
}

// MaxUploadBytes returns the configured artifact size limit.
func (s *Service) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

// Login exchanges administrator credentials for a token.
func (s *Service) Login(username, password string) (token *interfaces.AuthorizationToken, err error) {
	defer func(start time.Time) { metrics.RecordOperation("login", start, err) }(time.Now())

	token, err = s.tokens.Issue(username, password)
	return token, stepError(StepAuth, err)
}

// Status reports ledger connectivity and the contract in use.
func (s *Service) Status(ctx context.Context) (connected bool, contract interfaces.Address) {
	return s.ledger.Connected(ctx), s.ledger.ContractAddress()
}

// Authorize validates a bearer token and returns its subject. Handlers call it
// before reading a request body; privileged operations check again themselves.
func (s *Service) Authorize(token string) (string, error) {
	return s.authorize(token)
}

func (s *Service) authorize(token string) (string, error) {
	if token == "" {
		return "", stepError(StepAuth, fmt.Errorf("%w: missing bearer token", interfaces.ErrAuth))
	}
	subject, err := s.tokens.Validate(token)
	if err != nil {
		return "", stepError(StepAuth, err)
	}
	return subject, nil
}

// IssueCertificate hashes, pins and records a certificate.
// The artifact is read once into a temporary file which is removed before returning.
func (s *Service) IssueCertificate(ctx context.Context, token string, fields interfaces.CertificateFields, artifact io.Reader, filename string) (result *IssueResult, err error) {
	defer func(start time.Time) { metrics.RecordOperation("issue", start, err) }(time.Now())

	subject, err := s.authorize(token)
	if err != nil {
		return nil, err
	}
	if err := fields.Validate(); err != nil {
		return nil, stepError(StepValidate, err)
	}
	if artifact == nil {
		return nil, stepError(StepValidate, fmt.Errorf("%w: missing required fields: artifactFile", interfaces.ErrValidation))
	}

	name := SanitizeFilename(filename)
	staged, err := stageArtifact(s.cfg.UploadDir, artifact, name, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, stepError(StepHash, err)
	}
	defer staged.Release()

	log := s.log.With(
		slog.String("certificateId", fields.CertificateID),
		slog.String("subject", subject),
		slog.String("digest", staged.digest.String()))

	addr, err := s.pin(ctx, staged, name)
	if err != nil {
		log.Error("Pinning failed, certificate not recorded", "err", err)
		return nil, stepError(StepPin, err)
	}

	receipt, err := s.ledger.RecordIssuance(ctx, fields, staged.digest)
	if err != nil {
		log.Error("Ledger did not record certificate",
			slog.String("contentAddress", string(addr)),
			"err", err)
		return nil, &IssueError{
			CertificateID:  fields.CertificateID,
			Digest:         staged.digest,
			ContentAddress: addr,
			Err:            stepError(StepLedger, err),
		}
	}

	if s.index != nil {
		s.index.ObserveIssued(interfaces.Certificate{
			CertificateFields: fields,
			Digest:            staged.digest,
			IsValid:           true,
		}, receipt)
	}

	log.Info("Certificate issued",
		slog.String("contentAddress", string(addr)),
		slog.String("txHash", receipt.TransactionHash))

	return &IssueResult{
		CertificateID:  fields.CertificateID,
		Digest:         staged.digest,
		ContentAddress: addr,
		ContentURL:     s.pinner.ContentURL(addr),
		Receipt:        receipt,
	}, nil
}

// pin uploads the staged artifact, retrying transport failures with exponential backoff.
func (s *Service) pin(ctx context.Context, staged *stagedArtifact, name string) (interfaces.ContentAddress, error) {
	var addr interfaces.ContentAddress

	operation := func() error {
		if _, err := staged.file.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", interfaces.ErrSourceRead, err))
		}
		pinned, err := s.pinner.Pin(ctx, staged.file, name)
		metrics.RecordPinAttempt(err)
		if err != nil {
			if errors.Is(err, interfaces.ErrTransport) {
				return err
			}
			return backoff.Permanent(err)
		}
		addr = pinned
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.PinRetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.PinRetries)), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, next time.Duration) {
		s.log.Warn("Pinning failed, retrying", "err", err, slog.Duration("retryIn", next))
	})
	if err != nil {
		if !errors.Is(err, interfaces.ErrStorage) && !errors.Is(err, interfaces.ErrSourceRead) {
			err = fmt.Errorf("%w: %v", interfaces.ErrTransport, err)
		}
		return "", err
	}
	return addr, nil
}

// VerifyByUpload hashes an uploaded artifact and compares it against the ledger.
// With a certificate id the record for that id decides. Without one, the
// digest index supplies candidate ids which are each confirmed on the ledger.
func (s *Service) VerifyByUpload(ctx context.Context, artifact io.Reader, filename, certificateID string) (result *VerifyResult, err error) {
	defer func(start time.Time) { metrics.RecordOperation("verify_upload", start, err) }(time.Now())

	if artifact == nil {
		return nil, stepError(StepValidate, fmt.Errorf("%w: no file provided", interfaces.ErrValidation))
	}

	staged, err := stageArtifact(s.cfg.UploadDir, artifact, SanitizeFilename(filename), s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, stepError(StepHash, err)
	}
	digest := staged.digest
	staged.Release()

	certificateID = strings.TrimSpace(certificateID)
	if certificateID != "" {
		return s.verifyDigestFor(ctx, certificateID, digest)
	}
	return s.verifyDigest(ctx, digest)
}

func (s *Service) verifyDigestFor(ctx context.Context, certificateID string, digest interfaces.Digest) (*VerifyResult, error) {
	result := &VerifyResult{Digest: &digest}

	cert, err := s.ledger.Lookup(ctx, certificateID)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		result.Message = "Certificate not found"
		return result, nil
	case err != nil:
		return nil, stepError(StepLookup, err)
	}

	// Older contracts do not expose the digest; the replayed event still carries it.
	if cert.Digest.IsZero() && s.index != nil {
		if indexed, ok := s.index.Get(certificateID); ok {
			cert.Digest = indexed.Digest
		}
	}

	result.Found = true
	result.Certificate = cert
	switch {
	case cert.Digest.IsZero():
		result.Message = "Recorded digest is unavailable for this certificate"
	case cert.Digest != digest:
		result.Message = "Artifact does not match the recorded certificate"
	case !cert.IsValid:
		result.Message = "Certificate has been revoked"
	default:
		result.Verified = true
		result.Message = "Certificate is authentic and valid"
	}
	return result, nil
}

func (s *Service) verifyDigest(ctx context.Context, digest interfaces.Digest) (*VerifyResult, error) {
	result := &VerifyResult{Digest: &digest}

	if s.index == nil || !s.index.Ready() {
		result.Message = "Digest computed; supply a certificate id to verify it against the ledger"
		return result, nil
	}

	candidates, err := s.index.ByDigest(digest)
	if err != nil {
		return nil, stepError(StepIndex, err)
	}
	if len(candidates) == 0 {
		result.Message = "No certificate is recorded for this artifact"
		return result, nil
	}

	// Prefer the most recent valid record carrying this digest.
	for i := len(candidates) - 1; i >= 0; i-- {
		candidate, err := s.verifyDigestFor(ctx, candidates[i], digest)
		if err != nil {
			return nil, err
		}
		if candidate.Verified {
			return candidate, nil
		}
		if candidate.Found && result.Certificate == nil {
			result = candidate
		}
	}
	return result, nil
}

// VerifyByID looks a certificate up on the ledger. An unknown id is not an
// error: the result reports verified=false with a not-found message.
func (s *Service) VerifyByID(ctx context.Context, certificateID string) (result *VerifyResult, err error) {
	defer func(start time.Time) { metrics.RecordOperation("verify_id", start, err) }(time.Now())

	certificateID = strings.TrimSpace(certificateID)
	if certificateID == "" {
		return nil, stepError(StepValidate, fmt.Errorf("%w: certificate id is required", interfaces.ErrValidation))
	}

	cert, err := s.ledger.Lookup(ctx, certificateID)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return &VerifyResult{Message: "Certificate not found"}, nil
	case err != nil:
		return nil, stepError(StepLookup, err)
	}

	result = &VerifyResult{
		Verified:    cert.IsValid,
		Found:       true,
		Certificate: cert,
	}
	if !cert.Digest.IsZero() {
		result.Digest = &cert.Digest
	}
	if cert.IsValid {
		result.Message = "Certificate is valid"
	} else {
		result.Message = "Certificate has been revoked"
	}
	return result, nil
}

// RevokeCertificate marks a certificate invalid. Revoking an already revoked
// certificate succeeds with a NoOp receipt.
func (s *Service) RevokeCertificate(ctx context.Context, token, certificateID string) (receipt *interfaces.TransactionReceipt, err error) {
	defer func(start time.Time) { metrics.RecordOperation("revoke", start, err) }(time.Now())

	subject, err := s.authorize(token)
	if err != nil {
		return nil, err
	}

	certificateID = strings.TrimSpace(certificateID)
	if certificateID == "" {
		return nil, stepError(StepValidate, fmt.Errorf("%w: certificate id is required", interfaces.ErrValidation))
	}

	receipt, err = s.ledger.RecordRevocation(ctx, certificateID)
	if err != nil {
		return nil, stepError(StepLedger, err)
	}

	if s.index != nil {
		s.index.ObserveRevoked(certificateID)
	}

	s.log.Info("Certificate revoked",
		slog.String("certificateId", certificateID),
		slog.String("subject", subject),
		slog.String("txHash", receipt.TransactionHash),
		slog.Bool("noOp", receipt.NoOp))
	return receipt, nil
}

// ListCertificates returns every certificate known to the index.
// Returns ErrIndexNotReady while the ledger history has not been replayed.
func (s *Service) ListCertificates(ctx context.Context, token string) (certs []interfaces.Certificate, err error) {
	defer func(start time.Time) { metrics.RecordOperation("list", start, err) }(time.Now())

	if _, err := s.authorize(token); err != nil {
		return nil, err
	}
	if s.index == nil {
		return nil, stepError(StepIndex, interfaces.ErrIndexNotReady)
	}

	certs, err = s.index.List()
	if err != nil {
		return nil, stepError(StepIndex, err)
	}
	return certs, nil
}
