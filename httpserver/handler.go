package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ruteri/certificate-ledger/api"
	"github.com/ruteri/certificate-ledger/certificates"
	"github.com/ruteri/certificate-ledger/interfaces"
)

// multipartMemory is the part of a multipart form kept in memory; the rest spills to disk.
const multipartMemory = 4 << 20

// Handler serves the certificate API on top of the certificates service.
type Handler struct {
	svc *certificates.Service
	log *slog.Logger
}

// NewHandler creates a new HTTP request handler.
func NewHandler(svc *certificates.Service, log *slog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log,
	}
}

// HandleHealth reports ledger connectivity. It always answers 200 so that a
// ledger outage is visible in the payload rather than as a dead service.
//
// URL format: GET /api/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	connected, contract := h.svc.Status(r.Context())

	h.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:              "healthy",
		BlockchainConnected: connected,
		ContractAddress:     contract.String(),
	})
}

// HandleLogin exchanges administrator credentials for a bearer token.
//
// URL format: POST /api/admin/login
// Request body: {"username": "...", "password": "..."}
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := h.svc.Login(req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.LoginResponse{
		Success:   true,
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
		Message:   "Login successful",
	})
}

// HandleIssueCertificate hashes, pins and records an uploaded certificate.
//
// URL format: POST /api/admin/issue-certificate
// Required headers: Authorization: Bearer <token>
// Request body: multipart form with certificateId, studentName, courseName,
// issueDate and the artifactFile part.
func (h *Handler) HandleIssueCertificate(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if _, err := h.svc.Authorize(token); err != nil {
		h.writeError(w, r, err)
		return
	}

	form, err := h.parseMultipart(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer form.RemoveAll()

	fields := interfaces.CertificateFields{
		CertificateID: formValue(form, api.FieldCertificateID),
		StudentName:   formValue(form, api.FieldStudentName),
		CourseName:    formValue(form, api.FieldCourseName),
		IssueDate:     formValue(form, api.FieldIssueDate),
	}

	file, filename, err := formFile(form, api.FieldArtifactFile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if file != nil {
		defer file.Close()
	}

	// A nil artifact is reported by the service after authorization and field checks.
	var artifact io.Reader
	if file != nil {
		artifact = file
	}

	result, err := h.svc.IssueCertificate(r.Context(), token, fields, artifact, filename)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.IssueResponse{
		Success:         true,
		CertificateID:   result.CertificateID,
		Digest:          result.Digest.String(),
		ContentAddress:  result.ContentAddress.String(),
		ContentURL:      result.ContentURL,
		TransactionHash: result.Receipt.TransactionHash,
		BlockNumber:     result.Receipt.BlockNumber,
	})
}

// HandleVerifyCertificate hashes an uploaded artifact and checks it against the ledger.
// The certificateId field is optional; without it the digest index is consulted.
//
// URL format: POST /api/verify-certificate
func (h *Handler) HandleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseMultipart(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer form.RemoveAll()

	file, filename, err := formFile(form, api.FieldArtifactFile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if file == nil {
		h.writeError(w, r, fmt.Errorf("%w: no file provided", interfaces.ErrValidation))
		return
	}
	defer file.Close()

	result, err := h.svc.VerifyByUpload(r.Context(), file, filename, formValue(form, api.FieldCertificateID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := api.VerifyUploadResponse{
		Verified: result.Verified,
		Message:  result.Message,
	}
	if result.Digest != nil {
		resp.Digest = result.Digest.String()
	}
	if cert := result.Certificate; cert != nil {
		resp.CertificateID = cert.CertificateID
		resp.StudentName = cert.StudentName
		resp.CourseName = cert.CourseName
		resp.IssueDate = cert.IssueDate
		resp.Issuer = cert.Issuer.String()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleVerifyByID looks up a certificate by id. An unknown id answers 200
// with verified=false.
//
// URL format: POST /api/verify-by-id
// Request body: {"certificateId": "..."}
func (h *Handler) HandleVerifyByID(w http.ResponseWriter, r *http.Request) {
	var req api.CertificateIDRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.VerifyByID(r.Context(), req.CertificateID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := api.VerifyByIDResponse{
		Verified: result.Verified,
		Message:  result.Message,
	}
	if cert := result.Certificate; cert != nil {
		resp.CertificateID = cert.CertificateID
		resp.StudentName = cert.StudentName
		resp.CourseName = cert.CourseName
		resp.IssueDate = cert.IssueDate
		resp.Issuer = cert.Issuer.String()
		if !cert.Digest.IsZero() {
			resp.Digest = cert.Digest.String()
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleRevokeCertificate revokes a certificate.
//
// URL format: POST /api/admin/revoke-certificate
// Required headers: Authorization: Bearer <token>
// Request body: {"certificateId": "..."}
func (h *Handler) HandleRevokeCertificate(w http.ResponseWriter, r *http.Request) {
	var req api.CertificateIDRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	receipt, err := h.svc.RevokeCertificate(r.Context(), bearerToken(r), req.CertificateID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	message := "Certificate revoked"
	if receipt.NoOp {
		message = "Certificate was already revoked"
	}
	h.writeJSON(w, http.StatusOK, api.RevokeResponse{
		Success:         true,
		TransactionHash: receipt.TransactionHash,
		NoOp:            receipt.NoOp,
		Message:         message,
	})
}

// HandleListCertificates lists every indexed certificate.
//
// URL format: GET /api/admin/certificates
// Required headers: Authorization: Bearer <token>
func (h *Handler) HandleListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := h.svc.ListCertificates(r.Context(), bearerToken(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if certs == nil {
		certs = []interfaces.Certificate{}
	}
	h.writeJSON(w, http.StatusOK, api.CertificatesResponse{Certificates: certs})
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	// Form fields and multipart framing need headroom beyond the artifact itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.svc.MaxUploadBytes()+api.DefaultMaxRequestBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: expected a multipart form: %v", interfaces.ErrValidation, err)
	}
	form, err := mr.ReadForm(multipartMemory)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: request exceeds %d bytes", interfaces.ErrValidation, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: malformed multipart form: %v", interfaces.ErrValidation, err)
	}
	return form, nil
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, api.DefaultMaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", interfaces.ErrValidation, err)
	}
	return nil
}

// formValue returns the first non-empty value of name or one of its aliases.
func formValue(form *multipart.Form, name string) string {
	for _, key := range append([]string{name}, api.FieldAliases[name]...) {
		if values := form.Value[key]; len(values) > 0 && strings.TrimSpace(values[0]) != "" {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

// formFile opens the first file part under name or one of its aliases.
// It returns a nil file when none was sent.
func formFile(form *multipart.Form, name string) (multipart.File, string, error) {
	for _, key := range append([]string{name}, api.FieldAliases[name]...) {
		if headers := form.File[key]; len(headers) > 0 {
			file, err := headers[0].Open()
			if err != nil {
				return nil, "", fmt.Errorf("%w: %v", interfaces.ErrSourceRead, err)
			}
			return file, headers[0].Filename, nil
		}
	}
	return nil, "", nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get(api.AuthorizationHeader)
	if len(header) < len(api.BearerPrefix) || !strings.EqualFold(header[:len(api.BearerPrefix)], api.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(api.BearerPrefix):])
}
