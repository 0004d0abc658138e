package api

import (
	"encoding/json"
	"time"

	"github.com/ruteri/certificate-ledger/interfaces"
)

// Route paths served by the certificate API.
const (
	PathHealth             = "/api/health"
	PathLogin              = "/api/admin/login"
	PathIssueCertificate   = "/api/admin/issue-certificate"
	PathRevokeCertificate  = "/api/admin/revoke-certificate"
	PathListCertificates   = "/api/admin/certificates"
	PathVerifyCertificate  = "/api/verify-certificate"
	PathVerifyByID         = "/api/verify-by-id"
	AuthorizationHeader    = "Authorization"
	BearerPrefix           = "Bearer "
	DefaultMaxRequestBytes = 1 << 20
)

// Multipart field names. Each field also accepts the snake_case alias sent
// by older web clients.
const (
	FieldCertificateID = "certificateId"
	FieldStudentName   = "studentName"
	FieldCourseName    = "courseName"
	FieldIssueDate     = "issueDate"
	FieldArtifactFile  = "artifactFile"
)

// FieldAliases maps each canonical field name to its accepted aliases.
var FieldAliases = map[string][]string{
	FieldCertificateID: {"certificate_id"},
	FieldStudentName:   {"student_name"},
	FieldCourseName:    {"course_name"},
	FieldIssueDate:     {"issue_date"},
	FieldArtifactFile:  {"certificate_file", "file"},
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`

	// Recorded is set on issuance failures after pinning and is always false:
	// the certificate does not exist on the ledger.
	Recorded       *bool  `json:"recorded,omitempty"`
	ContentAddress string `json:"contentAddress,omitempty"`
	Digest         string `json:"digest,omitempty"`
}

// HealthResponse reports service and ledger status.
type HealthResponse struct {
	Status              string `json:"status"`
	BlockchainConnected bool   `json:"blockchainConnected"`
	ContractAddress     string `json:"contractAddress"`
}

// LoginRequest carries administrator credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token for privileged calls.
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Message   string    `json:"message,omitempty"`
}

// IssueResponse describes a certificate recorded on the ledger.
type IssueResponse struct {
	Success         bool   `json:"success"`
	CertificateID   string `json:"certificateId"`
	Digest          string `json:"digest"`
	ContentAddress  string `json:"contentAddress"`
	ContentURL      string `json:"contentUrl,omitempty"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
}

// VerifyUploadResponse is the result of verifying an uploaded artifact.
type VerifyUploadResponse struct {
	Digest        string `json:"digest"`
	Verified      bool   `json:"verified"`
	Message       string `json:"message"`
	CertificateID string `json:"certificateId,omitempty"`
	StudentName   string `json:"studentName,omitempty"`
	CourseName    string `json:"courseName,omitempty"`
	IssueDate     string `json:"issueDate,omitempty"`
	Issuer        string `json:"issuer,omitempty"`
}

// CertificateIDRequest names a certificate. It accepts certificateId and certificate_id.
type CertificateIDRequest struct {
	CertificateID string `json:"certificateId"`
}

// UnmarshalJSON accepts both spellings of the id field.
func (r *CertificateIDRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		CertificateID string `json:"certificateId"`
		Alias         string `json:"certificate_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.CertificateID = raw.CertificateID
	if r.CertificateID == "" {
		r.CertificateID = raw.Alias
	}
	return nil
}

// VerifyByIDResponse is the ledger record of a certificate, if any.
type VerifyByIDResponse struct {
	Verified      bool   `json:"verified"`
	Message       string `json:"message,omitempty"`
	CertificateID string `json:"certificateId,omitempty"`
	StudentName   string `json:"studentName,omitempty"`
	CourseName    string `json:"courseName,omitempty"`
	IssueDate     string `json:"issueDate,omitempty"`
	Issuer        string `json:"issuer,omitempty"`
	Digest        string `json:"digest,omitempty"`
}

// RevokeResponse confirms a revocation.
type RevokeResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash"`
	NoOp            bool   `json:"noOp,omitempty"`
	Message         string `json:"message,omitempty"`
}

// CertificatesResponse lists every indexed certificate.
type CertificatesResponse struct {
	Certificates []interfaces.Certificate `json:"certificates"`
}
