package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/certificate-ledger/api"
	"github.com/ruteri/certificate-ledger/auth"
	"github.com/ruteri/certificate-ledger/certificates"
	"github.com/ruteri/certificate-ledger/index"
	"github.com/ruteri/certificate-ledger/interfaces"
	"github.com/ruteri/certificate-ledger/registry"
	"github.com/ruteri/certificate-ledger/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

var (
	credentials     *auth.StaticCredentials
	credentialsOnce sync.Once
)

type testServer struct {
	router http.Handler
	server *Server
	index  *index.CertificateIndex
}

func newTestServer(t *testing.T, ledger interfaces.Ledger, maxUpload int64) *testServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	credentialsOnce.Do(func() {
		var err error
		credentials, err = auth.NewStaticCredentials("admin", "hunter2")
		require.NoError(t, err)
	})
	tokens, err := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), time.Hour, credentials, logger)
	require.NoError(t, err)

	pinner, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)

	idx := index.New(ledger, 0, logger)
	svc, err := certificates.NewService(ledger, pinner, tokens, idx, certificates.Config{
		UploadDir:      t.TempDir(),
		MaxUploadBytes: maxUpload,
	}, logger)
	require.NoError(t, err)

	srv := New(&api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, NewHandler(svc, logger))

	return &testServer{router: srv.Router(), server: srv, index: idx}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(t *testing.T, path, token string, body any) *httptest.ResponseRecorder {
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(api.AuthorizationHeader, api.BearerPrefix+token)
	}
	return ts.do(t, req)
}

func (ts *testServer) postForm(t *testing.T, path, token string, fields map[string]string, fileField string, content []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, "diploma.pdf")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set(api.AuthorizationHeader, api.BearerPrefix+token)
	}
	return ts.do(t, req)
}

func (ts *testServer) login(t *testing.T) string {
	w := ts.postJSON(t, api.PathLogin, "", api.LoginRequest{Username: "admin", Password: "hunter2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.LoginResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp), w.Body.String())
	return resp
}

func exampleForm() map[string]string {
	return map[string]string{
		api.FieldCertificateID: "CERT-001",
		api.FieldStudentName:   "Alice",
		api.FieldCourseName:    "Systems 101",
		api.FieldIssueDate:     "2024-01-01",
	}
}

func TestHealth(t *testing.T) {
	ledger := registry.NewMockLedgerClient()
	ts := newTestServer(t, ledger, 0)

	w := ts.do(t, httptest.NewRequest(http.MethodGet, api.PathHealth, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.BlockchainConnected)
	assert.Equal(t, ledger.ContractAddress().String(), resp.ContractAddress)

	ledger.SetConnected(false)
	w = ts.do(t, httptest.NewRequest(http.MethodGet, api.PathHealth, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.BlockchainConnected)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, registry.NewMockLedgerClient(), 0)
	ts.login(t)

	w := ts.postJSON(t, api.PathLogin, "", api.LoginRequest{Username: "admin", Password: "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, interfaces.KindInvalidCredentials, decodeError(t, w).Kind)

	req := httptest.NewRequest(http.MethodPost, api.PathLogin, strings.NewReader("{not json"))
	w = ts.do(t, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, interfaces.KindValidation, decodeError(t, w).Kind)
}

func TestCertificateLifecycle(t *testing.T) {
	ts := newTestServer(t, registry.NewMockLedgerClient(), 0)
	require.NoError(t, ts.index.Rebuild(context.Background()))
	token := ts.login(t)

	// Snake_case aliases are accepted alongside the camelCase names.
	w := ts.postForm(t, api.PathIssueCertificate, token, map[string]string{
		"certificate_id": "CERT-001",
		"student_name":   "Alice",
		"course_name":    "Systems 101",
		"issue_date":     "2024-01-01",
	}, "certificate_file", []byte("hello"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var issued api.IssueResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&issued))
	assert.True(t, issued.Success)
	assert.Equal(t, "CERT-001", issued.CertificateID)
	assert.Equal(t, helloDigest, issued.Digest)
	assert.NotEmpty(t, issued.ContentAddress)
	assert.NotEmpty(t, issued.TransactionHash)

	w = ts.postJSON(t, api.PathVerifyByID, "", map[string]string{"certificateId": "CERT-001"})
	require.Equal(t, http.StatusOK, w.Code)
	var byID api.VerifyByIDResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&byID))
	assert.True(t, byID.Verified)
	assert.Equal(t, "Alice", byID.StudentName)
	assert.Equal(t, "Systems 101", byID.CourseName)
	assert.Equal(t, "2024-01-01", byID.IssueDate)
	assert.NotEmpty(t, byID.Issuer)

	w = ts.postForm(t, api.PathVerifyCertificate, "", map[string]string{api.FieldCertificateID: "CERT-001"}, api.FieldArtifactFile, []byte("hello"))
	require.Equal(t, http.StatusOK, w.Code)
	var byUpload api.VerifyUploadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&byUpload))
	assert.True(t, byUpload.Verified)
	assert.Equal(t, helloDigest, byUpload.Digest)

	// Without an id the digest index finds the certificate.
	w = ts.postForm(t, api.PathVerifyCertificate, "", nil, api.FieldArtifactFile, []byte("hello"))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&byUpload))
	assert.True(t, byUpload.Verified)
	assert.Equal(t, "CERT-001", byUpload.CertificateID)

	w = ts.do(t, authorized(httptest.NewRequest(http.MethodGet, api.PathListCertificates, nil), token))
	require.Equal(t, http.StatusOK, w.Code)
	var list api.CertificatesResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list.Certificates, 1)
	assert.True(t, list.Certificates[0].IsValid)

	w = ts.postJSON(t, api.PathRevokeCertificate, token, map[string]string{"certificate_id": "CERT-001"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var revoked api.RevokeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&revoked))
	assert.True(t, revoked.Success)
	assert.False(t, revoked.NoOp)

	w = ts.postJSON(t, api.PathRevokeCertificate, token, map[string]string{"certificateId": "CERT-001"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&revoked))
	assert.True(t, revoked.NoOp)

	w = ts.postJSON(t, api.PathVerifyByID, "", map[string]string{"certificateId": "CERT-001"})
	require.Equal(t, http.StatusOK, w.Code)
	byID = api.VerifyByIDResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&byID))
	assert.False(t, byID.Verified)
}

func authorized(req *http.Request, token string) *http.Request {
	req.Header.Set(api.AuthorizationHeader, "bearer "+token)
	return req
}

func TestIssueErrors(t *testing.T) {
	ts := newTestServer(t, registry.NewMockLedgerClient(), 64)
	token := ts.login(t)

	tests := []struct {
		name   string
		token  string
		fields map[string]string
		file   []byte
		status int
		kind   string
	}{
		{"missing token", "", exampleForm(), []byte("hello"), http.StatusUnauthorized, interfaces.KindAuth},
		{"bad token", "garbage", exampleForm(), []byte("hello"), http.StatusUnauthorized, interfaces.KindInvalidToken},
		{"missing field", token, map[string]string{api.FieldCertificateID: "CERT-002"}, []byte("hello"), http.StatusBadRequest, interfaces.KindValidation},
		{"missing file", token, exampleForm(), nil, http.StatusBadRequest, interfaces.KindValidation},
		{"oversize file", token, exampleForm(), bytes.Repeat([]byte("x"), 65), http.StatusBadRequest, interfaces.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fileField := ""
			if tt.file != nil {
				fileField = api.FieldArtifactFile
			}
			w := ts.postForm(t, api.PathIssueCertificate, tt.token, tt.fields, fileField, tt.file)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decodeError(t, w)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
			assert.Nil(t, resp.Recorded)
		})
	}

	req := httptest.NewRequest(http.MethodPost, api.PathIssueCertificate, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(t, authorized(req, token))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueDuplicate(t *testing.T) {
	ts := newTestServer(t, registry.NewMockLedgerClient(), 0)
	token := ts.login(t)

	w := ts.postForm(t, api.PathIssueCertificate, token, exampleForm(), api.FieldArtifactFile, []byte("hello"))
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.postForm(t, api.PathIssueCertificate, token, exampleForm(), api.FieldArtifactFile, []byte("hello again"))
	require.Equal(t, http.StatusConflict, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, interfaces.KindDuplicate, resp.Kind)
	require.NotNil(t, resp.Recorded)
	assert.False(t, *resp.Recorded)
	assert.NotEmpty(t, resp.ContentAddress)
}

func TestIssueLedgerTimeout(t *testing.T) {
	ledger := &registry.MockLedger{}
	ledger.On("RecordIssuance", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: transaction 0x01 not mined", interfaces.ErrLedgerTimeout))
	ts := newTestServer(t, ledger, 0)
	token := ts.login(t)

	w := ts.postForm(t, api.PathIssueCertificate, token, exampleForm(), api.FieldArtifactFile, []byte("hello"))
	require.Equal(t, http.StatusGatewayTimeout, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, interfaces.KindLedgerTimeout, resp.Kind)
	require.NotNil(t, resp.Recorded)
	assert.False(t, *resp.Recorded)
	assert.Equal(t, helloDigest, resp.Digest)
	ledger.AssertExpectations(t)
}

func TestIssueLedgerFailureHidesCause(t *testing.T) {
	ledger := &registry.MockLedger{}
	ledger.On("RecordIssuance", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: issueCertificate: Post \"http://10.0.0.5:8545\": dial tcp 10.0.0.5:8545: connection refused", interfaces.ErrLedger))
	ts := newTestServer(t, ledger, 0)
	token := ts.login(t)

	w := ts.postForm(t, api.PathIssueCertificate, token, exampleForm(), api.FieldArtifactFile, []byte("hello"))
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")

	resp := decodeError(t, w)
	assert.Equal(t, interfaces.KindLedger, resp.Kind)
	assert.Equal(t, "Certificate CERT-001 not recorded: ledger request failed", resp.Error)
	require.NotNil(t, resp.Recorded)
	assert.False(t, *resp.Recorded)
	assert.NotEmpty(t, resp.ContentAddress)
	ledger.AssertExpectations(t)
}

func TestIssueChecksTokenBeforeReadingBody(t *testing.T) {
	ts := newTestServer(t, registry.NewMockLedgerClient(), 0)

	for _, token := range []string{"", "garbage"} {
		req := httptest.NewRequest(http.MethodPost, api.PathIssueCertificate, strings.NewReader("--broken\r\nnot a form"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=other")
		if token != "" {
			req.Header.Set(api.AuthorizationHeader, api.BearerPrefix+token)
		}
		w := ts.do(t, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
		assert.NotEqual(t, interfaces.KindValidation, decodeError(t, w).Kind)
	}
}

func TestVerifyErrors(t *testing.T) {
	ts := newTestServer(t, registry.NewMockLedgerClient(), 0)

	w := ts.postJSON(t, api.PathVerifyByID, "", map[string]string{"certificateId": "CERT-404"})
	require.Equal(t, http.StatusOK, w.Code)
	var byID api.VerifyByIDResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&byID))
	assert.False(t, byID.Verified)
	assert.Equal(t, "Certificate not found", byID.Message)

	w = ts.postJSON(t, api.PathVerifyByID, "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, interfaces.KindValidation, decodeError(t, w).Kind)

	w = ts.postForm(t, api.PathVerifyCertificate, "", nil, "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Index not rebuilt yet: the digest is still reported.
	w = ts.postForm(t, api.PathVerifyCertificate, "", nil, api.FieldArtifactFile, []byte("hello"))
	require.Equal(t, http.StatusOK, w.Code)
	var byUpload api.VerifyUploadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&byUpload))
	assert.False(t, byUpload.Verified)
	assert.Equal(t, helloDigest, byUpload.Digest)
	assert.NotEmpty(t, byUpload.Message)
}

func TestRevokeUnknown(t *testing.T) {
	ts := newTestServer(t, registry.NewMockLedgerClient(), 0)
	token := ts.login(t)

	w := ts.postJSON(t, api.PathRevokeCertificate, token, map[string]string{"certificateId": "CERT-404"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, interfaces.KindNotFound, decodeError(t, w).Kind)

	w = ts.postJSON(t, api.PathRevokeCertificate, "", map[string]string{"certificateId": "CERT-404"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListBeforeIndexReady(t *testing.T) {
	ts := newTestServer(t, registry.NewMockLedgerClient(), 0)
	token := ts.login(t)

	w := ts.do(t, authorized(httptest.NewRequest(http.MethodGet, api.PathListCertificates, nil), token))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, interfaces.KindIndexNotReady, decodeError(t, w).Kind)

	require.NoError(t, ts.index.Rebuild(context.Background()))
	w = ts.do(t, authorized(httptest.NewRequest(http.MethodGet, api.PathListCertificates, nil), token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"certificates":[]}`, w.Body.String())
}

func TestDrainUndrain(t *testing.T) {
	ts := newTestServer(t, registry.NewMockLedgerClient(), 0)

	get := func(path string) (int, string) {
		w := ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code, strings.TrimSpace(w.Body.String())
	}

	code, body := get("/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, `{"status":"alive"}`, body)

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, code)

	_, body = get("/drain")
	assert.Equal(t, `{"status":"draining"}`, body)
	_, body = get("/drain")
	assert.Equal(t, `{"status":"already draining"}`, body)

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	_, body = get("/undrain")
	assert.Equal(t, `{"status":"ready"}`, body)
	code, _ = get("/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		kind    string
		message string
	}{
		{fmt.Errorf("%w: missing required fields: studentName", interfaces.ErrValidation), http.StatusBadRequest, interfaces.KindValidation, "Invalid request: missing required fields: studentName"},
		{&certificates.StepError{Step: certificates.StepValidate, Err: interfaces.ErrValidation}, http.StatusBadRequest, interfaces.KindValidation, "Invalid request"},
		{interfaces.ErrExpiredToken, http.StatusUnauthorized, interfaces.KindExpiredToken, "Token expired"},
		{fmt.Errorf("%w: pinata returned 403: key 0xabc disabled", interfaces.ErrPinningRejected), http.StatusBadGateway, interfaces.KindStorage, "Pinning service rejected the artifact"},
		{fmt.Errorf("%w: dial tcp 10.0.0.2:5001", interfaces.ErrBackendUnavailable), http.StatusBadGateway, interfaces.KindStorage, "Pinning service unavailable"},
		{interfaces.ErrNoTransactOpts, http.StatusBadGateway, interfaces.KindLedger, "Ledger request failed"},
		{&certificates.StepError{Step: certificates.StepLedger, Err: interfaces.ErrLedgerTimeout}, http.StatusGatewayTimeout, interfaces.KindLedgerTimeout, "Ledger confirmation timed out"},
		{fmt.Errorf("%w: write /var/tmp/upload-1: no space left on device", interfaces.ErrSourceRead), http.StatusInternalServerError, interfaces.KindInternal, "Internal server error"},
		{errors.New("dial tcp 10.0.0.1:8545: secret detail"), http.StatusInternalServerError, interfaces.KindInternal, "Internal server error"},
	}
	for _, tt := range tests {
		status, resp := errorResponse(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.kind, resp.Kind, tt.err.Error())
		assert.Equal(t, tt.message, resp.Error, tt.err.Error())
	}

	_, resp := errorResponse(&certificates.IssueError{
		CertificateID:  "CERT-001",
		ContentAddress: "file:///srv/pins/2cf24dba",
		Err:            &certificates.StepError{Step: certificates.StepLedger, Err: interfaces.ErrDuplicateCertificate},
	})
	assert.Equal(t, "Certificate CERT-001 not recorded: certificate already exists", resp.Error)
}
