package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ruteri/certificate-ledger/api"
	"github.com/ruteri/certificate-ledger/certificates"
	"github.com/ruteri/certificate-ledger/interfaces"
)

var statusByKind = map[string]int{
	interfaces.KindValidation:         http.StatusBadRequest,
	interfaces.KindAuth:               http.StatusUnauthorized,
	interfaces.KindInvalidToken:       http.StatusUnauthorized,
	interfaces.KindExpiredToken:       http.StatusUnauthorized,
	interfaces.KindInvalidCredentials: http.StatusUnauthorized,
	interfaces.KindNotFound:           http.StatusNotFound,
	interfaces.KindDuplicate:          http.StatusConflict,
	interfaces.KindStorage:            http.StatusBadGateway,
	interfaces.KindLedger:             http.StatusBadGateway,
	interfaces.KindLedgerTimeout:      http.StatusGatewayTimeout,
	interfaces.KindIndexNotReady:      http.StatusServiceUnavailable,
	interfaces.KindInternal:           http.StatusInternalServerError,
}

// messageByKind is the client-facing text for each error kind. Underlying
// causes only go to the log.
var messageByKind = map[string]string{
	interfaces.KindValidation:         "Invalid request",
	interfaces.KindAuth:               "Authorization required",
	interfaces.KindInvalidToken:       "Invalid token",
	interfaces.KindExpiredToken:       "Token expired",
	interfaces.KindInvalidCredentials: "Invalid credentials",
	interfaces.KindNotFound:           "Certificate not found",
	interfaces.KindDuplicate:          "Certificate already exists",
	interfaces.KindStorage:            "Pinning service unavailable",
	interfaces.KindLedger:             "Ledger request failed",
	interfaces.KindLedgerTimeout:      "Ledger confirmation timed out",
	interfaces.KindIndexNotReady:      "Certificate index not ready",
	interfaces.KindInternal:           "Internal server error",
}

// StatusFor returns the HTTP status and error kind for err.
func StatusFor(err error) (int, string) {
	kind := interfaces.ErrorKind(err)
	status, ok := statusByKind[kind]
	if !ok {
		return http.StatusInternalServerError, interfaces.KindInternal
	}
	return status, kind
}

// errorResponse maps err to the payload sent to the client. The message is
// fixed per kind; only validation detail and certificate ids are echoed.
func errorResponse(err error) (int, api.ErrorResponse) {
	status, kind := StatusFor(err)

	resp := api.ErrorResponse{Error: clientMessage(err, kind), Kind: kind}

	var issueErr *certificates.IssueError
	if errors.As(err, &issueErr) {
		recorded := issueErr.Recorded()
		resp.Recorded = &recorded
		resp.ContentAddress = issueErr.ContentAddress.String()
		resp.Digest = issueErr.Digest.String()
		resp.Error = fmt.Sprintf("Certificate %s not recorded: %s", issueErr.CertificateID, strings.ToLower(resp.Error[:1])+resp.Error[1:])
	}
	return status, resp
}

func clientMessage(err error, kind string) string {
	switch kind {
	case interfaces.KindValidation:
		// Validation messages describe the request itself; drop the step prefix.
		msg := err.Error()
		if i := strings.Index(msg, interfaces.ErrValidation.Error()); i >= 0 && errors.Is(err, interfaces.ErrValidation) {
			if detail := strings.TrimPrefix(msg[i+len(interfaces.ErrValidation.Error()):], ": "); detail != "" {
				return "Invalid request: " + detail
			}
		}
	case interfaces.KindStorage:
		if errors.Is(err, interfaces.ErrPinningRejected) {
			return "Pinning service rejected the artifact"
		}
	}
	if msg, ok := messageByKind[kind]; ok {
		return msg
	}
	return messageByKind[interfaces.KindInternal]
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err, "path", r.URL.Path, "kind", resp.Kind)
	} else {
		h.log.Debug("Request rejected", "err", err, "path", r.URL.Path, "kind", resp.Kind)
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
