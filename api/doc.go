/*
Package api holds the wire types shared by the certificate HTTP server and its clients.

# Endpoints

  - GET  /api/health                      service status and ledger connectivity
  - POST /api/admin/login                 exchange credentials for a bearer token
  - POST /api/admin/issue-certificate     multipart upload, hash, pin and record (bearer)
  - POST /api/admin/revoke-certificate    revoke by id (bearer)
  - GET  /api/admin/certificates          list indexed certificates (bearer)
  - POST /api/verify-certificate          multipart upload, compare digest with the ledger
  - POST /api/verify-by-id                look a certificate up by id

Every failure is answered with an ErrorResponse carrying a stable error kind.
The clients subpackage wraps these endpoints for Go callers.
*/
package api
