/*
Package httpserver serves the certificate API over HTTP.

Handler translates requests into calls on certificates.Service and maps
service errors onto status codes and api.ErrorResponse payloads:

	validation_error                         400
	auth_error, invalid_token, expired_token 401
	invalid_credentials                      401
	not_found                                404
	duplicate_certificate                    409
	storage_error, ledger_error              502
	index_not_ready                          503
	ledger_timeout                           504
	internal_error                           500 (message withheld)

Server adds request logging, the /livez, /readyz, /drain and /undrain probes,
an optional pprof mount under /debug and a separate Prometheus listener.

	handler := httpserver.NewHandler(svc, logger)
	srv := httpserver.New(&api.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":8090",
		Log:                      logger,
		GracefulShutdownDuration: 30 * time.Second,
	}, handler)
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
