/*
Package clients provides a Go client for the certificate API.

	c := clients.NewClient("http://127.0.0.1:8080")
	if _, err := c.Login(ctx, "admin", password); err != nil {
		return err
	}
	issued, err := c.IssueCertificate(ctx, fields, "diploma.pdf", file)

Failed calls return an *APIError. It unwraps to the matching sentinel from the
interfaces package, so callers can test errors.Is(err, interfaces.ErrDuplicateCertificate).
*/
package clients
