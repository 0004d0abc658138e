// Command certctl talks to a running certificate server.
//
//	certctl login --username admin --password ...      # prints a token
//	certctl --token $TOKEN issue --id CERT-001 --student Alice --course "Systems 101" --date 2024-01-01 diploma.pdf
//	certctl verify diploma.pdf
//	certctl verify-id CERT-001
//	certctl --token $TOKEN revoke CERT-001
//	certctl --token $TOKEN list
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ruteri/certificate-ledger/api/clients"
	"github.com/ruteri/certificate-ledger/cmd/flags"
	"github.com/ruteri/certificate-ledger/common"
	"github.com/ruteri/certificate-ledger/interfaces"
	"github.com/urfave/cli/v2"
)

var flagToken = &cli.StringFlag{
	Name:    "token",
	Usage:   "bearer token for administrator commands",
	EnvVars: []string{"CERTCTL_TOKEN"},
}

var flagUsername = &cli.StringFlag{
	Name:    "username",
	Value:   "admin",
	Usage:   "administrator user name",
	EnvVars: []string{"CERTCTL_USERNAME"},
}

var flagPassword = &cli.StringFlag{
	Name:     "password",
	Required: true,
	Usage:    "administrator password",
	EnvVars:  []string{"CERTCTL_PASSWORD"},
}

var flagCertificateID = &cli.StringFlag{
	Name:  "id",
	Usage: "certificate id",
}

func main() {
	app := &cli.App{
		Name:    "certctl",
		Usage:   "Issue, verify and revoke ledger-anchored certificates",
		Version: common.Version,
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
			flagToken,
		},
		Commands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Show service and ledger status",
				Action: withClient(health),
			},
			{
				Name:   "login",
				Usage:  "Obtain a bearer token",
				Flags:  []cli.Flag{flagUsername, flagPassword},
				Action: withClient(login),
			},
			{
				Name:      "issue",
				Usage:     "Issue a certificate for an artifact file",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true, Usage: "certificate id"},
					&cli.StringFlag{Name: "student", Required: true, Usage: "student name"},
					&cli.StringFlag{Name: "course", Required: true, Usage: "course name"},
					&cli.StringFlag{Name: "date", Required: true, Usage: "issue date"},
				},
				Action: withClient(issue),
			},
			{
				Name:      "verify",
				Usage:     "Verify an artifact file against the ledger",
				ArgsUsage: "<file>",
				Flags:     []cli.Flag{flagCertificateID},
				Action:    withClient(verify),
			},
			{
				Name:      "verify-id",
				Usage:     "Look a certificate up by id",
				ArgsUsage: "<certificate id>",
				Action:    withClient(verifyID),
			},
			{
				Name:      "revoke",
				Usage:     "Revoke a certificate",
				ArgsUsage: "<certificate id>",
				Action:    withClient(revoke),
			},
			{
				Name:   "list",
				Usage:  "List every issued certificate",
				Action: withClient(list),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withClient(action func(*cli.Context, *clients.Client) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		c := clients.NewClient(cCtx.String(flags.ServerAddrFlag.Name))
		c.SetToken(cCtx.String(flagToken.Name))
		return action(cCtx, c)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstArg(cCtx *cli.Context, what string) (string, error) {
	if cCtx.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one argument: %s", what)
	}
	return cCtx.Args().First(), nil
}

func health(cCtx *cli.Context, c *clients.Client) error {
	resp, err := c.Health(cCtx.Context)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func login(cCtx *cli.Context, c *clients.Client) error {
	resp, err := c.Login(cCtx.Context, cCtx.String(flagUsername.Name), cCtx.String(flagPassword.Name))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func issue(cCtx *cli.Context, c *clients.Client) error {
	path, err := firstArg(cCtx, "artifact file")
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	fields := interfaces.CertificateFields{
		CertificateID: cCtx.String("id"),
		StudentName:   cCtx.String("student"),
		CourseName:    cCtx.String("course"),
		IssueDate:     cCtx.String("date"),
	}
	resp, err := c.IssueCertificate(cCtx.Context, fields, filepath.Base(path), file)
	if err != nil {
		var apiErr *clients.APIError
		if errors.As(err, &apiErr) && apiErr.Recorded != nil && !*apiErr.Recorded {
			return fmt.Errorf("certificate NOT recorded (artifact pinned at %q): %w", apiErr.ContentAddress, err)
		}
		return err
	}
	return printJSON(resp)
}

func verify(cCtx *cli.Context, c *clients.Client) error {
	path, err := firstArg(cCtx, "artifact file")
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	resp, err := c.VerifyCertificate(cCtx.Context, filepath.Base(path), file, cCtx.String(flagCertificateID.Name))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func verifyID(cCtx *cli.Context, c *clients.Client) error {
	id, err := firstArg(cCtx, "certificate id")
	if err != nil {
		return err
	}
	resp, err := c.VerifyByID(cCtx.Context, id)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func revoke(cCtx *cli.Context, c *clients.Client) error {
	id, err := firstArg(cCtx, "certificate id")
	if err != nil {
		return err
	}
	resp, err := c.RevokeCertificate(cCtx.Context, id)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func list(cCtx *cli.Context, c *clients.Client) error {
	certs, err := c.ListCertificates(cCtx.Context)
	if err != nil {
		return err
	}
	return printJSON(certs)
}
