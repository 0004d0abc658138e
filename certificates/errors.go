package certificates

import (
	"fmt"

	"github.com/ruteri/certificate-ledger/interfaces"
)

// Step names the stage of a workflow that failed.
type Step string

const (
	StepAuth     Step = "auth"
	StepValidate Step = "validate"
	StepHash     Step = "hash"
	StepPin      Step = "pin"
	StepLedger   Step = "ledger"
	StepLookup   Step = "lookup"
	StepIndex    Step = "index"
)

// StepError attaches the failing step to a component error.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IssueError is returned when the artifact was pinned but the certificate was
// not recorded on the ledger. The pin is not undone; the certificate does not exist.
type IssueError struct {
	CertificateID  string
	Digest         interfaces.Digest
	ContentAddress interfaces.ContentAddress
	Err            error
}

func (e *IssueError) Error() string {
	return fmt.Sprintf("certificate %s not recorded (artifact pinned at %s): %v", e.CertificateID, e.ContentAddress, e.Err)
}

func (e *IssueError) Unwrap() error {
	return e.Err
}

// Recorded is always false: an IssueError means the ledger holds no record.
func (e *IssueError) Recorded() bool {
	return false
}

func stepError(step Step, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Err: err}
}
