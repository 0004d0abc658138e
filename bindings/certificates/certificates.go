// Package certificates is a Go binding for the CertificateVerification contract.
//
// The binding mirrors what abigen generates for the contract: typed call and
// transact wrappers over bind.BoundContract plus event decoding helpers used
// to replay the contract history.
package certificates

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CertificateVerificationABI is the input ABI used to generate the binding from.
const CertificateVerificationABI = `[
	{"type":"function","name":"issueCertificate","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"certificateId","type":"string"},
		{"name":"studentName","type":"string"},
		{"name":"courseName","type":"string"},
		{"name":"issueDate","type":"string"},
		{"name":"certificateHash","type":"string"}],
	 "outputs":[]},
	{"type":"function","name":"verifyCertificate","stateMutability":"view",
	 "inputs":[{"name":"certificateId","type":"string"}],
	 "outputs":[
		{"name":"studentName","type":"string"},
		{"name":"courseName","type":"string"},
		{"name":"issueDate","type":"string"},
		{"name":"isValid","type":"bool"},
		{"name":"issuer","type":"address"}]},
	{"type":"function","name":"getCertificateHash","stateMutability":"view",
	 "inputs":[{"name":"certificateId","type":"string"}],
	 "outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"revokeCertificate","stateMutability":"nonpayable",
	 "inputs":[{"name":"certificateId","type":"string"}],
	 "outputs":[]},
	{"type":"event","name":"CertificateIssued","anonymous":false,
	 "inputs":[
		{"name":"certificateId","type":"string","indexed":false},
		{"name":"studentName","type":"string","indexed":false},
		{"name":"courseName","type":"string","indexed":false},
		{"name":"issueDate","type":"string","indexed":false},
		{"name":"certificateHash","type":"string","indexed":false},
		{"name":"issuer","type":"address","indexed":false}]},
	{"type":"event","name":"CertificateRevoked","anonymous":false,
	 "inputs":[
		{"name":"certificateId","type":"string","indexed":false},
		{"name":"revoker","type":"address","indexed":false}]}
]`

// Event names as declared in the ABI.
const (
	EventCertificateIssued  = "CertificateIssued"
	EventCertificateRevoked = "CertificateRevoked"
)

// Record is the return value of verifyCertificate.
type Record struct {
	StudentName string
	CourseName  string
	IssueDate   string
	IsValid     bool
	Issuer      common.Address
}

// CertificateIssued represents a CertificateIssued event raised by the contract.
type CertificateIssued struct {
	CertificateId   string
	StudentName     string
	CourseName      string
	IssueDate       string
	CertificateHash string
	Issuer          common.Address
	Raw             types.Log
}

// CertificateRevoked represents a CertificateRevoked event raised by the contract.
type CertificateRevoked struct {
	CertificateId string
	Revoker       common.Address
	Raw           types.Log
}

// CertificateVerification is a binding around the deployed contract.
type CertificateVerification struct {
	abi      abi.ABI
	address  common.Address
	contract *bind.BoundContract
}

// ParsedABI returns the parsed contract ABI.
func ParsedABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(CertificateVerificationABI))
}

// NewCertificateVerification creates a new instance bound to a deployed contract.
func NewCertificateVerification(address common.Address, backend bind.ContractBackend) (*CertificateVerification, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, err
	}
	contract := bind.NewBoundContract(address, parsed, backend, backend, backend)
	return &CertificateVerification{abi: parsed, address: address, contract: contract}, nil
}

// Address returns the contract address.
func (c *CertificateVerification) Address() common.Address {
	return c.address
}

// EventTopics returns the topic ids of the issuance and revocation events.
func (c *CertificateVerification) EventTopics() (issued common.Hash, revoked common.Hash) {
	return c.abi.Events[EventCertificateIssued].ID, c.abi.Events[EventCertificateRevoked].ID
}

// IssueCertificate is a paid mutator transaction binding the contract method issueCertificate.
func (c *CertificateVerification) IssueCertificate(opts *bind.TransactOpts, certificateId, studentName, courseName, issueDate, certificateHash string) (*types.Transaction, error) {
	return c.contract.Transact(opts, "issueCertificate", certificateId, studentName, courseName, issueDate, certificateHash)
}

// RevokeCertificate is a paid mutator transaction binding the contract method revokeCertificate.
func (c *CertificateVerification) RevokeCertificate(opts *bind.TransactOpts, certificateId string) (*types.Transaction, error) {
	return c.contract.Transact(opts, "revokeCertificate", certificateId)
}

// VerifyCertificate is a free data retrieval call binding the contract method verifyCertificate.
func (c *CertificateVerification) VerifyCertificate(opts *bind.CallOpts, certificateId string) (Record, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "verifyCertificate", certificateId)
	if err != nil {
		return Record{}, err
	}
	if len(out) != 5 {
		return Record{}, fmt.Errorf("unexpected verifyCertificate output length %d", len(out))
	}

	return Record{
		StudentName: *abi.ConvertType(out[0], new(string)).(*string),
		CourseName:  *abi.ConvertType(out[1], new(string)).(*string),
		IssueDate:   *abi.ConvertType(out[2], new(string)).(*string),
		IsValid:     *abi.ConvertType(out[3], new(bool)).(*bool),
		Issuer:      *abi.ConvertType(out[4], new(common.Address)).(*common.Address),
	}, nil
}

// GetCertificateHash is a free data retrieval call binding the contract method getCertificateHash.
func (c *CertificateVerification) GetCertificateHash(opts *bind.CallOpts, certificateId string) (string, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "getCertificateHash", certificateId)
	if err != nil {
		return "", err
	}
	if len(out) != 1 {
		return "", fmt.Errorf("unexpected getCertificateHash output length %d", len(out))
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// ParseCertificateIssued is a log parse operation binding the contract event CertificateIssued.
func (c *CertificateVerification) ParseCertificateIssued(log types.Log) (*CertificateIssued, error) {
	event := new(CertificateIssued)
	if err := c.contract.UnpackLog(event, EventCertificateIssued, log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParseCertificateRevoked is a log parse operation binding the contract event CertificateRevoked.
func (c *CertificateVerification) ParseCertificateRevoked(log types.Log) (*CertificateRevoked, error) {
	event := new(CertificateRevoked)
	if err := c.contract.UnpackLog(event, EventCertificateRevoked, log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}
