package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/certificate-ledger/bindings/certificates"
	"github.com/ruteri/certificate-ledger/interfaces"
)

const (
	// DefaultConfirmTimeout bounds the wait for a transaction receipt.
	DefaultConfirmTimeout = 2 * time.Minute

	// DefaultPollInterval is the delay between receipt queries.
	DefaultPollInterval = time.Second

	// maxLogRange is the widest block range requested in a single eth_getLogs call.
	maxLogRange = 10_000
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = interfaces.ErrNoTransactOpts

// errReverted is returned when a transaction was mined but failed.
var errReverted = fmt.Errorf("%w: transaction reverted", interfaces.ErrLedger)

// certificateContract is the part of the contract binding used by the client.
type certificateContract interface {
	IssueCertificate(opts *bind.TransactOpts, certificateId, studentName, courseName, issueDate, certificateHash string) (*types.Transaction, error)
	RevokeCertificate(opts *bind.TransactOpts, certificateId string) (*types.Transaction, error)
	VerifyCertificate(opts *bind.CallOpts, certificateId string) (certificates.Record, error)
	GetCertificateHash(opts *bind.CallOpts, certificateId string) (string, error)
	ParseCertificateIssued(log types.Log) (*certificates.CertificateIssued, error)
	ParseCertificateRevoked(log types.Log) (*certificates.CertificateRevoked, error)
	EventTopics() (issued common.Hash, revoked common.Hash)
	Address() common.Address
}

// ChainBackend is the subset of an Ethereum RPC client needed besides the contract binding.
// *ethclient.Client implements it.
type ChainBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ContractBackend combines what the binding and the client need from an RPC connection.
type ContractBackend interface {
	bind.ContractBackend
	ChainBackend
}

// OnchainLedgerClient implements the interfaces.Ledger interface for
// interacting with a CertificateVerification contract deployed on a blockchain.
type OnchainLedgerClient struct {
	contract certificateContract
	backend  ChainBackend
	auth     *bind.TransactOpts
	log      *slog.Logger

	confirmTimeout time.Duration
	pollInterval   time.Duration

	// writeMu serializes submission from the signing account and guards nonce.
	writeMu sync.Mutex
	nonce   *uint64
}

var _ interfaces.Ledger = (*OnchainLedgerClient)(nil)

// NewOnchainLedgerClient creates a new client for the contract at the specified address.
func NewOnchainLedgerClient(client ContractBackend, address common.Address, log *slog.Logger) (*OnchainLedgerClient, error) {
	contract, err := certificates.NewCertificateVerification(address, client)
	if err != nil {
		return nil, err
	}

	return newLedgerClient(contract, client, log), nil
}

func newLedgerClient(contract certificateContract, backend ChainBackend, log *slog.Logger) *OnchainLedgerClient {
	if log == nil {
		log = slog.Default()
	}
	return &OnchainLedgerClient{
		contract:       contract,
		backend:        backend,
		log:            log,
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
	}
}

// SetTransactOpts sets the transaction options required for functions that modify state.
// This must be called before using any methods that send transactions to the blockchain.
func (c *OnchainLedgerClient) SetTransactOpts(auth *bind.TransactOpts) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.auth = auth
	c.nonce = nil
}

// SetConfirmTimeout sets how long a write waits for its receipt.
func (c *OnchainLedgerClient) SetConfirmTimeout(timeout time.Duration) {
	c.confirmTimeout = timeout
}

// SetPollInterval sets the delay between receipt queries.
func (c *OnchainLedgerClient) SetPollInterval(interval time.Duration) {
	c.pollInterval = interval
}

// ContractAddress returns the address of the certificate contract.
func (c *OnchainLedgerClient) ContractAddress() interfaces.Address {
	return interfaces.Address(c.contract.Address())
}

// Connected reports whether the RPC endpoint answers.
func (c *OnchainLedgerClient) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.backend.BlockNumber(ctx); err != nil {
		c.log.Debug("Ledger unavailable", "err", err)
		return false
	}
	return true
}

// RecordIssuance submits issueCertificate and blocks until the transaction is confirmed.
func (c *OnchainLedgerClient) RecordIssuance(ctx context.Context, fields interfaces.CertificateFields, digest interfaces.Digest) (*interfaces.TransactionReceipt, error) {
	receipt, err := c.write(ctx, "issueCertificate", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.IssueCertificate(opts, fields.CertificateID, fields.StudentName, fields.CourseName, fields.IssueDate, digest.String())
	})
	if errors.Is(err, errReverted) {
		// A same-id issuance can pass gas estimation while an earlier one is
		// still pending and then revert when mined.
		if _, lookupErr := c.Lookup(ctx, fields.CertificateID); lookupErr == nil {
			return nil, fmt.Errorf("%w: %s: %v", interfaces.ErrDuplicateCertificate, fields.CertificateID, err)
		}
	}
	if err != nil {
		return nil, err
	}

	c.log.Info("Certificate issued on ledger",
		slog.String("certificateId", fields.CertificateID),
		slog.String("txHash", receipt.TransactionHash),
		slog.Uint64("block", receipt.BlockNumber))
	return receipt, nil
}

// Lookup reads a certificate from ledger state without a transaction.
func (c *OnchainLedgerClient) Lookup(ctx context.Context, certificateID string) (*interfaces.Certificate, error) {
	opts := &bind.CallOpts{Context: ctx}

	record, err := c.contract.VerifyCertificate(opts, certificateID)
	if err != nil {
		return nil, classifyLedgerError("verifyCertificate", err)
	}

	// An unknown id may also come back as a zero record instead of a revert.
	if record.Issuer == (common.Address{}) && record.IssueDate == "" && record.StudentName == "" {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, certificateID)
	}

	// getCertificateHash is missing from older deployments; the record is
	// still returned, with a zero digest.
	var digest interfaces.Digest
	if digestHex, err := c.contract.GetCertificateHash(opts, certificateID); err != nil {
		c.log.Debug("Recorded digest unavailable", slog.String("certificateId", certificateID), "err", err)
	} else if digest, err = interfaces.NewDigestFromHex(digestHex); err != nil {
		return nil, fmt.Errorf("%w: malformed digest recorded for %s: %v", interfaces.ErrLedger, certificateID, err)
	}

	return &interfaces.Certificate{
		CertificateFields: interfaces.CertificateFields{
			CertificateID: certificateID,
			StudentName:   record.StudentName,
			CourseName:    record.CourseName,
			IssueDate:     record.IssueDate,
		},
		Digest:  digest,
		Issuer:  interfaces.Address(record.Issuer),
		IsValid: record.IsValid,
	}, nil
}

// RecordRevocation submits revokeCertificate and blocks until the transaction is confirmed.
// Revoking an already revoked certificate still records a transaction but leaves state unchanged.
func (c *OnchainLedgerClient) RecordRevocation(ctx context.Context, certificateID string) (*interfaces.TransactionReceipt, error) {
	current, err := c.Lookup(ctx, certificateID)
	if err != nil {
		return nil, err
	}

	receipt, err := c.write(ctx, "revokeCertificate", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.contract.RevokeCertificate(opts, certificateID)
	})
	if errors.Is(err, errReverted) {
		// Another revocation may have been mined first.
		switch latest, lookupErr := c.Lookup(ctx, certificateID); {
		case errors.Is(lookupErr, interfaces.ErrNotFound):
			return nil, fmt.Errorf("%w: %s: %v", interfaces.ErrNotFound, certificateID, err)
		case lookupErr == nil && !latest.IsValid:
			c.log.Info("Certificate already revoked", slog.String("certificateId", certificateID))
			return &interfaces.TransactionReceipt{NoOp: true}, nil
		}
	}
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already revoked") {
			c.log.Info("Certificate already revoked", slog.String("certificateId", certificateID))
			return &interfaces.TransactionReceipt{NoOp: true}, nil
		}
		return nil, err
	}
	receipt.NoOp = !current.IsValid

	c.log.Info("Certificate revoked on ledger",
		slog.String("certificateId", certificateID),
		slog.String("txHash", receipt.TransactionHash),
		slog.Bool("noOp", receipt.NoOp))
	return receipt, nil
}

// write submits a transaction with the next nonce of the signing account and waits
// for its receipt. Submission is serialized; waiting is not.
func (c *OnchainLedgerClient) write(ctx context.Context, method string, send func(*bind.TransactOpts) (*types.Transaction, error)) (*interfaces.TransactionReceipt, error) {
	// Once signed, a write is not abandoned because the caller went away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.confirmTimeout)
	defer cancel()

	tx, err := c.submit(ctx, send)
	if err != nil {
		return nil, classifyLedgerError(method, err)
	}

	c.log.Debug("Transaction submitted",
		slog.String("method", method),
		slog.String("txHash", tx.Hash().Hex()),
		slog.Uint64("nonce", tx.Nonce()))

	receipt, err := c.waitMined(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s transaction %s", errReverted, method, tx.Hash().Hex())
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}

	return &interfaces.TransactionReceipt{
		TransactionHash: receipt.TxHash.Hex(),
		BlockNumber:     block,
		GasUsed:         receipt.GasUsed,
	}, nil
}

func (c *OnchainLedgerClient) submit(ctx context.Context, send func(*bind.TransactOpts) (*types.Transaction, error)) (*types.Transaction, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.auth == nil {
		return nil, ErrNoTransactOpts
	}

	if c.nonce == nil {
		pending, err := c.backend.PendingNonceAt(ctx, c.auth.From)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch account nonce: %w", err)
		}
		c.nonce = &pending
	}

	opts := *c.auth
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(*c.nonce)

	tx, err := send(&opts)
	if err != nil {
		// The node decides what the next nonce is after a failed send.
		c.nonce = nil
		return nil, err
	}

	next := *c.nonce + 1
	c.nonce = &next
	return tx, nil
}

// waitMined waits for tx to be mined on the blockchain, like bind.WaitMined,
// but reports running out of time as interfaces.ErrLedgerTimeout.
func (c *OnchainLedgerClient) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: transaction %s", interfaces.ErrLedgerTimeout, txHash.Hex())
		case <-timer.C:
		}

		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}

		if errors.Is(err, ethereum.NotFound) {
			c.log.Debug("Transaction not yet mined", slog.String("txHash", txHash.Hex()))
		} else if ctx.Err() == nil {
			c.log.Warn("Receipt retrieval failed", slog.String("txHash", txHash.Hex()), "err", err)
		}
		timer.Reset(c.pollInterval)
	}
}

// History returns issuance and revocation events from fromBlock to the current head.
func (c *OnchainLedgerClient) History(ctx context.Context, fromBlock uint64) ([]interfaces.LedgerEvent, uint64, error) {
	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return nil, 0, classifyLedgerError("blockNumber", err)
	}
	if fromBlock > head {
		return nil, head, nil
	}

	issuedTopic, revokedTopic := c.contract.EventTopics()
	var events []interfaces.LedgerEvent

	for start := fromBlock; start <= head; start += maxLogRange {
		end := min(start+maxLogRange-1, head)

		logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{c.contract.Address()},
			Topics:    [][]common.Hash{{issuedTopic, revokedTopic}},
		})
		if err != nil {
			return nil, 0, classifyLedgerError("filterLogs", err)
		}

		for _, l := range logs {
			if l.Removed || len(l.Topics) == 0 {
				continue
			}
			event, err := c.decodeEvent(l, issuedTopic, revokedTopic)
			if err != nil {
				c.log.Warn("Skipping undecodable ledger event",
					slog.String("txHash", l.TxHash.Hex()),
					slog.Uint64("block", l.BlockNumber),
					"err", err)
				continue
			}
			events = append(events, event)
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	return events, head, nil
}

func (c *OnchainLedgerClient) decodeEvent(l types.Log, issuedTopic, revokedTopic common.Hash) (interfaces.LedgerEvent, error) {
	event := interfaces.LedgerEvent{
		BlockNumber:     l.BlockNumber,
		LogIndex:        l.Index,
		TransactionHash: l.TxHash.Hex(),
	}

	switch l.Topics[0] {
	case issuedTopic:
		issued, err := c.contract.ParseCertificateIssued(l)
		if err != nil {
			return event, err
		}
		digest, err := interfaces.NewDigestFromHex(issued.CertificateHash)
		if err != nil {
			return event, err
		}
		event.Kind = interfaces.EventIssued
		event.Certificate = interfaces.Certificate{
			CertificateFields: interfaces.CertificateFields{
				CertificateID: issued.CertificateId,
				StudentName:   issued.StudentName,
				CourseName:    issued.CourseName,
				IssueDate:     issued.IssueDate,
			},
			Digest:  digest,
			Issuer:  interfaces.Address(issued.Issuer),
			IsValid: true,
		}
	case revokedTopic:
		revoked, err := c.contract.ParseCertificateRevoked(l)
		if err != nil {
			return event, err
		}
		event.Kind = interfaces.EventRevoked
		event.Certificate = interfaces.Certificate{
			CertificateFields: interfaces.CertificateFields{CertificateID: revoked.CertificateId},
			Issuer:            interfaces.Address(revoked.Revoker),
		}
	default:
		return event, fmt.Errorf("unexpected topic %s", l.Topics[0].Hex())
	}
	return event, nil
}

// classifyLedgerError maps contract reverts and RPC failures onto the error taxonomy.
func classifyLedgerError(method string, err error) error {
	if errors.Is(err, interfaces.ErrLedger) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already exists"):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrDuplicateCertificate, method, err)
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found") && strings.Contains(msg, "certificate"):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrNotFound, method, err)
	case strings.Contains(msg, "already revoked"):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrLedger, method, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", interfaces.ErrLedgerTimeout, method, err)
	default:
		return fmt.Errorf("%w: %s: %v", interfaces.ErrLedger, method, err)
	}
}
