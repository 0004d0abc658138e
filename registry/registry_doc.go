// Package registry provides the ledger client for the CertificateVerification
// contract deployed on an Ethereum-compatible chain.
//
// The package implements the interfaces.Ledger interface:
//
//   - RecordIssuance: signed issueCertificate transaction, blocks until confirmed
//   - Lookup: free verifyCertificate/getCertificateHash calls
//   - RecordRevocation: signed revokeCertificate transaction, blocks until confirmed
//   - History: replay of CertificateIssued/CertificateRevoked events
//
// # Transaction Operations
//
// All state-modifying operations are signed by one designated account. The
// chain orders that account's transactions strictly by nonce, so the client
// serializes submission behind a mutex and tracks the next nonce locally.
// Confirmation waits run concurrently once a transaction is sent.
//
// Before using methods that modify state, call SetTransactOpts with options
// carrying the signer. Read-only operations work immediately.
//
// A submitted write is never cancelled by the caller's context: it either
// confirms or runs into the confirmation timeout, in which case the caller gets
// interfaces.ErrLedgerTimeout and the transaction may still land later.
//
// # Usage Example
//
//	ethClient, err := ethclient.Dial(rpcAddr)
//	if err != nil {
//	    return err
//	}
//
//	ledger, err := registry.NewOnchainLedgerClient(ethClient, contractAddress, logger)
//	if err != nil {
//	    return err
//	}
//
//	auth, err := bind.NewKeyedTransactorWithChainID(issuerKey, chainID)
//	if err != nil {
//	    return err
//	}
//	ledger.SetTransactOpts(auth)
//
//	receipt, err := ledger.RecordIssuance(ctx, fields, digest)
//
// # Testing
//
// MockLedgerClient is a stateful in-memory implementation with the same
// duplicate and not-found semantics as the contract. MockLedger is a
// testify mock for injecting failures.
package registry
