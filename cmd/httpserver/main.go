package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/certificate-ledger/auth"
	"github.com/ruteri/certificate-ledger/certificates"
	"github.com/ruteri/certificate-ledger/cmd/flags"
	"github.com/ruteri/certificate-ledger/common"
	"github.com/ruteri/certificate-ledger/httpserver"
	"github.com/ruteri/certificate-ledger/index"
	"github.com/ruteri/certificate-ledger/interfaces"
	"github.com/ruteri/certificate-ledger/registry"
	"github.com/ruteri/certificate-ledger/storage"
	"github.com/urfave/cli/v2"
)

var serverFlags = []cli.Flag{
	flags.ListenAddrFlag,
	flags.RpcAddrFlag,
	flags.ContractAddressFlag,
	flags.IssuerKeyFlag,
	flags.ChainIDFlag,
	flags.ConfirmTimeoutFlag,
	flags.PinningFlag,
	flags.PinRetriesFlag,
	flags.JWTSecretFlag,
	flags.TokenTTLFlag,
	flags.AdminUsernameFlag,
	flags.AdminPasswordFlag,
	flags.AdminPasswordHashFlag,
	flags.VaultAddrFlag,
	flags.VaultTokenFlag,
	flags.VaultCredentialsPathFlag,
	flags.IndexStartBlockFlag,
	flags.IndexSyncIntervalFlag,
	flags.UploadDirFlag,
	flags.MaxUploadBytesFlag,
	flags.DevMockLedgerFlag,
}

func main() {
	app := &cli.App{
		Name:    "certificate-server",
		Usage:   "Issue, verify and revoke certificates anchored on a ledger",
		Version: common.Version,
		Flags:   append(serverFlags, flags.CommonFlags...),
		Action:  run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := setupLedger(ctx, cCtx, logger)
	if err != nil {
		logger.Error("Failed to set up ledger client", "err", err)
		return err
	}

	pinner, err := setupPinner(cCtx, logger)
	if err != nil {
		logger.Error("Failed to set up storage backends", "err", err)
		return err
	}

	credentials, err := setupCredentials(ctx, cCtx, logger)
	if err != nil {
		logger.Error("Failed to set up administrator credentials", "err", err)
		return err
	}

	tokens, err := auth.NewTokenService([]byte(cCtx.String(flags.JWTSecretFlag.Name)), cCtx.Duration(flags.TokenTTLFlag.Name), credentials, logger)
	if err != nil {
		logger.Error("Failed to set up token service", "err", err)
		return err
	}

	idx := index.New(ledger, cCtx.Uint64(flags.IndexStartBlockFlag.Name), logger)
	go idx.Run(ctx, cCtx.Duration(flags.IndexSyncIntervalFlag.Name))

	svc, err := certificates.NewService(ledger, pinner, tokens, idx, certificates.Config{
		UploadDir:      cCtx.String(flags.UploadDirFlag.Name),
		MaxUploadBytes: cCtx.Int64(flags.MaxUploadBytesFlag.Name),
		PinRetries:     cCtx.Int(flags.PinRetriesFlag.Name),
	}, logger)
	if err != nil {
		logger.Error("Failed to create certificate service", "err", err)
		return err
	}

	server := httpserver.New(flags.ConfigureServer(cCtx, logger), httpserver.NewHandler(svc, logger))
	server.RunInBackground()

	logger.Info("Server is running",
		"contract", ledger.ContractAddress().String(),
		"storage", pinner.LocationURI())
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func setupLedger(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (interfaces.Ledger, error) {
	if cCtx.Bool(flags.DevMockLedgerFlag.Name) {
		logger.Warn("Using in-memory ledger, certificates will not survive a restart")
		return registry.NewMockLedgerClient(), nil
	}

	contractHex := cCtx.String(flags.ContractAddressFlag.Name)
	if !ethcommon.IsHexAddress(contractHex) {
		return nil, fmt.Errorf("invalid --contract-address %q", contractHex)
	}

	rpcAddr := cCtx.String(flags.RpcAddrFlag.Name)
	logger.Info("Connecting to Ethereum RPC", "address", rpcAddr)
	ethClient, err := ethclient.DialContext(ctx, rpcAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}

	client, err := registry.NewOnchainLedgerClient(ethClient, ethcommon.HexToAddress(contractHex), logger)
	if err != nil {
		return nil, err
	}
	client.SetConfirmTimeout(cCtx.Duration(flags.ConfirmTimeoutFlag.Name))

	keyHex := strings.TrimPrefix(cCtx.String(flags.IssuerKeyFlag.Name), "0x")
	if keyHex == "" {
		logger.Warn("No --issuer-key configured, issuance and revocation are disabled")
		return client, nil
	}

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, errors.New("invalid --issuer-key")
	}

	chainID := big.NewInt(cCtx.Int64(flags.ChainIDFlag.Name))
	if chainID.Sign() == 0 {
		chainID, err = ethClient.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query chain id: %w", err)
		}
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	client.SetTransactOpts(opts)

	logger.Info("Ledger client ready", "issuer", opts.From.Hex(), "chainId", chainID.String())
	return client, nil
}

func setupPinner(cCtx *cli.Context, logger *slog.Logger) (interfaces.StoragePinner, error) {
	uris := cCtx.StringSlice(flags.PinningFlag.Name)
	if len(uris) == 0 {
		if !cCtx.Bool(flags.DevMockLedgerFlag.Name) {
			return nil, errors.New("at least one --pinning backend is required")
		}
		dir := filepath.Join(os.TempDir(), common.PackageName+"-pins")
		logger.Warn("No --pinning configured, pinning to a local directory", "dir", dir)
		uris = []string{"file://" + dir}
	}
	return storage.NewStorageBackendFactory(logger).CreateMultiPinner(uris)
}

func setupCredentials(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (interfaces.CredentialVerifier, error) {
	if vaultAddr := cCtx.String(flags.VaultAddrFlag.Name); vaultAddr != "" {
		client, err := auth.NewVaultClient(vaultAddr, cCtx.String(flags.VaultTokenFlag.Name))
		if err != nil {
			return nil, err
		}
		return auth.NewVaultCredentials(ctx, client, cCtx.String(flags.VaultCredentialsPathFlag.Name), logger)
	}

	username := cCtx.String(flags.AdminUsernameFlag.Name)
	if hash := cCtx.String(flags.AdminPasswordHashFlag.Name); hash != "" {
		return auth.NewStaticCredentialsFromHash(username, hash)
	}

	password := cCtx.String(flags.AdminPasswordFlag.Name)
	if password == "" {
		return nil, errors.New("one of --admin-password, --admin-password-hash or --vault-addr is required")
	}
	return auth.NewStaticCredentials(username, password)
}
