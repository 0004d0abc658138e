package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/certificate-ledger/cryptoutils"
	"github.com/ruteri/certificate-ledger/interfaces"
)

// VaultCredentials verifies logins against an identity kept in a Vault KV v2 secret.
// The secret holds "username" and either "password_hash" (argon2id PHC string)
// or a plaintext "password" that is hashed on load.
type VaultCredentials struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger

	mu           sync.RWMutex
	username     [32]byte
	passwordHash string
}

var _ interfaces.CredentialVerifier = (*VaultCredentials)(nil)

// NewVaultClient creates a Vault API client for address authenticated with token.
func NewVaultClient(address, token string) (*api.Client, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{Timeout: 30 * time.Second}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)
	return client, nil
}

// NewVaultCredentials loads the identity stored at mount/path.
// secretPath has the form "<mount>/<path>", for example "secret/certificate-ledger/admin".
func NewVaultCredentials(ctx context.Context, client *api.Client, secretPath string, log *slog.Logger) (*VaultCredentials, error) {
	mountPath, dataPath, ok := strings.Cut(strings.Trim(secretPath, "/"), "/")
	if !ok || mountPath == "" || dataPath == "" {
		return nil, fmt.Errorf("%w: vault credentials path must be <mount>/<path>, got %q", interfaces.ErrValidation, secretPath)
	}

	v := &VaultCredentials{
		client:    client,
		mountPath: mountPath,
		dataPath:  dataPath,
		log:       log,
	}
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// Refresh reloads the identity from Vault.
func (v *VaultCredentials) Refresh(ctx context.Context) error {
	secret, err := v.client.KVv2(v.mountPath).Get(ctx, v.dataPath)
	if err != nil {
		return fmt.Errorf("failed to read credentials from Vault: %w", err)
	}

	username, _ := secret.Data["username"].(string)
	if username == "" {
		return fmt.Errorf("%w: vault secret %s/%s has no username", interfaces.ErrValidation, v.mountPath, v.dataPath)
	}

	passwordHash, _ := secret.Data["password_hash"].(string)
	if passwordHash == "" {
		password, _ := secret.Data["password"].(string)
		if password == "" {
			return fmt.Errorf("%w: vault secret %s/%s has no password", interfaces.ErrValidation, v.mountPath, v.dataPath)
		}
		passwordHash, err = cryptoutils.HashPassword(password)
		if err != nil {
			return err
		}
	} else if _, err := cryptoutils.VerifyPassword(passwordHash, ""); err != nil {
		return err
	}

	v.mu.Lock()
	v.username = sha256.Sum256([]byte(username))
	v.passwordHash = passwordHash
	v.mu.Unlock()

	v.log.Info("Loaded admin credentials from Vault",
		slog.String("mount", v.mountPath),
		slog.String("path", v.dataPath))
	return nil
}

// Verify reports whether username and password match the loaded identity.
func (v *VaultCredentials) Verify(username, password string) bool {
	v.mu.RLock()
	expectedUser, passwordHash := v.username, v.passwordHash
	v.mu.RUnlock()

	return verifyPair(expectedUser, passwordHash, username, password)
}
