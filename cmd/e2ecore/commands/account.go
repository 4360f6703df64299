package commands

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaydenbeard/e2ecore/internal/config"
	"github.com/jaydenbeard/e2ecore/internal/core"
	"github.com/jaydenbeard/e2ecore/internal/store"
)

// accountFile is the on-disk representation of a local account: the
// three values an encrypted backup blob needs, persisted between CLI
// invocations. It doubles as identity-at-rest: the backup codec is the
// only thing that ever touches long-term key material on disk.
type accountFile struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Salt       string `json:"salt"`
}

func accountPath() string {
	return filepath.Join(homeDir, "account.json")
}

func requirePassphrase() (string, error) {
	if passphrase == "" {
		return "", fmt.Errorf("--passphrase is required")
	}
	return passphrase, nil
}

// loadCoreConfig reads runtime configuration from the environment
// (store backend selection, Vault transit settings) the same way any
// other e2ecore-backed process would, instead of hardcoding an
// in-memory store for the CLI.
func loadCoreConfig() (*config.Config, error) {
	return config.Load()
}

// identityWrapper constructs a store.IdentityWrapper from cfg when
// Vault is configured, or returns nil when it is not — wrapping the
// identity private key at rest is opt-in, not required to run the CLI.
func identityWrapper(cfg *config.Config) (*store.IdentityWrapper, error) {
	if !cfg.VaultEnabled() {
		return nil, nil
	}
	w, err := store.NewIdentityWrapper(cfg.VaultAddr, cfg.VaultToken, cfg.VaultTransitKey)
	if err != nil {
		return nil, fmt.Errorf("configure vault identity wrapper: %w", err)
	}
	return w, nil
}

// loadClient decrypts the local account file and rehydrates a Client
// with the store backend the loaded configuration selects (in-memory
// by default), ready for one command's worth of work.
func loadClient() (*core.Client, error) {
	pass, err := requirePassphrase()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(accountPath())
	if err != nil {
		return nil, fmt.Errorf("no account found at %s, run \"e2ecore init\" first: %w", accountPath(), err)
	}
	var f accountFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("corrupt account file: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(f.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode account ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(f.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode account nonce: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode account salt: %w", err)
	}

	cfg, err := loadCoreConfig()
	if err != nil {
		return nil, err
	}
	wrapper, err := identityWrapper(cfg)
	if err != nil {
		return nil, err
	}

	payload, identity, signedPrekey, err := core.DecodeBackup(ciphertext, nonce, salt, pass, wrapper)
	if err != nil {
		return nil, fmt.Errorf("unlock account: %w", err)
	}

	client, err := core.Restore(cfg, identity, signedPrekey, core.WithIdentityWrapper(wrapper))
	if err != nil {
		return nil, err
	}
	if err := client.InstallBackupPayload(payload); err != nil {
		return nil, err
	}
	return client, nil
}

// saveClient persists the full state of client back to the local
// account file, overwriting whatever was there before.
func saveClient(client *core.Client) error {
	pass, err := requirePassphrase()
	if err != nil {
		return err
	}

	ciphertext, nonce, salt, err := client.CreateBackup(pass, time.Now())
	if err != nil {
		return fmt.Errorf("seal account: %w", err)
	}

	f := accountFile{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(accountPath(), raw, 0o600)
}
