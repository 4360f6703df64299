package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	vaultapi "github.com/hashicorp/vault/api"
)

// IdentityWrapper wraps and unwraps an account's identity private key
// at rest using HashiCorp Vault's transit secrets engine, so a
// compromised store backup alone never discloses the identity key.
type IdentityWrapper struct {
	client     *vaultapi.Client
	transitKey string
	logger     *log.Logger
}

// NewIdentityWrapper creates a transit-engine wrapper against an
// already-running Vault server. The named key is expected to already
// exist under transit/keys/<transitKey>.
func NewIdentityWrapper(addr, token, transitKey string) (*IdentityWrapper, error) {
	cfg := &vaultapi.Config{Address: addr}
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create vault client: %w", err)
	}
	client.SetToken(token)

	return &IdentityWrapper{
		client:     client,
		transitKey: transitKey,
		logger:     log.New(os.Stdout, "[VAULT-IDENTITY] ", log.Ldate|log.Ltime|log.LUTC),
	}, nil
}

// Wrap encrypts an identity private key through Vault transit and
// returns the opaque ciphertext token to persist in place of the key.
func (w *IdentityWrapper) Wrap(ctx context.Context, plaintext []byte) (string, error) {
	data := map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	}
	secret, err := w.client.Logical().WriteWithContext(ctx, fmt.Sprintf("transit/encrypt/%s", w.transitKey), data)
	if err != nil {
		return "", fmt.Errorf("store: vault wrap: %w", err)
	}
	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("store: vault wrap: missing ciphertext in response")
	}
	w.logger.Printf("wrapped identity key under transit key %q", w.transitKey)
	return ciphertext, nil
}

// Unwrap reverses Wrap.
func (w *IdentityWrapper) Unwrap(ctx context.Context, ciphertext string) ([]byte, error) {
	data := map[string]interface{}{
		"ciphertext": ciphertext,
	}
	secret, err := w.client.Logical().WriteWithContext(ctx, fmt.Sprintf("transit/decrypt/%s", w.transitKey), data)
	if err != nil {
		return nil, fmt.Errorf("store: vault unwrap: %w", err)
	}
	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("store: vault unwrap: missing plaintext in response")
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("store: vault unwrap: decode plaintext: %w", err)
	}
	return plaintext, nil
}
