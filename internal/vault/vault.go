// Package vault implements ambient secrets resolution: HashiCorp Vault
// when configured, falling back to whatever the environment already
// supplied (via internal/config) when it isn't. Every caller goes
// through Resolver so the Vault dependency is optional at runtime
// without branching logic spreading through the rest of the codebase.
package vault

import (
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/edevardHvide/golf-availability-bot/internal/logging"
)

// Resolver resolves named secrets, consulting Vault first (if enabled)
// and falling back to a static map of already-loaded env values.
type Resolver struct {
	client   *vaultapi.Client
	fallback map[string]string
	log      *logging.Logger
}

// NewResolver builds a Resolver. If address is empty, Vault is
// disabled entirely and every lookup falls through to fallback.
func NewResolver(address, token string, fallback map[string]string, log *logging.Logger) (*Resolver, error) {
	r := &Resolver{fallback: fallback, log: log}
	if address == "" {
		return r, nil
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		log.Warn("vault health check failed, falling back to env secrets", map[string]interface{}{"error": err.Error()})
		return r, nil
	}
	if health.Sealed {
		log.Warn("vault is sealed, falling back to env secrets", nil)
		return r, nil
	}

	r.client = client
	return r, nil
}

// ReadPath reads every key under a Vault KV path, or returns nil if
// Vault is disabled.
func (r *Resolver) ReadPath(path string) (map[string]interface{}, error) {
	if r.client == nil {
		return nil, nil
	}
	secret, err := r.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading vault path %s: %w", path, err)
	}
	if secret == nil {
		return nil, nil
	}
	return secret.Data, nil
}

// Get resolves a single named secret: Vault path/key first (when
// enabled and the key is present there), else the fallback map, else
// empty string.
func (r *Resolver) Get(vaultPath, key string) string {
	if r.client != nil {
		if data, err := r.ReadPath(vaultPath); err == nil && data != nil {
			if v, ok := data[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return r.fallback[key]
}
