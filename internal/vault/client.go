// Package vault reads engine secrets (JWT signing key, inference API key)
// from HashiCorp Vault's KV v2 engine. When Vault is disabled the client
// serves values seeded from config or the environment.
package vault

import (
	"context"
	"fmt"
	"sync"

	"trading-signal-engine/config"

	"github.com/hashicorp/vault/api"
)

// Secret keys stored under the engine's secret path
const (
	KeyJWTSecret       = "jwt_secret"
	KeyInferenceAPIKey = "inference_api_key"
)

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]string
}

// NewClient creates a new Vault client. A disabled config produces a
// cache-only client; Seed can then preload values.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]string),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]string),
	}, nil
}

// Seed preloads a secret into the cache. Used to carry config or
// environment fallbacks when Vault is disabled or unreachable.
func (c *Client) Seed(key, value string) {
	if value == "" {
		return
	}
	c.mu.Lock()
	c.cache[key] = value
	c.mu.Unlock()
}

// GetSecret returns one engine secret by key. Vault is consulted first;
// the cache serves as fallback and is refreshed on every successful read.
func (c *Client) GetSecret(ctx context.Context, key string) (string, error) {
	if c.config.Enabled && c.client != nil {
		value, err := c.readFromVault(ctx, key)
		if err == nil && value != "" {
			c.mu.Lock()
			c.cache[key] = value
			c.mu.Unlock()
			return value, nil
		}
	}

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}
	return "", fmt.Errorf("secret %s not found", key)
}

func (c *Client) readFromVault(ctx context.Context, key string) (string, error) {
	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret path %s is empty", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid secret format at %s", path)
	}

	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("secret %s not present at %s", key, path)
	}
	return value, nil
}

// StoreSecret writes one engine secret. Cache-only when Vault is disabled.
func (c *Client) StoreSecret(ctx context.Context, key, value string) error {
	c.mu.Lock()
	c.cache[key] = value
	c.mu.Unlock()

	if !c.config.Enabled || c.client == nil {
		return nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	// Merge with existing secrets so a single-key write does not clobber
	// the rest of the path.
	existing := map[string]interface{}{}
	if secret, err := c.client.Logical().ReadWithContext(ctx, path); err == nil && secret != nil {
		if data, ok := secret.Data["data"].(map[string]interface{}); ok {
			existing = data
		}
	}
	existing[key] = value

	_, err := c.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": existing,
	})
	if err != nil {
		return fmt.Errorf("failed to store secret in vault: %w", err)
	}
	return nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}
