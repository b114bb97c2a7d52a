package vault

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"binance-futures-trader/config"
	"binance-futures-trader/internal/binance"

	"github.com/hashicorp/vault/api"
)

// Client resolves exchange credentials from a Vault KV v2 secret.
// When Vault is disabled it serves the credentials given at construction.
type Client struct {
	client   *api.Client
	config   config.VaultConfig
	fallback binance.Credentials
	mu       sync.RWMutex
	cached   *binance.Credentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig, fallback binance.Credentials) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:   cfg,
			fallback: fallback,
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
		client:   client,
		config:   cfg,
		fallback: fallback,
	}, nil
}

// Credentials returns the exchange credentials. Values read from Vault are
// cached for the lifetime of the client.
func (c *Client) Credentials(ctx context.Context) (binance.Credentials, error) {
	if !c.config.Enabled {
		if err := c.fallback.Validate(); err != nil {
			return binance.Credentials{}, err
		}
		return c.fallback, nil
	}

	c.mu.RLock()
	if c.cached != nil {
		creds := *c.cached
		c.mu.RUnlock()
		return creds, nil
	}
	c.mu.RUnlock()

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return binance.Credentials{}, fmt.Errorf("failed to read exchange credentials from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return binance.Credentials{}, &binance.ConfigurationError{
			Field:   "VAULT_SECRET_PATH",
			Message: fmt.Sprintf("no secret at %s", c.secretPath()),
		}
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return binance.Credentials{}, &binance.ConfigurationError{
			Field:   "VAULT_SECRET_PATH",
			Message: "invalid secret format",
		}
	}

	creds := credentialsFromSecret(data)
	if err := creds.Validate(); err != nil {
		return binance.Credentials{}, err
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()

	return creds, nil
}

// ClearCache drops credentials read from Vault so the next call re-reads them.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
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

// secretPath returns the KV v2 data path of the exchange credentials
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", strings.Trim(c.config.MountPath, "/"), strings.Trim(c.config.SecretPath, "/"))
}

func credentialsFromSecret(data map[string]interface{}) binance.Credentials {
	return binance.Credentials{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
	}
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return strings.TrimSpace(str)
		}
	}
	return ""
}
