package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"binance-futures-trader/internal/binance"

	"github.com/joho/godotenv"
)

type Config struct {
	BinanceConfig BinanceConfig `json:"binance"`
	TradingConfig TradingConfig `json:"trading"`
	LoggingConfig LoggingConfig `json:"logging"`
	ServerConfig  ServerConfig  `json:"server"`
	AuthConfig    AuthConfig    `json:"auth"`
	VaultConfig   VaultConfig   `json:"vault"`
	RedisConfig   RedisConfig   `json:"redis"`
}

type BinanceConfig struct {
	APIKey      string        `json:"api_key"`
	SecretKey   string        `json:"secret_key"`
	BaseURL     string        `json:"base_url"`
	TestNet     bool          `json:"testnet"`
	MockMode    bool          `json:"mock_mode"` // Sign and settle requests in-process against a paper exchange
	HTTPTimeout time.Duration `json:"http_timeout"`
}

// TradingConfig holds order defaults and sizing precision
type TradingConfig struct {
	Symbol               string `json:"symbol"`
	QuoteAsset           string `json:"quote_asset"`
	QuantityPrecision    int32  `json:"quantity_precision"`     // Explicit-quantity orders
	FullBalancePrecision int32  `json:"full_balance_precision"` // Full-balance sizing
	PaperStartingBalance string `json:"paper_starting_balance"` // MOCK_MODE only
	PaperReferencePrice  string `json:"paper_reference_price"`  // MOCK_MODE only
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
	MaxSizeMB   int    `json:"max_size_mb"`
	MaxBackups  int    `json:"max_backups"`
	MaxAgeDays  int    `json:"max_age_days"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`  // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds bearer token configuration for the API
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV v2 secrets engine mount path
	SecretPath string `json:"secret_path"` // Path of the exchange credentials
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for the advisory balance cache
type RedisConfig struct {
	Enabled    bool          `json:"enabled"`
	Address    string        `json:"address"`
	Password   string        `json:"password"`
	DB         int           `json:"db"`
	PoolSize   int           `json:"pool_size"`
	BalanceTTL time.Duration `json:"balance_ttl"`
}

// Load reads .env (if present), config.json (if present), then applies
// environment overrides.
func Load() (*Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	cfg := defaultConfig()
	if err := loadFromFile(getEnvOrDefault("CONFIG_FILE", "config.json"), cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// DefaultTradingConfig returns the order defaults used when neither the
// config file nor the environment sets them.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Symbol:               "BTCUSDT",
		QuoteAsset:           "USDT",
		QuantityPrecision:    binance.ExplicitQuantityPrecision,
		FullBalancePrecision: binance.FullBalanceQuantityPrecision,
		PaperStartingBalance: "10000",
		PaperReferencePrice:  "25000",
	}
}

// defaultConfig holds values whose zero value is a legitimate setting, so
// the config file can override them with zero or false.
func defaultConfig() *Config {
	return &Config{
		TradingConfig: DefaultTradingConfig(),
		LoggingConfig: LoggingConfig{JSONFormat: true},
	}
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Binance config
	cfg.BinanceConfig.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.BinanceConfig.APIKey)
	cfg.BinanceConfig.SecretKey = getEnvOrDefault("BINANCE_API_SECRET", cfg.BinanceConfig.SecretKey)
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet || cfg.BinanceConfig.BaseURL == "")
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = binance.FuturesBaseURL
		if cfg.BinanceConfig.TestNet {
			cfg.BinanceConfig.BaseURL = binance.FuturesTestnetURL
		}
	}
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)
	cfg.BinanceConfig.HTTPTimeout = getEnvDurationOrDefault("BINANCE_HTTP_TIMEOUT", orDuration(cfg.BinanceConfig.HTTPTimeout, 15*time.Second))

	// Trading config
	defaults := DefaultTradingConfig()
	cfg.TradingConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", orString(cfg.TradingConfig.Symbol, defaults.Symbol))
	cfg.TradingConfig.QuoteAsset = getEnvOrDefault("TRADING_QUOTE_ASSET", orString(cfg.TradingConfig.QuoteAsset, defaults.QuoteAsset))
	cfg.TradingConfig.QuantityPrecision = int32(getEnvIntOrDefault("TRADING_QUANTITY_PRECISION", int(cfg.TradingConfig.QuantityPrecision)))
	cfg.TradingConfig.FullBalancePrecision = int32(getEnvIntOrDefault("TRADING_FULL_BALANCE_PRECISION", int(cfg.TradingConfig.FullBalancePrecision)))
	cfg.TradingConfig.PaperStartingBalance = getEnvOrDefault("PAPER_STARTING_BALANCE", orString(cfg.TradingConfig.PaperStartingBalance, defaults.PaperStartingBalance))
	cfg.TradingConfig.PaperReferencePrice = getEnvOrDefault("PAPER_REFERENCE_PRICE", orString(cfg.TradingConfig.PaperReferencePrice, defaults.PaperReferencePrice))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)
	cfg.LoggingConfig.MaxSizeMB = getEnvIntOrDefault("LOG_MAX_SIZE_MB", orInt(cfg.LoggingConfig.MaxSizeMB, 100))
	cfg.LoggingConfig.MaxBackups = getEnvIntOrDefault("LOG_MAX_BACKUPS", orInt(cfg.LoggingConfig.MaxBackups, 5))
	cfg.LoggingConfig.MaxAgeDays = getEnvIntOrDefault("LOG_MAX_AGE_DAYS", orInt(cfg.LoggingConfig.MaxAgeDays, 30))

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("WEB_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("WEB_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("WEB_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("WEB_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.Issuer = getEnvOrDefault("AUTH_ISSUER", orString(cfg.AuthConfig.Issuer, "binance-futures-trader"))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "binance-futures-trader/exchange"))
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))
	cfg.RedisConfig.BalanceTTL = getEnvDurationOrDefault("REDIS_BALANCE_TTL", orDuration(cfg.RedisConfig.BalanceTTL, 24*time.Hour))
}

// Validate checks the settings that must hold before any exchange call.
// Credentials are checked only when they do not come from Vault.
func (c *Config) Validate() error {
	if !c.VaultConfig.Enabled {
		if strings.TrimSpace(c.BinanceConfig.APIKey) == "" {
			return &binance.ConfigurationError{Field: "BINANCE_API_KEY", Message: "must not be empty"}
		}
		if strings.TrimSpace(c.BinanceConfig.SecretKey) == "" {
			return &binance.ConfigurationError{Field: "BINANCE_API_SECRET", Message: "must not be empty"}
		}
	}
	if strings.TrimSpace(c.BinanceConfig.BaseURL) == "" {
		return &binance.ConfigurationError{Field: "BINANCE_BASE_URL", Message: "must not be empty"}
	}
	if c.BinanceConfig.HTTPTimeout <= 0 {
		return &binance.ConfigurationError{Field: "BINANCE_HTTP_TIMEOUT", Message: "must be positive"}
	}
	if c.TradingConfig.QuantityPrecision < 0 {
		return &binance.ConfigurationError{Field: "TRADING_QUANTITY_PRECISION", Message: "must not be negative"}
	}
	if c.TradingConfig.FullBalancePrecision < 0 {
		return &binance.ConfigurationError{Field: "TRADING_FULL_BALANCE_PRECISION", Message: "must not be negative"}
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return &binance.ConfigurationError{Field: "AUTH_JWT_SECRET", Message: "required when AUTH_ENABLED=true"}
	}
	if c.VaultConfig.Enabled && c.VaultConfig.Token == "" {
		return &binance.ConfigurationError{Field: "VAULT_TOKEN", Message: "required when VAULT_ENABLED=true"}
	}
	return nil
}

// Credentials returns the exchange credentials held in the config.
func (c *BinanceConfig) Credentials() binance.Credentials {
	return binance.Credentials{APIKey: c.APIKey, SecretKey: c.SecretKey}
}

// loadFromFile decodes filename over the values already in cfg.
func loadFromFile(filename string, cfg *Config) error {
	file, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v == 0 {
		return fallback
	}
	return v
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		BinanceConfig: BinanceConfig{
			APIKey:      "your_api_key_here",
			SecretKey:   "your_secret_key_here",
			BaseURL:     binance.FuturesTestnetURL,
			TestNet:     true,
			HTTPTimeout: 15 * time.Second,
		},
		TradingConfig: DefaultTradingConfig(),
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		ServerConfig: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
