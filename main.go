package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binance-futures-trader/config"
	"binance-futures-trader/internal/api"
	"binance-futures-trader/internal/auth"
	"binance-futures-trader/internal/binance"
	"binance-futures-trader/internal/cache"
	"binance-futures-trader/internal/logging"
	"binance-futures-trader/internal/trading"
	"binance-futures-trader/internal/vault"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	sampleConfig := flag.String("sample-config", "", "write a sample config file to this path and exit")
	flag.Parse()

	if *sampleConfig != "" {
		if err := config.GenerateSampleConfig(*sampleConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		MaxSizeMB:   cfg.LoggingConfig.MaxSizeMB,
		MaxBackups:  cfg.LoggingConfig.MaxBackups,
		MaxAgeDays:  cfg.LoggingConfig.MaxAgeDays,
		Component:   "main",
	})
	logging.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	// Resolve exchange credentials
	vaultClient, err := vault.NewClient(cfg.VaultConfig, cfg.BinanceConfig.Credentials())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create vault client")
	}
	credsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	creds, err := vaultClient.Credentials(credsCtx)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Bool("vault", vaultClient.IsEnabled()).Msg("Failed to resolve exchange credentials")
	}
	logger.Info().Stringer("credentials", creds).Bool("vault", vaultClient.IsEnabled()).Msg("Exchange credentials loaded")

	builder, err := binance.NewRequestBuilder(cfg.BinanceConfig.BaseURL, creds, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build request builder")
	}

	transport := newTransport(cfg, creds, logger)
	client := binance.NewClient(builder, transport, logger)

	// Advisory balance cache
	var balances cache.BalanceCache = cache.NewMemoryCache()
	var redisCache *cache.CacheService
	if cfg.RedisConfig.Enabled {
		redisCache, err = cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Redis cache")
		}
		defer redisCache.Close()
		balances = redisCache
	}

	tradingService := trading.NewService(client, balances, cfg.TradingConfig, logger)

	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer)
	}

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
		ProductionMode: !cfg.BinanceConfig.TestNet && !cfg.BinanceConfig.MockMode,
		DefaultSymbol:  cfg.TradingConfig.Symbol,
		RateLimit:      120,
	}, tradingService, jwtManager, logger)

	server.AddHealthCheck("exchange_rate_limit", client.Weights().Health)
	if vaultClient.IsEnabled() {
		server.AddHealthCheck("vault", vaultClient.Health)
	}
	if redisCache != nil {
		server.AddHealthCheck("redis", redisCache.Health)
	}

	logger.Info().
		Str("base_url", builder.BaseURL()).
		Bool("testnet", cfg.BinanceConfig.TestNet).
		Bool("mock_mode", cfg.BinanceConfig.MockMode).
		Str("symbol", cfg.TradingConfig.Symbol).
		Msg("Futures trader initialized")

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down web server")
	}

	logger.Info().Msg("Shutdown complete")
}

// newTransport returns the live HTTP transport, or a paper exchange seeded
// from the trading config when MOCK_MODE is on.
func newTransport(cfg *config.Config, creds binance.Credentials, logger zerolog.Logger) binance.Transport {
	if !cfg.BinanceConfig.MockMode {
		return binance.NewRestyTransport(cfg.BinanceConfig.HTTPTimeout, logger)
	}

	paper := binance.NewPaperTransport(creds, cfg.TradingConfig.QuoteAsset)
	balance, err := decimal.NewFromString(cfg.TradingConfig.PaperStartingBalance)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid PAPER_STARTING_BALANCE")
	}
	price, err := decimal.NewFromString(cfg.TradingConfig.PaperReferencePrice)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid PAPER_REFERENCE_PRICE")
	}
	paper.SetBalance(cfg.TradingConfig.QuoteAsset, balance)
	paper.SetPrice(cfg.TradingConfig.Symbol, price)

	logger.Warn().
		Str("balance", balance.String()).
		Str("price", price.String()).
		Msg("MOCK_MODE enabled, orders settle against an in-memory paper account")
	return paper
}
