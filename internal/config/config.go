// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DevAdminAddress is seated as the only admin when ADMIN_ADDRESSES is unset
// outside production.
const DevAdminAddress = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"

const defaultChainID = 31337

type Config struct {
	Environment string // "production" or anything else (dev)

	DatabaseURL string

	Mnemonic   string
	ChainID    int64
	TEEVersion int

	RPCURL          string
	ContractAddress string // empty disables the chain listener

	AdminAddresses []string // lower-case

	AppPort     int
	CORSOrigin  string
	FrontendURL string
	BackendURL  string
}

// Load reads .env (best-effort, dev convenience) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:     envOr("ENVIRONMENT", envOr("NODE_ENV", "development")),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Mnemonic:        os.Getenv("MNEMONIC"),
		RPCURL:          os.Getenv("RPC_URL"),
		ContractAddress: os.Getenv("CLOUTCARDS_CONTRACT_ADDRESS"),
		CORSOrigin:      envOr("CORS_ORIGIN", "*"),
		FrontendURL:     os.Getenv("FRONTEND_URL"),
		BackendURL:      os.Getenv("BACKEND_URL"),
	}

	cfg.ChainID = defaultChainID
	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse CHAIN_ID %q: %w", v, err)
		}
		cfg.ChainID = id
	}

	if v := os.Getenv("TEE_VERSION"); v != "" {
		tv, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse TEE_VERSION %q: %w", v, err)
		}
		cfg.TEEVersion = tv
	}

	cfg.AppPort = 8080
	if v := os.Getenv("APP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse APP_PORT %q: %w", v, err)
		}
		cfg.AppPort = p
	}

	if v := os.Getenv("ADMIN_ADDRESSES"); v != "" {
		for _, a := range strings.Split(v, ",") {
			a = strings.ToLower(strings.TrimSpace(a))
			if a != "" {
				cfg.AdminAddresses = append(cfg.AdminAddresses, a)
			}
		}
	} else if !cfg.IsProduction() {
		cfg.AdminAddresses = []string{DevAdminAddress}
	}

	if cfg.RPCURL == "" && !cfg.IsProduction() {
		cfg.RPCURL = "http://localhost:8545"
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate enforces the settings without which the process must refuse to start.
func (c *Config) Validate() error {
	if c.Mnemonic == "" {
		return fmt.Errorf("MNEMONIC is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() {
		if os.Getenv("CHAIN_ID") == "" {
			return fmt.Errorf("CHAIN_ID is required in production")
		}
		if c.RPCURL == "" {
			return fmt.Errorf("RPC_URL is required in production")
		}
		if len(c.AdminAddresses) == 0 {
			return fmt.Errorf("ADMIN_ADDRESSES is required in production")
		}
	}
	return nil
}

// IsAdmin reports whether wallet is a configured admin. Comparison is
// case-insensitive.
func (c *Config) IsAdmin(wallet string) bool {
	w := strings.ToLower(wallet)
	for _, a := range c.AdminAddresses {
		if a == w {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
