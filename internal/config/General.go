package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// ChainID is the EVM chain ID the engine simulates positions for.
	ChainID uint64

	// WebPort is the port the HTTP API listens on.
	WebPort string

	// SlippagePercent is the default swap slippage tolerance, in percent,
	// applied when a simulation request does not specify one.
	SlippagePercent float64
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	ChainID, err = getEnvAsUint64("CHAIN_ID")
	if err != nil {
		return err
	}

	WebPort, err = getEnv("WEB_PORT")
	if err != nil {
		return err
	}

	SlippagePercent, err = getEnvAsFloat64("DEFAULT_SLIPPAGE_PERCENT")
	if err != nil {
		return err
	}
	if SlippagePercent < 0 || SlippagePercent >= 100 {
		return errors.New("DEFAULT_SLIPPAGE_PERCENT must be in [0, 100)")
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Uint64("ChainID", ChainID).
		Str("WebPort", WebPort).
		Float64("SlippagePercent", SlippagePercent).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}
