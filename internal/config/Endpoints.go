package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// QuoteAPI is the base URL of the swap quote aggregator.
	QuoteAPI string
	// ProtocolDataAPI is the base URL of the lending protocol data service.
	ProtocolDataAPI string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	QuoteAPI, err = getEnv("QUOTE_API")
	if err != nil {
		return err
	}

	ProtocolDataAPI, err = getEnv("PROTOCOL_DATA_API")
	if err != nil {
		return err
	}

	log.Debug().
		Str("QuoteAPI", QuoteAPI).
		Str("ProtocolDataAPI", ProtocolDataAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
