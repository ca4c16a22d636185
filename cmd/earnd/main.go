package main

import (
	"os"
	"strconv"

	"github.com/oasisdex/earn-engine/internal/config"
	"github.com/oasisdex/earn-engine/internal/datafetcher"
	"github.com/oasisdex/earn-engine/internal/logger"
	"github.com/oasisdex/earn-engine/internal/service"
	"github.com/oasisdex/earn-engine/internal/state"
	"github.com/oasisdex/earn-engine/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// main is the entry point for the earn engine service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Earn engine starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Engine Parameters
	params, paramsID, err := state.LoadActiveEngineParameters(service.DEFAULT_ENGINE_CONFIG_NAME)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active engine parameters, using defaults and saving.")
		defaultParams := config.DefaultEngineParameters
		paramsID, err = state.SaveEngineParameters(defaultParams, service.DEFAULT_ENGINE_CONFIG_NAME, service.DEFAULT_ENGINE_CONFIG_VERSION, true)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default engine parameters.")
		}
		params = defaultParams
	}
	log.Info().Int64("params_id", paramsID).Msg("Engine parameters loaded successfully.")

	// --- 2. Data Providers ---
	quotes := datafetcher.NewQuoteClient(config.QuoteAPI)
	protocolData := datafetcher.NewProtocolDataClient(config.ProtocolDataAPI)

	// --- 3. Create Service Instance with Dependency Injection ---
	svc, err := service.NewService(service.Config{
		Quotes:       quotes,
		ProtocolData: protocolData,
		Params:       &params,
		ParamsID:     paramsID,
		PersistAudit: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create service instance")
	}

	// --- 4. Serve ---
	webServer := web.NewWebServer(config.WebPort, svc)
	log.Info().
		Str("port", config.WebPort).
		Strs("protocols", supportedProtocols()).
		Msg("Starting simulation API")
	if err := webServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("Web server failed")
	}
}

func supportedProtocols() []string {
	protocols := make([]string, 0, len(config.ProtocolEntryPoints))
	for kind := range config.ProtocolEntryPoints {
		protocols = append(protocols, string(kind))
	}
	return protocols
}

// mustAtoi parses s, falling back to def when unset or invalid.
func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
