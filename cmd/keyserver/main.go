package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yar/internal/keyserver"
	"yar/pkg/config"
	"yar/pkg/keystore"
	"yar/pkg/logger"

	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration from the environment first so flags can override it
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		logLevel = flag.String("log", cfg.LogLevel, "logging level: DEBUG, INFO, WARNING, ERROR, CRITICAL or FATAL")
		listenOn = flag.String("lon", cfg.KeyListenOn, "address to listen on (host:port)")
		keyStore = flag.String("key_store", cfg.KeyStore, "key store location (host:port/database)")
		logFile  = flag.String("logfile", cfg.LogFile, "log to this file as well as the console")
		syslog   = flag.String("syslog", cfg.Syslog, "log to this syslog unix domain socket")
	)
	flag.Parse()

	cfg.LogLevel = *logLevel
	cfg.KeyListenOn = *listenOn
	cfg.KeyStore = *keyStore
	cfg.LogFile = *logFile
	cfg.Syslog = *syslog

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile, cfg.Syslog); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().Msg("Starting yar key server")

	host, database, err := cfg.KeyStoreHostAndDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid key store location")
	}
	store := keystore.New(host, database, 10*time.Second)
	log.Info().
		Str("host", host).
		Str("database", database).
		Msg("Key store client initialized")

	service := keyserver.NewService(store)

	server := &http.Server{
		Addr:         cfg.KeyListenOn,
		Handler:      service.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", cfg.KeyListenOn).
			Msg("Key server starting")

		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	log.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Key server stopped")
}
