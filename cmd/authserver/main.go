package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"yar/internal/authserver"
	"yar/pkg/config"
	"yar/pkg/logger"
	"yar/pkg/nonce"

	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration from the environment first so flags can override it
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		logLevel   = flag.String("log", cfg.LogLevel, "logging level: DEBUG, INFO, WARNING, ERROR, CRITICAL or FATAL")
		listenOn   = flag.String("lon", cfg.AuthListenOn, "address to listen on (host:port)")
		keyServer  = flag.String("keyserver", cfg.KeyServer, "key server address (host:port)")
		appServer  = flag.String("appserver", cfg.AppServer, "app server address (host:port)")
		maxAge     = flag.Int("maxage", cfg.MaxAge, "max age in seconds of a request's timestamp")
		authMethod = flag.String("authmethod", cfg.AuthMethod, "app server's authorization method")
		nonceStore = flag.String("noncestore", cfg.NonceStorePath, "sqlite nonce store path; defaults to an in-memory store")
		logFile    = flag.String("logfile", cfg.LogFile, "log to this file as well as the console")
		syslog     = flag.String("syslog", cfg.Syslog, "log to this syslog unix domain socket")
	)
	flag.Parse()

	cfg.LogLevel = *logLevel
	cfg.AuthListenOn = *listenOn
	cfg.KeyServer = *keyServer
	cfg.AppServer = *appServer
	cfg.MaxAge = *maxAge
	cfg.AuthMethod = *authMethod
	cfg.NonceStorePath = *nonceStore
	cfg.LogFile = *logFile
	cfg.Syslog = *syslog

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile, cfg.Syslog); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().Msg("Starting yar auth server")

	var nonces nonce.Checker
	if cfg.NonceStorePath != "" {
		nonces, err = nonce.NewSQLiteChecker(cfg.NonceStorePath, cfg.GetMaxAge())
		if err != nil {
			log.Fatal().Err(err).
				Str("path", cfg.NonceStorePath).
				Msg("Failed to open nonce store")
		}
		log.Info().Str("path", cfg.NonceStorePath).Msg("Using sqlite nonce store")
	} else {
		nonces = nonce.NewMemoryChecker(cfg.GetMaxAge())
		log.Info().Msg("Using in-memory nonce store")
	}
	defer nonces.Close()

	auth := authserver.NewAuthenticator(
		cfg.KeyServer,
		int64(cfg.MaxAge),
		nonces,
		10*time.Second,
		cfg.HostIfNotFound,
		cfg.PortIfNotFound)

	proxy := authserver.NewProxy(auth, cfg.AppServer, 30*time.Second)

	server := &http.Server{
		Addr:         cfg.AuthListenOn,
		Handler:      proxy,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", cfg.AuthListenOn).
			Str("key_server", cfg.KeyServer).
			Str("app_server", cfg.AppServer).
			Str("auth_method", strings.ToUpper(cfg.AuthMethod)).
			Int("maxage", cfg.MaxAge).
			Msg("Auth server starting")

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

	log.Info().Msg("Auth server stopped")
}
