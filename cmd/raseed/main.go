package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"raseed/internal/amqp"
	"raseed/internal/api"
	"raseed/internal/assistant"
	"raseed/internal/auth"
	"raseed/internal/backend"
	"raseed/internal/cache"
	"raseed/internal/cli"
	"raseed/internal/extract"
	"raseed/internal/fetch"
	"raseed/internal/history"
	apphttp "raseed/internal/http"
	"raseed/internal/log"
	"raseed/internal/metrics"
	"raseed/internal/middleware/ratelimit"
	"raseed/internal/middleware/security"
	"raseed/internal/middleware/trace"
	"raseed/internal/notify"
	"raseed/internal/session"
	"raseed/internal/upload"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig()

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	shutdownTracer, err := metrics.InitTracer(ctx, "raseed", cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("Failed to initialize tracing", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		_ = shutdownTracer(tctx)
	}()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid storage configuration", log.FieldError, err)
		os.Exit(1)
	}
	storeResult, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize client storage", log.FieldError, err, "backend", cfg.StoreBackend)
		os.Exit(1)
	}
	defer func() {
		if err := storeResult.Cleanup(); err != nil {
			logger.Error("Failed to close client storage", log.FieldError, err)
		}
	}()
	logger.Info("Client storage initialized", "backend", cfg.StoreBackend)

	prom := metrics.New()
	client := api.New(cfg.BackendURL,
		api.WithHTTPClient(&http.Client{
			Timeout:   cfg.BackendTimeout,
			Transport: trace.Transport(http.DefaultTransport),
		}),
		api.WithLogger(logger),
		api.WithObserver(prom),
	)

	extractor, err := extract.New(ctx, cfg.Extractor, cfg.GeminiAPIKey, client, logger)
	if err != nil {
		logger.Error("Failed to initialize receipt extraction", log.FieldError, err, "extractor", cfg.Extractor)
		os.Exit(1)
	}

	devices, err := auth.NewDevices(cfg.DeviceSecret, cfg.CookieSecure, logger)
	if err != nil {
		logger.Error("Failed to initialize device cookies", log.FieldError, err)
		os.Exit(1)
	}
	var google *auth.Google
	if cfg.GoogleOAuthEnabled() {
		google = auth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, cfg.CookieSecure)
	} else {
		logger.Info("Google sign-in redirect disabled - no GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET provided")
	}

	sessions := session.NewManager(session.NewStoragePersister(storeResult.Store), cfg.SessionCacheSize, logger)
	uploads := upload.NewRegistry(extractor, client, cfg.SessionCacheSize, 30*time.Minute, logger)
	ask := assistant.New(client, history.New(storeResult.Store), prom, logger)
	hub := notify.NewHub(prom, logger)
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())

	caches := cache.NewManager(logger)
	caches.Register(uploads)
	caches.Register(limiter)

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		go func() {
			if err := amqpClient.Run(ctx, hub.Handle); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Notification consumer stopped", log.FieldError, err)
			}
		}()
		logger.Info("Push notifications enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Push notifications disabled - no AMQP_URL provided")
	}

	query := fetch.DefaultQueryOptions()
	query.StaleTime = cfg.QueryStaleTime

	detector := security.NewDetector(logger)
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Error("Invalid trusted proxy", log.FieldError, err)
			os.Exit(1)
		}
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Logger:    logger,
		Backend:   client,
		Sessions:  sessions,
		Devices:   devices,
		Google:    google,
		Uploads:   uploads,
		Assistant: ask,
		Hub:       hub,
		Metrics:   prom,
		Limiter:   limiter,
		Detector:  detector,
		Headers:   security.DefaultHeadersConfig(),
		Store:     storeResult.Store,
		Caches:    caches,
		Query:     query,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}
	caches.StartCleanup(5 * time.Minute)
	defer caches.Stop()

	// Configure server timeouts and limits. /events streams, so there is no
	// write timeout.
	srv.ReadHeaderTimeout = 10 * time.Second
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 0
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		}
	}()

	logger.Info("Starting raseed server", "port", cfg.Port, "backend_url", cfg.BackendURL, log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		<-done
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
