package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chainstream/internal/chain"
	"chainstream/internal/config"
	"chainstream/internal/notify"
	"chainstream/internal/server"
	"chainstream/internal/sse"
	"chainstream/internal/ws"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
	cfg     *config.Config
)

func setupLogger(verbose bool, logCfg *config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}

	// Set log level from config
	if logCfg != nil && logCfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logCfg.Level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(level)
		}
	}

	// Add file output if enabled
	if logCfg != nil && logCfg.Enabled {
		if err := os.MkdirAll(logCfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("creating logs directory: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		logFile := filepath.Join(logCfg.Directory, fmt.Sprintf("chainstream_%s.log", timestamp))
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, logFile)
	}

	return zapConfig.Build()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "chainstream",
		Short: "Subscribe to an option chain event stream and serve aggregates",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config loading for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				var err error
				logger, err = setupLogger(verbose, nil)
				return err
			}

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}

			logger, err = setupLogger(verbose, &cfg.Logging)
			if err != nil {
				return err
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := run(cmd.Context()); code != 0 {
				return fmt.Errorf("exited with code %d", code)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CHAINSTREAM_CONFIG"), "config file path (or set CHAINSTREAM_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) int {
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("streamURL", cfg.Stream.URL),
		zap.Int("maxRetries", cfg.Stream.MaxRetries),
		zap.String("port", cfg.Server.Port),
		zap.Bool("wsEnabled", cfg.WS.Enabled),
		zap.Bool("notifyEnabled", cfg.Notify.Enabled),
	)

	store := chain.NewStore()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// WebSocket relay (optional)
	var hub *ws.Hub
	var wsHandler http.Handler
	if cfg.WS.Enabled {
		encoder, err := ws.NewEncoder()
		if err != nil {
			logger.Error("failed to create encoder", zap.Error(err))
			return 1
		}
		defer encoder.Close()

		hub = ws.NewHub(encoder, logger)
		go hub.Run(ctx)
		wsHandler = hub
		logger.Info("WebSocket relay enabled")
	}

	var broadcaster chain.Broadcaster
	if hub != nil {
		broadcaster = hub
	}
	ingestor := chain.NewIngestor(store, broadcaster, logger)

	notifier := notify.New(&cfg.Notify, logger)
	watcher := notify.NewWatcher(notifier, logger)

	client, err := sse.NewClient(sse.Options{
		URL:           cfg.Stream.URL,
		BackoffBase:   cfg.Stream.BackoffBase(),
		BackoffCap:    cfg.Stream.BackoffCap(),
		MaxRetries:    cfg.Stream.MaxRetries,
		OnStateChange: watcher.OnStateChange,
	}, ingestor.HandleFrame, logger)
	if err != nil {
		logger.Error("failed to create stream client", zap.Error(err))
		return 1
	}

	streamDone := make(chan error, 1)
	go func() {
		streamDone <- client.Run(ctx)
	}()

	srv := server.NewServer(store, client, &cfg.Server, logger)
	router := server.NewRouter(srv, wsHandler, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt or terminal stream failure. The HTTP server keeps
	// serving the last snapshot after the stream gives up.
	select {
	case <-ctx.Done():
	case err := <-streamDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("stream terminated", zap.Error(err))
			watcher.StreamTerminated(cfg.Stream.MaxRetries, err)
		}
		<-ctx.Done()
	}

	logger.Info("shutting down server...")

	// Cancel context to stop the hub and stream client
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
