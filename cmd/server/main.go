package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caroarena/caro-server-go/internal/config"
	"github.com/caroarena/caro-server-go/internal/game"
	"github.com/caroarena/caro-server-go/internal/game/pieces"
	"github.com/caroarena/caro-server-go/internal/replication"
	"github.com/caroarena/caro-server-go/internal/server"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting caro server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	catalog, err := loadCatalog(ctx, cfg.Catalog)
	if err != nil {
		logger.Fatal("failed to load piece catalog", zap.Error(err))
	}
	logger.Info("piece catalog loaded",
		zap.String("source", cfg.Catalog.Source),
		zap.Int("pieces", catalog.Len()),
	)

	engine := game.NewEngine(logger.Named("engine"), catalog, game.EngineConfig{
		BoardSize:   cfg.Game.BoardSize,
		TurnLimit:   cfg.Game.TurnTimeout,
		BotDelay:    cfg.Game.BotDelay,
		BotFollowUp: cfg.Game.BotFollowUp,
	})
	authority := replication.NewAuthority(logger.Named("authority"), engine)
	seats := server.NewSeatTokens(cfg.Seats.BcryptCost)

	matchServer := server.NewMatchServer(logger.Named("grpc"), authority, seats, cfg.DefaultDifficulty())
	grpcServer, health := server.NewGRPCServer(cfg.Server.GRPC, logger.Named("grpc"), matchServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("address", cfg.Server.GRPC.Address), zap.Error(err))
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("address", cfg.Server.GRPC.Address))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	hub := server.NewHub(logger.Named("ws"), authority, seats, cfg.Server.WebSocket)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebSocket.Path, hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.WebSocket.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("websocket server listening",
			zap.String("address", cfg.Server.WebSocket.Address),
			zap.String("path", cfg.Server.WebSocket.Path),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server error", zap.Error(err))
		}
	}()

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	health.Shutdown()
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket server shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	for _, id := range engine.MatchIDs() {
		_ = authority.RemoveMatch(id)
		seats.Forget(id)
	}

	logger.Info("caro server stopped")
}

func loadCatalog(ctx context.Context, cfg config.CatalogConfig) (*pieces.Catalog, error) {
	switch cfg.Source {
	case "file":
		return pieces.LoadCatalogFile(cfg.Path)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return pieces.LoadCatalogDB(ctx, pool)
	default:
		return pieces.Default(), nil
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
