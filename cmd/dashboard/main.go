// Dashboard backend entry point: wires the record and document stores, the
// context cache, the LLM provider, and the generation service, and serves a
// small HTTP surface (health, metrics, streaming generation).
//
// Usage:
//
//	dashboard serve                       # start the server
//	dashboard serve --config config.yaml  # with a config file
//	dashboard migrate up                  # apply relational schema migrations
//	dashboard migrate docs                # sweep legacy version documents
//	dashboard version                     # show version information
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/config"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/generation"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/cache"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/database"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/identity"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/metrics"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/migration"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/internal/telemetry"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/llm"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/store/documents"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/store/records"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/streaming"
	"github.com/cowelltechlab/ipse-student-dashboard-backend-sub000/version"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		fmt.Printf("dashboard %s\n  Build Time: %s\n  Git Commit: %s\n", Version, BuildTime, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Student dashboard backend

Usage:
  dashboard <command> [options]

Commands:
  serve     Start the backend server
  migrate   Migration commands
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)
  --addr <addr>     Listen address (default :8080)

Migration subcommands:
  migrate up        Apply relational schema migrations
  migrate docs      Migrate legacy version documents to rendered HTML`)
}

func loadConfig(configPath string) *config.Config {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	addr := fs.String("addr", ":8080", "Listen address")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting dashboard backend",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	if cfg.Database.MigrationsEnabled {
		if err := migration.Up(cfg.Database.DSN, logger); err != nil {
			logger.Fatal("schema migration failed", zap.Error(err))
		}
	}
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("open relational store", zap.Error(err))
	}
	recordStore := records.NewStore(db, logger)

	ctx := context.Background()
	docClient, err := documents.Connect(ctx, cfg.Documents, logger)
	if err != nil {
		logger.Fatal("connect document store", zap.Error(err))
	}
	versionStore := docClient.Versions()
	if err := versionStore.EnsureIndexes(ctx); err != nil {
		logger.Fatal("ensure document indexes", zap.Error(err))
	}

	var contextCache *cache.ContextCache
	if cfg.Cache.Enabled {
		contextCache = cache.New(cfg.Cache, logger)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector("ipse", registry)

	provider := llm.NewOpenAICompatibleProvider(llm.OpenAICompatibleConfig{
		Name:    cfg.LLM.Provider,
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)

	prompts, err := generation.NewPromptBuilder(cfg.Generation.PromptTokenBudget, logger)
	if err != nil {
		logger.Fatal("build prompt templates", zap.Error(err))
	}

	manager := version.NewManager(versionStore, collector, logger, version.ManagerConfig{
		FinalizeRetries:    cfg.Generation.FinalizeRetries,
		MigrateParallelism: cfg.Generation.MigrateParallelism,
	})
	aggregator := generation.NewAggregator(recordStore, docClient.Profiles(), contextCache, logger)
	service := generation.NewService(
		provider,
		aggregator,
		prompts,
		generation.NewAssembler(collector, logger),
		generation.NewValidator(collector),
		manager,
		recordStore,
		collector,
		telemetry.Tracer("generation"),
		logger,
		generation.ServiceConfig{
			Model:             cfg.LLM.Model,
			MaxTokens:         cfg.LLM.MaxTokens,
			Timeout:           cfg.LLM.Timeout,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		},
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/generate/stream", streamHandler(service, cfg.Auth.JWTSecret, logger))

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", zap.String("addr", *addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if contextCache != nil {
		contextCache.Close()
	}
	if err := docClient.Close(shutdownCtx); err != nil {
		logger.Warn("document store close", zap.Error(err))
	}
	if otelProviders != nil {
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	logger.Info("dashboard backend stopped")
}

// streamRequest is the first client frame on the generation websocket.
type streamRequest struct {
	AssignmentID      string   `json:"assignment_id"`
	PriorVersionID    string   `json:"prior_version_id,omitempty"`
	SelectedOptionIDs []string `json:"selected_option_ids,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

// streamHandler accepts a websocket, authenticates the bearer token, reads
// one generation request, and forwards assembler notifications to the client
// while the generation runs.
func streamHandler(service *generation.Service, jwtSecret string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ident, err := identity.FromToken(token, jwtSecret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept failed", zap.Error(err))
			return
		}
		notifier := streaming.NewWebSocketNotifier(conn, logger)
		defer notifier.Close()

		_, data, err := conn.Read(r.Context())
		if err != nil {
			logger.Warn("read stream request", zap.Error(err))
			return
		}
		var req streamRequest
		if err := json.Unmarshal(data, &req); err != nil {
			logger.Warn("decode stream request", zap.Error(err))
			return
		}

		_, err = service.GenerateStream(r.Context(), generation.GenerateRequest{
			AssignmentID:      req.AssignmentID,
			PriorVersionID:    req.PriorVersionID,
			SelectedOptionIDs: req.SelectedOptionIDs,
			Notes:             req.Notes,
			ModifierID:        ident.UserID,
			Mode:              generation.ModeStreaming,
		}, notifier.Notify(r.Context()))
		if err != nil {
			logger.Warn("streaming generation failed",
				zap.String("assignment_id", req.AssignmentID), zap.Error(err))
		}
	}
}

func runMigrate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "migrate requires a subcommand: up | docs")
		os.Exit(1)
	}
	sub := args[0]

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args[1:])

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	switch sub {
	case "up":
		if err := migration.Up(cfg.Database.DSN, logger); err != nil {
			logger.Fatal("schema migration failed", zap.Error(err))
		}
		logger.Info("schema migrations applied")
	case "docs":
		ctx := context.Background()
		docClient, err := documents.Connect(ctx, cfg.Documents, logger)
		if err != nil {
			logger.Fatal("connect document store", zap.Error(err))
		}
		defer docClient.Close(ctx)
		if err := docClient.Versions().EnsureIndexes(ctx); err != nil {
			logger.Fatal("ensure document indexes", zap.Error(err))
		}
		manager := version.NewManager(docClient.Versions(), nil, logger, version.ManagerConfig{
			FinalizeRetries:    cfg.Generation.FinalizeRetries,
			MigrateParallelism: cfg.Generation.MigrateParallelism,
		})
		summary, err := manager.MigrateAll(ctx)
		if err != nil {
			logger.Fatal("bulk migration failed", zap.Error(err))
		}
		fmt.Printf("scanned=%d migrated=%d failed=%d\n", summary.Scanned, summary.Migrated, summary.Failed)
		for _, e := range summary.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func initLogger(cfg config.LogConfig) *zap.Logger {
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

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
