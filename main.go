package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"churnguard/api"
	"churnguard/artifact"
	"churnguard/config"
	"churnguard/db"
	qhttp "churnguard/http"
	"churnguard/logging"
	"churnguard/monitoring"
	"churnguard/natsrpc"
	"churnguard/schema"
)

func main() {
	configPath := flag.StringP("config", "c", "config.yaml", "path to the YAML config file")
	modelVersion := flag.String("model-version", "", "model version to serve, overrides config and "+config.ModelVersionEnv)
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *modelVersion != "" {
		cfg.Model.Version = *modelVersion
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("churnguard stopped", zap.Error(err))
	}
	logger.Info("exiting")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// 2. Load the model artifact
	model, err := artifact.NewStore(cfg.Model.Dir).Load(cfg.Model.Version)
	if err != nil {
		return fmt.Errorf("load model %s: %w", cfg.Model.Version, err)
	}
	meta := model.Metadata()
	if meta.Version != "" && meta.Version != model.Version() {
		logger.Warn("metadata version differs from artifact directory",
			zap.String("directory", model.Version()),
			zap.String("metadata_version", meta.Version))
	}
	logger.Info("model loaded",
		zap.String("model_version", model.Version()),
		zap.String("model_name", meta.ModelName),
		zap.Float64("roc_auc", meta.ROCAUC),
		zap.Int("features", model.NumFeatures()))

	table, err := schema.TableByName(cfg.Model.RenameTable, model.FeatureNames())
	if err != nil {
		return err
	}

	// 3. Observability
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	hub := monitoring.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	opts := []api.Option{
		api.WithThreshold(cfg.Model.Threshold),
		api.WithMaxBatch(cfg.Http.MaxBatch),
		api.WithLogger(logger.Named("predict")),
		api.WithMetrics(metrics),
		api.WithPublisher(hub),
	}

	// 4. Optional audit database
	var audit qhttp.AuditLog
	if cfg.Database.Path != "" {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()
		err = database.RecordModelLoad(ctx, db.ModelLoad{
			ModelName:    meta.ModelName,
			Version:      model.Version(),
			ROCAUC:       meta.ROCAUC,
			TrainedOn:    meta.TrainedOn,
			TrainedAt:    meta.TrainedAt,
			FeatureCount: model.NumFeatures(),
		})
		if err != nil {
			logger.Warn("failed to record model load", zap.Error(err))
		}
		opts = append(opts, api.WithRecorder(database))
		audit = database
		logger.Info("audit database initialized", zap.String("path", cfg.Database.Path))
	}

	service, err := api.NewService(model, table, opts...)
	if err != nil {
		return err
	}

	// 5. Optional NATS responder
	if cfg.Nats.URL != "" {
		conn, err := natsrpc.Connect(cfg.Nats.URL, logger.Named("nats"))
		if err != nil {
			return err
		}
		defer closeNats(conn)
		responder := natsrpc.NewResponder(service, cfg.Nats.Subject, cfg.Nats.Queue, cfg.Http.Timeout, logger.Named("nats"))
		if err := responder.Start(ctx, conn); err != nil {
			return err
		}
		defer responder.Stop()
	}

	// 6. HTTP server
	router := qhttp.NewRouter(qhttp.Deps{
		Service:   service,
		TableName: cfg.Model.RenameTable,
		Audit:     audit,
		Hub:       hub,
		Gatherer:  reg,
		Timeout:   cfg.Http.Timeout,
		Logger:    logger.Named("http"),
	})
	serverConfig := qhttp.DefaultServerConfig()
	serverConfig.Port = cfg.Http.Port
	serverConfig.Timeout = cfg.Http.Timeout
	serverConfig.MaxBodyBytes = cfg.Http.MaxBodyBytes
	server := qhttp.NewServer(serverConfig, router, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 7. Graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func closeNats(conn *nats.Conn) {
	if err := conn.Drain(); err != nil {
		conn.Close()
	}
}
