package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/project"
	"github.com/fyrsmithlabs/corpusd/internal/reconciler"
	"github.com/fyrsmithlabs/corpusd/internal/reranker"
	"github.com/fyrsmithlabs/corpusd/internal/retrieval"
	"github.com/fyrsmithlabs/corpusd/internal/telemetry"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// app wires configuration into the component graph shared by all commands.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	telemetry  *telemetry.Telemetry
	store      vectorstore.Store
	embedder   embeddings.Embedder
	manager    *project.Manager
	reconciler *reconciler.Reconciler
	planner    *retrieval.Planner
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}

	// Install the global otel providers before any instrumented component
	// is built; without them every span and instrument is a no-op.
	tel, err := telemetry.New(context.Background(), telemetry.Config{
		Enabled:         cfg.Telemetry.Enabled,
		Endpoint:        cfg.Telemetry.Endpoint,
		Protocol:        cfg.Telemetry.Protocol,
		ServiceName:     cfg.Telemetry.ServiceName,
		ServiceVersion:  cfg.Telemetry.ServiceVersion,
		Insecure:        cfg.Telemetry.Insecure,
		SampleRate:      cfg.Telemetry.SampleRate,
		MetricInterval:  cfg.Telemetry.MetricInterval,
		ShutdownTimeout: cfg.Telemetry.ShutdownTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:         cfg.Qdrant.Host,
		Port:         cfg.Qdrant.Port,
		UseTLS:       cfg.Qdrant.UseTLS,
		MaxRetries:   cfg.Qdrant.MaxRetries,
		RetryBackoff: cfg.Qdrant.RetryBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to vector index: %w", err)
	}

	embedder, err := embeddings.NewGateway(embeddings.GatewayConfig{
		BaseURL:           cfg.Embedding.BaseURL,
		Dimension:         cfg.Embedding.Dimension,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating embedding gateway: %w", err)
	}

	splitter, err := chunker.New(cfg.Sync.ChunkSize, cfg.Sync.Overlap)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	manager := project.NewManager(cfg.DataDir, logger)

	rec := reconciler.New(store, embedder, splitter, nil, reconciler.Config{
		BatchSize:    cfg.Sync.BatchSize,
		MaxInFlight:  cfg.Sync.MaxInFlight,
		MaxRetries:   cfg.Sync.MaxRetries,
		RetryBackoff: cfg.Sync.RetryBackoff,
	}, logger)

	var rr reranker.Reranker
	if cfg.Retrieval.Rerank {
		rr = reranker.NewSimpleReranker()
	}

	planner := retrieval.New(store, embedder, rr, retrieval.PlannerConfig{
		BaseK:    cfg.Retrieval.BaseK,
		MaxK:     cfg.Retrieval.MaxK,
		DocTypes: cfg.Retrieval.DocTypes,
	}, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		telemetry:  tel,
		store:      store,
		embedder:   embedder,
		manager:    manager,
		reconciler: rec,
		planner:    planner,
	}, nil
}

func (a *app) close() {
	if err := a.manager.Close(); err != nil {
		a.logger.Warn("closing project manager", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing vector store", zap.Error(err))
	}
	if err := a.telemetry.Shutdown(context.Background()); err != nil {
		a.logger.Warn("shutting down telemetry", zap.Error(err))
	}
	_ = a.logger.Sync()
}
