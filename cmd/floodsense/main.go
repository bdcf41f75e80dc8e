package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/floodsense-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/floodsense-service/internal/adapter/kafka"
	"github.com/couchcryptid/floodsense-service/internal/adapter/openweather"
	"github.com/couchcryptid/floodsense-service/internal/adapter/postgres"
	"github.com/couchcryptid/floodsense-service/internal/artifact"
	"github.com/couchcryptid/floodsense-service/internal/config"
	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/features"
	"github.com/couchcryptid/floodsense-service/internal/model"
	"github.com/couchcryptid/floodsense-service/internal/observability"
	"github.com/couchcryptid/floodsense-service/internal/prediction"
	"github.com/couchcryptid/floodsense-service/internal/state"
	"github.com/couchcryptid/floodsense-service/internal/weather"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "floodsense")
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store := artifact.NewStore(cfg.WorkDir)
	modelPath := store.ResolveModelPath(cfg.ModelPath)
	scalerPath := store.ResolveScalerPath(cfg.ScalerPath)
	datasetPath := store.ResolveDatasetPath(cfg.DatasetPath)

	registry := model.Instance(model.WithLogger(logger), model.WithMetrics(metrics))
	if err := registry.SetBatchSize(cfg.BatchSize); err != nil {
		logger.Error("invalid batch size", "error", err)
		os.Exit(1)
	}
	if err := registry.SetThreshold(cfg.DecisionThreshold); err != nil {
		logger.Error("invalid decision threshold", "error", err)
		os.Exit(1)
	}
	// The service stays up without a model so /readyz can report why.
	if err := registry.LoadIfNeeded(modelPath); err != nil {
		logger.Warn("starting without a model", "path", modelPath, "error", err)
	}

	pipeline := features.NewPipeline(datasetPath, scalerPath,
		features.WithLogger(logger), features.WithMetrics(metrics))
	if err := pipeline.LoadDataset(datasetPath); err != nil {
		logger.Warn("starting without a dataset", "path", datasetPath, "error", err)
	}
	logger.Info("feature pipeline ready", "dataset", datasetPath, "scaler_active", pipeline.ScalerActive())

	engine := prediction.NewEngine(pipeline, registry, logger)

	var sinks []state.Option
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		sinks = append(sinks, state.WithSink("kafka", publisher))
		logger.Info("kafka run publishing enabled", "topic", cfg.KafkaPredictionTopic)
	}

	ready := httpadapter.ReadinessChecks{registry, pipeline}

	var recorder *postgres.Recorder
	var history httpadapter.History
	if cfg.DatabaseURL != "" {
		recorder, err = connectRecorder(cfg)
		if err != nil {
			logger.Error("postgres recorder disabled", "error", err)
		} else {
			sinks = append(sinks, state.WithSink("postgres", recorder))
			history = recorder
			ready = append(ready, recorder)
			logger.Info("postgres run recording enabled")
		}
	}

	bridge := state.NewBridge(engine, logger, metrics, append(sinks, state.WithClock(clock))...)

	var provider domain.WeatherProvider
	if cfg.OpenWeatherEnabled {
		client := openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.OpenWeatherBaseURL, cfg.OpenWeatherTimeout, logger, metrics)
		cached, err := openweather.NewCachedProvider(client, cfg.OpenWeatherCacheSize, cfg.OpenWeatherCacheTTL, clock, metrics)
		if err != nil {
			logger.Error("failed to create weather cache", "error", err)
			os.Exit(1)
		}
		provider = cached
		logger.Info("openweather enabled", "cache_size", cfg.OpenWeatherCacheSize, "cache_ttl", cfg.OpenWeatherCacheTTL)
	} else {
		logger.Info("openweather disabled, serving default weather")
	}
	weatherSvc := weather.NewService(provider, clock, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ready:             ready,
		Predictions:       bridge,
		Evaluator:         engine,
		Model:             registry,
		GroundTruth:       pipeline,
		Weather:           weatherSvc,
		History:           history,
		PredictionTimeout: cfg.PredictionTimeout,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := bridge.Wait(shutdownCtx); err != nil {
		logger.Error("prediction runs still in flight", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Error("postgres close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func connectRecorder(cfg *config.Config) (*postgres.Recorder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	recorder, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := recorder.EnsureSchema(ctx); err != nil {
		_ = recorder.Close()
		return nil, err
	}
	return recorder, nil
}
