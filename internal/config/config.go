package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Artifact locations. Empty paths resolve under WorkDir.
	WorkDir     string
	ModelPath   string
	ScalerPath  string
	DatasetPath string

	// Inference settings.
	BatchSize         int
	DecisionThreshold float64
	PredictionTimeout time.Duration

	// OpenWeatherMap configuration.
	OpenWeatherAPIKey    string
	OpenWeatherEnabled   bool
	OpenWeatherBaseURL   string
	OpenWeatherTimeout   time.Duration
	OpenWeatherCacheSize int
	OpenWeatherCacheTTL  time.Duration

	// Prediction run publishing.
	KafkaEnabled         bool
	KafkaBrokers         []string
	KafkaPredictionTopic string
	KafkaBatchSize       int
	KafkaBatchTimeout    time.Duration

	// DatabaseURL enables the PostgreSQL run recorder when set.
	DatabaseURL string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := parseBatchSize()
	if err != nil {
		return nil, err
	}

	threshold, err := parseThreshold()
	if err != nil {
		return nil, err
	}

	predictionTimeout, err := parsePositiveDuration("PREDICTION_TIMEOUT", "2m")
	if err != nil {
		return nil, err
	}

	owmTimeout, err := parsePositiveDuration("OPENWEATHER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	owmCacheTTL, err := parsePositiveDuration("OPENWEATHER_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}

	kafkaBatchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	kafkaBatchTimeout, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	owmKey := os.Getenv("OPENWEATHER_API_KEY")
	owmEnabled := owmKey != ""
	if v := os.Getenv("OPENWEATHER_ENABLED"); v != "" {
		owmEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		WorkDir:     os.Getenv("WORKDIR"),
		ModelPath:   os.Getenv("MODEL_PATH"),
		ScalerPath:  os.Getenv("SCALER_PATH"),
		DatasetPath: os.Getenv("DATASET_PATH"),

		BatchSize:         batchSize,
		DecisionThreshold: threshold,
		PredictionTimeout: predictionTimeout,

		OpenWeatherAPIKey:    owmKey,
		OpenWeatherEnabled:   owmEnabled,
		OpenWeatherBaseURL:   sharedcfg.EnvOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
		OpenWeatherTimeout:   owmTimeout,
		OpenWeatherCacheSize: parseCacheSize(),
		OpenWeatherCacheTTL:  owmCacheTTL,

		KafkaEnabled:         os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaPredictionTopic: sharedcfg.EnvOrDefault("KAFKA_PREDICTION_TOPIC", "flood-predictions"),
		KafkaBatchSize:       kafkaBatchSize,
		KafkaBatchTimeout:    kafkaBatchTimeout,

		DatabaseURL: os.Getenv("DATABASE_URL"),
	}

	if cfg.OpenWeatherEnabled && cfg.OpenWeatherAPIKey == "" {
		return nil, errors.New("OPENWEATHER_ENABLED is true but OPENWEATHER_API_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaPredictionTopic == "" {
		return nil, errors.New("KAFKA_PREDICTION_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parseBatchSize() (int, error) {
	s := sharedcfg.EnvOrDefault("PREDICT_BATCH_SIZE", "32")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid PREDICT_BATCH_SIZE %q: must be a positive integer", s)
	}
	return n, nil
}

func parseThreshold() (float64, error) {
	s := sharedcfg.EnvOrDefault("DECISION_THRESHOLD", "0.5")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("invalid DECISION_THRESHOLD %q: must be within [0, 1]", s)
	}
	return v, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseCacheSize() int {
	if s := os.Getenv("OPENWEATHER_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 256
}
