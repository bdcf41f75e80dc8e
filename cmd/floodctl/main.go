// Command floodctl runs one-shot flood predictions, evaluations, and weather
// lookups against local artifacts without starting the service.
//
// Usage:
//
//	floodctl predict --workdir /srv/floodsense --format geojson > floods.geojson
//	floodctl scores --format csv > scores.csv
//	floodctl evaluate --threshold 0.4
//	floodctl model
//	floodctl weather Makassar
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/floodsense-service/internal/adapter/openweather"
	"github.com/couchcryptid/floodsense-service/internal/artifact"
	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/export"
	"github.com/couchcryptid/floodsense-service/internal/features"
	"github.com/couchcryptid/floodsense-service/internal/model"
	"github.com/couchcryptid/floodsense-service/internal/prediction"
	"github.com/couchcryptid/floodsense-service/internal/weather"
	"github.com/gocarina/gocsv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	workDir   string
	model     string
	scaler    string
	dataset   string
	batchSize int
	threshold float64
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "floodctl",
		Short:        "run flood predictions against local artifacts",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.workDir, "workdir", os.Getenv("WORKDIR"), "directory holding models/ and data/")
	flags.StringVar(&opts.model, "model", os.Getenv("MODEL_PATH"), "classifier artifact path (default <workdir>/models/"+artifact.DefaultModelFile+")")
	flags.StringVar(&opts.scaler, "scaler", os.Getenv("SCALER_PATH"), "scaler artifact path (default <workdir>/models/"+artifact.DefaultScalerFile+")")
	flags.StringVar(&opts.dataset, "dataset", os.Getenv("DATASET_PATH"), "inference dataset path (default <workdir>/data/"+artifact.DefaultDatasetFile+")")
	flags.IntVar(&opts.batchSize, "batch-size", model.DefaultBatchSize, "rows per inference batch")
	flags.Float64Var(&opts.threshold, "threshold", model.DefaultThreshold, "decision threshold in [0, 1]")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newPredictCmd(opts), newScoresCmd(opts), newEvaluateCmd(opts), newModelCmd(opts), newWeatherCmd(opts))
	return root
}

// logger writes to stderr so stdout stays machine readable.
func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		level = slog.LevelWarn
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", "floodctl")
}

// services wires the registry, pipeline, and engine the same way the service does.
type services struct {
	registry *model.Registry
	pipeline *features.Pipeline
	engine   *prediction.Engine
}

func (o *options) load(logger *slog.Logger) (*services, error) {
	store := artifact.NewStore(o.workDir)

	registry := model.NewRegistry(model.WithLogger(logger))
	if err := registry.SetBatchSize(o.batchSize); err != nil {
		return nil, err
	}
	if err := registry.SetThreshold(o.threshold); err != nil {
		return nil, err
	}
	if err := registry.LoadIfNeeded(store.ResolveModelPath(o.model)); err != nil {
		return nil, err
	}

	datasetPath := store.ResolveDatasetPath(o.dataset)
	pipeline := features.NewPipeline(datasetPath, store.ResolveScalerPath(o.scaler), features.WithLogger(logger))
	if err := pipeline.LoadDataset(datasetPath); err != nil {
		return nil, err
	}

	return &services{
		registry: registry,
		pipeline: pipeline,
		engine:   prediction.NewEngine(pipeline, registry, logger),
	}, nil
}

func newPredictCmd(opts *options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "classify the dataset and print flood-positive points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.load(opts.logger(cmd))
			if err != nil {
				return err
			}
			result, err := svc.engine.RunBatchPrediction(cmd.Context())
			if err != nil {
				return err
			}
			return writePoints(cmd.OutOrStdout(), format, domain.Coordinates(result.Positives))
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json, csv, or geojson")
	return cmd
}

func writePoints(w io.Writer, format string, points []domain.Coordinate) error {
	switch format {
	case "json":
		return writeJSON(w, points)
	case "csv":
		return export.WriteCSV(w, points)
	case "geojson":
		return export.WriteGeoJSON(w, points)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// scoreRow is one dataset row with its raw classifier score.
type scoreRow struct {
	Lat   float64      `json:"lat" csv:"lat"`
	Lon   float64      `json:"lon" csv:"lon"`
	Score float64      `json:"score" csv:"score"`
	Label domain.Label `json:"label" csv:"label"`
}

func newScoresCmd(opts *options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "print the raw classifier score and label for every dataset row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.load(opts.logger(cmd))
			if err != nil {
				return err
			}
			rows, err := svc.scores(cmd.Context())
			if err != nil {
				return err
			}
			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), rows)
			case "csv":
				return gocsv.Marshal(rows, cmd.OutOrStdout())
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or csv")
	return cmd
}

func (s *services) scores(ctx context.Context) ([]scoreRow, error) {
	coords, err := s.pipeline.Coordinates()
	if err != nil {
		return nil, err
	}
	feats, err := s.pipeline.ScaledFeatures()
	if err != nil {
		return nil, err
	}
	scores, err := s.registry.Scores(ctx, feats)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckRows("scores", len(coords), len(scores)); err != nil {
		return nil, err
	}

	labels := model.Threshold(scores, s.registry.Threshold())
	rows := make([]scoreRow, len(scores))
	for i, c := range coords {
		rows[i] = scoreRow{Lat: c.Lat, Lon: c.Lon, Score: scores[i], Label: labels[i]}
	}
	return rows, nil
}

func newEvaluateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "score predictions against the dataset target column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.load(opts.logger(cmd))
			if err != nil {
				return err
			}
			eval, err := svc.engine.Evaluate(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), eval)
		},
	}
}

func newModelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "model",
		Short: "load the classifier and print its description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := opts.load(opts.logger(cmd))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), svc.registry.Info())
		},
	}
}

func newWeatherCmd(opts *options) *cobra.Command {
	var apiKey, baseURL string
	cmd := &cobra.Command{
		Use:   "weather [regency]",
		Short: "print current weather and the daily forecast for a regency",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd)
			regency := domain.DefaultRegency
			if len(args) == 1 {
				regency = args[0]
			}

			var provider domain.WeatherProvider
			if apiKey != "" {
				provider = openweather.NewClient(apiKey, baseURL, 5*time.Second, logger, nil)
			}
			report, err := weather.NewService(provider, clockwork.NewRealClock(), logger).Dashboard(cmd.Context(), regency)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("OPENWEATHER_API_KEY"), "OpenWeatherMap API key; defaults are served without one")
	cmd.Flags().StringVar(&baseURL, "base-url", openweather.DefaultBaseURL, "OpenWeatherMap API base URL")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
