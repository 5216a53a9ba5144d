// Package main implements the salepipe binary: one invocation loads one
// day of the fashion store sales feed from object storage into the
// normalized warehouse schema, then exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/fashionstore/salepipe/internal/config"
	"github.com/fashionstore/salepipe/internal/extract"
	"github.com/fashionstore/salepipe/internal/load"
	"github.com/fashionstore/salepipe/internal/pipeline"
	"github.com/fashionstore/salepipe/internal/storage"
	"github.com/fashionstore/salepipe/internal/warehouse"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		date        string
		contextDate string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&date, "date", "", "Target date to load, YYYYMMDD")
	flag.StringVar(&contextDate, "context-date", "", "Fallback date from the scheduler context, YYYYMMDD")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "salepipe - daily fashion store sales loader\n\n")
		fmt.Fprintf(os.Stderr, "Usage: salepipe [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  salepipe --date 20230218\n")
		fmt.Fprintf(os.Stderr, "  salepipe --config /etc/salepipe/config.yaml --date 20230218\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SALEPIPE_WAREHOUSE_DSN   Warehouse connection string (or DATABASE_URL)\n")
		fmt.Fprintf(os.Stderr, "  SALEPIPE_SOURCE_BUCKET   Feed bucket (or MINIO_BUCKET_NAME)\n")
		fmt.Fprintf(os.Stderr, "  SALEPIPE_SOURCE_OBJECT_KEY  Feed object key (or FILE_NAME)\n")
		fmt.Fprintf(os.Stderr, "  SALEPIPE_S3_ENDPOINT     Custom S3/MinIO endpoint\n")
		fmt.Fprintf(os.Stderr, "  SALEPIPE_LOG_LEVEL       Log level (debug, info, warn, error)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("salepipe version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	log := newLogger(cfg.LogLevel)

	// One run per invocation; a signal aborts the run and rolls back any
	// open warehouse transaction.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	summary, err := run(ctx, cfg, date, contextDate, log)
	if err != nil {
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}
	log.WithField("status", summary.Status).Info("run finished")
}

func run(ctx context.Context, cfg *config.Config, date, contextDate string, log *logrus.Entry) (*pipeline.Summary, error) {
	db, err := warehouse.Open(ctx, cfg.Warehouse.Driver, cfg.Warehouse.DSN, warehouse.Options{
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := warehouse.Migrate(ctx, db); err != nil {
		return nil, err
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var stager *extract.Stager
	if cfg.Staging.Enabled {
		stager, err = extract.NewStager(cfg.Staging.Dir)
		if err != nil {
			return nil, err
		}
	}

	p := pipeline.New(
		pipeline.NewLoadGuard(db, cfg.Warehouse.Driver, cfg.Load.MaxRetries, cfg.Load.RetryBackoff, log),
		extract.NewExtractor(store, log),
		stager,
		load.NewLoader(db, cfg.Warehouse.Driver, cfg.Load.ErrorRateThreshold, log),
		pipeline.NewLogSink(log),
		log,
	)

	return p.Run(ctx, pipeline.Params{
		Date:        date,
		ContextDate: contextDate,
		Bucket:      cfg.Source.Bucket,
		ObjectKey:   cfg.Source.ObjectKey,
	})
}

// newStorage selects the object storage backend from configuration.
func newStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Storage.Path)
	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
			MaxRetries:   cfg.Load.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func newLogger(level string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return logrus.NewEntry(log).WithField("app", "salepipe")
}
