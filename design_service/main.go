package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/niczy/designtree/internal/assets"
	"github.com/niczy/designtree/internal/assetserver"
	"github.com/niczy/designtree/internal/config"
	"github.com/niczy/designtree/internal/editor"
	"github.com/niczy/designtree/internal/logging"
	designservice "github.com/niczy/designtree/internal/services/design"
	"github.com/niczy/designtree/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "design_service",
	Short: "Serve the design tree editor over gRPC and its assets over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("loglevel"); level != "" {
			cfg.LogLevel = level
		}
		if err := logging.SetLogLevel(cfg.LogLevel); err != nil {
			return err
		}
		logging.UseJSON()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logging.Log)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.designtree.yaml)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "", "Set log level. Available: debug, info, warn, error, fatal")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// backend is everything run needs, built from the configuration.
type backend struct {
	store   storage.Storage
	objects storage.ObjectStore
	editor  *editor.Editor
	close   func() error
}

func openBackend(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*backend, error) {
	objects, err := openObjects(cfg)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := openStorage(ctx, cfg, objects)
	if err != nil {
		return nil, err
	}
	ed, err := editor.New(store, editor.Options{
		Objects:      objects,
		Checker:      checkerFor(cfg, objects),
		Logger:       logger,
		AssetBaseURL: cfg.AssetBaseURL,
		HistoryLimit: cfg.HistoryLimit,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	return &backend{store: store, objects: objects, editor: ed, close: closeStore}, nil
}

func openObjects(cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.ObjectsBackend {
	case "memory":
		return storage.NewInMemoryObjectStore(), nil
	case "s3":
		return storage.NewS3ObjectStore(newS3Client(cfg), cfg.S3Bucket), nil
	default:
		return nil, fmt.Errorf("unknown objects backend %q", cfg.ObjectsBackend)
	}
}

// newS3Client builds a client for AWS or, with an endpoint, for an S3-compatible server.
func newS3Client(cfg *config.Config) *s3.Client {
	opts := s3.Options{Region: cfg.S3Region}
	if cfg.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.S3Endpoint)
		opts.UsePathStyle = true
	}
	if cfg.S3AccessKey != "" {
		creds := aws.Credentials{AccessKeyID: cfg.S3AccessKey, SecretAccessKey: cfg.S3SecretKey, Source: "designtree config"}
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		}))
	}
	return s3.New(opts)
}

func openStorage(ctx context.Context, cfg *config.Config, objects storage.ObjectStore) (storage.Storage, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StorageBackend {
	case "memory":
		return storage.NewInMemoryStorage(), noop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rs := storage.NewRedisStorage(rdb, objects, cfg.RedisPrefix)
		if err := rs.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		if err := rs.RebuildIndexes(ctx); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("rebuild redis indexes: %w", err)
		}
		return rs, rdb.Close, nil
	case "sqlite", "postgres":
		st, err := storage.OpenSQL(ctx, storage.Dialect(cfg.StorageBackend), cfg.StorageDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// checkerFor checks over HTTP when assets are published under a URL, otherwise asks the object store.
func checkerFor(cfg *config.Config, objects storage.ObjectStore) assets.Checker {
	if strings.HasPrefix(cfg.AssetBaseURL, "http://") || strings.HasPrefix(cfg.AssetBaseURL, "https://") {
		return assets.NewCachedChecker(assets.NewHTTPChecker(nil))
	}
	return assets.NewCachedChecker(assets.NewStoreChecker(objects, cfg.AssetBaseURL))
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}
	grpcServer := designservice.NewGRPCServer(b.editor, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           assetserver.New(b.objects, b.editor, assetserver.Options{Logger: logger}).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.GRPCAddr).Info("design service listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("asset server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
