package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/krau/civicvision/config"
	"github.com/krau/civicvision/logging"
	"github.com/krau/civicvision/onnx"
	"github.com/krau/civicvision/server"
	"github.com/krau/civicvision/service"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.C()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("civicvision stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("Starting civicvision")

	libPath := onnx.LibPath(cfg.Libonnx)
	logger.Info("Using ONNX Runtime library", zap.String("path", libPath))
	if err := onnx.Init(libPath); err != nil {
		return err
	}
	defer onnx.Destroy() //nolint:errcheck

	modelPath := filepath.Join(cfg.ModelDir, cfg.ModelFileName)
	classifier, err := onnx.NewClassifier(onnx.Options{
		ModelPath:      modelPath,
		Width:          cfg.ImageWidth,
		Height:         cfg.ImageHeight,
		Replicas:       cfg.Workers,
		IntraOpThreads: cfg.IntraOpThreads,
	})
	if err != nil {
		return fmt.Errorf("failed to load classifier: %w", err)
	}
	defer classifier.Close()

	var classesPath string
	if cfg.ModelClassesName != "" {
		classesPath = filepath.Join(cfg.ModelDir, cfg.ModelClassesName)
	}
	catalog, err := service.LoadCatalog(cfg.InlineClasses(), classesPath)
	if err != nil {
		return err
	}

	normalizer, err := service.NewNormalizer(cfg.ImageWidth, cfg.ImageHeight, cfg.Resample, service.Scaling(cfg.Scaling))
	if err != nil {
		return err
	}

	var opts []service.Option
	if cache := newCache(ctx, cfg, logger); cache != nil {
		defer cache.Close()
		digest, err := modelDigest(modelPath)
		if err != nil {
			return err
		}
		opts = append(opts, service.WithCache(cache, digest))
	}

	predictor, err := service.NewPredictor(normalizer, classifier, catalog, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to build predictor: %w", err)
	}
	logger.Info("Model loaded",
		zap.String("model", modelPath),
		zap.Strings("classes", catalog),
		zap.Int("width", cfg.ImageWidth),
		zap.Int("height", cfg.ImageHeight),
		zap.String("scaling", cfg.Scaling),
		zap.Int("workers", cfg.Workers))

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(predictor, logger, server.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		RequestTimeout: cfg.RequestTimeoutDuration(),
	})
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	logger.Info("Listening on", zap.String("address", cfg.Addr()))
	return server.Serve(ctx, srv, nil, cfg.ShutdownTimeoutDuration(), logger)
}

// newCache returns nil when no cache is configured or Redis is unreachable;
// the service then predicts every request.
func newCache(ctx context.Context, cfg config.Config, logger *zap.Logger) *service.RedisCache {
	if cfg.Cache.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("result cache disabled, redis unreachable", zap.String("addr", cfg.Cache.Addr), zap.Error(err))
		client.Close()
		return nil
	}
	logger.Info("result cache enabled", zap.String("addr", cfg.Cache.Addr), zap.Duration("ttl", cfg.CacheTTL()))
	return service.NewRedisCache(client, cfg.Cache.Prefix, cfg.CacheTTL())
}

// modelDigest hashes the model file so cached results never outlive the
// weights that produced them.
func modelDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash model: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
