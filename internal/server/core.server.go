package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Izanagi078/Final-Work/internal/config"
	hgrpc "github.com/Izanagi078/Final-Work/internal/handler/grpc"
	hrest "github.com/Izanagi078/Final-Work/internal/handler/rest"
	"github.com/Izanagi078/Final-Work/internal/pub"
	"github.com/Izanagi078/Final-Work/internal/repository"
	"github.com/Izanagi078/Final-Work/internal/usecase"
	"github.com/Izanagi078/Final-Work/pkg/cache"
	"github.com/Izanagi078/Final-Work/pkg/credential"
	"github.com/Izanagi078/Final-Work/pkg/jwtutil"
	"github.com/Izanagi078/Final-Work/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

// LedgerServer owns every long lived resource of the process.
type LedgerServer struct {
	cfg    config.AppConfig
	logger *zap.Logger

	store  repository.LedgerStore
	rdb    *redis.Client
	kafka  *kafka.Writer
	cache  *cache.Cache
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

// NewLedgerServer connects the backends selected in cfg and assembles the
// REST and gRPC surfaces. Nothing listens until Run.
func NewLedgerServer(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (_ *LedgerServer, err error) {
	if err := validateBackends(cfg); err != nil {
		return nil, err
	}

	s := &LedgerServer{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	// --- Redis client ---
	if cfg.RedisAddr != "" {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       0,
		})
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without it", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
	}

	// --- Ledger store ---
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory ledger store, data is lost on exit")
		s.store = repository.NewMemoryStore()
	case "postgres":
		dbpool, err := config.ConnectDB(logger)
		if err != nil {
			return nil, err
		}
		s.store = repository.NewLedgerRepo(dbpool)
		if err := repository.EnsureSchema(ctx, dbpool); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	// --- Cache ---
	var snap cache.Snapshotter
	switch cfg.CacheBackend {
	case "redis":
		snap = cache.NewRedisSnapshot(s.rdb, cfg.CacheKey, logger)
	case "file":
		snap = cache.NewFileSnapshot(cfg.CacheFile)
	}
	s.cache = cache.New(snap, logger, cache.Options{Freshness: cfg.CacheFreshness})
	// a missing or corrupt snapshot is logged by Load and the cache starts empty
	_ = s.cache.Load(ctx)

	// --- Event publishers ---
	var publishers pub.Multi
	if s.rdb != nil {
		publishers = append(publishers, pub.NewRedisPublisher(s.rdb, logger))
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaBrokers[0] != "" {
		s.kafka = pub.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publishers = append(publishers, pub.NewKafkaPublisher(s.kafka))
	}

	// --- Usecases ---
	ids := utils.NewIDGenerator()
	tokens := jwtutil.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	engine := usecase.NewLedgerEngine(s.store, s.cache, publishers, ids, usecase.EngineConfig{OpTimeout: cfg.OpTimeout}, logger)
	accountUC := usecase.NewAccountUsecase(s.store, s.cache, credential.NewBcryptHasher(bcrypt.DefaultCost), tokens, ids, publishers, logger)

	// --- REST ---
	router := hrest.NewRouter(
		hrest.NewLedgerRestHandler(accountUC, engine, logger),
		hrest.NewAuthMiddleware(tokens, cfg.AdminKey, logger),
		hrest.RouterOptions{
			Redis:           s.rdb,
			LoginRateLimit:  cfg.LoginRateLimit,
			LoginRateWindow: cfg.LoginRateWindow,
			LoginBlockFor:   cfg.LoginBlockFor,
		},
	)
	s.http = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- gRPC ---
	s.grpc, s.health = hgrpc.NewServer(hgrpc.NewLedgerGRPCHandler(engine, accountUC), tokens)

	return s, nil
}

// validateBackends rejects backend choices before anything is connected.
func validateBackends(cfg config.AppConfig) error {
	switch cfg.StoreBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	switch cfg.CacheBackend {
	case "file":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("CACHE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
	return nil
}

// Run serves REST and gRPC until ctx is cancelled or a listener fails, then
// shuts everything down.
func (s *LedgerServer) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		s.close()
		return fmt.Errorf("listen on %s: %w", s.cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("ledger gRPC server listening", zap.String("addr", s.cfg.GRPCAddr))
		if err := s.grpc.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		s.logger.Info("ledger REST server listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down ledger service")
	case err = <-errCh:
		s.logger.Error("ledger service stopped", zap.Error(err))
	}

	s.shutdown()
	return err
}

func (s *LedgerServer) shutdown() {
	s.health.SetServingStatus(hgrpc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}

	s.close()
}

func (s *LedgerServer) close() {
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Warn("kafka writer close", zap.Error(err))
		}
	}
	if s.store != nil {
		s.store.Close()
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
}
