package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/domain"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/core/port"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/breaker"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/config"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/database"
	kafkainfra "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/kafka"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/logger"
	redisinfra "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/redis"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/security"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/infra/telemetry"
	postgresrepo "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository/postgres"
	redisrepo "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/repository/redis"
	transportgrpc "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/grpc"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/grpc/interceptors"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/http/middleware"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/http/routes"
	"github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/usecase"
)

const ephemeralKeyBits = 2048

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	infra      *infrastructure
	tracing    *telemetry.TracerProvider
	producer   *kafkainfra.Producer
	audit      *usecase.BestEffortAudit
	sweeper    *usecase.BlacklistSweeper
	grpcServer *transportgrpc.Server
	grpcAddr   string
}

// infrastructure holds the connections shared by the API and the sweeper job.
type infrastructure struct {
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	breaker  *breaker.CacheBreaker
	metrics  *telemetry.Metrics
	repos    *postgresrepo.Repositories
	cache    *redisrepo.BlacklistRepository
	versions *redisrepo.TokenVersionRepository
}

func openInfrastructure(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*infrastructure, error) {
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	redisClient := redisinfra.NewClient(ctx, cfg.Redis, log)

	cb := breaker.New(breaker.Options{
		Probe:           redisClient.HealthCheck,
		RecheckInterval: cfg.Revocation.BreakerRecheck,
		OnStateChange: func(available bool) {
			if available {
				log.Info("revocation cache recovered")
			} else {
				log.Warn("revocation cache unavailable, using durable blacklist")
			}
		},
	})

	return &infrastructure{
		logger:  log,
		pool:    pool,
		redis:   redisClient,
		breaker: cb,
		metrics: metrics,
		repos:   postgresrepo.NewRepositories(pool, security.Argon2Verifier{}),
		cache:   redisrepo.NewBlacklistRepository(redisClient.Client(), cfg.Redis.KeyPrefix),
		versions: redisrepo.NewTokenVersionRepository(redisClient.Client(), cfg.Redis.KeyPrefix,
			cfg.Revocation.TokenVersionTTL),
	}, nil
}

func (i *infrastructure) close() {
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			i.logger.Warn("close redis", zap.Error(err))
		}
	}
	if i.pool != nil {
		i.pool.Close()
	}
}

func (i *infrastructure) newSweeper(cfg *config.AppConfig) *usecase.BlacklistSweeper {
	return usecase.NewBlacklistSweeper(i.repos.Blacklist, i.cache, i.breaker,
		cfg.Revocation.SweepInterval, cfg.Revocation.SweepReplayBatchSize, i.logger.Named("sweeper")).
		WithTokenVersions(i.repos.TokenVersions, i.versions)
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var tracing *telemetry.TracerProvider
	if cfg.Telemetry.TracingEnabled {
		tracing, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	infra, err := openInfrastructure(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	keyProvider, err := loadKeys(cfg.JWT, log)
	if err != nil {
		infra.close()
		return nil, err
	}
	jwtManager := security.NewJWTManager(keyProvider, security.JWTOptions{
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	redisClient := infra.redis.Client()
	store := usecase.NewRevocationStore(usecase.RevocationStoreOptions{
		Cache:                infra.cache,
		Durable:              infra.repos.Blacklist,
		Versions:             infra.versions,
		DurableVersions:      infra.repos.TokenVersions,
		Sessions:             redisrepo.NewSessionRepository(redisClient, cfg.Redis.KeyPrefix),
		Breaker:              infra.breaker,
		Metrics:              infra.metrics,
		Logger:               log.Named("revocation"),
		MinBlacklistTTL:      cfg.Revocation.MinBlacklistTTL,
		FallbackBlacklistTTL: cfg.Revocation.DefaultBlacklistTTL,
		DurableQueryTimeout:  cfg.Postgres.QueryTimeout,
	})

	policy := domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(cfg.Revocation.DegradationPolicy))
	issuer := usecase.NewTokenIssuer(jwtManager, store, usecase.TokenIssuerOptions{
		AccessTTL:     cfg.JWT.AccessTokenTTL,
		RefreshTTL:    cfg.JWT.RefreshTokenTTL,
		RememberMeTTL: cfg.JWT.RememberMeTTL,
		Policy:        policy,
		Logger:        log,
	})
	validator := usecase.NewTokenValidator(jwtManager, store, policy, infra.metrics, log)
	sessions := usecase.NewSessionRegistry(store, log)

	sink, producer := newAuditSink(cfg, log)
	audit := usecase.NewBestEffortAudit(sink, cfg.Audit.Timeout, infra.metrics, log.Named("audit"))

	authService := usecase.NewAuthService(infra.repos.Users, issuer, validator, sessions, store, audit, log)

	var tracerProvider trace.TracerProvider
	if tracing != nil {
		tracerProvider = tracing.TracerProvider()
	}

	var grpcSrv *transportgrpc.Server
	if cfg.GRPC.Enabled {
		grpcMetrics, err := interceptors.NewGRPCMetrics(interceptors.GRPCMetricsOptions{Registerer: prometheus.DefaultRegisterer})
		if err != nil {
			infra.close()
			return nil, fmt.Errorf("init grpc metrics: %w", err)
		}
		grpcSrv, err = transportgrpc.NewServer(transportgrpc.ServerDependencies{
			Service:        authService,
			JWKS:           jwtManager,
			Metrics:        grpcMetrics,
			TracerProvider: tracerProvider,
			Logger:         log.Named("grpc"),
		})
		if err != nil {
			infra.close()
			return nil, fmt.Errorf("init grpc server: %w", err)
		}
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		infra.close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        authService,
		JWKS:        jwtManager,
		RateLimiter: middleware.NewRateLimiter(redisrepo.NewRateLimitRepository(redisClient, cfg.Redis.KeyPrefix), log),
		HTTPMetrics: httpMetrics,
		Database:    infra.pool,
		Cache:       infra.redis,
	})

	return &Application{
		cfg:        cfg,
		engine:     engine,
		logger:     log,
		infra:      infra,
		tracing:    tracing,
		producer:   producer,
		audit:      audit,
		sweeper:    infra.newSweeper(cfg),
		grpcServer: grpcSrv,
		grpcAddr:   fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port),
	}, nil
}

func loadKeys(cfg config.JWTSettings, log *zap.Logger) (*security.StaticKeyProvider, error) {
	provider, err := security.LoadKeyDirectory(cfg.KeyDirectory)
	if err == nil {
		return provider, nil
	}
	if !cfg.AllowEphemeralKey {
		return nil, fmt.Errorf("load signing keys: %w", err)
	}

	log.Warn("signing keys unavailable, generating an ephemeral key",
		zap.String("key_directory", cfg.KeyDirectory),
		zap.Error(err),
	)
	provider, err = security.NewEphemeralKeyProvider(ephemeralKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return provider, nil
}

func newAuditSink(cfg *config.AppConfig, log *zap.Logger) (port.AuditSink, *kafkainfra.Producer) {
	if !cfg.Kafka.Enabled {
		log.Info("kafka disabled, audit events go to the log")
		return kafkainfra.NewLogSink(log), nil
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, audit events go to the log", zap.Error(err))
		return kafkainfra.NewLogSink(log), nil
	}

	log.Info("kafka audit publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewAuditPublisher(producer, cfg.App, log), producer
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.infra.close()
	defer a.flush()

	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		a.sweeper.Run(sweeperCtx)
	}()
	defer func() {
		stopSweeper()
		<-sweeperDone
	}()

	grpcErrCh := make(chan error, 1)
	if a.grpcServer != nil {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))
		go func() {
			if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				grpcErrCh <- fmt.Errorf("run grpc server: %w", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting token service",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrCh:
	case runErr = <-grpcErrCh:
	}

	a.logger.Info("shutting down token service")
	timeout := a.cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.grpcServer != nil {
		a.grpcServer.Health.SetServingStatus(transportgrpc.TokenServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		a.grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}
	return runErr
}

// flush waits for in-flight audit submissions and drains exporters.
func (a *Application) flush() {
	a.audit.Wait()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}

	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
}

// SweeperJob runs the blacklist sweeper outside the API process.
type SweeperJob struct {
	infra   *infrastructure
	sweeper *usecase.BlacklistSweeper
}

// NewSweeperJob connects the revocation tiers needed by the sweeper.
func NewSweeperJob(ctx context.Context, cfg *config.AppConfig) (*SweeperJob, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	infra, err := openInfrastructure(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &SweeperJob{infra: infra, sweeper: infra.newSweeper(cfg)}, nil
}

// RunOnce performs a single purge and replay pass.
func (j *SweeperJob) RunOnce(ctx context.Context) (usecase.SweepResult, error) {
	return j.sweeper.RunOnce(ctx)
}

// Run sweeps on the configured interval until ctx is cancelled.
func (j *SweeperJob) Run(ctx context.Context) {
	j.sweeper.Run(ctx)
}

// Close releases the job's connections.
func (j *SweeperJob) Close() {
	_ = j.infra.logger.Sync()
	j.infra.close()
}
