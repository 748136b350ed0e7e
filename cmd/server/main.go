// server runs the nova workspace HTTP API and the ops gRPC server (health).
package main

import (
	"context"
	"crypto"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"nova-workspace/backend/internal/audit"
	auditrepo "nova-workspace/backend/internal/audit/repository"
	bootstraphandler "nova-workspace/backend/internal/bootstrap/handler"
	bootstrapservice "nova-workspace/backend/internal/bootstrap/service"
	"nova-workspace/backend/internal/config"
	"nova-workspace/backend/internal/db"
	healthhandler "nova-workspace/backend/internal/health/handler"
	"nova-workspace/backend/internal/logging"
	membershiprepo "nova-workspace/backend/internal/membership/repository"
	"nova-workspace/backend/internal/memstore"
	policyengine "nova-workspace/backend/internal/policy/engine"
	profilerepo "nova-workspace/backend/internal/profile/repository"
	"nova-workspace/backend/internal/security"
	"nova-workspace/backend/internal/server"
	"nova-workspace/backend/internal/server/middleware"
	"nova-workspace/backend/internal/telemetry"
	telemetryotel "nova-workspace/backend/internal/telemetry/otel"
	"nova-workspace/backend/internal/telemetry/producer"
	tenantrepo "nova-workspace/backend/internal/tenant/repository"
	workspacehandler "nova-workspace/backend/internal/workspace/handler"
	workspaceservice "nova-workspace/backend/internal/workspace/service"
)

// devKeyPath is where a generated development signing key is written so novactl can issue tokens.
const devKeyPath = ".nova-dev-key.pem"

type stores struct {
	profiles    profilerepo.Repository
	tenants     tenantrepo.Repository
	memberships membershiprepo.Repository
	audit       auditrepo.Repository
	pinger      healthhandler.Pinger
	close       func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "nova-workspace", cfg.OTLPInsecure)
	if err != nil {
		logger.Fatal("otel", zap.Error(err))
	}
	providers.SetGlobal()
	metrics, err := telemetryotel.NewBootstrapMetrics(providers.MeterProvider)
	if err != nil {
		logger.Fatal("otel metrics", zap.Error(err))
	}

	st, err := openStores(cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer func() { _ = st.close() }()

	tokens, err := loadTokens(cfg, logger)
	if err != nil {
		logger.Fatal("jwt keys", zap.Error(err))
	}

	policyModule := ""
	if cfg.BootstrapPolicyFile != "" {
		b, err := os.ReadFile(cfg.BootstrapPolicyFile)
		if err != nil {
			logger.Fatal("bootstrap policy", zap.String("path", cfg.BootstrapPolicyFile), zap.Error(err))
		}
		policyModule = string(b)
	}
	evaluator := policyengine.NewOPAEvaluator(policyModule, cfg.AllowedDomainsList(), logger)
	if err := evaluator.HealthCheck(ctx); err != nil {
		logger.Fatal("bootstrap policy", zap.Error(err))
	}

	events := telemetry.Fanout{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.ProvisioningTopic)
	if kafkaProducer != nil {
		events = append(events, kafkaProducer)
		logger.Info("provisioning events enabled", zap.Strings("brokers", cfg.KafkaBrokersList()), zap.String("topic", cfg.ProvisioningTopic))
	}

	bootSvc := bootstrapservice.NewService(st.profiles, st.tenants, st.memberships, evaluator,
		bootstrapservice.WithAudit(audit.NewLogger(st.audit, middleware.ClientIP, logger)),
		bootstrapservice.WithEvents(events),
		bootstrapservice.WithMetrics(metrics),
		bootstrapservice.WithLogger(logger),
	)
	wsSvc := workspaceservice.NewService(st.profiles, st.tenants, st.memberships, st.audit)
	health := healthhandler.NewServer(st.pinger, evaluator, logger)

	var validator middleware.TokenValidator
	if tokens != nil {
		validator = tokens
	}
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.HTTPDeps{
			Tokens: validator,
			Health: health,
			Routes: []server.RouteRegistrar{
				bootstraphandler.NewHandler(bootSvc, cfg.BootstrapTimeoutDuration(), logger),
				workspacehandler.NewHandler(wsSvc, cfg.QueryTimeoutDuration(), cfg.IsProduction(), logger),
			},
			Logger: logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		grpcSrv = server.NewGRPCServer(server.GRPCDeps{Health: health, Reflection: !cfg.IsProduction(), Logger: logger})
		go func() {
			logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Fatal("grpc serve", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}

	// Let in-flight async audit and event emits finish before closing their sinks.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Warn("kafka producer close", zap.Error(err))
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// openStores connects to Postgres when DATABASE_URL is set, else uses the in-memory store.
func openStores(cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		logger.Warn("DATABASE_URL not set; using in-memory store (data is lost on restart)")
		m := memstore.New()
		return &stores{
			profiles:    m.Profiles(),
			tenants:     m.Tenants(),
			memberships: m.Memberships(),
			audit:       m.AuditLogs(),
			pinger:      m,
			close:       func() error { return nil },
		}, nil
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		profiles:    profilerepo.NewPostgresRepository(conn),
		tenants:     tenantrepo.NewPostgresRepository(conn),
		memberships: membershiprepo.NewPostgresRepository(conn),
		audit:       auditrepo.NewPostgresRepository(conn),
		pinger:      conn,
		close:       conn.Close,
	}, nil
}

// loadTokens builds the bearer token verifier. Outside production, a missing key pair is replaced
// by a generated one written to devKeyPath. In production a missing public key disables /api (503).
func loadTokens(cfg *config.Config, logger *zap.Logger) (*security.TokenProvider, error) {
	if cfg.JWTPublicKey == "" && cfg.JWTPrivateKey == "" {
		if cfg.IsProduction() {
			logger.Error("JWT_PUBLIC_KEY not set; API requests will answer 503 AUTH_UNCONFIGURED")
			return nil, nil
		}
		key, pemText, err := security.GenerateDevKey()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(devKeyPath, []byte(pemText), 0o600); err != nil {
			return nil, err
		}
		logger.Warn("no JWT keys configured; generated a development signing key",
			zap.String("path", devKeyPath), zap.String("hint", "JWT_PRIVATE_KEY="+devKeyPath+" novactl token <user-id> <email>"))
		return security.NewTokenProvider(key, nil, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
	}

	var (
		key crypto.Signer
		pub crypto.PublicKey
		err error
	)
	if cfg.JWTPrivateKey != "" {
		if key, err = security.ParsePrivateKey(cfg.JWTPrivateKey); err != nil {
			return nil, err
		}
	}
	if cfg.JWTPublicKey != "" {
		if pub, err = security.ParsePublicKey(cfg.JWTPublicKey); err != nil {
			return nil, err
		}
	}
	return security.NewTokenProvider(key, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}
