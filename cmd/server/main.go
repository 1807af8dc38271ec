package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	jwttoken "tcr/internal/jwt_token"
	"tcr/internal/platform/config"
	"tcr/internal/platform/httpserver"
	kafkaadmin "tcr/internal/platform/kafka/admin"
	"tcr/internal/platform/kafka/consumer"
	"tcr/internal/platform/kafka/producer"
	"tcr/internal/platform/logger"
	platformmetrics "tcr/internal/platform/metrics"
	"tcr/internal/platform/postgres"
	redisclient "tcr/internal/platform/redis"
	"tcr/internal/registry/arbitrator"
	registryhandler "tcr/internal/registry/handler"
	registrymetrics "tcr/internal/registry/metrics"
	"tcr/internal/registry/models"
	"tcr/internal/registry/ports"
	"tcr/internal/registry/ruling"
	registryservice "tcr/internal/registry/service"
	registrystore "tcr/internal/registry/store"
	id "tcr/pkg/domain"
	"tcr/pkg/platform/audit"
	auditconsumer "tcr/pkg/platform/audit/consumer"
	auditpublisher "tcr/pkg/platform/audit/publisher"
	"tcr/pkg/platform/audit/publishers/compliance"
	auditmemory "tcr/pkg/platform/audit/store/memory"
	auditpostgres "tcr/pkg/platform/audit/store/postgres"
	"tcr/pkg/platform/audit/worker"
	"tcr/pkg/platform/circuit"
	"tcr/pkg/platform/middleware/metadata"
	"tcr/pkg/platform/middleware/ratelimit"
	request "tcr/pkg/platform/middleware/request"
	"tcr/pkg/platform/middleware/requesttime"
)

// main loads configuration, wires the registry and runs the HTTP server next
// to the Kafka workers until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional backing services; nil fields are not configured.
type infra struct {
	db       *sql.DB
	redis    *redisclient.Client
	producer *producer.Producer
}

func (i *infra) close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	params, err := registryParams(cfg.Registry)
	if err != nil {
		return err
	}

	inf, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer inf.close()

	var (
		ledger     ledgerStore
		auditStore audit.Store
		outbox     *auditpostgres.Store
		svcOpts    []registryservice.Option
	)
	if inf.db != nil {
		pgStore := registrystore.NewPostgres(inf.db)
		outbox = auditpostgres.New(inf.db)
		ledger, auditStore = pgStore, outbox
		svcOpts = append(svcOpts, registryservice.WithStoreTx(newRegistryPostgresTx(inf.db, pgStore)))
	} else {
		ledger, auditStore = registrystore.NewInMemory(), auditmemory.NewInMemoryStore()
		log.Warn("no database configured, ledger is held in memory")
	}

	var guard registryservice.RulingGuard = registrystore.NewInMemoryRulingGuard()
	if inf.redis != nil {
		guard = registrystore.NewRedisRulingGuard(inf.redis.Client, registrystore.WithRulingTTL(cfg.Redis.RulingTTL))
	}

	compliancePublisher := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	securityPublisher := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(256),
		auditpublisher.WithLogger(log),
	)
	defer securityPublisher.Close()

	arb, central, err := newArbitrator(ctx, cfg.Arbitrator, ledger, log)
	if err != nil {
		return err
	}

	var regMetrics *registrymetrics.Metrics
	if cfg.Metrics.Enabled {
		regMetrics = registrymetrics.New(prometheus.DefaultRegisterer)
	}
	svcOpts = append(svcOpts,
		registryservice.WithLogger(log),
		registryservice.WithAuditPublisher(compliancePublisher),
		registryservice.WithSecurityPublisher(securityPublisher),
		registryservice.WithRulingGuard(guard),
	)
	if regMetrics != nil {
		svcOpts = append(svcOpts, registryservice.WithMetrics(regMetrics))
	}
	svc, err := registryservice.New(params, ledger, arb, svcOpts...)
	if err != nil {
		return err
	}

	handlerOpts := []registryhandler.Option{registryhandler.WithSecurityPublisher(securityPublisher)}
	if central != nil {
		if inf.producer != nil {
			central.SetDelivery(arbitrator.TopicDelivery{Publisher: inf.producer, Topic: cfg.Kafka.RulingTopic})
		} else {
			central.SetDelivery(arbitrator.SinkDelivery{Sink: svc})
		}
		handlerOpts = append(handlerOpts, registryhandler.WithRulingGiver(central))
	}
	if cfg.RateLimit.Enabled {
		var store ratelimit.Store = ratelimit.NewMemoryStore()
		if inf.redis != nil {
			store = ratelimit.NewRedisStore(inf.redis.Client)
		}
		limiter := ratelimit.New(store, cfg.RateLimit.Requests, cfg.RateLimit.Window, log)
		handlerOpts = append(handlerOpts, registryhandler.WithMutationLimit(limiter.Handler))
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	h := registryhandler.New(svc, jwttoken.NewJWTServiceAdapter(jwtService), cfg.Arbitrator.TokenHash, log, handlerOpts...)

	router := newRouter(cfg, log, h, inf)
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})

	if inf.producer != nil {
		if err := startKafkaWorkers(gctx, g, cfg, log, svc, outbox, inf.producer); err != nil {
			return err
		}
	}

	log.Info("tcr started",
		"addr", cfg.Server.Addr,
		"arbitrator_mode", cfg.Arbitrator.Mode,
		"postgres", inf.db != nil,
		"redis", inf.redis != nil,
		"kafka", inf.producer != nil,
	)
	return g.Wait()
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	inf := &infra{}
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		inf.db = db
		if cfg.Database.Migrate {
			if err := postgres.Migrate(db); err != nil {
				inf.close()
				return nil, err
			}
			log.Info("database migrations applied")
		}
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		inf.close()
		return nil, err
	}
	inf.redis = rc

	if cfg.KafkaEnabled() {
		p, err := producer.New(producer.Config{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
		}, log)
		if err != nil {
			inf.close()
			return nil, err
		}
		inf.producer = p
		if cfg.Kafka.EnsureTopics {
			topics := []string{
				cfg.Kafka.RulingTopic,
				cfg.Kafka.AuditTopicPrefix + "." + string(audit.CategoryCompliance),
				cfg.Kafka.AuditTopicPrefix + "." + string(audit.CategorySecurity),
			}
			if err := kafkaadmin.EnsureTopics(ctx, p.Client(), kafkaadmin.TopicSpec{}, topics...); err != nil {
				inf.close()
				return nil, err
			}
		}
	}
	return inf, nil
}

// registryParams parses the configured registry parameters.
func registryParams(rc config.RegistryConfig) (models.RegistryParams, error) {
	arbitratorAddr, err := id.ParseAddress(rc.Arbitrator)
	if err != nil {
		return models.RegistryParams{}, fmt.Errorf("registry.arbitrator: %w", err)
	}
	var governor id.Address
	if rc.FeeGovernor != "" {
		if governor, err = id.ParseAddress(rc.FeeGovernor); err != nil {
			return models.RegistryParams{}, fmt.Errorf("registry.fee_governor: %w", err)
		}
	}
	return models.RegistryParams{
		Arbitrator:                 arbitratorAddr,
		ArbitratorExtraData:        rc.ArbitratorExtraData,
		MetaEvidence:               rc.MetaEvidence,
		Blacklist:                  rc.Blacklist,
		AppendOnly:                 rc.AppendOnly,
		RechallengePossible:        rc.RechallengePossible,
		Stake:                      models.Amount(rc.Stake),
		ChallengePeriod:            rc.ChallengePeriod,
		ArbitrationFeesWaitingTime: rc.ArbitrationFeesWaitingTime,
		FeeGovernor:                governor,
		FeeStake:                   models.Amount(rc.FeeStake),
	}, nil
}

// ledgerStore is the registry store plus the dispute history used to seed the
// centralized arbitrator.
type ledgerStore interface {
	registryservice.Store
	LastDisputeID(ctx context.Context) (id.DisputeID, error)
}

// newArbitrator returns the configured arbitrator. central is set only in
// centralized mode, numbering disputes after the highest id in the ledger.
func newArbitrator(ctx context.Context, cfg config.ArbitratorConfig, ledger ledgerStore, log *slog.Logger) (ports.Arbitrator, *arbitrator.Centralized, error) {
	if cfg.Mode == "http" {
		breaker := circuit.New("arbitrator",
			circuit.WithFailureThreshold(cfg.FailureThreshold),
			circuit.WithSuccessThreshold(cfg.SuccessThreshold),
		)
		client, err := arbitrator.NewClient(cfg.BaseURL,
			arbitrator.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			arbitrator.WithBreaker(breaker),
			arbitrator.WithClientLogger(log),
		)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	}
	last, err := ledger.LastDisputeID(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load last dispute id: %w", err)
	}
	central := arbitrator.NewCentralized(models.Amount(cfg.Fee),
		arbitrator.WithLogger(log),
		arbitrator.WithLastDisputeID(last),
	)
	if last > 0 {
		log.Info("centralized arbitrator resuming dispute ids", "last_dispute_id", last.String())
	}
	return central, central, nil
}

func newRouter(cfg config.Config, log *slog.Logger, h *registryhandler.Handler, inf *infra) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if cfg.Metrics.Enabled {
		r.Use(platformmetrics.New(nil).Middleware)
		r.Handle("/metrics", platformmetrics.Handler())
	}
	r.Get("/health", healthHandler(inf))
	h.Register(r)
	return r
}

func startKafkaWorkers(
	ctx context.Context,
	g *errgroup.Group,
	cfg config.Config,
	log *slog.Logger,
	sink ports.RulingSink,
	outbox *auditpostgres.Store,
	prod *producer.Producer,
) error {
	rulings, err := consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.RulingGroup,
		Topics:  []string{cfg.Kafka.RulingTopic},
	}, ruling.NewHandler(sink, log), log)
	if err != nil {
		return err
	}
	g.Go(func() error { return rulings.Run(ctx) })

	if outbox == nil {
		return nil
	}

	relay := worker.NewRelay(outbox, prod, worker.CategoryTopics(cfg.Kafka.AuditTopicPrefix), log,
		worker.WithInterval(cfg.Audit.RelayInterval),
		worker.WithBatchSize(cfg.Audit.RelayBatchSize),
	)
	g.Go(func() error { return relay.Run(ctx) })

	events := auditconsumer.NewHandler(outbox, log)
	router := auditconsumer.NewRouter(cfg.Kafka.AuditTopicPrefix, log)
	router.Register(audit.CategoryCompliance, events)
	router.Register(audit.CategorySecurity, events)
	materialiser, err := consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.AuditGroup,
		Topics:  router.Topics(),
	}, router, log)
	if err != nil {
		return err
	}
	g.Go(func() error { return materialiser.Run(ctx) })
	return nil
}
