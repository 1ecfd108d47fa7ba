// Command server wires the tranche services behind one HTTP listener.
// Stores degrade gracefully: without Postgres the ledger and registry run
// in memory, without Redis rolling windows stay in process, and without
// Kafka audit events only reach the log.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	adminhandler "tranche/internal/admin/handler"
	"tranche/internal/audit"
	auditkafka "tranche/internal/audit/kafka"
	"tranche/internal/authz"
	compliancehandler "tranche/internal/compliance/handler"
	compliancemetrics "tranche/internal/compliance/metrics"
	complianceservice "tranche/internal/compliance/service"
	compliancestore "tranche/internal/compliance/store"
	distributionhandler "tranche/internal/distribution/handler"
	distributionmetrics "tranche/internal/distribution/metrics"
	distributionservice "tranche/internal/distribution/service"
	distributionstore "tranche/internal/distribution/store"
	"tranche/internal/identity"
	ledgerhandler "tranche/internal/ledger/handler"
	ledgermetrics "tranche/internal/ledger/metrics"
	ledgerservice "tranche/internal/ledger/service"
	ledgerstore "tranche/internal/ledger/store"
	orderbookhandler "tranche/internal/orderbook/handler"
	orderbookmetrics "tranche/internal/orderbook/metrics"
	orderbookservice "tranche/internal/orderbook/service"
	orderbookstore "tranche/internal/orderbook/store"
	"tranche/internal/paymentasset"
	"tranche/internal/platform/config"
	"tranche/internal/platform/httpserver"
	"tranche/internal/platform/logger"
	"tranche/internal/platform/middleware"
	"tranche/internal/platform/postgres"
	platformredis "tranche/internal/platform/redis"
	registryhandler "tranche/internal/registry/handler"
	registrymetrics "tranche/internal/registry/metrics"
	registryservice "tranche/internal/registry/service"
	registrystore "tranche/internal/registry/store"
	id "tranche/pkg/domain"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(cfg.PostgresDSN)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		log.Info("postgres connected")
	}

	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		log.Info("redis connected")
	}

	publisher, err := auditkafka.New(cfg.KafkaBrokers, "")
	if err != nil {
		return err
	}
	defer publisher.Close()

	var sink audit.Publisher
	if publisher != nil {
		sink = publisher
		log.Info("kafka audit publisher connected")
	}
	auditor := audit.NewEmitter(log, sink)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	roles := authz.NewStore()
	verifier := identity.NewInMemory()
	payments := paymentasset.NewInMemory()

	// Ledger and the compliance engine that gates every movement.
	var ledgerStore ledgerservice.Store
	var balances complianceservice.BalanceReader
	if db != nil {
		pg := ledgerstore.NewPostgres(db)
		ledgerStore, balances = pg, pg
	} else {
		mem := ledgerstore.NewInMemory()
		ledgerStore, balances = mem, mem
	}

	var windows complianceservice.WindowStore
	if rdb != nil {
		windows = compliancestore.NewRedisWindows(rdb.Client)
	} else {
		windows = compliancestore.NewInMemoryWindows()
	}

	compliance := complianceservice.New(
		compliancestore.NewInMemory(), windows, balances, roles,
		complianceservice.WithLogger(log),
		complianceservice.WithMetrics(compliancemetrics.New(reg)),
		complianceservice.WithAudit(auditor),
	)

	ledger := ledgerservice.New(ledgerStore, compliance, verifier, roles,
		ledgerservice.WithLogger(log),
		ledgerservice.WithMetrics(ledgermetrics.New(reg)),
		ledgerservice.WithAudit(auditor),
	)

	// Registry, with a service account authorized to mint initial supply.
	registryAccount := id.AccountID(uuid.New())
	if err := roles.Grant(ctx, registryAccount, authz.RoleTransferAgent); err != nil {
		return err
	}

	var regStore registryservice.Store
	if db != nil {
		regStore = registrystore.NewPostgres(db)
	} else {
		regStore = registrystore.NewInMemory()
	}
	registry := registryservice.New(regStore, ledger, roles, registryAccount,
		registryservice.WithLogger(log),
		registryservice.WithMetrics(registrymetrics.New(reg)),
		registryservice.WithAudit(auditor),
	)

	paymentAssets, err := parsePaymentAssets(cfg.PaymentAssets)
	if err != nil {
		return err
	}

	feeRecipient, err := resolveFeeRecipient(cfg.FeeRecipient, log)
	if err != nil {
		return err
	}

	// Order book escrow account: holds units and payment funds between
	// order creation and settlement, so it moves through the ledger like
	// any other verified holder.
	bookAccount := id.AccountID(uuid.New())
	if err := roles.Grant(ctx, bookAccount, authz.RoleTransferAgent); err != nil {
		return err
	}
	verifier.Register(ctx, bookAccount)

	book, err := orderbookservice.New(
		orderbookstore.NewInMemory(), ledger, payments, registry, roles, bookAccount,
		orderbookservice.FeeConfig{
			MakerFeeBps: cfg.MakerFeeBps,
			TakerFeeBps: cfg.TakerFeeBps,
			Recipient:   feeRecipient,
		},
		paymentAssets,
		orderbookservice.WithLogger(log),
		orderbookservice.WithMetrics(orderbookmetrics.New(reg)),
		orderbookservice.WithAudit(auditor),
	)
	if err != nil {
		return err
	}

	distributionAccount := id.AccountID(uuid.New())
	distributions := distributionservice.New(
		distributionstore.NewInMemory(), ledger, payments, roles, distributionAccount,
		distributionservice.WithLogger(log),
		distributionservice.WithMetrics(distributionmetrics.New(reg)),
		distributionservice.WithAudit(auditor),
	)

	log.Info("service accounts provisioned",
		"registry", registryAccount,
		"orderbook_escrow", bookAccount,
		"distribution_escrow", distributionAccount,
		"fee_recipient", feeRecipient,
	)

	router := newRouter(cfg, log, reg, routeHandlers{
		ledger:        ledgerhandler.New(ledger, log),
		registry:      registryhandler.New(registry, log),
		compliance:    compliancehandler.New(compliance, log),
		orderbook:     orderbookhandler.New(book, log),
		distributions: distributionhandler.New(distributions, log),
		admin:         adminhandler.New(roles, verifier, log),
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type routeHandlers struct {
	ledger        *ledgerhandler.Handler
	registry      *registryhandler.Handler
	compliance    *compliancehandler.Handler
	orderbook     *orderbookhandler.Handler
	distributions *distributionhandler.Handler
	admin         *adminhandler.Handler
}

func newRouter(cfg config.Server, log *slog.Logger, reg *prometheus.Registry, h routeHandlers) http.Handler {
	validator := middleware.NewValidator(cfg.JWTSigningKey)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RequestTime)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Holder-facing API: the bearer token establishes the acting account,
	// role checks happen in the services.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		h.ledger.Register(r)
		h.registry.Register(r)
		h.compliance.Register(r)
		h.orderbook.Register(r)
		h.distributions.Register(r)
	})

	// Bootstrap surface: role grants and identity registration, gated by
	// the shared admin token.
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, log))
		h.admin.Register(r)
	})

	return r
}

func parsePaymentAssets(raw string) ([]id.AssetID, error) {
	var out []id.AssetID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		asset, err := id.ParseAssetID(part)
		if err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	return out, nil
}

// resolveFeeRecipient parses the configured fee account, or provisions an
// ephemeral one so default fees have somewhere to land in development.
func resolveFeeRecipient(raw string, log *slog.Logger) (id.AccountID, error) {
	if raw != "" {
		return id.ParseAccountID(raw)
	}
	account := id.AccountID(uuid.New())
	log.Warn("TRANCHE_FEE_RECIPIENT not set, fees accrue to an ephemeral account", "account", account)
	return account, nil
}
