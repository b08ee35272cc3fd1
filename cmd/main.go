package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "bazaar/docs"
	"bazaar/pkg/auth"
	"bazaar/pkg/config"
	"bazaar/pkg/db"
	"bazaar/pkg/events"
	"bazaar/pkg/keeper"
	"bazaar/pkg/ledger"
	"bazaar/pkg/logger"
	"bazaar/pkg/market"
	"bazaar/pkg/metrics"
	"bazaar/pkg/registry"
	"bazaar/pkg/sendemail"
	"bazaar/pkg/trading"
	"bazaar/pkg/txn"
)

// @title           Bazaar API
// @version         1.0
// @description     Escrowed marketplace for registry assets: fixed-price listings, auctions and offers

// @BasePath  /

// @schemes   http https

// @securityDefinitions.apikey  CallerSignature
// @in                          header
// @name                        X-Caller-Signature

// backend bundles the storage-dependent collaborators.
type backend struct {
	tx       txn.Transactor
	registry registry.Registry
	ledger   ledger.Ledger
	store    market.Store
	journal  events.Journal
	close    func()
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("storage setup failed", zap.Error(err))
	}
	defer b.close()

	hub := events.NewHub(zl)
	notifiers := events.Fanout{events.NewRecorder(b.journal, zl), hub}

	var observer trading.Observer
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		observer = m
		notifiers = append(notifiers, m)
	}

	if cfg.Email.SendGridAPIKey != "" && cfg.Email.AlertRecipient != "" {
		alerts := sendemail.NewAlerts(sendemail.NewEmailService(cfg.Email), cfg.Email.AlertRecipient, zl)
		go alerts.Run(ctx)
		notifiers = append(notifiers, alerts)
	}

	engine := market.New(
		market.Config{
			Admin:              cfg.Market.Admin,
			Operator:           cfg.Market.Operator,
			MinAuctionDuration: cfg.Market.MinAuctionDuration,
			MinOfferDuration:   cfg.Market.MinOfferDuration,
		},
		b.registry, b.ledger, b.store,
		market.WithTransactor(b.tx),
		market.WithNotifier(notifiers),
		market.WithLogger(zl.Named("market")),
	)

	if cfg.KeeperSchedule != "" {
		k := keeper.New(engine, cfg.Market.Keeper, zl.Named("keeper"))
		if err := k.Start(cfg.KeeperSchedule); err != nil {
			zl.Fatal("keeper schedule invalid", zap.String("schedule", cfg.KeeperSchedule), zap.Error(err))
		}
		defer k.Stop()
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginzap.Ginzap(zl, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(zl, true))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", auth.HeaderAddress, auth.HeaderTimestamp, auth.HeaderSignature},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	if m != nil {
		router.Use(m.Middleware())
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	authn := auth.NewVerifier(cfg.Auth.MaxSkew).Middleware()

	registry.NewRegistryHandler(b.registry, authn).RegisterRoutes(router)
	ledger.NewLedgerHandler(b.ledger, cfg.EnableFaucet).RegisterRoutes(router)
	events.NewEventsHandler(hub, b.journal, zl.Named("events")).RegisterRoutes(router)
	trading.NewTradingHandler(engine, authn, observer, zl.Named("trading")).RegisterRoutes(router)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.TLS.EnableTLS),
			zap.Bool("memory_mode", cfg.MemoryMode()),
		)
		if err := serve(srv, cfg); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}

	zl.Info("server exiting")
}

func openBackend(ctx context.Context, cfg config.Config, zl *zap.Logger) (*backend, error) {
	operator := cfg.Market.Operator

	if cfg.MemoryMode() {
		zl.Warn("DATABASE_URL not set, state is kept in memory")
		return &backend{
			tx:       txn.NewMemoryTransactor(),
			registry: registry.NewMemoryRegistry(operator),
			ledger:   ledger.NewMemoryLedger(operator),
			store:    market.NewMemoryStore(cfg.Market.DefaultFeeBps),
			journal:  events.NewMemoryJournal(),
			close:    func() {},
		}, nil
	}

	pool, err := db.Connect(ctx, cfg.Database, zl)
	if err != nil {
		return nil, err
	}

	store := market.NewPostgresStore(pool)
	if err := store.Init(ctx, cfg.Market.DefaultFeeBps); err != nil {
		pool.Close()
		return nil, err
	}

	return &backend{
		tx:       txn.NewPostgresTransactor(pool),
		registry: registry.NewPostgresRegistry(pool, operator),
		ledger:   ledger.NewPostgresLedger(pool, operator),
		store:    store,
		journal:  events.NewPostgresJournal(pool),
		close:    pool.Close,
	}, nil
}
