package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/pos-payments/internal"
	"github.com/frahmantamala/pos-payments/internal/core/events"
	"github.com/frahmantamala/pos-payments/internal/gateway"
	"github.com/frahmantamala/pos-payments/internal/gateway/mpesa"
	ledgerPostgres "github.com/frahmantamala/pos-payments/internal/ledger/postgres"
	"github.com/frahmantamala/pos-payments/internal/lock"
	orderPostgres "github.com/frahmantamala/pos-payments/internal/order/postgres"
	"github.com/frahmantamala/pos-payments/internal/reconciliation"
	"github.com/frahmantamala/pos-payments/internal/transport"
	"github.com/frahmantamala/pos-payments/internal/transport/rest"
	"github.com/frahmantamala/pos-payments/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that receives payment gateway callbacks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	Gorm           *gorm.DB
	Redis          *redis.Client
	EventBus       *events.EventBus
	Forwarder      *events.KafkaForwarder
	Router         *chi.Mux
	HealthChecker  *rest.HealthHandler
	WebhookHandler *reconciliation.WebhookHandler
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.HealthChecker, deps.WebhookHandler, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "default_gateway", deps.Config.Payment.DefaultGateway)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		shutdownDependencies(ctx, deps)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

// shutdownDependencies drains in-flight event handlers before closing what they write to.
func shutdownDependencies(ctx context.Context, deps *Dependencies) {
	if err := deps.EventBus.Wait(ctx); err != nil {
		deps.Logger.Warn("event handlers still running at shutdown", "error", err)
	}
	if deps.Forwarder != nil {
		if err := deps.Forwarder.Close(); err != nil {
			deps.Logger.Error("Kafka writer close error", "error", err)
		}
	}
	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			deps.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := deps.DB.Close(); err != nil {
		deps.Logger.Error("Database close error", "error", err)
	}
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(config.Database, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	checks := map[string]rest.Check{"database": rest.DatabaseCheck(db)}

	var locker lock.Locker = lock.Noop{}
	var redisClient *redis.Client
	if config.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Address,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		locker = lock.NewRedis(redisClient)
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
		log.Info("redis callback lock enabled", "address", config.Redis.Address)
	}

	eventBus := events.NewEventBus(log)
	var forwarder *events.KafkaForwarder
	if brokers := config.Events.Brokers(); len(brokers) > 0 {
		forwarder = events.NewKafkaForwarder(events.NewKafkaWriter(brokers, config.Events.KafkaTopic), log)
		forwarder.Register(eventBus, events.EventTypePaymentReconciled, events.EventTypePaymentCallbackFailed)
		log.Info("forwarding payment events to kafka", "brokers", brokers, "topic", config.Events.KafkaTopic)
	}

	gateways := gateway.NewRegistry(mpesa.New(config.Payment.PhoneRegion))
	if _, ok := gateways.Get(config.Payment.DefaultGateway); !ok {
		return nil, fmt.Errorf("default gateway %q is not registered (have %v)", config.Payment.DefaultGateway, gateways.Names())
	}

	service := reconciliation.NewService(
		gateways,
		reconciliation.NewGormTxManager(gormDB),
		reconciliation.NewOrderUpdater(orderPostgres.NewOrderRepository(), log),
		reconciliation.NewLedgerUpserter(ledgerPostgres.NewLedgerRepository(), config.Payment.Currency),
		log,
		reconciliation.Options{
			Timeout: config.Payment.CallbackTimeout,
			LockTTL: config.Redis.LockTTL,
			Locker:  locker,
			Events:  eventBus,
		},
	)

	webhookHandler := reconciliation.NewWebhookHandler(transport.NewBaseHandler(log), service, config.Payment.DefaultGateway)

	return &Dependencies{
		Config:         config,
		Logger:         log,
		DB:             db,
		Gorm:           gormDB,
		Redis:          redisClient,
		EventBus:       eventBus,
		Forwarder:      forwarder,
		Router:         chi.NewRouter(),
		HealthChecker:  rest.NewHealthHandler(checks),
		WebhookHandler: webhookHandler,
	}, nil
}

func sqlDriverName(cfg internal.DatabaseConfig) string {
	if cfg.GetDriver() == "mysql" {
		return "mysql"
	}
	return "pgx"
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	driver := sqlDriverName(cfg)

	dbConn, err := sqlx.Open(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the pool opened by initDB.
func initGorm(cfg internal.DatabaseConfig, db *sqlx.DB) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.GetDriver() {
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: db.DB})
	default:
		dialector = postgres.New(postgres.Config{Conn: db.DB})
	}

	return gorm.Open(dialector, &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
}
