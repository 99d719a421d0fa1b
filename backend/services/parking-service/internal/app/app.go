package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libdb "autopark/backend/libs/db"
	libredis "autopark/backend/libs/redis"
	"autopark/backend/services/parking-service/internal/config"
	"autopark/backend/services/parking-service/internal/device"
	"autopark/backend/services/parking-service/internal/device/httpcontroller"
	"autopark/backend/services/parking-service/internal/device/simulator"
	httpserver "autopark/backend/services/parking-service/internal/http"
	"autopark/backend/services/parking-service/internal/http/handlers"
	"autopark/backend/services/parking-service/internal/http/middleware"
	"autopark/backend/services/parking-service/internal/idgen"
	"autopark/backend/services/parking-service/internal/lock"
	"autopark/backend/services/parking-service/internal/migration"
	"autopark/backend/services/parking-service/internal/realtime"
	"autopark/backend/services/parking-service/internal/repository"
	"autopark/backend/services/parking-service/internal/service"
)

const simulatorVendor = "simulator"

// App wires parking-service dependencies.
type App struct {
	server      *httpserver.Server
	hub         *realtime.Hub
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := migration.Apply(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	ids, err := idgen.New(cfg.IDs.Node)
	if err != nil {
		sqlDB.Close()
		redisClient.Close()
		return nil, fmt.Errorf("id generator: %w", err)
	}

	sessionStore := repository.NewStore(sqlDB)
	directory := repository.NewCachedDirectory(repository.NewSiteRepository(sqlDB), cfg.Sites.CacheTTL)
	locks := lock.NewManager(redisClient, cfg.Locks.TTL, logger)

	registry := device.NewRegistry(cfg.Devices.DefaultVendor).
		Register(simulatorVendor, simulator.New(logger))
	controller := httpcontroller.NewClient(cfg.Devices.Timeout, logger)
	for _, vendor := range cfg.HTTPVendorCodes() {
		registry.Register(vendor, controller)
	}
	logger.Info("device adapters registered", zap.Strings("vendors", registry.Vendors()))

	hub := realtime.NewHub(cfg.Realtime.PingInterval, cfg.Realtime.WriteTimeout, logger)

	orchestrator := service.New(service.Deps{
		Store:            sessionStore,
		Directory:        directory,
		Devices:          device.NewDispatcher(registry, cfg.Devices.Timeout, logger),
		Locks:            locks,
		LockKey:          lock.InboundKey,
		Publisher:        hub,
		Alerts:           service.NewAuditAlerts(sessionStore.Audit(), logger),
		IDs:              ids,
		Logger:           logger,
		GhostAlertWindow: cfg.Sites.GhostAlertWindow,
	})

	lanes := handlers.NewLaneEventsHandler(orchestrator, logger)
	sessions := handlers.NewSessionsHandler(orchestrator, logger)
	lockHandler := handlers.NewLocksHandler(locks, logger)

	routes := httpserver.Routes{
		Auth: middleware.OperatorAuth(cfg.Auth.JWTSecret),

		Inbound:        lanes.HandleInbound,
		Outbound:       lanes.HandleOutbound,
		PaymentSuccess: lanes.HandlePaymentSuccess,
		PaymentFailure: lanes.HandlePaymentFailure,
		PreSettle:      lanes.HandlePreSettle,

		GetSession:         sessions.HandleGet,
		ManualEntry:        sessions.HandleManualEntry,
		ManualExit:         sessions.HandleManualExit,
		CorrectPlate:       sessions.HandleCorrectPlate,
		CorrectEntryTime:   sessions.HandleCorrectEntryTime,
		ChangeVehicleClass: sessions.HandleChangeVehicleClass,
		RegisterDiscount:   sessions.HandleRegisterDiscount,
		ResetDiscounts:     sessions.HandleResetDiscounts,
		UpdateNote:         sessions.HandleUpdateNote,
		ResetPayment:       sessions.HandleResetPayment,
		Refund:             sessions.HandleRefund,
		Cancel:             sessions.HandleCancel,
		Runaway:            sessions.HandleRunaway,
		ForceComplete:      sessions.HandleForceComplete,
		Refresh:            sessions.HandleRefresh,

		LockAcquire: lockHandler.HandleAcquire,
		LockExtend:  lockHandler.HandleExtend,
		LockRelease: lockHandler.HandleRelease,
		LockStatus:  lockHandler.HandleStatus,

		Events: hub.ServeWS,
		Health: handlers.NewHealthHandler(map[string]func(ctx context.Context) error{
			"postgres": sqlDB.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		hub:         hub,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server and the realtime hub and returns when either stops.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.hub.Run(ctx) })
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
