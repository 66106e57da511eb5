// Package server assembles the SubKeeper server: the store client, the
// orchestration services and the HTTP and gRPC health transports, and runs
// them until a shutdown signal arrives.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/dbx"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/archive"
	"github.com/dmitrijs2005/subkeeper/internal/server/auth"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/httpserver"
	"github.com/dmitrijs2005/subkeeper/internal/server/notify"
	"github.com/dmitrijs2005/subkeeper/internal/server/registry"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/subkeeper/internal/server/grpc"
)

// ResyncQueue is the queue the registry consumer reads owner-changed events from.
const ResyncQueue = "subkeeper.registry.resync"

type App struct {
	config     *config.Config
	logger     logging.Logger
	pool       *dbx.Pool
	dispatcher *notify.Dispatcher
	broker     *registry.Broker
	sync       *registry.Synchronizer

	accounts      *services.AccountService
	subscriptions *services.SubscriptionService
}

// NewApp opens the store, applies migrations and wires every component.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	ledger, err := auth.NewLedger(c.SecretKey, c.SessionTokenValidityDuration, c.ResetTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("credential ledger: %w", err)
	}

	pool, err := dbx.Open(c.DatabaseDSN, dbx.PoolConfig{
		MaxOpenConns:   c.DBMaxOpenConns,
		MaxIdleConns:   c.DBMaxIdleConns,
		AcquireTimeout: c.DBAcquireTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, pool.DB()); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	app := &App{config: c, logger: logger, pool: pool}

	var sender notify.Sender = notify.NewLogSender(logger)
	if c.SMTPHost != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.SMTPFrom,
		})
	}
	app.dispatcher = notify.NewDispatcher(sender, c.NotificationWorkers, c.NotificationQueueSize, logger)

	var exporter archive.Exporter
	if c.S3Bucket != "" {
		exporter, err = archive.NewS3Exporter(ctx, archive.S3Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("archive export: %w", err)
		}
	}
	writer := archive.NewWriter(repos, exporter, logger)

	app.sync = registry.NewSynchronizer(pool, repos, logger)
	var hook registry.Hook = registry.NewSyncHook(app.sync, logger)
	if c.AMQPURL != "" {
		app.broker, err = registry.DialBroker(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("registry broker: %w", err)
		}
		hook = registry.NewAMQPHook(app.broker.Channel, c.AMQPExchange, hook, logger)
	}

	app.accounts = services.NewAccountService(services.AccountDeps{
		Store:      pool,
		Repos:      repos,
		Ledger:     ledger,
		Hasher:     auth.NewBcryptHasher(),
		Archive:    writer,
		Registry:   app.sync,
		Notifier:   app.dispatcher,
		Admin:      auth.AdminPolicy{AdminUserID: c.AdminUserID},
		AppBaseURL: c.AppBaseURL,
		Log:        logger,
	})
	app.subscriptions = services.NewSubscriptionService(services.SubscriptionDeps{
		Store:    pool,
		Repos:    repos,
		Archive:  writer,
		Hook:     hook,
		Notifier: app.dispatcher,
		Log:      logger,
	})

	return app, nil
}

func (app *App) Accounts() *services.AccountService { return app.accounts }

func (app *App) Subscriptions() *services.SubscriptionService { return app.subscriptions }

// Close drains pending notifications and releases the broker and the pool.
func (app *App) Close() {
	if app.dispatcher != nil {
		app.dispatcher.Close()
	}
	if app.broker != nil {
		_ = app.broker.Close()
	}
	if app.pool != nil {
		_ = app.pool.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpserver.NewServer(httpserver.Config{
		Address:         app.config.HTTPAddr,
		CORSOrigin:      app.config.CORSOrigin,
		Production:      app.config.Production,
		SessionValidity: app.config.SessionTokenValidityDuration,
	}, app.accounts, app.subscriptions, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHealthServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewHealthServer(app.config.HealthAddrGRPC, app.pool, 10*time.Second, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startResyncConsumer(ctx context.Context, cancelFunc context.CancelFunc) {
	msgs, err := app.broker.Deliveries(ctx, ResyncQueue)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}
	if err := registry.NewConsumer(app.sync, app.logger).Run(ctx, msgs); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHealthServer(ctx, cancelFunc)
	}()

	if app.broker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startResyncConsumer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
}
