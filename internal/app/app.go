package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/product-service/internal/cfg"
	v1Http "github.com/DRSN-tech/product-service/internal/delivery/v1/http"
	"github.com/DRSN-tech/product-service/internal/infrastructure/conn"
	"github.com/DRSN-tech/product-service/internal/infrastructure/kafka"
	"github.com/DRSN-tech/product-service/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/product-service/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/product-service/internal/repository/redis"
	redisConv "github.com/DRSN-tech/product-service/internal/repository/redis/converter"
	"github.com/DRSN-tech/product-service/internal/usecase"
	"github.com/DRSN-tech/product-service/pkg/clients"
	"github.com/DRSN-tech/product-service/pkg/closer"
	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/DRSN-tech/product-service/pkg/logger"
	"github.com/DRSN-tech/product-service/pkg/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	shutdownTimeout   = 10 * time.Second
	ensureTopicWait   = 10 * time.Second
	redisPingTimeout  = 5 * time.Second
	forcedCloseWindow = 2 * time.Second
)

// App держит собранный граф зависимостей сервиса каталога.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	httpSrv     *v1Http.Server
	connManager *conn.Manager
	worker      *kafka.OutboxWorker
	closer      *closer.Closer
}

// NewApp собирает все зависимости: базу, кэш, продюсер, диспетчер outbox и HTTP-слой.
// Ресурсы регистрируются в closer в порядке создания и закрываются в обратном.
func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	cl := closer.NewCloser(forcedCloseWindow)

	db, err := initPGDB(log, cfg)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(_ context.Context) error {
		db.Close()
		log.Infof("PostgreSQL pool closed")
		return nil
	})

	redisClient := clients.NewRedisClient(cfg.Redis)
	redisCtx, redisCancel := context.WithTimeout(context.Background(), redisPingTimeout)
	err = redisClient.Ping(redisCtx)
	redisCancel()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(_ context.Context) error {
		return redisClient.Close()
	})

	producer, err := kafka.NewProducer(log, cfg.Kafka)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(_ context.Context) error {
		return producer.Close()
	})

	if err := producer.EnsureTopic(ensureTopicWait); err != nil {
		log.Warnf("Failed to ensure topic %s: %v", cfg.Kafka.Topic, err)
	}

	connManager := conn.NewManager(db, producer, log, cfg.Conn)

	prConv := pgdbConv.NewProductConverterImpl()
	outboxConv := pgdbConv.NewOutboxEventConverterImpl()
	infoConv := redisConv.NewProductInfoConverterImpl()

	productRepo := pgdb.NewProductRepo(db.Pool, prConv)
	outboxRepo := pgdb.NewOutboxEventRepo(db.Pool, outboxConv)
	cacheRepo := redis.NewCacheRepo(redisClient, infoConv, cfg.Redis, log)
	txManager := pgdb.NewTxManager(db.Pool)

	catalogUC := usecase.NewCatalogUC(
		productRepo,
		outboxRepo,
		cacheRepo,
		txManager,
		connManager,
		log,
		cfg.Outbox.OpTimeout,
	)

	worker := kafka.NewOutboxWorker(outboxRepo, producer, log, cfg.Outbox, db.Dsn)

	r := chi.NewRouter()
	router := v1Http.NewRouter(r, log)
	router.Init(cfg.Http.ApiPrefix, catalogUC, connManager)

	httpSrv := v1Http.NewServer(r, cfg.Http)

	return &App{
		cfg:         cfg,
		logger:      log,
		httpSrv:     httpSrv,
		connManager: connManager,
		worker:      worker,
		closer:      cl,
	}, nil
}

// Run запускает фоновые воркеры и HTTP-сервер, блокируясь до сигнала или фатальной ошибки.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.connManager.Start(ctx)
	a.closer.Add(func(_ context.Context) error {
		a.connManager.Stop()
		a.logger.Infof("Connection manager stopped")
		return nil
	})

	// Брокер может подниматься дольше сервиса; диспетчер всё равно стартует,
	// недоставленные события подождут в outbox
	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := a.connManager.WaitBroker(waitCtx); err != nil {
		a.logger.Warnf("Broker not reachable yet, outbox will buffer events: %v", err)
	}
	waitCancel()

	a.worker.Start(ctx)
	a.closer.Add(func(_ context.Context) error {
		a.worker.Stop()
		a.logger.Infof("Outbox dispatcher stopped")
		return nil
	})

	a.closer.Add(func(shutdownCtx context.Context) error {
		if err := a.httpSrv.Stop(shutdownCtx); err != nil {
			return err
		}
		a.logger.Infof("HTTP server stopped")
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Основной контекст отменяется только после closer:
	// начатые доставки outbox доезжают до брокера в отведённое окно
	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Warnf("Shutdown finished with errors: %v", err)
	} else {
		a.logger.Infof("Application shutdown complete")
	}

	return appErr
}

func initPGDB(log logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(cfg.Db)
	if err != nil {
		log.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(log); err != nil {
		log.Errorf(err, "failed to run migrations")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}
