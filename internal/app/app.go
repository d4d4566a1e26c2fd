package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/cards"
	"github.com/smileperks/cardhub/internal/config"
	"github.com/smileperks/cardhub/internal/db"
	cardhttp "github.com/smileperks/cardhub/internal/http"
	"github.com/smileperks/cardhub/internal/http/api/admin"
	"github.com/smileperks/cardhub/internal/http/api/clinic"
	"github.com/smileperks/cardhub/internal/http/api/public"
	"github.com/smileperks/cardhub/internal/locks"
	"github.com/smileperks/cardhub/internal/logging"
	"github.com/smileperks/cardhub/internal/session"
	"github.com/smileperks/cardhub/internal/settings"
	"gorm.io/gorm"
)

const sessionSweepInterval = time.Minute

// Services holds the components shared by the server and the CLI.
type Services struct {
	Config   *config.Config
	DB       *gorm.DB
	Manager  *cards.Manager
	Sessions *session.Manager

	memoryStore *session.MemoryStore
	redis       redis.UniversalClient
	logCloser   io.Closer
}

// Close releases the database, Redis and log file handles.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.DB != nil {
		if sqlDB, errDB := s.DB.DB(); errDB == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if s.logCloser != nil {
		errs = append(errs, s.logCloser.Close())
	}
	return errors.Join(errs...)
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conf, err := config.Load(config.ResolveConfigPath(cfg.ConfigPath))
	if err != nil {
		return err
	}
	if errRequire := conf.RequireDatabase(); errRequire != nil {
		return errRequire
	}
	conn, err := openDB(conf)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	}()
	return db.Migrate(conn.WithContext(ctx))
}

// Bootstrap loads configuration and wires the database, runtime settings,
// session store and card manager. Callers must Close the result.
func Bootstrap(ctx context.Context, cfg config.AppConfig) (*Services, error) {
	conf, err := config.Load(config.ResolveConfigPath(cfg.ConfigPath))
	if err != nil {
		return nil, err
	}
	if errRequire := conf.RequireDatabase(); errRequire != nil {
		return nil, errRequire
	}
	logCloser, err := logging.Setup(conf.Logging)
	if err != nil {
		return nil, err
	}
	svc := &Services{Config: conf, logCloser: logCloser}

	conn, err := openDB(conf)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.DB = conn
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		_ = svc.Close()
		return nil, errMigrate
	}
	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("load settings: %w", errRefresh)
	}

	var locker locks.Locker
	if conf.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			DB:       conf.Redis.DB,
			Password: conf.Redis.Password,
		})
		svc.redis = rdb
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		errPing := rdb.Ping(pingCtx).Err()
		cancel()
		if errPing != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("redis: %w", errPing)
		}
		svc.Sessions = session.NewManager(session.NewRedisStore(rdb, conf.Redis.KeyPrefix))
		if conf.Cards.RedisLocks {
			locker = locks.NewRedisLocker(rdb, conf.Redis.LockBackoff, conf.Redis.LockWait)
		}
		log.WithField("addr", conf.Redis.Addr).Info("redis: connected")
	} else {
		svc.memoryStore = session.NewMemoryStore()
		svc.Sessions = session.NewManager(svc.memoryStore)
	}
	if locker == nil {
		locker = locks.NewLocalLocker(conf.Redis.LockWait)
	}

	fallbackPrefix := conf.Cards.ControlPrefix
	svc.Manager = cards.NewManager(conn,
		cards.WithLocker(locker),
		cards.WithChunkSize(conf.Cards.ChunkSize),
		cards.WithMaxBatchSize(conf.Cards.MaxBatchSize),
		cards.WithLockTTL(conf.Cards.LockTTL),
		cards.WithControlPrefix(func() string { return settings.ControlNumberPrefix(fallbackPrefix) }),
		cards.WithDefaultTemplate(settings.DefaultPerkTemplate),
	)
	return svc, nil
}

// RunServer boots the HTTP API and background workers until ctx is done.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	svc, err := Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := svc.Close(); errClose != nil {
			log.WithError(errClose).Warn("shutdown: close resources")
		}
	}()
	conf := svc.Config
	if errRequire := conf.RequireServer(); errRequire != nil {
		return errRequire
	}

	if svc.memoryStore != nil {
		svc.memoryStore.StartSweeper(ctx, sessionSweepInterval)
	}
	settings.StartRefresher(ctx, svc.DB, 0)
	cards.NewExpirySweeper(svc.Manager, conf.Cards.SweepInterval).
		WithEnabled(settings.SweepEnabled).
		Start(ctx)

	gin.SetMode(conf.Server.Mode)
	srv := &http.Server{
		Addr:              conf.Server.Listen,
		Handler:           NewRouter(svc.DB, svc.Manager, svc.Sessions, conf.JWT),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	log.WithFields(log.Fields{"listen": conf.Server.Listen, "config": conf.Path}).Info("cardhub: server started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		log.Info("cardhub: shutting down")
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("shutdown: %w", errShutdown)
		}
		return nil
	case errServe := <-serverErrCh:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return errServe
		}
		return nil
	}
}

// NewRouter builds the gin engine with every API group.
func NewRouter(conn *gorm.DB, manager *cards.Manager, sessions *session.Manager, jwtCfg config.JWTConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), cardhttp.RequestIDMiddleware(), cardhttp.RequestLoggerMiddleware())

	engine.GET("/healthz", cardhttp.NewHealthHandler(conn).Healthz)
	admin.RegisterAdminRoutes(engine, conn, manager, sessions, jwtCfg)
	clinic.RegisterClinicRoutes(engine, conn, manager, sessions, jwtCfg)
	public.RegisterPublicRoutes(engine, manager)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return engine
}

func openDB(conf *config.Config) (*gorm.DB, error) {
	return db.OpenWithOptions(conf.Database.DSN, db.Options{
		MaxOpenConns:    conf.Database.MaxOpenConns,
		ConnMaxLifetime: conf.Database.ConnMaxLifetime,
	})
}
