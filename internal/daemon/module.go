package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matheus3301/msgsync/internal/api"
	"github.com/matheus3301/msgsync/internal/bus"
	"github.com/matheus3301/msgsync/internal/config"
	"github.com/matheus3301/msgsync/internal/discussion"
	"github.com/matheus3301/msgsync/internal/lock"
	"github.com/matheus3301/msgsync/internal/logging"
	"github.com/matheus3301/msgsync/internal/offline"
	"github.com/matheus3301/msgsync/internal/outbox"
	"github.com/matheus3301/msgsync/internal/remote"
	"github.com/matheus3301/msgsync/internal/session"
	"github.com/matheus3301/msgsync/internal/status"
	"github.com/matheus3301/msgsync/internal/store"
	intsync "github.com/matheus3301/msgsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved site configuration passed to the fx module.
type Params struct {
	SiteID     string
	ConfigPath string // empty = session.ConfigPath()
	SocketPath string // optional override for testing; empty = use default
	DataDir    string // optional override for testing; empty = session.Dir(SiteID)
}

func (p Params) dir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return session.Dir(p.SiteID)
}

func (p Params) configPath() string {
	if p.ConfigPath != "" {
		return p.ConfigPath
	}
	return session.ConfigPath()
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	if p.DataDir != "" {
		return filepath.Join(p.DataDir, "daemon.sock")
	}
	return session.SocketPath(p.SiteID)
}

func (p Params) lockPath() string {
	if p.DataDir != "" {
		return filepath.Join(p.DataDir, "LOCK")
	}
	return session.LockPath(p.SiteID)
}

func (p Params) dbPath() string {
	if p.DataDir != "" {
		return filepath.Join(p.DataDir, "queue.db")
	}
	return session.QueueDBPath(p.SiteID)
}

func (p Params) logPath() string {
	if p.DataDir != "" {
		return filepath.Join(p.DataDir, "logs", "msgsyncd.log")
	}
	return session.LogPath(p.SiteID)
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideSession,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideMonitor,
			provideRemote,
			provideQueue,
			intsync.NewCheckpoints,
			provideSyncEngine,
			provideSender,
			provideDiscussions,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(p.configPath())
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", p.configPath(), err)
	}
	return cfg, nil
}

func provideSession(p Params, cfg *config.Config) (session.Session, error) {
	return session.FromConfig(cfg, p.SiteID)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.logPath(), p.SiteID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.File, error) {
	if err := os.MkdirAll(p.dir(), 0700); err != nil {
		return nil, err
	}
	logger.Info("acquiring site lock", zap.String("site", p.SiteID))
	l, err := lock.AcquireFile(p.lockPath(), p.SiteID)
	if err != nil {
		return nil, err
	}
	logger.Info("site lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by two daemons.
func provideStore(p Params, _ *lock.File, logger *zap.Logger) (*store.DB, error) {
	db, result, err := store.OpenMigrated(p.dbPath())
	if err != nil {
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", p.dbPath()))
	return db, nil
}

func provideMonitor(sess session.Session, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *status.Monitor {
	return status.NewMonitor(b, sess.URL, cfg.Network.ProbeInterval.Duration, cfg.Network.ProbeTimeout.Duration, logger)
}

func provideRemote(sess session.Session, logger *zap.Logger) remote.API {
	return remote.NewClient(sess, logger)
}

func provideQueue(db *store.DB, sess session.Session, mon *status.Monitor, logger *zap.Logger) *offline.Queue {
	return offline.New(db, sess, mon, logger)
}

func provideSyncEngine(q *offline.Queue, client remote.API, mon *status.Monitor, b *bus.Bus, cp *intsync.Checkpoints, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(q, client, mon, b, cp, intsync.Config{
		SafetyMargin: cfg.Sync.SafetyMargin.Duration,
		CronInterval: cfg.Sync.CronInterval.Duration,
	}, logger)
}

func provideSender(q *offline.Queue, client remote.API, mon *status.Monitor, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(q, client, mon, b, logger)
}

func provideDiscussions(sess session.Session, client remote.API, q *offline.Queue, engine *intsync.Engine, sender *outbox.Sender, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *discussion.Manager {
	return discussion.NewManager(discussion.Deps{
		Session: sess,
		API:     client,
		Queue:   q,
		Syncer:  engine,
		Sender:  sender,
		Bus:     b,
		Logger:  logger,
	}, discussion.Config{
		PageSize:     cfg.Discussion.PageSize,
		PollInterval: cfg.Discussion.PollInterval.Duration,
	})
}

func provideService(sess session.Session, mon *status.Monitor, q *offline.Queue, engine *intsync.Engine, sender *outbox.Sender, views *discussion.Manager, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(api.Deps{
		Session: sess,
		Network: mon,
		Queue:   q,
		Engine:  engine,
		Sender:  sender,
		Views:   views,
		Bus:     b,
		Logger:  logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.File, db *store.DB, mon *status.Monitor, engine *intsync.Engine, views *discussion.Manager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			mon.Start(context.Background())
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			views.CloseAll()
			engine.Stop()
			mon.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
