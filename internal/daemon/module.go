package daemon

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/matheus3301/glasschat/internal/auth"
	"github.com/matheus3301/glasschat/internal/bus"
	"github.com/matheus3301/glasschat/internal/config"
	"github.com/matheus3301/glasschat/internal/gateway"
	"github.com/matheus3301/glasschat/internal/lock"
	"github.com/matheus3301/glasschat/internal/logging"
	"github.com/matheus3301/glasschat/internal/persist"
	"github.com/matheus3301/glasschat/internal/profile"
	"github.com/matheus3301/glasschat/internal/rest"
	"github.com/matheus3301/glasschat/internal/session"
	"github.com/matheus3301/glasschat/internal/store"
	"github.com/matheus3301/glasschat/internal/transport"
	"github.com/matheus3301/glasschat/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	ConfigPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideConfig,
			provideLock,
			provideDB,
			provideHTTPClient,
			provideAuthManager,
			provideRESTClient,
			provideTransport,
			provideGatewayClient,
			provideGatewayHandler,
			provideNotifier,
			provideStore,
			provideEngine,
			provideSaver,
			provideCoordinator,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	return config.Load(path)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideDB(p Params, logger *zap.Logger) (*persist.DB, error) {
	dbPath := profile.StateDBPath(p.ProfileName)
	db, err := persist.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("state db initialized", zap.String("path", dbPath))
	return db, nil
}

func provideHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTPTimeout}
}

func provideAuthManager(cfg *config.Config, httpc *http.Client, b *bus.Bus, logger *zap.Logger) *auth.Manager {
	refreshURL := strings.TrimSuffix(cfg.APIURL, "/") + "/auth/refresh"
	return auth.NewManager(refreshURL, httpc, b, logger)
}

func provideRESTClient(cfg *config.Config, httpc *http.Client, m *auth.Manager, logger *zap.Logger) *rest.Client {
	return rest.NewClient(cfg.APIURL, httpc, m, logger)
}

func provideTransport(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *transport.Service {
	return transport.NewService(transport.Options{
		SocketURL:     cfg.SocketURL,
		AckTimeout:    cfg.AckTimeout,
		RetryAttempts: cfg.ReconnectAttempts,
		RetryDelay:    cfg.ReconnectDelay,
	}, b, logger)
}

func provideGatewayClient(svc *transport.Service) *gateway.Client {
	return gateway.NewClient(svc)
}

func provideGatewayHandler(svc *transport.Service, b *bus.Bus, logger *zap.Logger) *gateway.Handler {
	return gateway.NewHandler(svc, b, logger)
}

func provideNotifier(svc *transport.Service, m *auth.Manager, logger *zap.Logger) *typing.Notifier {
	return typing.NewNotifier(svc, m.CurrentUserID, 2*time.Second, 3*time.Second, logger)
}

func provideStore(api *rest.Client, gw *gateway.Client, m *auth.Manager, notifier *typing.Notifier, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *store.Store {
	return store.New(api, gw, m, notifier, b, logger, store.Options{
		InboxLimit:   cfg.InboxLimit,
		MessageLimit: cfg.MessageLimit,
		TypingExpiry: cfg.TypingExpiry,
	})
}

func provideEngine(st *store.Store, b *bus.Bus, logger *zap.Logger) *store.Engine {
	return store.NewEngine(st, b, logger)
}

func provideSaver(db *persist.DB, b *bus.Bus, logger *zap.Logger) *persist.Saver {
	return persist.NewSaver(db, b, logger)
}

func provideCoordinator(svc *transport.Service, m *auth.Manager, b *bus.Bus, logger *zap.Logger) *session.Coordinator {
	return session.NewCoordinator(svc, m, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *persist.DB, st *store.Store, engine *store.Engine, saver *persist.Saver, coordinator *session.Coordinator, handler *gateway.Handler, m *auth.Manager, svc *transport.Service, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Decode gateway pushes onto the bus.
			handler.Register()

			// Start the bus consumers before anything can publish.
			engine.Start(context.Background())
			saver.Start(context.Background())
			coordinator.Start(context.Background())

			// Seed the inbox from the persisted snapshot.
			convs, err := db.LoadConversations()
			if err != nil {
				logger.Warn("loading persisted inbox failed", zap.Error(err))
			}
			st.Hydrate(convs)

			// Restore the session; the coordinator reacts to the
			// credential event and connects the channels.
			acct, err := db.LoadAccount()
			if err != nil {
				logger.Warn("loading persisted account failed", zap.Error(err))
			}
			if acct == nil || !acct.Authenticated {
				logger.Info("no credentials found, sign-in required")
				return nil
			}
			m.SetAccount(*acct)
			if m.TokenExpiringSoon(time.Minute) {
				go func() {
					if _, err := m.Refresh(context.Background()); err != nil {
						logger.Warn("startup refresh failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			coordinator.Stop()
			saver.Stop()
			engine.Stop()
			handler.Unregister()
			svc.DisconnectAll()
			if err := db.Close(); err != nil {
				logger.Warn("error closing state db", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
