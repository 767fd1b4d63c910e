package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/account"
	"github.com/Tyrowin/relaychat/internal/identity"
	"github.com/Tyrowin/relaychat/internal/logging"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/store"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	flags := pflag.NewFlagSet("relaychat", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to a YAML config file")
	port := flags.String("port", "", "listen address, e.g. :8080 (overrides config)")
	logLevel := flags.String("log-level", "", "debug, info, warn or error (overrides config)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = listenAddr(*port)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	server.SetConfig(cfg)
	active := server.CurrentConfig()

	log := logging.New(active.Log.Level, active.Log.Format)
	defer func() { _ = log.Sync() }()

	if err := run(active, log); err != nil {
		log.Fatal("Server stopped", zap.Error(err))
	}
}

func loadConfig(path string) (*server.Config, error) {
	if path == "" {
		return server.NewConfigFromEnv(), nil
	}
	cfg, err := server.LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return server.ApplyEnv(cfg), nil
}

func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func run(cfg server.Config, log *zap.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET (auth.jwtSecret) must be set")
	}
	tokens := identity.NewJWTService([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	backends, err := openBackends(ctx, cfg.Store, log)
	cancel()
	if err != nil {
		return err
	}
	defer backends.close(log)

	accounts := account.NewHandler(backends.users, tokens, account.Options{
		CookieName:   cfg.Auth.CookieName,
		SecureCookie: cfg.Auth.SecureCookie,
	}, log.Named("account"))

	hub := server.NewHub(backends.messages, log.Named("hub"))
	server.StartHub(hub)

	handler := server.SetupRoutes(server.Routes{
		Hub:      hub,
		Verifier: tokens,
		Messages: backends.messages,
		Accounts: accounts,
	})
	httpServer := server.CreateServer(cfg.Port, handler)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		log.Info("Received signal, shutting down", zap.String("signal", s.String()))
	case err, ok := <-serveErr:
		if ok {
			_ = hub.Shutdown(shutdownTimeout)
			return errors.Wrap(err, "http server")
		}
	}

	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Warn("Hub shutdown incomplete", zap.Error(err))
	}
	return server.ShutdownServer(httpServer, shutdownTimeout, log)
}

type backends struct {
	messages store.MessageStore
	users    account.Users
	closers  []func(context.Context) error
}

func (b *backends) close(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			log.Warn("Closing backend failed", zap.Error(err))
		}
	}
}

// openBackends builds the message store and the account store. Accounts
// live in MongoDB whenever a URI is configured, otherwise in memory.
func openBackends(ctx context.Context, cfg server.StoreConfig, log *zap.Logger) (*backends, error) {
	b := &backends{}

	var mongoDB *mongoDatabase
	if cfg.MongoURI != "" {
		db, err := openMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		mongoDB = db
		b.closers = append(b.closers, db.client.Disconnect)

		users := account.NewMongoUsers(db.db)
		if err := users.EnsureIndexes(ctx); err != nil {
			b.close(log)
			return nil, err
		}
		b.users = users
	} else {
		b.users = account.NewMemoryUsers()
	}

	switch cfg.Backend {
	case "memory":
		b.messages = store.NewMemory()
	case "mongo":
		if mongoDB == nil {
			return nil, errors.New("store backend mongo requires MONGODB_URL")
		}
		messages := store.NewMongo(mongoDB.db)
		if err := messages.EnsureIndexes(ctx); err != nil {
			b.close(log)
			return nil, err
		}
		b.messages = messages
	case "redis":
		if cfg.RedisAddr == "" {
			b.close(log)
			return nil, errors.New("store backend redis requires REDIS_ADDR")
		}
		messages, err := store.NewRedis(ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			MaxLen:   cfg.RedisMaxLen,
		})
		if err != nil {
			b.close(log)
			return nil, err
		}
		b.messages = messages
		b.closers = append(b.closers, messages.Close)
	default:
		b.close(log)
		return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
	}

	log.Info("Backends ready",
		zap.String("messages", cfg.Backend),
		zap.Bool("mongoAccounts", mongoDB != nil))
	return b, nil
}

type mongoDatabase struct {
	client *mongo.Client
	db     *mongo.Database
}

func openMongo(ctx context.Context, cfg server.StoreConfig) (*mongoDatabase, error) {
	client, err := store.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	return &mongoDatabase{client: client, db: client.Database(cfg.MongoDatabase)}, nil
}
