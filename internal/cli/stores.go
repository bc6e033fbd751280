package cli

import (
	"context"

	"cvcoach/internal/config"
	"cvcoach/internal/errors"
	"cvcoach/internal/server"
	"cvcoach/internal/storage"
	"cvcoach/internal/suggestions"
)

// stores groups the configured persistence backends
type stores struct {
	sessions  suggestions.SessionStore
	locks     suggestions.Locker
	documents suggestions.DocumentRepository
	pingers   map[string]server.Pinger
	closers   []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores builds the session store, the in-flight lock and the document
// repository from the storage configuration.
func openStores(ctx context.Context, cfg *config.Config, logger *errors.Logger) (*stores, error) {
	st := &stores{pingers: map[string]server.Pinger{}}
	sc := cfg.Storage

	switch sc.Sessions.Backend {
	case "redis":
		client, err := storage.NewRedisClient(ctx, storage.RedisOptions{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis client", "error", err)
			}
		})
		st.sessions = storage.NewRedisSessions(client, sc.Sessions.TTL)
		st.locks = storage.NewRedisLocks(client, sc.Redis.LockTTL, logger)
		st.pingers["redis"] = server.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Info("Using redis session store", "addr", sc.Redis.Addr, "ttl", sc.Sessions.TTL)
	default:
		sessions := storage.NewMemorySessions(sc.Sessions.TTL, logger)
		if err := sessions.StartSweeper(sc.Sessions.SweepInterval); err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = sessions.Close() })
		st.sessions = sessions
		st.locks = storage.NewMemoryLocks()
		logger.Info("Using in-memory session store", "ttl", sc.Sessions.TTL)
	}

	if sc.Database.URL == "" {
		st.documents = storage.NewMemoryDocuments()
		logger.Warn("No database configured, saved documents are kept in memory")
		return st, nil
	}

	docs, err := storage.ConnectPostgres(ctx, sc.Database.URL, sc.Database.MaxConns)
	if err != nil {
		st.close()
		return nil, err
	}
	st.closers = append(st.closers, docs.Close)
	st.documents = docs
	st.pingers["postgres"] = docs
	logger.Info("Using postgres document store", "max_conns", sc.Database.MaxConns)
	return st, nil
}
