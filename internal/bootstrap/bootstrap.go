// Package bootstrap connects the configured store and lock backend. It is
// shared by the server and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	redisclient "github.com/hackgods/clinic-appointments/internal/redis"
)

// Store is the opened repository plus a function releasing its connections.
type Store struct {
	appointment.Repository
	Name  string
	Close func()
}

// OpenStore connects the store selected by STORE_DRIVER. With migrate set the
// schema (or Mongo indexes) is applied before returning.
func OpenStore(ctx context.Context, cfg config.Config, migrate bool, logger zerolog.Logger) (*Store, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		logger.Info().Msg("connected to Postgres")
		if migrate {
			if err := db.MigratePostgres(connCtx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info().Msg("postgres schema applied")
		}
		return &Store{Repository: appointment.NewPgRepository(pool), Name: "postgres", Close: pool.Close}, nil

	case config.DriverMongo:
		client, err := db.ConnectMongo(connCtx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("mongo connection: %w", err)
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")
		database := client.Database(cfg.MongoDatabase)
		if migrate {
			if err := db.MigrateMongo(connCtx, database); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, err
			}
			logger.Info().Msg("mongo indexes applied")
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error().Err(err).Msg("error closing mongo")
			}
		}
		return &Store{Repository: appointment.NewMongoRepository(database), Name: "mongo", Close: closeFn}, nil

	case config.DriverMemory:
		logger.Warn().Msg("using in-memory store, data is lost on exit")
		return &Store{Repository: appointment.NewMemoryRepository(), Name: "memory", Close: func() {}}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// OpenLocker returns a Redis lock when Redis is configured and an in-process
// lock otherwise. The client is nil in the latter case.
func OpenLocker(ctx context.Context, cfg config.Config, logger zerolog.Logger) (redisclient.Locker, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		logger.Warn().Msg("REDIS_ADDR not set, appointment locks are process-local")
		return redisclient.NewLocalLocker(cfg.LockWait), nil, nil
	}

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("redis connection: %w", err)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	return redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait, logger), rdb, nil
}
