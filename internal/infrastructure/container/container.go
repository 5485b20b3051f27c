package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pricewatch/internal/application/port"
	"pricewatch/internal/infrastructure/config"
	_ "pricewatch/internal/infrastructure/exchange/binance"
	"pricewatch/internal/infrastructure/pricefeed"
	"pricewatch/internal/infrastructure/storage"
	"pricewatch/internal/infrastructure/storage/composite"
	pgrepo "pricewatch/internal/infrastructure/storage/postgres"
	redisrepo "pricewatch/internal/infrastructure/storage/redis"
	sqliterepo "pricewatch/internal/infrastructure/storage/sqlite"
)

// Container owns every infrastructure dependency and closes them in reverse
// order of creation.
type Container struct {
	cfg         *config.Config
	repo        port.Repository
	redisClient *redis.Client
	redisRepo   *redisrepo.Repo
	notifier    *composite.Notifier
	recorder    *composite.Recorder
	history     port.PriceHistory
	feed        port.Feed
	snapshots   port.SnapshotFetcher
	closeOnce   sync.Once
	closerChain []func() error
}

func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}

	if err := c.initStorage(); err != nil {
		// release whatever was opened
		_ = c.Close()
		return nil, err
	}

	provider, ok := pricefeed.Get(cfg.Feed.Exchange)
	if !ok {
		_ = c.Close()
		return nil, fmt.Errorf("unknown feed exchange %q, registered: %v", cfg.Feed.Exchange, pricefeed.Names())
	}
	c.feed = provider.NewFeed(cfg.Feed.WsURL, cfg.ReconnectBackoff())
	c.snapshots = provider.NewSnapshots(cfg.Feed.RestURL, cfg.RequestTimeout())

	log.Info().
		Str("exchange", cfg.Feed.Exchange).
		Str("ws_url", cfg.Feed.WsURL).
		Str("rest_url", cfg.Feed.RestURL).
		Msg("price feed initialized")

	return c, nil
}

// initStorage opens the repository for the configured driver and, when
// enabled, the Redis mirror.
func (c *Container) initStorage() error {
	var recorders []port.PriceRecorder

	switch c.cfg.Storage.Driver {
	case "memory":
		c.repo = storage.NewInMemoryRepository()
		log.Info().Msg("memory storage initialized")
	case "postgres":
		repo, err := c.initPostgres()
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		c.repo = repo
		c.history = repo
		recorders = append(recorders, repo)
	default:
		repo, err := c.initSQLite()
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		c.repo = repo
		c.history = repo
		recorders = append(recorders, repo)
	}

	var notifiers []port.Notifier
	if c.cfg.Storage.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
		notifiers = append(notifiers, c.redisRepo)
		recorders = append(recorders, c.redisRepo)
	}

	c.notifier = composite.NewNotifier(notifiers...)
	c.recorder = composite.NewRecorder(recorders...)
	return nil
}

func (c *Container) initRedis() error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Storage.Redis.Addr,
		Password: c.cfg.Storage.Redis.Password,
		DB:       c.cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	c.redisRepo = redisrepo.New(
		rdb,
		c.cfg.Storage.Redis.Prefix,
		c.cfg.RedisTTL(),
		c.cfg.Storage.Redis.SignalStream,
		c.cfg.Storage.Redis.SignalChannel,
	)

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", c.cfg.Storage.Redis.Addr).
		Int("db", c.cfg.Storage.Redis.DB).
		Msg("redis initialized")

	return nil
}

func (c *Container) initSQLite() (*sqliterepo.Repo, error) {
	repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
	if err != nil {
		return nil, err
	}

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", c.cfg.Storage.SQLite.Path).
		Msg("sqlite initialized")

	return repo, nil
}

func (c *Container) initPostgres() (*pgrepo.Repo, error) {
	repo, err := pgrepo.New(c.cfg.Storage.Postgres.DSN)
	if err != nil {
		return nil, err
	}

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")
	return repo, nil
}

func (c *Container) Config() *config.Config { return c.cfg }

func (c *Container) Repository() port.Repository { return c.repo }

// Notifier fans out to Redis when enabled; otherwise it has no targets.
func (c *Container) Notifier() port.Notifier { return c.notifier }

func (c *Container) Recorder() port.PriceRecorder { return c.recorder }

// History is nil for the memory driver.
func (c *Container) History() port.PriceHistory { return c.history }

func (c *Container) Feed() port.Feed { return c.feed }

func (c *Container) Snapshots() port.SnapshotFetcher { return c.snapshots }

func (c *Container) RedisClient() *redis.Client { return c.redisClient }

// Close releases all resources in LIFO order.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
