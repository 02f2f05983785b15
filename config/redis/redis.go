package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	// Name identifies the instance in errors, eg: cache or store
	Name      string
	Address   string
	Password  string
	DB        int
	UseTracer bool
	UseTLS    bool
}

type RedisDB struct {
	Client *redis.Client
	name   string
}

func (cfg RedisConfig) options() *redis.Options {
	options := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		PoolTimeout:  4 * time.Second,
	}

	if cfg.UseTLS {
		options.TLSConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return options
}

// NewRedisDB connects and pings the instance.
func NewRedisDB(ctx context.Context, cfg RedisConfig) (*RedisDB, error) {
	client := redis.NewClient(cfg.options())

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Name, err)
	}

	if cfg.UseTracer {
		if err := redisotel.InstrumentTracing(client); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis %s tracing: %w", cfg.Name, err)
		}
	}

	return &RedisDB{Client: client, name: cfg.Name}, nil
}

func (db *RedisDB) Name() string {
	return db.name
}

func (db *RedisDB) Close() error {
	return db.Client.Close()
}
