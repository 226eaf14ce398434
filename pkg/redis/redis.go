package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds Redis connection configuration
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Startup PING attempts after the first
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig returns local development settings
func DefaultConfig() *Config {
	return &Config{
		Host:          "localhost",
		Port:          6379,
		PoolSize:      50,
		MinIdleConns:  5,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
}

// Addr returns host:port
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Options converts the config to go-redis options
func (c *Config) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Client is a go-redis client plus a registry of named Lua scripts
type Client struct {
	client *redis.Client

	mu      sync.RWMutex
	scripts map[string]*redis.Script
}

// NewClient connects to Redis and waits for PING, retrying while ctx allows
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rdb := redis.NewClient(cfg.Options())

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Get().Warn("Redis not ready, retrying",
				zap.Int("attempt", attempt),
				zap.String("addr", cfg.Addr()),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				rdb.Close()
				return nil, fmt.Errorf("redis connect cancelled: %w", errors.Join(ctx.Err(), lastErr))
			case <-time.After(cfg.RetryInterval):
			}
		}
		if lastErr = rdb.Ping(ctx).Err(); lastErr == nil {
			return Wrap(rdb), nil
		}
	}

	rdb.Close()
	return nil, fmt.Errorf("failed to connect to redis at %s after %d attempts: %w", cfg.Addr(), cfg.MaxRetries+1, lastErr)
}

// Wrap adapts an existing go-redis client
func Wrap(rdb *redis.Client) *Client {
	return &Client{client: rdb, scripts: make(map[string]*redis.Script)}
}

// Client returns the underlying redis.Client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the connection pool
func (c *Client) Close() error {
	return c.client.Close()
}

// script returns the registered script for name, registering src on first use
func (c *Client) script(name, src string) *redis.Script {
	c.mu.RLock()
	s, ok := c.scripts[name]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.scripts[name]; !ok {
		s = redis.NewScript(src)
		c.scripts[name] = s
	}
	return s
}

// LoadScript registers src under name and pushes it into the server's
// script cache
func (c *Client) LoadScript(ctx context.Context, name, src string) (string, error) {
	sha, err := c.script(name, src).Load(ctx, c.client).Result()
	if err != nil {
		return "", fmt.Errorf("failed to load script %s: %w", name, err)
	}
	return sha, nil
}

// ScriptSHA returns the hash of a registered script
func (c *Client) ScriptSHA(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scripts[name]
	if !ok {
		return "", false
	}
	return s.Hash(), true
}

// RunScript executes the named script by hash, sending the body only when
// the server does not have it cached
func (c *Client) RunScript(ctx context.Context, name, src string, keys []string, args ...interface{}) *redis.Cmd {
	return c.script(name, src).Run(ctx, c.client, keys, args...)
}

// IsNil reports whether err is the go-redis missing key sentinel
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// HGet gets a hash field
func (c *Client) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	return c.client.HGet(ctx, key, field)
}

// HSet sets hash fields
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	return c.client.HSet(ctx, key, values...)
}

// HGetAll gets all fields in a hash
func (c *Client) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	return c.client.HGetAll(ctx, key)
}

// HVals gets all values of a hash
func (c *Client) HVals(ctx context.Context, key string) *redis.StringSliceCmd {
	return c.client.HVals(ctx, key)
}

// ZCount counts sorted set members with scores in [min, max]
func (c *Client) ZCount(ctx context.Context, key, min, max string) *redis.IntCmd {
	return c.client.ZCount(ctx, key, min, max)
}

// ZRangeByScore returns up to limit members with scores in [min, max]
func (c *Client) ZRangeByScore(ctx context.Context, key, min, max string, limit int64) *redis.StringSliceCmd {
	return c.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max, Count: limit})
}

// Pipeline returns a pipeline for batch reads
func (c *Client) Pipeline() redis.Pipeliner {
	return c.client.Pipeline()
}
