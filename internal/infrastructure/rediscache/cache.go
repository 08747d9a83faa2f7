package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"bcexplorer/internal/application"
	"bcexplorer/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyRoot    = "bcexplorer:"
	defaultCacheTTL = time.Hour
)

// CacheObserver counts cache hits and misses.
type CacheObserver interface {
	OnCacheLookup(hit bool)
}

type Config struct {
	Addr string
	TTL  time.Duration
	// Namespace separates entries of different chains sharing one redis,
	// typically the chain id.
	Namespace string
	// Confirmations is how deep below the head a block must be before it
	// is cached. Zero caches every mined block.
	Confirmations uint64
	Observer      CacheObserver
}

// CachedSource is a read-through cache in front of a ChainSource. Only
// settled data is cached: blocks fetched by number and mined transactions
// with at least the configured number of confirmations.
type CachedSource struct {
	application.ChainSource
	cache         redis.UniversalClient
	ttl           time.Duration
	prefix        string
	confirmations uint64
	head          atomic.Uint64
	observer      CacheObserver
}

func NewCachedSource(base application.ChainSource, cfg Config) (*CachedSource, error) {
	if base == nil {
		return nil, errors.New("base source is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedSource{ChainSource: base}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return newCachedSource(base, client, cfg), nil
}

func newCachedSource(base application.ChainSource, client redis.UniversalClient, cfg Config) *CachedSource {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	prefix := cacheKeyRoot
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		prefix += ns + ":"
	}
	return &CachedSource{
		ChainSource:   base,
		cache:         client,
		ttl:           cfg.TTL,
		prefix:        prefix,
		confirmations: cfg.Confirmations,
		observer:      cfg.Observer,
	}
}

func (c *CachedSource) Enabled() bool {
	return c.cache != nil
}

func (c *CachedSource) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// LatestBlockNumber always reaches the provider and remembers the head for
// the settlement check.
func (c *CachedSource) LatestBlockNumber(ctx context.Context) (uint64, error) {
	head, err := c.ChainSource.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	c.observeHead(head)
	return head, nil
}

func (c *CachedSource) BlockByNumber(ctx context.Context, number uint64, fullTx bool) (domain.Block, error) {
	if c.cache == nil {
		return c.ChainSource.BlockByNumber(ctx, number, fullTx)
	}
	version, ok := c.cacheVersion(ctx)
	if !ok {
		return c.ChainSource.BlockByNumber(ctx, number, fullTx)
	}
	key := blockCacheKey(c.prefix, version, number, fullTx)
	if rec, ok := c.get(ctx, key); ok {
		if block, err := domain.NewBlock(rec); err == nil {
			return block, nil
		}
	}

	block, err := c.ChainSource.BlockByNumber(ctx, number, fullTx)
	if err != nil {
		return domain.Block{}, err
	}
	if c.settled(ctx, number) {
		c.set(ctx, key, block.Fields)
	}
	return block, nil
}

func (c *CachedSource) TransactionByHash(ctx context.Context, hash string) (domain.Transaction, error) {
	if c.cache == nil {
		return c.ChainSource.TransactionByHash(ctx, hash)
	}
	version, ok := c.cacheVersion(ctx)
	if !ok {
		return c.ChainSource.TransactionByHash(ctx, hash)
	}
	key := txCacheKey(c.prefix, version, hash)
	if rec, ok := c.get(ctx, key); ok {
		if tx, err := domain.NewTransaction(rec); err == nil {
			return tx, nil
		}
	}

	tx, err := c.ChainSource.TransactionByHash(ctx, hash)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !tx.Pending() && c.settled(ctx, *tx.BlockNumber) {
		c.set(ctx, key, tx.Fields)
	}
	return tx, nil
}

// Balance always reaches the provider; it changes every block.
func (c *CachedSource) Balance(ctx context.Context, address string) (*big.Int, error) {
	return c.ChainSource.Balance(ctx, address)
}

// Invalidate drops every cached entry by bumping the key version.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Incr(ctx, c.prefix+"cache:version").Err()
}

// settled reports whether block number has enough confirmations to be
// safe from reorgs. The provider is asked for the head only when the last
// known head is too low.
func (c *CachedSource) settled(ctx context.Context, number uint64) bool {
	if c.confirmations == 0 {
		return true
	}
	if number+c.confirmations <= c.head.Load()+1 {
		return true
	}
	head, err := c.ChainSource.LatestBlockNumber(ctx)
	if err != nil {
		return false
	}
	c.observeHead(head)
	return number+c.confirmations <= head+1
}

func (c *CachedSource) observeHead(head uint64) {
	for {
		current := c.head.Load()
		if head <= current || c.head.CompareAndSwap(current, head) {
			return
		}
	}
}

func (c *CachedSource) get(ctx context.Context, key string) (domain.Record, bool) {
	cached, err := c.cache.Get(ctx, key).Bytes()
	if err != nil {
		c.observe(false)
		return nil, false
	}
	var rec domain.Record
	if err := json.Unmarshal(cached, &rec); err != nil {
		c.observe(false)
		return nil, false
	}
	c.observe(true)
	return rec, true
}

func (c *CachedSource) set(ctx context.Context, key string, rec domain.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, key, payload, c.ttl).Err()
}

func (c *CachedSource) observe(hit bool) {
	if c.observer != nil {
		c.observer.OnCacheLookup(hit)
	}
}

func (c *CachedSource) cacheVersion(ctx context.Context) (string, bool) {
	version, err := c.cache.Get(ctx, c.prefix+"cache:version").Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func blockCacheKey(prefix, version string, number uint64, fullTx bool) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(prefix)
	b.WriteString("v")
	b.WriteString(version)
	b.WriteString(":block:")
	b.WriteString(strconv.FormatUint(number, 10))
	if fullTx {
		b.WriteString(":full")
	}
	return b.String()
}

func txCacheKey(prefix, version, hash string) string {
	return prefix + "v" + version + ":tx:" + strings.ToLower(hash)
}
