package cache

import (
	"context"
	"time"

	"github.com/civiclab/ordinance-api/internal/log"
	"github.com/civiclab/ordinance-api/internal/ordinance"
)

// Cache layers the memory tier over an optional S3 tier. An S3 hit is
// promoted into memory; S3 write failures are logged and never fail the
// request.
type Cache struct {
	mem    *Memory
	s3     *S3Store
	logger log.Logger

	onHit  func(tier string)
	onMiss func()
}

type Option func(*Cache)

// WithS3 enables the persistent tier.
func WithS3(s *S3Store) Option {
	return func(c *Cache) { c.s3 = s }
}

func WithLogger(l log.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

func WithOnHit(fn func(tier string)) Option {
	return func(c *Cache) { c.onHit = fn }
}

func WithOnMiss(fn func()) Option {
	return func(c *Cache) { c.onMiss = fn }
}

func New(mem *Memory, opts ...Option) *Cache {
	c := &Cache{mem: mem, logger: log.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) Get(ctx context.Context, url string) (*ordinance.Section, bool) {
	if sec, ok := c.mem.Get(url, time.Now()); ok {
		if c.onHit != nil {
			c.onHit("memory")
		}
		return sec, true
	}

	if c.s3 != nil {
		sec, err := c.s3.Get(ctx, url)
		if err != nil {
			c.logger.Warn(ctx, "s3 cache read failed", "url.full", url, "error", err.Error())
		} else if sec != nil {
			c.mem.Put(url, sec, time.Now())
			if c.onHit != nil {
				c.onHit("s3")
			}
			return sec, true
		}
	}

	if c.onMiss != nil {
		c.onMiss()
	}
	return nil, false
}

func (c *Cache) Put(ctx context.Context, url string, sec *ordinance.Section) {
	c.mem.Put(url, sec, time.Now())

	if c.s3 != nil {
		if err := c.s3.Put(ctx, url, sec); err != nil {
			c.logger.Warn(ctx, "s3 cache write failed", "url.full", url, "error", err.Error())
		}
	}
}

// Sweep runs the memory tier's expiry loop until ctx is cancelled.
func (c *Cache) Sweep(ctx context.Context) {
	c.mem.Sweep(ctx)
}
