package openweather

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/couchcryptid/floodsense-service/internal/observability"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
)

// CachedProvider wraps a WeatherProvider with an in-memory LRU cache whose
// entries expire after ttl.
type CachedProvider struct {
	inner   domain.WeatherProvider
	cache   *lru.Cache
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

type cacheEntry struct {
	value     any
	fetchedAt time.Time
}

// NewCachedProvider creates a cache decorator around a weather provider.
func NewCachedProvider(inner domain.WeatherProvider, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) (*CachedProvider, error) {
	cache, err := lru.New(maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create weather cache: %w", err)
	}
	return &CachedProvider{
		inner:   inner,
		cache:   cache,
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}, nil
}

func (c *CachedProvider) Current(ctx context.Context, lat, lon float64) (domain.CurrentWeather, error) {
	key := fmt.Sprintf("cur:%.4f,%.4f", lat, lon)
	if v, ok := c.lookup("current", key); ok {
		return v.(domain.CurrentWeather), nil
	}
	w, err := c.inner.Current(ctx, lat, lon)
	if err != nil {
		return w, err
	}
	c.store(key, w)
	return w, nil
}

func (c *CachedProvider) Forecast(ctx context.Context, lat, lon float64) ([]domain.ForecastSlot, error) {
	key := fmt.Sprintf("fc:%.4f,%.4f", lat, lon)
	if v, ok := c.lookup("forecast", key); ok {
		return v.([]domain.ForecastSlot), nil
	}
	slots, err := c.inner.Forecast(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	// Only cache non-empty forecasts so an empty upstream answer is retried.
	if len(slots) > 0 {
		c.store(key, slots)
	}
	return slots, nil
}

func (c *CachedProvider) lookup(endpoint, key string) (any, bool) {
	if raw, ok := c.cache.Get(key); ok {
		e := raw.(cacheEntry)
		if c.clock.Since(e.fetchedAt) < c.ttl {
			c.metrics.WeatherCache.WithLabelValues(endpoint, "hit").Inc()
			return e.value, true
		}
		c.cache.Remove(key)
	}
	c.metrics.WeatherCache.WithLabelValues(endpoint, "miss").Inc()
	return nil, false
}

func (c *CachedProvider) store(key string, value any) {
	c.cache.Add(key, cacheEntry{value: value, fetchedAt: c.clock.Now()})
}
