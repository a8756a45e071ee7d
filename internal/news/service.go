package news

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"crypto-trading-assistant/internal/interfaces"
	"crypto-trading-assistant/internal/logger"
	"crypto-trading-assistant/internal/types"
)

// Service scores crypto news per symbol and caches the digest
type Service struct {
	scraper *Scraper
	cache   *digestCache
	cfg     *ServiceConfig
	now     func() time.Time
}

var _ interfaces.NewsScorer = (*Service)(nil)

// ServiceConfig configures the news service
type ServiceConfig struct {
	MaxArticles    int           // Maximum articles to scrape per symbol
	CacheDuration  time.Duration // How long to cache a digest
	ScraperTimeout time.Duration // Per-request timeout for scraping
	Enabled        bool

	// Sources overrides DefaultSources when non-nil.
	Sources       []NewsSource
	GoogleNewsURL string
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxArticles:    15,
		CacheDuration:  1 * time.Hour,
		ScraperTimeout: 30 * time.Second,
		Enabled:        true,
	}
}

type digestCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
	done chan struct{}
	once sync.Once
}

type cacheEntry struct {
	digest    Digest
	timestamp time.Time
}

func newDigestCache(ttl time.Duration) *digestCache {
	cache := &digestCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go cache.cleanupLoop()
	return cache
}

func (c *digestCache) get(symbol string) (Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[symbol]
	if !exists || time.Since(entry.timestamp) > c.ttl {
		return Digest{}, false
	}
	return entry.digest, true
}

func (c *digestCache) set(symbol string, d Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[symbol] = &cacheEntry{digest: d, timestamp: time.Now()}
}

func (c *digestCache) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries
func (c *digestCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for symbol, entry := range c.data {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.data, symbol)
		}
	}
}

func (c *digestCache) close() {
	c.once.Do(func() { close(c.done) })
}

// NewService creates a news service; nil cfg means DefaultServiceConfig.
func NewService(cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	return &Service{
		scraper: NewScraper(cfg.ScraperTimeout, cfg.Sources, cfg.GoogleNewsURL),
		cache:   newDigestCache(cfg.CacheDuration),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Close stops the cache cleanup goroutine.
func (s *Service) Close() {
	s.cache.close()
}

// NewsScore returns the digest score for symbol in [0,1]. A disabled service
// or a symbol with no coverage scores 0.5. When every source fails the error
// wraps ErrCollaboratorUnavailable.
func (s *Service) NewsScore(ctx context.Context, symbol string) (float64, error) {
	d, err := s.Digest(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return d.Score, nil
}

// Digest returns the cached digest for symbol, fetching a fresh one when the
// cache has none.
func (s *Service) Digest(ctx context.Context, symbol string) (Digest, error) {
	if !s.cfg.Enabled {
		return Digest{Symbol: symbol, Score: 0.5, Summary: "News analysis disabled", FetchedAt: s.now()}, nil
	}

	if cached, ok := s.cache.get(symbol); ok {
		logger.Debug(ctx, "Using cached news digest", "symbol", symbol,
			"age_minutes", s.now().Sub(cached.FetchedAt).Minutes())
		return cached, nil
	}

	logger.Info(ctx, "Fetching fresh news digest", "symbol", symbol)
	return s.RefreshDigest(ctx, symbol)
}

// RefreshDigest bypasses the cache and stores the fresh digest.
func (s *Service) RefreshDigest(ctx context.Context, symbol string) (Digest, error) {
	d, err := s.fetchFresh(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch news", err, "symbol", symbol)
		return Digest{}, errors.Wrapf(types.ErrCollaboratorUnavailable, "news for %s: %v", symbol, err)
	}
	s.cache.set(symbol, d)
	return d, nil
}

func (s *Service) fetchFresh(ctx context.Context, symbol string) (Digest, error) {
	articles, err := s.scraper.ScrapeNews(ctx, symbol, s.cfg.MaxArticles)
	if err != nil && ctx.Err() != nil {
		return Digest{}, err
	}

	if len(articles) == 0 {
		logger.Info(ctx, "No articles from primary sources, trying Google News", "symbol", symbol)
		fallback, gErr := s.scraper.ScrapeGoogleNews(ctx, symbol, s.cfg.MaxArticles)
		if gErr != nil {
			logger.ErrorWithErr(ctx, "Google News fallback failed", gErr, "symbol", symbol)
			if err != nil {
				return Digest{}, err
			}
		}
		articles = fallback
	}

	d := Score(symbol, articles, s.now())
	logger.Info(ctx, "News digest scored", "symbol", symbol, "score", d.Score,
		"articles", d.Articles, "positive", d.Positive, "negative", d.Negative)
	return d, nil
}

// ClearCache removes all cached digests
func (s *Service) ClearCache() {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.data = make(map[string]*cacheEntry)
}

// CachedSymbols returns the symbols with a cached digest, sorted
func (s *Service) CachedSymbols() []string {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()

	symbols := make([]string, 0, len(s.cache.data))
	for symbol := range s.cache.data {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
