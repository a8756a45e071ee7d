package news

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-faster/errors"
	"github.com/gocolly/colly/v2"

	"crypto-trading-assistant/internal/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Scraper handles scraping news from multiple sources
type Scraper struct {
	sources       []NewsSource
	googleNewsURL string
	timeout       time.Duration
}

// NewsSource defines a news source configuration
type NewsSource struct {
	Name       string
	BaseURL    string
	SearchPath string // e.g. "/tags/{query}"
	Selectors  ArticleSelectors
	RateLimit  time.Duration
}

// ArticleSelectors defines CSS selectors for extracting article data
type ArticleSelectors struct {
	ArticleContainer string
	Title            string
	URL              string
	Summary          string
	PublishedAt      string
}

// NewScraper creates a scraper over sources; nil sources means the defaults.
func NewScraper(timeout time.Duration, sources []NewsSource, googleNewsURL string) *Scraper {
	if sources == nil {
		sources = DefaultSources()
	}
	if googleNewsURL == "" {
		googleNewsURL = "https://news.google.com"
	}
	return &Scraper{sources: sources, googleNewsURL: googleNewsURL, timeout: timeout}
}

// DefaultSources returns the crypto news sites scraped by default
func DefaultSources() []NewsSource {
	return []NewsSource{
		{
			Name:       "Cointelegraph",
			BaseURL:    "https://cointelegraph.com",
			SearchPath: "/tags/{query}",
			Selectors: ArticleSelectors{
				ArticleContainer: "article.post-card-inline",
				Title:            ".post-card-inline__title",
				URL:              "a.post-card-inline__title-link",
				Summary:          "p.post-card-inline__text",
				PublishedAt:      "time",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "CoinDesk",
			BaseURL:    "https://www.coindesk.com",
			SearchPath: "/tag/{query}/",
			Selectors: ArticleSelectors{
				ArticleContainer: "div.article-card",
				Title:            "h2, h3",
				URL:              "a",
				Summary:          "p",
				PublishedAt:      "time",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "Decrypt",
			BaseURL:    "https://decrypt.co",
			SearchPath: "/search?q={query}",
			Selectors: ArticleSelectors{
				ArticleContainer: "article",
				Title:            "h3",
				URL:              "a",
				Summary:          "p",
				PublishedAt:      "time",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

var assetNames = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"BNB":  "bnb",
	"XRP":  "xrp",
	"ADA":  "cardano",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
	"AVAX": "avalanche",
	"LTC":  "litecoin",
}

var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "FDUSD", "USD", "EUR"}

// Query maps a trading pair such as BTCUSDT to the search term for its base
// asset.
func Query(symbol string) string {
	base := strings.ToUpper(symbol)
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(base, q) && len(base) > len(q) {
			base = strings.TrimSuffix(base, q)
			break
		}
	}
	if name, ok := assetNames[base]; ok {
		return name
	}
	return strings.ToLower(base)
}

// ScrapeNews fetches news articles for a symbol from all sources. It fails
// only when every source fails.
func (s *Scraper) ScrapeNews(ctx context.Context, symbol string, maxArticles int) ([]Article, error) {
	logger.Info(ctx, "Starting news scraping", "symbol", symbol, "sources", len(s.sources))

	all := []Article{}
	if len(s.sources) == 0 {
		return all, nil
	}
	perSource := maxArticles / len(s.sources)
	if perSource < 1 {
		perSource = 1
	}

	var lastErr error
	failures := 0
	for i, source := range s.sources {
		articles, err := s.scrapeSource(ctx, source, symbol, perSource)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape source", err, "source", source.Name, "symbol", symbol)
			failures++
			lastErr = err
		} else {
			all = append(all, articles...)
		}

		if i < len(s.sources)-1 && source.RateLimit > 0 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(source.RateLimit):
			}
		}
	}

	if failures == len(s.sources) {
		return nil, errors.Wrap(lastErr, "all news sources failed")
	}
	logger.Info(ctx, "News scraping completed", "symbol", symbol, "articles", len(all))
	return all, nil
}

func (s *Scraper) newCollector(ctx context.Context, domains ...string) *colly.Collector {
	c := colly.NewCollector(
		colly.AllowedDomains(domains...),
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(s.timeout)
	return c
}

// scrapeSource scrapes articles from a single news source
func (s *Scraper) scrapeSource(ctx context.Context, source NewsSource, symbol string, maxArticles int) ([]Article, error) {
	articles := []Article{}
	c := s.newCollector(ctx, getDomain(source.BaseURL))

	c.OnHTML(source.Selectors.ArticleContainer, func(e *colly.HTMLElement) {
		if len(articles) >= maxArticles {
			return
		}

		title := firstText(e.DOM, source.Selectors.Title)
		if title == "" {
			return
		}
		href, _ := e.DOM.Find(source.Selectors.URL).First().Attr("href")
		if href == "" {
			return
		}

		articles = append(articles, Article{
			Title:       title,
			URL:         e.Request.AbsoluteURL(href),
			Summary:     firstText(e.DOM, source.Selectors.Summary),
			Source:      source.Name,
			PublishedAt: firstText(e.DOM, source.Selectors.PublishedAt),
			Symbol:      symbol,
		})
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = errors.Wrapf(err, "%s returned %d", source.Name, r.StatusCode)
	})

	searchURL := source.BaseURL + strings.ReplaceAll(source.SearchPath, "{query}", url.PathEscape(Query(symbol)))
	if err := c.Visit(searchURL); err != nil {
		if scrapeErr != nil {
			return nil, scrapeErr
		}
		return nil, errors.Wrapf(err, "failed to visit %s", searchURL)
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, scrapeErr
	}
	return articles, nil
}

// ScrapeGoogleNews searches Google News for the symbol's asset (fallback method)
func (s *Scraper) ScrapeGoogleNews(ctx context.Context, symbol string, maxArticles int) ([]Article, error) {
	articles := []Article{}
	c := s.newCollector(ctx, getDomain(s.googleNewsURL))

	c.OnHTML("article", func(e *colly.HTMLElement) {
		if len(articles) >= maxArticles {
			return
		}
		title := firstText(e.DOM, "h3, h4")
		link, _ := e.DOM.Find("a").First().Attr("href")
		if title == "" || link == "" {
			return
		}
		// Google News links are relative to the site root
		if strings.HasPrefix(link, "./") {
			link = strings.TrimSuffix(s.googleNewsURL, "/") + link[1:]
		}
		articles = append(articles, Article{
			Title:  title,
			URL:    e.Request.AbsoluteURL(link),
			Source: "GoogleNews",
			Symbol: symbol,
		})
	})

	searchQuery := url.QueryEscape(Query(symbol) + " crypto")
	searchURL := strings.TrimSuffix(s.googleNewsURL, "/") + "/search?q=" + searchQuery + "&hl=en-US&gl=US&ceid=US:en"
	if err := c.Visit(searchURL); err != nil {
		return nil, errors.Wrap(err, "failed to scrape Google News")
	}
	c.Wait()

	logger.Info(ctx, "Google News scraping completed", "symbol", symbol, "articles", len(articles))
	return articles, nil
}

func firstText(sel *goquery.Selection, query string) string {
	if query == "" {
		return ""
	}
	return strings.Join(strings.Fields(sel.Find(query).First().Text()), " ")
}

// getDomain extracts domain from URL
func getDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
