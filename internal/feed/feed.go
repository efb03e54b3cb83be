package feed

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/mohammad-safakhou/newsrag/config"
	"github.com/mohammad-safakhou/newsrag/models"
)

// Fetcher pulls articles from an RSS/Atom feed. Fetch failures are absorbed:
// the caller always gets a (possibly empty) list, never an error.
type Fetcher struct {
	parser         *gofeed.Parser
	maxItems       int
	fetchTimeout   time.Duration
	enrichEmpty    bool
	enrichMaxChars int
	logger         *log.Logger
}

func NewFetcher(cfg config.IngestConfig) *Fetcher {
	maxItems := cfg.MaxArticles
	if maxItems <= 0 {
		maxItems = 50
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		parser:         gofeed.NewParser(),
		maxItems:       maxItems,
		fetchTimeout:   timeout,
		enrichEmpty:    cfg.EnrichEmpty,
		enrichMaxChars: cfg.EnrichMaxChars,
		logger:         log.New(log.Writer(), "[FEED] ", log.LstdFlags),
	}
}

// Fetch retrieves and normalizes at most maxItems articles from feedURL.
// Network and parse failures yield an empty list.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) []models.Article {
	fctx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	parsed, err := f.parser.ParseURLWithContext(feedURL, fctx)
	if err != nil {
		f.logger.Printf("failed to fetch %s: %v", feedURL, err)
		return nil
	}

	items := parsed.Items
	if len(items) > f.maxItems {
		items = items[:f.maxItems]
	}

	articles := make([]models.Article, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		a := models.Article{
			ID:             item.GUID,
			Title:          item.Title,
			Link:           item.Link,
			ContentSnippet: snippet(item),
		}
		if f.enrichEmpty && strings.TrimSpace(a.ContentSnippet) == "" && a.Link != "" {
			a.ContentSnippet = f.extractReadable(a.Link)
		}
		articles = append(articles, a)
	}
	f.logger.Printf("fetched %d articles from %s", len(articles), feedURL)
	return articles
}

func snippet(item *gofeed.Item) string {
	if s := strings.TrimSpace(item.Description); s != "" {
		return s
	}
	return strings.TrimSpace(item.Content)
}

// extractReadable pulls the readable text of an article page for items whose
// feed entry carries no content. Failures leave the snippet empty.
func (f *Fetcher) extractReadable(link string) string {
	article, err := readability.FromURL(link, f.fetchTimeout)
	if err != nil {
		f.logger.Printf("readability extraction failed for %s: %v", link, err)
		return ""
	}
	return truncateOnRuneBoundary(strings.TrimSpace(article.TextContent), f.enrichMaxChars)
}

// truncateOnRuneBoundary caps text at max bytes without splitting a
// multi-byte rune, so downstream embedding requests always receive valid
// UTF-8.
func truncateOnRuneBoundary(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
