package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/koopa0/ragline/internal/log"
)

// Sentinel errors for page fetching.
var (
	// ErrInvalidURL indicates the URL could not be parsed or uses an
	// unsupported scheme.
	ErrInvalidURL = errors.New("invalid url")

	// ErrEmptyPage indicates the page yielded no extractable text.
	ErrEmptyPage = errors.New("no extractable text")
)

// Page is the readable content of a fetched web page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// FetcherConfig controls crawl politeness and timeouts.
type FetcherConfig struct {
	Logger      log.Logger
	Parallelism int           // concurrent requests per domain
	Delay       time.Duration // delay between requests to the same domain
	Timeout     time.Duration // per-request timeout
}

// Fetcher downloads web pages and extracts their readable text.
type Fetcher struct {
	logger      log.Logger
	parallelism int
	delay       time.Duration
	timeout     time.Duration
}

// NewFetcher creates a Fetcher. Zero config values fall back to
// conservative defaults.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{
		logger:      cfg.Logger,
		parallelism: cfg.Parallelism,
		delay:       cfg.Delay,
		timeout:     cfg.Timeout,
	}, nil
}

// Fetch downloads a page and extracts its readable text, preferring
// article extraction and falling back to stripped body text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if pageURL.Scheme != "http" && pageURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, pageURL.Scheme)
	}

	body, err := f.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	page := &Page{URL: rawURL}
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		page.Title = article.Title
		page.Text = strings.TrimSpace(article.TextContent)
		return page, nil
	}
	if err != nil {
		f.logger.Debug("article extraction failed, falling back to body text",
			"url", rawURL, "error", err)
	}

	title, text, err := stripMarkup(body)
	if err != nil {
		return nil, fmt.Errorf("parsing page %s: %w", rawURL, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPage, rawURL)
	}
	page.Title = title
	page.Text = text
	return page, nil
}

// download retrieves the raw page body through a rate-limited collector.
func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	collector := colly.NewCollector(colly.MaxDepth(1))
	collector.SetRequestTimeout(f.timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.parallelism,
		Delay:       f.delay,
	}); err != nil {
		return nil, fmt.Errorf("configuring crawler: %w", err)
	}

	var body []byte
	var fetchErr error

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	collector.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, fetchErr)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPage, rawURL)
	}
	return body, nil
}

// stripMarkup extracts the title and visible body text from raw HTML,
// discarding script, style, and navigation elements.
func stripMarkup(body []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, nav, header, footer").Remove()
	text = strings.TrimSpace(doc.Find("body").Text())
	return title, text, nil
}
