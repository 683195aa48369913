// Package wiki supplies best-effort species descriptions from the Wikipedia
// action API: an opensearch lookup for the page title, the intro extract and
// a lead image thumbnail.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/k3a/html2text"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"singbirds-quiz-service/internal/domain"
)

// Placeholder texts shown when no description can be produced.
const (
	TextNoPage      = "No Wikipedia page found for this bird."
	TextUnavailable = "Description not available."
	TextFailed      = "Failed to fetch description."
)

const (
	DefaultBaseURL       = "https://en.wikipedia.org/w/api.php"
	defaultUserAgent     = "singbirds-quiz-service/1.0 (bird call quiz)"
	defaultThumbnailSize = 500
)

// Client queries Wikipedia and caches the outcome per species name.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	limiter       *rate.Limiter
	cache         *cache.Cache
	thumbnailSize int
	userAgent     string
	logger        *slog.Logger
}

// Config holds the tunables for a Client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	CacheTTL      time.Duration
	RatePerSecond float64
	ThumbnailSize int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = defaultThumbnailSize
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	c := &Client{
		baseURL:       cfg.BaseURL,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(limit, 2),
		cache:         cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		thumbnailSize: cfg.ThumbnailSize,
		userAgent:     defaultUserAgent,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "wiki")
	return c
}

// Describe never fails: lookups that find nothing yield a cached placeholder
// and transport failures yield an uncached one.
func (c *Client) Describe(ctx context.Context, commonName string) domain.Description {
	key := strings.ToLower(strings.TrimSpace(commonName))
	if key == "" {
		return domain.Description{Name: commonName, Text: TextNoPage}
	}
	if cached, found := c.cache.Get(key); found {
		return cached.(domain.Description)
	}

	desc, err := c.lookup(ctx, commonName)
	if err != nil {
		c.logger.Warn("description lookup failed", "species", commonName, "error", err)
		return domain.Description{Name: commonName, Text: TextFailed}
	}
	c.cache.Set(key, desc, cache.DefaultExpiration)
	return desc
}

func (c *Client) lookup(ctx context.Context, commonName string) (domain.Description, error) {
	desc := domain.Description{Name: commonName}

	title, pageURL, err := c.search(ctx, commonName)
	if err != nil {
		return desc, err
	}
	if title == "" {
		desc.Text = TextNoPage
		return desc, nil
	}

	extract, err := c.extract(ctx, title)
	switch {
	case errors.Is(err, domain.ErrDescriptionUnavailable):
		extract = ""
	case err != nil:
		return desc, err
	}
	text := strings.TrimSpace(html2text.HTML2Text(extract))
	if text == "" {
		desc.Text = TextUnavailable
		return desc, nil
	}

	desc.Text = text
	desc.SourceURL = pageURL
	desc.Found = true

	// The image is decoration; its absence does not spoil the description.
	if thumb, err := c.thumbnail(ctx, title); err == nil {
		desc.ImageURL = thumb
	} else {
		c.logger.Debug("thumbnail lookup failed", "title", title, "error", err)
	}
	return desc, nil
}

// search resolves a species name to its best page title and URL. The
// opensearch response is a heterogeneous array: [query, [titles], [descriptions], [urls]].
func (c *Client) search(ctx context.Context, name string) (string, string, error) {
	params := url.Values{
		"action":    {"opensearch"},
		"search":    {name},
		"limit":     {"1"},
		"namespace": {"0"},
		"format":    {"json"},
	}
	resp, err := c.get(ctx, params)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	value, err := jason.NewValueFromReader(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("decode opensearch: %w", err)
	}
	parts, err := value.Array()
	if err != nil || len(parts) < 4 {
		return "", "", fmt.Errorf("unexpected opensearch shape: %w", domain.ErrMalformedPayload)
	}

	title := firstString(parts[1])
	return title, firstString(parts[3]), nil
}

func (c *Client) extract(ctx context.Context, title string) (string, error) {
	page, err := c.firstPage(ctx, url.Values{
		"action":  {"query"},
		"prop":    {"extracts"},
		"exintro": {"1"},
		"titles":  {title},
		"format":  {"json"},
	})
	if err != nil {
		return "", err
	}
	extract, err := page.GetString("extract")
	if err != nil {
		return "", nil
	}
	return extract, nil
}

func (c *Client) thumbnail(ctx context.Context, title string) (string, error) {
	page, err := c.firstPage(ctx, url.Values{
		"action":      {"query"},
		"prop":        {"pageimages"},
		"titles":      {title},
		"pithumbsize": {strconv.Itoa(c.thumbnailSize)},
		"format":      {"json"},
	})
	if err != nil {
		return "", err
	}
	return page.GetString("thumbnail", "source")
}

// firstPage returns the single page object under query.pages, which is keyed
// by page id.
func (c *Client) firstPage(ctx context.Context, params url.Values) (*jason.Object, error) {
	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	obj, err := jason.NewObjectFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", params.Get("prop"), err)
	}
	pages, err := obj.GetObject("query", "pages")
	if err != nil {
		return nil, domain.ErrDescriptionUnavailable
	}
	for id, page := range pages.Map() {
		if id == "-1" {
			continue
		}
		if pageObj, err := page.Object(); err == nil {
			return pageObj, nil
		}
	}
	return nil, domain.ErrDescriptionUnavailable
}

func (c *Client) get(ctx context.Context, params url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w: %v", params.Get("action"), domain.ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s request returned status %d: %w", params.Get("action"), resp.StatusCode, domain.ErrNetwork)
	}
	return resp, nil
}

func firstString(v *jason.Value) string {
	items, err := v.Array()
	if err != nil || len(items) == 0 {
		return ""
	}
	s, err := items[0].String()
	if err != nil {
		return ""
	}
	return s
}
