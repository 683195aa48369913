// Package catalog talks to the Bird Catalog Service: hotspot listings,
// per-hotspot species pools and per-species recording detail.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"singbirds-quiz-service/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// Client wraps the catalog HTTP API and surfaces failures as domain errors.
type Client struct {
	baseURL    string
	origin     string
	httpClient *http.Client
	logger     *slog.Logger
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

// WithOrigin sets the origin used to resolve relative spectrogram paths.
// It defaults to the scheme and host of the base URL.
func WithOrigin(origin string) Option {
	return func(c *Client) {
		if origin != "" {
			c.origin = strings.TrimRight(origin, "/")
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

// NewClient builds a client for the API rooted at baseURL, e.g.
// "https://api.singbirds.net/api".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		origin:     originOf(baseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "catalog")
	return c
}

// ListHotspots returns every hotspot the catalog knows.
func (c *Client) ListHotspots(ctx context.Context) ([]domain.Hotspot, error) {
	var payload []hotspotPayload
	if err := c.getJSON(ctx, "/hotspots/", &payload); err != nil {
		return nil, err
	}

	hotspots := make([]domain.Hotspot, 0, len(payload))
	for _, item := range payload {
		if item.ID == "" {
			continue
		}
		hotspots = append(hotspots, domain.Hotspot{ID: string(item.ID), Name: item.LocName})
	}
	return hotspots, nil
}

// ListSpecies returns the species pool for a hotspot in catalog order. An
// empty or missing list is reported as domain.ErrEmptyPool.
func (c *Client) ListSpecies(ctx context.Context, hotspotID string) ([]domain.Species, error) {
	var payload speciesListPayload
	if err := c.getJSON(ctx, "/hotspots/"+url.PathEscape(hotspotID)+"/birds/", &payload); err != nil {
		return nil, err
	}

	species := make([]domain.Species, 0, len(payload.Birds))
	for _, bird := range payload.Birds {
		if bird.ID == "" || bird.ComName == "" {
			continue
		}
		species = append(species, domain.Species{ID: string(bird.ID), CommonName: bird.ComName})
	}
	if len(species) == 0 {
		return nil, fmt.Errorf("hotspot %s: %w", hotspotID, domain.ErrEmptyPool)
	}
	return species, nil
}

// FetchDetail returns a random recording and its spectrogram for a species.
// Missing fields yield domain.ErrMalformedPayload and a response for another
// species yields domain.ErrIdentityMismatch.
func (c *Client) FetchDetail(ctx context.Context, speciesID string) (domain.SpeciesDetail, error) {
	var payload detailEnvelope
	if err := c.getJSON(ctx, "/birds/"+url.PathEscape(speciesID)+"/random-detail/", &payload); err != nil {
		return domain.SpeciesDetail{}, err
	}

	detail := payload.BirdDetail
	switch {
	case detail == nil:
		return domain.SpeciesDetail{}, fmt.Errorf("species %s: bird_detail missing: %w", speciesID, domain.ErrMalformedPayload)
	case detail.ID != "" && string(detail.ID) != speciesID:
		return domain.SpeciesDetail{}, fmt.Errorf("requested %s, got %s: %w", speciesID, detail.ID, domain.ErrIdentityMismatch)
	case detail.RecordingURL == "":
		return domain.SpeciesDetail{}, fmt.Errorf("species %s: recording_url missing: %w", speciesID, domain.ErrMalformedPayload)
	case detail.Spectrogram == "":
		return domain.SpeciesDetail{}, fmt.Errorf("species %s: spectrogram missing: %w", speciesID, domain.ErrMalformedPayload)
	}

	return domain.SpeciesDetail{
		SpeciesID:      speciesID,
		RecordingURL:   detail.RecordingURL,
		SpectrogramURL: c.resolveMediaURL(detail.Spectrogram),
	}, nil
}

// resolveMediaURL prefixes root-relative paths with the catalog origin.
func (c *Client) resolveMediaURL(raw string) string {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return c.origin + raw
	}
	return raw
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("catalog request failed", "path", path, "error", err)
		return fmt.Errorf("GET %s: %w: %w", path, domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s: %w: %w", path, domain.ErrNetwork, err)
	}
	c.logger.Debug("catalog response", "path", path, "status", resp.StatusCode,
		"bytes", len(body), "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d: %w", path, resp.StatusCode, domain.ErrNetwork)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w: %v", path, domain.ErrMalformedPayload, err)
	}
	return nil
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
