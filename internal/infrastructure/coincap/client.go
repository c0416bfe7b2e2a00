package coincap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"coinsnap/internal/domain"
)

const DefaultBaseURL = "https://rest.coincap.io/v3"

// APIError captures a non-200 answer from CoinCap.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "coincap API error"
	}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Sprintf("coincap API error %d: authentication failed, check the API key", e.StatusCode)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("coincap API error %d: rate limit exceeded, try again later", e.StatusCode)
	}
	return fmt.Sprintf("coincap API error %d: %s", e.StatusCode, e.Body)
}

// Config tunes the client.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client reads asset snapshots from the CoinCap v3 REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a client. Zero values in cfg fall back to defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	st := gobreaker.Settings{
		Name:    "coincap",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// An unknown asset id says nothing about API health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    gobreaker.NewCircuitBreaker(st),
	}
}

type listResponse struct {
	Data []domain.AssetRecord `json:"data"`
}

type assetResponse struct {
	Data domain.AssetRecord `json:"data"`
}

// ListAssets returns up to limit assets ordered as the API returns them.
// A response without data yields nil, nil.
func (c *Client) ListAssets(ctx context.Context, limit int) ([]domain.AssetRecord, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	log.Info().Int("limit", limit).Msg("Fetching assets from CoinCap")

	var out listResponse
	if err := c.get(ctx, "/assets", params, &out); err != nil {
		return nil, err
	}
	log.Debug().Int("count", len(out.Data)).Msg("CoinCap assets retrieved")
	return out.Data, nil
}

// GetAsset returns one asset by its API identifier, e.g. "bitcoin".
func (c *Client) GetAsset(ctx context.Context, id string) (domain.AssetRecord, error) {
	log.Info().Str("asset", id).Msg("Fetching asset from CoinCap")

	var out assetResponse
	err := c.get(ctx, "/assets/"+url.PathEscape(id), nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	if out.Data == nil {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrAssetNotFound)
	}
	return out.Data, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, path, params)
	})
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(body.([]byte)))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Malformed CoinCap response")
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the API key; log the path only.
		log.Error().Str("path", path).Msg("CoinCap request failed")
		return nil, fmt.Errorf("request %s: %w", path, redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		log.Error().
			Int("status", resp.StatusCode).
			Str("path", path).
			Dur("duration", time.Since(start)).
			Msg(apiErr.Error())
		return nil, apiErr
	}
	return body, nil
}

// redact strips the request URL, which contains the API key, from
// transport errors.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
