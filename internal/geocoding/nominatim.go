package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/communes/pkg/batch/support/util/logger"
)

const (
	// DefaultBaseURL is the public OpenStreetMap Nominatim service.
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "communes-batch/1.0"
	DefaultTimeout   = 10 * time.Second
)

// NominatimConfig configures a NominatimClient.
type NominatimConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// NominatimClient implements Geocoder with the Nominatim search API.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

var _ Geocoder = (*NominatimClient)(nil)

// NewNominatimClient creates a NominatimClient. Zero values of cfg fall back to the defaults.
func NewNominatimClient(cfg NominatimConfig) *NominatimClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &NominatimClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// searchResult is one entry of the search response. Coordinates are JSON strings.
type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Lookup asks for the best match of query.
func (c *NominatimClient) Lookup(ctx context.Context, query string) (float64, float64, bool, error) {
	endpoint := fmt.Sprintf("%s/search?%s", c.baseURL, url.Values{
		"format": {"json"},
		"limit":  {"1"},
		"q":      {query},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, false, exception.NewBatchError("geocoding", fmt.Sprintf("failed to build request for '%s'", query), err, false, false)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return 0, 0, false, ctxErr
		}
		return 0, 0, false, &TransientNetworkError{Query: query, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return 0, 0, false, &TransientNetworkError{Query: query, StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, 0, false, exception.NewBatchErrorf("geocoding", "unexpected HTTP status %d for '%s': %s", resp.StatusCode, query, strings.TrimSpace(string(body)))
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, 0, false, exception.NewBatchError("geocoding", fmt.Sprintf("failed to decode response for '%s'", query), err, false, false)
	}
	if len(results) == 0 {
		logger.Debugf("Nominatim: no result for '%s'.", query)
		return 0, 0, false, nil
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(results[0].Lat), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(results[0].Lon), 64)
	if latErr != nil || lonErr != nil {
		logger.Warnf("Nominatim: unusable coordinates for '%s': lat=%q lon=%q", query, results[0].Lat, results[0].Lon)
		return 0, 0, false, nil
	}
	logger.Debugf("Nominatim: '%s' resolved to %f,%f (%s).", query, lat, lon, results[0].DisplayName)
	return lat, lon, true, nil
}
