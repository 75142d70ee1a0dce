package infrastructure

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"attributiongo/internal/domain"
	"attributiongo/pkg/logger"
	"attributiongo/pkg/metrics"

	"golang.org/x/time/rate"
)

// implements domain.SpendSource and domain.ExportClient
type HTTPClient struct {
	client      *http.Client
	spendURL    string
	sinkURL     string
	sinkSecret  string
	logger      *logger.Logger
	metrics     *metrics.Metrics
	rateLimiter *rate.Limiter
}

// creates a new HTTP client
func NewHTTPClient(spendURL, sinkURL, sinkSecret string, timeout time.Duration, ratePerSecond int, logger *logger.Logger, metrics *metrics.Metrics) *HTTPClient {
	if ratePerSecond <= 0 {
		ratePerSecond = 100
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		spendURL:    spendURL,
		sinkURL:     sinkURL,
		sinkSecret:  sinkSecret,
		logger:      logger,
		metrics:     metrics,
		rateLimiter: rate.NewLimiter(rate.Limit(ratePerSecond), 10),
	}
}

// fetches raw spend records from the upstream ads API
func (c *HTTPClient) FetchSpendData(ctx context.Context) (*domain.SpendData, error) {
	if c.spendURL == "" {
		return nil, fmt.Errorf("spend API URL not configured")
	}

	start := time.Now()

	// Apply rate limiting
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.metrics.RecordExternalAPIFailure("spend", "rate_limit")
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.spendURL, nil)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("spend", "request_creation")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("spend", "network_error")
		return nil, fmt.Errorf("failed to fetch spend data: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordExternalAPICall("spend", fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return nil, fmt.Errorf("spend API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("spend", "read_body")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var spendData domain.SpendData
	if err := json.Unmarshal(body, &spendData); err != nil {
		c.metrics.RecordExternalAPIFailure("spend", "json_parse")
		return nil, fmt.Errorf("failed to parse spend data: %w", err)
	}

	c.metrics.RecordExternalAPICall("spend", "success", duration)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"url":      c.spendURL,
		"duration": duration,
		"records":  len(spendData.External.Ads.Spend),
	}).Info("Successfully fetched spend data")

	return &spendData, nil
}

// pushes an attribution report to the sink
func (c *HTTPClient) Export(ctx context.Context, report domain.AttributionReport) error {
	if c.sinkURL == "" {
		return fmt.Errorf("sink URL not configured")
	}

	start := time.Now()

	// Apply rate limiting
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.metrics.RecordExternalAPIFailure("sink", "rate_limit")
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("sink", "json_marshal")
		return fmt.Errorf("failed to marshal attribution report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sinkURL, bytes.NewReader(payload))
	if err != nil {
		c.metrics.RecordExternalAPIFailure("sink", "request_creation")
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	// Add HMAC signature if secret is provided
	if c.sinkSecret != "" {
		req.Header.Set("X-Signature", SignPayload(c.sinkSecret, payload))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("sink", "network_error")
		return fmt.Errorf("failed to export report: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordExternalAPICall("sink", fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return fmt.Errorf("sink API returned status %d", resp.StatusCode)
	}

	c.metrics.RecordExternalAPICall("sink", "success", duration)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"url":        c.sinkURL,
		"duration":   duration,
		"rows":       report.Result.TableRows.Len(),
		"total_cost": report.Result.TotalCost,
	}).Info("Successfully exported attribution report")

	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret
func SignPayload(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
