// Package airtable implements backfill.RecordStore against the Airtable REST API.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-directory/internal/backfill"
	"github.com/JakeFAU/product-directory/internal/metrics"
)

// DefaultBaseURL is the public Airtable API root.
const DefaultBaseURL = "https://api.airtable.com/v0"

const (
	maxErrorBody = 1024
	// maxPages guards against a server that keeps returning the same offset.
	maxPages = 10000
)

// Config controls which table the client reads and writes.
type Config struct {
	BaseURL   string
	APIKey    string
	BaseID    string
	Table     string
	View      string
	LogoField string
	Timeout   time.Duration
}

// Waiter blocks until a request to url may be sent.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Client talks to one Airtable table.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter Waiter
	logger  *zap.Logger
}

type listResponse struct {
	Records []backfill.Record `json:"records"`
	Offset  string            `json:"offset"`
}

type updateRequest struct {
	Fields map[string]any `json:"fields"`
}

// New builds a Client. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("airtable api key is required")
	}
	if cfg.BaseID == "" || cfg.Table == "" {
		return nil, errors.New("airtable base id and table name are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LogoField == "" {
		cfg.LogoField = backfill.DefaultFieldNames().Logo
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// List returns every record in the configured view, following offset pagination.
func (c *Client) List(ctx context.Context) ([]backfill.Record, error) {
	var (
		records []backfill.Record
		offset  string
	)
	for page := 0; page < maxPages; page++ {
		resp, err := c.listPage(ctx, offset)
		if err != nil {
			return nil, fmt.Errorf("list page %d: %w", page+1, err)
		}
		records = append(records, resp.Records...)
		c.logger.Debug("listed page",
			zap.Int("page", page+1),
			zap.Int("records", len(resp.Records)),
		)
		if resp.Offset == "" {
			return records, nil
		}
		if resp.Offset == offset {
			return nil, fmt.Errorf("list page %d: offset did not advance", page+1)
		}
		offset = resp.Offset
	}
	return nil, fmt.Errorf("list records: exceeded %d pages", maxPages)
}

func (c *Client) listPage(ctx context.Context, offset string) (listResponse, error) {
	params := url.Values{}
	if c.cfg.View != "" {
		params.Set("view", c.cfg.View)
	}
	if offset != "" {
		params.Set("offset", offset)
	}
	endpoint := c.tableURL()
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var out listResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return listResponse{}, err
	}
	return out, nil
}

// UpdateLogo replaces the logo attachment list of one record.
func (c *Client) UpdateLogo(ctx context.Context, recordID string, logo []backfill.Attachment) error {
	if recordID == "" {
		return errors.New("record id is required")
	}
	body, err := json.Marshal(updateRequest{Fields: map[string]any{c.cfg.LogoField: logo}})
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	endpoint := c.tableURL() + "/" + url.PathEscape(recordID)
	if err := c.do(ctx, http.MethodPatch, endpoint, body, nil); err != nil {
		return fmt.Errorf("update record %s: %w", recordID, err)
	}
	return nil
}

func (c *Client) tableURL() string {
	return fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.BaseID), url.PathEscape(c.cfg.Table))
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", zap.Error(cerr))
		}
	}()
	metrics.ObserveExternalRequest("airtable", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &backfill.StatusError{
			Service:    backfill.ServiceStore,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
