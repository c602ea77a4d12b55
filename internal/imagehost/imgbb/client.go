// Package imgbb uploads logo images to the ImgBB hosting API.
package imgbb

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-directory/internal/backfill"
	"github.com/JakeFAU/product-directory/internal/metrics"
)

// DefaultEndpoint is the ImgBB v1 upload URL.
const DefaultEndpoint = "https://api.imgbb.com/1/upload"

const maxErrorBody = 1024

// Config holds ImgBB credentials.
type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// Client implements backfill.ImageHost.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

type uploadResponse struct {
	Data struct {
		ID         string `json:"id"`
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Success bool `json:"success"`
	Status  int  `json:"status"`
}

// New returns a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("imgbb api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}, nil
}

// Upload posts img as a base64 multipart form and returns the hosted URL.
func (c *Client) Upload(ctx context.Context, img backfill.Image, name string) (string, error) {
	body, contentType, err := encodeForm(c.cfg.APIKey, img.Body, name)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send upload: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", zap.Error(cerr))
		}
	}()
	metrics.ObserveExternalRequest("imgbb", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &backfill.StatusError{
			Service:    backfill.ServiceImageHost,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.Data.URL == "" {
		return "", errors.New("upload response missing data.url")
	}
	c.logger.Debug("image uploaded", zap.String("name", name), zap.String("image_id", out.Data.ID))
	return out.Data.URL, nil
}

func encodeForm(apiKey string, image []byte, name string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	fields := [][2]string{
		{"key", apiKey},
		{"image", base64.StdEncoding.EncodeToString(image)},
		{"name", name},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}
