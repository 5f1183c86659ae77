// Package removebg calls the external background removal API.
package removebg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	apperrors "github.com/clearcut-bot/clearcut-bot/internal/errors"
	"github.com/clearcut-bot/clearcut-bot/pkg/config"
)

const apiName = "remove.bg"

// Supported output formats for processed images.
const (
	FormatPNG = "png"
	FormatJPG = "jpg"
)

// Client is an HTTP client for the background removal service,
// guarded by a circuit breaker so a broken upstream fails fast.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	size       string
	breaker    *apperrors.CircuitBreaker
	log        *slog.Logger
}

// NewClient constructs a Client from configuration.
func NewClient(cfg config.RemoveBGConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		size:       cfg.Size,
		breaker:    apperrors.NewCircuitBreaker(),
		log:        log,
	}
}

// Process submits the image and returns the processed bytes in the requested format.
func (c *Client) Process(ctx context.Context, image io.Reader, format string) ([]byte, error) {
	payload, contentType, err := c.encodeRequest(image, format)
	if err != nil {
		return nil, err
	}

	var result []byte
	call := func() error {
		var callErr error
		result, callErr = c.do(ctx, payload, contentType)
		return callErr
	}

	err = apperrors.WithRetry(ctx, func() error {
		return c.breaker.Call(call)
	})
	if err != nil {
		if err == apperrors.ErrCircuitOpen {
			return nil, apperrors.NewExternalAPIError(apiName, err)
		}
		return nil, err
	}

	return result, nil
}

func (c *Client) encodeRequest(image io.Reader, format string) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image_file", "image.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, "", fmt.Errorf("copy image payload: %w", err)
	}

	size := c.size
	if size == "" {
		size = "auto"
	}
	if err := writer.WriteField("size", size); err != nil {
		return nil, "", fmt.Errorf("write size field: %w", err)
	}

	if format != "" {
		if err := writer.WriteField("format", format); err != nil {
			return nil, "", fmt.Errorf("write format field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, payload []byte, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalAPIError(apiName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewExternalAPIError(apiName, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := decodeError(resp.StatusCode, body)
		c.log.Error("background removal request failed",
			slog.Int("status", resp.StatusCode),
			slog.Any("error", apiErr),
		)

		appErr := apperrors.NewExternalAPIError(apiName, apiErr)
		if resp.StatusCode < http.StatusInternalServerError {
			// client-side rejections (bad key, out of API credits) won't
			// get better on a retry
			appErr.Retryable = false
		}
		return nil, appErr
	}

	return body, nil
}

type errorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func decodeError(status int, body []byte) error {
	var decoded errorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && len(decoded.Errors) > 0 {
		return fmt.Errorf("status %d: %s", status, decoded.Errors[0].Title)
	}

	return fmt.Errorf("status %d", status)
}
