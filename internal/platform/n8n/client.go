// Package n8n wraps the outbound webhook calls that perform the actual
// boleto and NFSe emission. The workflows live in an external n8n
// instance; this client only knows the URLs, the credentials and the
// movement id contract.
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wanderleymp/finance-api-sub002/internal/redact"
)

// Endpoint paths, relative to the configured base URL.
const (
	boletoEmitPath = "/nuvemfiscal/boleto/emitir"
	nfseEmitPath   = "/nuvemfiscal/nfse/emitir"
)

// maxErrorBodyBytes bounds how much of a failed response body is read
// for the error message.
const maxErrorBodyBytes = 4 << 10

// Caller is the narrow interface the task dispatcher depends on.
type Caller interface {
	EmitBoleto(ctx context.Context, movementID int64) error
	EmitNFSe(ctx context.Context, movementID int64) error
}

// Config holds the webhook endpoints and credentials.
type Config struct {
	BaseURL         string
	APISecret       string
	APIKey          string
	BoletoCancelURL string
}

// Client calls the n8n webhook endpoints over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ Caller = (*Client)(nil)

// NewClient creates a webhook client. A nil httpClient gets a default
// with a 30s timeout; emission workflows are slow but not unbounded.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.With("component", "n8n"),
	}
}

// EmitBoleto triggers the boleto emission workflow for the movement.
// This endpoint authenticates with a bearer token.
func (c *Client) EmitBoleto(ctx context.Context, movementID int64) error {
	return c.post(ctx, c.cfg.BaseURL+boletoEmitPath, movementPayload(movementID), map[string]string{
		"Authorization": "Bearer " + c.cfg.APISecret,
	})
}

// EmitNFSe triggers the NFSe emission workflow for the movement. This
// endpoint takes the shared secret as an api key header rather than a
// bearer token.
func (c *Client) EmitNFSe(ctx context.Context, movementID int64) error {
	return c.post(ctx, c.cfg.BaseURL+nfseEmitPath, movementPayload(movementID), map[string]string{
		"apikey": c.cfg.APISecret,
	})
}

// CancelBoleto requests cancellation of an already-emitted boleto by its
// external id. Cancellation is synchronous: no task is created for it.
func (c *Client) CancelBoleto(ctx context.Context, externalBoletoID string) error {
	payload := map[string]string{"external_boleto_id": externalBoletoID}
	return c.post(ctx, c.cfg.BoletoCancelURL, payload, map[string]string{
		"apikey": c.cfg.APIKey,
	})
}

func movementPayload(movementID int64) map[string]int64 {
	return map[string]int64{"movement_id": movementID}
}

// post sends a JSON payload and treats any non-2xx status as an error,
// carrying a bounded slice of the response body for diagnosis.
func (c *Client) post(ctx context.Context, url string, payload any, headers map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook call failed: %s", redact.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("webhook call completed",
		"url", redact.String(url),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, redact.String(string(detail)))
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
