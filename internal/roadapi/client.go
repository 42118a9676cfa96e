package roadapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/smartroad/telemetry/internal/httputil"
)

const (
	locationPath = "/api/location"
	coveragePath = "/api/cctv"
)

// Client performs the HTTP exchanges against the smart-road backend. It holds
// no mutable state beyond its configuration; every call is independent.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
}

// NewClient creates a transport client for the given base URL. Timeouts are
// the embedded http.Client's responsibility; pass one configured with the
// desired per-request timeout.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: baseURL, http: hc}
}

// SendLocation submits one telemetry sample and returns the parsed response.
func (c *Client) SendLocation(ctx context.Context, req *TelemetryRequest) (*TelemetryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Code: CodeServerError, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+locationPath, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Code: CodeNetworkError, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var resp TelemetryResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoadCoverage fetches the monitored coverage zones.
func (c *Client) LoadCoverage(ctx context.Context) (*CoverageResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+coveragePath, nil)
	if err != nil {
		return nil, &TransportError{Code: CodeNetworkError, Message: err.Error()}
	}
	httpReq.Header.Set("Accept", "application/json")

	var resp CoverageResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do executes the request and decodes the body into out, converting every
// failure mode into a TransportError.
func (c *Client) do(req *http.Request, out interface{}) error {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Code: CodeNetworkError, Message: err.Error()}
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &TransportError{Code: CodeNetworkError, Message: fmt.Sprintf("read body: %v", err), Status: httpResp.StatusCode}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var envelope ErrorEnvelope
		if jsonErr := json.Unmarshal(raw, &envelope); jsonErr == nil && envelope.Error.Code != "" {
			return &TransportError{
				Code:    codeFromEnvelope(envelope.Error.Code),
				Message: envelope.Error.Message,
				Status:  httpResp.StatusCode,
			}
		}
		return &TransportError{
			Code:    CodeServerError,
			Message: fmt.Sprintf("HTTP %d", httpResp.StatusCode),
			Status:  httpResp.StatusCode,
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Code: CodeServerError, Message: fmt.Sprintf("malformed response body: %v", err), Status: httpResp.StatusCode}
	}
	return nil
}
