package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"partflow/m/domain"
)

// Client talks to the spreadsheet sync backend.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Request is the body of POST /sync.
type Request struct {
	SpreadsheetID string            `json:"spreadsheetId"`
	Customers     []domain.Customer `json:"customers"`
	Orders        []domain.Order    `json:"orders"`
	Items         []domain.Item     `json:"items"`
	Mode          domain.SyncMode   `json:"mode"`
}

// Result is the structured outcome of a sync call. PulledItems is nil when
// the backend sent no inventory and non-nil (possibly empty) when it did.
type Result struct {
	Success         bool              `json:"success"`
	Message         string            `json:"message,omitempty"`
	PulledItems     []domain.Item     `json:"pulledItems,omitempty"`
	PulledCustomers []domain.Customer `json:"pulledCustomers,omitempty"`
	PulledOrders    []domain.Order    `json:"pulledOrders,omitempty"`
	Logs            []string          `json:"logs,omitempty"`
}

type response struct {
	Success         *bool             `json:"success"`
	Message         string            `json:"message"`
	PulledItems     []domain.Item     `json:"pulledItems"`
	PulledCustomers []domain.Customer `json:"pulledCustomers"`
	PulledOrders    []domain.Order    `json:"pulledOrders"`
	Logs            []string          `json:"logs"`
}

// NewClient creates a sync client with its own HTTP timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// SyncData pushes the request and returns the backend's verdict. A non-2xx
// status or an explicit success=false is reported in the Result; only
// transport and decoding problems come back as an error.
func (c *Client) SyncData(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}
	res.Logs = append(res.Logs, fmt.Sprintf("Connecting to sync backend (%s mode)...", req.Mode))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/sync", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sync request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sync response: %w", err)
	}

	var decoded response
	decodeErr := json.Unmarshal(raw, &decoded)
	res.Logs = append(res.Logs, decoded.Logs...)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Message = decoded.Message
		if decodeErr != nil || res.Message == "" {
			res.Message = fmt.Sprintf("backend request failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		res.Logs = append(res.Logs, "Backend error: "+res.Message)
		return res, nil
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode sync response: %w", decodeErr)
	}
	if decoded.Success != nil && !*decoded.Success {
		res.Message = decoded.Message
		if res.Message == "" {
			res.Message = "sync failed"
		}
		res.Logs = append(res.Logs, "Backend error: "+res.Message)
		return res, nil
	}

	res.Success = true
	res.Message = decoded.Message
	res.PulledItems = decoded.PulledItems
	res.PulledCustomers = decoded.PulledCustomers
	res.PulledOrders = decoded.PulledOrders
	res.Logs = append(res.Logs,
		"Backend sync successful.",
		fmt.Sprintf("Fetched %d items from cloud.", len(decoded.PulledItems)))
	return res, nil
}
