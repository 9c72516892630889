package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client is a thin JSON-RPC wrapper over the node's event feed.
type Client struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
}

// ClientConfig represents the client configuration.
type ClientConfig struct {
	URL     string
	Timeout time.Duration
}

// NewClient constructs a JSON-RPC client targeting the supplied node URL.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url: strings.TrimSpace(cfg.URL),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// EventRecord mirrors one journal entry as served by vault_events.
type EventRecord struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  int64             `json:"emittedAt"`
}

type eventsPage struct {
	Events     []EventRecord `json:"events"`
	NextCursor uint64        `json:"nextCursor"`
}

// EventsAfter fetches up to limit events with sequence greater than cursor.
func (c *Client) EventsAfter(ctx context.Context, cursor uint64, limit int) ([]EventRecord, error) {
	params := map[string]interface{}{"cursor": cursor, "limit": limit}
	var page eventsPage
	if err := c.call(ctx, "vault_events", []interface{}{params}, &page); err != nil {
		return nil, err
	}
	return page.Events, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("ingest: client not configured")
	}
	id := c.nextID.Add(1)
	buf, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("ingest: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("ingest: rpc error %d %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ingest: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("ingest: empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}

var _ EventSource = (*Client)(nil)
