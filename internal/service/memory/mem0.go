package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/memchat/backend/internal/remote"
)

const (
	mem0Service        = "mem0"
	DefaultMem0BaseURL = "https://api.mem0.ai"
)

// Mem0Client talks to the hosted mem0 REST API.
type Mem0Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewMem0Client returns a client for baseURL authenticated with apiKey. An
// empty key is sent as-is and surfaces as an authentication failure.
func NewMem0Client(baseURL, apiKey string, timeout time.Duration) *Mem0Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultMem0BaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Mem0Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

type mem0Record struct {
	ID        string  `json:"id"`
	Memory    string  `json:"memory"`
	Score     float64 `json:"score"`
	Event     string  `json:"event"`
	CreatedAt string  `json:"created_at"`
	Data      *struct {
		Memory string `json:"memory"`
	} `json:"data"`
}

// Remember stores items as memories owned by userID.
func (c *Mem0Client) Remember(ctx context.Context, items []Message, userID string) ([]Record, error) {
	payload := map[string]any{
		"messages": items,
		"user_id":  userID,
	}
	body, err := c.do(ctx, http.MethodPost, "/v1/memories/", nil, payload)
	if err != nil {
		return nil, remote.Wrap(mem0Service, "add", err)
	}
	records, err := decodeRecords(body)
	if err != nil {
		return nil, remote.Wrap(mem0Service, "add", err)
	}
	return records, nil
}

// Recall returns up to limit memories relevant to query, best match first.
func (c *Mem0Client) Recall(ctx context.Context, query, userID string, limit int) ([]Record, error) {
	payload := map[string]any{
		"query":   query,
		"user_id": userID,
	}
	if limit > 0 {
		payload["limit"] = limit
	}
	body, err := c.do(ctx, http.MethodPost, "/v1/memories/search/", nil, payload)
	if err != nil {
		return nil, remote.Wrap(mem0Service, "search", err)
	}
	records, err := decodeRecords(body)
	if err != nil {
		return nil, remote.Wrap(mem0Service, "search", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ListAll returns every memory stored for userID.
func (c *Mem0Client) ListAll(ctx context.Context, userID string) ([]Record, error) {
	query := url.Values{"user_id": []string{userID}}
	body, err := c.do(ctx, http.MethodGet, "/v1/memories/", query, nil)
	if err != nil {
		return nil, remote.Wrap(mem0Service, "get_all", err)
	}
	records, err := decodeRecords(body)
	if err != nil {
		return nil, remote.Wrap(mem0Service, "get_all", err)
	}
	return records, nil
}

// Close releases idle connections.
func (c *Mem0Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Mem0Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("mem0 http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// decodeRecords accepts both the bare-array and the {"results": [...]}
// response shapes. Queued (asynchronous) add responses decode to no records.
func decodeRecords(body []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var raw []mem0Record
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	} else {
		var wrapped struct {
			Results []mem0Record `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		raw = wrapped.Results
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		text := item.Memory
		if text == "" && item.Data != nil {
			text = item.Data.Memory
		}
		record := Record{ID: item.ID, Memory: text, Score: item.Score}
		if ts, err := time.Parse(time.RFC3339Nano, item.CreatedAt); err == nil {
			record.CreatedAt = ts
		}
		records = append(records, record)
	}
	return records, nil
}
