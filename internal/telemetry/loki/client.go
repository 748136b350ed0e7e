// Package loki provides a client to push log entries to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters we avoid in Loki label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// eventFields is the subset of a provisioning event JSON used for labels and timestamp.
type eventFields struct {
	TenantID  string `json:"tenantId"`
	EventType string `json:"eventType"`
	Source    string `json:"source"`
	CreatedAt string `json:"createdAt"`
}

// Client pushes lines to one Loki instance.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100). Streams carry job=<job>.
func NewClient(baseURL, job string) *Client {
	if job == "" {
		job = "nova"
	}
	return &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		job:     job,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// PushEventJSON parses the event JSON (Kafka message value), extracts timestamp and labels, and pushes to Loki.
// If parsing fails, the raw line is pushed with current time and no extra labels.
func (c *Client) PushEventJSON(ctx context.Context, rawJSON []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var fields eventFields
	if err := json.Unmarshal(rawJSON, &fields); err == nil {
		if fields.TenantID != "" {
			labels["tenant_id"] = fields.TenantID
		}
		if fields.EventType != "" {
			labels["event_type"] = fields.EventType
		}
		if fields.Source != "" {
			labels["source"] = fields.Source
		}
		if t, err := time.Parse(time.RFC3339Nano, fields.CreatedAt); err == nil && !t.IsZero() {
			ts = t
		}
	}
	return c.Push(ctx, ts, string(rawJSON), labels)
}

// Push sends a single log line. Returns an error if the request fails or Loki returns non-2xx.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	if c.baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = c.job
	for k, v := range labels {
		if sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	payload, err := json.Marshal(PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{fmt.Sprintf("%d", timestamp.UnixNano()), line}},
		}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
