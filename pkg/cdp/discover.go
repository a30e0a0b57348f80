package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// TargetInfo is one debuggable target as reported by the DevTools HTTP
// endpoint's /json/list.
type TargetInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// DiscoverPageTarget queries the DevTools HTTP endpoint and returns the
// websocket URL of the first page target.
func DiscoverPageTarget(ctx context.Context, endpoint string) (string, error) {
	targets, err := ListTargets(ctx, endpoint)
	if err != nil {
		return "", err
	}
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			return t.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("no page target at %s", endpoint)
}

// ListTargets fetches all debuggable targets from the endpoint.
func ListTargets(ctx context.Context, endpoint string) ([]TargetInfo, error) {
	url := strings.TrimRight(endpoint, "/") + "/json/list"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("querying %s: unexpected status %s", url, resp.Status)
	}
	var targets []TargetInfo
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decoding target list: %w", err)
	}
	return targets, nil
}
