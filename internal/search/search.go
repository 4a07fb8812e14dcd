// Package search provides web search enrichment for interview prompts via
// the Zhipu web_search_prime MCP endpoint. Searches are best-effort:
// failures degrade to an empty result set and never block question
// generation.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"deepvision/internal/logging"
)

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Searcher performs web searches for prompt enrichment.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// DefaultEndpoint is the Zhipu web_search_prime MCP endpoint.
const DefaultEndpoint = "https://open.bigmodel.cn/api/mcp/web_search_prime/mcp"

// MCPClient implements Searcher over the MCP JSON-RPC protocol with
// SSE-framed responses.
type MCPClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
	messageID int
}

// NewMCPClient creates an MCP search client.
func NewMCPClient(apiKey, baseURL string, timeout time.Duration) *MCPClient {
	if baseURL == "" {
		baseURL = DefaultEndpoint
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &MCPClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// makeRequest sends one JSON-RPC call and decodes the SSE-framed response.
func (c *MCPClient) makeRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	c.messageID++
	id := c.messageID
	sessionID := c.sessionID
	c.mu.Unlock()

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// The endpoint authenticates via a URL parameter, not a header
	url := c.baseURL + "?Authorization=" + c.apiKey

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	// Responses are SSE-framed: id:N\nevent:message\ndata:{json}\n\n
	var rpcResp *rpcResponse
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var parsed rpcResponse
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			continue
		}
		rpcResp = &parsed
		break
	}
	if rpcResp == nil {
		// Some deployments reply with plain JSON instead of SSE
		var parsed rpcResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("unparseable SSE response: %s", truncate(string(body), 200))
		}
		rpcResp = &parsed
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("MCP error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

// initialize performs the MCP handshake to acquire a session id.
func (c *MCPClient) initialize(ctx context.Context) error {
	_, err := c.makeRequest(ctx, "initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    "deep-vision",
			"version": "1.0.0",
		},
	})
	return err
}

// callTool invokes an MCP tool, initializing the session first if needed.
func (c *MCPClient) callTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	needsInit := c.sessionID == ""
	c.mu.Unlock()

	if needsInit {
		if err := c.initialize(ctx); err != nil {
			return nil, fmt.Errorf("MCP initialize failed: %w", err)
		}
	}

	return c.makeRequest(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
}

// toolResult is the MCP tool-call result envelope.
type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// searchEntry is one hit inside the tool's JSON payload.
type searchEntry struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Link    string `json:"link"`
	URL     string `json:"url"`
}

// Search runs a query and returns up to maxResults hits.
func (c *MCPClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("search API key not configured")
	}
	if maxResults <= 0 {
		maxResults = 3
	}

	raw, err := c.callTool(ctx, "webSearchPrime", map[string]interface{}{
		"search_query":          query,
		"search_recency_filter": "noLimit",
		"content_size":          "medium",
	})
	if err != nil {
		return nil, err
	}

	var result toolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tool result: %w", err)
	}

	results := make([]Result, 0, maxResults)
	for _, item := range result.Content {
		if item.Type != "text" {
			continue
		}
		results = append(results, parseTextPayload(item.Text, maxResults-len(results))...)
		if len(results) >= maxResults {
			results = results[:maxResults]
			break
		}
	}

	logging.Get(logging.CategorySearch).Info("query %q returned %d results", query, len(results))

	return results, nil
}

// parseTextPayload decodes the nested JSON the tool embeds in its text
// content. The payload may be double-encoded, a list, a single object, or
// plain prose; all degrade to usable results.
func parseTextPayload(text string, limit int) []Result {
	if limit <= 0 {
		return nil
	}

	// Shed one level of string encoding if present
	if strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(text), &inner); err == nil {
			text = inner
		}
	}

	var list []searchEntry
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		out := make([]Result, 0, limit)
		for _, entry := range list {
			if entry.Title == "" && entry.Content == "" {
				continue
			}
			out = append(out, entryToResult(entry, text))
			if len(out) >= limit {
				break
			}
		}
		return out
	}

	var single searchEntry
	if err := json.Unmarshal([]byte(text), &single); err == nil && (single.Title != "" || single.Content != "") {
		return []Result{entryToResult(single, text)}
	}

	// Unstructured text still counts as one result
	return []Result{{
		Title:   "搜索结果",
		Content: truncate(text, 300),
	}}
}

func entryToResult(entry searchEntry, fullText string) Result {
	title := truncate(entry.Title, 100)
	if title == "" {
		title = "搜索结果"
	}
	content := entry.Content
	if content == "" {
		content = fullText
	}
	url := entry.Link
	if url == "" {
		url = entry.URL
	}
	return Result{
		Title:   title,
		Content: truncate(content, 300),
		URL:     url,
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
