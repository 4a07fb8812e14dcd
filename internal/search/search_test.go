package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// sseReply writes an MCP result as an SSE-framed JSON-RPC response.
func sseReply(w http.ResponseWriter, id int, result string) {
	fmt.Fprintf(w, "id:%d\nevent:message\ndata:{\"jsonrpc\":\"2.0\",\"id\":%d,\"result\":%s}\n\n", id, id, result)
}

func newMCPTestServer(t *testing.T, searchResult string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		switch req.Method {
		case "initialize":
			w.Header().Set("Mcp-Session-Id", "sess-123")
			sseReply(w, req.ID, `{"protocolVersion":"2024-11-05"}`)
		case "tools/call":
			if r.Header.Get("Mcp-Session-Id") != "sess-123" {
				t.Error("tools/call missing session id header")
			}
			sseReply(w, req.ID, searchResult)
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	}))
}

func TestMCPSearchListPayload(t *testing.T) {
	payload := `[{"title":"库存管理基础","content":"库存周转与补货策略概述","link":"https://example.com/a"},{"title":"流程设计","content":"业务流程建模","url":"https://example.com/b"}]`
	encoded, _ := json.Marshal(payload)
	result := fmt.Sprintf(`{"content":[{"type":"text","text":%s}]}`, string(encoded))

	server := newMCPTestServer(t, result)
	defer server.Close()

	client := NewMCPClient("test-key", server.URL, 5*time.Second)
	results, err := client.Search(context.Background(), "库存管理系统", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "库存管理基础" {
		t.Errorf("unexpected first title: %q", results[0].Title)
	}
	if results[0].URL != "https://example.com/a" {
		t.Errorf("link field should map to URL, got %q", results[0].URL)
	}
	if results[1].URL != "https://example.com/b" {
		t.Errorf("url field should map to URL, got %q", results[1].URL)
	}
}

func TestMCPSearchUnstructuredText(t *testing.T) {
	result := `{"content":[{"type":"text","text":"plain prose, not JSON at all"}]}`

	server := newMCPTestServer(t, result)
	defer server.Close()

	client := NewMCPClient("test-key", server.URL, 5*time.Second)
	results, err := client.Search(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 fallback result, got %d", len(results))
	}
	if results[0].Title != "搜索结果" {
		t.Errorf("expected placeholder title, got %q", results[0].Title)
	}
	if results[0].Content != "plain prose, not JSON at all" {
		t.Errorf("unexpected content: %q", results[0].Content)
	}
}

func TestMCPSearchMaxResults(t *testing.T) {
	payload := `[{"title":"a","content":"1"},{"title":"b","content":"2"},{"title":"c","content":"3"},{"title":"d","content":"4"}]`
	encoded, _ := json.Marshal(payload)
	result := fmt.Sprintf(`{"content":[{"type":"text","text":%s}]}`, string(encoded))

	server := newMCPTestServer(t, result)
	defer server.Close()

	client := NewMCPClient("test-key", server.URL, 5*time.Second)
	results, err := client.Search(context.Background(), "anything", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected results capped at 2, got %d", len(results))
	}
}

func TestMCPSearchRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprintf(w, "data:{\"jsonrpc\":\"2.0\",\"id\":%d,\"error\":{\"code\":-32000,\"message\":\"quota exhausted\"}}\n\n", req.ID)
	}))
	defer server.Close()

	client := NewMCPClient("test-key", server.URL, 5*time.Second)
	if _, err := client.Search(context.Background(), "anything", 3); err == nil {
		t.Error("expected error from RPC error response")
	}
}

func TestMCPSearchMissingKey(t *testing.T) {
	client := NewMCPClient("", "", 0)
	if _, err := client.Search(context.Background(), "anything", 3); err == nil {
		t.Error("expected error without api key")
	}
}

func TestShouldSearch(t *testing.T) {
	cases := []struct {
		topic     string
		dimension string
		enabled   bool
		want      bool
	}{
		{"库存管理系统", "customer_needs", true, true},      // tech keyword "系统"
		{"企业文化调研", "customer_needs", true, false},     // no keywords
		{"企业文化调研", "tech_constraints", true, true},    // dimension override
		{"2026规划", "business_process", true, true},     // time keyword
		{"库存管理系统", "tech_constraints", false, false},  // disabled
	}

	for _, tc := range cases {
		if got := ShouldSearch(tc.enabled, tc.topic, tc.dimension); got != tc.want {
			t.Errorf("ShouldSearch(%v, %q, %q) = %v, want %v",
				tc.enabled, tc.topic, tc.dimension, got, tc.want)
		}
	}
}

func TestBuildQuery(t *testing.T) {
	if got := BuildQuery("库存管理系统", "tech_constraints", "技术约束"); got != "库存管理系统 技术选型 最佳实践 2026" {
		t.Errorf("unexpected query: %q", got)
	}
	if got := BuildQuery("库存管理系统", "business_process", "业务流程"); got != "库存管理系统 业务流程 最佳实践" {
		t.Errorf("unexpected query: %q", got)
	}
	if got := BuildQuery("库存管理系统", "other", "其他"); got != "库存管理系统 其他" {
		t.Errorf("unexpected query: %q", got)
	}
	if got := BuildQuery("  ", "tech_constraints", ""); got != "" {
		t.Errorf("expected empty query for blank topic, got %q", got)
	}
}
