package interview

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"deepvision/internal/config"
	"deepvision/internal/contextwin"
	"deepvision/internal/llm"
	"deepvision/internal/metrics"
	"deepvision/internal/prompt"
	"deepvision/internal/report"
	"deepvision/internal/store"
	"deepvision/internal/types"
)

type stubClient struct {
	prompts  []string
	response string
	err      error
}

func (s *stubClient) Complete(_ context.Context, p string, _ int) (string, error) {
	s.prompts = append(s.prompts, p)
	return s.response, s.err
}

func (s *stubClient) CompleteWithSystem(ctx context.Context, _ string, p string, maxTokens int) (string, error) {
	return s.Complete(ctx, p, maxTokens)
}

type engineFixture struct {
	engine  *Engine
	manager *Manager
	store   store.Store
	reports *report.Registry
	client  *stubClient
}

func newEngineFixture(t *testing.T, client *stubClient) *engineFixture {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewFileStore(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.DefaultConfig()
	collector := metrics.NewCollector(s, true)
	compressor := contextwin.NewDocumentCompressor(nil, s, collector, cfg)
	history := contextwin.NewHistoryCompressor(nil, collector, cfg)
	builder := prompt.NewBuilder(compressor, history, nil, cfg)

	reports, err := report.NewRegistry(filepath.Join(dir, "reports"))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	var llmClient llm.Client
	if client != nil {
		llmClient = client
	}

	return &engineFixture{
		engine:  NewEngine(llmClient, builder, s, reports, collector, cfg),
		manager: NewManager(s, history, nil),
		store:   s,
		reports: reports,
		client:  client,
	}
}

func TestNextQuestionFallbackWithoutClient(t *testing.T) {
	f := newEngineFixture(t, nil)
	session, _ := f.manager.Create("园区管理", "")

	q, err := f.engine.NextQuestion(context.Background(), session.SessionID, types.DimCustomerNeeds)
	if err != nil {
		t.Fatalf("NextQuestion failed: %v", err)
	}
	if q.AIGenerated {
		t.Error("fallback questions are not AI generated")
	}
	if q.Question == "" || len(q.Options) == 0 {
		t.Errorf("question = %+v", q)
	}

	// The bank advances with answered count
	f.manager.SubmitAnswer(session.SessionID, Answer{
		Question: q.Question, Answer: "回答", Dimension: types.DimCustomerNeeds,
	})
	q2, err := f.engine.NextQuestion(context.Background(), session.SessionID, types.DimCustomerNeeds)
	if err != nil {
		t.Fatalf("second NextQuestion failed: %v", err)
	}
	if q2.Question == q.Question {
		t.Error("fallback bank should advance to the next question")
	}
}

func TestNextQuestionCompletedDimension(t *testing.T) {
	f := newEngineFixture(t, nil)
	session, _ := f.manager.Create("园区管理", "")

	good := strings.Repeat("非常详细并且包含数字 123 的充分回答内容", 5)
	for i := 0; i < 3; i++ {
		f.manager.SubmitAnswer(session.SessionID, Answer{
			Question: "q", Answer: good, Dimension: types.DimBusinessProcess,
		})
	}

	q, err := f.engine.NextQuestion(context.Background(), session.SessionID, types.DimBusinessProcess)
	if err != nil {
		t.Fatalf("NextQuestion failed: %v", err)
	}
	if !q.Completed {
		t.Errorf("expected completed marker, got %+v", q)
	}
}

func TestNextQuestionInvalidDimension(t *testing.T) {
	f := newEngineFixture(t, nil)
	session, _ := f.manager.Create("园区管理", "")

	if _, err := f.engine.NextQuestion(context.Background(), session.SessionID, "vibes"); err == nil {
		t.Error("unknown dimension should be rejected")
	}
}

func TestNextQuestionAIPath(t *testing.T) {
	client := &stubClient{response: `{"question": "核心痛点是什么？", "options": ["效率低", "成本高", "体验差"], "multi_select": true}`}
	f := newEngineFixture(t, client)
	session, _ := f.manager.Create("园区管理", "统一管理园区资产")

	q, err := f.engine.NextQuestion(context.Background(), session.SessionID, types.DimCustomerNeeds)
	if err != nil {
		t.Fatalf("NextQuestion failed: %v", err)
	}
	if !q.AIGenerated || q.Question != "核心痛点是什么？" {
		t.Errorf("question = %+v", q)
	}
	if q.Dimension != types.DimCustomerNeeds {
		t.Errorf("dimension = %q", q.Dimension)
	}

	if len(client.prompts) != 1 {
		t.Fatalf("client calls = %d", len(client.prompts))
	}
	p := client.prompts[0]
	for _, want := range []string{"园区管理", "统一管理园区资产", "客户需求", "## 输出格式（必须严格遵守）"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestNextQuestionFollowUpDirectiveInPrompt(t *testing.T) {
	client := &stubClient{response: `{"question": "您提到需要，能否具体说明场景？", "options": ["A", "B", "C"], "is_follow_up": true}`}
	f := newEngineFixture(t, client)
	session, _ := f.manager.Create("园区管理", "")

	f.manager.SubmitAnswer(session.SessionID, Answer{
		Question: "需要数据分析吗？", Answer: "需要", Dimension: types.DimCustomerNeeds,
	})

	q, err := f.engine.NextQuestion(context.Background(), session.SessionID, types.DimCustomerNeeds)
	if err != nil {
		t.Fatalf("NextQuestion failed: %v", err)
	}
	if !q.IsFollowUp {
		t.Error("expected follow-up question")
	}
	if !strings.Contains(client.prompts[0], "## 追问模式（必须执行）") {
		t.Error("prompt should carry the mandatory follow-up section")
	}
}

func TestNextQuestionBadResponse(t *testing.T) {
	client := &stubClient{response: "抱歉，无法生成。"}
	f := newEngineFixture(t, client)
	session, _ := f.manager.Create("园区管理", "")

	if _, err := f.engine.NextQuestion(context.Background(), session.SessionID, types.DimCustomerNeeds); err == nil {
		t.Error("unparseable response should error")
	}
}

func TestNextQuestionRecordsMetrics(t *testing.T) {
	client := &stubClient{response: `{"question": "q", "options": ["a", "b", "c"]}`}
	f := newEngineFixture(t, client)
	session, _ := f.manager.Create("园区管理", "")

	if _, err := f.engine.NextQuestion(context.Background(), session.SessionID, types.DimCustomerNeeds); err != nil {
		t.Fatalf("NextQuestion failed: %v", err)
	}

	collector := metrics.NewCollector(f.store, true)
	stats := collector.Statistics(0)
	if stats.TotalCalls != 1 || stats.SuccessfulCalls != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGenerateReportAI(t *testing.T) {
	client := &stubClient{response: "# 调研报告\n\n内容"}
	f := newEngineFixture(t, client)
	session, _ := f.manager.Create("园区管理", "")
	f.manager.SubmitAnswer(session.SessionID, Answer{
		Question: "痛点？", Answer: "巡检效率低", Dimension: types.DimCustomerNeeds,
	})

	result, err := f.engine.GenerateReport(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if !result.AIGenerated {
		t.Error("expected AI generated report")
	}
	if !strings.HasPrefix(result.Name, "deep-vision-") {
		t.Errorf("report name = %q", result.Name)
	}

	content, err := f.reports.Get(result.Name)
	if err != nil {
		t.Fatalf("stored report unreadable: %v", err)
	}
	if !strings.Contains(content, "## 附录：完整访谈记录") {
		t.Error("appendix should follow the AI report body")
	}
	if !strings.Contains(content, "巡检效率低") {
		t.Error("appendix should carry the full interview log")
	}

	updated, _ := f.store.GetSession(session.SessionID)
	if updated.Status != types.StatusCompleted {
		t.Errorf("status = %q, want completed", updated.Status)
	}
}

func TestGenerateReportFallsBackOnAIFailure(t *testing.T) {
	client := &stubClient{err: context.DeadlineExceeded}
	f := newEngineFixture(t, client)
	session, _ := f.manager.Create("园区管理", "")

	result, err := f.engine.GenerateReport(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if result.AIGenerated {
		t.Error("failed AI call should fall back to the simple report")
	}

	content, _ := f.reports.Get(result.Name)
	if !strings.Contains(content, "需求调研报告") {
		t.Errorf("unexpected report content:\n%s", content)
	}
}

func TestGenerateReportWithoutClient(t *testing.T) {
	f := newEngineFixture(t, nil)
	session, _ := f.manager.Create("园区管理", "")

	result, err := f.engine.GenerateReport(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if result.AIGenerated {
		t.Error("no client means no AI report")
	}
}
