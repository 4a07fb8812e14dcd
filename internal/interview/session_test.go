package interview

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"deepvision/internal/store"
	"deepvision/internal/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.NewFileStore(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewManager(s, nil, nil)
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)
	session, err := m.Create("智慧园区", "园区综合管理平台")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := m.Get(session.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Topic != "智慧园区" || got.Status != types.StatusInProgress {
		t.Errorf("session = %+v", got)
	}
}

func TestSubmitAnswerFormal(t *testing.T) {
	m := newTestManager(t)
	session, _ := m.Create("物流系统", "")

	updated, eval, err := m.SubmitAnswer(session.SessionID, Answer{
		Question:  "核心问题？",
		Answer:    "需要",
		Dimension: types.DimCustomerNeeds,
	})
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}

	if len(updated.InterviewLog) != 1 {
		t.Fatalf("log length = %d", len(updated.InterviewLog))
	}
	entry := updated.InterviewLog[0]
	if entry.Answer != "需要" || entry.Timestamp == "" {
		t.Errorf("entry = %+v", entry)
	}
	if !entry.NeedsFollowUp || !eval.NeedsFollowUp {
		t.Error("shallow answer should be marked for follow-up")
	}

	dim := updated.Dimensions[types.DimCustomerNeeds]
	if len(dim.Items) != 1 {
		t.Fatalf("items = %+v", dim.Items)
	}
	if dim.Items[0].Name != "需要" || dim.Items[0].Priority != "中" {
		t.Errorf("item = %+v", dim.Items[0])
	}
	if dim.Coverage != 33 {
		t.Errorf("coverage = %d, want 33", dim.Coverage)
	}
}

func TestSubmitAnswerFollowUpDoesNotCount(t *testing.T) {
	m := newTestManager(t)
	session, _ := m.Create("物流系统", "")

	m.SubmitAnswer(session.SessionID, Answer{
		Question: "q1", Answer: "需要", Dimension: types.DimCustomerNeeds,
	})
	updated, eval, err := m.SubmitAnswer(session.SessionID, Answer{
		Question: "追问", Answer: "嗯", Dimension: types.DimCustomerNeeds, IsFollowUp: true,
	})
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if eval.NeedsFollowUp {
		t.Error("answers to follow-ups must not trigger another follow-up")
	}

	dim := updated.Dimensions[types.DimCustomerNeeds]
	if len(dim.Items) != 1 {
		t.Errorf("follow-up should not add a dimension item, items = %d", len(dim.Items))
	}
	if dim.Coverage != 33 {
		t.Errorf("coverage = %d, follow-ups must not change coverage", dim.Coverage)
	}
}

func TestCoverageCapsAt100(t *testing.T) {
	m := newTestManager(t)
	session, _ := m.Create("物流系统", "")

	var updated *types.Session
	for i := 0; i < 4; i++ {
		updated, _, _ = m.SubmitAnswer(session.SessionID, Answer{
			Question: "q", Answer: strings.Repeat("详细的回答内容", 15), Dimension: types.DimTechConstraints,
		})
	}
	if got := updated.Dimensions[types.DimTechConstraints].Coverage; got != 100 {
		t.Errorf("coverage = %d, want 100", got)
	}
}

func TestUndoAnswer(t *testing.T) {
	m := newTestManager(t)
	session, _ := m.Create("物流系统", "")

	m.SubmitAnswer(session.SessionID, Answer{
		Question: "q1", Answer: "回答一", Dimension: types.DimCustomerNeeds,
	})
	m.SubmitAnswer(session.SessionID, Answer{
		Question: "追问", Answer: "补充", Dimension: types.DimCustomerNeeds, IsFollowUp: true,
	})

	// Undo pops the follow-up: items untouched, coverage recomputed
	updated, err := m.UndoAnswer(session.SessionID)
	if err != nil {
		t.Fatalf("UndoAnswer failed: %v", err)
	}
	if len(updated.InterviewLog) != 1 {
		t.Fatalf("log length = %d", len(updated.InterviewLog))
	}
	dim := updated.Dimensions[types.DimCustomerNeeds]
	if len(dim.Items) != 1 || dim.Coverage != 33 {
		t.Errorf("after follow-up undo: items = %d coverage = %d", len(dim.Items), dim.Coverage)
	}

	// Undo pops the formal answer and its item
	updated, err = m.UndoAnswer(session.SessionID)
	if err != nil {
		t.Fatalf("second UndoAnswer failed: %v", err)
	}
	dim = updated.Dimensions[types.DimCustomerNeeds]
	if len(dim.Items) != 0 || dim.Coverage != 0 {
		t.Errorf("after formal undo: items = %d coverage = %d", len(dim.Items), dim.Coverage)
	}

	if _, err := m.UndoAnswer(session.SessionID); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}
}

func TestRestartResearch(t *testing.T) {
	m := newTestManager(t)
	session, _ := m.Create("在线教育平台", "面向K12的\n直播课堂")

	m.AddReferenceDoc(session.SessionID, types.Document{Name: "需求.md", Type: ".md", Content: "原始需求"})
	m.SubmitAnswer(session.SessionID, Answer{
		Question: "目标`用户`？", Answer: "**学生**和家长", Dimension: types.DimCustomerNeeds,
	})

	docName, err := m.RestartResearch(session.SessionID)
	if err != nil {
		t.Fatalf("RestartResearch failed: %v", err)
	}
	if !strings.HasPrefix(docName, "调研记录-") || !strings.HasSuffix(docName, ".md") {
		t.Errorf("doc name = %q", docName)
	}

	updated, _ := m.Get(session.SessionID)
	if len(updated.InterviewLog) != 0 {
		t.Error("interview log should be reset")
	}
	if updated.Status != types.StatusInProgress {
		t.Errorf("status = %q", updated.Status)
	}
	for dim, state := range updated.Dimensions {
		if state.Coverage != 0 || len(state.Items) != 0 {
			t.Errorf("dimension %s not reset: %+v", dim, state)
		}
	}

	// Reference docs survive and the snapshot joins research docs
	if len(updated.ReferenceDocs) != 1 {
		t.Errorf("reference docs = %d", len(updated.ReferenceDocs))
	}
	if len(updated.ResearchDocs) != 1 {
		t.Fatalf("research docs = %d", len(updated.ResearchDocs))
	}
	snapshot := updated.ResearchDocs[0]
	if snapshot.Name != docName || snapshot.Type != ".md" {
		t.Errorf("snapshot = %+v", snapshot)
	}
	if !strings.Contains(snapshot.Content, "# 调研记录 - 在线教育平台") {
		t.Errorf("snapshot content missing header:\n%s", snapshot.Content)
	}
	if !strings.Contains(snapshot.Content, "主题描述: 面向K12的 直播课堂") {
		t.Error("description newlines should be flattened")
	}
	if strings.Contains(snapshot.Content, "**") || strings.Contains(snapshot.Content, "`") {
		t.Error("markdown emphasis should be stripped from Q/A text")
	}
}

func TestRestartResearchEmptyLog(t *testing.T) {
	m := newTestManager(t)
	session, _ := m.Create("空会话", "")
	if _, err := m.RestartResearch(session.SessionID); !errors.Is(err, ErrNoInterviewLog) {
		t.Errorf("expected ErrNoInterviewLog, got %v", err)
	}
}

func TestRestartSnapshotTruncation(t *testing.T) {
	m := newTestManager(t)
	session, _ := m.Create("长会话", "")
	for i := 0; i < 20; i++ {
		m.SubmitAnswer(session.SessionID, Answer{
			Question: strings.Repeat("问", 80), Answer: strings.Repeat("答", 80),
			Dimension: types.DimCustomerNeeds,
		})
	}

	if _, err := m.RestartResearch(session.SessionID); err != nil {
		t.Fatalf("RestartResearch failed: %v", err)
	}
	updated, _ := m.Get(session.SessionID)
	content := updated.ResearchDocs[0].Content
	if !strings.HasSuffix(content, "...(内容过长已截断)") {
		t.Error("oversized snapshot should carry the truncation marker")
	}
}

func TestRemoveDocs(t *testing.T) {
	m := newTestManager(t)
	session, _ := m.Create("会话", "")

	m.AddReferenceDoc(session.SessionID, types.Document{Name: "a.md", Content: "a"})
	m.AddResearchDoc(session.SessionID, types.Document{Name: "b.md", Content: "b"})

	if _, err := m.RemoveReferenceDoc(session.SessionID, "a.md"); err != nil {
		t.Fatalf("RemoveReferenceDoc failed: %v", err)
	}
	if _, err := m.RemoveReferenceDoc(session.SessionID, "a.md"); !errors.Is(err, ErrDocNotFound) {
		t.Errorf("expected ErrDocNotFound, got %v", err)
	}
	if _, err := m.RemoveResearchDoc(session.SessionID, "b.md"); err != nil {
		t.Fatalf("RemoveResearchDoc failed: %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	m := newTestManager(t)
	session, _ := m.Create("会话", "")

	updated, err := m.SetStatus(session.SessionID, types.StatusPaused)
	if err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if updated.Status != types.StatusPaused {
		t.Errorf("status = %q", updated.Status)
	}

	if _, err := m.SetStatus(session.SessionID, "archived"); err == nil {
		t.Error("invalid status should be rejected")
	}
}

func TestDimensionComplete(t *testing.T) {
	session := types.NewSession("t", "")
	good := strings.Repeat("详细充分的回答内容说明", 10)

	// Two formal answers: not complete
	for i := 0; i < 2; i++ {
		session.InterviewLog = append(session.InterviewLog, types.InterviewEntry{
			Question: "q", Answer: good, Dimension: types.DimCustomerNeeds,
		})
	}
	if DimensionComplete(session, types.DimCustomerNeeds, 0) {
		t.Error("two formal answers should not complete a dimension")
	}

	// Third formal answer but flagged for follow-up: still open
	session.InterviewLog = append(session.InterviewLog, types.InterviewEntry{
		Question: "q", Answer: "需要", Dimension: types.DimCustomerNeeds, NeedsFollowUp: true,
	})
	if DimensionComplete(session, types.DimCustomerNeeds, 0) {
		t.Error("pending follow-up should keep the dimension open")
	}

	// Follow-up answered: the pending flag on the formal entry remains,
	// so completion requires the flag itself to be absent
	session.InterviewLog[2].NeedsFollowUp = false
	if !DimensionComplete(session, types.DimCustomerNeeds, 0) {
		t.Error("three formal answers with no pending follow-up should complete")
	}

	// A raised target keeps it open
	if DimensionComplete(session, types.DimCustomerNeeds, 5) {
		t.Error("custom target of 5 should not be met by three answers")
	}
}
