package types

import (
	"regexp"
	"testing"
)

func TestNewSession(t *testing.T) {
	s := NewSession("库存管理系统", "面向中小企业")

	if s.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", s.Status)
	}
	if len(s.Dimensions) != 4 {
		t.Errorf("expected 4 dimensions, got %d", len(s.Dimensions))
	}
	for _, key := range DimensionOrder {
		state, ok := s.Dimensions[key]
		if !ok {
			t.Errorf("missing dimension %s", key)
			continue
		}
		if state.Coverage != 0 || len(state.Items) != 0 {
			t.Errorf("dimension %s not zeroed: %+v", key, state)
		}
	}
	if s.InterviewLog == nil || s.ReferenceDocs == nil || s.ResearchDocs == nil {
		t.Error("slices should be initialized, not nil")
	}
}

func TestGenerateSessionID(t *testing.T) {
	pattern := regexp.MustCompile(`^dv-\d{14}-[0-9a-f]{8}$`)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id := GenerateSessionID()
		if !pattern.MatchString(id) {
			t.Fatalf("id %q does not match expected format", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestFormalCount(t *testing.T) {
	s := NewSession("test", "")
	s.InterviewLog = []InterviewEntry{
		{Dimension: DimCustomerNeeds, IsFollowUp: false},
		{Dimension: DimCustomerNeeds, IsFollowUp: true},
		{Dimension: DimCustomerNeeds, IsFollowUp: false},
		{Dimension: DimTechConstraints, IsFollowUp: false},
	}

	if got := s.FormalCount(DimCustomerNeeds); got != 2 {
		t.Errorf("expected 2 formal entries, got %d", got)
	}
	if got := s.FormalCount(DimTechConstraints); got != 1 {
		t.Errorf("expected 1 formal entry, got %d", got)
	}
	if got := s.FormalCount(DimBusinessProcess); got != 0 {
		t.Errorf("expected 0 formal entries, got %d", got)
	}
}

func TestLogsForDimension(t *testing.T) {
	s := NewSession("test", "")
	s.InterviewLog = []InterviewEntry{
		{Question: "q1", Dimension: DimCustomerNeeds},
		{Question: "q2", Dimension: DimBusinessProcess},
		{Question: "q3", Dimension: DimCustomerNeeds},
	}

	logs := s.LogsForDimension(DimCustomerNeeds)
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].Question != "q1" || logs[1].Question != "q3" {
		t.Error("logs should preserve chronological order")
	}
}

func TestDimensionName(t *testing.T) {
	if got := DimensionName(DimCustomerNeeds); got != "客户需求" {
		t.Errorf("unexpected name: %s", got)
	}
	if got := DimensionName("unknown_dim"); got != "unknown_dim" {
		t.Errorf("unknown dimension should fall back to key, got %s", got)
	}
}
