// Package types provides shared type definitions used across Deep Vision
// packages. This package exists to break import cycles between the context
// window, prompt, and interview packages. Types in this package should be
// foundational data structures with no complex dependencies.
package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// DIMENSIONS
// =============================================================================

// The four fixed requirement-gathering dimensions.
const (
	DimCustomerNeeds      = "customer_needs"
	DimBusinessProcess    = "business_process"
	DimTechConstraints    = "tech_constraints"
	DimProjectConstraints = "project_constraints"
)

// DimensionOrder is the canonical display/report order of the dimensions.
var DimensionOrder = []string{
	DimCustomerNeeds,
	DimBusinessProcess,
	DimTechConstraints,
	DimProjectConstraints,
}

// DimensionInfo describes one dimension for prompts and reports.
type DimensionInfo struct {
	Name        string
	Description string
	KeyAspects  []string
}

// Dimensions holds the metadata for the four fixed dimensions.
var Dimensions = map[string]DimensionInfo{
	DimCustomerNeeds: {
		Name:        "客户需求",
		Description: "核心痛点、期望价值、使用场景、用户角色",
		KeyAspects:  []string{"核心痛点", "期望价值", "使用场景", "用户角色"},
	},
	DimBusinessProcess: {
		Name:        "业务流程",
		Description: "关键流程节点、角色分工、触发事件、异常处理",
		KeyAspects:  []string{"关键流程", "角色分工", "触发事件", "异常处理"},
	},
	DimTechConstraints: {
		Name:        "技术约束",
		Description: "现有技术栈、集成接口要求、性能指标、安全合规",
		KeyAspects:  []string{"部署方式", "系统集成", "性能要求", "安全合规"},
	},
	DimProjectConstraints: {
		Name:        "项目约束",
		Description: "预算范围、时间节点、资源限制、其他约束",
		KeyAspects:  []string{"预算范围", "时间节点", "资源限制", "优先级"},
	},
}

// DimensionName returns the display name for a dimension key, falling back
// to the key itself for unknown dimensions.
func DimensionName(key string) string {
	if info, ok := Dimensions[key]; ok {
		return info.Name
	}
	return key
}

// IsValidDimension reports whether key is one of the four fixed dimensions.
func IsValidDimension(key string) bool {
	_, ok := Dimensions[key]
	return ok
}

// =============================================================================
// SESSION AGGREGATE
// =============================================================================

// Session lifecycle statuses.
const (
	StatusInProgress = "in_progress"
	StatusPaused     = "paused"
	StatusCompleted  = "completed"
)

// IsValidStatus reports whether s is a known lifecycle status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusInProgress, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// DimensionItem is one collected requirement item within a dimension.
type DimensionItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// DimensionState tracks coverage and collected items for one dimension.
type DimensionState struct {
	Coverage int             `json:"coverage"`
	Items    []DimensionItem `json:"items"`
}

// InterviewEntry is one Q&A turn in the interview log.
type InterviewEntry struct {
	Timestamp       string   `json:"timestamp"`
	Question        string   `json:"question"`
	Answer          string   `json:"answer"`
	Dimension       string   `json:"dimension"`
	Options         []string `json:"options"`
	IsFollowUp      bool     `json:"is_follow_up"`
	NeedsFollowUp   bool     `json:"needs_follow_up"`
	FollowUpSignals []string `json:"follow_up_signals,omitempty"`
}

// Document is a reference or research document attached to a session.
type Document struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Content    string `json:"content"`
	UploadedAt string `json:"uploaded_at"`
}

// ContextSummary caches a compressed digest of interview entries older than
// the sliding window. LogCount records how many entries the text covers.
type ContextSummary struct {
	Text      string `json:"text"`
	LogCount  int    `json:"log_count"`
	UpdatedAt string `json:"updated_at"`
}

// Session is the root aggregate, persisted as one record keyed by SessionID.
type Session struct {
	SessionID      string                     `json:"session_id"`
	Topic          string                     `json:"topic"`
	Description    string                     `json:"description,omitempty"`
	CreatedAt      string                     `json:"created_at"`
	UpdatedAt      string                     `json:"updated_at"`
	Status         string                     `json:"status"`
	Dimensions     map[string]*DimensionState `json:"dimensions"`
	ReferenceDocs  []Document                 `json:"reference_docs"`
	ResearchDocs   []Document                 `json:"research_docs"`
	InterviewLog   []InterviewEntry           `json:"interview_log"`
	ContextSummary *ContextSummary            `json:"context_summary,omitempty"`
}

// NewSession creates an in-progress session with empty dimension state.
func NewSession(topic, description string) *Session {
	now := UTCNow()
	return &Session{
		SessionID:     GenerateSessionID(),
		Topic:         topic,
		Description:   description,
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        StatusInProgress,
		Dimensions:    NewDimensionStates(),
		ReferenceDocs: []Document{},
		ResearchDocs:  []Document{},
		InterviewLog:  []InterviewEntry{},
	}
}

// NewDimensionStates returns zeroed state for the four fixed dimensions.
func NewDimensionStates() map[string]*DimensionState {
	states := make(map[string]*DimensionState, len(DimensionOrder))
	for _, key := range DimensionOrder {
		states[key] = &DimensionState{Coverage: 0, Items: []DimensionItem{}}
	}
	return states
}

// LogsForDimension returns the interview entries belonging to one dimension,
// in chronological order.
func (s *Session) LogsForDimension(dimension string) []InterviewEntry {
	var logs []InterviewEntry
	for _, entry := range s.InterviewLog {
		if entry.Dimension == dimension {
			logs = append(logs, entry)
		}
	}
	return logs
}

// FormalCount returns the number of non-follow-up entries for a dimension.
func (s *Session) FormalCount(dimension string) int {
	count := 0
	for _, entry := range s.InterviewLog {
		if entry.Dimension == dimension && !entry.IsFollowUp {
			count++
		}
	}
	return count
}

// Touch updates the session's modification timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = UTCNow()
}

// =============================================================================
// QUESTION
// =============================================================================

// Question is the structured object the model must return for each
// interview turn.
type Question struct {
	Question            string   `json:"question"`
	Options             []string `json:"options"`
	MultiSelect         bool     `json:"multi_select"`
	IsFollowUp          bool     `json:"is_follow_up"`
	FollowUpReason      string   `json:"follow_up_reason,omitempty"`
	ConflictDetected    bool     `json:"conflict_detected"`
	ConflictDescription string   `json:"conflict_description,omitempty"`

	// Set by the engine, not the model
	Dimension   string `json:"dimension,omitempty"`
	AIGenerated bool   `json:"ai_generated"`
	Completed   bool   `json:"completed,omitempty"`
}

// =============================================================================
// HELPERS
// =============================================================================

// UTCNow returns the current UTC time in the session timestamp format.
func UTCNow() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// GenerateSessionID returns an id of the form dv-<timestamp>-<8 hex chars>.
func GenerateSessionID() string {
	timestamp := time.Now().Format("20060102150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "dv-" + timestamp + "-" + suffix
}
