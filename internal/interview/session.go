package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deepvision/internal/contextwin"
	"deepvision/internal/logging"
	"deepvision/internal/store"
	"deepvision/internal/types"
	"deepvision/internal/worker"
)

var (
	// ErrNothingToUndo means the interview log is empty.
	ErrNothingToUndo = errors.New("no answer to undo")
	// ErrNoInterviewLog means an operation needs at least one recorded turn.
	ErrNoInterviewLog = errors.New("interview log is empty")
	// ErrDocNotFound means the named document is not attached to the session.
	ErrDocNotFound = errors.New("document not found")
)

// targetFormalQuestions is how many non-follow-up answers complete a
// dimension.
const targetFormalQuestions = 3

// restartDocMaxLength caps the markdown snapshot produced by a research
// restart so it stays prompt friendly.
const restartDocMaxLength = 2000

// Answer is one submitted reply to a generated question.
type Answer struct {
	Question   string
	Answer     string
	Dimension  string
	Options    []string
	IsFollowUp bool
}

// Manager owns session lifecycle and mutation. All mutations persist
// through the store before returning.
type Manager struct {
	store   store.Store
	history *contextwin.HistoryCompressor
	runner  *worker.Runner
}

// NewManager builds a Manager. history and runner are optional; without
// them the context digest is refreshed synchronously on demand only.
func NewManager(s store.Store, history *contextwin.HistoryCompressor, runner *worker.Runner) *Manager {
	return &Manager{store: s, history: history, runner: runner}
}

// Create starts a new session in progress.
func (m *Manager) Create(topic, description string) (*types.Session, error) {
	session := types.NewSession(topic, description)
	if err := m.store.PutSession(session); err != nil {
		return nil, err
	}
	logging.Session("session %s created for topic %q", session.SessionID, topic)
	return session, nil
}

// Get loads a session.
func (m *Manager) Get(id string) (*types.Session, error) {
	return m.store.GetSession(id)
}

// List returns summaries of all sessions, newest first.
func (m *Manager) List() ([]store.SessionListing, error) {
	return m.store.ListSessions()
}

// Delete removes a session.
func (m *Manager) Delete(id string) error {
	if err := m.store.DeleteSession(id); err != nil {
		return err
	}
	logging.Session("session %s deleted", id)
	return nil
}

// Update applies non-empty topic/description/status changes.
func (m *Manager) Update(id, topic, description, status string) (*types.Session, error) {
	session, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if topic != "" {
		session.Topic = topic
	}
	if description != "" {
		session.Description = description
	}
	if status != "" {
		if !types.IsValidStatus(status) {
			return nil, fmt.Errorf("invalid status %q", status)
		}
		session.Status = status
	}
	session.Touch()
	if err := m.store.PutSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// SetStatus transitions the session lifecycle state.
func (m *Manager) SetStatus(id, status string) (*types.Session, error) {
	return m.Update(id, "", "", status)
}

// SubmitAnswer records an answer, evaluates it for follow-up depth, and
// updates dimension items and coverage. Only formal answers (not
// follow-ups) become dimension items or count toward coverage. The context
// digest refresh runs in the background when a runner is configured.
func (m *Manager) SubmitAnswer(id string, a Answer) (*types.Session, Evaluation, error) {
	session, err := m.store.GetSession(id)
	if err != nil {
		return nil, Evaluation{}, err
	}

	eval := Evaluate(a.Question, a.Answer, a.Dimension, a.Options, a.IsFollowUp)
	if eval.NeedsFollowUp || eval.SuggestAIEval {
		logging.SessionDebug("answer evaluation: signals=%v follow_up=%v ai_eval=%v",
			eval.Signals, eval.NeedsFollowUp, eval.SuggestAIEval)
	}

	session.InterviewLog = append(session.InterviewLog, types.InterviewEntry{
		Timestamp:       types.UTCNow(),
		Question:        a.Question,
		Answer:          a.Answer,
		Dimension:       a.Dimension,
		Options:         a.Options,
		IsFollowUp:      a.IsFollowUp,
		NeedsFollowUp:   eval.NeedsFollowUp,
		FollowUpSignals: eval.Signals,
	})

	if dim, ok := session.Dimensions[a.Dimension]; ok {
		if !a.IsFollowUp {
			dim.Items = append(dim.Items, types.DimensionItem{
				Name:        a.Answer,
				Description: a.Question,
				Priority:    "中",
			})
		}
		dim.Coverage = coverage(session.FormalCount(a.Dimension))
	}

	session.Touch()
	if err := m.store.PutSession(session); err != nil {
		return nil, Evaluation{}, err
	}

	if m.history != nil && m.runner != nil {
		m.runner.Submit("context-digest-"+session.SessionID, func(ctx context.Context) {
			m.refreshDigest(ctx, session.SessionID)
		})
	}

	return session, eval, nil
}

func (m *Manager) refreshDigest(ctx context.Context, id string) {
	session, err := m.store.GetSession(id)
	if err != nil {
		logging.WorkerError("digest refresh: load session %s: %v", id, err)
		return
	}
	if !m.history.UpdateContextSummary(ctx, session) {
		return
	}
	if err := m.store.PutSession(session); err != nil {
		logging.WorkerError("digest refresh: save session %s: %v", id, err)
	}
}

// UndoAnswer removes the most recent answer. A formal answer also pops its
// dimension item; coverage is recomputed either way.
func (m *Manager) UndoAnswer(id string) (*types.Session, error) {
	session, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if len(session.InterviewLog) == 0 {
		return nil, ErrNothingToUndo
	}

	last := session.InterviewLog[len(session.InterviewLog)-1]
	session.InterviewLog = session.InterviewLog[:len(session.InterviewLog)-1]

	if dim, ok := session.Dimensions[last.Dimension]; ok {
		if !last.IsFollowUp && len(dim.Items) > 0 {
			dim.Items = dim.Items[:len(dim.Items)-1]
		}
		dim.Coverage = coverage(session.FormalCount(last.Dimension))
	}

	session.Touch()
	if err := m.store.PutSession(session); err != nil {
		return nil, err
	}
	logging.Session("session %s: undid answer for dimension %s", id, last.Dimension)
	return session, nil
}

// AddReferenceDoc attaches a reference document to the session.
func (m *Manager) AddReferenceDoc(id string, doc types.Document) (*types.Session, error) {
	return m.addDoc(id, doc, false)
}

// AddResearchDoc attaches a prior research result to the session.
func (m *Manager) AddResearchDoc(id string, doc types.Document) (*types.Session, error) {
	return m.addDoc(id, doc, true)
}

func (m *Manager) addDoc(id string, doc types.Document, research bool) (*types.Session, error) {
	session, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if doc.UploadedAt == "" {
		doc.UploadedAt = types.UTCNow()
	}
	if research {
		session.ResearchDocs = append(session.ResearchDocs, doc)
	} else {
		session.ReferenceDocs = append(session.ReferenceDocs, doc)
	}
	session.Touch()
	if err := m.store.PutSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// RemoveReferenceDoc detaches a reference document by name.
func (m *Manager) RemoveReferenceDoc(id, name string) (*types.Session, error) {
	return m.removeDoc(id, name, false)
}

// RemoveResearchDoc detaches a research document by name.
func (m *Manager) RemoveResearchDoc(id, name string) (*types.Session, error) {
	return m.removeDoc(id, name, true)
}

func (m *Manager) removeDoc(id, name string, research bool) (*types.Session, error) {
	session, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}

	docs := session.ReferenceDocs
	if research {
		docs = session.ResearchDocs
	}
	kept := docs[:0:0]
	for _, doc := range docs {
		if doc.Name != name {
			kept = append(kept, doc)
		}
	}
	if len(kept) == len(docs) {
		return nil, fmt.Errorf("%w: %s", ErrDocNotFound, name)
	}
	if research {
		session.ResearchDocs = kept
	} else {
		session.ReferenceDocs = kept
	}

	session.Touch()
	if err := m.store.PutSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// RestartResearch snapshots the current interview into a markdown research
// document, then resets the interview log, dimension progress, and status.
// Attached documents survive the reset. It returns the snapshot name.
func (m *Manager) RestartResearch(id string) (string, error) {
	session, err := m.store.GetSession(id)
	if err != nil {
		return "", err
	}
	if len(session.InterviewLog) == 0 {
		return "", ErrNoInterviewLog
	}

	content := buildRestartSnapshot(session)
	now := types.UTCNow()
	docName := fmt.Sprintf("调研记录-%s.md",
		strings.NewReplacer(":", "-", " ", "_").Replace(now))

	session.ResearchDocs = append(session.ResearchDocs, types.Document{
		Name:       docName,
		Type:       ".md",
		Content:    content,
		UploadedAt: now,
	})

	session.InterviewLog = []types.InterviewEntry{}
	session.Dimensions = types.NewDimensionStates()
	session.Status = types.StatusInProgress
	session.Touch()

	if err := m.store.PutSession(session); err != nil {
		return "", err
	}
	logging.Session("session %s: interview archived to %s and reset", id, docName)
	return docName, nil
}

func buildRestartSnapshot(session *types.Session) string {
	var b strings.Builder
	topic := session.Topic
	if topic == "" {
		topic = "未命名调研"
	}
	fmt.Fprintf(&b, "# 调研记录 - %s\n\n生成时间: %s\n\n", topic, types.UTCNow())

	if session.Description != "" {
		desc := strings.NewReplacer("\n", " ", "\r", "").Replace(session.Description)
		fmt.Fprintf(&b, "主题描述: %s\n\n", desc)
	}

	b.WriteString("## 访谈记录\n\n")
	cleaner := strings.NewReplacer("**", "", "`", "")
	for _, dim := range types.DimensionOrder {
		logs := session.LogsForDimension(dim)
		if len(logs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", types.DimensionName(dim))
		for _, entry := range logs {
			fmt.Fprintf(&b, "Q: %s\n\n", cleaner.Replace(entry.Question))
			fmt.Fprintf(&b, "A: %s\n\n", cleaner.Replace(entry.Answer))
			b.WriteString("---\n\n")
		}
	}

	content := b.String()
	if len([]rune(content)) > restartDocMaxLength {
		content = truncateRunes(content, restartDocMaxLength) + "\n\n...(内容过长已截断)"
	}
	return content
}

// DimensionComplete reports whether a dimension has at least target formal
// answers and none of them still awaits a follow-up. A target below 1 falls
// back to the default.
func DimensionComplete(session *types.Session, dimension string, target int) bool {
	if target < 1 {
		target = targetFormalQuestions
	}
	logs := session.LogsForDimension(dimension)
	formal := 0
	for _, entry := range logs {
		if !entry.IsFollowUp {
			formal++
		}
	}
	if formal < target {
		return false
	}
	for _, entry := range logs {
		if !entry.IsFollowUp && entry.NeedsFollowUp {
			return false
		}
	}
	return true
}

func coverage(formalCount int) int {
	c := formalCount * 100 / targetFormalQuestions
	if c > 100 {
		c = 100
	}
	return c
}
