package interview

import (
	"context"
	"fmt"
	"time"

	"deepvision/internal/config"
	"deepvision/internal/llm"
	"deepvision/internal/logging"
	"deepvision/internal/metrics"
	"deepvision/internal/prompt"
	"deepvision/internal/report"
	"deepvision/internal/store"
	"deepvision/internal/types"
)

// Engine generates questions and reports for sessions. With no LLM client
// it degrades to the canned question bank and the deterministic report.
type Engine struct {
	client    llm.Client
	builder   *prompt.Builder
	store     store.Store
	reports   *report.Registry
	collector *metrics.Collector
	cfg       *config.Config
}

// NewEngine wires an Engine. client may be nil.
func NewEngine(client llm.Client, builder *prompt.Builder, s store.Store, reports *report.Registry, collector *metrics.Collector, cfg *config.Config) *Engine {
	return &Engine{
		client:    client,
		builder:   builder,
		store:     s,
		reports:   reports,
		collector: collector,
		cfg:       cfg,
	}
}

// NextQuestion produces the next question for a dimension. A dimension
// with enough formal answers and no pending follow-up yields a completed
// marker instead.
func (e *Engine) NextQuestion(ctx context.Context, sessionID, dimension string) (*types.Question, error) {
	if !types.IsValidDimension(dimension) {
		return nil, fmt.Errorf("unknown dimension %q", dimension)
	}

	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	if DimensionComplete(session, dimension, e.cfg.Interview.TargetPerDimension) {
		return &types.Question{Dimension: dimension, Completed: true}, nil
	}

	if e.client == nil {
		return FallbackQuestion(session, dimension), nil
	}

	directive := e.buildDirective(session, dimension)
	promptText, truncatedDocs := e.builder.Interview(ctx, session, dimension, directive)

	logging.Interview("question prompt: %d chars, %d reference docs, %d research docs",
		len([]rune(promptText)), len(session.ReferenceDocs), len(session.ResearchDocs))
	if len(truncatedDocs) > 0 {
		logging.Interview("%d documents compressed for prompt budget", len(truncatedDocs))
	}

	response, err := e.call(ctx, promptText, e.cfg.LLM.InterviewMaxTokens, "question", truncatedDocs)
	if err != nil {
		return nil, fmt.Errorf("question generation failed: %w", err)
	}

	question, err := ParseQuestion(response, dimension)
	if err != nil {
		return nil, err
	}
	return question, nil
}

// buildDirective evaluates the latest answer in the dimension and shapes
// the follow-up framing of the prompt.
func (e *Engine) buildDirective(session *types.Session, dimension string) prompt.FollowUpDirective {
	logs := session.LogsForDimension(dimension)
	if len(logs) == 0 {
		return prompt.FollowUpDirective{}
	}

	last := logs[len(logs)-1]
	eval := Evaluate(last.Question, last.Answer, dimension, last.Options, last.IsFollowUp)
	if e.cfg.Interview.AlwaysEvaluateFollowUps && !eval.NeedsFollowUp {
		eval.SuggestAIEval = true
	}

	if eval.NeedsFollowUp || eval.SuggestAIEval {
		logging.Interview("follow-up evaluation: signals=%v follow_up=%v ai_eval=%v",
			eval.Signals, eval.NeedsFollowUp, eval.SuggestAIEval)
	}

	return prompt.FollowUpDirective{
		ShouldFollowUp: eval.NeedsFollowUp,
		SuggestAIEval:  eval.SuggestAIEval,
		Reason:         eval.Reason,
		Signals:        eval.Signals,
		LastQuestion:   last.Question,
		LastAnswer:     last.Answer,
	}
}

// ReportResult describes the stored report.
type ReportResult struct {
	Name        string
	Path        string
	AIGenerated bool
}

// GenerateReport renders the session's report, appends the full interview
// appendix, stores the file, and marks the session completed. On AI
// failure it falls back to the deterministic report.
func (e *Engine) GenerateReport(ctx context.Context, sessionID string) (*ReportResult, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	var content string
	aiGenerated := false

	if e.client != nil {
		promptText := e.builder.Report(ctx, session)
		logging.Interview("report prompt: %d chars, %d interview turns",
			len([]rune(promptText)), len(session.InterviewLog))

		response, err := e.call(ctx, promptText, e.cfg.LLM.ReportMaxTokens, "report", nil)
		if err != nil {
			logging.Interview("AI report failed, using simple report: %v", err)
		} else {
			content = response + prompt.InterviewAppendix(session)
			aiGenerated = true
		}
	}

	if content == "" {
		content = prompt.SimpleReport(session, time.Now())
	}

	name, err := e.reports.Save(session.Topic, content, time.Now())
	if err != nil {
		return nil, err
	}

	session.Status = types.StatusCompleted
	session.Touch()
	if err := e.store.PutSession(session); err != nil {
		return nil, err
	}

	return &ReportResult{
		Name:        name,
		Path:        e.reports.Path(name),
		AIGenerated: aiGenerated,
	}, nil
}

// call runs one completion with metrics and the oversized-prompt shrink
// retry. The configured timeout applies per attempt, so a shrunk retry
// after a timeout gets a fresh deadline.
func (e *Engine) call(ctx context.Context, promptText string, maxTokens int, callType string, truncatedDocs []string) (string, error) {
	opts := llm.ShrinkRetryOptions{
		Threshold:      e.cfg.Interview.RetryShrinkThreshold,
		Ratio:          e.cfg.Interview.RetryShrinkRatio,
		AttemptTimeout: e.cfg.GetLLMTimeout(),
	}
	if e.collector != nil {
		opts.Observe = func(a llm.Attempt) {
			recordType := callType
			if a.Retry {
				recordType = callType + "_retry"
			}
			rec := metrics.CallRecord{
				Type:           recordType,
				PromptLength:   a.PromptLength,
				ResponseTimeMs: float64(a.Elapsed.Milliseconds()),
				MaxTokens:      maxTokens,
				Success:        a.Err == nil,
				Timeout:        llm.IsTimeout(a.Err),
			}
			if a.Err != nil {
				rec.Error = a.Err.Error()
			}
			if !a.Retry {
				rec.TruncatedDocs = truncatedDocs
			}
			e.collector.Record(rec)
		}
	}

	return llm.CompleteWithShrinkRetry(ctx, e.client, promptText, maxTokens, opts)
}
