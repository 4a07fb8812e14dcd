package contextwin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deepvision/internal/config"
	"deepvision/internal/llm"
	"deepvision/internal/logging"
	"deepvision/internal/metrics"
	"deepvision/internal/types"
)

// historyDigestMaxTokens bounds the summary call; the prompt itself asks
// for at most 200 characters.
const historyDigestMaxTokens = 300

// HistoryCompressor maintains the rolling digest of interview turns that
// fall outside the recent-turn window.
type HistoryCompressor struct {
	client    llm.Client
	collector *metrics.Collector
	cfg       config.ContextConfig
	timeout   time.Duration
}

// NewHistoryCompressor builds a compressor. client may be nil, in which
// case the deterministic digest is used.
func NewHistoryCompressor(client llm.Client, collector *metrics.Collector, cfg *config.Config) *HistoryCompressor {
	return &HistoryCompressor{
		client:    client,
		collector: collector,
		cfg:       cfg.Context,
		timeout:   cfg.GetSummaryTimeout(),
	}
}

// HistorySummary returns a digest of all interview turns except the most
// recent excludeRecent, or "" when the log is short enough to carry whole.
// A session digest covering exactly the same turn count is reused as is.
func (h *HistoryCompressor) HistorySummary(ctx context.Context, session *types.Session, excludeRecent int) string {
	log := session.InterviewLog
	if len(log) <= excludeRecent {
		return ""
	}

	history := log
	if excludeRecent > 0 {
		history = log[:len(log)-excludeRecent]
	}
	if len(history) == 0 {
		return ""
	}

	if cached := session.ContextSummary; cached != nil && cached.Text != "" && cached.LogCount == len(history) {
		logging.ContextDebug("using cached history digest covering %d turns", cached.LogCount)
		return cached.Text
	}

	if h.client == nil {
		return SimpleSummary(history)
	}

	if text := h.generate(ctx, session.Topic, history); text != "" {
		return text
	}
	return SimpleSummary(history)
}

// UpdateContextSummary refreshes the session's stored digest after an
// answer lands. It reports whether the session was modified. The digest is
// only maintained once the log passes the summary threshold, and a digest
// that already covers at least as many turns stays untouched.
func (h *HistoryCompressor) UpdateContextSummary(ctx context.Context, session *types.Session) bool {
	log := session.InterviewLog
	if len(log) < h.cfg.SummaryThreshold {
		return false
	}

	historyCount := len(log) - h.cfg.RecentTurnWindow
	if historyCount <= 0 {
		return false
	}
	if cached := session.ContextSummary; cached != nil && cached.LogCount >= historyCount {
		return false
	}

	history := log[:historyCount]

	var text string
	if h.client != nil {
		text = h.generate(ctx, session.Topic, history)
	}
	if text == "" {
		text = SimpleSummary(history)
	}

	session.ContextSummary = &types.ContextSummary{
		Text:      text,
		LogCount:  historyCount,
		UpdatedAt: types.UTCNow(),
	}
	logging.Context("context digest updated, covering %d turns", historyCount)
	return true
}

func (h *HistoryCompressor) generate(ctx context.Context, topic string, history []types.InterviewEntry) string {
	prompt := buildHistoryPrompt(topic, history)

	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	logging.ContextDebug("generating history digest for %d turns", len(history))

	start := time.Now()
	text, err := h.client.Complete(callCtx, prompt, historyDigestMaxTokens)
	elapsed := time.Since(start)

	if h.collector != nil {
		h.collector.Record(metrics.CallRecord{
			Type:           "summary",
			PromptLength:   runeLen(prompt),
			ResponseTimeMs: float64(elapsed.Milliseconds()),
			MaxTokens:      historyDigestMaxTokens,
			Success:        err == nil,
			Timeout:        llm.IsTimeout(err),
			Error:          errString(err),
		})
	}

	if err != nil {
		logging.Context("history digest failed: %v", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func buildHistoryPrompt(topic string, history []types.InterviewEntry) string {
	var logsText strings.Builder
	for _, dim := range groupedDimensions(history) {
		logsText.WriteString(fmt.Sprintf("\n【%s】\n", types.DimensionName(dim.key)))
		for _, entry := range dim.entries {
			logsText.WriteString(fmt.Sprintf("Q: %s\nA: %s\n",
				truncateRunes(entry.Question, 80), truncateRunes(entry.Answer, 100)))
		}
	}

	return fmt.Sprintf(`请将以下访谈记录压缩为简洁的摘要，保留关键信息点。

调研主题：%s

访谈记录：
%s

要求：
1. 按维度整理关键信息
2. 每个维度用1-2句话概括核心要点
3. 保留具体的数据、指标、选择
4. 总长度控制在200字以内
5. 直接输出摘要内容，不要添加其他说明

摘要：`, topic, logsText.String())
}

// SimpleSummary builds the deterministic fallback digest: up to three
// clipped answers per dimension, in first-seen dimension order.
func SimpleSummary(history []types.InterviewEntry) string {
	var parts []string
	for _, dim := range groupedDimensions(history) {
		answers := make([]string, 0, 3)
		for _, entry := range dim.entries {
			if len(answers) == 3 {
				break
			}
			answers = append(answers, truncateRunes(entry.Answer, 50))
		}
		parts = append(parts, fmt.Sprintf("【%s】: %s", types.DimensionName(dim.key), strings.Join(answers, "; ")))
	}
	return strings.Join(parts, " | ")
}

type dimensionGroup struct {
	key     string
	entries []types.InterviewEntry
}

func groupedDimensions(history []types.InterviewEntry) []dimensionGroup {
	index := make(map[string]int)
	var groups []dimensionGroup
	for _, entry := range history {
		key := entry.Dimension
		if key == "" {
			key = "other"
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, dimensionGroup{key: key})
		}
		groups[i].entries = append(groups[i].entries, entry)
	}
	return groups
}
