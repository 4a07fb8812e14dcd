package contextwin

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"deepvision/internal/config"
	"deepvision/internal/llm"
	"deepvision/internal/logging"
	"deepvision/internal/metrics"
	"deepvision/internal/store"
	"deepvision/internal/types"
)

// summaryPromptContentCap limits how much of an oversized document is shown
// to the summarizer itself.
const summaryPromptContentCap = 8000

// DocumentCompressor shrinks oversized documents to fit the prompt budget,
// preferring an AI summary over a hard cut. Summaries are cached by content
// hash so repeated prompt builds do not re-summarize.
type DocumentCompressor struct {
	client    llm.Client
	store     store.Store
	collector *metrics.Collector
	cfg       config.ContextConfig
	timeout   time.Duration
	maxTokens int
	group     singleflight.Group
}

// NewDocumentCompressor builds a compressor. client may be nil, in which
// case every oversized document is truncated instead of summarized.
func NewDocumentCompressor(client llm.Client, s store.Store, collector *metrics.Collector, cfg *config.Config) *DocumentCompressor {
	return &DocumentCompressor{
		client:    client,
		store:     s,
		collector: collector,
		cfg:       cfg.Context,
		timeout:   cfg.GetSummaryTimeout(),
		maxTokens: cfg.LLM.SummaryMaxTokens,
	}
}

// DocumentHash returns the cache key for a document's content.
func DocumentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// Summarize returns document content reduced to roughly the summary target
// length, and whether an AI summary was produced. Content at or below the
// summary threshold passes through unchanged. On any summarization failure
// it falls back to a hard truncate at the document length limit.
func (c *DocumentCompressor) Summarize(ctx context.Context, content, docName, topic string) (string, bool) {
	originalLength := runeLen(content)
	if originalLength <= c.cfg.SmartSummaryThreshold {
		return content, false
	}

	if c.client == nil {
		truncated := truncateRunes(content, c.cfg.MaxDocLength)
		logging.ContextDebug("document %s truncated: %d -> %d chars", docName, originalLength, c.cfg.MaxDocLength)
		return truncated, false
	}

	hash := DocumentHash(content)
	if c.store != nil {
		if cached, err := c.store.GetSummary(hash); err == nil {
			logging.ContextDebug("using cached summary for %s", hash)
			return cached, true
		}
	}

	// Concurrent prompt builds for the same document share one summary call
	result, err, _ := c.group.Do(hash, func() (interface{}, error) {
		return c.summarizeOnce(ctx, content, docName, topic, hash)
	})
	if err != nil {
		logging.Context("summary for %s failed, falling back to truncation: %v", docName, err)
		return truncateRunes(content, c.cfg.MaxDocLength), false
	}
	return result.(string), true
}

func (c *DocumentCompressor) summarizeOnce(ctx context.Context, content, docName, topic, hash string) (string, error) {
	logging.Context("generating summary for %s: %d -> ~%d chars", docName, runeLen(content), c.cfg.SmartSummaryTarget)

	prompt := c.buildSummaryPrompt(content, docName, topic)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	summary, err := c.client.Complete(callCtx, prompt, c.maxTokens)
	elapsed := time.Since(start)

	if c.collector != nil {
		c.collector.Record(metrics.CallRecord{
			Type:           "doc_summary",
			PromptLength:   runeLen(prompt),
			ResponseTimeMs: float64(elapsed.Milliseconds()),
			MaxTokens:      c.maxTokens,
			Success:        err == nil,
			Timeout:        llm.IsTimeout(err),
			Error:          errString(err),
		})
	}

	if err != nil {
		return "", err
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", errors.New("empty summary")
	}

	if c.store != nil {
		if err := c.store.PutSummary(hash, summary); err != nil {
			logging.Get(logging.CategoryContext).Warn("failed to cache summary %s: %v", hash, err)
		}
	}

	return summary, nil
}

func (c *DocumentCompressor) buildSummaryPrompt(content, docName, topic string) string {
	return fmt.Sprintf(`请为以下文档生成一个精炼的摘要。

## 要求
1. 摘要长度控制在 %d 字符以内
2. 保留文档中的关键信息、核心观点和重要数据
3. 如果文档与"%s"主题相关，优先保留与主题相关的内容
4. 使用简洁清晰的语言，避免冗余
5. 保持信息的准确性，不要添加文档中没有的内容

## 文档名称
%s

## 文档内容
%s

## 输出格式
直接输出摘要内容，不要添加"摘要："等前缀。`,
		c.cfg.SmartSummaryTarget, topic, docName, truncateRunes(content, summaryPromptContentCap))
}

// ProcessForContext prepares one document for inclusion in a prompt under
// the given remaining budget. It returns the document name, the content to
// include, the length consumed, and whether the content was compressed.
func (c *DocumentCompressor) ProcessForContext(ctx context.Context, doc types.Document, remaining int, topic string) (string, string, int, bool) {
	name := doc.Name
	if name == "" {
		name = "文档"
	}
	if doc.Content == "" {
		return name, "", 0, false
	}

	originalLength := runeLen(doc.Content)
	maxAllowed := c.cfg.MaxDocLength
	if remaining < maxAllowed {
		maxAllowed = remaining
	}

	if originalLength <= c.cfg.SmartSummaryThreshold {
		if originalLength > maxAllowed {
			return name, truncateRunes(doc.Content, maxAllowed), maxAllowed, true
		}
		return name, doc.Content, originalLength, false
	}

	processed, _ := c.Summarize(ctx, doc.Content, name, topic)
	if runeLen(processed) > maxAllowed {
		processed = truncateRunes(processed, maxAllowed)
	}
	return name, processed, runeLen(processed), true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
