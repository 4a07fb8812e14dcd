// Package metrics collects per-call performance records for the LLM API and
// derives tuning recommendations from them.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"deepvision/internal/logging"
	"deepvision/internal/store"
	"deepvision/internal/types"
)

// maxRecords bounds the stored call history.
const maxRecords = 1000

// CallRecord captures a single LLM API call.
type CallRecord struct {
	Timestamp      string   `json:"timestamp"`
	Type           string   `json:"type"`
	PromptLength   int      `json:"prompt_length"`
	ResponseTimeMs float64  `json:"response_time_ms"`
	MaxTokens      int      `json:"max_tokens"`
	Success        bool     `json:"success"`
	Timeout        bool     `json:"timeout"`
	Error          string   `json:"error,omitempty"`
	TruncatedDocs  []string `json:"truncated_docs"`
}

// Summary holds running aggregates maintained on every record.
type Summary struct {
	TotalCalls       int     `json:"total_calls"`
	TotalTimeouts    int     `json:"total_timeouts"`
	TotalTruncations int     `json:"total_truncations"`
	AvgResponseTime  float64 `json:"avg_response_time"`
	AvgPromptLength  float64 `json:"avg_prompt_length"`
}

type metricsData struct {
	Calls   []CallRecord `json:"calls"`
	Summary Summary      `json:"summary"`
}

// Statistics is the aggregate view over some window of calls.
type Statistics struct {
	Period            string           `json:"period"`
	TotalCalls        int              `json:"total_calls"`
	SuccessfulCalls   int              `json:"successful_calls"`
	FailedCalls       int              `json:"failed_calls"`
	TimeoutCalls      int              `json:"timeout_calls"`
	TimeoutRate       float64          `json:"timeout_rate"`
	TruncationEvents  int              `json:"truncation_events"`
	TruncationRate    float64          `json:"truncation_rate"`
	AvgResponseTimeMs float64          `json:"avg_response_time_ms"`
	MaxResponseTimeMs float64          `json:"max_response_time_ms"`
	MinResponseTimeMs float64          `json:"min_response_time_ms"`
	AvgPromptLength   float64          `json:"avg_prompt_length"`
	MaxPromptLength   int              `json:"max_prompt_length"`
	Recommendations   []Recommendation `json:"recommendations"`
	Message           string           `json:"message,omitempty"`
}

// Recommendation is a tuning hint derived from observed statistics.
type Recommendation struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Collector records API call metrics through a Store. A disabled collector
// accepts records and drops them.
type Collector struct {
	mu      sync.Mutex
	store   store.Store
	enabled bool
	data    *metricsData
}

// NewCollector loads any persisted metrics from the store.
func NewCollector(s store.Store, enabled bool) *Collector {
	c := &Collector{store: s, enabled: enabled}
	c.data = c.load()
	return c
}

func (c *Collector) load() *metricsData {
	empty := &metricsData{Calls: []CallRecord{}}
	if c.store == nil {
		return empty
	}
	blob, err := c.store.ReadMetrics()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.Get(logging.CategoryMetrics).Warn("failed to load metrics: %v", err)
		}
		return empty
	}
	var data metricsData
	if err := json.Unmarshal(blob, &data); err != nil {
		logging.Get(logging.CategoryMetrics).Warn("failed to parse metrics, starting fresh: %v", err)
		return empty
	}
	if data.Calls == nil {
		data.Calls = []CallRecord{}
	}
	return &data
}

// Record appends one call record, updates the running summary, and persists.
// The record's Timestamp is filled if empty.
func (c *Collector) Record(rec CallRecord) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.Timestamp == "" {
		rec.Timestamp = types.UTCNow()
	}
	if rec.TruncatedDocs == nil {
		rec.TruncatedDocs = []string{}
	}

	c.data.Calls = append(c.data.Calls, rec)

	c.data.Summary.TotalCalls++
	if rec.Timeout {
		c.data.Summary.TotalTimeouts++
	}
	c.data.Summary.TotalTruncations += len(rec.TruncatedDocs)

	var totalTime, totalPrompt float64
	for _, call := range c.data.Calls {
		totalTime += call.ResponseTimeMs
		totalPrompt += float64(call.PromptLength)
	}
	n := float64(len(c.data.Calls))
	c.data.Summary.AvgResponseTime = round2(totalTime / n)
	c.data.Summary.AvgPromptLength = round2(totalPrompt / n)

	if len(c.data.Calls) > maxRecords {
		c.data.Calls = c.data.Calls[len(c.data.Calls)-maxRecords:]
	}

	if err := c.persistLocked(); err != nil {
		logging.Get(logging.CategoryMetrics).Warn("failed to persist metrics: %v", err)
	}
}

func (c *Collector) persistLocked() error {
	if c.store == nil {
		return nil
	}
	blob, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return err
	}
	return c.store.WriteMetrics(blob)
}

// Statistics computes aggregates over the last lastN calls, or all calls
// when lastN <= 0.
func (c *Collector) Statistics(lastN int) Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	calls := c.data.Calls
	period := "全部调用"
	if lastN > 0 {
		period = fmt.Sprintf("最近 %d 次调用", lastN)
		if len(calls) > lastN {
			calls = calls[len(calls)-lastN:]
		}
	}

	if len(calls) == 0 {
		return Statistics{Message: "暂无数据"}
	}

	stats := Statistics{
		Period:     period,
		TotalCalls: len(calls),
	}

	var responseTimes []float64
	for _, call := range calls {
		if call.Success {
			stats.SuccessfulCalls++
			responseTimes = append(responseTimes, call.ResponseTimeMs)
		}
		if call.Timeout {
			stats.TimeoutCalls++
		}
		stats.TruncationEvents += len(call.TruncatedDocs)
		stats.AvgPromptLength += float64(call.PromptLength)
		if call.PromptLength > stats.MaxPromptLength {
			stats.MaxPromptLength = call.PromptLength
		}
	}
	stats.FailedCalls = stats.TotalCalls - stats.SuccessfulCalls
	stats.TimeoutRate = round2(float64(stats.TimeoutCalls) / float64(stats.TotalCalls) * 100)
	stats.TruncationRate = round2(float64(stats.TruncationEvents) / float64(stats.TotalCalls) * 100)
	stats.AvgPromptLength = round2(stats.AvgPromptLength / float64(stats.TotalCalls))

	if len(responseTimes) > 0 {
		minT, maxT, sum := responseTimes[0], responseTimes[0], 0.0
		for _, t := range responseTimes {
			if t < minT {
				minT = t
			}
			if t > maxT {
				maxT = t
			}
			sum += t
		}
		stats.AvgResponseTimeMs = round2(sum / float64(len(responseTimes)))
		stats.MaxResponseTimeMs = round2(maxT)
		stats.MinResponseTimeMs = round2(minT)
	}

	stats.Recommendations = recommendations(stats)
	return stats
}

// Summary returns the running aggregates maintained across Record calls.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Summary
}

func recommendations(stats Statistics) []Recommendation {
	var recs []Recommendation

	if stats.TimeoutRate > 10 {
		recs = append(recs, Recommendation{
			Level:   "critical",
			Message: fmt.Sprintf("超时率过高 (%.2f%%)，建议减少文档长度限制或实施智能摘要", stats.TimeoutRate),
		})
	} else if stats.TimeoutRate > 5 {
		recs = append(recs, Recommendation{
			Level:   "warning",
			Message: fmt.Sprintf("超时率偏高 (%.2f%%)，需要关注", stats.TimeoutRate),
		})
	}

	if stats.TruncationRate > 50 {
		recs = append(recs, Recommendation{
			Level:   "warning",
			Message: fmt.Sprintf("文档截断频繁 (%.2f%%)，建议实施智能摘要功能", stats.TruncationRate),
		})
	}

	if stats.AvgPromptLength > 8000 {
		recs = append(recs, Recommendation{
			Level:   "warning",
			Message: fmt.Sprintf("平均 Prompt 长度较大 (%.0f 字符)，可能影响响应速度", stats.AvgPromptLength),
		})
	}

	if stats.AvgResponseTimeMs > 60000 {
		recs = append(recs, Recommendation{
			Level:   "warning",
			Message: fmt.Sprintf("平均响应时间较长 (%.1f 秒)，建议优化 Prompt 长度", stats.AvgResponseTimeMs/1000),
		})
	}

	if len(recs) == 0 && stats.TimeoutRate < 5 && stats.TruncationRate < 30 {
		recs = append(recs, Recommendation{
			Level:   "info",
			Message: "系统运行正常，可考虑适度增加文档长度限制以提升质量",
		})
	}

	return recs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
