// Package prompt assembles the LLM prompts: interview question generation
// and report generation. Document content is routed through the context
// compressor so assembled prompts stay inside the document budget.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"deepvision/internal/config"
	"deepvision/internal/contextwin"
	"deepvision/internal/search"
	"deepvision/internal/types"
)

// descriptionCap limits the topic description carried into prompts.
const descriptionCap = 500

// FollowUpDirective tells the builder how to frame the follow-up portion
// of the interview prompt, based on the rule evaluation of the latest
// answer in the active dimension.
type FollowUpDirective struct {
	ShouldFollowUp bool
	SuggestAIEval  bool
	Reason         string
	Signals        []string
	LastQuestion   string
	LastAnswer     string
}

// Builder assembles prompts for one configured assistant instance.
type Builder struct {
	compressor *contextwin.DocumentCompressor
	history    *contextwin.HistoryCompressor
	searcher   search.Searcher
	cfg        *config.Config
}

// NewBuilder wires a Builder. searcher may be nil to disable web
// enrichment.
func NewBuilder(compressor *contextwin.DocumentCompressor, history *contextwin.HistoryCompressor, searcher search.Searcher, cfg *config.Config) *Builder {
	return &Builder{compressor: compressor, history: history, searcher: searcher, cfg: cfg}
}

// Interview builds the question-generation prompt for a dimension. It
// returns the prompt and the names of documents that had to be compressed
// to fit.
func (b *Builder) Interview(ctx context.Context, session *types.Session, dimension string, directive FollowUpDirective) (string, []string) {
	topic := session.Topic
	if topic == "" {
		topic = "未知项目"
	}
	info := types.Dimensions[dimension]

	contextParts := []string{fmt.Sprintf("当前调研主题：%s", topic)}

	if session.Description != "" {
		contextParts = append(contextParts,
			fmt.Sprintf("\n主题描述：%s", truncateRunes(session.Description, descriptionCap)))
	}

	totalDocLength := 0
	var truncatedDocs, summarizedDocs []string

	appendDocs := func(header string, docs []types.Document) {
		if len(docs) == 0 || totalDocLength >= b.cfg.Context.MaxTotalDocs {
			return
		}
		contextParts = append(contextParts, header)
		for _, doc := range docs {
			if doc.Content == "" || totalDocLength >= b.cfg.Context.MaxTotalDocs {
				continue
			}
			remaining := b.cfg.Context.MaxTotalDocs - totalDocLength
			originalLength := runeLen(doc.Content)

			name, content, used, processed := b.compressor.ProcessForContext(ctx, doc, remaining, topic)
			if content == "" {
				continue
			}
			contextParts = append(contextParts, fmt.Sprintf("### %s", name), content)
			totalDocLength += used

			if processed {
				// A reduction past 40% usually means a summary rather
				// than a plain cut
				if float64(used) < float64(originalLength)*0.6 {
					summarizedDocs = append(summarizedDocs,
						fmt.Sprintf("%s（原%d字符，摘要至%d字符）", name, originalLength, used))
				} else {
					truncatedDocs = append(truncatedDocs,
						fmt.Sprintf("%s（原%d字符，截取%d字符）", name, originalLength, used))
				}
			}
		}
	}

	appendDocs("\n## 参考文档内容：", session.ReferenceDocs)
	appendDocs("\n## 已有调研成果（供参考）：", session.ResearchDocs)

	if len(summarizedDocs) > 0 {
		contextParts = append(contextParts,
			fmt.Sprintf("\n📝 注意：以下文档已通过AI生成摘要以保留关键信息：%s", strings.Join(summarizedDocs, ", ")))
	}
	if len(truncatedDocs) > 0 {
		contextParts = append(contextParts,
			fmt.Sprintf("\n⚠️ 注意：以下文档因长度限制已被截断，请基于已有信息进行提问：%s", strings.Join(truncatedDocs, ", ")))
	}

	if parts := b.searchSection(ctx, topic, dimension); len(parts) > 0 {
		contextParts = append(contextParts, parts...)
	}

	contextParts = append(contextParts, b.collectedInfo(ctx, session)...)

	formalCount := session.FormalCount(dimension)

	var guidance string
	switch {
	case directive.ShouldFollowUp:
		guidance = followUpSection(directive)
	case directive.SuggestAIEval:
		guidance = aiEvalGuidance(directive) + "\n" + standardQuestionSection
	default:
		guidance = standardQuestionSection
	}

	isFollowUpValue := "false 或 true（根据你的判断）"
	reasonValue := `"你的判断理由" 或 null`
	if directive.ShouldFollowUp {
		isFollowUpValue = "true"
		encoded, _ := json.Marshal(directive.Reason)
		reasonValue = string(encoded)
	}

	return fmt.Sprintf(`**严格输出要求：你的回复必须是纯 JSON 对象，不要添加任何解释、markdown 代码块或其他文本。第一个字符必须是 {，最后一个字符必须是 }**

你是一个专业的需求调研访谈师，正在进行"%s"的需求调研。
你的核心职责是**深度挖掘用户的真实需求**，不满足于表面回答。

%s

## 当前任务

你现在需要针对「%s」维度收集信息。
这个维度关注：%s

该维度已收集了 %d 个正式问题的回答，关键方面包括：%s

%s

## 输出格式（必须严格遵守）

你的回复必须是一个纯 JSON 对象，格式如下：

{
    "question": "你的问题",
    "options": ["选项1", "选项2", "选项3", "选项4"],
    "multi_select": false,
    "is_follow_up": %s,
    "follow_up_reason": %s,
    "conflict_detected": false,
    "conflict_description": null
}

字段说明：
- question: 字符串，你要问的问题
- options: 字符串数组，3-4 个选项
- multi_select: 布尔值，true=可多选，false=单选
- is_follow_up: 布尔值，true=追问（针对上一回答深入），false=新问题
- follow_up_reason: 字符串或 null，追问时说明原因
- conflict_detected: 布尔值
- conflict_description: 字符串或 null

**关键提醒：**
- 不要使用 `+"```json"+` 代码块标记
- 不要在 JSON 前后添加任何说明文字
- 确保 JSON 语法完全正确（所有字符串用双引号，布尔值用 true/false，空值用 null）
- 你的整个回复就是这个 JSON 对象，没有其他内容
- **重要**：作为专业访谈师，要善于追问，挖掘表面回答背后的真实需求`,
		topic,
		strings.Join(contextParts, "\n"),
		dimensionDisplay(dimension, info),
		info.Description,
		formalCount,
		strings.Join(info.KeyAspects, ", "),
		guidance,
		isFollowUpValue,
		reasonValue,
	), truncatedDocs
}

func (b *Builder) searchSection(ctx context.Context, topic, dimension string) []string {
	if b.searcher == nil || !search.ShouldSearch(b.cfg.Search.Enabled, topic, dimension) {
		return nil
	}

	query := search.BuildQuery(topic, dimension, types.DimensionName(dimension))
	results, err := b.searcher.Search(ctx, query, b.cfg.Search.MaxResults)
	if err != nil || len(results) == 0 {
		return nil
	}

	parts := []string{"\n## 行业知识参考（联网搜索）："}
	for i, result := range results {
		if i == 2 {
			break
		}
		title := result.Title
		if title == "" {
			title = "参考信息"
		}
		parts = append(parts,
			fmt.Sprintf("%d. **%s**", i+1, truncateRunes(title, 40)),
			fmt.Sprintf("   %s", truncateRunes(result.Content, 150)))
	}
	return parts
}

func (b *Builder) collectedInfo(ctx context.Context, session *types.Session) []string {
	log := session.InterviewLog
	if len(log) == 0 {
		return nil
	}

	parts := []string{"\n## 已收集的信息："}

	recent := log
	window := b.cfg.Context.RecentTurnWindow
	if len(log) > window {
		if digest := b.history.HistorySummary(ctx, session, window); digest != "" {
			parts = append(parts,
				fmt.Sprintf("\n### 历史调研摘要（共%d条）：", len(log)-window),
				digest,
				"\n### 最近问答记录：")
		}
		recent = log[len(log)-window:]
	}

	for _, entry := range recent {
		mark := ""
		if entry.IsFollowUp {
			mark = " [追问]"
		}
		parts = append(parts,
			fmt.Sprintf("- Q: %s%s", entry.Question, mark),
			fmt.Sprintf("  A: %s", entry.Answer))
		if name := dimensionNameOrEmpty(entry.Dimension); name != "" {
			parts = append(parts, fmt.Sprintf("  (维度: %s)", name))
		}
	}
	return parts
}

func aiEvalGuidance(d FollowUpDirective) string {
	signals := strings.Join(d.Signals, ", ")
	if signals == "" {
		signals = "无明显问题"
	}
	return fmt.Sprintf(`
## 回答深度评估

请先评估用户的上一个回答是否需要追问：

**上一个问题**: %s
**用户回答**: %s
**检测信号**: %s

判断标准（满足任一条即应追问）：
1. 回答只是选择了选项，没有说明具体场景或原因
2. 缺少量化指标（如时间、数量、频率等）
3. 回答比较笼统，没有针对性细节
4. 可能隐藏了更深层的需求或顾虑

如果判断需要追问，请：
- 设置 is_follow_up: true
- 针对上一个回答进行深入提问
- 问题要更具体，引导用户给出明确答案

如果判断不需要追问，请生成新问题继续调研。
`, truncateRunes(d.LastQuestion, 100), d.LastAnswer, signals)
}

func followUpSection(d FollowUpDirective) string {
	return fmt.Sprintf(`## 追问模式（必须执行）

上一个用户回答需要追问。原因：%s

**上一个问题**: %s
**用户回答**: %s

追问要求：
1. 必须设置 is_follow_up: true
2. 针对上一个回答进行深入提问，不要跳到新话题
3. 追问问题要更具体、更有针对性
4. 引导用户给出具体的场景、数据、或明确的选择
5. 可以使用"您提到的XXX，能否具体说明..."这样的句式
`, d.Reason, truncateRunes(d.LastQuestion, 100), d.LastAnswer)
}

const standardQuestionSection = `## 问题生成要求

1. 生成 1 个针对性的问题，用于收集该维度的关键信息
2. 为这个问题提供 3-4 个具体的选项
3. 选项要基于：
   - 调研主题的行业特点
   - 参考文档中的信息（如有）
   - 联网搜索的行业知识（如有）
   - 已收集的上下文信息
4. 根据问题性质判断是单选还是多选：
   - 单选场景：互斥选项（是/否）、优先级选择、唯一选择
   - 多选场景：可并存的功能需求、多个痛点、多种用户角色
5. 如果用户的回答与参考文档内容有冲突，要在问题中指出并请求澄清
`

func dimensionDisplay(key string, info types.DimensionInfo) string {
	if info.Name != "" {
		return info.Name
	}
	return key
}

func dimensionNameOrEmpty(key string) string {
	if info, ok := types.Dimensions[key]; ok {
		return info.Name
	}
	return ""
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
