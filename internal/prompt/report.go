package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deepvision/internal/types"
)

// Report builds the report-generation prompt. Long documents are summarized
// or clipped before entering the prompt, each with a provenance note so the
// model knows what it is missing.
func (b *Builder) Report(ctx context.Context, session *types.Session) string {
	topic := session.Topic
	if topic == "" {
		topic = "未知项目"
	}

	var p strings.Builder
	fmt.Fprintf(&p, `你是一个专业的需求分析师，需要基于以下访谈记录生成一份专业的需求调研报告。

## 调研主题
%s
`, topic)

	if session.Description != "" {
		fmt.Fprintf(&p, "\n## 主题描述\n%s\n", session.Description)
	}

	p.WriteString("\n## 参考文档\n")
	if len(session.ReferenceDocs) > 0 {
		p.WriteString("以下是用户提供的参考文档，请在生成报告时参考这些内容：\n\n")
		for _, doc := range session.ReferenceDocs {
			b.writeReportDoc(ctx, &p, doc, topic, "文档")
		}
	} else {
		p.WriteString("无参考文档\n")
	}

	if len(session.ResearchDocs) > 0 {
		p.WriteString("\n## 已有调研成果\n")
		p.WriteString("以下是用户提供的已有调研成果，请在生成报告时参考并整合这些内容：\n\n")
		for _, doc := range session.ResearchDocs {
			b.writeReportDoc(ctx, &p, doc, topic, "调研成果")
		}
	}

	p.WriteString("\n## 访谈记录\n")
	for _, dim := range types.DimensionOrder {
		fmt.Fprintf(&p, "\n### %s\n", types.DimensionName(dim))
		logs := session.LogsForDimension(dim)
		if len(logs) == 0 {
			p.WriteString("*该维度暂无收集数据*\n")
			continue
		}
		for _, entry := range logs {
			fmt.Fprintf(&p, "**Q**: %s\n**A**: %s\n\n", entry.Question, entry.Answer)
		}
	}

	p.WriteString(reportRequirements)
	return p.String()
}

func (b *Builder) writeReportDoc(ctx context.Context, p *strings.Builder, doc types.Document, topic, kind string) {
	name := doc.Name
	if name == "" {
		name = kind
	}
	fmt.Fprintf(p, "### %s\n", name)

	if doc.Content == "" {
		fmt.Fprintf(p, "*[%s内容为空]*\n\n", kind)
		return
	}

	originalLength := runeLen(doc.Content)
	maxDocLength := b.cfg.Context.MaxDocLength

	if originalLength > b.cfg.Context.SmartSummaryThreshold {
		processed, summarized := b.compressor.Summarize(ctx, doc.Content, name, topic)
		switch {
		case summarized:
			fmt.Fprintf(p, "%s\n*[原%s %d 字符，已通过AI生成摘要保留关键信息]*\n\n", processed, kind, originalLength)
		case runeLen(processed) > maxDocLength:
			fmt.Fprintf(p, "%s\n*[%s内容过长，已截取前 %d 字符]*\n\n", truncateRunes(processed, maxDocLength), kind, maxDocLength)
		default:
			fmt.Fprintf(p, "%s\n\n", processed)
		}
		return
	}

	if originalLength > maxDocLength {
		fmt.Fprintf(p, "%s\n*[%s内容过长，已截取前 %d 字符]*\n\n", truncateRunes(doc.Content, maxDocLength), kind, maxDocLength)
		return
	}
	fmt.Fprintf(p, "%s\n\n", doc.Content)
}

const reportRequirements = `
## 报告要求

请生成一份专业的需求调研报告，包含以下章节：

1. **调研概述** - 基本信息、调研背景
2. **需求摘要** - 核心需求列表、优先级矩阵
3. **详细需求分析**
   - 客户/用户需求（痛点、期望、场景、角色）
   - 业务流程（关键流程、决策节点）
   - 技术约束（部署、集成、安全）
   - 项目约束（预算、时间、资源）
4. **可视化分析** - 使用 Mermaid 图表展示关键信息
5. **方案建议** - 基于需求的可行建议
6. **风险评估** - 潜在风险和应对策略
7. **下一步行动** - 具体的行动项

**注意**：不需要包含"附录"章节，完整的访谈记录会在报告生成后自动追加。

## Mermaid 图表规范

请在报告中包含以下类型的 Mermaid 图表。**除 quadrantChart 外，所有图表都应使用中文标签**。

### 1. 优先级矩阵（必须）
使用象限图展示需求优先级，**严格按照以下格式**：

` + "```mermaid" + `
quadrantChart
    title Priority Matrix
    x-axis Low Urgency --> High Urgency
    y-axis Low Importance --> High Importance
    quadrant-1 Do First
    quadrant-2 Schedule
    quadrant-3 Delegate
    quadrant-4 Eliminate

    Requirement1: [0.8, 0.9]
    Requirement2: [0.3, 0.7]
    Requirement3: [0.6, 0.5]
` + "```" + `

**quadrantChart 严格规则（必须遵守）：**
- title、x-axis、y-axis、quadrant 标签**必须用英文**（quadrantChart 不支持中文）
- 数据点名称**必须用英文或拼音**，不能用中文
- 数据点格式：` + "`Name: [x, y]`" + `，x和y范围0-1
- 不要在标签中使用括号、冒号等特殊符号
- 在图表下方用中文表格说明每个数据点的含义

### 2. 业务流程图（推荐）
使用 flowchart 展示关键业务流程，**使用中文标签**：

` + "```mermaid" + `
flowchart TD
    A[开始] --> B{判断条件}
    B -->|是| C[处理流程1]
    B -->|否| D[处理流程2]
    C --> E[结束]
    D --> E
` + "```" + `

**flowchart 规则（必须遵守）：**
- 节点ID使用英文字母（如 A、B、C），节点标签使用中文（如 ` + "`A[中文标签]`" + `）
- 连接线标签使用中文（如 ` + "`-->|是|`" + `）
- subgraph 标题使用中文（如 ` + "`subgraph 子流程名称`" + `）
- **每个 subgraph 必须有对应的 end 关闭**
- 节点标签中**严禁使用以下特殊字符**：
  - 半角冒号 ` + "`:`" + ` - 用短横线 ` + "`-`" + ` 或空格替代
  - 半角引号 ` + "`\"`" + ` - 用全角引号 "" 或书名号 《》 替代
  - 半角括号 ` + "`()`" + ` - 用全角括号 （） 替代
  - HTML 标签如 ` + "`<br>`" + ` - 用空格或换行替代
- 菱形判断节点使用 ` + "`{中文}`" + ` 格式
- **不要在同一个 flowchart 中嵌套过多层级（最多2层 subgraph）**
- **连接线使用 ` + "`-->`" + ` 或 ` + "`---|`" + ` 格式，不要使用 ` + "`---`" + `**

### 3. 需求分类饼图（可选）
使用中文标签：
` + "```mermaid" + `
pie title 需求分布
    "功能需求" : 45
    "性能需求" : 25
    "安全需求" : 20
    "易用性" : 10
` + "```" + `

### 4. 部署架构图（如涉及技术约束）
如果访谈中涉及部署模式、系统架构等技术话题，可使用 flowchart 展示部署架构：

` + "```mermaid" + `
flowchart LR
    A[客户端] --> B[负载均衡]
    B --> C[应用服务器]
    C --> D[数据库]
` + "```" + `

**部署架构图规则：**
- 使用 flowchart LR（从左到右）或 flowchart TD（从上到下）
- 节点ID使用英文字母，标签使用中文
- 保持结构简洁，避免过度复杂的嵌套

## 重要提醒
- 所有内容必须严格基于访谈记录，不得编造
- 使用 Markdown 格式，Mermaid 代码块使用 ` + "```mermaid" + ` 标记
- **flowchart、pie 等图表使用中文标签**，quadrantChart 因技术限制必须用英文
- 优先级矩阵中的坐标值请根据实际需求评估
- 报告要专业、结构清晰、可操作
- **Mermaid 语法要求严格，请仔细检查每个图表的语法正确性**
- 报告末尾使用署名：*此报告由 Deep Vision 深瞳-智能需求调研助手生成*

请生成完整的报告：`

// InterviewAppendix renders the full interview log as a report appendix.
// Returns "" for an empty log.
func InterviewAppendix(session *types.Session) string {
	if len(session.InterviewLog) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n---\n\n## 附录：完整访谈记录\n\n")
	fmt.Fprintf(&b, "> 本次调研共收集了 %d 个问题的回答\n\n", len(session.InterviewLog))

	for i, entry := range session.InterviewLog {
		name := "未分类"
		if info, ok := types.Dimensions[entry.Dimension]; ok {
			name = info.Name
		}
		fmt.Fprintf(&b, "### Q%d: %s\n\n", i+1, entry.Question)
		fmt.Fprintf(&b, "**回答**: %s\n\n", entry.Answer)
		fmt.Fprintf(&b, "**维度**: %s\n\n", name)
		if entry.Timestamp != "" {
			fmt.Fprintf(&b, "*记录时间: %s*\n\n", entry.Timestamp)
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

// SimpleReport renders a deterministic report straight from the session,
// used when no AI client is available. The appendix is already included.
func SimpleReport(session *types.Session, now time.Time) string {
	topic := session.Topic
	if topic == "" {
		topic = "未命名项目"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `# %s 需求调研报告

**调研日期**: %s
**报告编号**: deep-vision-%s

---

## 1. 调研概述

本次调研主题为「%s」，共收集了 %d 个问题的回答。

## 2. 需求摘要

`, topic, now.Format("2006-01-02"), now.Format("20060102"), topic, len(session.InterviewLog))

	for _, dim := range types.DimensionOrder {
		fmt.Fprintf(&b, "### %s\n\n", types.DimensionName(dim))
		logs := session.LogsForDimension(dim)
		if len(logs) == 0 {
			b.WriteString("*暂无数据*\n")
		} else {
			for _, entry := range logs {
				fmt.Fprintf(&b, "- **%s** - %s\n", entry.Answer, entry.Question)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(InterviewAppendix(session))
	b.WriteString("\n*此报告由 Deep Vision 深瞳-智能需求调研助手生成*\n")
	return b.String()
}
