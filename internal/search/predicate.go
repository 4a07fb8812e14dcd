package search

import "strings"

// Keyword tables deciding whether a topic benefits from web search.
// Mixed Chinese/English because topics arrive in either language.
var (
	techKeywords = []string{
		"技术", "系统", "平台", "框架", "工具", "软件", "应用",
		"AI", "人工智能", "机器学习", "深度学习", "大模型",
		"云", "SaaS", "PaaS", "微服务", "容器", "Docker", "K8s",
		"数据库", "中间件", "API", "集成", "部署",
	}

	industryKeywords = []string{
		"行业", "标准", "规范", "合规", "认证", "等保",
		"市场", "趋势", "最新", "现状", "发展",
	}

	timeKeywords = []string{
		"最新", "当前", "现在", "2024", "2025", "2026",
		"趋势", "未来", "发展",
	}
)

// ShouldSearch decides deterministically whether question generation for
// this topic and dimension warrants a web search. Tech-constraint questions
// always search; otherwise any keyword hit in the topic triggers it.
func ShouldSearch(enabled bool, topic, dimension string) bool {
	if !enabled {
		return false
	}

	for _, group := range [][]string{techKeywords, industryKeywords, timeKeywords} {
		for _, keyword := range group {
			if strings.Contains(topic, keyword) {
				return true
			}
		}
	}

	return dimension == "tech_constraints"
}

// BuildQuery derives a search query from the interview topic and the
// dimension currently being explored.
func BuildQuery(topic, dimension, dimensionName string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}

	switch dimension {
	case "tech_constraints":
		return topic + " 技术选型 最佳实践 2026"
	case "customer_needs":
		return topic + " 用户需求 行业痛点 2026"
	case "business_process":
		return topic + " 业务流程 最佳实践"
	case "project_constraints":
		return topic + " 项目实施 成本预算 周期"
	default:
		if dimensionName == "" {
			return topic
		}
		return topic + " " + dimensionName
	}
}
