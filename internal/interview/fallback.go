package interview

import "deepvision/internal/types"

// Canned questions used when no AI client is available. Three per
// dimension, asked in order by answered count.
var fallbackQuestions = map[string][]types.Question{
	types.DimCustomerNeeds: {
		{Question: "您希望通过这个项目解决哪些核心问题？", Options: []string{"提升工作效率", "降低运营成本", "改善用户体验", "增强数据分析能力"}, MultiSelect: true},
		{Question: "主要的用户群体有哪些？", Options: []string{"内部员工", "外部客户", "合作伙伴", "管理层"}, MultiSelect: true},
		{Question: "用户最期望获得的核心价值是什么？", Options: []string{"节省时间", "减少错误", "获取洞察", "提升协作"}},
	},
	types.DimBusinessProcess: {
		{Question: "当前业务流程中需要优化的环节有哪些？", Options: []string{"数据录入", "审批流程", "报表生成", "跨部门协作"}, MultiSelect: true},
		{Question: "关键业务流程涉及哪些部门？", Options: []string{"销售部门", "技术部门", "财务部门", "运营部门"}, MultiSelect: true},
		{Question: "流程中最关键的决策节点是什么？", Options: []string{"审批节点", "分配节点", "验收节点", "结算节点"}},
	},
	types.DimTechConstraints: {
		{Question: "期望的系统部署方式是？", Options: []string{"公有云部署", "私有云部署", "混合云部署", "本地部署"}},
		{Question: "需要与哪些现有系统集成？", Options: []string{"ERP系统", "CRM系统", "OA办公系统", "财务系统"}, MultiSelect: true},
		{Question: "对系统安全性的要求是？", Options: []string{"等保二级", "等保三级", "基础安全即可", "需要详细评估"}},
	},
	types.DimProjectConstraints: {
		{Question: "项目的预期预算范围是？", Options: []string{"10万以内", "10-50万", "50-100万", "100万以上"}},
		{Question: "期望的上线时间是？", Options: []string{"1个月内", "1-3个月", "3-6个月", "6个月以上"}},
		{Question: "项目团队的资源情况如何？", Options: []string{"有专职团队", "兼职参与", "完全外包", "需要评估"}},
	},
}

// FallbackQuestion returns the next canned question for a dimension,
// indexed by how many answers that dimension already has. Past the bank it
// returns a completed marker.
func FallbackQuestion(session *types.Session, dimension string) *types.Question {
	answered := len(session.LogsForDimension(dimension))
	bank := fallbackQuestions[dimension]

	if answered < len(bank) {
		q := bank[answered]
		q.Dimension = dimension
		return &q
	}

	return &types.Question{Dimension: dimension, Completed: true}
}
