// Package interview drives the requirements interview: answer depth
// evaluation, AI question generation and parsing, session state changes,
// and report assembly.
package interview

import (
	"strings"
	"unicode"
)

// Per-dimension follow-up sensitivity. Higher values trigger follow-up
// questions more readily.
var dimensionSensitivity = map[string]float64{
	"customer_needs":      0.8,
	"business_process":    0.6,
	"tech_constraints":    0.5,
	"project_constraints": 0.4,
}

const defaultSensitivity = 0.5

var vagueIndicators = []string{
	// 不确定类
	"看情况", "不一定", "可能", "或许", "大概", "差不多", "到时候",
	"再说", "还没想好", "不确定", "看具体", "根据情况", "待定",
	"以后再说", "暂时不清楚", "目前还不好说",
	// 笼统类
	"都可以", "都行", "随便", "无所谓", "差不多", "一般",
	// 回避类
	"不太了解", "没想过", "不知道", "说不好", "很难说",
}

var genericAnswers = []string{
	"好的", "是的", "可以", "没问题", "需要", "应该要",
	"对", "嗯", "行", "同意", "没有", "不需要",
}

// Signal identifiers emitted by Evaluate.
const (
	SignalTooShort        = "too_short"
	SignalVague           = "vague_expression"
	SignalGeneric         = "generic_answer"
	SignalOptionOnly      = "option_only"
	SignalNoQuant         = "no_quantification"
	SignalSingleSelection = "single_selection"
)

var signalWeights = map[string]float64{
	SignalTooShort:        0.4,
	SignalVague:           0.5,
	SignalGeneric:         0.8,
	SignalOptionOnly:      0.3,
	SignalNoQuant:         0.2,
	SignalSingleSelection: 0.2,
}

var followUpReasons = map[string]string{
	SignalTooShort:        "回答过于简短，需要补充具体细节",
	SignalVague:           "回答包含模糊表述，需要明确具体要求",
	SignalGeneric:         "回答过于笼统，需要深入了解具体需求",
	SignalOptionOnly:      "仅选择了预设选项，需要了解具体场景和考量",
	SignalNoQuant:         "缺少量化指标，需要明确具体数据要求",
	SignalSingleSelection: "只选择了单一选项，需要了解是否还有其他需求",
}

const fallbackReason = "需要进一步了解详细需求"

// Evaluation is the outcome of the rule layer.
type Evaluation struct {
	NeedsFollowUp bool
	SuggestAIEval bool
	Reason        string
	Signals       []string
}

// Evaluate judges whether an answer is shallow enough to warrant a
// follow-up question. Three outcomes: definitely follow up, definitely
// move on, or borderline and worth letting the AI decide during the next
// question generation. An answer to a follow-up is never followed up again.
func Evaluate(question, answer, dimension string, options []string, isFollowUp bool) Evaluation {
	if isFollowUp {
		return Evaluation{Signals: []string{}}
	}

	answer = strings.TrimSpace(answer)
	answerLen := len([]rune(answer))
	sensitivity, ok := dimensionSensitivity[dimension]
	if !ok {
		sensitivity = defaultSensitivity
	}

	signals := []string{}

	shortThreshold := int(20 + sensitivity*20)
	if answerLen < shortThreshold {
		signals = append(signals, SignalTooShort)
	}

	for _, v := range vagueIndicators {
		if strings.Contains(answer, v) {
			signals = append(signals, SignalVague)
			break
		}
	}

	for _, g := range genericAnswers {
		if answer == g {
			signals = append(signals, SignalGeneric)
			break
		}
	}

	if len(options) > 0 {
		for _, opt := range options {
			if answer == opt && answerLen < 40 {
				signals = append(signals, SignalOptionOnly)
				break
			}
		}
	}

	hasNumbers := containsDigit(answer)
	if (dimension == "tech_constraints" || dimension == "project_constraints") &&
		!hasNumbers && answerLen < 60 {
		signals = append(signals, SignalNoQuant)
	}

	if len(options) >= 3 && !strings.Contains(answer, "；") {
		selected := 0
		for _, opt := range options {
			if strings.Contains(answer, opt) {
				selected++
			}
		}
		if selected <= 1 && answerLen < 30 {
			signals = append(signals, SignalSingleSelection)
		}
	}

	// Sufficiency signals argue against a follow-up
	sufficientScore := 0.0
	sufficient := false
	if answerLen > 80 {
		sufficientScore += 0.5
		sufficient = true
	}
	if strings.Contains(answer, "；") && answerLen > 40 {
		sufficientScore += 0.3
		sufficient = true
	}
	if hasNumbers && answerLen > 30 {
		sufficientScore += 0.2
		sufficient = true
	}

	score := 0.0
	for _, s := range signals {
		if w, ok := signalWeights[s]; ok {
			score += w
		} else {
			score += 0.1
		}
	}
	score *= sensitivity
	score -= sufficientScore

	switch {
	case score >= 0.4:
		return Evaluation{NeedsFollowUp: true, Reason: buildReason(signals), Signals: signals}
	case score >= 0.15 && !sufficient:
		return Evaluation{SuggestAIEval: true, Reason: buildReason(signals), Signals: signals}
	default:
		return Evaluation{Signals: signals}
	}
}

func buildReason(signals []string) string {
	for _, s := range signals {
		if reason, ok := followUpReasons[s]; ok {
			return reason
		}
	}
	return fallbackReason
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
