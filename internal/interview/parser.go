package interview

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"deepvision/internal/logging"
	"deepvision/internal/types"
)

// ErrBadFormat means the model's output could not be coerced into a
// question by any strategy. Callers should surface a retry to the user.
var ErrBadFormat = errors.New("response is not valid question JSON")

var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

// rawQuestion mirrors the JSON contract given to the model. Pointers
// distinguish absent fields from explicit false/null.
type rawQuestion struct {
	Question            string   `json:"question"`
	Options             []string `json:"options"`
	MultiSelect         *bool    `json:"multi_select"`
	IsFollowUp          *bool    `json:"is_follow_up"`
	FollowUpReason      *string  `json:"follow_up_reason"`
	ConflictDetected    *bool    `json:"conflict_detected"`
	ConflictDescription *string  `json:"conflict_description"`
}

// ParseQuestion extracts a question from a model response, trying
// progressively more forgiving strategies: the whole response as JSON, a
// ```json fence, balanced-brace extraction, a regex sweep, and finally
// repair of a truncated object. Missing multi_select and is_follow_up
// default to false.
func ParseQuestion(response, dimension string) (*types.Question, error) {
	strategies := []struct {
		name string
		fn   func(string) (*rawQuestion, bool)
	}{
		{"direct", parseDirect},
		{"code fence", parseCodeFence},
		{"balanced braces", parseBalancedBraces},
		{"regex", parseRegex},
		{"repair", parseRepaired},
	}

	for _, s := range strategies {
		raw, ok := s.fn(response)
		if !ok {
			continue
		}
		if raw.Question == "" || raw.Options == nil {
			continue
		}
		logging.Get(logging.CategoryInterview).Debug("parsed question via %s strategy", s.name)
		return finishQuestion(raw, dimension), nil
	}

	logging.Interview("all parse strategies failed, response head: %s", truncateRunes(response, 500))
	return nil, ErrBadFormat
}

func finishQuestion(raw *rawQuestion, dimension string) *types.Question {
	q := &types.Question{
		Question:    raw.Question,
		Options:     raw.Options,
		Dimension:   dimension,
		AIGenerated: true,
	}
	if raw.MultiSelect != nil {
		q.MultiSelect = *raw.MultiSelect
	}
	if raw.IsFollowUp != nil {
		q.IsFollowUp = *raw.IsFollowUp
	}
	if raw.FollowUpReason != nil {
		q.FollowUpReason = *raw.FollowUpReason
	}
	if raw.ConflictDetected != nil {
		q.ConflictDetected = *raw.ConflictDetected
	}
	if raw.ConflictDescription != nil {
		q.ConflictDescription = *raw.ConflictDescription
	}
	return q
}

func decodeRaw(s string) (*rawQuestion, bool) {
	var raw rawQuestion
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	return &raw, true
}

func parseDirect(response string) (*rawQuestion, bool) {
	cleaned := strings.TrimSpace(response)
	if !strings.HasPrefix(cleaned, "{") || !strings.HasSuffix(cleaned, "}") {
		return nil, false
	}
	return decodeRaw(cleaned)
}

func parseCodeFence(response string) (*rawQuestion, bool) {
	start := strings.Index(response, "```json")
	if start < 0 {
		return nil, false
	}
	start += len("```json")
	end := strings.Index(response[start:], "```")
	if end < 0 {
		return nil, false
	}
	return decodeRaw(strings.TrimSpace(response[start : start+end]))
}

// parseBalancedBraces scans from the first '{' for its matching '}',
// honoring string literals and escapes.
func parseBalancedBraces(response string) (*rawQuestion, bool) {
	start := strings.Index(response, "{")
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return decodeRaw(response[start : i+1])
				}
			}
		}
	}
	return nil, false
}

// parseRegex sweeps for object-looking substrings and accepts the first
// one that decodes with a question field.
func parseRegex(response string) (*rawQuestion, bool) {
	for _, match := range jsonObjectPattern.FindAllString(response, -1) {
		if raw, ok := decodeRaw(match); ok && raw.Question != "" {
			return raw, true
		}
	}
	return nil, false
}

// parseRepaired patches a truncated object: close a dangling options
// array, supply missing boolean fields, and close the object.
func parseRepaired(response string) (*rawQuestion, bool) {
	start := strings.Index(response, "{")
	if start < 0 || !strings.Contains(response, `"question"`) {
		return nil, false
	}

	content := response[start:]
	if !strings.Contains(content, `"options"`) {
		return nil, false
	}

	if strings.Count(content, "[") > strings.Count(content, "]") {
		content += "]"
	}
	if strings.Count(content, "{") > strings.Count(content, "}") {
		if !strings.Contains(content, `"multi_select"`) {
			content += `, "multi_select": false`
		}
		if !strings.Contains(content, `"is_follow_up"`) {
			content += `, "is_follow_up": false`
		}
		content += "}"
	}

	raw, ok := decodeRaw(content)
	if !ok || raw.Question == "" {
		return nil, false
	}
	return raw, true
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
