// Package parser extracts a thought and a list of actions from a model's
// raw completion text. The model's output is never trusted to be
// well-formed JSON or to follow any particular wire protocol — parsing
// degrades gracefully through several strategies before giving up.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// ActionItem is one tool invocation extracted from a response. Input
// carries "_error"/"_raw"/"_suggestion" keys when the action's own JSON
// payload failed to parse, so the driver can report a useful tool error
// instead of silently dropping the action.
type ActionItem struct {
	Action string
	Input  map[string]any
}

// Result is everything recovered from one completion.
type Result struct {
	Thought string
	Actions []ActionItem
}

// Step is a record of one ReAct loop iteration: the thought text, the
// actions taken from it, and when it happened. Steps form an append-only
// sequence for the life of one task run.
type Step struct {
	Thought   string       `json:"thought"`
	Actions   []ActionItem `json:"actions"`
	Timestamp time.Time    `json:"timestamp"`
}

var jsonFencePatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*(.*?)```"),
	regexp.MustCompile("(?s)```\\s*(\\{.*?\\})\\s*```"),
	regexp.MustCompile(`(?s)(\{[\s\S]*"actions"[\s\S]*\})`),
	regexp.MustCompile(`(?s)(\{[\s\S]*"action"[\s\S]*\})`),
}

var bareThoughtPattern = regexp.MustCompile(`(?s)(\{[\s\S]*"thought"[\s\S]*\})`)

var thoughtPattern = regexp.MustCompile(`(?is)Thought[:\s]*(.*?)(?:Action|$)`)
var actionLinePattern = regexp.MustCompile(`(?i)^Action\s*(\d*)[:\s]+(?i:input)?`)
var actionLineCapture = regexp.MustCompile(`(?i)^Action\s*(\d*)[:\s]+(.+)$`)
var actionInputLinePattern = regexp.MustCompile(`(?i)^Action\s+Input\s*(\d*)[:\s]+(.+)$`)

// Parse extracts a thought and zero or more actions from raw model output,
// trying JSON-in-fence, then bare JSON, then line-oriented "Action:" /
// "Action Input:" label scanning, in that order. If nothing structured is
// found, the thought falls back to a truncated prefix of the raw text and
// the action list is empty.
func Parse(response string) Result {
	if result, ok := parseJSON(response); ok {
		return result
	}
	return parseLabeled(response)
}

func parseJSON(response string) (Result, bool) {
	for _, pat := range jsonFencePatterns {
		m := pat.FindStringSubmatch(response)
		if m == nil {
			continue
		}
		raw := strings.TrimSpace(m[1])
		raw = stripFences(raw)
		raw = fixJSONFormat(raw)

		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			continue
		}

		thought := firstNonEmptyString(data, "thought", "thinking", "reasoning")

		actionsData, _ := data["actions"].([]any)
		if len(actionsData) == 0 {
			if single, ok := data["action"]; ok {
				actionsData = []any{map[string]any{
					"action":       single,
					"action_input": data["action_input"],
				}}
			}
		}

		var actions []ActionItem
		for _, ad := range actionsData {
			m, ok := ad.(map[string]any)
			if !ok {
				continue
			}
			name, _ := m["action"].(string)
			if name == "" {
				continue
			}
			input, _ := m["action_input"].(map[string]any)
			if input == nil {
				if in, ok := m["input"].(map[string]any); ok {
					input = in
				}
			}
			if input == nil {
				if raw, ok := m["action_input"]; ok && raw != nil {
					input = map[string]any{"value": raw}
				} else {
					input = map[string]any{}
				}
			}
			actions = append(actions, ActionItem{Action: name, Input: input})
		}

		if thought != "" && len(actions) > 0 {
			return Result{Thought: thought, Actions: actions}, true
		}
	}
	if m := bareThoughtPattern.FindStringSubmatch(response); m != nil {
		var data map[string]any
		if err := json.Unmarshal([]byte(fixJSONFormat(strings.TrimSpace(m[1]))), &data); err == nil {
			if thought := firstNonEmptyString(data, "thought", "thinking", "reasoning"); thought != "" {
				return Result{Thought: thought}, true
			}
		}
	}
	return Result{}, false
}

func firstNonEmptyString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

var trailingCommaObject = regexp.MustCompile(`,\s*}`)
var trailingCommaArray = regexp.MustCompile(`,\s*]`)

func fixJSONFormat(s string) string {
	s = trailingCommaObject.ReplaceAllString(s, "}")
	s = trailingCommaArray.ReplaceAllString(s, "]")
	return s
}

func parseLabeled(response string) Result {
	thought := ""
	if m := thoughtPattern.FindStringSubmatch(response); m != nil {
		thought = strings.TrimSpace(m[1])
	}

	var actions []ActionItem
	lines := strings.Split(response, "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if actionInputLinePattern.MatchString(line) {
			continue
		}
		m := actionLineCapture.FindStringSubmatch(line)
		if m == nil || strings.EqualFold(strings.TrimSpace(m[2]), "input") {
			continue
		}
		actionNum := m[1]
		actionName := strings.Trim(strings.TrimSpace(m[2]), "`\"' ")
		if actionName == "" || actionName == ":" {
			continue
		}

		input := map[string]any{}
		found := false

		limit := i + 11
		if limit > len(lines) {
			limit = len(lines)
		}
		for j := i + 1; j < limit; j++ {
			inputLine := strings.TrimSpace(lines[j])
			im := actionInputLinePattern.FindStringSubmatch(inputLine)
			if im == nil {
				if actionLinePattern.MatchString(inputLine) {
					break
				}
				continue
			}
			inputNum := im[1]
			if actionNum != "" && inputNum != "" && actionNum != inputNum {
				continue
			}
			inputText := strings.TrimSpace(im[2])
			if strings.HasPrefix(inputText, "{") {
				clean := fixJSONFormat(stripFences(inputText))
				var parsed map[string]any
				if err := json.Unmarshal([]byte(clean), &parsed); err == nil {
					input = parsed
				} else {
					input = map[string]any{
						"_error":      "invalid JSON: " + err.Error(),
						"_raw":        inputText,
						"_suggestion": "check JSON formatting: quoted keys, quoted string values, no trailing commas",
					}
				}
			} else {
				input = parseNonJSONInput(inputText)
			}
			found = true
			break
		}

		if !found {
			input = map[string]any{}
		}
		actions = append(actions, ActionItem{Action: actionName, Input: input})
	}

	if thought == "" {
		thought = response
		if len(thought) > 500 {
			thought = thought[:500] + "..."
		}
	}

	return Result{Thought: thought, Actions: actions}
}

// parseNonJSONInput handles an Action Input line that isn't a JSON object:
// key=value,key2=value2 pairs, or else the whole text as a single value.
func parseNonJSONInput(text string) map[string]any {
	if strings.Contains(text, "=") {
		result := map[string]any{}
		for _, pair := range strings.Split(text, ",") {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				continue
			}
			result[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), "\"'")
		}
		if len(result) > 0 {
			return result
		}
	}
	return map[string]any{"input": text}
}
