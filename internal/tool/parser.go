package tool

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Call is one tool invocation extracted from model output.
type Call struct {
	Name string         `json:"tool"`
	Args map[string]any `json:"arguments"`

	// Raw is the exact text span the call was parsed from, used to strip
	// call markup from the user-facing response.
	Raw string `json:"-"`
}

// Models are prompted to emit fenced JSON blocks, but smaller models often
// fall back to XML-style tags; both formats are accepted.
var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	toolTagRe    = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)
)

// ParseCalls extracts tool calls from model output, in order of appearance.
// JSON objects without a tool name are ignored (the model may legitimately
// emit JSON that is not a call). Malformed JSON inside call markup is
// likewise skipped rather than failing the whole response.
func ParseCalls(text string) []Call {
	var calls []Call
	for _, re := range []*regexp.Regexp{toolTagRe, fencedJSONRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			call, ok := decodeCall(m[1])
			if !ok {
				continue
			}
			call.Raw = m[0]
			calls = append(calls, call)
		}
	}
	return calls
}

// StripCalls removes call markup from model output, leaving the prose the
// model produced around it.
func StripCalls(text string, calls []Call) string {
	for _, call := range calls {
		text = strings.Replace(text, call.Raw, "", 1)
	}
	return strings.TrimSpace(text)
}

// decodeCall parses one candidate JSON object. Accepts "tool" or "name" for
// the tool name, "arguments" or "args" for the argument object.
func decodeCall(raw string) (Call, bool) {
	var obj struct {
		Tool      string         `json:"tool"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
		Args      map[string]any `json:"args"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Call{}, false
	}

	name := obj.Tool
	if name == "" {
		name = obj.Name
	}
	if name == "" {
		return Call{}, false
	}

	args := obj.Arguments
	if args == nil {
		args = obj.Args
	}
	if args == nil {
		args = map[string]any{}
	}
	return Call{Name: name, Args: args}, true
}
