package agent

import (
	"encoding/json"
	"strings"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/samber/lo"
)

// ToolInstructionMarker identifies the injected system message. A system
// message containing it suppresses another injection.
const ToolInstructionMarker = "Available tools (JSON):"

// ContinueNudge follows the tool results of every iteration.
const ContinueNudge = "If more tools are needed, reply only with the tool_calls JSON; otherwise answer normally."

const toolInstructionPreamble = `You can use the following tools. To request a tool, reply STRICTLY with JSON of the form {"tool_calls":[{"name":"toolName","arguments":{...}}]} and no additional text. Otherwise answer normally.`

type instructionTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// BuildToolInstruction renders the system message describing specs.
func BuildToolInstruction(specs []llm.ToolSpec) string {
	listed := lo.Map(specs, func(s llm.ToolSpec, _ int) instructionTool {
		return instructionTool{Name: s.Name, Description: s.Description, Parameters: s.Schema}
	})
	data, err := json.Marshal(listed)
	if err != nil {
		data = []byte("[]")
	}
	return toolInstructionPreamble + " " + ToolInstructionMarker + " " + string(data)
}

// HasToolInstruction reports whether messages already carry the instruction.
func HasToolInstruction(messages []llm.Message) bool {
	return lo.SomeBy(messages, func(m llm.Message) bool {
		return m.Role == llm.RoleSystem && strings.Contains(m.Content, ToolInstructionMarker)
	})
}

// InjectToolInstruction returns a copy of messages with the tool instruction
// prepended, unless one is already present. The input is never modified.
func InjectToolInstruction(messages []llm.Message, specs []llm.ToolSpec) []llm.Message {
	if HasToolInstruction(messages) {
		return append([]llm.Message(nil), messages...)
	}
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.NewTextMessage(llm.RoleSystem, BuildToolInstruction(specs)))
	return append(out, messages...)
}
