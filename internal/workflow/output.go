package workflow

import (
	"encoding/json"

	"github.com/yuefengz/workflow-use/internal/types"
)

// ExtractActionOutput converts a dispatcher result into a context value.
// JSON content is stored structured; other content is stored as the raw
// string. A result without content falls back to a small status record so
// downstream steps always see something.
func ExtractActionOutput(res *types.ActionResult) (any, bool) {
	if res == nil {
		return nil, false
	}
	if res.ExtractedContent == "" {
		return map[string]any{
			"success": res.Success,
			"is_done": res.IsDone,
		}, true
	}
	return parseContent(res.ExtractedContent), true
}

// ExtractAgentOutput converts an agent history into a context value by
// scanning the final history entry backward for extracted content. An
// agent run that produced no content yields nothing; the caller must not
// write the output key in that case.
func ExtractAgentOutput(h *types.AgentHistory) (any, bool) {
	content := h.LastContent()
	if content == "" {
		return nil, false
	}
	return parseContent(content), true
}

func parseContent(content string) any {
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return parsed
	}
	return content
}
