// Package bridge drives external browser and agent backends over
// newline-delimited JSON on a child process's stdin/stdout. Each request
// is a single JSON object on one line; the backend answers every request
// with exactly one response line, in order.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/yuefengz/workflow-use/internal/types"
)

// MessageType identifies the bridge message kind.
type MessageType string

const (
	// Request types (engine -> backend)
	MsgNavigate MessageType = "navigate"
	MsgResolve  MessageType = "resolve"
	MsgClick    MessageType = "click"
	MsgFill     MessageType = "fill"
	MsgSelect   MessageType = "select"
	MsgPress    MessageType = "press"
	MsgScroll   MessageType = "scroll"
	MsgURL      MessageType = "url"
	MsgHandle   MessageType = "handle"
	MsgClose    MessageType = "close"
	MsgAgentRun MessageType = "agent_run"

	// Response types (backend -> engine)
	MsgOK          MessageType = "ok"
	MsgError       MessageType = "error"
	MsgElement     MessageType = "element"
	MsgAgentResult MessageType = "agent_result"
)

// ErrCodeNoMatch marks a resolve failure where no element matched any
// strategy, as opposed to a backend fault.
const ErrCodeNoMatch = "no_match"

// Request is the engine->backend envelope. Unused fields are omitted
// per message type.
type Request struct {
	Type MessageType `json:"type"`

	// navigate
	URL string `json:"url,omitempty"`

	// resolve
	Locator *LocatorPayload `json:"locator,omitempty"`

	// element operations
	Element string `json:"element,omitempty"`
	Force   bool   `json:"force,omitempty"`
	Value   string `json:"value,omitempty"`
	Label   string `json:"label,omitempty"`
	Key     string `json:"key,omitempty"`

	// scroll
	ScrollX int `json:"scroll_x,omitempty"`
	ScrollY int `json:"scroll_y,omitempty"`

	// agent_run. BrowserSession carries the browser backend's attach
	// handle so the agent acts on the run's live session.
	Task           string `json:"task,omitempty"`
	MaxSteps       int    `json:"max_steps,omitempty"`
	BrowserSession string `json:"browser_session,omitempty"`
}

// LocatorPayload is the wire form of a browser locator.
type LocatorPayload struct {
	CSSSelector string `json:"css_selector,omitempty"`
	XPath       string `json:"xpath,omitempty"`
	ElementTag  string `json:"element_tag,omitempty"`
	ElementText string `json:"element_text,omitempty"`
	TimeoutMS   int64  `json:"timeout_ms,omitempty"`
}

// Response is the backend->engine envelope.
type Response struct {
	Type MessageType `json:"type"`

	// error
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`

	// element
	ID       string `json:"id,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Strategy string `json:"strategy,omitempty"`

	// ok payloads
	Value string `json:"value,omitempty"`
	URL   string `json:"url,omitempty"`

	// agent_result
	Done  bool                     `json:"done,omitempty"`
	Items []types.AgentHistoryItem `json:"items,omitempty"`
}

// Valid returns true if this is a recognized response type.
func (t MessageType) Valid() bool {
	switch t {
	case MsgNavigate, MsgResolve, MsgClick, MsgFill, MsgSelect, MsgPress,
		MsgScroll, MsgURL, MsgHandle, MsgClose, MsgAgentRun,
		MsgOK, MsgError, MsgElement, MsgAgentResult:
		return true
	}
	return false
}

// ParseResponse parses one response line.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid bridge response: %w", err)
	}
	if !resp.Type.Valid() {
		return nil, fmt.Errorf("unknown bridge response type: %q", resp.Type)
	}
	return &resp, nil
}

// Marshal serializes a message to a single JSON line.
func Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
