package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Command is one decoded envelope. The concrete types below form a closed set
// keyed by their wire identifier.
type Command interface {
	Type() string
	isCommand()
}

// Init hands the persisted settings blob to the UI.
type Init struct{ Settings json.RawMessage }

// SaveSettings asks the host to persist a settings blob.
type SaveSettings struct{ Settings json.RawMessage }

// Notify asks the host to show a transient notification.
type Notify struct {
	Message string
	Timeout time.Duration
}

// Close asks the host to close the UI window.
type Close struct{}

// Resize asks the host to resize the UI window. Zero dimensions mean "default".
type Resize struct{ Width, Height int }

// ListNodes requests summaries of the visible nodes.
type ListNodes struct{ OnlySelected bool }

// ExportNode requests the rendered image of one node.
type ExportNode struct {
	ID       string
	Settings ExportOverride
}

// ListNodesResponse answers ListNodes.
type ListNodesResponse struct{ Nodes []NodeSummary }

// ExportNodeResponse answers ExportNode. A nil Image means no result.
type ExportNodeResponse struct{ Image []byte }

func (Init) Type() string               { return TypeInit }
func (SaveSettings) Type() string       { return TypeSaveSettings }
func (Notify) Type() string             { return TypeNotify }
func (Close) Type() string              { return TypeClose }
func (Resize) Type() string             { return TypeResize }
func (ListNodes) Type() string          { return TypeListNodes }
func (ExportNode) Type() string         { return TypeExportNode }
func (ListNodesResponse) Type() string  { return TypeListNodesResponse }
func (ExportNodeResponse) Type() string { return TypeExportNodeResponse }

func (Init) isCommand()               {}
func (SaveSettings) isCommand()       {}
func (Notify) isCommand()             {}
func (Close) isCommand()              {}
func (Resize) isCommand()             {}
func (ListNodes) isCommand()          {}
func (ExportNode) isCommand()         {}
func (ListNodesResponse) isCommand()  {}
func (ExportNodeResponse) isCommand() {}

// NodeSummary is a value snapshot of a design node.
type NodeSummary struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// wire payloads; numbers arrive as JS numbers and are truncated.
type notifyPayload struct {
	Message string  `json:"message"`
	Timeout float64 `json:"timeout"`
}

type resizePayload struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type listNodesPayload struct {
	OnlySelected bool `json:"onlySelected"`
}

type exportNodePayload struct {
	ID       string          `json:"id"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// Decode turns an envelope into its typed command. An absent payload decodes
// to the zero value of the command.
func Decode(env Envelope) (Command, error) {
	switch env.Type {
	case TypeInit:
		return Init{Settings: NormalizeSettings(env.Data)}, nil
	case TypeSaveSettings:
		return SaveSettings{Settings: NormalizeSettings(env.Data)}, nil
	case TypeClose:
		return Close{}, nil
	case TypeNotify:
		var p notifyPayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return Notify{Message: p.Message, Timeout: time.Duration(int64(p.Timeout)) * time.Millisecond}, nil
	case TypeResize:
		var p resizePayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return Resize{Width: int(p.Width), Height: int(p.Height)}, nil
	case TypeListNodes:
		var p listNodesPayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		return ListNodes{OnlySelected: p.OnlySelected}, nil
	case TypeExportNode:
		var p exportNodePayload
		if err := decodeData(env, &p); err != nil {
			return nil, err
		}
		var o ExportOverride
		if err := decodeRaw(p.Settings, &o); err != nil {
			return nil, err
		}
		return ExportNode{ID: p.ID, Settings: o}, nil
	case TypeListNodesResponse:
		nodes := []NodeSummary{}
		if err := decodeData(env, &nodes); err != nil {
			return nil, err
		}
		if nodes == nil {
			nodes = []NodeSummary{}
		}
		return ListNodesResponse{Nodes: nodes}, nil
	case TypeExportNodeResponse:
		var img []byte
		if err := decodeData(env, &img); err != nil {
			return nil, err
		}
		return ExportNodeResponse{Image: img}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
}

// Encode builds the envelope for cmd. state is only kept for correlated commands.
func Encode(cmd Command, state string) (Envelope, error) {
	var payload any
	switch c := cmd.(type) {
	case Init:
		payload = NormalizeSettings(c.Settings)
	case SaveSettings:
		payload = NormalizeSettings(c.Settings)
	case Close:
	case Notify:
		payload = notifyPayload{Message: c.Message, Timeout: float64(c.Timeout.Milliseconds())}
	case Resize:
		payload = resizePayload{Width: float64(c.Width), Height: float64(c.Height)}
	case ListNodes:
		payload = listNodesPayload{OnlySelected: c.OnlySelected}
	case ExportNode:
		raw, err := json.Marshal(c.Settings)
		if err != nil {
			return Envelope{}, err
		}
		payload = exportNodePayload{ID: c.ID, Settings: raw}
	case ListNodesResponse:
		nodes := c.Nodes
		if nodes == nil {
			nodes = []NodeSummary{}
		}
		payload = nodes
	case ExportNodeResponse:
		if c.Image == nil {
			payload = json.RawMessage("null")
		} else {
			payload = c.Image
		}
	default:
		return Envelope{}, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	env := Envelope{Type: cmd.Type()}
	if spec, ok := Lookup(env.Type); ok && spec.Kind == Correlated {
		env.State = state
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = b
	}
	return env, nil
}

// NormalizeSettings returns the blob unchanged, or the empty object when it is absent.
func NormalizeSettings(raw json.RawMessage) json.RawMessage {
	if !(Envelope{Data: raw}).HasData() {
		return json.RawMessage("{}")
	}
	return raw
}

func decodeData(env Envelope, v any) error {
	if !env.HasData() {
		return nil
	}
	return decodeRaw(env.Data, v)
}

func decodeRaw(raw json.RawMessage, v any) error {
	if !(Envelope{Data: raw}).HasData() {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
