package protocol

// Wire identifiers of the command vocabulary.
const (
	TypeInit               = "init"
	TypeSaveSettings       = "save-settings"
	TypeNotify             = "notify"
	TypeClose              = "close"
	TypeResize             = "resize"
	TypeListNodes          = "list-nodes"
	TypeListNodesResponse  = "list-nodes-response"
	TypeExportNode         = "export-node"
	TypeExportNodeResponse = "export-node-response"
)

// Kind tells whether a command expects a correlated response.
type Kind int

const (
	FireAndForget Kind = iota
	Correlated
)

func (k Kind) String() string {
	if k == Correlated {
		return "correlated"
	}
	return "fire-and-forget"
}

// Direction is the context a command travels to.
type Direction int

const (
	UIToHost Direction = iota
	HostToUI
)

func (d Direction) String() string {
	if d == HostToUI {
		return "host->ui"
	}
	return "ui->host"
}

// Spec describes one entry of the vocabulary. Response is set on correlated
// requests, Request on their responses.
type Spec struct {
	Type      string
	Kind      Kind
	Direction Direction
	Response  string
	Request   string
}

var vocabulary = map[string]Spec{
	TypeInit:               {Type: TypeInit, Kind: FireAndForget, Direction: HostToUI},
	TypeSaveSettings:       {Type: TypeSaveSettings, Kind: FireAndForget, Direction: UIToHost},
	TypeNotify:             {Type: TypeNotify, Kind: FireAndForget, Direction: UIToHost},
	TypeClose:              {Type: TypeClose, Kind: FireAndForget, Direction: UIToHost},
	TypeResize:             {Type: TypeResize, Kind: FireAndForget, Direction: UIToHost},
	TypeListNodes:          {Type: TypeListNodes, Kind: Correlated, Direction: UIToHost, Response: TypeListNodesResponse},
	TypeListNodesResponse:  {Type: TypeListNodesResponse, Kind: Correlated, Direction: HostToUI, Request: TypeListNodes},
	TypeExportNode:         {Type: TypeExportNode, Kind: Correlated, Direction: UIToHost, Response: TypeExportNodeResponse},
	TypeExportNodeResponse: {Type: TypeExportNodeResponse, Kind: Correlated, Direction: HostToUI, Request: TypeExportNode},
}

// Lookup returns the vocabulary entry for a wire type.
func Lookup(t string) (Spec, bool) {
	s, ok := vocabulary[t]
	return s, ok
}

// IsResponse reports whether t is the response half of a correlated pair.
func IsResponse(t string) bool {
	s, ok := vocabulary[t]
	return ok && s.Request != ""
}

// ResponseType returns the response type expected for a correlated request.
func ResponseType(t string) (string, bool) {
	s, ok := vocabulary[t]
	if !ok || s.Response == "" {
		return "", false
	}
	return s.Response, true
}
