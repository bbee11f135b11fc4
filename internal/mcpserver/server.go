// Package mcpserver exposes the UI bridge as MCP tools so agents can list and
// export design nodes.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gaspardpetit/figbridge/internal/protocol"
)

// Bridge is the subset of the UI bridge the tools call.
type Bridge interface {
	ListNodes(ctx context.Context, onlySelected bool) ([]protocol.NodeSummary, error)
	ExportNode(ctx context.Context, id string, settings protocol.ExportOverride) ([]byte, error)
	Notify(ctx context.Context, message string, timeout time.Duration) error
}

type Server struct {
	bridge Bridge
	mcp    *server.MCPServer
}

func New(b Bridge, version string) *Server {
	s := &Server{
		bridge: b,
		mcp: server.NewMCPServer("figbridge", version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithPromptCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// ServeStdio serves MCP on stdin/stdout until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Handler serves MCP over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp,
		server.WithHTTPContextFunc(func(ctx context.Context, _ *http.Request) context.Context {
			return ctx
		}),
	)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_nodes",
		mcp.WithDescription("List visible top-level design nodes, last first."),
		mcp.WithBoolean("only_selected", mcp.Description("Only list nodes in the current selection")),
	), s.handleListNodes)

	s.mcp.AddTool(mcp.NewTool("export_node",
		mcp.WithDescription("Render a node to an image. Missing nodes and render failures return an error result."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id as returned by list_nodes")),
		mcp.WithString("format", mcp.Description("PNG (default), JPG, SVG or PDF")),
		mcp.WithString("constraint", mcp.Description("SCALE (default), WIDTH or HEIGHT")),
		mcp.WithNumber("value", mcp.Description("Constraint value; defaults to 1 for SCALE")),
		mcp.WithBoolean("contents_only", mcp.Description("Exclude overlapping content (default true)")),
	), s.handleExportNode)

	s.mcp.AddTool(mcp.NewTool("notify",
		mcp.WithDescription("Show a notification in the design tool."),
		mcp.WithString("message", mcp.Required(), mcp.Description("Text to show")),
		mcp.WithNumber("timeout_ms", mcp.Description("Display time in milliseconds")),
	), s.handleNotify)
}

func (s *Server) handleListNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodes, err := s.bridge.ListNodes(ctx, req.GetBool("only_selected", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list nodes: %v", err)), nil
	}
	b, err := json.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

func exportOverride(req mcp.CallToolRequest) protocol.ExportOverride {
	var o protocol.ExportOverride
	o.Format = req.GetString("format", "")
	if c := req.GetString("constraint", ""); c != "" {
		o.Constraint = &protocol.Constraint{Type: c, Value: req.GetFloat("value", 1)}
	} else if v := req.GetFloat("value", 0); v > 0 {
		o.Constraint = &protocol.Constraint{Type: protocol.ConstraintScale, Value: v}
	}
	if args := req.GetArguments(); args != nil {
		if _, ok := args["contents_only"]; ok {
			co := req.GetBool("contents_only", true)
			o.ContentsOnly = &co
		}
	}
	return o
}

func mimeType(format string) string {
	switch format {
	case protocol.FormatJPG:
		return "image/jpeg"
	case protocol.FormatSVG:
		return "image/svg+xml"
	case protocol.FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

func (s *Server) handleExportNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	o := exportOverride(req)
	img, err := s.bridge.ExportNode(ctx, id, o)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export node: %v", err)), nil
	}
	if img == nil {
		return mcp.NewToolResultError(fmt.Sprintf("node %s could not be exported", id)), nil
	}
	format := protocol.MergeExportSettings(o).Format
	return mcp.NewToolResultImage(fmt.Sprintf("%s (%d bytes)", id, len(img)), base64.StdEncoding.EncodeToString(img), mimeType(format)), nil
}

func (s *Server) handleNotify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	timeout := time.Duration(req.GetFloat("timeout_ms", 0)) * time.Millisecond
	if err := s.bridge.Notify(ctx, msg, timeout); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("notify: %v", err)), nil
	}
	return mcp.NewToolResultText("ok"), nil
}
