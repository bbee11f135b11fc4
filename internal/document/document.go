// Package document holds the design document a host serves: top-level nodes,
// a selection, and their rendering.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gaspardpetit/figbridge/internal/host"
	"github.com/gaspardpetit/figbridge/internal/protocol"
	"github.com/gaspardpetit/figbridge/internal/render"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrDuplicateID = errors.New("duplicate node id")
	ErrForeignNode = errors.New("node does not belong to this document")
)

// NodeSpec is the file form of a node.
type NodeSpec struct {
	ID      string  `yaml:"id" json:"id"`
	Name    string  `yaml:"name" json:"name"`
	Type    string  `yaml:"type" json:"type"`
	Visible *bool   `yaml:"visible,omitempty" json:"visible,omitempty"`
	Width   float64 `yaml:"width" json:"width"`
	Height  float64 `yaml:"height" json:"height"`
	Fill    string  `yaml:"fill,omitempty" json:"fill,omitempty"`
	Stroke  string  `yaml:"stroke,omitempty" json:"stroke,omitempty"`
}

// Spec is the file form of a document. JSON files parse as YAML.
type Spec struct {
	Name      string     `yaml:"name" json:"name"`
	Children  []NodeSpec `yaml:"children" json:"children"`
	Selection []string   `yaml:"selection" json:"selection"`
}

// Node is a live document node. Its fields may change while it is listed.
type Node struct {
	doc *Document

	mu      sync.RWMutex
	id      string
	name    string
	typ     string
	visible bool
	width   float64
	height  float64
	shape   render.Shape
}

func (n *Node) ID() string { return n.id }

func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Node) Type() string { return n.typ }

func (n *Node) Visible() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.visible
}

func (n *Node) Width() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.width
}

func (n *Node) Height() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.height
}

// Document is safe for concurrent use.
type Document struct {
	name string

	mu        sync.RWMutex
	children  []*Node
	byID      map[string]*Node
	selection []string
}

// New builds a document from its spec.
func New(spec Spec) (*Document, error) {
	d := &Document{name: spec.Name, byID: map[string]*Node{}}
	for _, ns := range spec.Children {
		if err := d.appendLocked(ns); err != nil {
			return nil, err
		}
	}
	if err := d.selectLocked(spec.Selection); err != nil {
		return nil, err
	}
	return d, nil
}

// Load reads a YAML or JSON document file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("document %s: %w", path, err)
	}
	return New(spec)
}

func (d *Document) Name() string { return d.name }

func (d *Document) appendLocked(ns NodeSpec) error {
	if ns.ID == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownNode)
	}
	if _, ok := d.byID[ns.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, ns.ID)
	}
	n := &Node{
		doc:     d,
		id:      ns.ID,
		name:    ns.Name,
		typ:     ns.Type,
		visible: ns.Visible == nil || *ns.Visible,
		width:   ns.Width,
		height:  ns.Height,
		shape:   render.Shape{Fill: render.DefaultFill},
	}
	if n.typ == "" {
		n.typ = "FRAME"
	}
	if ns.Fill != "" {
		c, err := render.ParseColor(ns.Fill)
		if err != nil {
			return fmt.Errorf("node %s: %w", ns.ID, err)
		}
		n.shape.Fill = c
	}
	if ns.Stroke != "" {
		c, err := render.ParseColor(ns.Stroke)
		if err != nil {
			return fmt.Errorf("node %s: %w", ns.ID, err)
		}
		n.shape.Stroke = c
	}
	d.children = append(d.children, n)
	d.byID[n.id] = n
	return nil
}

func (d *Document) selectLocked(ids []string) error {
	for _, id := range ids {
		if _, ok := d.byID[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
	}
	d.selection = append([]string(nil), ids...)
	return nil
}

// Append adds a top-level node at the end of the children.
func (d *Document) Append(ns NodeSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.appendLocked(ns)
}

// Select replaces the selection.
func (d *Document) Select(ids ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selectLocked(ids)
}

func (d *Document) node(id string) (*Node, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n, nil
}

func (d *Document) SetVisible(id string, visible bool) error {
	n, err := d.node(id)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.visible = visible
	n.mu.Unlock()
	return nil
}

func (d *Document) Rename(id, name string) error {
	n, err := d.node(id)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.name = name
	n.mu.Unlock()
	return nil
}

// Selection returns the selected nodes in selection order.
func (d *Document) Selection() []host.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]host.Node, 0, len(d.selection))
	for _, id := range d.selection {
		out = append(out, d.byID[id])
	}
	return out
}

// Children returns the top-level nodes in document order.
func (d *Document) Children() []host.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]host.Node, 0, len(d.children))
	for _, n := range d.children {
		out = append(out, n)
	}
	return out
}

// Export renders a node of this document.
func (d *Document) Export(ctx context.Context, hn host.Node, s protocol.ExportSettings) ([]byte, error) {
	n, ok := hn.(*Node)
	if !ok || n.doc != d {
		return nil, ErrForeignNode
	}
	n.mu.RLock()
	shape := n.shape
	shape.Width, shape.Height = n.width, n.height
	n.mu.RUnlock()
	return render.Render(ctx, shape, s)
}

// Summary is a read-only view of the document for status endpoints.
type Summary struct {
	Name      string     `json:"name"`
	Children  []NodeView `json:"children"`
	Selection []string   `json:"selection"`
}

type NodeView struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Visible bool    `json:"visible"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

func (d *Document) Summary() Summary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Summary{Name: d.name, Children: []NodeView{}, Selection: append([]string{}, d.selection...)}
	for _, n := range d.children {
		n.mu.RLock()
		s.Children = append(s.Children, NodeView{
			ID: n.id, Name: n.name, Type: n.typ, Visible: n.visible, Width: n.width, Height: n.height,
		})
		n.mu.RUnlock()
	}
	return s
}
