// Package graph runs named nodes as an explicit state machine. Work nodes
// transform State and follow their single outgoing edge; condition nodes
// pick the next node through a transition table.
package graph

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStepLimit is returned when an execution runs more nodes than its step limit allows.
	ErrStepLimit = errors.New("graph: step limit exceeded")
	// ErrMaxVisits is returned when a single node is entered more often than allowed.
	ErrMaxVisits = errors.New("graph: node visit limit exceeded")
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeCondition NodeType = "condition"
	NodeTypeCustom    NodeType = "custom"
)

// State represents the execution state passed between nodes
type State map[string]any

// NodeFunc is the function executed by a node
type NodeFunc func(context.Context, State) (State, error)

// ConditionFunc evaluates a condition and returns a key of the node's NextMap
type ConditionFunc func(context.Context, State) (string, error)

// StepFunc observes every node entered during execution.
type StepFunc func(ctx context.Context, step int, node string)

// Node represents a node in the execution graph
type Node struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc
	Condition ConditionFunc     // Only for condition nodes
	Next      string            // Outgoing edge for non-condition nodes
	NextMap   map[string]string // For condition nodes: condition result -> next node
}

// Graph represents an execution flow graph
type Graph struct {
	nodes     map[string]*Node
	startNode string
	endNode   string
	maxVisits int
}

// NewGraph creates a new graph
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		maxVisits: 10,
	}
}

func (g *Graph) validateNode(node *Node) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}

	switch node.Type {
	case NodeTypeCondition:
		if node.Condition == nil {
			panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
		}
	default:
		if node.Execute == nil {
			panic(fmt.Sprintf("node %s of type %s must have non-nil Execute function", node.Name, node.Type))
		}
	}
}

// AddNode adds a node to the graph
func (g *Graph) AddNode(node *Node) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}

	g.validateNode(node)
	g.nodes[node.Name] = node

	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
	if node.Type == NodeTypeEnd {
		g.endNode = node.Name
	}
}

// SetStartNode sets the start node
func (g *Graph) SetStartNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.startNode = name
}

// SetEndNode sets the end node
func (g *Graph) SetEndNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.endNode = name
}

// Validate checks that every edge and transition points at a known node.
func (g *Graph) Validate() error {
	if g.startNode == "" {
		return fmt.Errorf("start node not set")
	}
	if g.endNode == "" {
		return fmt.Errorf("end node not set")
	}
	for _, node := range g.nodes {
		if node.Type == NodeTypeCondition {
			if len(node.NextMap) == 0 {
				return fmt.Errorf("condition node %s has no transitions", node.Name)
			}
			for key, target := range node.NextMap {
				if _, ok := g.nodes[target]; !ok {
					return fmt.Errorf("node %s: transition %q targets unknown node %s", node.Name, key, target)
				}
			}
			continue
		}
		if node.Type == NodeTypeEnd {
			continue
		}
		if node.Next == "" {
			return fmt.Errorf("node %s has no outgoing edge", node.Name)
		}
		if _, ok := g.nodes[node.Next]; !ok {
			return fmt.Errorf("node %s: edge targets unknown node %s", node.Name, node.Next)
		}
	}
	return nil
}

type execConfig struct {
	stepLimit int
	onStep    StepFunc
}

// ExecOption customises a single execution.
type ExecOption func(*execConfig)

// WithStepLimit bounds the total number of nodes entered, condition nodes
// included. Zero or negative disables the bound.
func WithStepLimit(limit int) ExecOption {
	return func(c *execConfig) {
		c.stepLimit = limit
	}
}

// WithStepObserver registers a callback invoked before every node runs.
func WithStepObserver(fn StepFunc) ExecOption {
	return func(c *execConfig) {
		c.onStep = fn
	}
}

// Execute runs the graph from the start node until the end node returns.
// Each entered node counts as one step; the execution aborts with
// ErrStepLimit once the configured limit is exceeded, and with ErrMaxVisits
// when a single node is re-entered too often. Cancellation of ctx is
// checked before every step.
func (g *Graph) Execute(ctx context.Context, initialState State, opts ...ExecOption) (State, error) {
	if g.startNode == "" {
		return nil, fmt.Errorf("start node not set")
	}

	cfg := execConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	state := initialState
	if state == nil {
		state = make(State)
	}

	visited := make(map[string]int)
	current := g.startNode
	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.stepLimit > 0 && step > cfg.stepLimit {
			return nil, fmt.Errorf("%w: %d steps, next node %s", ErrStepLimit, cfg.stepLimit, current)
		}

		node, exists := g.nodes[current]
		if !exists {
			return nil, fmt.Errorf("node %s not found", current)
		}

		visited[current]++
		if g.maxVisits > 0 && visited[current] > g.maxVisits {
			return nil, fmt.Errorf("%w: node %s entered %d times", ErrMaxVisits, current, visited[current])
		}
		if cfg.onStep != nil {
			cfg.onStep(ctx, step, current)
		}

		switch node.Type {
		case NodeTypeEnd:
			out, err := node.Execute(ctx, state)
			if err != nil {
				return nil, fmt.Errorf("error executing node %s: %w", node.Name, err)
			}
			return out, nil
		case NodeTypeCondition:
			result, err := node.Condition(ctx, state)
			if err != nil {
				return nil, fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
			}
			next := node.NextMap[result]
			if next == "" {
				return nil, fmt.Errorf("node %s: no transition for %q", node.Name, result)
			}
			current = next
		default:
			out, err := node.Execute(ctx, state)
			if err != nil {
				return nil, fmt.Errorf("error executing node %s: %w", node.Name, err)
			}
			if out != nil {
				state = out
			}
			if node.Next == "" {
				return nil, fmt.Errorf("no next node specified for node %s", node.Name)
			}
			current = node.Next
		}
	}
}

// GetNode returns a node by name
func (g *Graph) GetNode(name string) (*Node, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %s not found", name)
	}
	return node, nil
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph) SetMaxVisits(maxVisits int) {
	g.maxVisits = maxVisits
}

// Builder helps build graphs fluently
type Builder struct {
	graph *Graph
}

// NewBuilder creates a new graph builder
func NewBuilder() *Builder {
	return &Builder{
		graph: NewGraph(),
	}
}

// AddNode adds a node to the graph
func (b *Builder) AddNode(name string, nodeType NodeType, execute NodeFunc) *Builder {
	b.graph.AddNode(&Node{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a condition node
func (b *Builder) AddConditionNode(name string, condition ConditionFunc, nextMap map[string]string) *Builder {
	b.graph.AddNode(&Node{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		NextMap:   nextMap,
	})
	return b
}

// AddEdge connects two nodes. A later edge from the same node replaces the earlier one.
func (b *Builder) AddEdge(from, to string) *Builder {
	node, exists := b.graph.nodes[from]
	if !exists {
		panic(fmt.Sprintf("node %s not found", from))
	}
	node.Next = to
	return b
}

// SetStart sets the start node
func (b *Builder) SetStart(name string) *Builder {
	b.graph.SetStartNode(name)
	return b
}

// SetEnd sets the end node
func (b *Builder) SetEnd(name string) *Builder {
	b.graph.SetEndNode(name)
	return b
}

// SetMaxVisits sets the maximum number of visits to a node
func (b *Builder) SetMaxVisits(maxVisits int) *Builder {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// Build validates and returns the constructed graph
func (b *Builder) Build() (*Graph, error) {
	if err := b.graph.Validate(); err != nil {
		return nil, err
	}
	return b.graph, nil
}
