package domain

import (
	"fmt"
	"time"
)

// Runbook is the validated in-memory representation of a TOML workflow
// document. It is immutable after construction; the parser is the only
// producer.
type Runbook struct {
	Title       string
	Description string
	Version     string
	Author      string
	CreatedAt   time.Time

	// NodeOrder preserves declaration order; Nodes indexes the same values
	// by id. Keeping both avoids re-deriving iteration order from a map,
	// which Go does not guarantee.
	NodeOrder []string
	Nodes     map[string]*Node
}

// NewRunbook validates and wraps the given metadata and nodes into a Runbook.
// order must list every key of nodes exactly once, in declaration order.
func NewRunbook(title, description, version, author string, createdAt time.Time, order []string, nodes map[string]*Node) (*Runbook, error) {
	if title == "" || description == "" || version == "" || author == "" {
		return nil, fmt.Errorf("runbook: title, description, version and author are required")
	}
	if createdAt.IsZero() {
		return nil, fmt.Errorf("runbook: created_at is required")
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("runbook: node order length %d does not match node count %d", len(order), len(nodes))
	}
	rb := &Runbook{
		Title:       title,
		Description: description,
		Version:     version,
		Author:      author,
		CreatedAt:   createdAt,
		NodeOrder:   order,
		Nodes:       nodes,
	}
	if err := rb.validateStructure(); err != nil {
		return nil, err
	}
	return rb, nil
}

// validateStructure enforces the Runbook invariants from spec §3/§4.1 that
// don't depend on execution history: dependency references resolve, the
// graph is acyclic, and no node is both critical and skipped (already
// checked per-node, re-asserted here for defense in depth).
func (rb *Runbook) validateStructure() error {
	seen := make(map[string]bool, len(rb.NodeOrder))
	for _, id := range rb.NodeOrder {
		if seen[id] {
			return fmt.Errorf("runbook: duplicate node id %q", id)
		}
		seen[id] = true
		node, ok := rb.Nodes[id]
		if !ok {
			return fmt.Errorf("runbook: node order references undeclared id %q", id)
		}
		if node.ID != id {
			return fmt.Errorf("runbook: node map key %q does not match node id %q", id, node.ID)
		}
		if err := node.Validate(); err != nil {
			return err
		}
		for _, dep := range node.DependsOn {
			if _, ok := rb.Nodes[dep]; !ok {
				return fmt.Errorf("runbook: node %q depends_on unknown node %q", id, dep)
			}
		}
	}
	if _, err := TopologicalOrder(rb); err != nil {
		return err
	}
	return nil
}

// TopologicalOrder computes a dependency-respecting ordering of rb.Nodes
// using depth-first search with three-color marking (unvisited / in-progress
// / done), per spec §4.5. Nodes are visited in declaration order so the
// result is deterministic; a node is appended to the order only once all of
// its dependencies (descendants in the DFS sense) are done.
func TopologicalOrder(rb *Runbook) ([]string, error) {
	const (
		white = 0 // unvisited
		gray  = 1 // in progress
		black = 2 // done
	)
	color := make(map[string]int, len(rb.Nodes))
	order := make([]string, 0, len(rb.Nodes))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("runbook: dependency cycle detected at node %q", id)
		}
		color[id] = gray
		node, ok := rb.Nodes[id]
		if !ok {
			return fmt.Errorf("runbook: depends_on references undeclared node %q", id)
		}
		for _, dep := range node.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, id := range rb.NodeOrder {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
