// Package idgen hands out time-ordered int64 identifiers.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator wraps a snowflake node.
type Generator struct {
	node *snowflake.Node
}

// New returns a generator for the given node id (0..1023). Every running instance must use a
// distinct node id.
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("idgen: %w", err)
	}
	return &Generator{node: node}, nil
}

// Next returns a new unique id.
func (g *Generator) Next() int64 {
	return g.node.Generate().Int64()
}
