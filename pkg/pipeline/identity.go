// Package pipeline defines the graph engine for DAG-shaped data pipelines.
// Nodes wrap opaque transform capabilities, edges are synthesized from the
// pipeline's adjacency lists, and nodes are grouped into dependency levels
// that an executor can run level by level with full parallelism inside a
// level. Values flowing between nodes are modeled as deferred references
// (XYRef) carrying provenance back to the nodes and inputs that produced them.
package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// NodeID is an opaque, process-unique node identity.
type NodeID string

// String returns the raw token.
func (id NodeID) String() string { return string(id) }

// IDGenerator mints node identities. Implementations must never return the
// same token twice within a process.
type IDGenerator interface {
	NewID() NodeID
}

// IDGeneratorFunc adapts a plain function to the IDGenerator interface.
type IDGeneratorFunc func() NodeID

func (f IDGeneratorFunc) NewID() NodeID { return f() }

// UUIDGenerator mints random (version 4) UUID identities.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() NodeID { return NodeID(uuid.NewString()) }

var (
	defaultIDsMu sync.RWMutex
	defaultIDs   IDGenerator = UUIDGenerator{}
)

// SetDefaultIDGenerator replaces the generator used by node constructors
// that are not given WithIDGenerator. Passing nil restores UUIDGenerator.
func SetDefaultIDGenerator(g IDGenerator) {
	if g == nil {
		g = UUIDGenerator{}
	}
	defaultIDsMu.Lock()
	defaultIDs = g
	defaultIDsMu.Unlock()
}

func defaultIDGenerator() IDGenerator {
	defaultIDsMu.RLock()
	defer defaultIDsMu.RUnlock()
	return defaultIDs
}
