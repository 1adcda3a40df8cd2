package pipeline

import "errors"

var (
	// ErrNodeNotFound is returned when a queried node was never added to the pipeline.
	ErrNodeNotFound = errors.New("pipeline: node not found")

	// ErrNilNode is returned when a nil node is passed to a graph operation.
	ErrNilNode = errors.New("pipeline: nil node")

	// ErrInvalidCapability is returned when a node is constructed with a
	// capability that does not satisfy the required transform contract.
	ErrInvalidCapability = errors.New("pipeline: invalid transform capability")

	// ErrCyclic is returned when leveling reaches a node that is still being
	// leveled. Pipelines must be acyclic; this only reports the violation.
	ErrCyclic = errors.New("pipeline: graph contains a cycle")

	// ErrInvalidDefinition is returned when a YAML pipeline definition fails validation.
	ErrInvalidDefinition = errors.New("pipeline: invalid definition")
)
