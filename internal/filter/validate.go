package filter

import (
	"errors"
	"fmt"
)

var (
	ErrOpRequired        = errors.New("op required")
	ErrSideRequired      = errors.New("side required")
	ErrOperandRequired   = errors.New("sub-filter required")
	ErrOperandRedundant  = errors.New("sub-filter redundant")
	ErrCircularReference = errors.New("circular reference")
)

// ValidationError reports the first malformed node, identified by its
// breadth-first position from the root.
type ValidationError struct {
	Index int
	Op    Op
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("filter node %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate walks the tree breadth first and returns the number of distinct
// nodes reachable from root. Nodes are tracked by pointer, so the same
// instance reached twice (a cycle or a shared subtree) fails with
// ErrCircularReference, while equal but distinct nodes are fine. A nil root
// is valid and counts zero nodes.
func Validate(root *Node) (int, error) {
	if root == nil {
		return 0, nil
	}

	visited := make(map[*Node]struct{})
	queue := []*Node{root}
	for i := 0; len(queue) > 0; i++ {
		n := queue[0]
		queue = queue[1:]

		if _, seen := visited[n]; seen {
			return 0, &ValidationError{Index: i, Op: n.Op, Err: ErrCircularReference}
		}
		visited[n] = struct{}{}

		if n.Left != nil {
			queue = append(queue, n.Left)
		}
		if n.Right != nil {
			queue = append(queue, n.Right)
		}

		if err := checkShape(n); err != nil {
			return 0, &ValidationError{Index: i, Op: n.Op, Err: err}
		}
	}
	return len(visited), nil
}

func checkShape(n *Node) error {
	switch n.Op {
	case OpEQ, OpGE, OpLE:
		if n.Side != SideSrc && n.Side != SideDst {
			return ErrSideRequired
		}
	case OpAnd, OpOr:
		if n.Left == nil || n.Right == nil {
			return ErrOperandRequired
		}
	case OpNot:
		if n.Left == nil {
			return ErrOperandRequired
		}
		if n.Right != nil {
			return ErrOperandRedundant
		}
	default:
		return ErrOpRequired
	}
	return nil
}
