// Package filter implements port filter expressions used to narrow the
// sockets a probe fetches.
//
// An expression is a binary tree. Leaves compare the source (local) or
// destination (remote) port against a value, interior nodes combine their
// operands with AND, OR or NOT. The caller owns the tree; Validate must pass
// before it is handed to a probe.
package filter

import (
	"strconv"
)

type Op uint8

const (
	OpInvalid Op = iota
	OpEQ
	OpGE
	OpLE
	OpAnd
	OpOr
	OpNot
)

func (o Op) String() string {
	switch o {
	case OpEQ:
		return "=="
	case OpGE:
		return ">="
	case OpLE:
		return "<="
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	default:
		return "invalid"
	}
}

func (o Op) isComparison() bool { return o == OpEQ || o == OpGE || o == OpLE }

type Side uint8

const (
	SideNone Side = iota
	// SideSrc is the local end of the socket.
	SideSrc
	// SideDst is the remote end of the socket.
	SideDst
)

func (s Side) String() string {
	switch s {
	case SideSrc:
		return "sport"
	case SideDst:
		return "dport"
	default:
		return "none"
	}
}

// Node is one element of a filter expression. Comparison nodes use Side and
// Port, AND/OR use Left and Right, NOT uses Left only.
type Node struct {
	Op    Op
	Side  Side
	Port  uint16
	Left  *Node
	Right *Node
}

func Eq(side Side, port uint16) *Node { return &Node{Op: OpEQ, Side: side, Port: port} }
func Ge(side Side, port uint16) *Node { return &Node{Op: OpGE, Side: side, Port: port} }
func Le(side Side, port uint16) *Node { return &Node{Op: OpLE, Side: side, Port: port} }

func (n *Node) Not() *Node            { return &Node{Op: OpNot, Left: n} }
func (n *Node) And(other *Node) *Node { return &Node{Op: OpAnd, Left: n, Right: other} }
func (n *Node) Or(other *Node) *Node  { return &Node{Op: OpOr, Left: n, Right: other} }

// Match evaluates the expression against a socket's ports. A nil expression
// matches everything. The tree must have passed Validate.
func (n *Node) Match(localPort, remotePort uint16) bool {
	if n == nil {
		return true
	}
	switch n.Op {
	case OpAnd:
		return n.Left.Match(localPort, remotePort) && n.Right.Match(localPort, remotePort)
	case OpOr:
		return n.Left.Match(localPort, remotePort) || n.Right.Match(localPort, remotePort)
	case OpNot:
		return !n.Left.Match(localPort, remotePort)
	}

	port := localPort
	if n.Side == SideDst {
		port = remotePort
	}
	switch n.Op {
	case OpEQ:
		return port == n.Port
	case OpGE:
		return port >= n.Port
	case OpLE:
		return port <= n.Port
	}
	return false
}

// Clone returns a deep copy. Callers should validate first: a cyclic tree
// never terminates.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Left = n.Left.Clone()
	c.Right = n.Right.Clone()
	return &c
}

func (n *Node) String() string {
	if n == nil {
		return "all"
	}
	switch n.Op {
	case OpAnd, OpOr:
		return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
	case OpNot:
		return "not " + n.Left.String()
	case OpEQ, OpGE, OpLE:
		return n.Side.String() + " " + n.Op.String() + " " + strconv.Itoa(int(n.Port))
	}
	return "invalid"
}
