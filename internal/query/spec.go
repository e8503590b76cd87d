package query

import (
	"fmt"

	"github.com/pranshuparmar/sockwatch/internal/filter"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

// Spec describes which sockets a probe should fetch. The zero value asks
// for every socket of both families and both protocols.
type Spec struct {
	Family         model.Family
	Protocol       model.Protocol
	CurrentUser    bool
	CurrentProcess bool
	Filter         *filter.Node

	nodeCount int
}

// NodeCount is the number of filter nodes, set by Assemble.
func (s Spec) NodeCount() int { return s.nodeCount }

// WantsFamily reports whether sockets of family f were requested.
func (s Spec) WantsFamily(f model.Family) bool {
	return s.Family == model.FamilyAny || s.Family == f
}

// WantsProtocol reports whether sockets of protocol p were requested.
func (s Spec) WantsProtocol(p model.Protocol) bool {
	return s.Protocol == model.ProtocolAny || s.Protocol == p
}

// MatchPorts applies the filter expression. Source is the local side.
func (s Spec) MatchPorts(localPort, remotePort uint16) bool {
	return s.Filter.Match(localPort, remotePort)
}

func (s Spec) String() string {
	return fmt.Sprintf("family=%s protocol=%s user=%t proc=%t filter=%s",
		s.Family, s.Protocol, s.CurrentUser, s.CurrentProcess, s.Filter)
}

type InvalidSpecError struct {
	Err error
}

func (e *InvalidSpecError) Error() string {
	return "invalid socket query: " + e.Err.Error()
}

func (e *InvalidSpecError) Unwrap() error {
	return e.Err
}

// Assemble returns a validated copy of in with defaults applied. A nil spec
// yields the defaults. The filter tree is deep copied, so later changes to
// the caller's tree do not reach a spec that was already handed out.
func Assemble(in *Spec) (Spec, error) {
	if in == nil {
		return Spec{}, nil
	}

	if in.Family > model.FamilyIPv6 {
		return Spec{}, &InvalidSpecError{Err: fmt.Errorf("unknown address family %d", in.Family)}
	}
	if in.Protocol > model.ProtocolUDP {
		return Spec{}, &InvalidSpecError{Err: fmt.Errorf("unknown protocol %d", in.Protocol)}
	}

	count, err := filter.Validate(in.Filter)
	if err != nil {
		return Spec{}, &InvalidSpecError{Err: err}
	}

	return Spec{
		Family:         in.Family,
		Protocol:       in.Protocol,
		CurrentUser:    in.CurrentUser,
		CurrentProcess: in.CurrentProcess,
		Filter:         in.Filter.Clone(),
		nodeCount:      count,
	}, nil
}

// ParseFamily accepts "", "any", "ipv4"/"4" and "ipv6"/"6".
func ParseFamily(s string) (model.Family, error) {
	switch s {
	case "", "any":
		return model.FamilyAny, nil
	case "ipv4", "inet", "4":
		return model.FamilyIPv4, nil
	case "ipv6", "inet6", "6":
		return model.FamilyIPv6, nil
	}
	return model.FamilyAny, fmt.Errorf("unknown address family %q", s)
}

// ParseProtocol accepts "", "any", "tcp" and "udp".
func ParseProtocol(s string) (model.Protocol, error) {
	switch s {
	case "", "any":
		return model.ProtocolAny, nil
	case "tcp":
		return model.ProtocolTCP, nil
	case "udp":
		return model.ProtocolUDP, nil
	}
	return model.ProtocolAny, fmt.Errorf("unknown protocol %q", s)
}
