package peers

import (
	"fmt"
	"net"
	"strconv"
)

// Machine describes one node of a network and its place in the computation.
type Machine struct {
	Name       string   `json:"name" yaml:"name"`
	Address    string   `json:"address" yaml:"address"`
	Port       uint16   `json:"port" yaml:"port"`
	Produces   []string `json:"produces" yaml:"produces"`
	Subscribes []string `json:"subscribes" yaml:"subscribes"`
	Connect    []string `json:"connect" yaml:"connect"`
}

// Peer returns the identity of the machine.
func (m *Machine) Peer() Peer {
	return NewPeer(m.Name, net.JoinHostPort(m.Address, strconv.Itoa(int(m.Port))))
}

// OutputTag is the tag the machine publishes its outbound messages on.
func (m *Machine) OutputTag() string {
	if len(m.Produces) == 0 {
		return ""
	}
	return m.Produces[0]
}

// Network is an ordered set of machines.
type Network struct {
	Machines []*Machine `json:"machines" yaml:"machines"`

	byName map[string]*Machine
}

// NewNetwork creates a Network from a list of machines.
func NewNetwork(machines []*Machine) *Network {
	n := &Network{Machines: machines}
	n.index()
	return n
}

func (n *Network) index() {
	n.byName = make(map[string]*Machine, len(n.Machines))
	for _, m := range n.Machines {
		n.byName[m.Name] = m
	}
}

// Len returns the number of machines.
func (n *Network) Len() int {
	return len(n.Machines)
}

// ByName returns the machine called name.
func (n *Network) ByName(name string) (*Machine, bool) {
	if n.byName == nil {
		n.index()
	}
	m, ok := n.byName[name]
	return m, ok
}

// IndexOf returns the position of the machine called name, or -1.
func (n *Network) IndexOf(name string) int {
	for i, m := range n.Machines {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// ConnectPeers resolves the machines the named machine must dial.
func (n *Network) ConnectPeers(name string) ([]Peer, error) {
	m, ok := n.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown machine %q", name)
	}
	res := make([]Peer, 0, len(m.Connect))
	for _, target := range m.Connect {
		t, ok := n.ByName(target)
		if !ok {
			return nil, fmt.Errorf("could not find machine %q to connect to", target)
		}
		res = append(res, t.Peer())
	}
	return res, nil
}

// Peers returns the identities of all machines.
func (n *Network) Peers() []Peer {
	res := make([]Peer, 0, len(n.Machines))
	for _, m := range n.Machines {
		res = append(res, m.Peer())
	}
	return res
}

// Validate checks the network description for the mistakes that would make a
// handshake hang forever.
func (n *Network) Validate() error {
	if len(n.Machines) == 0 {
		return fmt.Errorf("network has no machines")
	}

	names := make(map[string]bool, len(n.Machines))
	producers := make(map[string]string)

	for _, m := range n.Machines {
		if m.Name == "" {
			return fmt.Errorf("machine without a name")
		}
		if names[m.Name] {
			return fmt.Errorf("duplicate machine name %q", m.Name)
		}
		names[m.Name] = true

		if len(m.Produces) == 0 {
			return fmt.Errorf("%s: must produce at least one tag", m.Name)
		}
		for _, tag := range m.Produces {
			if other, ok := producers[tag]; ok {
				return fmt.Errorf("tag %q produced by both %s and %s", tag, other, m.Name)
			}
			producers[tag] = m.Name
		}
	}

	for _, m := range n.Machines {
		own := make(map[string]bool, len(m.Produces))
		for _, tag := range m.Produces {
			own[tag] = true
		}
		for _, tag := range m.Subscribes {
			if own[tag] {
				return fmt.Errorf("%s: subscribes to its own tag %q", m.Name, tag)
			}
			if _, ok := producers[tag]; !ok {
				return fmt.Errorf("%s: nobody produces subscribed tag %q", m.Name, tag)
			}
		}
		for _, target := range m.Connect {
			if !names[target] {
				return fmt.Errorf("%s: could not find machine %q to connect to", m.Name, target)
			}
			if target == m.Name {
				return fmt.Errorf("%s: connects to itself", m.Name)
			}
		}
	}

	return nil
}
