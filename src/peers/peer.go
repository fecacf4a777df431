package peers

import (
	"fmt"
	"net"
	"strconv"
)

// Peer is the network identity of a node.
type Peer struct {
	Name    string `json:"name" yaml:"name"`
	NetAddr string `json:"net_addr" yaml:"net_addr"`
}

// NewPeer ...
func NewPeer(name, netAddr string) Peer {
	return Peer{
		Name:    name,
		NetAddr: netAddr,
	}
}

// NewPeerFromHostPort builds a Peer from a separate address and port.
func NewPeerFromHostPort(name, address string, port uint16) Peer {
	return NewPeer(name, net.JoinHostPort(address, strconv.Itoa(int(port))))
}

// HostPort splits NetAddr.
func (p Peer) HostPort() (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(p.NetAddr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %v", p.NetAddr, err)
	}
	return host, uint16(port), nil
}

// String ...
func (p Peer) String() string {
	return fmt.Sprintf("%s@%s", p.Name, p.NetAddr)
}

// ExcludePeer is used to exclude a single peer, by name, from a list of peers.
func ExcludePeer(peers []Peer, name string) (int, []Peer) {
	index := -1
	otherPeers := make([]Peer, 0, len(peers))
	for i, p := range peers {
		if p.Name != name {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
