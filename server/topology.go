package server

import "github.com/ChatPlugin/ChatPlugin-sub007/protocol"

// Topology is how a node reaches its peers. On the proxy it is the Registry of
// backend links, on a backend server it is the single ProxyLink.
type Topology interface {
	// Publish sends a packet originated by this node
	Publish(p *protocol.Packet) error
	// Relay forwards a packet received from origin to the peers that have not seen it
	Relay(origin string, p *protocol.Packet)
}
