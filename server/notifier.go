package server

import "sync"

// ConnectionListener is told when a link opens or closes. On backend servers the
// server ID is always ProxyID.
type ConnectionListener interface {
	OnConnect(serverID string)
	// OnDisconnect receives the error that closed the link, nil when closed on request
	OnDisconnect(serverID string, err error)
}

// Listeners fans connection events out to every added ConnectionListener
type Listeners struct {
	sync.RWMutex
	list []ConnectionListener
}

func (l *Listeners) Add(listener ConnectionListener) {
	l.Lock()
	defer l.Unlock()
	l.list = append(l.list, listener)
}

func (l *Listeners) snapshot() []ConnectionListener {
	l.RLock()
	defer l.RUnlock()
	return append([]ConnectionListener(nil), l.list...)
}

func (l *Listeners) OnConnect(serverID string) {
	for _, listener := range l.snapshot() {
		listener.OnConnect(serverID)
	}
}

func (l *Listeners) OnDisconnect(serverID string, err error) {
	for _, listener := range l.snapshot() {
		listener.OnDisconnect(serverID, err)
	}
}
