package server

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/ChatPlugin/ChatPlugin-sub007/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ProxyID is the server ID a backend uses for its link to the proxy
const ProxyID = "proxy"

const janitorInterval = 30 * time.Second

var (
	ErrWrongRole = errors.New("operation not available in this role")
	ErrReplaced  = errors.New("replaced by a newer link")
)

type Role string

const (
	RoleProxy  Role = "proxy"
	RoleServer Role = "server"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleProxy:
		return RoleProxy, nil
	case RoleServer:
		return RoleServer, nil
	}
	return "", errors.Errorf("unknown role %q, expected proxy or server", s)
}

type NodeConfig struct {
	// ServerID identifies a backend server. The proxy always uses ProxyID.
	ServerID string
	// MotdProvider is the ID of the server answering MoTD requests, proxy only
	MotdProvider          string
	MotdTimeout           time.Duration
	MotdStaleAfter        time.Duration
	FallbackMotd          protocol.Motd
	ViolationsExpireAfter time.Duration
	Conn                  ConnOptions
}

// Collaborators are the platform services a node drives. Nil fields get logging or no-op
// implementations.
type Collaborators struct {
	Game     GameAPI
	Motd     MotdProvider
	Catalog  MessageCatalog
	Store    storage.PunishmentStore
	Discord  DiscordRelay
	Telegram TelegramRelay
}

func (c *Collaborators) withDefaults(fallback protocol.Motd) {
	if c.Game == nil {
		c.Game = LoggingGameAPI{}
	}
	if c.Motd == nil {
		c.Motd = StaticMotdProvider(fallback)
	}
	if c.Store == nil {
		c.Store = storage.NopStore{}
	}
	if c.Discord == nil {
		c.Discord = LoggingRelay{}
	}
	if c.Telegram == nil {
		c.Telegram = LoggingRelay{}
	}
}

// Node is one end of the synchronization network: the proxy with a link per backend
// server, or a backend server with its single link to the proxy.
type Node struct {
	role     Role
	cfg      NodeConfig
	deps     Collaborators
	metrics  *SyncMetrics
	topology Topology
	registry *Registry
	link     *ProxyLink

	dispatcher  *Dispatcher
	workers     *WorkerPool
	listeners   *Listeners
	punishments *PunishmentTable
	violations  *ViolationTable
	presence    *Presence
	motd        *MotdStore

	// punishmentSync orders punishment changes and what is sent about them with the
	// catch-up of newly linked servers
	punishmentSync sync.Mutex
	// motdSync keeps MoTD requests on the wire in the order they were enqueued
	motdSync sync.Mutex
}

func newNode(role Role, cfg NodeConfig, deps Collaborators, workers *WorkerPool, metrics *SyncMetrics) *Node {
	if metrics == nil {
		metrics = NewDiscardMetrics()
	}
	deps.withDefaults(cfg.FallbackMotd)
	cfg.Conn.Metrics = metrics
	n := &Node{
		role:        role,
		cfg:         cfg,
		deps:        deps,
		metrics:     metrics,
		dispatcher:  NewDispatcher(metrics),
		workers:     workers,
		listeners:   &Listeners{},
		punishments: NewPunishmentTable(),
		violations:  NewViolationTable(),
		presence:    NewPresence(),
	}
	n.motd = NewMotdStore(cfg.MotdTimeout, cfg.MotdStaleAfter, n.fallbackMotd, metrics)
	return n
}

// NewProxyNode creates the proxy side. Backend links are added with Attach.
func NewProxyNode(cfg NodeConfig, deps Collaborators, workers *WorkerPool, metrics *SyncMetrics) *Node {
	cfg.ServerID = ProxyID
	n := newNode(RoleProxy, cfg, deps, workers, metrics)
	n.registry = NewRegistry()
	n.topology = n.registry
	n.listeners.Add(n.presence)
	n.listeners.Add(&motdProviderWatch{node: n})
	n.registerProxyHandlers()
	return n
}

// NewServerNode creates a backend server that links to the proxy described by link
func NewServerNode(cfg NodeConfig, deps Collaborators, link LinkOptions, workers *WorkerPool, metrics *SyncMetrics) *Node {
	n := newNode(RoleServer, cfg, deps, workers, metrics)
	link.ServerID = cfg.ServerID
	link.Conn = n.cfg.Conn
	n.link = NewProxyLink(link, n.dispatcher, n.listeners, n.metrics)
	n.topology = n.link
	n.registerServerHandlers()
	return n
}

func (n *Node) Role() Role {
	return n.role
}

// ID is the server ID of this node, ProxyID on the proxy
func (n *Node) ID() string {
	return n.cfg.ServerID
}

func (n *Node) AddListener(listener ConnectionListener) {
	n.listeners.Add(listener)
}

// Registry is nil on backend servers
func (n *Node) Registry() *Registry {
	return n.registry
}

// Link is nil on the proxy
func (n *Node) Link() *ProxyLink {
	return n.link
}

func (n *Node) Punishments() *PunishmentTable {
	return n.punishments
}

func (n *Node) Violations() *ViolationTable {
	return n.violations
}

func (n *Node) Presence() *Presence {
	return n.presence
}

// Load fills the punishment table from the store
func (n *Node) Load(ctx context.Context) error {
	punishments, err := n.deps.Store.LoadPunishments(ctx)
	if err != nil {
		return err
	}
	for i := range punishments {
		n.punishments.Apply(&punishments[i])
	}
	logrus.WithField("count", n.punishments.Len()).Debug("Loaded punishments")
	return nil
}

// Run performs periodic cleanup and, on backend servers, keeps the proxy link up until
// ctx is done
func (n *Node) Run(ctx context.Context) error {
	if n.link != nil {
		go n.link.Run(ctx)
	}

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.cleanup()
		case <-ctx.Done():
			if n.registry != nil {
				n.registry.CloseAll()
			}
			return nil
		}
	}
}

func (n *Node) cleanup() {
	if n.cfg.ViolationsExpireAfter > 0 {
		if pruned := n.violations.Prune(n.cfg.ViolationsExpireAfter); pruned > 0 {
			logrus.WithField("count", pruned).Debug("Pruned stale violations")
		}
	}
	if expired := n.punishments.PruneExpired(time.Now().UnixMilli()); len(expired) > 0 {
		logrus.WithField("count", len(expired)).Debug("Dropped expired punishments")
	}
	n.motd.PruneStale()
}

// Attach takes over an accepted and identified backend link
func (n *Node) Attach(serverID string, netConn net.Conn) (*Conn, error) {
	if n.registry == nil {
		return nil, ErrWrongRole
	}

	c := NewConn(serverID, netConn, n.cfg.Conn)
	c.OnClose(func(c *Conn, err error) {
		if n.registry.Unregister(c) {
			n.metrics.ActiveLinks.Set(float64(n.registry.Len()))
			logrus.
				WithError(err).
				WithField("server", c.ID()).
				Info("Server unlinked")
			n.listeners.OnDisconnect(c.ID(), err)
		}
	})

	n.punishmentSync.Lock()
	err := n.queueCatchUp(c)
	var replaced *Conn
	if err == nil {
		replaced = n.registry.Register(c)
	}
	n.punishmentSync.Unlock()
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "could not catch up %s", serverID)
	}

	if replaced != nil {
		n.listeners.OnDisconnect(serverID, ErrReplaced)
	}
	n.metrics.ActiveLinks.Set(float64(n.registry.Len()))
	logrus.
		WithField("server", serverID).
		WithField("client", netConn.RemoteAddr()).
		Info("Server linked")
	n.listeners.OnConnect(serverID)
	c.Start(n.dispatcher)
	return c, nil
}

// queueCatchUp queues every stored punishment on a link that is not registered yet, so
// nothing relayed afterwards can reach the server ahead of it
func (n *Node) queueCatchUp(c *Conn) error {
	snapshot := n.punishments.Snapshot()
	packets := make([]*protocol.Packet, 0, len(snapshot))
	for i := range snapshot {
		packet, err := protocol.NewPacket(&snapshot[i])
		if err != nil {
			return errors.Wrapf(err, "could not encode punishment #%d", snapshot[i].ID)
		}
		packets = append(packets, packet)
	}
	return c.SendBatch(packets)
}

// submit runs job on the worker pool, keyed so work from one origin stays ordered
func (n *Node) submit(key string, task string, job func(ctx context.Context) error) {
	err := n.workers.Submit(key, func(ctx context.Context) {
		if err := job(ctx); err != nil {
			logrus.
				WithError(err).
				WithField("task", task).
				WithField("origin", key).
				Warn("Background task failed")
			n.metrics.Errors.With("type", "task").Add(1)
		}
	})
	if err != nil {
		logrus.
			WithError(err).
			WithField("task", task).
			Warn("Dropping background task")
	}
}

func (n *Node) fallbackMotd() protocol.Motd {
	motd := n.cfg.FallbackMotd
	if n.role == RoleProxy {
		motd.Online = n.presence.Len()
	}
	return motd
}

// motdProviderWatch fails every pending MoTD request when the provider unlinks
type motdProviderWatch struct {
	node *Node
}

func (w *motdProviderWatch) OnConnect(string) {
}

func (w *motdProviderWatch) OnDisconnect(serverID string, _ error) {
	if serverID != w.node.cfg.MotdProvider {
		return
	}
	if drained := w.node.motd.Drain(); drained > 0 {
		logrus.
			WithField("provider", serverID).
			WithField("count", drained).
			Info("MoTD provider unlinked, served fallback to pending requests")
	}
}
