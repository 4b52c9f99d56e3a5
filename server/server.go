package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ChatPlugin/ChatPlugin-sub007/catalog"
	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/ChatPlugin/ChatPlugin-sub007/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	ctx              context.Context
	config           *Config
	node             *Node
	workers          *WorkerPool
	store            storage.PunishmentStore
	catalogLoader    *catalog.Loader
	linkListener     *LinkListener
	statusListener   *StatusListener
	apiServer        *ApiServer
	reloadConfigChan chan struct{}
}

func NewServer(ctx context.Context, config *Config) (*Server, error) {
	role, err := ParseRole(config.Role)
	if err != nil {
		return nil, err
	}
	if role == RoleServer && config.ServerID == "" {
		return nil, fmt.Errorf("a server ID is required when running as a server")
	}

	metricsBuilder := NewMetricsBuilder(config.MetricsBackend, &config.MetricsBackendConfig)
	metrics := metricsBuilder.BuildSyncMetrics()

	var store storage.PunishmentStore = storage.NopStore{}
	if config.Storage.SQLite != "" {
		store, err = storage.OpenSQLite(config.Storage.SQLite)
		if err != nil {
			return nil, fmt.Errorf("could not open punishment storage: %w", err)
		}
	}

	messages := catalog.New(config.Catalog.DefaultLocale)
	var loader *catalog.Loader
	if config.Catalog.File != "" {
		loader = catalog.NewLoader(messages, config.Catalog.File)
		if err := loader.Load(); err != nil {
			return nil, fmt.Errorf("could not load message catalog: %w", err)
		}
		if config.Catalog.Watch {
			if err := loader.WatchForChanges(ctx); err != nil {
				return nil, fmt.Errorf("could not watch for changes to message catalog: %w", err)
			}
		}
	}

	fallback, err := buildFallbackMotd(&config.Motd)
	if err != nil {
		return nil, err
	}

	deps := Collaborators{
		Catalog: messages,
		Store:   store,
	}
	if config.Relay.DiscordWebhook != "" {
		deps.Discord = NewDiscordWebhookRelay(config.Relay.DiscordWebhook)
	}
	if config.Relay.TelegramToken != "" {
		deps.Telegram = NewTelegramBotRelay(config.Relay.TelegramApi, config.Relay.TelegramToken)
	}

	workers := NewWorkerPool(ctx, config.Workers, config.WorkerQueueSize)
	nodeConfig := NodeConfig{
		ServerID:              config.ServerID,
		MotdProvider:          config.Motd.Provider,
		MotdTimeout:           config.Motd.Timeout,
		MotdStaleAfter:        config.Motd.StaleAfter,
		FallbackMotd:          fallback,
		ViolationsExpireAfter: config.ViolationsExpireAfter,
		Conn: ConnOptions{
			WriteQueueSize: config.Link.WriteQueueSize,
			WriteTimeout:   config.Link.WriteTimeout,
		},
	}

	s := &Server{
		ctx:              ctx,
		config:           config,
		workers:          workers,
		store:            store,
		catalogLoader:    loader,
		reloadConfigChan: make(chan struct{}),
	}

	switch role {
	case RoleProxy:
		s.node = NewProxyNode(nodeConfig, deps, workers, metrics)

		clientFilter, err := NewClientFilter(config.Link.ClientsToAllow, config.Link.ClientsToDeny)
		if err != nil {
			return nil, fmt.Errorf("could not create client filter: %w", err)
		}
		s.linkListener, err = NewLinkListener(s.node, LinkListenerOptions{
			HandshakeTimeout:     config.Link.HandshakeTimeout,
			RateLimit:            config.Link.RateLimit,
			Filter:               clientFilter,
			ReceiveProxyProtocol: config.Link.ReceiveProxyProtocol,
			TrustedProxies:       config.Link.TrustedProxies,
		}, metrics)
		if err != nil {
			return nil, fmt.Errorf("could not create link listener: %w", err)
		}
		if config.Motd.StatusPort > 0 {
			s.statusListener = NewStatusListener(s.node, config.Link.RateLimit, metrics)
		}

	case RoleServer:
		s.node = NewServerNode(nodeConfig, deps, LinkOptions{
			Address:          net.JoinHostPort(config.Link.Host, strconv.Itoa(config.Link.Port)),
			HandshakeTimeout: config.Link.HandshakeTimeout,
			ReconnectMin:     config.Link.ReconnectMin,
			ReconnectMax:     config.Link.ReconnectMax,
		}, workers, metrics)
	}

	if err := s.node.Load(ctx); err != nil {
		logrus.WithError(err).Warn("Could not load stored punishments")
	}

	if config.Webhook.Url != "" {
		logrus.WithField("url", config.Webhook.Url).
			Info("Using webhook for link notifications")
		s.node.AddListener(NewWebhookNotifier(config.Webhook.Url, s.node.ID()))
	}

	hub := NewEventHub()
	s.node.AddListener(hub)
	if config.ApiBinding != "" {
		s.apiServer = NewApiServer(s.node, hub, config.MetricsBackend)
	}

	err = metricsBuilder.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not start metrics reporter: %w", err)
	}

	return s, nil
}

func (s *Server) Node() *Node {
	return s.node
}

// ReloadConfig indicates that an external request, such as a SIGHUP,
// is requesting the message catalog to be reloaded, if enabled
func (s *Server) ReloadConfig() {
	select {
	case s.reloadConfigChan <- struct{}{}:
	case <-s.ctx.Done():
	}
}

// Run will run the server until the context is done or a fatal error occurs
func (s *Server) Run() error {
	g, ctx := errgroup.WithContext(s.ctx)

	if s.linkListener != nil {
		err := s.linkListener.Listen(ctx, net.JoinHostPort("", strconv.Itoa(s.config.Link.Port)))
		if err != nil {
			// players keep playing, only synchronization is lost
			logrus.WithError(err).Error("Could not accept server links, synchronization is disabled")
		}
	}
	if s.statusListener != nil {
		err := s.statusListener.Listen(ctx, net.JoinHostPort("", strconv.Itoa(s.config.Motd.StatusPort)))
		if err != nil {
			logrus.WithError(err).Error("Could not answer server list pings")
		}
	}
	if s.apiServer != nil {
		s.apiServer.Start(ctx, s.config.ApiBinding)
	}

	g.Go(func() error {
		return s.node.Run(ctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-s.reloadConfigChan:
				if s.catalogLoader == nil {
					continue
				}
				if err := s.catalogLoader.Load(); err != nil {
					logrus.WithError(err).
						Error("Could not re-read the message catalog")
				}

			case <-ctx.Done():
				return nil
			}
		}
	})

	err := g.Wait()
	logrus.Info("Stopping. Waiting for background work to complete...")
	s.workers.Stop()
	if closeErr := s.store.Close(); closeErr != nil {
		logrus.WithError(closeErr).Warn("Could not close punishment storage")
	}
	logrus.Info("Stopped")
	return err
}

func buildFallbackMotd(config *MotdConfig) (protocol.Motd, error) {
	motd := protocol.Motd{
		Description: config.FallbackDescription,
		VersionName: config.VersionName,
		Max:         config.MaxPlayers,
	}
	if config.FallbackIcon != "" {
		icon, err := os.ReadFile(config.FallbackIcon)
		if err != nil {
			return motd, fmt.Errorf("could not read fallback icon: %w", err)
		}
		motd.Favicon = "data:image/png;base64," + base64.StdEncoding.EncodeToString(icon)
	}
	return motd, nil
}
