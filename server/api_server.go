package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ChatPlugin/ChatPlugin-sub007/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ApiServer exposes the synchronized state of a node over HTTP
type ApiServer struct {
	node   *Node
	router *mux.Router
}

type PunishmentJSON struct {
	ID         int64                   `json:"id"`
	Type       protocol.PunishmentType `json:"type"`
	Player     uuid.UUID               `json:"player"`
	PlayerName string                  `json:"playerName"`
	PlayerIP   string                  `json:"playerIp,omitempty"`
	Staff      string                  `json:"staff"`
	Reason     string                  `json:"reason"`
	Server     string                  `json:"server"`
	Date       int64                   `json:"date"`
	Duration   int64                   `json:"duration"`
	Global     bool                    `json:"global"`
	Silent     bool                    `json:"silent"`
}

func punishmentToJSON(p protocol.Punishment) PunishmentJSON {
	return PunishmentJSON(p)
}

type LinksJSON struct {
	Node    string   `json:"node"`
	Role    Role     `json:"role"`
	Servers []string `json:"servers,omitempty"`
	// Connected is set on backend servers
	Connected *bool `json:"connected,omitempty"`
}

func NewApiServer(node *Node, hub *EventHub, metricsBackend string) *ApiServer {
	a := &ApiServer{
		node:   node,
		router: mux.NewRouter(),
	}
	a.router.Path("/links").Methods(http.MethodGet).HandlerFunc(a.linksHandler)
	a.router.Path("/presence").Methods(http.MethodGet).HandlerFunc(a.presenceHandler)
	a.router.Path("/violations").Methods(http.MethodGet).HandlerFunc(a.violationsHandler)
	a.router.Path("/violations/{player}").Methods(http.MethodGet).HandlerFunc(a.playerViolationsHandler)
	a.router.Path("/punishments").Methods(http.MethodGet).HandlerFunc(a.punishmentsHandler)
	a.router.Path("/punishments").Methods(http.MethodPost).HandlerFunc(a.publishPunishmentHandler)
	a.router.Path("/punishments/{id:[0-9]+}").Methods(http.MethodDelete).HandlerFunc(a.removePunishmentHandler)
	if hub != nil {
		a.router.Path("/events").Handler(hub)
	}
	if metricsBackend == MetricsBackendPrometheus {
		a.router.Path("/metrics").Handler(promhttp.Handler())
	}
	return a
}

func (a *ApiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Start serves on apiBinding until ctx is done
func (a *ApiServer) Start(ctx context.Context, apiBinding string) {
	srv := &http.Server{
		Addr:              apiBinding,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logrus.WithField("binding", apiBinding).Info("Serving API requests")
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("API server failed")
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to write API response")
	}
}

func (a *ApiServer) linksHandler(w http.ResponseWriter, _ *http.Request) {
	links := LinksJSON{
		Node: a.node.ID(),
		Role: a.node.Role(),
	}
	if registry := a.node.Registry(); registry != nil {
		links.Servers = registry.IDs()
	}
	if link := a.node.Link(); link != nil {
		connected := link.Connected()
		links.Connected = &connected
	}
	writeJSON(w, http.StatusOK, links)
}

func (a *ApiServer) presenceHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.node.Presence().Snapshot())
}

func (a *ApiServer) violationsHandler(w http.ResponseWriter, _ *http.Request) {
	violations := a.node.Violations().Snapshot()
	if violations == nil {
		violations = []Violation{}
	}
	writeJSON(w, http.StatusOK, violations)
}

func (a *ApiServer) playerViolationsHandler(w http.ResponseWriter, r *http.Request) {
	player, err := uuid.Parse(mux.Vars(r)["player"])
	if err != nil {
		http.Error(w, "invalid player UUID", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, a.node.Violations().ForPlayer(player))
}

func (a *ApiServer) punishmentsHandler(w http.ResponseWriter, _ *http.Request) {
	snapshot := a.node.Punishments().Snapshot()
	punishments := make([]PunishmentJSON, 0, len(snapshot))
	for _, p := range snapshot {
		punishments = append(punishments, punishmentToJSON(p))
	}
	writeJSON(w, http.StatusOK, punishments)
}

func (a *ApiServer) publishPunishmentHandler(w http.ResponseWriter, r *http.Request) {
	var body PunishmentJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid punishment: "+err.Error(), http.StatusBadRequest)
		return
	}
	p := protocol.Punishment(body)
	switch p.Type {
	case protocol.PunishmentBan, protocol.PunishmentMute, protocol.PunishmentWarning, protocol.PunishmentKick:
	default:
		http.Error(w, "unknown punishment type", http.StatusBadRequest)
		return
	}
	if err := a.node.PublishPunishment(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, body)
}

func (a *ApiServer) removePunishmentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid punishment ID", http.StatusBadRequest)
		return
	}
	existing, ok := a.node.Punishments().Get(id)
	if !ok {
		http.Error(w, "punishment not found", http.StatusNotFound)
		return
	}

	err = a.node.RemovePunishment(&protocol.PunishmentRemoval{
		Type:  existing.Type,
		Mode:  protocol.PunishmentIDBased,
		ID:    id,
		Staff: r.URL.Query().Get("staff"),
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
