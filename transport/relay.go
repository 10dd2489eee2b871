// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/dawsync/messaging"
)

// RelayMetrics are the relay's prometheus collectors.
type RelayMetrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Forwarded   *prometheus.CounterVec // by message type
	Rejected    prometheus.Counter
	Dropped     prometheus.Counter
}

// NewRelayMetrics creates the relay collectors and registers them with
// registerer when it is non-nil.
func NewRelayMetrics(registerer prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dawsync",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open peer connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dawsync",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Projects with at least one connected peer.",
		}),
		Forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "relay",
			Name:      "messages_forwarded_total",
			Help:      "Messages accepted for forwarding, by type.",
		}, []string{"type"}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "relay",
			Name:      "messages_rejected_total",
			Help:      "Frames that did not decode or named another project or user.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dawsync",
			Subsystem: "relay",
			Name:      "slow_peers_dropped_total",
			Help:      "Connections closed because their send queue was full.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.Connections, m.Rooms, m.Forwarded, m.Rejected, m.Dropped)
	}
	return m
}

// Relay is a websocket fan-out server. Peers connect with
// ?project=<id>&user=<id>; each accepted frame is forwarded verbatim to
// every other connection in the same project.
type Relay struct {
	logger   *slog.Logger
	metrics  *RelayMetrics
	upgrader websocket.Upgrader

	mu     sync.Mutex
	rooms  map[string]map[*relayPeer]struct{}
	closed bool
}

type relayPeer struct {
	relay     *Relay
	conn      *websocket.Conn
	projectID string
	userID    string
	send      chan []byte
	closeOnce sync.Once
}

// NewRelay creates a relay. metrics may be nil.
func NewRelay(logger *slog.Logger, metrics *RelayMetrics) *Relay {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if metrics == nil {
		metrics = NewRelayMetrics(nil)
	}
	return &Relay{
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[*relayPeer]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the connection until it
// closes.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	projectID := req.URL.Query().Get("project")
	userID := req.URL.Query().Get("user")
	if projectID == "" || userID == "" {
		http.Error(w, "project and user query parameters are required", http.StatusBadRequest)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err, "remote", req.RemoteAddr)
		return
	}

	peer := &relayPeer{
		relay:     r,
		conn:      conn,
		projectID: projectID,
		userID:    userID,
		send:      make(chan []byte, sendQueueSize),
	}
	if !r.join(peer) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	r.logger.Info("peer connected", "project", projectID, "user", userID, "remote", req.RemoteAddr)

	go peer.writePump()
	peer.readPump()

	r.leave(peer)
	peer.close()
	r.logger.Info("peer disconnected", "project", projectID, "user", userID)
}

// Peers returns the number of connections in a project's room.
func (r *Relay) Peers(projectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[projectID])
}

// Close disconnects every peer and refuses new connections. It does
// not stop the HTTP server the relay is mounted on.
func (r *Relay) Close() error {
	r.mu.Lock()
	r.closed = true
	var peers []*relayPeer
	for projectID, room := range r.rooms {
		for peer := range room {
			peers = append(peers, peer)
			r.metrics.Connections.Dec()
		}
		delete(r.rooms, projectID)
		r.metrics.Rooms.Dec()
	}
	r.mu.Unlock()

	for _, peer := range peers {
		peer.close()
	}
	return nil
}

func (r *Relay) join(peer *relayPeer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	room := r.rooms[peer.projectID]
	if room == nil {
		room = make(map[*relayPeer]struct{})
		r.rooms[peer.projectID] = room
		r.metrics.Rooms.Inc()
	}
	room[peer] = struct{}{}
	r.metrics.Connections.Inc()
	return true
}

func (r *Relay) leave(peer *relayPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[peer.projectID]
	if _, ok := room[peer]; !ok {
		return
	}
	delete(room, peer)
	r.metrics.Connections.Dec()
	if len(room) == 0 {
		delete(r.rooms, peer.projectID)
		r.metrics.Rooms.Dec()
	}
}

// forward queues raw for every other peer of the sender's project, or
// only for the connections of user to when it is set. A peer whose
// queue is full is disconnected; it will catch up through sync after
// reconnecting.
func (r *Relay) forward(sender *relayPeer, to string, raw []byte) {
	var slow []*relayPeer

	r.mu.Lock()
	for peer := range r.rooms[sender.projectID] {
		if peer == sender || (to != "" && peer.userID != to) {
			continue
		}
		select {
		case peer.send <- raw:
		default:
			slow = append(slow, peer)
		}
	}
	r.mu.Unlock()

	for _, peer := range slow {
		r.metrics.Dropped.Inc()
		r.logger.Warn("dropping slow peer", "project", peer.projectID, "user", peer.userID)
		r.leave(peer)
		peer.close()
	}
}

func (p *relayPeer) close() {
	p.closeOnce.Do(func() {
		close(p.send)
	})
}

func (p *relayPeer) readPump() {
	r := p.relay
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, raw, err := p.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug("peer read ended", "user", p.userID, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			r.metrics.Rejected.Inc()
			continue
		}
		msg, err := messaging.Decode(raw)
		if err != nil || msg.ProjectID != p.projectID || msg.UserID != p.userID {
			r.metrics.Rejected.Inc()
			r.logger.Debug("rejecting frame", "user", p.userID, "error", err)
			continue
		}
		r.metrics.Forwarded.WithLabelValues(string(msg.Payload.Type())).Inc()
		r.forward(p, msg.To, raw)
	}
}

// writePump owns all writes to the connection. It exits and closes the
// connection when the send channel is closed.
func (p *relayPeer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
