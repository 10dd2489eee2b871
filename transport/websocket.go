// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/dawsync/messaging"
)

// Websocket connection timing shared by the client and the relay.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 8 << 20
	sendQueueSize  = 256
)

// Compile-time interface check.
var _ Transport = (*WebSocket)(nil)

// WebSocketConfig configures a client connection to a Relay.
type WebSocketConfig struct {
	// URL is the relay endpoint, e.g. "ws://relay:7700/ws".
	URL       string
	ProjectID string
	UserID    string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// WebSocket is a client connection to a Relay. It does not reconnect:
// once the connection drops every Send fails, and the owner decides
// whether to dial again.
type WebSocket struct {
	conn      *websocket.Conn
	projectID string
	userID    string
	logger    *slog.Logger
	subs      subscribers

	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
	readDone  chan struct{}
	writeDone chan struct{}

	errMu sync.Mutex
	err   error
}

// DialWebSocket connects to a relay and joins the project's room.
func DialWebSocket(ctx context.Context, config WebSocketConfig) (*WebSocket, error) {
	if config.ProjectID == "" || config.UserID == "" {
		return nil, errors.New("websocket transport: project and user ids are required")
	}
	endpoint, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("websocket transport: parsing relay URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("project", config.ProjectID)
	query.Set("user", config.UserID)
	endpoint.RawQuery = query.Encode()

	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, response, err := dialer.DialContext(ctx, endpoint.String(), nil)
	if response != nil && response.Body != nil {
		response.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket transport: dialing %s: %w", config.URL, err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &WebSocket{
		conn:      conn,
		projectID: config.ProjectID,
		userID:    config.UserID,
		logger:    logger.With("transport", "websocket", "project", config.ProjectID),
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	go w.readPump()
	go w.writePump()
	return w, nil
}

func (w *WebSocket) Send(ctx context.Context, msg messaging.Message) error {
	raw, err := messaging.Encode(msg)
	if err != nil {
		return sendError("websocket", msg, err)
	}
	if err := w.failure(); err != nil {
		return sendError("websocket", msg, err)
	}
	select {
	case w.send <- raw:
		return nil
	case <-w.done:
		err := w.failure()
		if err == nil {
			err = ErrClosed
		}
		return sendError("websocket", msg, err)
	case <-ctx.Done():
		return sendError("websocket", msg, ctx.Err())
	}
}

func (w *WebSocket) Subscribe(handler func(messaging.Message)) func() {
	return w.subs.add(handler)
}

// Close sends a close frame and waits for both pumps to exit.
func (w *WebSocket) Close() error {
	w.shutdown(ErrClosed)
	<-w.writeDone
	w.conn.Close()
	<-w.readDone
	return nil
}

// Done is closed when the connection has failed or been closed.
func (w *WebSocket) Done() <-chan struct{} { return w.done }

// Err returns why the connection ended, or nil while it is up.
func (w *WebSocket) Err() error { return w.failure() }

func (w *WebSocket) failure() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *WebSocket) shutdown(cause error) {
	w.closeOnce.Do(func() {
		w.errMu.Lock()
		w.err = cause
		w.errMu.Unlock()
		close(w.done)
	})
}

func (w *WebSocket) readPump() {
	defer close(w.readDone)
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
				w.shutdown(ErrClosed)
			} else {
				w.logger.Warn("relay connection lost", "error", err)
				w.shutdown(fmt.Errorf("relay connection lost: %w", err))
			}
			return
		}
		msg, err := messaging.Decode(raw)
		if err != nil {
			w.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		if msg.UserID == w.userID || msg.ProjectID != w.projectID || !msg.For(w.userID) {
			continue
		}
		w.subs.deliver(msg)
	}
}

func (w *WebSocket) writePump() {
	defer close(w.writeDone)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case raw := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				w.logger.Warn("writing to relay failed", "error", err)
				w.shutdown(fmt.Errorf("writing to relay: %w", err))
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.shutdown(fmt.Errorf("pinging relay: %w", err))
				return
			}
		case <-w.done:
			w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
