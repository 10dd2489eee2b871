// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/dawsync/messaging"
)

// ErrOffline is returned by Send from a peer the hub has taken offline.
var ErrOffline = errors.New("peer offline")

// Compile-time interface check.
var _ Transport = (*MemoryTransport)(nil)

// MemoryHub connects in-process peers. Every message goes through the
// wire encoding so receivers never share memory with the sender.
type MemoryHub struct {
	mu      sync.Mutex
	peers   map[string]map[string]*MemoryTransport // project -> user
	offline map[string]bool

	// pending counts queued and in-flight deliveries across all peers.
	pendingMu sync.Mutex
	pending   int
	idle      *sync.Cond
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	h := &MemoryHub{
		peers:   make(map[string]map[string]*MemoryTransport),
		offline: make(map[string]bool),
	}
	h.idle = sync.NewCond(&h.pendingMu)
	return h
}

// Join attaches a peer to a project and returns its transport. Joining
// twice with the same ids replaces the earlier transport, which is
// closed.
func (h *MemoryHub) Join(projectID, userID string) *MemoryTransport {
	t := &MemoryTransport{
		hub:       h,
		projectID: projectID,
		userID:    userID,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	h.mu.Lock()
	room := h.peers[projectID]
	if room == nil {
		room = make(map[string]*MemoryTransport)
		h.peers[projectID] = room
	}
	previous := room[userID]
	room[userID] = t
	h.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	go t.run()
	return t
}

// SetOffline disconnects or reconnects a user in every project.
// Messages sent to an offline peer are lost, not queued.
func (h *MemoryHub) SetOffline(userID string, offline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if offline {
		h.offline[userID] = true
	} else {
		delete(h.offline, userID)
	}
}

// Settle blocks until every queued message has been handled, including
// messages sent by handlers while settling.
func (h *MemoryHub) Settle() {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	for h.pending > 0 {
		h.idle.Wait()
	}
}

func (h *MemoryHub) track(delta int) {
	h.pendingMu.Lock()
	h.pending += delta
	if h.pending == 0 {
		h.idle.Broadcast()
	}
	h.pendingMu.Unlock()
}

func (h *MemoryHub) broadcast(sender *MemoryTransport, msg messaging.Message) error {
	raw, err := messaging.Encode(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.offline[sender.userID] {
		return ErrOffline
	}
	for userID, peer := range h.peers[sender.projectID] {
		if userID == sender.userID || h.offline[userID] || !msg.For(userID) {
			continue
		}
		delivered, err := messaging.Decode(raw)
		if err != nil {
			return err
		}
		peer.enqueue(delivered)
	}
	return nil
}

func (h *MemoryHub) leave(t *MemoryTransport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room := h.peers[t.projectID]; room[t.userID] == t {
		delete(room, t.userID)
	}
}

// MemoryTransport is one peer's view of a MemoryHub.
type MemoryTransport struct {
	hub       *MemoryHub
	projectID string
	userID    string
	subs      subscribers

	mu     sync.Mutex
	queue  []messaging.Message
	closed bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func (t *MemoryTransport) Send(ctx context.Context, msg messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return sendError("memory", msg, err)
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return sendError("memory", msg, ErrClosed)
	}
	if err := t.hub.broadcast(t, msg); err != nil {
		return sendError("memory", msg, err)
	}
	return nil
}

func (t *MemoryTransport) Subscribe(handler func(messaging.Message)) func() {
	return t.subs.add(handler)
}

// Close detaches the peer. Messages still queued are discarded.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.hub.leave(t)
	close(t.done)
	<-t.stopped
	return nil
}

// enqueue is called with the hub lock held.
func (t *MemoryTransport) enqueue(msg messaging.Message) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.hub.track(1)
	t.queue = append(t.queue, msg)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *MemoryTransport) run() {
	defer close(t.stopped)
	for {
		select {
		case <-t.done:
			t.discard()
			return
		case <-t.wake:
		}
		for {
			t.mu.Lock()
			if len(t.queue) == 0 || t.closed {
				t.mu.Unlock()
				break
			}
			msg := t.queue[0]
			t.queue = t.queue[1:]
			t.mu.Unlock()

			t.subs.deliver(msg)
			t.hub.track(-1)
		}
	}
}

func (t *MemoryTransport) discard() {
	t.mu.Lock()
	dropped := len(t.queue)
	t.queue = nil
	t.mu.Unlock()
	if dropped > 0 {
		t.hub.track(-dropped)
	}
}
