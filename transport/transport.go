// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bureau-foundation/dawsync/messaging"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport carries messages between the peers of one project.
type Transport interface {
	// Send broadcasts msg to every other peer of the project. A nil
	// return means the message left this peer, not that anyone
	// received it.
	Send(ctx context.Context, msg messaging.Message) error

	// Subscribe registers handler for messages from other peers. The
	// returned function removes the registration.
	Subscribe(handler func(messaging.Message)) (cancel func())

	// Close releases the transport. Later Sends fail with ErrClosed.
	Close() error
}

// SendError reports a message that could not be sent.
type SendError struct {
	// Transport names the implementation ("memory", "websocket",
	// "redis").
	Transport string
	// Type is the kind of message that failed.
	Type messaging.Type
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s transport: sending %s: %v", e.Transport, e.Type, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func sendError(transport string, msg messaging.Message, err error) *SendError {
	var kind messaging.Type
	if msg.Payload != nil {
		kind = msg.Payload.Type()
	}
	return &SendError{Transport: transport, Type: kind, Err: err}
}

// subscribers is the callback set shared by every implementation.
type subscribers struct {
	mu       sync.Mutex
	next     uint64
	handlers map[uint64]func(messaging.Message)
}

func (s *subscribers) add(handler func(messaging.Message)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[uint64]func(messaging.Message))
	}
	id := s.next
	s.next++
	s.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

// deliver calls every handler in registration order. The lock is not
// held during callbacks so a handler may Subscribe or cancel.
func (s *subscribers) deliver(msg messaging.Message) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	handlers := make([]func(messaging.Message), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}
