// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/dawsync/messaging"
)

// Compile-time interface check.
var _ Transport = (*Redis)(nil)

// RedisChannel returns the pub/sub channel for a project.
func RedisChannel(projectID string) string {
	return "dawsync:project:" + projectID
}

// Redis exchanges messages over a Redis pub/sub channel. Redis delivers
// a publisher's own messages back to it; those are dropped.
type Redis struct {
	client    redis.UniversalClient
	pubsub    *redis.PubSub
	channel   string
	projectID string
	userID    string
	logger    *slog.Logger
	subs      subscribers
	done      chan struct{}
}

// NewRedis subscribes to the project's channel. It waits for the
// subscription to be confirmed so that messages published after it
// returns are not missed. The client is not closed by Close.
func NewRedis(ctx context.Context, client redis.UniversalClient, projectID, userID string, logger *slog.Logger) (*Redis, error) {
	if projectID == "" || userID == "" {
		return nil, errors.New("redis transport: project and user ids are required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	channel := RedisChannel(projectID)
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis transport: subscribing to %s: %w", channel, err)
	}

	r := &Redis{
		client:    client,
		pubsub:    pubsub,
		channel:   channel,
		projectID: projectID,
		userID:    userID,
		logger:    logger.With("transport", "redis", "project", projectID),
		done:      make(chan struct{}),
	}
	go r.receive()
	return r, nil
}

func (r *Redis) Send(ctx context.Context, msg messaging.Message) error {
	select {
	case <-r.done:
		return sendError("redis", msg, ErrClosed)
	default:
	}
	raw, err := messaging.Encode(msg)
	if err != nil {
		return sendError("redis", msg, err)
	}
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		return sendError("redis", msg, err)
	}
	return nil
}

func (r *Redis) Subscribe(handler func(messaging.Message)) func() {
	return r.subs.add(handler)
}

// Close unsubscribes and waits for the receive loop to exit.
func (r *Redis) Close() error {
	err := r.pubsub.Close()
	<-r.done
	return err
}

func (r *Redis) receive() {
	defer close(r.done)
	for delivery := range r.pubsub.Channel() {
		msg, err := messaging.Decode([]byte(delivery.Payload))
		if err != nil {
			r.logger.Warn("dropping undecodable message", "error", err)
			continue
		}
		if msg.UserID == r.userID || msg.ProjectID != r.projectID || !msg.For(r.userID) {
			continue
		}
		r.subs.deliver(msg)
	}
}
