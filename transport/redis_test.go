// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/dawsync/lib/testutil"
	"github.com/bureau-foundation/dawsync/messaging"
)

// redisClient connects to the server named by DAWSYNC_TEST_REDIS, or
// skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("DAWSYNC_TEST_REDIS")
	if addr == "" {
		t.Skip("DAWSYNC_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisChannel(t *testing.T) {
	t.Parallel()
	if got := RedisChannel("song"); got != "dawsync:project:song" {
		t.Fatalf("RedisChannel = %q", got)
	}
}

func TestRedisRoundTrip(t *testing.T) {
	t.Parallel()

	client := redisClient(t)
	ctx := context.Background()
	project := testutil.UniqueID("song")

	alice, err := NewRedis(ctx, client, project, "alice", nil)
	if err != nil {
		t.Fatalf("NewRedis(alice): %v", err)
	}
	defer alice.Close()
	bob, err := NewRedis(ctx, client, project, "bob", nil)
	if err != nil {
		t.Fatalf("NewRedis(bob): %v", err)
	}
	defer bob.Close()

	aliceInbox, bobInbox := inbox(t, alice), inbox(t, bob)

	if err := alice.Send(ctx, delta(project, "alice", "op-1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg := testutil.RequireReceive(t, bobInbox, waitTimeout, "bob waiting for alice")
	if messaging.Operations(msg.Payload)[0].ID != "op-1" {
		t.Fatalf("bob received %+v", msg)
	}

	if err := bob.Send(ctx, syncRequest(project, "bob")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	reply := testutil.RequireReceive(t, aliceInbox, waitTimeout, "alice waiting for bob")
	if reply.UserID != "bob" {
		t.Fatalf("alice received her own echo first")
	}
}
