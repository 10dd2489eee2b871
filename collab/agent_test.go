// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/dawsync/lib/assets"
	"github.com/bureau-foundation/dawsync/lib/clock"
	"github.com/bureau-foundation/dawsync/lib/kvstore"
	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/project"
	libtestutil "github.com/bureau-foundation/dawsync/lib/testutil"
	"github.com/bureau-foundation/dawsync/lib/vclock"
	"github.com/bureau-foundation/dawsync/messaging"
	"github.com/bureau-foundation/dawsync/transport"
)

const (
	projectID   = "song"
	waitTimeout = 5 * time.Second

	dependencyTimeout = 10 * time.Second
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type peer struct {
	*Agent
	transport *transport.MemoryTransport
	state     *kvstore.Memory
	opStore   *oplog.MemoryStore
	changes   chan Change
}

type peerOptions struct {
	state   *kvstore.Memory
	opStore *oplog.MemoryStore
	assets  *assets.Cache
}

// newPeer joins userID to hub and initializes its agent. The sync
// ticker is set far out so only the dependency timer fires when tests
// advance clk.
func newPeer(t *testing.T, hub *transport.MemoryHub, clk clock.Clock, userID string, options ...peerOptions) *peer {
	t.Helper()
	var opts peerOptions
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.state == nil {
		opts.state = kvstore.NewMemory()
	}
	if opts.opStore == nil {
		opts.opStore = oplog.NewMemoryStore()
	}

	tr := hub.Join(projectID, userID)
	t.Cleanup(func() { tr.Close() })

	agent, err := New(Config{
		ProjectID:             projectID,
		UserID:                userID,
		SyncInterval:          time.Hour,
		DependencyTimeout:     dependencyTimeout,
		DependencyMaxAttempts: 3,
	}, Deps{
		Transport: tr,
		State:     opts.state,
		OpLog:     opts.opStore,
		Assets:    opts.assets,
		Clock:     clk,
	})
	if err != nil {
		t.Fatalf("New(%s): %v", userID, err)
	}
	p := &peer{
		Agent:     agent,
		transport: tr,
		state:     opts.state,
		opStore:   opts.opStore,
		changes:   make(chan Change, 256),
	}
	agent.OnChange(func(change Change) { p.changes <- change })
	if err := agent.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize(%s): %v", userID, err)
	}
	t.Cleanup(func() { agent.Close(context.Background()) })
	return p
}

func requireConverged(t *testing.T, peers ...*peer) {
	t.Helper()
	want := peers[0].Snapshot()
	for _, p := range peers[1:] {
		if !project.Equal(want, p.Snapshot()) {
			t.Fatalf("%s and %s diverged:\n%+v\n%+v", peers[0].cfg.UserID, p.cfg.UserID, want.State(), p.State())
		}
	}
}

func TestEditsPropagate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	alice := newPeer(t, hub, clk, "alice")
	bob := newPeer(t, hub, clk, "bob")
	hub.Settle()

	if err := alice.AddTrack(ctx, "drums", "Drums"); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	regionID, err := alice.AddAudioRegion(ctx, "drums", 0, 4, "kick.wav")
	if err != nil {
		t.Fatalf("AddAudioRegion: %v", err)
	}
	if changed, err := alice.UpdateRegionPosition(ctx, regionID, 2, 6); err != nil || !changed {
		t.Fatalf("UpdateRegionPosition = %v, %v", changed, err)
	}
	if changed, err := alice.UpdateRegionPan(ctx, regionID, -0.5); err != nil || !changed {
		t.Fatalf("UpdateRegionPan = %v, %v", changed, err)
	}
	if changed, err := alice.SetTrackMute(ctx, "drums", true); err != nil || !changed {
		t.Fatalf("SetTrackMute = %v, %v", changed, err)
	}
	hub.Settle()

	regions := bob.ActiveRegions("drums")
	if len(regions) != 1 {
		t.Fatalf("bob sees %d regions on drums, want 1", len(regions))
	}
	region := regions[0]
	if region.ID != regionID || region.StartTime.Value != 2 || region.EndTime.Value != 6 || region.Pan.Value != -0.5 {
		t.Errorf("bob's region = %+v", region)
	}
	if track, ok := bob.Snapshot().Track("drums"); !ok || !track.Mute.Value {
		t.Errorf("bob's drums track = %+v, %v; want muted", track, ok)
	}
	requireConverged(t, alice, bob)

	if changed, err := bob.DeleteRegion(ctx, regionID); err != nil || !changed {
		t.Fatalf("DeleteRegion = %v, %v", changed, err)
	}
	hub.Settle()
	if regions := alice.ActiveRegions("drums"); len(regions) != 0 {
		t.Errorf("alice still sees %d regions after bob deleted", len(regions))
	}
	requireConverged(t, alice, bob)

	if got := testutil.ToFloat64(alice.metrics.Broadcasts.WithLabelValues(string(messaging.TypeRegionUpdated))); got != 2 {
		t.Errorf("alice broadcast %v region updates, want 2", got)
	}
	if got := testutil.ToFloat64(alice.metrics.MessagesHandled.WithLabelValues(string(messaging.TypeRegionDeleted))); got != 1 {
		t.Errorf("alice handled %v region deletions, want 1", got)
	}
}

func TestLocalMutationErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	alice := newPeer(t, hub, clock.Fake(epoch), "alice")

	regionID, err := alice.AddAudioRegion(ctx, "drums", 0, 4, "kick.wav")
	if err != nil {
		t.Fatalf("AddAudioRegion: %v", err)
	}
	if _, err := alice.AddAudioRegion(ctx, "drums", 4, 4, "empty.wav"); !errors.Is(err, project.ErrInvalidValue) {
		t.Errorf("zero-length region: got %v, want ErrInvalidValue", err)
	}
	if _, err := alice.UpdateRegionVolume(ctx, regionID, 3); !errors.Is(err, project.ErrInvalidValue) {
		t.Errorf("volume 3: got %v, want ErrInvalidValue", err)
	}
	if _, err := alice.UpdateRegionVolume(ctx, "nope", 0.5); !errors.Is(err, project.ErrNotFound) {
		t.Errorf("unknown region: got %v, want ErrNotFound", err)
	}
	if changed, err := alice.DeleteRegion(ctx, regionID); err != nil || !changed {
		t.Fatalf("DeleteRegion = %v, %v", changed, err)
	}
	if _, err := alice.UpdateRegionPan(ctx, regionID, 0.2); !errors.Is(err, project.ErrDeleted) {
		t.Errorf("pan on deleted region: got %v, want ErrDeleted", err)
	}
	if changed, err := alice.DeleteRegion(ctx, regionID); err != nil || changed {
		t.Errorf("second DeleteRegion = %v, %v; want false, nil", changed, err)
	}

	// Only the add and the delete reached the log.
	if got := len(alice.Operations()); got != 2 {
		t.Errorf("logged %d operations, want 2", got)
	}
	if got := alice.opStore.Len(); got != 2 {
		t.Errorf("stored %d operations, want 2", got)
	}
}

func TestConcurrentEditsConvergeAfterPartition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	alice := newPeer(t, hub, clk, "alice")
	bob := newPeer(t, hub, clk, "bob")
	hub.Settle()

	regionID, err := alice.AddAudioRegion(ctx, "drums", 0, 4, "kick.wav")
	if err != nil {
		t.Fatalf("AddAudioRegion: %v", err)
	}
	hub.Settle()

	hub.SetOffline("bob", true)
	if _, err := alice.UpdateRegionVolume(ctx, regionID, 0.5); err != nil {
		t.Fatalf("alice UpdateRegionVolume: %v", err)
	}
	// Bob's broadcast fails; the change is still applied locally.
	if changed, err := bob.UpdateRegionVolume(ctx, regionID, 0.8); err != nil || !changed {
		t.Fatalf("bob UpdateRegionVolume = %v, %v", changed, err)
	}
	hub.Settle()
	if got := testutil.ToFloat64(bob.metrics.BroadcastFailures); got != 1 {
		t.Errorf("bob broadcast failures = %v, want 1", got)
	}

	hub.SetOffline("bob", false)
	alice.requestSync(ctx, nil)
	bob.requestSync(ctx, nil)
	hub.Settle()

	requireConverged(t, alice, bob)
	// The writes are concurrent; the larger writer id wins.
	for _, p := range []*peer{alice, bob} {
		region, _ := p.Snapshot().Region(regionID)
		if region.Volume.Value != 0.8 {
			t.Errorf("%s volume = %v, want 0.8", p.cfg.UserID, region.Volume.Value)
		}
		if writer, _ := p.FieldWriter(oplog.KindRegion, regionID, project.FieldVolume); writer != "bob" {
			t.Errorf("%s volume writer = %q, want bob", p.cfg.UserID, writer)
		}
	}
}

func TestSyncResponseGoesToRequester(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	alice := newPeer(t, hub, clk, "alice")
	bob := newPeer(t, hub, clk, "bob")
	carol := newPeer(t, hub, clk, "carol")
	hub.Settle()

	hub.SetOffline("bob", true)
	if err := alice.AddTrack(ctx, "keys", "Keys"); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	hub.Settle()
	hub.SetOffline("bob", false)

	responses := func(p *peer) float64 {
		return testutil.ToFloat64(p.metrics.MessagesHandled.WithLabelValues(string(messaging.TypeSyncResponse)))
	}
	before := map[string]float64{"alice": responses(alice), "carol": responses(carol)}

	bob.requestSync(ctx, nil)
	hub.Settle()

	requireConverged(t, alice, bob, carol)
	if got := responses(bob); got < 2 {
		t.Errorf("bob handled %v sync responses, want one from each peer", got)
	}
	for _, p := range []*peer{alice, carol} {
		if got := responses(p); got != before[p.cfg.UserID] {
			t.Errorf("%s handled a sync response meant for bob", p.cfg.UserID)
		}
	}
}

func TestColdStartReceivesFullState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	alice := newPeer(t, hub, clk, "alice")
	hub.Settle()

	if err := alice.AddTrack(ctx, "bass", "Bass"); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if _, err := alice.AddAudioRegion(ctx, "bass", 0, 8, "bass.wav"); err != nil {
		t.Fatalf("AddAudioRegion: %v", err)
	}

	carol := newPeer(t, hub, clk, "carol")
	hub.Settle()

	requireConverged(t, alice, carol)
	if got, want := len(carol.Operations()), len(alice.Operations()); got != want {
		t.Errorf("carol holds %d operations, alice %d", got, want)
	}
	if got := carol.opStore.Len(); got != 2 {
		t.Errorf("carol stored %d operations, want 2", got)
	}
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	alice := newPeer(t, hub, clk, "alice")
	bob := newPeer(t, hub, clk, "bob")
	hub.Settle()

	regionID, err := alice.AddAudioRegion(ctx, "drums", 0, 4, "kick.wav")
	if err != nil {
		t.Fatalf("AddAudioRegion: %v", err)
	}
	if _, err := alice.UpdateRegionVolume(ctx, regionID, 0.3); err != nil {
		t.Fatalf("UpdateRegionVolume: %v", err)
	}
	hub.Settle()
	before := bob.State()
	libtestutil.RequireReceive(t, bob.changes, waitTimeout, "first delivery")
	libtestutil.RequireReceive(t, bob.changes, waitTimeout, "second delivery")

	replay := messaging.Message{
		ProjectID: projectID,
		UserID:    "alice",
		Timestamp: epoch,
		Payload:   &messaging.Delta{Changes: alice.Operations()},
	}
	for range 3 {
		if err := bob.HandleMessage(ctx, replay); err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	}
	if len(bob.changes) != 0 {
		t.Errorf("replaying known operations reported %d changes", len(bob.changes))
	}
	after, _ := project.FromState(bob.State())
	restored, _ := project.FromState(before)
	if !project.Equal(restored, after) {
		t.Errorf("replay changed bob's replica")
	}
}

func TestMalformedMessagesAreRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	alice := newPeer(t, hub, clk, "alice")
	hub.Settle()

	valid := oplog.Operation{
		ID:        "op-valid",
		Type:      oplog.BoxAdd,
		Target:    oplog.Target{BoxUUID: "keys", BoxKind: oplog.KindTrack},
		Data:      []byte(`{"name":"Keys"}`),
		UserID:    "mallory",
		Timestamp: vclock.VectorClock{"mallory": 1},
	}
	anonymous := valid
	anonymous.ID = ""
	outOfRange := oplog.Operation{
		ID:           "op-loud",
		Type:         oplog.BoxModify,
		Target:       oplog.Target{BoxUUID: "keys", BoxKind: oplog.KindTrack, FieldPath: project.FieldVolume},
		Data:         []byte(`{"volume":9}`),
		UserID:       "mallory",
		Timestamp:    vclock.VectorClock{"mallory": 2},
		Dependencies: []string{"op-valid"},
	}

	tests := []struct {
		name string
		msg  messaging.Message
	}{
		{
			name: "other project",
			msg:  messaging.Message{ProjectID: "other", UserID: "mallory", Payload: &messaging.Delta{Changes: []oplog.Operation{valid}}},
		},
		{
			name: "region message carrying a track operation",
			msg:  messaging.Message{ProjectID: projectID, UserID: "mallory", Payload: &messaging.RegionAdded{Operation: valid}},
		},
		{
			name: "region update naming the wrong field",
			msg: messaging.Message{ProjectID: projectID, UserID: "mallory", Payload: &messaging.RegionUpdated{
				Field:     "pan",
				Operation: oplog.Operation{ID: "op-x", Type: oplog.BoxModify, Target: oplog.Target{BoxUUID: "r", BoxKind: oplog.KindRegion, FieldPath: "volume"}},
			}},
		},
		{
			name: "no payload",
			msg:  messaging.Message{ProjectID: projectID, UserID: "mallory"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := alice.HandleMessage(ctx, test.msg); err == nil {
				t.Errorf("HandleMessage accepted %s", test.name)
			}
		})
	}
	if tracks := alice.Snapshot().TrackIDs(); len(tracks) != 0 {
		t.Fatalf("rejected messages created tracks %v", tracks)
	}

	// One bad operation does not sink the rest of a delta.
	err := alice.HandleMessage(ctx, messaging.Message{
		ProjectID: projectID,
		UserID:    "mallory",
		Payload:   &messaging.Delta{Changes: []oplog.Operation{anonymous, valid, outOfRange}},
	})
	var validationError *oplog.ValidationError
	if !errors.As(err, &validationError) {
		t.Fatalf("HandleMessage error = %v, want a ValidationError", err)
	}
	track, ok := alice.Snapshot().Track("keys")
	if !ok || track.Name.Value != "Keys" {
		t.Fatalf("keys track = %+v, %v", track, ok)
	}
	if track.Volume.Value == 9 {
		t.Errorf("out-of-range volume applied")
	}
	if !alice.log.IsApplied("op-loud") {
		t.Errorf("rejected operation was not retired from the log")
	}
	if got := testutil.ToFloat64(alice.metrics.HandlerErrors.WithLabelValues(string(messaging.TypeDelta))); got != 2 {
		t.Errorf("delta handler errors = %v, want 2", got)
	}

	// Own echoes are ignored.
	echo := messaging.Message{ProjectID: projectID, UserID: "alice", Payload: &messaging.Delta{Changes: []oplog.Operation{anonymous}}}
	if err := alice.HandleMessage(ctx, echo); err != nil {
		t.Errorf("own echo: %v", err)
	}
}

func TestMissingDependencyIsRequested(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	alice := newPeer(t, hub, clk, "alice")
	bob := newPeer(t, hub, clk, "bob")
	carol := newPeer(t, hub, clk, "carol")
	clk.WaitForTimers(6)
	hub.Settle()

	regionID, err := alice.AddAudioRegion(ctx, "drums", 0, 4, "kick.wav")
	if err != nil {
		t.Fatalf("AddAudioRegion: %v", err)
	}
	hub.Settle()

	hub.SetOffline("carol", true)
	if _, err := alice.UpdateRegionVolume(ctx, regionID, 0.4); err != nil {
		t.Fatalf("UpdateRegionVolume: %v", err)
	}
	hub.Settle()
	hub.SetOffline("carol", false)
	if _, err := alice.UpdateRegionPan(ctx, regionID, 0.6); err != nil {
		t.Fatalf("UpdateRegionPan: %v", err)
	}
	hub.Settle()

	if got := carol.Buffered(); got != 1 {
		t.Fatalf("carol buffered %d operations, want 1", got)
	}
	for len(carol.changes) > 0 {
		<-carol.changes
	}

	clk.Advance(dependencyTimeout)
	change := libtestutil.RequireReceive(t, carol.changes, waitTimeout, "waiting for the repaired operations")
	if len(change.Operations) != 2 {
		t.Errorf("repair applied %d operations, want 2", len(change.Operations))
	}
	hub.Settle()

	if got := carol.Buffered(); got != 0 {
		t.Errorf("carol still buffers %d operations", got)
	}
	if got := testutil.ToFloat64(carol.metrics.RepairRequests); got != 1 {
		t.Errorf("carol repair requests = %v, want 1", got)
	}
	requireConverged(t, alice, bob, carol)
}

func TestUnresolvableDependencyIsForced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	alice := newPeer(t, hub, clk, "alice")
	clk.WaitForTimers(2)

	mallory := hub.Join(projectID, "mallory")
	t.Cleanup(func() { mallory.Close() })
	requests := make(chan *messaging.SyncRequest, 16)
	cancel := mallory.Subscribe(func(msg messaging.Message) {
		if request, ok := msg.Payload.(*messaging.SyncRequest); ok && len(request.Missing) > 0 {
			requests <- request
		}
	})
	t.Cleanup(cancel)
	hub.Settle()

	orphan := oplog.Operation{
		ID:           "op-orphan",
		Type:         oplog.BoxAdd,
		Target:       oplog.Target{BoxUUID: "keys", BoxKind: oplog.KindTrack},
		Data:         []byte(`{"name":"Keys"}`),
		UserID:       "mallory",
		Timestamp:    vclock.VectorClock{"mallory": 2},
		Dependencies: []string{"op-ghost"},
	}
	err := mallory.Send(ctx, messaging.Message{
		ProjectID: projectID,
		UserID:    "mallory",
		Timestamp: epoch,
		Payload:   &messaging.Delta{Changes: []oplog.Operation{orphan}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	hub.Settle()
	if got := alice.Buffered(); got != 1 {
		t.Fatalf("alice buffered %d operations, want 1", got)
	}
	if records, _ := alice.opStore.Load(ctx); len(records) != 1 || records[0].Applied {
		t.Errorf("buffered operation stored as %+v", records)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		clk.Advance(dependencyTimeout)
		request := libtestutil.RequireReceive(t, requests, waitTimeout, "repair request %d", attempt)
		if len(request.Missing) != 1 || request.Missing[0] != "op-ghost" {
			t.Errorf("repair request %d asked for %v", attempt, request.Missing)
		}
	}
	clk.Advance(dependencyTimeout)
	change := libtestutil.RequireReceive(t, alice.changes, waitTimeout, "waiting for the forced operation")
	if len(change.Operations) != 1 || change.Operations[0].ID != "op-orphan" {
		t.Errorf("forced change = %+v", change)
	}
	if _, ok := alice.Snapshot().Track("keys"); !ok {
		t.Errorf("forced track missing")
	}
	if got := alice.Buffered(); got != 0 {
		t.Errorf("alice still buffers %d operations", got)
	}
	if got := testutil.ToFloat64(alice.metrics.ForcedOperations); got != 1 {
		t.Errorf("forced operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(alice.metrics.RepairRequests); got != 3 {
		t.Errorf("repair requests = %v, want 3", got)
	}
}

func TestRestartRestoresReplica(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	state, opStore := kvstore.NewMemory(), oplog.NewMemoryStore()

	alice := newPeer(t, hub, clk, "alice", peerOptions{state: state, opStore: opStore})
	hub.Settle()
	regionID, err := alice.AddAudioRegion(ctx, "drums", 0, 4, "kick.wav")
	if err != nil {
		t.Fatalf("AddAudioRegion: %v", err)
	}
	if _, err := alice.UpdateRegionVolume(ctx, regionID, 1.5); err != nil {
		t.Fatalf("UpdateRegionVolume: %v", err)
	}
	before := alice.Snapshot()
	if err := alice.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := alice.AddTrack(ctx, "late", "Late"); !errors.Is(err, ErrClosed) {
		t.Errorf("AddTrack after Close: got %v, want ErrClosed", err)
	}
	if _, err := state.Get(ctx, StateKey(projectID)); err != nil {
		t.Fatalf("no persisted state: %v", err)
	}

	restarted := newPeer(t, hub, clk, "alice", peerOptions{state: state, opStore: opStore})
	hub.Settle()
	if !project.Equal(before, restarted.Snapshot()) {
		t.Fatalf("restored replica differs:\n%+v\n%+v", before.State(), restarted.State())
	}
	if got := len(restarted.Operations()); got != 2 {
		t.Errorf("restored %d operations, want 2", got)
	}

	// New local operations continue the author's sequence.
	if _, err := restarted.UpdateRegionVolume(ctx, regionID, 0.7); err != nil {
		t.Fatalf("UpdateRegionVolume after restart: %v", err)
	}
	ops := restarted.Operations()
	last := ops[len(ops)-1]
	if last.Timestamp.Get("alice") != 3 {
		t.Errorf("post-restart operation clock = %v, want alice:3", last.Timestamp)
	}
}

func TestLoadAudio(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)

	cache, err := assets.NewCache(assets.CacheConfig{
		Store: assets.NewMemoryStore(map[string][]byte{"kick.wav": []byte("RIFF kick")}),
	})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(cache.Close)

	alice := newPeer(t, hub, clk, "alice", peerOptions{assets: cache})
	data, err := alice.LoadAudio(ctx, "kick.wav")
	if err != nil || string(data) != "RIFF kick" {
		t.Fatalf("LoadAudio = %q, %v", data, err)
	}
	if _, err := alice.LoadAudio(ctx, "snare.wav"); err == nil {
		t.Errorf("LoadAudio of a missing file succeeded")
	}

	bob := newPeer(t, hub, clk, "bob")
	var unavailable *assets.UnavailableError
	if _, err := bob.LoadAudio(ctx, "kick.wav"); !errors.As(err, &unavailable) {
		t.Errorf("LoadAudio without a cache: got %v, want UnavailableError", err)
	}
}

func TestOnChangeReportsOrigin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := transport.NewMemoryHub()
	clk := clock.Fake(epoch)
	alice := newPeer(t, hub, clk, "alice")
	bob := newPeer(t, hub, clk, "bob")
	hub.Settle()

	if err := alice.AddTrack(ctx, "drums", "Drums"); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	hub.Settle()

	local := libtestutil.RequireReceive(t, alice.changes, waitTimeout, "alice's local change")
	if local.Origin != OriginLocal || local.UserID != "alice" || len(local.Operations) != 1 {
		t.Errorf("local change = %+v", local)
	}
	remote := libtestutil.RequireReceive(t, bob.changes, waitTimeout, "bob's remote change")
	if remote.Origin != OriginRemote || remote.UserID != "alice" || remote.Operations[0].ID != local.Operations[0].ID {
		t.Errorf("remote change = %+v", remote)
	}
}

func TestNewRequiresIdentity(t *testing.T) {
	t.Parallel()
	hub := transport.NewMemoryHub()
	tr := hub.Join(projectID, "alice")
	t.Cleanup(func() { tr.Close() })

	if _, err := New(Config{UserID: "alice"}, Deps{Transport: tr}); err == nil {
		t.Errorf("New without a project id succeeded")
	}
	if _, err := New(Config{ProjectID: projectID, UserID: "alice"}, Deps{}); err == nil {
		t.Errorf("New without a transport succeeded")
	}
	agent, err := New(Config{ProjectID: projectID, UserID: "alice"}, Deps{Transport: tr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := agent.AddTrack(context.Background(), "drums", "Drums"); err == nil {
		t.Errorf("AddTrack before Initialize succeeded")
	}
}
