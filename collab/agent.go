// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/dawsync/lib/assets"
	"github.com/bureau-foundation/dawsync/lib/clock"
	"github.com/bureau-foundation/dawsync/lib/codec"
	"github.com/bureau-foundation/dawsync/lib/kvstore"
	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/project"
	"github.com/bureau-foundation/dawsync/messaging"
	"github.com/bureau-foundation/dawsync/transport"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultSyncInterval          = 5 * time.Second
	DefaultDependencyTimeout     = 10 * time.Second
	DefaultDependencyMaxAttempts = 3
)

// ErrClosed is returned by operations on a closed agent.
var ErrClosed = errors.New("collab: agent closed")

// Config identifies the peer and tunes anti-entropy.
type Config struct {
	ProjectID string
	UserID    string

	SyncInterval          time.Duration
	DependencyTimeout     time.Duration
	DependencyMaxAttempts int
}

// Deps are the agent's collaborators. Transport is required; the rest
// are optional.
type Deps struct {
	Transport transport.Transport

	// State holds the serialized replica. Nil disables snapshot
	// persistence.
	State kvstore.Store

	// OpLog records every operation. Nil keeps the log in memory only.
	OpLog oplog.Store

	// Assets serves LoadAudio.
	Assets *assets.Cache

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// Origin says where a change came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Change reports operations that changed the replica.
type Change struct {
	Origin Origin
	// UserID is the peer whose message carried the operations, or the
	// local user.
	UserID     string
	Operations []oplog.Operation
}

// buffered tracks an operation waiting for dependencies.
type buffered struct {
	since    time.Time
	attempts int
}

// Agent is one peer's collaboration runtime.
type Agent struct {
	cfg       Config
	transport transport.Transport
	state     kvstore.Store
	opStore   oplog.Store
	assets    *assets.Cache
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *Metrics

	mu       sync.Mutex
	project  *project.Project
	log      *oplog.Log
	buffered map[string]*buffered
	started  bool
	closed   bool

	// persistMu orders persistence so a later snapshot is never
	// overwritten by an earlier one.
	persistMu sync.Mutex

	listenersMu sync.Mutex
	listeners   []func(Change)

	unsubscribe func()
	cancel      context.CancelFunc
	loopDone    chan struct{}
}

// New creates an agent. Call Initialize before use.
func New(cfg Config, deps Deps) (*Agent, error) {
	if cfg.ProjectID == "" || cfg.UserID == "" {
		return nil, errors.New("collab: project and user ids are required")
	}
	if deps.Transport == nil {
		return nil, errors.New("collab: a transport is required")
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.DependencyTimeout <= 0 {
		cfg.DependencyTimeout = DefaultDependencyTimeout
	}
	if cfg.DependencyMaxAttempts <= 0 {
		cfg.DependencyMaxAttempts = DefaultDependencyMaxAttempts
	}
	c := deps.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Agent{
		cfg:       cfg,
		transport: deps.Transport,
		state:     deps.State,
		opStore:   deps.OpLog,
		assets:    deps.Assets,
		clock:     c,
		logger:    logger.With("project", cfg.ProjectID, "user", cfg.UserID),
		metrics:   metrics,
		project:   project.New(cfg.ProjectID),
		log:       oplog.NewLog(),
		buffered:  make(map[string]*buffered),
	}, nil
}

// StateKey is the kvstore key holding a project's serialized replica.
func StateKey(projectID string) string {
	return "project/" + projectID + "/state"
}

// Initialize restores persisted state, subscribes to the transport,
// asks peers for anything missed, and starts the sync loop.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.started {
		a.mu.Unlock()
		return errors.New("collab: agent already initialized")
	}
	a.mu.Unlock()

	restored, err := a.restore(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.project = restored.project
	a.log = restored.log
	applied, _, _ := a.drainLocked()
	a.trackBufferedLocked()
	a.started = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.loopDone = make(chan struct{})
	a.mu.Unlock()

	a.logger.Info("agent initialized",
		"operations", restored.log.Len(),
		"skipped", restored.skipped,
		"buffered", a.Buffered(),
	)
	if len(applied) > 0 {
		a.persist(ctx, applied)
	}

	a.unsubscribe = a.transport.Subscribe(func(msg messaging.Message) {
		// Errors are logged and counted by HandleMessage.
		a.HandleMessage(loopCtx, msg)
	})
	a.requestSync(ctx, nil)
	go a.loop(loopCtx)
	return nil
}

type restored struct {
	project *project.Project
	log     *oplog.Log
	skipped int
}

func (a *Agent) restore(ctx context.Context) (restored, error) {
	result := restored{project: project.New(a.cfg.ProjectID), log: oplog.NewLog()}

	if a.state != nil {
		raw, err := a.state.Get(ctx, StateKey(a.cfg.ProjectID))
		switch {
		case errors.Is(err, kvstore.ErrNotFound):
		case err != nil:
			return result, fmt.Errorf("collab: reading persisted state: %w", err)
		default:
			var state project.State
			if err := codec.Unmarshal(raw, &state); err != nil {
				return result, fmt.Errorf("collab: decoding persisted state: %w", err)
			}
			p, err := project.FromState(state)
			if err != nil {
				return result, fmt.Errorf("collab: restoring persisted state: %w", err)
			}
			if p.ID() != a.cfg.ProjectID {
				return result, fmt.Errorf("collab: persisted state belongs to project %q", p.ID())
			}
			result.project = p
		}
	}

	if a.opStore != nil {
		log, skipped, err := oplog.Load(ctx, a.opStore)
		if err != nil {
			return result, fmt.Errorf("collab: %w", err)
		}
		result.log, result.skipped = log, skipped
		// The snapshot may predate the last logged operations.
		for _, op := range log.Applied() {
			if _, err := result.project.Apply(op); err != nil {
				a.logger.Warn("logged operation no longer applies", "operation", op.ID, "error", err)
			}
		}
	}
	return result, nil
}

// Close stops the sync loop, unsubscribes, and writes a final
// snapshot. The transport and stores are not closed.
func (a *Agent) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	started := a.started
	a.mu.Unlock()

	if !started {
		return nil
	}
	a.cancel()
	<-a.loopDone
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return a.persistState(ctx)
}

// OnChange registers fn to be called after every change to the
// replica. Calls happen synchronously on the goroutine that made the
// change, after it has been persisted.
func (a *Agent) OnChange(fn func(Change)) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *Agent) notify(change Change) {
	if len(change.Operations) == 0 {
		return
	}
	a.listenersMu.Lock()
	listeners := append([]func(Change){}, a.listeners...)
	a.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(change)
	}
}

// LoadAudio returns an audio file's bytes through the agent's asset
// cache.
func (a *Agent) LoadAudio(ctx context.Context, fileName string) ([]byte, error) {
	if a.assets == nil {
		return nil, &assets.UnavailableError{ID: fileName, Err: errors.New("agent has no asset cache")}
	}
	return a.assets.Get(ctx, fileName)
}

// State returns a copy of the replica.
func (a *Agent) State() project.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.project.State()
}

// Snapshot returns an independent copy of the replica for reading.
func (a *Agent) Snapshot() *project.Project {
	a.mu.Lock()
	state := a.project.State()
	a.mu.Unlock()
	p, _ := project.FromState(state)
	return p
}

// ActiveRegions returns a track's live regions ordered by start time.
func (a *Agent) ActiveRegions(trackID string) []project.Region {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.project.ActiveRegions(trackID)
}

// FieldWriter returns the user whose write a field currently holds.
func (a *Agent) FieldWriter(kind, boxID, field string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.project.FieldWriter(kind, boxID, field)
}

// Buffered returns the number of operations waiting for dependencies.
func (a *Agent) Buffered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffered)
}

// Operations returns every applied operation in causal order.
func (a *Agent) Operations() []oplog.Operation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.log.Applied()
}

func (a *Agent) loop(ctx context.Context) {
	defer close(a.loopDone)
	syncTicker := a.clock.NewTicker(a.cfg.SyncInterval)
	defer syncTicker.Stop()
	repairTicker := a.clock.NewTicker(a.cfg.DependencyTimeout)
	defer repairTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-syncTicker.C:
			a.requestSync(ctx, nil)
		case <-repairTicker.C:
			a.repair(ctx)
		}
	}
}

// persist records ops and writes the replica snapshot. Failures are
// logged and returned joined.
func (a *Agent) persist(ctx context.Context, ops []oplog.Operation) error {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()

	var errs []error
	if a.opStore != nil {
		for _, op := range ops {
			if err := a.opStore.Save(ctx, oplog.Record{Operation: op, Applied: true}); err != nil {
				errs = append(errs, fmt.Errorf("recording operation %s: %w", op.ID, err))
			}
		}
	}
	if err := a.persistStateLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("persisting changes failed", "error", err)
	}
	return err
}

// recordPending saves operations that arrived but cannot apply yet.
func (a *Agent) recordPending(ctx context.Context, ops []oplog.Operation) {
	if a.opStore == nil {
		return
	}
	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	for _, op := range ops {
		if err := a.opStore.Save(ctx, oplog.Record{Operation: op}); err != nil {
			a.logger.Error("recording buffered operation failed", "operation", op.ID, "error", err)
		}
	}
}

func (a *Agent) persistState(ctx context.Context) error {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	return a.persistStateLocked(ctx)
}

func (a *Agent) persistStateLocked(ctx context.Context) error {
	if a.state == nil {
		return nil
	}
	a.mu.Lock()
	state := a.project.State()
	a.mu.Unlock()

	raw, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := a.state.Put(ctx, StateKey(a.cfg.ProjectID), raw); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return nil
}

// broadcast sends payload to every peer. Send failures are logged;
// the next sync round repairs them.
func (a *Agent) broadcast(ctx context.Context, payload messaging.Payload) {
	a.send(ctx, "", payload)
}

// send delivers payload to one peer, or to all of them when to is
// empty.
func (a *Agent) send(ctx context.Context, to string, payload messaging.Payload) {
	msg := messaging.Message{
		ProjectID: a.cfg.ProjectID,
		UserID:    a.cfg.UserID,
		To:        to,
		Timestamp: a.clock.Now(),
		Payload:   payload,
	}
	if err := a.transport.Send(ctx, msg); err != nil {
		a.metrics.BroadcastFailures.Inc()
		a.logger.Warn("broadcast failed", "type", payload.Type(), "error", err)
		return
	}
	a.metrics.Broadcasts.WithLabelValues(string(payload.Type())).Inc()
}
