// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bureau-foundation/dawsync/lib/oplog"
	"github.com/bureau-foundation/dawsync/lib/project"
	"github.com/bureau-foundation/dawsync/messaging"
)

// HandleMessage applies one peer message. Messages for another project
// are rejected; the agent's own messages are ignored. Operations that
// fail validation are dropped individually and reported in the
// returned error; the rest of the message still applies.
func (a *Agent) HandleMessage(ctx context.Context, msg messaging.Message) error {
	if msg.Payload == nil {
		return errors.New("collab: message without a payload")
	}
	kind := string(msg.Payload.Type())
	if msg.ProjectID != a.cfg.ProjectID {
		a.metrics.HandlerErrors.WithLabelValues(kind).Inc()
		return fmt.Errorf("collab: message for project %q", msg.ProjectID)
	}
	if msg.UserID == a.cfg.UserID || !msg.For(a.cfg.UserID) {
		return nil
	}

	a.mu.Lock()
	closed, started := a.closed, a.started
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !started {
		return errors.New("collab: agent not initialized")
	}

	a.metrics.MessagesHandled.WithLabelValues(kind).Inc()
	err := messaging.Dispatch(ctx, handler{agent: a}, msg)
	if err != nil {
		a.metrics.HandlerErrors.WithLabelValues(kind).Inc()
		a.logger.Warn("handling peer message failed", "type", kind, "from", msg.UserID, "error", err)
	}
	return err
}

// handler routes decoded payloads into the agent.
type handler struct {
	agent *Agent
}

// Compile-time interface check.
var _ messaging.Handler = handler{}

func (h handler) HandleRegionAdded(ctx context.Context, msg messaging.Message, payload *messaging.RegionAdded) error {
	if err := expect(payload.Operation, oplog.BoxAdd); err != nil {
		return err
	}
	return h.agent.ingest(ctx, msg.UserID, []oplog.Operation{payload.Operation})
}

func (h handler) HandleRegionUpdated(ctx context.Context, msg messaging.Message, payload *messaging.RegionUpdated) error {
	if err := expect(payload.Operation, oplog.BoxModify); err != nil {
		return err
	}
	if payload.Field != payload.Operation.Target.FieldPath {
		return fmt.Errorf("region update names field %q but operation %s writes %q",
			payload.Field, payload.Operation.ID, payload.Operation.Target.FieldPath)
	}
	return h.agent.ingest(ctx, msg.UserID, []oplog.Operation{payload.Operation})
}

func (h handler) HandleRegionDeleted(ctx context.Context, msg messaging.Message, payload *messaging.RegionDeleted) error {
	if err := expect(payload.Operation, oplog.BoxRemove); err != nil {
		return err
	}
	return h.agent.ingest(ctx, msg.UserID, []oplog.Operation{payload.Operation})
}

func (h handler) HandleDelta(ctx context.Context, msg messaging.Message, payload *messaging.Delta) error {
	return h.agent.ingest(ctx, msg.UserID, payload.Changes)
}

func (h handler) HandleSyncRequest(ctx context.Context, msg messaging.Message, payload *messaging.SyncRequest) error {
	h.agent.answerSync(ctx, msg.UserID, payload)
	return nil
}

func (h handler) HandleSyncResponse(ctx context.Context, msg messaging.Message, payload *messaging.SyncResponse) error {
	var errs []error
	if payload.FullState != nil {
		if err := h.agent.mergeState(ctx, msg.UserID, *payload.FullState); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.agent.ingest(ctx, msg.UserID, payload.Changes); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// expect checks that a region message carries a region operation of
// the matching type.
func expect(op oplog.Operation, opType oplog.Type) error {
	if op.Type != opType || op.Target.BoxKind != oplog.KindRegion {
		return fmt.Errorf("operation %s is a %s on a %s, want a region %s",
			op.ID, op.Type, op.Target.BoxKind, opType)
	}
	return nil
}

// ingest adds remote operations to the log and applies every one whose
// dependencies are met. The rest stay buffered until their
// dependencies arrive or the repair loop gives up on them.
func (a *Agent) ingest(ctx context.Context, from string, ops []oplog.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	var errs []error
	var fresh []oplog.Operation

	a.mu.Lock()
	for _, op := range ops {
		added, err := a.log.Append(op)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if added {
			fresh = append(fresh, op)
		}
	}
	applied, changed, applyErrs := a.drainLocked()
	errs = append(errs, applyErrs...)
	a.trackBufferedLocked()
	var waiting []oplog.Operation
	for _, op := range fresh {
		if !a.log.IsApplied(op.ID) {
			waiting = append(waiting, op)
		}
	}
	a.mu.Unlock()

	if len(waiting) > 0 {
		a.logger.Debug("buffering operations with missing dependencies", "count", len(waiting), "from", from)
		a.recordPending(ctx, waiting)
	}
	if len(applied) > 0 {
		a.persist(ctx, applied)
	}
	a.notify(Change{Origin: OriginRemote, UserID: from, Operations: changed})
	return errors.Join(errs...)
}

// drainLocked applies ready operations until none remain. It returns
// every operation it marked applied, the subset that changed the
// replica, and the errors of operations the replica rejected. A
// rejected operation is still marked applied so its dependents can
// proceed.
func (a *Agent) drainLocked() (applied, changed []oplog.Operation, errs []error) {
	for {
		ready := a.log.Ready()
		if len(ready) == 0 {
			return applied, changed, errs
		}
		for _, op := range ready {
			ok, err := a.applyLocked(op)
			applied = append(applied, op)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				changed = append(changed, op)
			}
		}
	}
}

func (a *Agent) applyLocked(op oplog.Operation) (bool, error) {
	changed, err := a.project.Apply(op)
	a.log.MarkApplied(op.ID)
	delete(a.buffered, op.ID)
	if err != nil {
		a.logger.Warn("rejected operation", "operation", op.ID, "author", op.UserID, "error", err)
	}
	return changed, err
}

// trackBufferedLocked starts the dependency timer for newly buffered
// operations and refreshes the gauge.
func (a *Agent) trackBufferedLocked() {
	now := a.clock.Now()
	for _, pending := range a.log.Pending() {
		if _, ok := a.buffered[pending.Operation.ID]; !ok {
			a.buffered[pending.Operation.ID] = &buffered{since: now}
		}
	}
	a.metrics.BufferedOperations.Set(float64(len(a.buffered)))
}

// mergeState folds a peer's full replica into the local one.
func (a *Agent) mergeState(ctx context.Context, from string, state project.State) error {
	if state.ID != a.cfg.ProjectID {
		return fmt.Errorf("full state belongs to project %q", state.ID)
	}
	theirs, err := project.FromState(state)
	if err != nil {
		return fmt.Errorf("decoding full state: %w", err)
	}
	a.mu.Lock()
	changed, err := a.project.Merge(theirs)
	a.mu.Unlock()
	if err != nil {
		return err
	}
	if changed {
		a.logger.Info("merged full state", "from", from)
		a.persistState(ctx)
	}
	return nil
}

// answerSync replies to a sync request with what the requester lacks.
// An empty frontier is a cold start and gets the whole replica. The
// reply goes to the requester only; other peers run their own sync.
func (a *Agent) answerSync(ctx context.Context, requester string, request *messaging.SyncRequest) {
	var response messaging.SyncResponse

	a.mu.Lock()
	if len(request.LastKnownTimestamp) == 0 {
		state := a.project.State()
		if len(state.Clock) > 0 {
			response.FullState = &state
		}
		response.Changes = a.log.Applied()
	} else {
		response.Changes = a.log.ChangesSince(request.LastKnownTimestamp)
	}
	for _, id := range request.Missing {
		if !a.log.IsApplied(id) || slices.ContainsFunc(response.Changes, func(op oplog.Operation) bool { return op.ID == id }) {
			continue
		}
		op, _ := a.log.Get(id)
		response.Changes = append(response.Changes, op)
	}
	a.mu.Unlock()

	if response.FullState == nil && len(response.Changes) == 0 {
		return
	}
	oplog.Sort(response.Changes)
	a.send(ctx, requester, &response)
}

// requestSync asks peers for operations this replica has not applied.
// Naming missing ids makes it a repair request.
func (a *Agent) requestSync(ctx context.Context, missing []string) {
	a.mu.Lock()
	frontier := a.log.Frontier()
	a.mu.Unlock()

	if len(missing) > 0 {
		a.metrics.RepairRequests.Inc()
	} else {
		a.metrics.SyncRequests.Inc()
	}
	a.broadcast(ctx, &messaging.SyncRequest{LastKnownTimestamp: frontier, Missing: missing})
}

// repair runs on the dependency timer. An operation buffered longer
// than the timeout triggers a request for its missing dependencies;
// after DependencyMaxAttempts requests it is applied without them.
func (a *Agent) repair(ctx context.Context) {
	now := a.clock.Now()
	missing := make(map[string]struct{})
	var applied, changed []oplog.Operation
	var stuck []string

	a.mu.Lock()
	for _, pending := range a.log.Pending() {
		b, ok := a.buffered[pending.Operation.ID]
		if !ok {
			b = &buffered{since: now}
			a.buffered[pending.Operation.ID] = b
		}
		if now.Sub(b.since) < a.cfg.DependencyTimeout {
			continue
		}
		if b.attempts >= a.cfg.DependencyMaxAttempts {
			if len(pending.Missing) == 0 {
				// Waits only on other buffered operations; forcing
				// those usually releases it.
				stuck = append(stuck, pending.Operation.ID)
				continue
			}
			a.forceLocked(pending, &applied, &changed)
			continue
		}
		b.attempts++
		b.since = now
		for _, id := range pending.Missing {
			missing[id] = struct{}{}
		}
	}
	drained, drainedChanged, _ := a.drainLocked()
	applied = append(applied, drained...)
	changed = append(changed, drainedChanged...)

	// Anything still stuck is in a dependency cycle.
	for _, id := range stuck {
		if a.log.IsApplied(id) {
			continue
		}
		op, _ := a.log.Get(id)
		a.forceLocked(oplog.Pending{Operation: op}, &applied, &changed)
	}
	drained, drainedChanged, _ = a.drainLocked()
	applied = append(applied, drained...)
	changed = append(changed, drainedChanged...)
	a.trackBufferedLocked()
	a.mu.Unlock()

	if len(applied) > 0 {
		a.persist(ctx, applied)
		a.notify(Change{Origin: OriginRemote, Operations: changed})
	}
	if len(missing) > 0 {
		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		a.logger.Info("requesting missing dependencies", "ids", ids)
		a.requestSync(ctx, ids)
	}
}

func (a *Agent) forceLocked(pending oplog.Pending, applied, changed *[]oplog.Operation) {
	op := pending.Operation
	a.logger.Warn("applying operation without its dependencies",
		"operation", op.ID, "author", op.UserID, "missing", pending.Missing)
	a.metrics.ForcedOperations.Inc()
	ok, err := a.applyLocked(op)
	*applied = append(*applied, op)
	if err == nil && ok {
		*changed = append(*changed, op)
	}
}
