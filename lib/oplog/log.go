// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package oplog

import (
	"container/heap"
	"slices"

	"github.com/bureau-foundation/dawsync/lib/vclock"
)

// Pending describes a buffered operation. Missing lists dependency ids
// that are not in the log at all; it is empty when the operation only
// waits on other buffered operations.
type Pending struct {
	Operation Operation
	Missing   []string
}

type entry struct {
	op      Operation
	applied bool
}

// Log is the set of operations a replica knows about. The zero value
// is not usable; call NewLog.
type Log struct {
	entries map[string]*entry

	// latestByUser maps an author to the id of their operation with
	// the highest own counter. A new local operation depends on it.
	latestByUser map[string]string

	// creators maps a box id to the box_add operation that created it.
	creators map[string]string
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{
		entries:      make(map[string]*entry),
		latestByUser: make(map[string]string),
		creators:     make(map[string]string),
	}
}

// Append validates op and stores it unapplied. It reports false
// without error when an operation with the same id is already present.
func (l *Log) Append(op Operation) (bool, error) {
	if err := op.Validate(); err != nil {
		return false, err
	}
	if _, exists := l.entries[op.ID]; exists {
		return false, nil
	}
	op = op.Clone()
	l.entries[op.ID] = &entry{op: op}

	if latest, ok := l.latestByUser[op.UserID]; !ok ||
		l.entries[latest].op.Timestamp.Get(op.UserID) < op.Timestamp.Get(op.UserID) {
		l.latestByUser[op.UserID] = op.ID
	}
	if op.Type == BoxAdd {
		if creator, ok := l.creators[op.Target.BoxUUID]; !ok || op.ID < creator {
			l.creators[op.Target.BoxUUID] = op.ID
		}
	}
	return true, nil
}

// Dependencies returns the dependency ids for a new operation by
// userID against boxUUID: the author's latest operation, and the
// operation that created the box when that is a different one.
func (l *Log) Dependencies(userID, boxUUID string) []string {
	var deps []string
	if latest, ok := l.latestByUser[userID]; ok {
		deps = append(deps, latest)
	}
	if creator, ok := l.creators[boxUUID]; ok && !slices.Contains(deps, creator) {
		deps = append(deps, creator)
	}
	slices.Sort(deps)
	return deps
}

// Get returns a copy of the operation with the given id.
func (l *Log) Get(id string) (Operation, bool) {
	e, ok := l.entries[id]
	if !ok {
		return Operation{}, false
	}
	return e.op.Clone(), true
}

// Has reports whether the log holds id.
func (l *Log) Has(id string) bool {
	_, ok := l.entries[id]
	return ok
}

// Len returns the number of operations held.
func (l *Log) Len() int { return len(l.entries) }

// MarkApplied records that id has been applied to the live model. It
// reports whether the flag changed; unknown ids and repeated calls
// report false.
func (l *Log) MarkApplied(id string) bool {
	e, ok := l.entries[id]
	if !ok || e.applied {
		return false
	}
	e.applied = true
	return true
}

// IsApplied reports whether id is present and applied.
func (l *Log) IsApplied(id string) bool {
	e, ok := l.entries[id]
	return ok && e.applied
}

// Ready returns the unapplied operations whose dependencies are all
// applied, in causal order. Applying them can make more operations
// ready; callers loop until Ready is empty.
func (l *Log) Ready() []Operation {
	var ready []Operation
	for _, e := range l.entries {
		if !e.applied && l.satisfied(&e.op) {
			ready = append(ready, e.op.Clone())
		}
	}
	Sort(ready)
	return ready
}

// Pending returns the unapplied operations that are not ready, in
// causal order.
func (l *Log) Pending() []Pending {
	var pending []Pending
	for _, e := range l.entries {
		if e.applied || l.satisfied(&e.op) {
			continue
		}
		pending = append(pending, Pending{Operation: e.op.Clone(), Missing: l.absent(&e.op)})
	}
	slices.SortFunc(pending, func(a, b Pending) int { return compare(&a.Operation, &b.Operation) })
	return pending
}

// MissingDependencies returns every dependency id referenced by a
// buffered operation that the log has never seen, sorted.
func (l *Log) MissingDependencies() []string {
	seen := make(map[string]struct{})
	for _, e := range l.entries {
		if e.applied {
			continue
		}
		for _, id := range l.absent(&e.op) {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Frontier returns the per-author clock of applied operations: entry p
// is the highest own counter of any applied operation authored by p.
// A peer's own operations carry consecutive counters, so the frontier
// names exactly which operations a replica has applied.
func (l *Log) Frontier() vclock.VectorClock {
	frontier := vclock.New()
	for _, e := range l.entries {
		if !e.applied {
			continue
		}
		if count := e.op.Timestamp.Get(e.op.UserID); count > frontier.Get(e.op.UserID) {
			frontier[e.op.UserID] = count
		}
	}
	return frontier
}

// ChangesSince returns the applied operations a replica at frontier
// has not applied, in causal order. A nil or empty frontier yields
// every applied operation.
func (l *Log) ChangesSince(frontier vclock.VectorClock) []Operation {
	var changes []Operation
	for _, e := range l.entries {
		if e.applied && e.op.Timestamp.Get(e.op.UserID) > frontier.Get(e.op.UserID) {
			changes = append(changes, e.op.Clone())
		}
	}
	Sort(changes)
	return changes
}

// Applied returns every applied operation in causal order.
func (l *Log) Applied() []Operation {
	return l.ChangesSince(nil)
}

// OrderedOperations returns every operation whose dependency closure
// is present, dependencies first. Among operations whose dependencies
// are satisfied the causally earliest goes next, so the order is
// deterministic for a given set of operations.
func (l *Log) OrderedOperations() []Operation {
	ordered, _ := l.topological()
	return ordered
}

// Unresolved returns the operations OrderedOperations leaves out
// because a dependency (direct or transitive) is absent.
func (l *Log) Unresolved() []Pending {
	_, unresolved := l.topological()
	return unresolved
}

func (l *Log) topological() ([]Operation, []Pending) {
	indegree := make(map[string]int, len(l.entries))
	dependents := make(map[string][]string)
	queue := &operationHeap{}

	for id, e := range l.entries {
		for _, dep := range e.op.Dependencies {
			if _, ok := l.entries[dep]; ok {
				indegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}
	for id, e := range l.entries {
		if indegree[id] == 0 && len(l.absent(&e.op)) == 0 {
			heap.Push(queue, &e.op)
		}
	}

	ordered := make([]Operation, 0, len(l.entries))
	emitted := make(map[string]bool, len(l.entries))
	for queue.Len() > 0 {
		op := heap.Pop(queue).(*Operation)
		ordered = append(ordered, op.Clone())
		emitted[op.ID] = true
		for _, next := range dependents[op.ID] {
			indegree[next]--
			if indegree[next] == 0 {
				if e := l.entries[next]; len(l.absent(&e.op)) == 0 {
					heap.Push(queue, &e.op)
				}
			}
		}
	}

	var unresolved []Pending
	for id, e := range l.entries {
		if !emitted[id] {
			unresolved = append(unresolved, Pending{Operation: e.op.Clone(), Missing: l.absent(&e.op)})
		}
	}
	slices.SortFunc(unresolved, func(a, b Pending) int { return compare(&a.Operation, &b.Operation) })
	return ordered, unresolved
}

func (l *Log) satisfied(op *Operation) bool {
	for _, dep := range op.Dependencies {
		if !l.IsApplied(dep) {
			return false
		}
	}
	return true
}

func (l *Log) absent(op *Operation) []string {
	var missing []string
	for _, dep := range op.Dependencies {
		if _, ok := l.entries[dep]; !ok {
			missing = append(missing, dep)
		}
	}
	slices.Sort(missing)
	return missing
}

type operationHeap []*Operation

func (h operationHeap) Len() int           { return len(h) }
func (h operationHeap) Less(i, j int) bool { return compare(h[i], h[j]) < 0 }
func (h operationHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *operationHeap) Push(x any)        { *h = append(*h, x.(*Operation)) }
func (h *operationHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
