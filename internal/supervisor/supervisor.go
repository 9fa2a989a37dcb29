// Package supervisor tracks in-flight turn tasks per room so any turn can
// be cancelled individually without affecting siblings, and no spawned
// goroutine is ever orphaned.
package supervisor

import (
	"context"
	"sync"
)

type taskKey struct {
	roomID string
	slot   string // bot id or a mode tag like "_chain"
}

// Task is a handle to one cancellable unit of work.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Wait blocks until the task's function has returned.
func (t *Task) Wait() { <-t.done }

// Done exposes the completion channel for select loops.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel requests cancellation. Idempotent; does not wait.
func (t *Task) Cancel() { t.cancel() }

// Supervisor is the per-process registry of in-flight turn tasks, keyed by
// (room, slot). A new task spawned into an occupied slot replaces the
// registry entry (last write wins); the displaced task keeps running under
// its own handle until its context ends.
type Supervisor struct {
	mu    sync.Mutex
	tasks map[taskKey]*Task
}

// New creates an empty supervisor.
func New() *Supervisor {
	return &Supervisor{tasks: make(map[taskKey]*Task)}
}

// Spawn runs fn on a new goroutine under a cancellable context derived
// from ctx, registered at (roomID, slot). The slot is cleared when fn
// returns, unless a newer task has already claimed it.
func (s *Supervisor) Spawn(ctx context.Context, roomID, slot string, fn func(ctx context.Context)) *Task {
	tctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel, done: make(chan struct{})}
	key := taskKey{roomID: roomID, slot: slot}

	s.mu.Lock()
	s.tasks[key] = task
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			close(task.done)
			s.mu.Lock()
			if s.tasks[key] == task {
				delete(s.tasks, key)
			}
			s.mu.Unlock()
		}()
		fn(tctx)
	}()

	return task
}

// Cancel cancels the task at (roomID, slot) and waits for it to finish.
// Returns false when no task occupies the slot. Idempotent.
func (s *Supervisor) Cancel(roomID, slot string) bool {
	s.mu.Lock()
	task, ok := s.tasks[taskKey{roomID: roomID, slot: slot}]
	s.mu.Unlock()
	if !ok {
		return false
	}
	task.cancel()
	task.Wait()
	return true
}

// CancelRoom cancels every task belonging to a room and waits for all of
// them. Called on room teardown and chat.abort-all.
func (s *Supervisor) CancelRoom(roomID string) {
	s.mu.Lock()
	var victims []*Task
	for key, task := range s.tasks {
		if key.roomID == roomID {
			victims = append(victims, task)
		}
	}
	s.mu.Unlock()

	for _, t := range victims {
		t.cancel()
	}
	for _, t := range victims {
		t.Wait()
	}
}

// Active returns the occupied slots for a room.
func (s *Supervisor) Active(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var slots []string
	for key := range s.tasks {
		if key.roomID == roomID {
			slots = append(slots, key.slot)
		}
	}
	return slots
}
