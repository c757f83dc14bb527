// Package stream implements the Streaming Multiplexer:
// a bounded per-task queue that interleaves frames from every subtask
// into one ordered output, dropping the oldest non-terminal frame on
// overflow rather than blocking a worker's send path.
package stream

import (
	"sync"

	"github.com/iris-network/coordinator/internal/shared"
)

// Multiplexer fans frames from many subtasks into one per-task queue.
type Multiplexer struct {
	mu       sync.Mutex
	capacity int
	tasks    map[string]*taskQueue
}

type taskQueue struct {
	frames []shared.StreamFrame
	seq    int
	closed bool
	notify chan struct{} // closed and replaced whenever new data arrives
}

func newTaskQueue() *taskQueue {
	return &taskQueue{notify: make(chan struct{})}
}

// New creates a Multiplexer with the given per-task queue capacity.
func New(capacity int) *Multiplexer {
	if capacity <= 0 {
		capacity = 256
	}
	return &Multiplexer{capacity: capacity, tasks: make(map[string]*taskQueue)}
}

// Open registers a task's queue. Calling Open twice for the same
// task-id is a no-op — the existing queue is reused.
func (m *Multiplexer) Open(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		m.tasks[taskID] = newTaskQueue()
	}
}

// Push appends a frame from a subtask to the task's queue. When the
// queue is at capacity, the oldest non-terminal frames are dropped
// until the new frame fits: the first one dropped is replaced with a
// DROPPED marker in its place, and further ones dropped right after it
// are folded into that marker, so consumers see a gap was introduced
// rather than losing the slot silently.
func (m *Multiplexer) Push(taskID string, subtaskIndex int, payload string, isTerminal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.tasks[taskID]
	if !ok {
		q = newTaskQueue()
		m.tasks[taskID] = q
	}
	if q.closed {
		return
	}

	q.seq++
	frame := shared.StreamFrame{
		SubtaskIndex: subtaskIndex,
		Sequence:     q.seq,
		Payload:      payload,
		IsTerminal:   isTerminal,
	}

	for len(q.frames) >= m.capacity {
		idx := firstNonTerminal(q.frames)
		switch {
		case idx < 0:
			// Every buffered frame is terminal or a marker; drop the oldest outright.
			q.frames = q.frames[1:]
		case idx > 0 && q.frames[idx-1].Marker == "DROPPED":
			q.frames = append(q.frames[:idx], q.frames[idx+1:]...)
		default:
			q.frames[idx] = shared.StreamFrame{
				SubtaskIndex: q.frames[idx].SubtaskIndex,
				Sequence:     q.frames[idx].Sequence,
				Marker:       "DROPPED",
			}
		}
	}

	q.frames = append(q.frames, frame)
	m.wake(q)
}

func firstNonTerminal(frames []shared.StreamFrame) int {
	for i, f := range frames {
		if !f.IsTerminal && f.Marker == "" {
			return i
		}
	}
	return -1
}

// PushMarker appends a bare marker frame — ATTEMPT_RESTART, ABORTED or
// ERROR.
func (m *Multiplexer) PushMarker(taskID string, subtaskIndex int, marker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.tasks[taskID]
	if !ok || q.closed {
		return
	}
	q.seq++
	q.frames = append(q.frames, shared.StreamFrame{
		SubtaskIndex: subtaskIndex,
		Sequence:     q.seq,
		Marker:       marker,
	})
	m.wake(q)
}

// Close marks a task's queue closed; further Push/PushMarker calls are
// ignored. Existing buffered frames remain readable via Drain.
func (m *Multiplexer) Close(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.tasks[taskID]; ok {
		q.closed = true
		m.wake(q)
	}
}

// Forget removes a task's queue entirely, once every subscriber has
// finished draining it.
func (m *Multiplexer) Forget(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
}

func (m *Multiplexer) wake(q *taskQueue) {
	close(q.notify)
	q.notify = make(chan struct{})
}

// Drain returns every frame buffered since the given sequence number
// (exclusive), the highest sequence now seen, and whether the queue is
// closed with nothing left to deliver.
func (m *Multiplexer) Drain(taskID string, since int) (frames []shared.StreamFrame, lastSeq int, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.tasks[taskID]
	if !ok {
		return nil, since, true
	}
	for _, f := range q.frames {
		if f.Sequence > since {
			frames = append(frames, f)
		}
	}
	lastSeq = since
	if len(q.frames) > 0 {
		lastSeq = q.frames[len(q.frames)-1].Sequence
	}
	return frames, lastSeq, q.closed && lastSeq == since && len(frames) == 0
}

// Wait blocks until new frames arrive on a task's queue or it is
// closed, whichever comes first. Callers pair it with Drain in a poll
// loop for SSE delivery.
func (m *Multiplexer) Wait(taskID string) <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.tasks[taskID]
	if !ok {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return q.notify
}

// IsClosed reports whether a task's queue has been closed.
func (m *Multiplexer) IsClosed(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.tasks[taskID]
	return !ok || q.closed
}
