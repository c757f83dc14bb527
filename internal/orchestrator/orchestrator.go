// Package orchestrator implements the Task Orchestrator: the state
// machine that carries a Task from submission through classification,
// division, dispatch, collection and aggregation, including
// timeout-driven reassignment and cancellation.
package orchestrator

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/iris-network/coordinator/internal/aggregator"
	"github.com/iris-network/coordinator/internal/classifier"
	"github.com/iris-network/coordinator/internal/config"
	"github.com/iris-network/coordinator/internal/ierr"
	"github.com/iris-network/coordinator/internal/protocol"
	"github.com/iris-network/coordinator/internal/registry"
	"github.com/iris-network/coordinator/internal/reputation"
	"github.com/iris-network/coordinator/internal/selection"
	"github.com/iris-network/coordinator/internal/shared"
	"github.com/iris-network/coordinator/internal/store"
	"github.com/iris-network/coordinator/internal/stream"
)

// Sender delivers a marshalled frame to a node, implemented by
// internal/protocol.Conn via the registry.
type Sender interface {
	Send(nodeID string, data []byte) error
}

// Orchestrator owns every in-flight Task.
type Orchestrator struct {
	cfg        config.Config
	registry   *registry.Registry
	selector   *selection.Policy
	classifier *classifier.Classifier
	aggregator *aggregator.Aggregator
	reputation *reputation.Engine
	mux        *stream.Multiplexer
	sender     Sender
	db         *store.DB
	log        *log.Logger

	mu      sync.RWMutex
	tasks   map[string]*shared.Task
	done    map[string]chan struct{} // closed when a task reaches a terminal status
	cancels map[string]context.CancelFunc
	waiters map[waiterKey]chan signal

	wg sync.WaitGroup
}

// Deps bundles an Orchestrator's collaborators for construction.
type Deps struct {
	Config     config.Config
	Registry   *registry.Registry
	Selector   *selection.Policy
	Classifier *classifier.Classifier
	Aggregator *aggregator.Aggregator
	Reputation *reputation.Engine
	Mux        *stream.Multiplexer
	Sender     Sender
	DB         *store.DB
	Logger     *log.Logger
}

// New creates an Orchestrator and starts its node-loss listener.
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[Orchestrator] ", log.LstdFlags)
	}
	o := &Orchestrator{
		cfg:        d.Config,
		registry:   d.Registry,
		selector:   d.Selector,
		classifier: d.Classifier,
		aggregator: d.Aggregator,
		reputation: d.Reputation,
		mux:        d.Mux,
		sender:     d.Sender,
		db:         d.DB,
		log:        logger,
		tasks:      make(map[string]*shared.Task),
		done:       make(map[string]chan struct{}),
		cancels:    make(map[string]context.CancelFunc),
	}
	go o.watchLostNodes()
	return o
}

// Submit creates a Task, assigns it an id, and runs its lifecycle
// asynchronously. It returns immediately with the task-id.
func (o *Orchestrator) Submit(ctx context.Context, prompt string, files []shared.AttachedFile, mode shared.DivisionMode, streaming bool, accountRef string) string {
	taskID := uuid.New().String()
	t := &shared.Task{
		TaskID:     taskID,
		Prompt:     prompt,
		Files:      files,
		Mode:       mode,
		Streaming:  streaming,
		CreatedAt:  time.Now(),
		AccountRef: accountRef,
		Status:     shared.StatusPending,
	}

	o.mu.Lock()
	o.tasks[taskID] = t
	o.done[taskID] = make(chan struct{})
	o.mu.Unlock()

	if streaming {
		o.mux.Open(taskID)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx, t)
	}()

	return taskID
}

// Task returns a copy of the task's current tracked state, or false if
// unknown.
func (o *Orchestrator) Task(taskID string) (shared.Task, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.tasks[taskID]
	if !ok {
		return shared.Task{}, false
	}
	return *t, true
}

// Stats returns the count of non-terminal tasks and a tally of
// terminal tasks by their final status, for the network-stats egress.
func (o *Orchestrator) Stats() (inFlight int, byStatus map[shared.TaskStatus]int) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	byStatus = make(map[shared.TaskStatus]int)
	for _, t := range o.tasks {
		if t.Status.IsTerminal() {
			byStatus[t.Status]++
		} else {
			inFlight++
		}
	}
	return inFlight, byStatus
}

// Cancel marks a task cancelled and propagates CANCEL frames to every
// node still holding one of its subtasks.
func (o *Orchestrator) Cancel(taskID string) bool {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	if !ok || t.Status.IsTerminal() {
		o.mu.Unlock()
		return false
	}
	t.Status = shared.StatusCancelled
	subs := append([]*shared.Subtask(nil), t.Subtasks...)
	streaming := t.Streaming
	cancel := o.cancels[taskID]
	o.mu.Unlock()

	for _, s := range subs {
		if s.AssignedNode != "" && !s.Status.IsTerminal() {
			o.sendCancel(t.TaskID, s)
		}
	}
	if streaming {
		o.mux.PushMarker(taskID, -1, "ABORTED")
	}
	if cancel != nil {
		cancel()
	}
	o.finish(t)
	return true
}

func (o *Orchestrator) sendCancel(taskID string, s *shared.Subtask) {
	f := protocol.Frame{Type: protocol.FrameCancel, TaskID: taskID, Subtask: s.Index}
	data, err := jsonMarshal(f)
	if err != nil {
		return
	}
	o.sender.Send(s.AssignedNode, data)
}

// Wait blocks until a task reaches a terminal status or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, taskID string) error {
	o.mu.RLock()
	ch, ok := o.done[taskID]
	o.mu.RUnlock()
	if !ok {
		return ierr.ErrProtocol
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish marks a task's done channel closed exactly once, records
// history, and closes its stream queue. The queue's buffered frames
// stay in the Multiplexer, readable via Drain.
func (o *Orchestrator) finish(t *shared.Task) {
	o.mu.Lock()
	ch, ok := o.done[t.TaskID]
	o.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ch:
		return // already finished
	default:
	}

	o.mux.Close(t.TaskID)

	if o.db != nil {
		nodes := map[string]bool{}
		for _, s := range t.Subtasks {
			if s.AssignedNode != "" {
				nodes[s.AssignedNode] = true
			}
		}
		nodeJSON := jsonKeys(nodes)
		if err := o.db.RecordTaskHistory(t.TaskID, string(t.Mode), string(t.Difficulty), t.CreatedAt, string(t.Status), time.Since(t.CreatedAt), nodeJSON); err != nil {
			o.log.Printf("record history for %s failed: %v", t.TaskID, err)
		}
	}

	close(ch)
}

// watchLostNodes drains the registry's lost-node notifications and
// fails every subtask still assigned to that node so reassignment can
// run.
func (o *Orchestrator) watchLostNodes() {
	for lost := range o.registry.LostSubtasks() {
		o.handleNodeLoss(lost.NodeID)
	}
}

func (o *Orchestrator) handleNodeLoss(nodeID string) {
	o.mu.RLock()
	var affected []*shared.Task
	for _, t := range o.tasks {
		if t.Status.IsTerminal() {
			continue
		}
		for _, s := range t.Subtasks {
			if s.AssignedNode == nodeID && !s.Status.IsTerminal() {
				affected = append(affected, t)
				break
			}
		}
	}
	o.mu.RUnlock()

	for _, t := range affected {
		o.wg.Add(1)
		go func(t *shared.Task) {
			defer o.wg.Done()
			o.reassignForNode(t, nodeID)
		}(t)
	}
}

// poolWithPanicSafety returns a conc pool capped at n goroutines. The
// pool recovers a subtask's panic so the other subtasks keep running,
// then re-raises it from Wait in the goroutine driving the task.
func poolWithPanicSafety(n int) *pool.Pool {
	return pool.New().WithMaxGoroutines(n)
}
