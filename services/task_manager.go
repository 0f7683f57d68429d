package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskStatus is the inspectable state of a background task.
type TaskStatus struct {
	Ready      bool `json:"ready"`
	Successful bool `json:"successful"`
	Value      any  `json:"value,omitempty"`
}

type backgroundTask struct {
	name   string
	jobID  uuid.UUID
	cancel context.CancelFunc
	ready  bool
	value  any
	err    error
}

// TaskManager dispatches fire-and-forget background tasks on a gocron
// scheduler and keeps their results for later inspection. Cancellation is
// advisory: Cancel only cancels the task's context, the task itself decides
// when to observe it. Task errors are logged and recorded, never fatal to the
// scheduler or to other tasks.
type TaskManager struct {
	mu    sync.Mutex
	sched gocron.Scheduler
	tasks map[string]*backgroundTask
}

func NewTaskManager() (*TaskManager, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()
	return &TaskManager{
		sched: sched,
		tasks: make(map[string]*backgroundTask),
	}, nil
}

// Submit schedules fn to run once after delay and returns a task handle.
func (tm *TaskManager) Submit(name string, delay time.Duration, fn func(ctx context.Context) (any, error)) (string, error) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	start := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	}

	job, err := tm.sched.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[TASKS] ⚠️ task %s (%s) panicked: %v", name, id, r)
					tm.finish(id, nil, fmt.Errorf("task panic: %v", r))
				}
			}()
			value, err := fn(ctx)
			if err != nil {
				log.Printf("[TASKS] task %s (%s) failed: %v", name, id, err)
			}
			tm.finish(id, value, err)
		}),
	)
	if err != nil {
		cancel()
		return "", err
	}

	tm.mu.Lock()
	tm.tasks[id] = &backgroundTask{name: name, jobID: job.ID(), cancel: cancel}
	tm.mu.Unlock()

	log.Printf("[TASKS] scheduled %s (%s) with delay %s", name, id, delay)
	return id, nil
}

// Result reports {ready, successful, value} for a task handle.
func (tm *TaskManager) Result(id string) (TaskStatus, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t, ok := tm.tasks[id]
	if !ok {
		return TaskStatus{}, ErrTaskNotFound
	}
	return TaskStatus{
		Ready:      t.ready,
		Successful: t.ready && t.err == nil,
		Value:      t.value,
	}, nil
}

// Cancel requests cooperative cancellation. A task that has not started yet
// is removed from the scheduler outright; a running task keeps running until
// it next checks its context.
func (tm *TaskManager) Cancel(id string) error {
	tm.mu.Lock()
	t, ok := tm.tasks[id]
	tm.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}

	t.cancel()
	_ = tm.sched.RemoveJob(t.jobID) // no-op if already running or done
	log.Printf("[TASKS] cancellation requested for %s (%s)", t.name, id)
	return nil
}

// Shutdown stops the scheduler. Running tasks get their contexts cancelled.
func (tm *TaskManager) Shutdown() error {
	tm.mu.Lock()
	for _, t := range tm.tasks {
		t.cancel()
	}
	tm.mu.Unlock()
	return tm.sched.Shutdown()
}

func (tm *TaskManager) finish(id string, value any, err error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t, ok := tm.tasks[id]
	if !ok {
		return
	}
	t.ready = true
	t.value = value
	t.err = err
}
