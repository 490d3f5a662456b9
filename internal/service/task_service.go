package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/logger"
	"meteor-deploy-manager/internal/pkg/pipeline"
	"meteor-deploy-manager/pkg/utils"
)

const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// subscriberBuffer is how many events a slow stream reader may fall behind
// before it is dropped.
const subscriberBuffer = 256

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrEnvironmentBusy = errors.New("environment is busy")
)

// ConfigLoader returns the deployment configuration a task runs against. It is
// called once per task so edits to deploy.json apply to the next run.
type ConfigLoader func() (*model.DeploymentConfig, error)

// TaskService runs invocations in the background for the HTTP surface. At most
// one task runs per environment, since each owns the environment's session.
type TaskService struct {
	deploy *DeployService
	load   ConfigLoader
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*Task
	busy  map[string]string
}

func NewTaskService(deploy *DeployService, load ConfigLoader, logger *logger.Logger) *TaskService {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskService{
		deploy: deploy,
		load:   load,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*Task),
		busy:   make(map[string]string),
	}
}

// Start validates the request, loads the configuration and launches the task.
func (s *TaskService) Start(req model.DeployRequest) (string, error) {
	action, err := model.ParseAction(req.Action)
	if err != nil {
		return "", utils.NewConfigError("%v", err)
	}
	cfg, err := s.load()
	if err != nil {
		return "", err
	}
	if _, ok := cfg.Environment(req.Environment); !ok {
		return "", utils.NewConfigError("environment %q is not defined", req.Environment)
	}

	s.mu.Lock()
	if running, ok := s.busy[req.Environment]; ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s is running task %s", ErrEnvironmentBusy, req.Environment, running)
	}
	task := newTask(uuid.New().String(), req.Environment, action)
	s.tasks[task.id] = task
	s.busy[req.Environment] = task.id
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Infof("Task %s: %s of %s started", task.id, action, req.Environment)
	go s.run(task, cfg, req.Verbose)
	return task.id, nil
}

func (s *TaskService) run(task *Task, cfg *model.DeploymentConfig, verbose bool) {
	defer s.wg.Done()

	_, err := s.deploy.Run(s.ctx, RunRequest{
		Config:      cfg,
		Environment: task.environment,
		Action:      task.action,
		Verbose:     verbose,
		Reporter:    task,
	})
	if err != nil {
		s.logger.Errorf("Task %s failed: %v", task.id, err)
	} else {
		s.logger.Infof("Task %s succeeded", task.id)
	}

	s.mu.Lock()
	delete(s.busy, task.environment)
	s.mu.Unlock()
	task.finish(err)
}

func (s *TaskService) task(id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *TaskService) Progress(id string) (model.ProgressResponse, error) {
	task, err := s.task(id)
	if err != nil {
		return model.ProgressResponse{}, err
	}
	return task.snapshot(), nil
}

// Subscribe returns the events recorded so far and a channel carrying the rest.
// The channel is closed after the done event, or early if the reader falls too
// far behind. cancel releases the subscription.
func (s *TaskService) Subscribe(id string) (replay []model.StreamEvent, events <-chan model.StreamEvent, cancel func(), err error) {
	task, err := s.task(id)
	if err != nil {
		return nil, nil, nil, err
	}
	replay, events, cancel = task.subscribe()
	return replay, events, cancel, nil
}

// Done returns a channel closed when the task has finished.
func (s *TaskService) Done(id string) (<-chan struct{}, error) {
	task, err := s.task(id)
	if err != nil {
		return nil, err
	}
	return task.done, nil
}

// Shutdown interrupts running tasks and waits for their sessions to close.
func (s *TaskService) Shutdown(ctx context.Context) error {
	s.cancel()
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Task records the progress of one background invocation.
type Task struct {
	id          string
	environment string
	action      model.Action
	done        chan struct{}

	mu          sync.Mutex
	progress    model.ProgressResponse
	events      []model.StreamEvent
	subscribers map[chan model.StreamEvent]struct{}
	finished    bool
}

func newTask(id, environment string, action model.Action) *Task {
	return &Task{
		id:          id,
		environment: environment,
		action:      action,
		done:        make(chan struct{}),
		progress: model.ProgressResponse{
			Success:     true,
			TaskID:      id,
			Environment: environment,
			Action:      string(action),
			Status:      StatusRunning,
			Logs:        []string{fmt.Sprintf("%s of %s started", action, environment)},
		},
		subscribers: make(map[chan model.StreamEvent]struct{}),
	}
}

// Report implements pipeline.Reporter.
func (t *Task) Report(e pipeline.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	event := model.StreamEvent{Index: e.Index, Total: e.Total, Label: e.Step.Label}
	switch e.Kind {
	case pipeline.EventStepStarted:
		event.Type = model.StreamStepStarted
		t.progress.Step = e.Step.Label
		t.progress.Logs = append(t.progress.Logs, e.Step.Label)
	case pipeline.EventOutput:
		event.Type = model.StreamOutput
		event.Line = e.Line
		t.progress.Logs = append(t.progress.Logs, fmt.Sprintf("%s: %s", e.Step.Label, e.Line))
	case pipeline.EventStepFinished:
		event.Type = model.StreamStepFinished
		event.ExitCode = e.ExitCode
		if e.ExitCode == 0 && e.Total > 0 {
			t.progress.Progress = float64((e.Index+1)*100) / float64(e.Total)
		}
	default:
		return
	}
	t.publish(event)
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	event := model.StreamEvent{Type: model.StreamDone}
	if err != nil {
		t.progress.Success = false
		t.progress.Status = StatusError
		t.progress.Error = err.Error()
		t.progress.Logs = append(t.progress.Logs, err.Error())
		event.Error = err.Error()
	} else {
		t.progress.Status = StatusSuccess
		t.progress.Progress = 100
		t.progress.Logs = append(t.progress.Logs, fmt.Sprintf("%s of %s completed", t.action, t.environment))
	}
	event.Status = t.progress.Status
	t.publish(event)

	t.finished = true
	for ch := range t.subscribers {
		close(ch)
	}
	t.subscribers = nil
	close(t.done)
}

// publish must be called with t.mu held.
func (t *Task) publish(event model.StreamEvent) {
	t.events = append(t.events, event)
	for ch := range t.subscribers {
		select {
		case ch <- event:
		default:
			delete(t.subscribers, ch)
			close(ch)
		}
	}
}

func (t *Task) subscribe() ([]model.StreamEvent, <-chan model.StreamEvent, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	replay := append([]model.StreamEvent(nil), t.events...)
	ch := make(chan model.StreamEvent, subscriberBuffer)
	if t.finished {
		close(ch)
		return replay, ch, func() {}
	}
	t.subscribers[ch] = struct{}{}
	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.subscribers[ch]; ok {
			delete(t.subscribers, ch)
			close(ch)
		}
	}
	return replay, ch, cancel
}

func (t *Task) snapshot() model.ProgressResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.progress
	p.Logs = append([]string(nil), t.progress.Logs...)
	return p
}
