// Package pipeline runs a command sequence over one remote session, one step at
// a time, stopping at the first failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/logger"
	"meteor-deploy-manager/internal/pkg/ssh"
	"meteor-deploy-manager/pkg/utils"
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the part of a remote session the executor drives.
type Session interface {
	Exec(command string) (*ssh.Stream, error)
	Close() error
}

type EventKind int

const (
	EventStepStarted EventKind = iota
	EventOutput
	EventStepFinished
)

type Event struct {
	Kind     EventKind
	Index    int
	Total    int
	Step     model.Step
	Line     string
	ExitCode int
}

type Reporter interface {
	Report(Event)
}

type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

type Options struct {
	Host    string
	Verbose bool
	// StepTimeout of zero lets a step run until the remote command exits.
	StepTimeout time.Duration
	Reporter    Reporter
	Logger      *logger.Logger
}

type Result struct {
	State State
	// Index is the failed step, or the last step on success.
	Index      int
	Dispatched int
}

type Executor struct {
	opts Options

	mu    sync.Mutex
	state State
	index int
}

func NewExecutor(opts Options) *Executor {
	if opts.Reporter == nil {
		opts.Reporter = ReporterFunc(func(Event) {})
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Executor{opts: opts}
}

func (e *Executor) State() (State, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.index
}

func (e *Executor) transition(s State, index int) {
	e.mu.Lock()
	e.state = s
	e.index = index
	e.mu.Unlock()
}

// Run executes seq in order and closes session before returning, whatever the
// outcome. The returned error is a *utils.DeployError of kind exec or step.
func (e *Executor) Run(ctx context.Context, session Session, seq model.CommandSequence) (*Result, error) {
	defer session.Close()

	result := &Result{}
	for i, step := range seq {
		e.transition(StateRunning, i)
		result.Index = i
		e.opts.Logger.DeploymentStep(step.Label, e.opts.Host)
		e.opts.Logger.Debugf("Now executing: %s", step.Command)
		e.opts.Reporter.Report(Event{Kind: EventStepStarted, Index: i, Total: len(seq), Step: step})

		result.Dispatched++
		code, err := e.runStep(ctx, session, i, len(seq), step)
		if err != nil {
			e.transition(StateFailed, i)
			result.State = StateFailed
			return result, utils.NewExecError(step.Label, step.Command, e.opts.Host, err)
		}

		e.opts.Logger.Debugf("%s exited with code %d.", step.Command, code)
		e.opts.Reporter.Report(Event{Kind: EventStepFinished, Index: i, Total: len(seq), Step: step, ExitCode: code})
		if code != 0 {
			e.transition(StateFailed, i)
			result.State = StateFailed
			return result, utils.NewStepFailure(step.Label, step.Command, e.opts.Host, code)
		}
		e.opts.Logger.DeploymentSuccess(step.Label)
	}

	e.transition(StateSucceeded, result.Index)
	result.State = StateSucceeded
	return result, nil
}

func (e *Executor) runStep(ctx context.Context, session Session, index, total int, step model.Step) (int, error) {
	stream, err := session.Exec(step.Command)
	if err != nil {
		return 0, err
	}

	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.opts.StepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, e.opts.StepTimeout)
	}
	defer cancel()
	// Closing the session is the only way to abandon a remote command.
	stop := context.AfterFunc(stepCtx, func() { _ = session.Close() })
	defer stop()

	for line := range stream.Lines() {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if step.Quiet && !e.opts.Verbose {
			continue
		}
		e.opts.Reporter.Report(Event{Kind: EventOutput, Index: index, Total: total, Step: step, Line: line})
	}
	if err := stream.Err(); err != nil {
		e.opts.Logger.Warnf("%s: output ended early, the rest is discarded: %v", step.Label, err)
	}

	code, err := stream.Wait()
	if err != nil {
		if ctxErr := stepCtx.Err(); ctxErr != nil {
			if e.opts.StepTimeout > 0 && errors.Is(ctxErr, context.DeadlineExceeded) {
				return code, fmt.Errorf("timed out after %s", e.opts.StepTimeout)
			}
			return code, fmt.Errorf("interrupted: %w", ctxErr)
		}
	}
	return code, err
}
