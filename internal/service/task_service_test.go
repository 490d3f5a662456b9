package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/logger"
	"meteor-deploy-manager/pkg/utils"
)

func newTestTaskService(connector *fakeConnector) *TaskService {
	load := func() (*model.DeploymentConfig, error) { return testConfig(), nil }
	return NewTaskService(newTestDeployService(connector), load, logger.Nop())
}

func waitDone(t *testing.T, s *TaskService, id string) {
	t.Helper()
	done, err := s.Done(id)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("task %s did not finish", id)
	}
}

func TestTaskSucceeds(t *testing.T) {
	s := newTestTaskService(&fakeConnector{})

	id, err := s.Start(model.DeployRequest{Environment: "staging", Action: "restart"})
	require.NoError(t, err)
	waitDone(t, s, id)

	progress, err := s.Progress(id)
	require.NoError(t, err)
	assert.True(t, progress.Success)
	assert.Equal(t, StatusSuccess, progress.Status)
	assert.Equal(t, float64(100), progress.Progress)
	assert.Equal(t, "Restarting", progress.Step)
	assert.Equal(t, "staging", progress.Environment)
	assert.Equal(t, "restart", progress.Action)
	assert.Contains(t, progress.Logs, "Restarting")
}

func TestTaskFailureRecordsError(t *testing.T) {
	session := newFakeSession()
	session.exits["sudo stop"] = 1
	s := newTestTaskService(&fakeConnector{sessions: map[string]*fakeSession{"staging": session}})

	id, err := s.Start(model.DeployRequest{Environment: "staging", Action: "stop"})
	require.NoError(t, err)
	waitDone(t, s, id)

	progress, err := s.Progress(id)
	require.NoError(t, err)
	assert.False(t, progress.Success)
	assert.Equal(t, StatusError, progress.Status)
	assert.Contains(t, progress.Error, "Stopping exited with code 1")
}

func TestTaskRejectsBusyEnvironment(t *testing.T) {
	session := newFakeSession()
	session.hold = "sudo stop app && sudo start"
	s := newTestTaskService(&fakeConnector{sessions: map[string]*fakeSession{"staging": session}})

	first, err := s.Start(model.DeployRequest{Environment: "staging", Action: "restart"})
	require.NoError(t, err)

	_, err = s.Start(model.DeployRequest{Environment: "staging", Action: "stop"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnvironmentBusy))
	assert.Contains(t, err.Error(), first)

	other, err := s.Start(model.DeployRequest{Environment: "production", Action: "restart"})
	require.NoError(t, err)
	waitDone(t, s, other)

	close(session.release)
	waitDone(t, s, first)

	again, err := s.Start(model.DeployRequest{Environment: "staging", Action: "start"})
	require.NoError(t, err)
	waitDone(t, s, again)
}

func TestTaskStartValidation(t *testing.T) {
	s := newTestTaskService(&fakeConnector{})

	_, err := s.Start(model.DeployRequest{Environment: "staging", Action: "destroy"})
	assert.True(t, utils.IsKind(err, utils.KindConfig))

	_, err = s.Start(model.DeployRequest{Environment: "qa", Action: "deploy"})
	assert.True(t, utils.IsKind(err, utils.KindConfig))

	failing := NewTaskService(newTestDeployService(&fakeConnector{}), func() (*model.DeploymentConfig, error) {
		return nil, utils.NewConfigError("deploy.json not found")
	}, logger.Nop())
	_, err = failing.Start(model.DeployRequest{Environment: "staging", Action: "deploy"})
	assert.EqualError(t, err, "deploy.json not found")
}

func TestTaskNotFound(t *testing.T) {
	s := newTestTaskService(&fakeConnector{})

	_, err := s.Progress("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, _, _, err = s.Subscribe("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = s.Done("missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSubscribeAfterFinishReplaysEverything(t *testing.T) {
	s := newTestTaskService(&fakeConnector{})

	id, err := s.Start(model.DeployRequest{Environment: "staging", Action: "rollback"})
	require.NoError(t, err)
	waitDone(t, s, id)

	replay, events, cancel, err := s.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	require.Len(t, replay, 7)
	assert.Equal(t, model.StreamStepStarted, replay[0].Type)
	assert.Equal(t, "Relinking Previous Build", replay[0].Label)
	assert.Equal(t, 3, replay[0].Total)
	assert.Equal(t, model.StreamDone, replay[6].Type)
	assert.Equal(t, StatusSuccess, replay[6].Status)

	_, open := <-events
	assert.False(t, open)
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	session := newFakeSession()
	session.hold = "sudo start"
	s := newTestTaskService(&fakeConnector{sessions: map[string]*fakeSession{"staging": session}})

	id, err := s.Start(model.DeployRequest{Environment: "staging", Action: "start"})
	require.NoError(t, err)

	replay, events, cancel, err := s.Subscribe(id)
	require.NoError(t, err)
	defer cancel()
	close(session.release)

	all := append([]model.StreamEvent(nil), replay...)
	for e := range events {
		all = append(all, e)
	}
	require.NotEmpty(t, all)
	assert.Equal(t, model.StreamDone, all[len(all)-1].Type)
	assert.Equal(t, model.StreamStepStarted, all[0].Type)
}

func TestShutdownInterruptsRunningTasks(t *testing.T) {
	session := newFakeSession()
	session.hold = "sudo stop app && sudo start"
	s := newTestTaskService(&fakeConnector{sessions: map[string]*fakeSession{"staging": session}})

	id, err := s.Start(model.DeployRequest{Environment: "staging", Action: "restart"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	progress, err := s.Progress(id)
	require.NoError(t, err)
	assert.Equal(t, StatusError, progress.Status)
	assert.Contains(t, progress.Error, "interrupted")
	assert.True(t, session.isClosed())
}
