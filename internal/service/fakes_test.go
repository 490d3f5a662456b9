package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/pipeline"
	"meteor-deploy-manager/internal/pkg/ssh"
)

// fakeSession answers each command from exits, keyed by a substring of the
// command. Commands matching hold stay running until release or Close.
type fakeSession struct {
	mu       sync.Mutex
	exits    map[string]int
	hold     string
	output   string
	commands []string
	closed   bool
	release  chan struct{}
	stop     chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		exits:   map[string]int{},
		release: make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

func (f *fakeSession) Exec(command string) (*ssh.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("session closed")
	}
	f.commands = append(f.commands, command)

	code := 0
	for match, c := range f.exits {
		if strings.Contains(command, match) {
			code = c
		}
	}
	if f.hold != "" && strings.Contains(command, f.hold) {
		pr, pw := io.Pipe()
		result := make(chan error, 1)
		go func() {
			select {
			case <-f.release:
				result <- nil
			case <-f.stop:
				result <- errors.New("connection closed")
			}
			_ = pw.Close()
		}()
		return ssh.NewStream(pr, func() (int, error) {
			if err := <-result; err != nil {
				return -1, err
			}
			return code, nil
		}), nil
	}
	return ssh.NewStream(strings.NewReader(f.output), func() (int, error) { return code, nil }), nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.stop)
	}
	return nil
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSession) dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

type fakeConnector struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	err      error
	connects int
}

func (c *fakeConnector) Connect(_ context.Context, env model.Environment, _ model.ProjectOptions) (pipeline.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.err != nil {
		return nil, c.err
	}
	session, ok := c.sessions[env.Name]
	if !ok {
		session = newFakeSession()
		if c.sessions == nil {
			c.sessions = map[string]*fakeSession{}
		}
		c.sessions[env.Name] = session
	}
	return session, nil
}

func (c *fakeConnector) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func testConfig() *model.DeploymentConfig {
	env := func(name, host string) model.Environment {
		return model.Environment{
			Name:                name,
			Hostname:            host,
			Port:                22,
			Username:            "meteor",
			Password:            "secret",
			DeploymentDirectory: "/srv/app",
			TaskName:            "app",
			GitBranch:           "master",
			BuildsToKeep:        5,
		}
	}
	return &model.DeploymentConfig{
		Environments: map[string]model.Environment{
			"staging":    env("staging", "staging.example.com"),
			"production": env("production", "app.example.com"),
		},
		Options: model.ProjectOptions{MeteorRelease: "1.0"},
	}
}
