package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteor-deploy-manager/internal/config"
	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/logger"
	"meteor-deploy-manager/internal/pkg/pipeline"
	"meteor-deploy-manager/internal/pkg/ssh"
	"meteor-deploy-manager/internal/service"
)

type scriptedSession struct {
	mu       sync.Mutex
	failOn   string
	commands []string
	closed   bool
}

func (s *scriptedSession) Exec(command string) (*ssh.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, command)
	code := 0
	if s.failOn != "" && strings.Contains(command, s.failOn) {
		code = 1
	}
	return ssh.NewStream(strings.NewReader("ok\n"), func() (int, error) { return code, nil }), nil
}

func (s *scriptedSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type scriptedConnector struct {
	session *scriptedSession
	err     error
	hosts   []string
}

func (c *scriptedConnector) Connect(_ context.Context, env model.Environment, _ model.ProjectOptions) (pipeline.Session, error) {
	c.hosts = append(c.hosts, env.Hostname)
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

func testSettings(dir string) *config.Config {
	return &config.Config{
		Logging: config.LoggingConfig{Level: "info", Format: "console"},
		Project: config.ProjectConfig{Path: dir, ConfigFile: "deploy.json"},
	}
}

func runCLI(t *testing.T, settings *config.Config, connector service.Connector, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out, settings, func(config.SSHConfig, *logger.Logger) service.Connector {
		return connector
	})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var withExitCode interface{ ExitCode() int }
	require.True(t, errors.As(err, &withExitCode), "error %v has no exit code", err)
	return withExitCode.ExitCode()
}

func TestRootHasFlagsAndCommands(t *testing.T) {
	cmd := NewRootCommand(&bytes.Buffer{}, testSettings(""))

	for _, name := range []string{"verbose", "project-path", "config-file", "environment"} {
		require.NotNilf(t, cmd.PersistentFlags().Lookup(name), "missing flag %q", name)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
	assert.Equal(t, "deploy.json", cmd.PersistentFlags().Lookup("config-file").DefValue)
	assert.Equal(t, "staging", cmd.PersistentFlags().Lookup("environment").DefValue)

	for _, name := range []string{"deploy", "rollback", "start", "stop", "restart", "generate"} {
		_, _, err := cmd.Find([]string{name})
		require.NoErrorf(t, err, "expected command %q", name)
	}
}

func TestGenerateRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, testSettings(dir), nil, "generate")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "deploy.json"))
	_, err = os.Stat(filepath.Join(dir, "deploy.json"))
	require.NoError(t, err)

	_, err = runCLI(t, testSettings(dir), nil, "generate")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(t, err))
}

func TestActionWithoutConfigFile(t *testing.T) {
	connector := &scriptedConnector{session: &scriptedSession{}}
	_, err := runCLI(t, testSettings(t.TempDir()), connector, "deploy")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(t, err))
	assert.Empty(t, connector.hosts)
}

func TestRestartRunsAgainstSelectedEnvironment(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, testSettings(dir), nil, "generate")
	require.NoError(t, err)

	session := &scriptedSession{}
	connector := &scriptedConnector{session: session}
	out, err := runCLI(t, testSettings(dir), connector, "restart", "-e", "production")
	require.NoError(t, err)

	assert.Equal(t, []string{"example.com"}, connector.hosts)
	assert.Equal(t, []string{"cd /srv/app && sudo stop app && sudo start app"}, session.commands)
	assert.True(t, session.closed)
	assert.Contains(t, out, "Restarting")
}

func TestStepFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, testSettings(dir), nil, "generate")
	require.NoError(t, err)

	session := &scriptedSession{failOn: "sudo stop"}
	out, err := runCLI(t, testSettings(dir), &scriptedConnector{session: session}, "stop")
	require.Error(t, err)
	assert.Equal(t, 5, exitCode(t, err))
	assert.Contains(t, out, "Stopping exited with code 1")
	assert.Contains(t, out, "staging.example.com")
	assert.True(t, session.closed)
}

func TestConnectionFailureExitCode(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, testSettings(dir), nil, "generate")
	require.NoError(t, err)

	connector := &scriptedConnector{err: errors.New("dial tcp: connection refused")}
	_, err = runCLI(t, testSettings(dir), connector, "start")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(t, err))
}

func TestUnknownEnvironment(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, testSettings(dir), nil, "generate")
	require.NoError(t, err)

	connector := &scriptedConnector{session: &scriptedSession{}}
	_, err = runCLI(t, testSettings(dir), connector, "deploy", "--environment", "qa")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(t, err))
	assert.Empty(t, connector.hosts)
}

func TestVerboseDumpsRedactedConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, testSettings(dir), nil, "generate")
	require.NoError(t, err)

	connector := &scriptedConnector{session: &scriptedSession{}}
	out, err := runCLI(t, testSettings(dir), connector, "restart", "-v", "-e", "production")
	require.NoError(t, err)
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "change-me")
}
