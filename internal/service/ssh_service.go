package service

import (
	"context"

	"meteor-deploy-manager/internal/config"
	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/logger"
	"meteor-deploy-manager/internal/pkg/pipeline"
	"meteor-deploy-manager/internal/pkg/ssh"
)

// Connector opens the one remote session an invocation runs on.
type Connector interface {
	Connect(ctx context.Context, env model.Environment, opts model.ProjectOptions) (pipeline.Session, error)
}

type SSHService struct {
	settings config.SSHConfig
	logger   *logger.Logger
}

func NewSSHService(settings config.SSHConfig, logger *logger.Logger) *SSHService {
	return &SSHService{
		settings: settings,
		logger:   logger,
	}
}

func (s *SSHService) Connect(ctx context.Context, env model.Environment, opts model.ProjectOptions) (pipeline.Session, error) {
	s.logger.SSHConnectionAttempt(env.AuthType(), env.Address())

	client := ssh.NewClient(ssh.SSHConfig{
		Host:           env.Hostname,
		Port:           env.Port,
		Username:       env.Username,
		Password:       env.Password,
		PrivateKeyPath: env.PrivateKeyPath,
		Insecure:       opts.Insecure,
		KnownHostsPath: s.settings.KnownHostsFile,
		ConnectTimeout: s.settings.ConnectTimeoutDuration(),
		AuthTimeout:    s.settings.AuthTimeoutDuration(),
	})
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	s.logger.Infof("Connected to %s as %s", env.Address(), env.Username)
	return client, nil
}
