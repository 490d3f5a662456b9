package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/logger"
	"meteor-deploy-manager/internal/pkg/meteor"
	"meteor-deploy-manager/internal/pkg/pipeline"
	"meteor-deploy-manager/pkg/utils"
)

type RunRequest struct {
	Config      *model.DeploymentConfig
	Environment string
	Action      model.Action
	Verbose     bool
	// Reporter receives step events. Nil logs them.
	Reporter pipeline.Reporter
}

type DeployService struct {
	connector   Connector
	builder     *meteor.Builder
	logger      *logger.Logger
	stepTimeout time.Duration
	now         func() time.Time
}

func NewDeployService(connector Connector, stepTimeout time.Duration, logger *logger.Logger) *DeployService {
	return &DeployService{
		connector:   connector,
		builder:     meteor.NewBuilder(),
		logger:      logger,
		stepTimeout: stepTimeout,
		now:         time.Now,
	}
}

// Run performs one action against one environment. The command sequence is
// built before connecting, so a config problem never opens a session. Whatever
// happens, the session is closed when Run returns.
func (s *DeployService) Run(ctx context.Context, req RunRequest) (*pipeline.Result, error) {
	if req.Config == nil {
		return nil, utils.NewConfigError("no deployment configuration loaded")
	}
	env, ok := req.Config.Environment(req.Environment)
	if !ok {
		return nil, utils.NewConfigError("environment %q is not defined (available: %s)",
			req.Environment, strings.Join(req.Config.EnvironmentNames(), ", "))
	}

	seq, err := s.builder.Build(req.Action, env, req.Config.Options, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Debugf("Built %d steps for %s on %s: %s", len(seq), req.Action, env.Name, strings.Join(seq.Labels(), ", "))

	session, err := s.connector.Connect(ctx, env, req.Config.Options)
	if err != nil {
		var de *utils.DeployError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, utils.NewConnectionError(env.Address(), err)
	}

	reporter := req.Reporter
	if reporter == nil {
		reporter = LogReporter(s.logger)
	}
	executor := pipeline.NewExecutor(pipeline.Options{
		Host:        env.Hostname,
		Verbose:     req.Verbose,
		StepTimeout: s.stepTimeout,
		Reporter:    reporter,
		Logger:      s.logger,
	})

	result, err := executor.Run(ctx, session, seq)
	if err != nil {
		var de *utils.DeployError
		if errors.As(err, &de) {
			s.logger.DeploymentError(de.Step, err)
		}
		return result, err
	}
	s.logger.Infof("%s of %s completed", req.Action, env.Name)
	return result, nil
}

// LogReporter prints step labels and their output through log.
func LogReporter(log *logger.Logger) pipeline.Reporter {
	return pipeline.ReporterFunc(func(e pipeline.Event) {
		switch e.Kind {
		case pipeline.EventStepStarted:
			log.Infof("%s", e.Step.Label)
		case pipeline.EventOutput:
			log.Infof("%s: %s", e.Step.Label, e.Line)
		}
	})
}
