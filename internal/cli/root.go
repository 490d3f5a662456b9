// Package cli wires the mdm command line onto the deploy service.
package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"meteor-deploy-manager/internal/config"
	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/deployconf"
	"meteor-deploy-manager/internal/pkg/logger"
	"meteor-deploy-manager/internal/service"
	"meteor-deploy-manager/pkg/utils"
)

const defaultEnvironment = "staging"

var shortHelp = map[model.Action]string{
	model.ActionDeploy:   "Bundle the current branch and make it the live build",
	model.ActionRollback: "Return to the previous build and discard the latest",
	model.ActionStart:    "Start the application service",
	model.ActionStop:     "Stop the application service",
	model.ActionRestart:  "Restart the application service",
}

type globalFlags struct {
	verbose     bool
	projectPath string
	configFile  string
	environment string
}

// connectorFunc builds the connector an action runs on. Tests swap it out.
type connectorFunc func(settings config.SSHConfig, log *logger.Logger) service.Connector

func sshConnector(settings config.SSHConfig, log *logger.Logger) service.Connector {
	return service.NewSSHService(settings, log)
}

func NewRootCommand(out io.Writer, settings *config.Config) *cobra.Command {
	return newRootCommand(out, settings, sshConnector)
}

func newRootCommand(out io.Writer, settings *config.Config, connect connectorFunc) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "mdm",
		Short:         "Deploy and manage Meteor applications over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Show debug output, including the output of quiet steps")
	pf.StringVarP(&flags.projectPath, "project-path", "p", settings.Project.Path, "Directory holding the configuration file")
	pf.StringVarP(&flags.configFile, "config-file", "c", settings.Project.ConfigFile, "Configuration file name")
	pf.StringVarP(&flags.environment, "environment", "e", defaultEnvironment, "Environment to act on")

	for _, action := range model.Actions() {
		cmd.AddCommand(newActionCommand(out, settings, flags, action, connect))
	}
	cmd.AddCommand(newGenerateCommand(out, flags))
	return cmd
}

func (f *globalFlags) configPath() string {
	return filepath.Join(f.projectPath, f.configFile)
}

func newActionCommand(out io.Writer, settings *config.Config, flags *globalFlags, action model.Action, connect connectorFunc) *cobra.Command {
	return &cobra.Command{
		Use:   string(action),
		Short: shortHelp[action],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.NewLogger(logger.Options{
				Level:     settings.Logging.Level,
				Format:    settings.Logging.Format,
				Verbose:   flags.verbose,
				File:      settings.Logging.File,
				MaxSizeMB: settings.Logging.MaxSizeMB,
				MaxFiles:  settings.Logging.MaxFiles,
				Output:    out,
			})
			if err != nil {
				return utils.WrapConfigError("logging settings", err)
			}
			defer log.Sync()

			err = runAction(cmd, settings, flags, action, connect(settings.SSH, log), log)
			if err != nil {
				reportFailure(log, err)
			}
			return err
		},
	}
}

func runAction(cmd *cobra.Command, settings *config.Config, flags *globalFlags, action model.Action, connector service.Connector, log *logger.Logger) error {
	path := flags.configPath()
	cfg, err := deployconf.Load(path)
	if err != nil {
		return err
	}
	if flags.verbose {
		dump, err := deployconf.Serialize(deployconf.Redacted(cfg))
		if err == nil {
			log.Debugf("Processed configuration from %s:\n%s", path, dump)
		}
	}

	deploy := service.NewDeployService(connector, settings.SSH.StepTimeoutDuration(), log)
	_, err = deploy.Run(cmd.Context(), service.RunRequest{
		Config:      cfg,
		Environment: flags.environment,
		Action:      action,
		Verbose:     flags.verbose,
	})
	return err
}

// reportFailure logs everything an operator needs to diagnose a failed run.
func reportFailure(log *logger.Logger, err error) {
	var de *utils.DeployError
	if !errors.As(err, &de) {
		log.Error(err.Error())
		return
	}
	fields := []any{"kind", string(de.Kind), "code", de.Code}
	if de.Step != "" {
		fields = append(fields, "step", de.Step)
	}
	if de.Command != "" {
		fields = append(fields, "command", de.Command)
	}
	if de.Host != "" {
		fields = append(fields, "host", de.Host)
	}
	if de.Kind == utils.KindStep {
		fields = append(fields, "exitCode", de.RemoteExit)
	}
	log.Errorw(de.Error(), fields...)
}

func newGenerateCommand(out io.Writer, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Write a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath()
			if err := deployconf.WriteSample(path); err != nil {
				return utils.WrapConfigError(path, err)
			}
			_, err := fmt.Fprintf(out, "Wrote a sample configuration to %s\n", path)
			return err
		},
	}
}
