package meteor

import (
	"time"

	"github.com/kballard/go-shellquote"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/pkg/utils"
)

var serviceLabels = map[model.Action]string{
	model.ActionStart:   "Starting",
	model.ActionStop:    "Stopping",
	model.ActionRestart: "Restarting",
}

// Builder turns an action into the ordered shell steps for one environment. It
// holds no state; the same inputs always produce the same sequence.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Build(action model.Action, env model.Environment, opts model.ProjectOptions, now time.Time) (model.CommandSequence, error) {
	if env.DeploymentDirectory == "" {
		return nil, utils.NewConfigError("the '%s' environment does not include a deployment directory", env.Name)
	}
	if env.TaskName == "" {
		return nil, utils.NewConfigError("the '%s' environment does not include a task name", env.Name)
	}

	var steps model.CommandSequence
	var err error
	switch action {
	case model.ActionDeploy:
		steps, err = b.deploy(env, opts, now)
	case model.ActionRollback:
		steps = b.rollback(env)
	case model.ActionRestart:
		steps = model.CommandSequence{b.restart(env)}
	case model.ActionStart, model.ActionStop:
		steps = model.CommandSequence{{
			Label:   serviceLabels[action],
			Command: serviceCommand(string(action), env.TaskName),
		}}
	default:
		return nil, utils.NewConfigError("unknown action: %q", action)
	}
	if err != nil {
		return nil, err
	}

	for i := range steps {
		steps[i].Command = scoped(env.DeploymentDirectory, steps[i].Command)
	}
	return steps, nil
}

func (b *Builder) deploy(env model.Environment, opts model.ProjectOptions, now time.Time) (model.CommandSequence, error) {
	keep := opts.KeepBuilds(env)
	prune, err := RetentionCommand(keep)
	if err != nil {
		return nil, utils.NewConfigError("the '%s' environment: %v", env.Name, err)
	}
	build, err := BuildName(now)
	if err != nil {
		return nil, utils.NewConfigError("%v", err)
	}
	if !opts.UseAlternatePackageManager && opts.MeteorRelease == "" {
		return nil, utils.NewConfigError("options do not include a meteorRelease")
	}

	branch := quote(env.GitBranch)
	buildPath := buildsDir + "/" + build

	steps := model.CommandSequence{
		{Label: "Path to Node.js", Command: "which node", Quiet: true},
		{Label: "Path to NPM", Command: "which npm", Quiet: true},
		{Label: "Node.js Version", Command: "node --version"},
		{Label: "NPM Version", Command: "npm --version"},
		{
			Label: "Updating Code",
			Command: "cd " + sourceDir + " && git fetch origin && git checkout " + branch +
				" && git pull origin " + branch,
		},
		{Label: "Pruning Builds", Command: prune},
		{Label: "Creating Build Directory", Command: "mkdir -p " + buildPath},
		b.bundle(opts),
		{Label: "Extracting", Command: "tar -xzf " + bundleFile + " -C " + buildPath},
		{Label: "Linking Current Build", Command: relinkCommand(build)},
	}
	if NeedsServerInstall(opts.UseAlternatePackageManager, opts.MeteorRelease) {
		steps = append(steps, model.Step{
			Label:   "Installing Server Dependencies",
			Command: "cd " + buildsDir + "/" + currentLink + "/" + serverProgramDir + " && npm install",
		})
	}
	steps = append(steps, b.restart(env))
	return steps, nil
}

func (b *Builder) bundle(opts model.ProjectOptions) model.Step {
	if opts.UseAlternatePackageManager {
		return model.Step{Label: "Bundling", Command: "cd " + sourceDir + " && mrt bundle ../" + bundleFile}
	}
	return model.Step{
		Label:   "Bundling",
		Command: "cd " + sourceDir + " && " + shellquote.Join("meteor", "bundle", "../"+bundleFile, "--release", opts.MeteorRelease),
	}
}

func (b *Builder) rollback(env model.Environment) model.CommandSequence {
	return model.CommandSequence{
		{Label: "Relinking Previous Build", Command: RollbackRelinkCommand()},
		{Label: "Removing Latest Build", Command: RemoveLatestCommand()},
		b.restart(env),
	}
}

// restart is stop followed by start. A job that is not running fails at stop.
func (b *Builder) restart(env model.Environment) model.Step {
	return model.Step{
		Label:   serviceLabels[model.ActionRestart],
		Command: serviceCommand("stop", env.TaskName) + " && " + serviceCommand("start", env.TaskName),
	}
}
