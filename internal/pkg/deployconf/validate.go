// Package deployconf turns a decoded deploy.json into a validated
// DeploymentConfig. Unrecognized fields are dropped so older tools keep working
// with newer files.
package deployconf

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/internal/pkg/meteor"
	"meteor-deploy-manager/pkg/utils"
)

// Validate applies defaults and rejects incomplete input. It never returns a
// partial config alongside an error.
func Validate(raw map[string]any) (*model.DeploymentConfig, error) {
	rawEnvs, ok := raw["environments"]
	if !ok || rawEnvs == nil {
		return nil, utils.NewConfigError("configuration does not include any environments")
	}
	envMap, ok := rawEnvs.(map[string]any)
	if !ok {
		return nil, utils.NewConfigError("environments must be an object")
	}
	if len(envMap) == 0 {
		return nil, utils.NewConfigError("configuration does not include any environments")
	}

	rawOpts, ok := raw["options"]
	if !ok || rawOpts == nil {
		return nil, utils.NewConfigError("configuration does not include any options")
	}
	optMap, ok := rawOpts.(map[string]any)
	if !ok {
		return nil, utils.NewConfigError("options must be an object")
	}

	opts, err := validateOptions(optMap)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(envMap))
	for name := range envMap {
		names = append(names, name)
	}
	sort.Strings(names)

	envs := make(map[string]model.Environment, len(envMap))
	for _, name := range names {
		fields, ok := envMap[name].(map[string]any)
		if !ok {
			return nil, utils.NewConfigError("the '%s' environment must be an object", name)
		}
		env, err := validateEnvironment(name, fields)
		if err != nil {
			return nil, err
		}
		envs[name] = env
	}

	git, err := validateGit(raw["git"])
	if err != nil {
		return nil, err
	}

	return &model.DeploymentConfig{
		Environments: envs,
		Options:      opts,
		Git:          git,
	}, nil
}

func validateEnvironment(name string, fields map[string]any) (model.Environment, error) {
	r := reader{section: fmt.Sprintf("the '%s' environment", name), fields: fields}

	env := model.Environment{
		Name:                name,
		Hostname:            r.str("hostname"),
		Port:                r.integer("port", model.DefaultPort),
		Username:            r.str("username"),
		Password:            r.str("password"),
		PrivateKeyPath:      r.str("privateKeyPath"),
		DeploymentDirectory: r.str("deploymentDirectory"),
		TaskName:            r.str("taskName"),
		GitBranch:           r.str("gitBranch"),
		BuildsToKeep:        r.integer("buildsToKeep", model.DefaultBuildsToKeep),
	}
	if r.err != nil {
		return model.Environment{}, r.err
	}

	required := []struct {
		value string
		what  string
	}{
		{env.Hostname, "a hostname"},
		{env.Username, "a username"},
		{env.DeploymentDirectory, "a deployment directory"},
		{env.TaskName, "a task name"},
	}
	for _, req := range required {
		if req.value == "" {
			return model.Environment{}, utils.NewConfigError("%s does not include %s", r.section, req.what)
		}
	}
	if env.Port == 0 {
		env.Port = model.DefaultPort
	}
	if env.GitBranch == "" {
		env.GitBranch = model.DefaultGitBranch
	}

	checks := []error{
		utils.ValidatePort(env.Port),
		utils.ValidateRemotePath(env.DeploymentDirectory),
		utils.ValidateIdentifier("taskName", env.TaskName),
		utils.ValidateIdentifier("gitBranch", env.GitBranch),
		utils.ValidateBuildsToKeep(env.BuildsToKeep),
	}
	for _, err := range checks {
		if err != nil {
			return model.Environment{}, utils.NewConfigError("%s: %v", r.section, err)
		}
	}
	return env, nil
}

func validateOptions(fields map[string]any) (model.ProjectOptions, error) {
	r := reader{section: "options", fields: fields}
	opts := model.ProjectOptions{
		UseAlternatePackageManager: r.boolean("meteorite"),
		MeteorRelease:              r.str("meteorRelease"),
		BuildsToKeep:               r.integer("buildsToKeep", 0),
		Insecure:                   r.boolean("insecure"),
	}
	if r.err != nil {
		return model.ProjectOptions{}, r.err
	}

	if _, set := fields["buildsToKeep"]; set {
		if err := utils.ValidateBuildsToKeep(opts.BuildsToKeep); err != nil {
			return model.ProjectOptions{}, utils.NewConfigError("options: %v", err)
		}
	}
	if !opts.UseAlternatePackageManager {
		if opts.MeteorRelease == "" {
			return model.ProjectOptions{}, utils.NewConfigError("options must include a meteorRelease unless meteorite is enabled")
		}
		if err := meteor.ValidateRelease(opts.MeteorRelease); err != nil {
			return model.ProjectOptions{}, utils.NewConfigError("options: %v", err)
		}
	}
	return opts, nil
}

func validateGit(raw any) (model.GitRemote, error) {
	if raw == nil {
		return model.GitRemote{}, nil
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return model.GitRemote{}, utils.NewConfigError("git must be an object")
	}
	r := reader{section: "git", fields: fields}
	git := model.GitRemote{
		Repository: r.str("repository"),
		Username:   r.str("username"),
		Password:   r.str("password"),
	}
	if r.err != nil {
		return model.GitRemote{}, r.err
	}
	return git, nil
}

// reader pulls typed values out of one section and keeps the first type error.
type reader struct {
	section string
	fields  map[string]any
	err     error
}

func (r *reader) fail(key, want string, v any) {
	if r.err == nil {
		r.err = utils.NewConfigError("%s: %s must be %s, got %T", r.section, key, want, v)
	}
}

func (r *reader) str(key string) string {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, "a string", v)
		return ""
	}
	return s
}

func (r *reader) boolean(key string) bool {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(key, "a boolean", v)
		return false
	}
	return b
}

// integer accepts the numeric forms a JSON decoder or a Go caller produces. An
// absent value yields def.
func (r *reader) integer(key string, def int) int {
	v, ok := r.fields[key]
	if !ok || v == nil {
		return def
	}
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != math.Trunc(x) {
			r.fail(key, "an integer", v)
			return def
		}
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			r.fail(key, "an integer", v)
			return def
		}
		n = int(i)
	default:
		r.fail(key, "an integer", v)
		return def
	}
	return n
}
