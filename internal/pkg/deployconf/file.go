package deployconf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"meteor-deploy-manager/internal/model"
	"meteor-deploy-manager/pkg/utils"
)

const DefaultFilename = "deploy.json"

// Parse decodes JSON and validates it.
func Parse(data []byte) (*model.DeploymentConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, utils.NewConfigError("invalid JSON: %v", err)
	}
	return Validate(raw)
}

// Load reads and validates the deployment file at path.
func Load(path string) (*model.DeploymentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, utils.NewConfigError("deployment configuration file not found at: %s", path)
		}
		return nil, utils.WrapConfigError(path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, utils.WrapConfigError(path, err)
	}
	return cfg, nil
}

// Serialize writes the recognized fields of cfg back out as JSON.
func Serialize(cfg *model.DeploymentConfig) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal deployment config: %w", err)
	}
	return append(data, '\n'), nil
}

const redacted = "[REDACTED]"

// Redacted returns a copy of cfg with every credential replaced, for logging.
func Redacted(cfg *model.DeploymentConfig) *model.DeploymentConfig {
	out := &model.DeploymentConfig{
		Environments: make(map[string]model.Environment, len(cfg.Environments)),
		Options:      cfg.Options,
		Git:          cfg.Git,
	}
	for name, env := range cfg.Environments {
		if env.Password != "" {
			env.Password = redacted
		}
		out.Environments[name] = env
	}
	if out.Git.Password != "" {
		out.Git.Password = redacted
	}
	return out
}

// Sample is the file written by the generate command.
func Sample() *model.DeploymentConfig {
	return &model.DeploymentConfig{
		Environments: map[string]model.Environment{
			"staging": {
				Hostname:            "staging.example.com",
				Port:                model.DefaultPort,
				Username:            "deploy",
				PrivateKeyPath:      "~/.ssh/id_ed25519",
				DeploymentDirectory: "/srv/app",
				TaskName:            "app",
				GitBranch:           "develop",
				BuildsToKeep:        model.DefaultBuildsToKeep,
			},
			"production": {
				Hostname:            "example.com",
				Port:                model.DefaultPort,
				Username:            "deploy",
				Password:            "change-me",
				DeploymentDirectory: "/srv/app",
				TaskName:            "app",
				GitBranch:           model.DefaultGitBranch,
				BuildsToKeep:        model.DefaultBuildsToKeep,
			},
		},
		Options: model.ProjectOptions{
			MeteorRelease: "1.0",
		},
		Git: model.GitRemote{
			Repository: "git@github.com:example/app.git",
		},
	}
}

// WriteSample creates path with the sample config. An existing file is left alone.
func WriteSample(path string) error {
	data, err := Serialize(Sample())
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
