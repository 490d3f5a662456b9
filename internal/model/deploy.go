package model

import (
	"fmt"
	"net"
	"sort"
	"strconv"
)

type Action string

const (
	ActionDeploy   Action = "deploy"
	ActionRollback Action = "rollback"
	ActionStart    Action = "start"
	ActionStop     Action = "stop"
	ActionRestart  Action = "restart"
)

var actions = []Action{ActionDeploy, ActionRollback, ActionStart, ActionStop, ActionRestart}

func Actions() []Action {
	return append([]Action(nil), actions...)
}

func ParseAction(s string) (Action, error) {
	for _, a := range actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action: %q", s)
}

const (
	DefaultPort         = 22
	DefaultGitBranch    = "master"
	DefaultBuildsToKeep = 5
)

// Environment is one deployment target. Name is the key it was declared under.
type Environment struct {
	Name                string `json:"-"`
	Hostname            string `json:"hostname"`
	Port                int    `json:"port"`
	Username            string `json:"username"`
	Password            string `json:"password,omitempty"`
	PrivateKeyPath      string `json:"privateKeyPath,omitempty"`
	DeploymentDirectory string `json:"deploymentDirectory"`
	TaskName            string `json:"taskName"`
	GitBranch           string `json:"gitBranch"`
	BuildsToKeep        int    `json:"buildsToKeep"`
}

func (e Environment) Address() string {
	return net.JoinHostPort(e.Hostname, strconv.Itoa(e.Port))
}

// AuthType names the credential the session will present. A key file wins over
// a password when both are configured.
func (e Environment) AuthType() string {
	switch {
	case e.PrivateKeyPath != "":
		return "key"
	case e.Password != "":
		return "password"
	default:
		return "none"
	}
}

type ProjectOptions struct {
	UseAlternatePackageManager bool   `json:"meteorite"`
	MeteorRelease              string `json:"meteorRelease,omitempty"`
	BuildsToKeep               int    `json:"buildsToKeep,omitempty"`
	Insecure                   bool   `json:"insecure"`
}

// KeepBuilds returns the retention count for env, honouring the project-wide
// override when one is set.
func (o ProjectOptions) KeepBuilds(env Environment) int {
	if o.BuildsToKeep > 0 {
		return o.BuildsToKeep
	}
	return env.BuildsToKeep
}

type GitRemote struct {
	Repository string `json:"repository,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
}

type DeploymentConfig struct {
	Environments map[string]Environment `json:"environments"`
	Options      ProjectOptions         `json:"options"`
	Git          GitRemote              `json:"git"`
}

func (c *DeploymentConfig) Environment(name string) (Environment, bool) {
	env, ok := c.Environments[name]
	return env, ok
}

func (c *DeploymentConfig) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
