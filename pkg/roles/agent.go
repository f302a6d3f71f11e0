package roles

import (
	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/workdir"

	"gopkg.in/yaml.v3"
)

// AgentV0 is the monitoring agent selected when a reporting port is configured.
type AgentV0 struct {
	binary string
	server string
	port   string
	key    string
}

func (a *AgentV0) role()                  {}
func (a *AgentV0) Name() string           { return "agent-v0" }
func (a *AgentV0) Artifact() string       { return ArtifactAgentV0 }
func (a *AgentV0) Binary() string         { return a.binary }
func (a *AgentV0) Files() ([]File, error) { return nil, nil }

func (a *AgentV0) Args() []string {
	return []string{"-s", a.server + ":" + a.port, "-p", a.key, "--report-delay", "4"}
}

// AgentV1 reads its settings from config.yaml.
type AgentV1 struct {
	binary string
	server string
	key    string
	uuid   string
}

type agentV1Config struct {
	ClientSecret string `yaml:"client_secret"`
	Server       string `yaml:"server"`
	UUID         string `yaml:"uuid"`
	TLS          bool   `yaml:"tls"`
}

func (a *AgentV1) role()            {}
func (a *AgentV1) Name() string     { return "agent-v1" }
func (a *AgentV1) Artifact() string { return ArtifactAgentV1 }
func (a *AgentV1) Binary() string   { return a.binary }

func (a *AgentV1) Args() []string {
	return []string{"-c", workdir.AgentConfigFile}
}

func (a *AgentV1) Files() ([]File, error) {
	data, err := yaml.Marshal(agentV1Config{
		ClientSecret: a.key,
		Server:       a.server,
		UUID:         a.uuid,
		TLS:          true,
	})
	if err != nil {
		return nil, errors.NewInternalError("failed to render agent config", err)
	}
	return []File{{Name: workdir.AgentConfigFile, Data: data}}, nil
}
