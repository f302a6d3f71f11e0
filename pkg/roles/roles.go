// Package roles defines the closed set of managed processes. Each variant knows
// its binary, its argument list and the config artifacts it needs on disk.
package roles

import (
	"github.com/core-tools/hsu-keeper/pkg/config"
	"github.com/core-tools/hsu-keeper/pkg/workdir"
)

// Artifact names on the remote sources.
const (
	ArtifactProxy   = "web"
	ArtifactTunnel  = "bot"
	ArtifactAgentV0 = "agent"
	ArtifactAgentV1 = "v1"
)

// File is a rendered config artifact, named relative to the working directory.
type File struct {
	Name string
	Data []byte
}

// Role is implemented only by the variants in this package.
type Role interface {
	Name() string
	Artifact() string
	Binary() string
	Args() []string
	Files() ([]File, error)

	role()
}

// Artifact pairs a remote artifact name with its local path.
type Artifact struct {
	Name string
	Path string
}

// Plan returns the roles to supervise, in start order.
func Plan(cfg config.Config, layout workdir.Layout) []Role {
	var planned []Role
	if agent := agentRole(cfg, layout); agent != nil {
		planned = append(planned, agent)
	}
	planned = append(planned,
		&Proxy{
			binary:       layout.ProxyBinary,
			uuid:         cfg.UUID,
			port:         cfg.Tunnel.Port,
			overrideFile: cfg.Proxy.ConfigFile,
		},
		NewTunnel(cfg, layout),
	)
	return planned
}

// Artifacts is the full required set for the current configuration, regardless of
// which binary is missing.
func Artifacts(cfg config.Config, layout workdir.Layout) []Artifact {
	artifacts := []Artifact{
		{Name: ArtifactProxy, Path: layout.ProxyBinary},
		{Name: ArtifactTunnel, Path: layout.TunnelBinary},
	}
	if agent := agentRole(cfg, layout); agent != nil {
		artifacts = append(artifacts, Artifact{Name: agent.Artifact(), Path: agent.Binary()})
	}
	return artifacts
}

func agentRole(cfg config.Config, layout workdir.Layout) Role {
	if !cfg.Agent.Enabled() {
		return nil
	}
	if cfg.Agent.Port != "" {
		return &AgentV0{
			binary: layout.AgentV0Binary,
			server: cfg.Agent.Server,
			port:   cfg.Agent.Port,
			key:    cfg.Agent.Key,
		}
	}
	return &AgentV1{
		binary: layout.AgentV1Binary,
		server: cfg.Agent.Server,
		key:    cfg.Agent.Key,
		uuid:   cfg.UUID,
	}
}
