package roles

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/core-tools/hsu-keeper/pkg/config"
	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/workdir"

	"gopkg.in/yaml.v3"
)

type TunnelMode string

const (
	// TunnelModeToken runs a dashboard-managed tunnel from a bearer token.
	TunnelModeToken TunnelMode = "token"
	// TunnelModeNamed runs a named tunnel from a credentials file and tunnel.yml.
	TunnelModeNamed TunnelMode = "named"
	// TunnelModeQuick asks for an ephemeral hostname, reported only in boot.log.
	TunnelModeQuick TunnelMode = "quick"
)

// DetectTunnelMode picks the launch form from the supplied credential.
func DetectTunnelMode(auth, domain string) TunnelMode {
	switch {
	case strings.Contains(auth, "eyJ") && len(auth) > 50:
		return TunnelModeToken
	case strings.Contains(auth, "TunnelSecret") && domain != "":
		return TunnelModeNamed
	default:
		return TunnelModeQuick
	}
}

// Tunnel is the tunnel client exposing the proxy's tunnel port.
type Tunnel struct {
	binary string
	dir    string
	mode   TunnelMode
	auth   string
	domain string
	port   int
}

func NewTunnel(cfg config.Config, layout workdir.Layout) *Tunnel {
	return &Tunnel{
		binary: layout.TunnelBinary,
		dir:    layout.Dir,
		mode:   DetectTunnelMode(cfg.Tunnel.Auth, cfg.Tunnel.Domain),
		auth:   cfg.Tunnel.Auth,
		domain: cfg.Tunnel.Domain,
		port:   cfg.Tunnel.Port,
	}
}

func (t *Tunnel) role()            {}
func (t *Tunnel) Name() string     { return "tunnel" }
func (t *Tunnel) Artifact() string { return ArtifactTunnel }
func (t *Tunnel) Binary() string   { return t.binary }
func (t *Tunnel) Mode() TunnelMode { return t.mode }

func (t *Tunnel) localURL() string {
	return fmt.Sprintf("http://localhost:%d", t.port)
}

func (t *Tunnel) Args() []string {
	switch t.mode {
	case TunnelModeToken:
		return []string{"tunnel", "--edge-ip-version", "auto", "--no-autoupdate", "--protocol", "http2", "run", "--token", t.auth}
	case TunnelModeNamed:
		return []string{"tunnel", "--edge-ip-version", "auto", "--config", workdir.TunnelConfigFile, "run"}
	default:
		return []string{"tunnel", "--edge-ip-version", "auto", "--no-autoupdate", "--protocol", "http2",
			"--logfile", workdir.BootLogFile, "--url", t.localURL()}
	}
}

type tunnelCredentials struct {
	TunnelID string `json:"TunnelID"`
}

type ingressRule struct {
	Hostname      string         `yaml:"hostname,omitempty"`
	Service       string         `yaml:"service"`
	OriginRequest *originRequest `yaml:"originRequest,omitempty"`
}

type originRequest struct {
	NoTLSVerify bool `yaml:"noTLSVerify"`
}

type tunnelFileConfig struct {
	Tunnel          string        `yaml:"tunnel"`
	CredentialsFile string        `yaml:"credentials-file"`
	Protocol        string        `yaml:"protocol"`
	Ingress         []ingressRule `yaml:"ingress"`
}

// Files renders tunnel.json and tunnel.yml for named tunnels; other modes need none.
func (t *Tunnel) Files() ([]File, error) {
	if t.mode != TunnelModeNamed {
		return nil, nil
	}

	var credentials tunnelCredentials
	if err := json.Unmarshal([]byte(t.auth), &credentials); err != nil {
		return nil, errors.NewValidationError("tunnel credential is not valid JSON", err)
	}
	if credentials.TunnelID == "" {
		return nil, errors.NewValidationError("tunnel credential has no TunnelID", nil)
	}

	data, err := yaml.Marshal(tunnelFileConfig{
		Tunnel:          credentials.TunnelID,
		CredentialsFile: workdir.Layout{Dir: t.dir}.Path(workdir.TunnelCredentialsFile),
		Protocol:        "http2",
		Ingress: []ingressRule{
			{Hostname: t.domain, Service: t.localURL(), OriginRequest: &originRequest{NoTLSVerify: true}},
			{Service: "http_status:404"},
		},
	})
	if err != nil {
		return nil, errors.NewInternalError("failed to render tunnel config", err)
	}

	return []File{
		{Name: workdir.TunnelCredentialsFile, Data: []byte(t.auth)},
		{Name: workdir.TunnelConfigFile, Data: data},
	}, nil
}
