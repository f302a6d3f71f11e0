package roles

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/workdir"
)

// Internal fallback ports the tunnel-facing inbound dispatches to.
const (
	fallbackPortTCP    = 3001
	fallbackPortVless  = 3002
	fallbackPortVmess  = 3003
	fallbackPortTrojan = 3004
)

const (
	PathVless  = "/vless-argo"
	PathVmess  = "/vmess-argo"
	PathTrojan = "/trojan-argo"
)

// Proxy is the proxy core, listening on the tunnel port.
type Proxy struct {
	binary       string
	uuid         string
	port         int
	overrideFile string
}

func (p *Proxy) role()            {}
func (p *Proxy) Name() string     { return "proxy" }
func (p *Proxy) Artifact() string { return ArtifactProxy }
func (p *Proxy) Binary() string   { return p.binary }

func (p *Proxy) Args() []string {
	return []string{"-c", workdir.ProxyConfigFile}
}

func (p *Proxy) Files() ([]File, error) {
	var data []byte
	var err error
	if p.overrideFile != "" {
		data, err = loadOverride(p.overrideFile)
	} else {
		data, err = json.MarshalIndent(p.defaultConfig(), "", "  ")
	}
	if err != nil {
		return nil, err
	}
	return []File{{Name: workdir.ProxyConfigFile, Data: data}}, nil
}

// loadOverride accepts JSON with comments and trailing commas and emits plain JSON.
func loadOverride(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read proxy config override", err).WithContext("path", path)
	}
	stripped := jsonc.ToJSON(raw)
	if !json.Valid(stripped) {
		return nil, errors.NewValidationError("proxy config override is not valid JSON", nil).WithContext("path", path)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, stripped, "", "  "); err != nil {
		return nil, errors.NewValidationError("failed to format proxy config override", err).WithContext("path", path)
	}
	return out.Bytes(), nil
}

type object = map[string]interface{}

func sniffing() object {
	return object{"enabled": true, "destOverride": []string{"http", "tls", "quic"}, "metadataOnly": false}
}

func (p *Proxy) defaultConfig() object {
	return object{
		"log": object{"access": "/dev/null", "error": "/dev/null", "loglevel": "none"},
		"inbounds": []object{
			{
				"port":     p.port,
				"protocol": "vless",
				"settings": object{
					"clients":    []object{{"id": p.uuid, "flow": "xtls-rprx-vision"}},
					"decryption": "none",
					"fallbacks": []object{
						{"dest": fallbackPortTCP},
						{"path": PathVless, "dest": fallbackPortVless},
						{"path": PathVmess, "dest": fallbackPortVmess},
						{"path": PathTrojan, "dest": fallbackPortTrojan},
					},
				},
				"streamSettings": object{"network": "tcp"},
			},
			{
				"port": fallbackPortTCP, "listen": "127.0.0.1", "protocol": "vless",
				"settings":       object{"clients": []object{{"id": p.uuid}}, "decryption": "none"},
				"streamSettings": object{"network": "tcp", "security": "none"},
			},
			{
				"port": fallbackPortVless, "listen": "127.0.0.1", "protocol": "vless",
				"settings":       object{"clients": []object{{"id": p.uuid, "level": 0}}, "decryption": "none"},
				"streamSettings": object{"network": "ws", "security": "none", "wsSettings": object{"path": PathVless}},
				"sniffing":       sniffing(),
			},
			{
				"port": fallbackPortVmess, "listen": "127.0.0.1", "protocol": "vmess",
				"settings":       object{"clients": []object{{"id": p.uuid, "alterId": 0}}},
				"streamSettings": object{"network": "ws", "wsSettings": object{"path": PathVmess}},
				"sniffing":       sniffing(),
			},
			{
				"port": fallbackPortTrojan, "listen": "127.0.0.1", "protocol": "trojan",
				"settings":       object{"clients": []object{{"password": p.uuid}}},
				"streamSettings": object{"network": "ws", "security": "none", "wsSettings": object{"path": PathTrojan}},
				"sniffing":       sniffing(),
			},
		},
		"dns": object{"servers": []string{"https+local://8.8.8.8/dns-query"}},
		"outbounds": []object{
			{"protocol": "freedom", "tag": "direct"},
			{"protocol": "blackhole", "tag": "block"},
		},
	}
}
