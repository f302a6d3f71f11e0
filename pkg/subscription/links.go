// Package subscription turns a discovered hostname into client connection
// links and publishes them.
package subscription

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
)

const (
	fingerprint = "firefox"
	vmessPath   = "/vmess-argo?ed=2560"
	// url-escaped ws paths
	vlessQueryPath  = "%2Fvless-argo%3Fed%3D2560"
	trojanQueryPath = "%2Ftrojan-argo%3Fed%3D2560"
)

type Node struct {
	UUID   string
	CFIP   string
	CFPort int
	// Name prefixes the ISP in the link label when set.
	Name string
}

// Label is the human readable node name, NAME-ISP or just ISP.
func (n Node) Label(isp string) string {
	if n.Name == "" {
		return isp
	}
	return n.Name + "-" + isp
}

type vmessLink struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port int    `json:"port"`
	ID   string `json:"id"`
	AID  string `json:"aid"`
	SCY  string `json:"scy"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni"`
	ALPN string `json:"alpn"`
	FP   string `json:"fp"`
}

type Links struct {
	VLESS  string
	VMess  string
	Trojan string
}

// Build renders the vless, vmess and trojan links for hostname.
func Build(hostname string, node Node, isp string) (Links, error) {
	label := node.Label(isp)
	address := node.CFIP + ":" + strconv.Itoa(node.CFPort)

	vmess, err := json.Marshal(vmessLink{
		V:    "2",
		PS:   label,
		Add:  node.CFIP,
		Port: node.CFPort,
		ID:   node.UUID,
		AID:  "0",
		SCY:  "none",
		Net:  "ws",
		Type: "none",
		Host: hostname,
		Path: vmessPath,
		TLS:  "tls",
		SNI:  hostname,
		ALPN: "",
		FP:   fingerprint,
	})
	if err != nil {
		return Links{}, err
	}

	return Links{
		VLESS: "vless://" + node.UUID + "@" + address +
			"?encryption=none&security=tls&sni=" + hostname + "&fp=" + fingerprint +
			"&type=ws&host=" + hostname + "&path=" + vlessQueryPath + "#" + label,
		VMess: "vmess://" + base64.StdEncoding.EncodeToString(vmess),
		Trojan: "trojan://" + node.UUID + "@" + address +
			"?security=tls&sni=" + hostname + "&fp=" + fingerprint +
			"&type=ws&host=" + hostname + "&path=" + trojanQueryPath + "#" + label,
	}, nil
}

func (l Links) List() []string {
	return []string{l.VLESS, l.VMess, l.Trojan}
}

// Text is the plain subscription body, links separated by blank lines.
func (l Links) Text() string {
	return "\n" + strings.Join(l.List(), "\n\n") + "\n"
}

// Payload is the base64 form served to clients and written to disk.
func (l Links) Payload() string {
	return base64.StdEncoding.EncodeToString([]byte(l.Text()))
}

// DecodeNodes extracts the link lines from a stored payload.
func DecodeNodes(payload []byte) ([]string, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(payload)))
	if err != nil {
		return nil, err
	}
	var nodes []string
	for _, line := range strings.Split(string(decoded), "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "vless://") || strings.Contains(line, "vmess://") || strings.Contains(line, "trojan://") {
			nodes = append(nodes, line)
		}
	}
	return nodes, nil
}
