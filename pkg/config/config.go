package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Config is built once at process entry and passed by value into every component.
type Config struct {
	WorkDir      string                `yaml:"work_dir"`
	UUID         string                `yaml:"uuid"`
	Server       ServerConfig          `yaml:"server"`
	Proxy        ProxyConfig           `yaml:"proxy"`
	Tunnel       TunnelConfig          `yaml:"tunnel"`
	Agent        AgentConfig           `yaml:"agent"`
	Subscription SubscriptionConfig    `yaml:"subscription"`
	Assets       AssetsConfig          `yaml:"assets"`
	Supervisor   SupervisorConfig      `yaml:"supervisor"`
	Discovery    DiscoveryConfig       `yaml:"discovery"`
	Logging      logging.BackendConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	ControlPort int    `yaml:"control_port,omitempty"` // gRPC health, 0 disables
	SubPath     string `yaml:"sub_path"`
}

type ProxyConfig struct {
	ConfigFile string `yaml:"config_file,omitempty"` // JSONC override for config.json
}

type TunnelConfig struct {
	Domain string `yaml:"domain,omitempty"`
	Auth   string `yaml:"auth,omitempty"`
	Port   int    `yaml:"port"`
}

type AgentConfig struct {
	Server string `yaml:"server,omitempty"`
	Port   string `yaml:"port,omitempty"`
	Key    string `yaml:"key,omitempty"`
}

// Enabled reports whether a monitoring agent should run at all.
func (a AgentConfig) Enabled() bool {
	return a.Server != "" && a.Key != ""
}

type SubscriptionConfig struct {
	CFIP          string `yaml:"cfip"`
	CFPort        int    `yaml:"cfport"`
	Name          string `yaml:"name"`
	UploadURL     string `yaml:"upload_url,omitempty"`
	ProjectURL    string `yaml:"project_url,omitempty"`
	AutoAccess    bool   `yaml:"auto_access,omitempty"`
	AutoAccessURL string `yaml:"auto_access_url,omitempty"`
}

type AssetsConfig struct {
	ARMBase string            `yaml:"arm_base"`
	AMDBase string            `yaml:"amd_base"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Digests map[string]string `yaml:"digests,omitempty"` // artifact name -> blake3 hex
}

type SupervisorConfig struct {
	RestartDelay         time.Duration `yaml:"restart_delay"`
	RestartOnLaunchError *bool         `yaml:"restart_on_launch_error,omitempty"`
}

type DiscoveryConfig struct {
	Interval time.Duration `yaml:"interval"`
	Attempts int           `yaml:"attempts"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	restartOnLaunchError := true
	return Config{
		WorkDir: "./tmp",
		Server: ServerConfig{
			Port:    3000,
			SubPath: "xiaomao",
		},
		Tunnel: TunnelConfig{
			Port: 8001,
		},
		Subscription: SubscriptionConfig{
			CFIP:          "cdns.doon.eu.org",
			CFPort:        443,
			Name:          "gaga",
			AutoAccessURL: "https://oooo.serv00.net/add-url",
		},
		Assets: AssetsConfig{
			ARMBase: "https://arm64.ssss.nyc.mn",
			AMDBase: "https://amd64.ssss.nyc.mn",
			Timeout: 5 * time.Minute,
		},
		Supervisor: SupervisorConfig{
			RestartDelay:         5000 * time.Millisecond,
			RestartOnLaunchError: &restartOnLaunchError,
		},
		Discovery: DiscoveryConfig{
			Interval: 2000 * time.Millisecond,
			Attempts: 20,
		},
		Logging: logging.BackendConfig{
			Backend: logging.BackendZap,
			Level:   "info",
			Format:  "console",
		},
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load layers defaults, an optional YAML file and the environment, then validates.
func Load(configFile string, lookup LookupFunc) (Config, error) {
	config := Default()

	if configFile != "" {
		if err := applyFile(&config, configFile); err != nil {
			return Config{}, err
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := ApplyEnv(&config, lookup); err != nil {
		return Config{}, err
	}

	if err := Validate(config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func applyFile(config *Config, configFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return errors.NewIOError("failed to read configuration file", err).WithContext("filename", configFile)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", configFile)
	}
	return nil
}

// ApplyEnv overrides config with the environment variables the deployment platform sets.
func ApplyEnv(config *Config, lookup LookupFunc) error {
	str := func(key string, target *string) {
		if value, ok := lookup(key); ok && value != "" {
			*target = value
		}
	}
	var firstErr error
	integer := func(key string, target *int) {
		value, ok := lookup(key)
		if !ok || value == "" {
			return
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			if firstErr == nil {
				firstErr = errors.NewValidationError(fmt.Sprintf("invalid integer in %s", key), err).WithContext("value", value)
			}
			return
		}
		*target = parsed
	}

	str("FILE_PATH", &config.WorkDir)
	str("UUID", &config.UUID)

	integer("PORT", &config.Server.Port)
	integer("SERVER_PORT", &config.Server.Port)
	integer("CONTROL_PORT", &config.Server.ControlPort)
	str("SUB_PATH", &config.Server.SubPath)

	str("PROXY_CONFIG_FILE", &config.Proxy.ConfigFile)

	str("ARGO_DOMAIN", &config.Tunnel.Domain)
	str("ARGO_AUTH", &config.Tunnel.Auth)
	integer("ARGO_PORT", &config.Tunnel.Port)

	str("NEZHA_SERVER", &config.Agent.Server)
	str("NEZHA_PORT", &config.Agent.Port)
	str("NEZHA_KEY", &config.Agent.Key)

	str("CFIP", &config.Subscription.CFIP)
	integer("CFPORT", &config.Subscription.CFPort)
	str("NAME", &config.Subscription.Name)
	str("UPLOAD_URL", &config.Subscription.UploadURL)
	str("PROJECT_URL", &config.Subscription.ProjectURL)
	str("AUTO_ACCESS_URL", &config.Subscription.AutoAccessURL)
	if value, ok := lookup("AUTO_ACCESS"); ok {
		config.Subscription.AutoAccess = value == "true"
	}

	str("ARM_ASSET_BASE", &config.Assets.ARMBase)
	str("AMD_ASSET_BASE", &config.Assets.AMDBase)

	if value, ok := lookup("RESTART_DELAY"); ok && value != "" {
		delay, err := time.ParseDuration(value)
		if err != nil && firstErr == nil {
			firstErr = errors.NewValidationError("invalid duration in RESTART_DELAY", err).WithContext("value", value)
		}
		if err == nil {
			config.Supervisor.RestartDelay = delay
		}
	}

	str("LOG_BACKEND", &config.Logging.Backend)
	str("LOG_LEVEL", &config.Logging.Level)
	str("LOG_FORMAT", &config.Logging.Format)

	return firstErr
}

// Validate checks ranges and enumerations.
func Validate(config Config) error {
	if config.WorkDir == "" {
		return errors.NewValidationError("work_dir cannot be empty", nil)
	}
	if err := validatePort("server.port", config.Server.Port, false); err != nil {
		return err
	}
	if err := validatePort("server.control_port", config.Server.ControlPort, true); err != nil {
		return err
	}
	if err := validatePort("tunnel.port", config.Tunnel.Port, false); err != nil {
		return err
	}
	if err := validatePort("subscription.cfport", config.Subscription.CFPort, false); err != nil {
		return err
	}
	if config.Server.SubPath == "" || strings.Contains(config.Server.SubPath, "/") {
		return errors.NewValidationError("sub_path must be a single non-empty path segment", nil).
			WithContext("sub_path", config.Server.SubPath)
	}
	if config.Assets.ARMBase == "" || config.Assets.AMDBase == "" {
		return errors.NewValidationError("both artifact sources are required", nil)
	}
	if config.Supervisor.RestartDelay <= 0 {
		return errors.NewValidationError("restart_delay must be positive", nil).
			WithContext("restart_delay", config.Supervisor.RestartDelay)
	}
	if config.Discovery.Interval <= 0 || config.Discovery.Attempts <= 0 {
		return errors.NewValidationError("discovery interval and attempts must be positive", nil)
	}
	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		return errors.NewValidationError("invalid log level", err).WithContext("valid_levels", "debug, info, warn, error")
	}
	switch config.Logging.Backend {
	case logging.BackendZap, logging.BackendStd:
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported log backend: %s", config.Logging.Backend), nil).
			WithContext("supported_backends", "zap, std")
	}
	return nil
}

func validatePort(name string, port int, optional bool) error {
	if optional && port == 0 {
		return nil
	}
	if port <= 0 || port > 65535 {
		return errors.NewValidationError(fmt.Sprintf("invalid %s: %d", name, port), nil).
			WithContext("valid_range", "1-65535")
	}
	return nil
}

// RestartOnLaunchErrorEnabled resolves the optional flag, defaulting to true.
func (s SupervisorConfig) RestartOnLaunchErrorEnabled() bool {
	return s.RestartOnLaunchError == nil || *s.RestartOnLaunchError
}
