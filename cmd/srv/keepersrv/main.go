package main

import (
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/config"
	"github.com/core-tools/hsu-keeper/pkg/keeper"
	"github.com/core-tools/hsu-keeper/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config       string `long:"config" description:"path to an optional YAML configuration file"`
	Port         int    `long:"port" description:"HTTP port, overrides PORT/SERVER_PORT"`
	WorkDir      string `long:"workdir" description:"working directory, overrides FILE_PATH"`
	ValidateOnly bool   `long:"validate-only" description:"validate the configuration and exit"`
	RunDuration  int    `long:"run-duration" description:"stop after this many seconds (0 runs until signalled)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(opts.Config, os.LookupEnv)
	if err != nil {
		fmt.Printf("Configuration failed: %v\n", err)
		os.Exit(1)
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.WorkDir != "" {
		cfg.WorkDir = opts.WorkDir
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Printf("Configuration failed: %v\n", err)
		os.Exit(1)
	}

	if opts.ValidateOnly {
		fmt.Println("Configuration is valid")
		return
	}

	backend, flush, err := logging.NewBackend(cfg.Logging)
	if err != nil {
		fmt.Printf("Logging setup failed: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	logger := logging.WithPrefix(backend, "module: hsu-keeper , ")
	logger.Infof("Starting, work dir: %s, port: %d, control port: %d", cfg.WorkDir, cfg.Server.Port, cfg.Server.ControlPort)
	if cfg.UUID == "" {
		logger.Warnf("UUID is empty, generated links will not authenticate")
	}

	if err := keeper.RunWithSignals(time.Duration(opts.RunDuration)*time.Second, cfg, logger); err != nil {
		logger.Errorf("Keeper failed: %v", err)
		flush()
		os.Exit(1)
	}
}
