package main

import (
	"context"
	"fmt"
	"os"
	"time"

	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"

	coreControl "github.com/core-tools/hsu-core/pkg/control"
	coreDomain "github.com/core-tools/hsu-core/pkg/domain"
	coreLogging "github.com/core-tools/hsu-core/pkg/logging"

	keeperControl "github.com/core-tools/hsu-keeper/pkg/control"
	keeperLogging "github.com/core-tools/hsu-keeper/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	AttachPort int      `long:"port" description:"control port of a running keeper"`
	Roles      []string `long:"role" description:"role to query, repeatable (default: keeper, proxy, tunnel)"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-client , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	logger := sprintfLogging.NewStdSprintfLogger()

	if opts.AttachPort == 0 {
		fmt.Println("Attach port is required")
		os.Exit(1)
	}
	if len(opts.Roles) == 0 {
		opts.Roles = []string{"", "proxy", "tunnel"}
	}

	coreLogger := coreLogging.NewLogger(
		logPrefix("hsu-core"), coreLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})
	keeperLogger := keeperLogging.NewLogger(
		logPrefix("hsu-keeper"), keeperLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})

	coreConnection, err := coreControl.NewConnection(coreControl.ConnectionOptions{AttachPort: opts.AttachPort}, coreLogger)
	if err != nil {
		logger.Errorf("Failed to create core connection: %v", err)
		os.Exit(1)
	}

	coreClientGateway := coreControl.NewGRPCClientGateway(coreConnection.GRPC(), coreLogger)
	keeperClientGateway := keeperControl.NewGRPCClientGateway(coreConnection.GRPC(), keeperLogger)

	ctx := context.Background()

	retryPingOptions := coreDomain.RetryPingOptions{
		RetryAttempts: 10,
		RetryInterval: 1 * time.Second,
	}
	if err := coreDomain.RetryPing(ctx, coreClientGateway, retryPingOptions, coreLogger); err != nil {
		logger.Errorf("Failed to ping keeper: %v", err)
		os.Exit(1)
	}

	failed := false
	for _, role := range opts.Roles {
		status, err := keeperClientGateway.Status(ctx, role)
		name := role
		if name == "" {
			name = "keeper"
		}
		if err != nil {
			fmt.Printf("%-10s UNKNOWN (%v)\n", name, err)
			failed = true
			continue
		}
		fmt.Printf("%-10s %s\n", name, status)
	}
	if failed {
		os.Exit(2)
	}
}
