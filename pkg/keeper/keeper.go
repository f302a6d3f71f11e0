// Package keeper wires every component together and runs them for the
// lifetime of the host process.
package keeper

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/core-tools/hsu-keeper/pkg/arch"
	"github.com/core-tools/hsu-keeper/pkg/assets"
	"github.com/core-tools/hsu-keeper/pkg/config"
	"github.com/core-tools/hsu-keeper/pkg/control"
	"github.com/core-tools/hsu-keeper/pkg/discovery"
	"github.com/core-tools/hsu-keeper/pkg/errors"
	"github.com/core-tools/hsu-keeper/pkg/httpapi"
	"github.com/core-tools/hsu-keeper/pkg/logging"
	"github.com/core-tools/hsu-keeper/pkg/processfile"
	"github.com/core-tools/hsu-keeper/pkg/recovery"
	"github.com/core-tools/hsu-keeper/pkg/roles"
	"github.com/core-tools/hsu-keeper/pkg/subscription"
	"github.com/core-tools/hsu-keeper/pkg/supervisor"
	"github.com/core-tools/hsu-keeper/pkg/workdir"
)

const DefaultShutdownTimeout = 10 * time.Second

// Options replace the real collaborators; zero values mean production defaults.
type Options struct {
	Namer           workdir.Namer
	Variant         arch.Variant
	Fetcher         assets.Fetcher
	Launcher        supervisor.Launcher
	Meta            subscription.MetaOptions
	ShutdownTimeout time.Duration
}

type Keeper struct {
	cfg     config.Config
	options Options
	logger  logging.Logger

	layout        workdir.Layout
	roles         []roles.Role
	processFiles  *processfile.ProcessFileManager
	coordinator   *recovery.Coordinator
	supervisors   []*supervisor.Supervisor
	statusHandler *control.StatusHandler
	controlServer *control.Server
	httpHandler   *httpapi.HttpHandler
	httpServer    *httpapi.Server
	extractor     *discovery.Extractor
	uploader      *subscription.Uploader
	publisher     *subscription.Publisher
}

func moduleLogger(logger logging.Logger, module string) logging.Logger {
	return logging.WithPrefix(logger, "module: "+module+" , ")
}

// NewKeeper builds every component and binds the listening ports. Nothing is
// spawned or downloaded until Run.
func NewKeeper(cfg config.Config, options Options, logger logging.Logger) (*Keeper, error) {
	if options.Variant == "" {
		options.Variant = arch.Current()
	}
	if options.Fetcher == nil {
		options.Fetcher = assets.NewFetcher(assets.FetcherOptions{Timeout: cfg.Assets.Timeout}, moduleLogger(logger, "assets"))
	}
	if options.Launcher == nil {
		options.Launcher = supervisor.NewExecLauncher(supervisor.ExecLauncherOptions{}, moduleLogger(logger, "launcher"))
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = DefaultShutdownTimeout
	}

	layout := workdir.NewLayout(cfg.WorkDir, options.Namer)
	planned := roles.Plan(cfg, layout)

	k := &Keeper{
		cfg:     cfg,
		options: options,
		logger:  logger,
		layout:  layout,
		roles:   planned,
	}

	k.coordinator = recovery.NewCoordinator(recovery.Options{
		Artifacts: roles.Artifacts(cfg, layout),
		Variant:   options.Variant,
		ARMBase:   cfg.Assets.ARMBase,
		AMDBase:   cfg.Assets.AMDBase,
		Digests:   cfg.Assets.Digests,
	}, options.Fetcher, moduleLogger(logger, "recovery"))

	names := make([]string, 0, len(planned))
	for _, role := range planned {
		names = append(names, role.Name())
	}
	k.statusHandler = control.NewStatusHandler(names, moduleLogger(logger, "control"))
	k.processFiles = processfile.NewProcessFileManager(layout.Dir, moduleLogger(logger, "processfile"))

	supervisorOptions := supervisor.Options{
		RestartDelay:         cfg.Supervisor.RestartDelay,
		RestartOnLaunchError: cfg.Supervisor.RestartOnLaunchErrorEnabled(),
		PIDFiles:             k.processFiles,
	}
	for _, role := range planned {
		k.supervisors = append(k.supervisors, supervisor.NewSupervisor(
			role, layout, k.coordinator, options.Launcher, k.statusHandler, supervisorOptions, moduleLogger(logger, "supervisor")))
	}

	k.httpHandler = httpapi.NewHttpHandler(cfg.Server.SubPath, moduleLogger(logger, "http"))
	httpServer, err := httpapi.NewServer(cfg.Server.Port, k.httpHandler, moduleLogger(logger, "http"))
	if err != nil {
		return nil, err
	}
	k.httpServer = httpServer

	if cfg.Server.ControlPort != 0 {
		controlServer, err := control.NewServer(cfg.Server.ControlPort, k.statusHandler, moduleLogger(logger, "control"))
		if err != nil {
			_ = httpServer.Shutdown(context.Background())
			return nil, err
		}
		k.controlServer = controlServer
	}

	k.extractor = discovery.NewExtractor(discovery.Options{
		StaticAuth:   cfg.Tunnel.Auth,
		StaticDomain: cfg.Tunnel.Domain,
		LogPath:      layout.Path(workdir.BootLogFile),
		Interval:     cfg.Discovery.Interval,
		Attempts:     cfg.Discovery.Attempts,
	}, moduleLogger(logger, "discovery"))

	k.uploader = subscription.NewUploader(subscription.UploaderOptions{
		UploadURL:     cfg.Subscription.UploadURL,
		ProjectURL:    cfg.Subscription.ProjectURL,
		SubPath:       cfg.Server.SubPath,
		AutoAccess:    cfg.Subscription.AutoAccess,
		AutoAccessURL: cfg.Subscription.AutoAccessURL,
	}, moduleLogger(logger, "subscription"))

	k.publisher = subscription.NewPublisher(
		subscription.Node{
			UUID:   cfg.UUID,
			CFIP:   cfg.Subscription.CFIP,
			CFPort: cfg.Subscription.CFPort,
			Name:   cfg.Subscription.Name,
		},
		subscription.NewMetaResolver(options.Meta, moduleLogger(logger, "subscription")),
		layout,
		k.httpHandler,
		k.uploader,
		moduleLogger(logger, "subscription"),
	)

	return k, nil
}

func (k *Keeper) Layout() workdir.Layout {
	return k.layout
}

// HTTPAddr is the bound address of the HTTP surface.
func (k *Keeper) HTTPAddr() string {
	return k.httpServer.Addr()
}

func (k *Keeper) Supervisors() []*supervisor.Supervisor {
	return k.supervisors
}

// prepare creates the working directory, stops leftover children, clears the
// previous boot log, withdraws stale nodes, downloads missing binaries and
// renders role config files. Only a missing working directory is fatal.
func (k *Keeper) prepare(ctx context.Context) error {
	if err := k.layout.Prepare(); err != nil {
		return err
	}
	k.logger.Infof("Working directory ready: %s", k.layout.Dir)

	names := make([]string, 0, len(k.roles))
	for _, role := range k.roles {
		names = append(names, role.Name())
	}
	if reaped := k.processFiles.ReapStale(names); reaped > 0 {
		k.logger.Infof("Stopped %d children left over from a previous run", reaped)
	}

	// a quick tunnel must not report the hostname of a previous run
	if err := os.Remove(k.layout.Path(workdir.BootLogFile)); err != nil && !os.IsNotExist(err) {
		k.logger.Warnf("Failed to remove previous boot log: %v", err)
	}

	if err := k.uploader.DeleteNodes(ctx, k.layout.Path(workdir.SubscriptionFile)); err != nil {
		k.logger.Warnf("Failed to delete previous nodes: %v", err)
	}

	if err := k.coordinator.FetchMissing(ctx); err != nil {
		k.logger.Errorf("Initial download incomplete, supervisors will retry: %v", err)
	}

	for _, role := range k.roles {
		files, err := role.Files()
		if err != nil {
			k.logger.Errorf("Failed to render config, role: %s, error: %v", role.Name(), err)
			continue
		}
		for _, file := range files {
			if err := k.layout.WriteFile(file.Name, file.Data); err != nil {
				k.logger.Errorf("Failed to write config, role: %s, error: %v", role.Name(), err)
				continue
			}
			k.logger.Debugf("Config written, role: %s, file: %s", role.Name(), file.Name)
		}
	}
	return nil
}

// Run blocks until ctx ends. Component failures are logged and retried; Run
// only returns early when the working directory cannot be created.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.Infof("Keeper starting, roles: %d, variant: %s", len(k.roles), k.options.Variant)

	if err := k.prepare(ctx); err != nil {
		_ = k.httpServer.Shutdown(context.Background())
		if k.controlServer != nil {
			k.controlServer.Close(context.Background())
		}
		return err
	}

	k.httpServer.Start()
	if k.controlServer != nil {
		k.controlServer.Start(ctx)
	}

	var wg sync.WaitGroup
	for _, s := range k.supervisors {
		wg.Add(1)
		go func(s *supervisor.Supervisor) {
			defer wg.Done()
			if err := s.Run(ctx); err != nil && !errors.IsCancelledError(err) {
				k.logger.Errorf("Supervisor stopped, role: %s, error: %v", s.Name(), err)
			}
		}(s)
	}

	pending := k.extractor.Start(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		k.publish(ctx, pending)
	}()

	if err := k.uploader.AddVisitTask(ctx); err != nil {
		k.logger.Errorf("Add automatic access task failed: %v", err)
	}

	<-ctx.Done()
	k.logger.Infof("Keeper stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), k.options.ShutdownTimeout)
	defer cancel()

	if err := k.httpServer.Shutdown(shutdownCtx); err != nil {
		k.logger.Warnf("HTTP shutdown: %v", err)
	}
	if k.controlServer != nil {
		k.controlServer.Shutdown(shutdownCtx)
	}

	wg.Wait()
	k.logger.Infof("Keeper stopped")
	return nil
}

func (k *Keeper) publish(ctx context.Context, pending *discovery.Pending) {
	result, err := pending.Result()
	if err != nil {
		k.logger.Debugf("Hostname discovery ended: %v", err)
		return
	}
	if !result.Found {
		k.logger.Warnf("No tunnel hostname, subscription not generated")
		return
	}
	if _, err := k.publisher.Publish(ctx, result.Hostname); err != nil {
		k.logger.Errorf("Failed to publish subscription: %v", err)
	}
}
