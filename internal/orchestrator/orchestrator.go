// Package orchestrator prepares a server directory and runs one harness
// session against it.
//
// An [Orchestrator] is configured with setters, then [Orchestrator.Run]
// performs the whole sequence:
//
//  1. Validate preconditions (versions, EULA, server directory)
//  2. Install the server if needed and confirm the server jar exists
//  3. Copy mods and config files
//  4. Write eula.txt and server.properties
//  5. Launch the server through a [lifecycle.Controller] and run the steps
//
// Each collaborator can be replaced for tests. Collaborators that are not set
// are built from the orchestrator's own settings when Run starts.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"serverharness/internal/config"
	"serverharness/internal/download"
	"serverharness/internal/envfile"
	"serverharness/internal/errors"
	"serverharness/internal/installer"
	"serverharness/internal/lifecycle"
	"serverharness/internal/logging"
	"serverharness/internal/manifest"
	"serverharness/internal/process"
	"serverharness/internal/provision"
	"serverharness/internal/step"
)

// Installer makes sure the server jar is present in the server directory.
type Installer interface {
	EnsureInstalled(ctx context.Context) (installer.Result, error)
	IsInstalled() bool
	ServerJar() string
}

// FileProvisioner copies mods and config files into the server directory.
type FileProvisioner interface {
	CopyMods(ctx context.Context) error
	CopyConfigs(ctx context.Context) error
}

// EnvironmentWriter writes the files the server reads at startup.
type EnvironmentWriter interface {
	WriteEula() error
	WriteServerProperties() error
}

// Stage names a phase of [Orchestrator.Run], reported to the stage callback.
type Stage string

const (
	StageInstall     Stage = "install"
	StageProvision   Stage = "provision"
	StageEnvironment Stage = "environment"
	StageLaunch      Stage = "launch"
)

// StageCallback is invoked when Run enters a new stage.
type StageCallback func(stage Stage)

// Orchestrator wires the installer, provisioner, environment writer and
// lifecycle controller into a single run. It is not safe for concurrent use
// and, like the controller it creates, runs once.
type Orchestrator struct {
	serverDir        string
	javaPath         string
	jvmArgs          []string
	minecraftVersion string
	forgeVersion     string

	startupTimeout    time.Duration
	delayBeforeSteps  time.Duration
	delayBetweenSteps time.Duration
	stopTimeout       time.Duration

	eulaAccepted bool
	simplified   bool
	port         int
	properties   map[string]string

	mavenURL      string
	maxRetries    int
	keepInstaller bool

	mods        *manifest.Manifest
	configDir   string
	concurrency int

	installer   Installer
	provisioner FileProvisioner
	env         EnvironmentWriter
	spawner     process.Spawner

	steps []step.Step

	logger   *logging.Logger
	onStage  StageCallback
	progress lifecycle.ProgressCallback
	output   lifecycle.OutputCallback

	controller *lifecycle.Controller
}

// New creates an Orchestrator with default timings and the system java.
func New() *Orchestrator {
	return &Orchestrator{
		javaPath:          "java",
		startupTimeout:    lifecycle.DefaultStartupTimeout,
		delayBeforeSteps:  lifecycle.DefaultDelayBeforeSteps,
		delayBetweenSteps: lifecycle.DefaultDelayBetweenSteps,
		mavenURL:          installer.DefaultMavenURL,
		maxRetries:        download.DefaultMaxRetries,
		concurrency:       provision.DefaultConcurrency,
		logger:            logging.NopLogger(),
	}
}

// FromConfig creates an Orchestrator from loaded configuration. The mods
// manifest, when configured, is read here so a bad manifest fails before
// anything touches the server directory.
func FromConfig(cfg *config.Config) (*Orchestrator, error) {
	steps, err := cfg.BuildSteps()
	if err != nil {
		return nil, err
	}

	o := New().
		SetServerDir(cfg.Server.Dir).
		SetVersions(cfg.Server.MinecraftVersion, cfg.Server.ForgeVersion).
		SetEulaAccepted(cfg.Server.EulaAccepted).
		SetJavaPath(cfg.Java.BinaryPath).
		SetJVMArgs(cfg.Java.JVMArgs...).
		SetStartupTimeout(cfg.Timing.StartupTimeout()).
		SetDelayBeforeSteps(cfg.Timing.DelayBeforeSteps()).
		SetDelayBetweenSteps(cfg.Timing.DelayBetweenSteps()).
		SetStopTimeout(cfg.Timing.StopTimeout()).
		SetSimplifiedProperties(cfg.Properties.Simplified).
		SetPort(cfg.Properties.Port).
		SetProperties(cfg.Properties.Extra).
		SetMavenURL(cfg.Install.MavenURL).
		SetMaxRetries(cfg.Install.MaxRetries).
		SetKeepInstaller(cfg.Install.KeepInstaller).
		SetConfigDir(cfg.Provision.ConfigDir).
		SetConcurrency(cfg.Provision.Concurrency)

	if cfg.Provision.ModsManifest != "" {
		mods, err := manifest.ReadFromFile(cfg.Provision.ModsManifest)
		if err != nil {
			return nil, fmt.Errorf("failed to load mods manifest: %w", err)
		}
		o.SetMods(mods)
	}

	for _, s := range steps {
		o.AddStep(s)
	}
	return o, nil
}

// SetServerDir sets the directory the server is installed into and runs in.
func (o *Orchestrator) SetServerDir(dir string) *Orchestrator {
	o.serverDir = dir
	return o
}

// SetJavaPath sets the java executable. Empty keeps the current value.
func (o *Orchestrator) SetJavaPath(path string) *Orchestrator {
	if path != "" {
		o.javaPath = path
	}
	return o
}

// SetJVMArgs sets the arguments placed before -jar.
func (o *Orchestrator) SetJVMArgs(args ...string) *Orchestrator {
	o.jvmArgs = append([]string(nil), args...)
	return o
}

// SetVersions sets the Minecraft and Forge versions.
func (o *Orchestrator) SetVersions(minecraft, forge string) *Orchestrator {
	o.minecraftVersion = minecraft
	o.forgeVersion = forge
	return o
}

// SetStartupTimeout bounds the wait for the ready marker. Zero or negative
// disables the deadline.
func (o *Orchestrator) SetStartupTimeout(d time.Duration) *Orchestrator {
	o.startupTimeout = d
	return o
}

// SetDelayBeforeSteps sets the pause between readiness and the first step.
func (o *Orchestrator) SetDelayBeforeSteps(d time.Duration) *Orchestrator {
	o.delayBeforeSteps = d
	return o
}

// SetDelayBetweenSteps sets the pause after each step.
func (o *Orchestrator) SetDelayBetweenSteps(d time.Duration) *Orchestrator {
	o.delayBetweenSteps = d
	return o
}

// SetStopTimeout bounds the wait for exit after the stop command. Zero waits
// indefinitely.
func (o *Orchestrator) SetStopTimeout(d time.Duration) *Orchestrator {
	o.stopTimeout = d
	return o
}

// SetEulaAccepted records acceptance of the Minecraft EULA. Run refuses to
// start without it.
func (o *Orchestrator) SetEulaAccepted(accepted bool) *Orchestrator {
	o.eulaAccepted = accepted
	return o
}

// SetSimplifiedProperties writes the reduced server.properties set.
func (o *Orchestrator) SetSimplifiedProperties(simplified bool) *Orchestrator {
	o.simplified = simplified
	return o
}

// SetPort fixes the server port. Zero derives it from the Minecraft version.
func (o *Orchestrator) SetPort(port int) *Orchestrator {
	o.port = port
	return o
}

// SetProperties adds server.properties entries that override the generated ones.
func (o *Orchestrator) SetProperties(props map[string]string) *Orchestrator {
	o.properties = props
	return o
}

// SetMavenURL sets the repository the Forge installer is downloaded from.
// An empty url keeps the default.
func (o *Orchestrator) SetMavenURL(url string) *Orchestrator {
	if url != "" {
		o.mavenURL = url
	}
	return o
}

// SetMaxRetries bounds download retries for the Forge installer.
func (o *Orchestrator) SetMaxRetries(n int) *Orchestrator {
	o.maxRetries = n
	return o
}

// SetKeepInstaller keeps the installer jar and its log after installing.
func (o *Orchestrator) SetKeepInstaller(keep bool) *Orchestrator {
	o.keepInstaller = keep
	return o
}

// SetMods sets the mods to install.
func (o *Orchestrator) SetMods(m *manifest.Manifest) *Orchestrator {
	o.mods = m
	return o
}

// SetConfigDir sets the directory copied into <server dir>/config.
func (o *Orchestrator) SetConfigDir(dir string) *Orchestrator {
	o.configDir = dir
	return o
}

// SetConcurrency limits parallel mod installs. Values below one are ignored.
func (o *Orchestrator) SetConcurrency(n int) *Orchestrator {
	if n > 0 {
		o.concurrency = n
	}
	return o
}

// SetInstaller replaces the default Forge installer.
func (o *Orchestrator) SetInstaller(i Installer) *Orchestrator {
	o.installer = i
	return o
}

// SetProvisioner replaces the default mod and config provisioner.
func (o *Orchestrator) SetProvisioner(p FileProvisioner) *Orchestrator {
	o.provisioner = p
	return o
}

// SetEnvironmentWriter replaces the default eula/properties writer.
func (o *Orchestrator) SetEnvironmentWriter(w EnvironmentWriter) *Orchestrator {
	o.env = w
	return o
}

// SetSpawner replaces the process spawner used to launch the server and, when
// no installer was set, to run the Forge installer.
func (o *Orchestrator) SetSpawner(s process.Spawner) *Orchestrator {
	o.spawner = s
	return o
}

// AddStep appends a step to run once the server is ready.
func (o *Orchestrator) AddStep(s step.Step) *Orchestrator {
	o.steps = append(o.steps, s)
	return o
}

// SetLogger configures structured logging for the run and its collaborators.
func (o *Orchestrator) SetLogger(l *logging.Logger) *Orchestrator {
	o.logger = l
	return o
}

// SetStageCallback is called as each run stage begins.
func (o *Orchestrator) SetStageCallback(cb StageCallback) *Orchestrator {
	o.onStage = cb
	return o
}

// SetProgressCallback is called before each step runs.
func (o *Orchestrator) SetProgressCallback(cb lifecycle.ProgressCallback) *Orchestrator {
	o.progress = cb
	return o
}

// SetOutputCallback receives every server output line.
func (o *Orchestrator) SetOutputCallback(cb lifecycle.OutputCallback) *Orchestrator {
	o.output = cb
	return o
}

// Steps returns the configured steps.
func (o *Orchestrator) Steps() []step.Step {
	return o.steps
}

// Controller returns the controller created by Run, or nil before launch.
func (o *Orchestrator) Controller() *lifecycle.Controller {
	return o.controller
}

// Pending returns the steps that had not run when the run ended. Before
// launch it returns every configured step.
func (o *Orchestrator) Pending() []step.Step {
	if o.controller == nil {
		return o.steps
	}
	return o.controller.Queue().Pending()
}

// Validate checks the preconditions Run needs before any side effect.
func (o *Orchestrator) Validate() error {
	if err := o.validateInstall(); err != nil {
		return err
	}
	if !o.eulaAccepted {
		return errors.NewConfigurationError("eula", "the Minecraft EULA must be accepted")
	}
	if o.serverDir == "" {
		return errors.NewConfigurationError("server_dir", "server directory is not set")
	}
	return nil
}

func (o *Orchestrator) validateInstall() error {
	if o.minecraftVersion == "" {
		return errors.NewConfigurationError("minecraft_version", "minecraft version is not set")
	}
	if o.forgeVersion == "" {
		return errors.NewConfigurationError("forge_version", "forge version is not set")
	}
	return nil
}

// Install makes sure the server is installed without launching it. It does
// not require the EULA to be accepted.
func (o *Orchestrator) Install(ctx context.Context) (installer.Result, error) {
	if err := o.validateInstall(); err != nil {
		return installer.Result{}, err
	}
	if o.serverDir == "" {
		return installer.Result{}, errors.NewConfigurationError("server_dir", "server directory is not set")
	}
	return o.install(ctx, o.installerOrDefault())
}

func (o *Orchestrator) install(ctx context.Context, inst Installer) (installer.Result, error) {
	o.stage(StageInstall)

	res, err := inst.EnsureInstalled(ctx)
	if err != nil {
		return res, fmt.Errorf("install failed: %w", err)
	}
	if !inst.IsInstalled() {
		return res, errors.NewConfigurationError("install", "server jar not found after install")
	}
	return res, nil
}

// Run prepares the server directory, launches the server and runs the steps.
//
// The returned Result is nil when the run failed before launch. Otherwise it
// describes the launched run and the error is the run's outcome.
func (o *Orchestrator) Run(ctx context.Context) (*lifecycle.Result, error) {
	if o.controller != nil {
		return nil, errors.ErrAlreadyLaunched
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	log := o.logger.WithComponent("orchestrator")
	log.Info("preparing server",
		"server_dir", o.serverDir,
		"minecraft_version", o.minecraftVersion,
		"forge_version", o.forgeVersion,
		"steps", len(o.steps),
	)

	inst := o.installerOrDefault()
	if _, err := o.install(ctx, inst); err != nil {
		return nil, err
	}

	o.stage(StageProvision)
	prov := o.provisionerOrDefault()
	if err := prov.CopyMods(ctx); err != nil {
		return nil, fmt.Errorf("failed to copy mods: %w", err)
	}
	if err := prov.CopyConfigs(ctx); err != nil {
		return nil, fmt.Errorf("failed to copy configs: %w", err)
	}

	o.stage(StageEnvironment)
	env := o.environmentOrDefault()
	if err := env.WriteEula(); err != nil {
		return nil, err
	}
	if err := env.WriteServerProperties(); err != nil {
		return nil, err
	}

	o.stage(StageLaunch)
	cmd := o.command(inst.ServerJar())
	log.Info("launching server", "command", cmd.String())

	ctrl := lifecycle.NewController(o.spawnerOrDefault(), step.NewQueue(o.steps...), lifecycle.Options{
		Command:           cmd,
		StartupTimeout:    o.startupTimeout,
		DelayBeforeSteps:  o.delayBeforeSteps,
		DelayBetweenSteps: o.delayBetweenSteps,
		StopTimeout:       o.stopTimeout,
	})
	ctrl.SetLogger(o.logger)
	if o.progress != nil {
		ctrl.SetProgressCallback(o.progress)
	}
	if o.output != nil {
		ctrl.SetOutputCallback(o.output)
	}
	o.controller = ctrl

	return ctrl.Launch(ctx)
}

// command builds `java <jvm args> -jar <server jar> -- nogui`, run from the
// server directory. The jar is made relative to the server directory when it
// lives inside it.
func (o *Orchestrator) command(serverJar string) process.Command {
	jar := serverJar
	if rel, err := filepath.Rel(o.serverDir, serverJar); err == nil && !strings.HasPrefix(rel, "..") {
		jar = rel
	}

	args := make([]string, 0, len(o.jvmArgs)+4)
	args = append(args, o.jvmArgs...)
	args = append(args, "-jar", jar, "--", "nogui")

	return process.Command{Path: o.javaPath, Args: args, Dir: o.serverDir}
}

func (o *Orchestrator) stage(s Stage) {
	if o.onStage != nil {
		o.onStage(s)
	}
}

func (o *Orchestrator) installerOrDefault() Installer {
	if o.installer != nil {
		return o.installer
	}
	inst := installer.New(installer.Options{
		ServerDir:        o.serverDir,
		MinecraftVersion: o.minecraftVersion,
		ForgeVersion:     o.forgeVersion,
		JavaPath:         o.javaPath,
		MavenURL:         o.mavenURL,
		MaxRetries:       o.maxRetries,
		KeepInstaller:    o.keepInstaller,
	})
	if o.spawner != nil {
		inst.SetSpawner(o.spawner)
	}
	inst.SetLogger(o.logger)
	o.installer = inst
	return inst
}

func (o *Orchestrator) provisionerOrDefault() FileProvisioner {
	if o.provisioner != nil {
		return o.provisioner
	}
	p := provision.New(provision.Options{
		ServerDir:   o.serverDir,
		Mods:        o.mods,
		ConfigDir:   o.configDir,
		Concurrency: o.concurrency,
	})
	p.SetLogger(o.logger)
	o.provisioner = p
	return p
}

func (o *Orchestrator) environmentOrDefault() EnvironmentWriter {
	if o.env != nil {
		return o.env
	}
	w := envfile.New(envfile.Options{
		ServerDir:        o.serverDir,
		MinecraftVersion: o.minecraftVersion,
		EulaAccepted:     o.eulaAccepted,
		Simplified:       o.simplified,
		Port:             o.port,
		Extra:            o.properties,
	})
	w.SetLogger(o.logger)
	o.env = w
	return w
}

func (o *Orchestrator) spawnerOrDefault() process.Spawner {
	if o.spawner != nil {
		return o.spawner
	}
	s := process.NewExecSpawner()
	s.SetLogger(o.logger)
	o.spawner = s
	return s
}
