// Package config provides configuration loading and management for serverharness.
//
// Configuration is loaded using Viper, supporting YAML config files and environment
// variable overrides. The defaults describe a harness that installs nothing
// extra, waits up to five minutes for the server, and runs no steps; a config
// file typically adds versions, mods, and a steps list.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [StepConfig] describes one scripted step (command or await)
//
// Configuration priority (highest to lowest):
//  1. Environment variables (SERVERHARNESS_ prefix, dots become underscores,
//     e.g. SERVERHARNESS_SERVER_DIR)
//  2. Config file specified by SERVERHARNESS_CONFIG_PATH
//  3. ./serverharness.yaml
//  4. ./config/serverharness.yaml
//  5. User config directory ($XDG_CONFIG_HOME/serverharness/serverharness.yaml)
//  6. [DefaultConfig] defaults
package config

import "time"

// Config represents the root configuration structure.
type Config struct {
	// Server identifies the server to run and where it lives.
	Server ServerConfig `mapstructure:"server"`

	// Java contains JVM invocation settings.
	Java JavaConfig `mapstructure:"java"`

	// Timing contains the lifecycle deadlines and step pacing.
	Timing TimingConfig `mapstructure:"timing"`

	// Install controls the Forge installer.
	Install InstallConfig `mapstructure:"install"`

	// Provision lists the mods and config files copied into the server.
	Provision ProvisionConfig `mapstructure:"provision"`

	// Properties controls server.properties generation.
	Properties PropertiesConfig `mapstructure:"properties"`

	// Steps is the ordered list of steps executed once the server is ready.
	Steps []StepConfig `mapstructure:"steps"`

	// Report controls the run report file.
	Report ReportConfig `mapstructure:"report"`

	// Output contains terminal output settings.
	Output OutputConfig `mapstructure:"output"`

	// Logging contains structured log settings.
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig identifies the server under test.
type ServerConfig struct {
	// Dir is the server working directory. Required.
	Dir string `mapstructure:"dir"`

	// MinecraftVersion is the game version, e.g. "1.20.1". Required.
	MinecraftVersion string `mapstructure:"minecraft_version"`

	// ForgeVersion is the Forge version for MinecraftVersion, e.g. "47.2.0". Required.
	ForgeVersion string `mapstructure:"forge_version"`

	// EulaAccepted records acceptance of the Minecraft EULA. Runs refuse to
	// start unless it is true.
	EulaAccepted bool `mapstructure:"eula_accepted"`
}

// JavaConfig contains JVM settings.
type JavaConfig struct {
	// BinaryPath is the java executable.
	// Default: "java" (assumes Java is in PATH).
	BinaryPath string `mapstructure:"binary_path"`

	// JVMArgs are passed before -jar, e.g. ["-Xmx2G"].
	JVMArgs []string `mapstructure:"jvm_args"`
}

// TimingConfig holds durations in milliseconds.
type TimingConfig struct {
	// StartupTimeoutMS bounds launch to ready. Default: 300000.
	StartupTimeoutMS int `mapstructure:"startup_timeout_ms"`

	// DelayBeforeStepsMS is waited after ready. Default: 100.
	DelayBeforeStepsMS int `mapstructure:"delay_before_steps_ms"`

	// DelayBetweenStepsMS is waited after every step. Default: 100.
	DelayBetweenStepsMS int `mapstructure:"delay_between_steps_ms"`

	// StopTimeoutMS bounds the wait for exit after stop. 0 waits forever.
	// Default: 60000.
	StopTimeoutMS int `mapstructure:"stop_timeout_ms"`
}

func (t TimingConfig) StartupTimeout() time.Duration {
	return time.Duration(t.StartupTimeoutMS) * time.Millisecond
}

func (t TimingConfig) DelayBeforeSteps() time.Duration {
	return time.Duration(t.DelayBeforeStepsMS) * time.Millisecond
}

func (t TimingConfig) DelayBetweenSteps() time.Duration {
	return time.Duration(t.DelayBetweenStepsMS) * time.Millisecond
}

func (t TimingConfig) StopTimeout() time.Duration {
	return time.Duration(t.StopTimeoutMS) * time.Millisecond
}

// InstallConfig controls the Forge installer.
type InstallConfig struct {
	// MavenURL is the base URL of the Forge maven repository.
	MavenURL string `mapstructure:"maven_url"`

	// MaxRetries bounds download retries. Default: 5.
	MaxRetries int `mapstructure:"max_retries"`

	// KeepInstaller skips the post-install cleanup of installer files.
	KeepInstaller bool `mapstructure:"keep_installer"`
}

// ProvisionConfig lists what is copied into the server before launch.
type ProvisionConfig struct {
	// ModsManifest is a CSV or YAML mod manifest. Empty installs no mods.
	ModsManifest string `mapstructure:"mods_manifest"`

	// ConfigDir is copied recursively into <server dir>/config. Empty skips it.
	ConfigDir string `mapstructure:"config_dir"`

	// Concurrency bounds parallel mod copies and downloads. Default: 4.
	Concurrency int `mapstructure:"concurrency"`
}

// PropertiesConfig controls server.properties generation.
type PropertiesConfig struct {
	// Simplified writes only the properties a test server needs.
	Simplified bool `mapstructure:"simplified"`

	// Port is the server port. 0 derives one from the Minecraft version.
	Port int `mapstructure:"port"`

	// Extra properties override or extend the generated set.
	Extra map[string]string `mapstructure:"extra"`
}

// StepConfig describes one step. Exactly one of Command and Await is set.
type StepConfig struct {
	// Command is a console line sent to the server.
	Command string `mapstructure:"command"`

	// Await is a case-sensitive substring to wait for in server output.
	Await string `mapstructure:"await"`

	// TimeoutMS bounds an Await. 0 waits until the process exits.
	TimeoutMS int `mapstructure:"timeout_ms"`
}

// ReportConfig controls the run report.
type ReportConfig struct {
	// Enabled writes a report after every run. Default: true.
	Enabled bool `mapstructure:"enabled"`

	// Path overrides <server dir>/serverharness-report.yaml.
	Path string `mapstructure:"path"`
}

// OutputConfig contains terminal output configuration.
type OutputConfig struct {
	// EchoServer prints every server output line to the terminal.
	EchoServer bool `mapstructure:"echo_server"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Dir receives serverharness.log. Empty logs to stderr.
	Dir string `mapstructure:"dir"`

	// Level is one of debug, info, warn, error. Default: "info".
	Level string `mapstructure:"level"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Java: JavaConfig{
			BinaryPath: "java",
		},
		Timing: TimingConfig{
			StartupTimeoutMS:    300000,
			DelayBeforeStepsMS:  100,
			DelayBetweenStepsMS: 100,
			StopTimeoutMS:       60000,
		},
		Install: InstallConfig{
			MavenURL:   "https://maven.minecraftforge.net",
			MaxRetries: 5,
		},
		Provision: ProvisionConfig{
			Concurrency: 4,
		},
		Report: ReportConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
