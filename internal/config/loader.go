package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"serverharness/internal/errors"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "SERVERHARNESS"

// EnvConfigPath names an explicit config file.
const EnvConfigPath = "SERVERHARNESS_CONFIG_PATH"

// Loader handles Viper-based configuration loading.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults and environment overrides registered.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("server.dir", defaults.Server.Dir)
	v.SetDefault("server.minecraft_version", defaults.Server.MinecraftVersion)
	v.SetDefault("server.forge_version", defaults.Server.ForgeVersion)
	v.SetDefault("server.eula_accepted", defaults.Server.EulaAccepted)

	v.SetDefault("java.binary_path", defaults.Java.BinaryPath)
	v.SetDefault("java.jvm_args", defaults.Java.JVMArgs)

	v.SetDefault("timing.startup_timeout_ms", defaults.Timing.StartupTimeoutMS)
	v.SetDefault("timing.delay_before_steps_ms", defaults.Timing.DelayBeforeStepsMS)
	v.SetDefault("timing.delay_between_steps_ms", defaults.Timing.DelayBetweenStepsMS)
	v.SetDefault("timing.stop_timeout_ms", defaults.Timing.StopTimeoutMS)

	v.SetDefault("install.maven_url", defaults.Install.MavenURL)
	v.SetDefault("install.max_retries", defaults.Install.MaxRetries)
	v.SetDefault("install.keep_installer", defaults.Install.KeepInstaller)

	v.SetDefault("provision.mods_manifest", defaults.Provision.ModsManifest)
	v.SetDefault("provision.config_dir", defaults.Provision.ConfigDir)
	v.SetDefault("provision.concurrency", defaults.Provision.Concurrency)

	v.SetDefault("properties.simplified", defaults.Properties.Simplified)
	v.SetDefault("properties.port", defaults.Properties.Port)

	v.SetDefault("report.enabled", defaults.Report.Enabled)
	v.SetDefault("report.path", defaults.Report.Path)

	v.SetDefault("output.echo_server", defaults.Output.EchoServer)

	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.level", defaults.Logging.Level)
}

// Load finds and reads the config file, applies environment overrides, and
// validates the result. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return l.LoadFromFile(path)
	}

	l.v.SetConfigName("serverharness")
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	l.v.AddConfigPath("config")
	l.v.AddConfigPath(ConfigDir())

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return l.unmarshal()
}

// LoadFromFile reads configuration from an explicit file path.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

// ConfigFileUsed returns the file the configuration was read from, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set overrides a single key, used for command-line flags.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "serverharness")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".serverharness"
	}
	return filepath.Join(home, ".config", "serverharness")
}
