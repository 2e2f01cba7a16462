// Package envfile writes the files a server reads at startup: eula.txt and
// server.properties.
//
// The port is taken from configuration when set. Otherwise it is derived
// from the Minecraft version as 25000 + minor*100 + patch, so servers for
// different game versions can run side by side on one CI host. Pre-release
// and build metadata do not affect the port.
package envfile

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/afero"

	"serverharness/internal/errors"
	"serverharness/internal/logging"
)

// BasePort is the port of Minecraft x.0.0.
const BasePort = 25000

const (
	EulaFile       = "eula.txt"
	PropertiesFile = "server.properties"
)

// Options configures a Writer.
type Options struct {
	ServerDir        string
	MinecraftVersion string
	EulaAccepted     bool

	// Simplified writes only the properties a test server needs.
	Simplified bool

	// Port overrides the derived port when non-zero.
	Port int

	// Extra properties override or extend the generated set.
	Extra map[string]string
}

// Writer writes the server's environment files.
type Writer struct {
	opts   Options
	fs     afero.Fs
	logger *logging.Logger
	now    func() time.Time
}

// New creates a Writer on the OS filesystem.
func New(opts Options) *Writer {
	return &Writer{
		opts:   opts,
		fs:     afero.NewOsFs(),
		logger: logging.NopLogger(),
		now:    time.Now,
	}
}

// SetFs replaces the filesystem.
func (w *Writer) SetFs(fs afero.Fs) {
	w.fs = fs
}

// SetLogger configures structured logging.
func (w *Writer) SetLogger(l *logging.Logger) {
	w.logger = l.WithComponent("envfile")
}

// WriteEula records EULA acceptance. It refuses to write anything unless the
// EULA was accepted in configuration.
func (w *Writer) WriteEula() error {
	if !w.opts.EulaAccepted {
		return errors.NewConfigurationError("eula", "the Minecraft EULA must be accepted")
	}

	content := fmt.Sprintf(
		"#By changing the setting below to TRUE you are indicating your agreement to our EULA (https://aka.ms/MinecraftEULA).\n#%s\neula=true\n",
		w.now().Format(time.UnixDate))

	path := filepath.Join(w.opts.ServerDir, EulaFile)
	if err := afero.WriteFile(w.fs, path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", EulaFile, err)
	}
	w.logger.Debug("eula written", "path", path)
	return nil
}

// Port returns the configured port or derives one from the Minecraft version.
func (w *Writer) Port() (int, error) {
	if w.opts.Port != 0 {
		return w.opts.Port, nil
	}
	return DerivePort(w.opts.MinecraftVersion)
}

// DerivePort maps a Minecraft version to a port.
func DerivePort(minecraftVersion string) (int, error) {
	v, err := semver.NewVersion(minecraftVersion)
	if err != nil {
		return 0, fmt.Errorf("cannot derive port from minecraft version %q: %w", minecraftVersion, err)
	}
	if v.Patch() >= 100 {
		return 0, fmt.Errorf("cannot derive port from minecraft version %q: patch %d out of range", minecraftVersion, v.Patch())
	}

	port := BasePort + int(v.Minor())*100 + int(v.Patch())
	if port > 65535 {
		return 0, fmt.Errorf("cannot derive port from minecraft version %q: %d out of range", minecraftVersion, port)
	}
	return port, nil
}

// Properties returns the server.properties content as a map.
func (w *Writer) Properties() (map[string]string, error) {
	port, err := w.Port()
	if err != nil {
		return nil, err
	}

	var props map[string]string
	if w.opts.Simplified {
		props = simplifiedProperties()
	} else {
		props = fullProperties()
	}
	props["server-port"] = strconv.Itoa(port)
	props["query.port"] = strconv.Itoa(port)

	maps.Copy(props, w.opts.Extra)
	return props, nil
}

// WriteServerProperties writes server.properties with keys in sorted order.
func (w *Writer) WriteServerProperties() error {
	props, err := w.Properties()
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("#Minecraft server properties\n")
	sb.WriteString("#" + w.now().Format(time.UnixDate) + "\n")
	for _, k := range slices.Sorted(maps.Keys(props)) {
		sb.WriteString(k + "=" + escape(props[k]) + "\n")
	}

	path := filepath.Join(w.opts.ServerDir, PropertiesFile)
	if err := afero.WriteFile(w.fs, path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", PropertiesFile, err)
	}
	w.logger.Info("server properties written", "path", path, "port", props["server-port"], "simplified", w.opts.Simplified)
	return nil
}

// escape applies the Java properties escapes the server expects for values.
func escape(v string) string {
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, ":", `\:`, "=", `\=`)
	return r.Replace(v)
}

func simplifiedProperties() map[string]string {
	return map[string]string{
		"online-mode":         "false",
		"level-name":          "world",
		"level-type":          "minecraft:flat",
		"motd":                "serverharness",
		"max-players":         "1",
		"spawn-protection":    "0",
		"view-distance":       "4",
		"simulation-distance": "4",
		"enable-query":        "false",
		"enable-rcon":         "false",
		"sync-chunk-writes":   "false",
	}
}

func fullProperties() map[string]string {
	props := simplifiedProperties()
	maps.Copy(props, map[string]string{
		"level-type":                        "minecraft:normal",
		"max-players":                       "20",
		"spawn-protection":                  "16",
		"view-distance":                     "10",
		"simulation-distance":               "10",
		"sync-chunk-writes":                 "true",
		"allow-flight":                      "false",
		"allow-nether":                      "true",
		"broadcast-console-to-ops":          "true",
		"difficulty":                        "easy",
		"enable-command-block":              "false",
		"enable-status":                     "true",
		"enforce-whitelist":                 "false",
		"force-gamemode":                    "false",
		"gamemode":                          "survival",
		"generate-structures":               "true",
		"hardcore":                          "false",
		"level-seed":                        "",
		"max-tick-time":                     "60000",
		"max-world-size":                    "29999984",
		"network-compression-threshold":     "256",
		"op-permission-level":               "4",
		"player-idle-timeout":               "0",
		"pvp":                               "true",
		"server-ip":                         "",
		"spawn-animals":                     "true",
		"spawn-monsters":                    "true",
		"spawn-npcs":                        "true",
		"white-list":                        "false",
		"entity-broadcast-range-percentage": "100",
	})
	return props
}
