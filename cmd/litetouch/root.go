package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/logging"
)

const (
	// defaultConfigPath is used when neither --config nor LITETOUCH_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	// configEnvVar names the config file environment variable.
	configEnvVar = "LITETOUCH_CONFIG"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string

	// Panel overrides
	host       string
	port       int
	serialPort string
	baudRate   int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "litetouch",
		Short: "Gray Logic bridge for LiteTouch 5000LC lighting panels",
		Long: `litetouch connects a LiteTouch 5000LC / Savant SSL P-018 lighting panel
to the Gray Logic MQTT bus, and drives or inspects the panel from a shell.

Panel link:
  TCP:    --host 192.168.1.50 [--port 10001]
  Serial: --serial /dev/ttyUSB0 [--baud 9600]

Flags override the panel section of the config file. The config file is
taken from --config, then LITETOUCH_CONFIG, then configs/config.yaml. One-shot
commands fall back to built-in defaults when the default file is absent.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Config file path")
	pf.StringVar(&opts.host, "host", "", "Panel host (TCP)")
	pf.IntVar(&opts.port, "port", 0, "Panel TCP port")
	pf.StringVarP(&opts.serialPort, "serial", "s", "", "Panel serial device")
	pf.IntVarP(&opts.baudRate, "baud", "b", 0, "Baud rate (serial only)")

	root.AddCommand(
		newRunCmd(opts),
		newLoadCmd(opts),
		newSwitchCmd(opts),
		newLEDCmd(opts),
		newMonitorCmd(opts),
		newAuditCmd(opts),
		newDBCmd(opts),
	)
	return root
}

// getConfigPath returns the config file path and whether it was chosen
// explicitly by flag or environment.
func (o *rootOptions) getConfigPath() (string, bool) {
	if o.configPath != "" {
		return o.configPath, true
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// readConfig reads the config file without validating it. A missing
// default file yields the built-in defaults.
func (o *rootOptions) readConfig() (*config.Config, error) {
	path, explicit := o.getConfigPath()

	cfg, err := config.Read(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Default()
	}

	o.applyPanelFlags(&cfg.Panel)
	return cfg, nil
}

// loadConfig reads the config file, layers the panel flags on top and
// validates the result.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := o.readConfig()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyPanelFlags overrides the panel link. A host selects TCP unless a
// serial device is also given.
func (o *rootOptions) applyPanelFlags(p *config.PanelConfig) {
	if o.host != "" {
		p.Host = o.host
		p.SerialPort = ""
	}
	if o.port != 0 {
		p.Port = o.port
	}
	if o.serialPort != "" {
		p.SerialPort = o.serialPort
	}
	if o.baudRate != 0 {
		p.BaudRate = o.baudRate
	}
}

// cliLogger logs to stderr so command output on stdout stays clean.
func cliLogger(cfg *config.Config) *logging.Logger {
	logCfg := cfg.Logging
	logCfg.Output = "stderr"
	return logging.New(logCfg, version)
}

// parseIntArg converts a positional argument, naming it in the error.
func parseIntArg(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a number", name, value)
	}
	return n, nil
}
