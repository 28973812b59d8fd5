package collector

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/derktes/pi-ir/config"
	"github.com/derktes/pi-ir/gpio"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// driverOpener opens the GPIO driver a command runs against.
type driverOpener func(cfg *config.Config, log logrus.FieldLogger) (gpio.Driver, error)

// env is the state shared by every subcommand once the persistent flags
// are resolved.
type env struct {
	cfg  *config.Config
	log  *logrus.Logger
	open driverOpener
	out  io.Writer

	configPath string
	driver     string
	serialPort string
	baudRate   int
	logLevel   string
}

func openConfiguredDriver(cfg *config.Config, log logrus.FieldLogger) (gpio.Driver, error) {
	return cfg.OpenDriver(log)
}

// NewRootCmd builds the collector command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&env{open: openConfiguredDriver})
}

func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "collector",
		Short: "Record and replay infrared codes",
		Long: `collector records raw infrared codes from a receiver on a GPIO pin,
normalizes repeated captures into one canonical code and replays codes
through an IR LED on another pin.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&e.configPath, "config", "", "Path of the YAML configuration file (default "+config.GetDefaultConfigPath()+")")
	flags.StringVar(&e.driver, "driver", config.DriverSerial, "GPIO driver, serial or loopback")
	flags.StringVar(&e.serialPort, "serial", "", "Specifies the serial port of the GPIO bridge in the form /dev/xxx")
	flags.IntVar(&e.baudRate, "baud", gpio.DefaultBaud, "Specifies the baud rate of the serial port")
	flags.StringVar(&e.logLevel, "log-level", "info", "Log level")

	rootCmd.AddCommand(
		newRecordCmd(e),
		newSendCmd(e),
		newListenCmd(e),
		newAverageCmd(e),
	)
	return rootCmd
}

// load reads the configuration file and applies the flags that were set
// explicitly on top of it.
func (e *env) load(cmd *cobra.Command) error {
	path := e.configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if e.configPath != "" || config.ConfigExists(path) {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.GPIO.Driver = e.driver
	}
	if flags.Changed("serial") {
		cfg.GPIO.Port = e.serialPort
	}
	if flags.Changed("baud") {
		cfg.GPIO.Baud = e.baudRate
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = e.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	log.SetOutput(cmd.ErrOrStderr())
	e.cfg = cfg
	e.log = log
	e.out = cmd.OutOrStdout()
	return nil
}

// openDriver opens the configured driver. The caller closes it.
func (e *env) openDriver() (gpio.Driver, error) {
	d, err := e.open(e.cfg, e.log)
	if err != nil {
		return nil, fmt.Errorf("opening %s driver: %w", e.cfg.GPIO.Driver, err)
	}
	if e.cfg.GPIO.Driver == config.DriverSerial {
		e.log.Printf("Opened serial port '%s' at baud rate %d", e.cfg.GPIO.Port, e.cfg.GPIO.Baud)
	}
	return d, nil
}

// interruptible returns a context cancelled on Ctrl-C.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

// Execute runs the collector and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
