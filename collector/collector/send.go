package collector

import (
	"github.com/derktes/pi-ir/pulse"
	"github.com/spf13/cobra"
)

type sendFlags struct {
	gpio       int
	frequency  float64
	interval   int
	concurrent bool
}

func newSendCmd(e *env) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:     "send <path>",
		Aliases: []string{"s"},
		Short:   "Send an IR code",
		Long: `Send the code stored in a file. A file holding an array of codes sends
each of them in turn, pausing between codes.

Example:
  collector send codes/tv/power.json -g 18`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.send(cmd, args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&f.gpio, "gpio", "g", -1, "GPIO number of the IR LED")
	flags.Float64VarP(&f.frequency, "frequency", "f", pulse.DefaultFrequency, "Sub-carrier frequency in kHz")
	flags.IntVarP(&f.interval, "interval", "i", int(pulse.DefaultInterval.Milliseconds()), "Interval time in milliseconds before sending a next code")
	flags.BoolVar(&f.concurrent, "concurrent", false, "Pace every code independently")
	return cmd
}

func (e *env) send(cmd *cobra.Command, path string, f sendFlags) error {
	pin := e.cfg.Send.Pin
	flags := cmd.Flags()
	if flags.Changed("gpio") {
		pin = f.gpio
	}
	opts := e.cfg.Send.Options
	if flags.Changed("frequency") {
		opts.Frequency = f.frequency
	}
	if flags.Changed("interval") {
		opts.Interval = millis(float64(f.interval))
	}
	if flags.Changed("concurrent") {
		opts.Concurrent = f.concurrent
	}
	opts.Logger = e.log

	codes, err := readCodes(path)
	if err != nil {
		return err
	}

	driver, err := e.openDriver()
	if err != nil {
		return err
	}
	defer driver.Close()

	ctx, cancel := interruptible(cmd.Context())
	defer cancel()
	if err := pulse.Send(ctx, driver, pin, codes, opts); err != nil {
		return err
	}
	e.log.Printf("Sent %d code(s) from '%s'", len(codes), path)
	return nil
}
