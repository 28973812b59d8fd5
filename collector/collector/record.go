package collector

import (
	"context"
	"os"
	"time"

	"github.com/derktes/pi-ir/pulse"
	"github.com/spf13/cobra"
)

type recordFlags struct {
	gpio       int
	confirm    int
	tolerance  float64
	minLength  int
	maxWidth   float64
	minWidth   float64
	maxRejects int
	timeout    time.Duration
	publish    string
	name       string
}

func newRecordCmd(e *env) *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:     "record <path>",
		Aliases: []string{"r"},
		Short:   "Record an IR code",
		Long: `Record an IR code into a new file. The code is captured repeatedly
until enough captures agree, then the averaged code is written as a JSON
array of microsecond durations.

Example:
  collector record codes/tv/power.json -g 17`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.record(cmd, args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&f.gpio, "gpio", "g", -1, "GPIO number of the receiver")
	flags.IntVarP(&f.confirm, "confirm", "c", pulse.DefaultConfirm, "Repeat the code in confirm times to verify")
	flags.Float64VarP(&f.tolerance, "tolerance", "t", pulse.DefaultTolerance*100, "Acceptable pulses tolerance percentage")
	flags.IntVarP(&f.minLength, "min-length", "l", pulse.DefaultMinLength, "Acceptable minimal code length")
	flags.Float64VarP(&f.maxWidth, "max-width", "M", 15, "Acceptable maximum pulse/space width in milliseconds")
	flags.Float64VarP(&f.minWidth, "min-width", "m", 0.1, "Acceptable minimum pulse/space width in milliseconds")
	flags.IntVar(&f.maxRejects, "max-rejects", 0, "Give up after this many rejected codes, 0 waits forever")
	flags.DurationVar(&f.timeout, "timeout", 0, "Give up after this long, 0 waits forever")
	flags.StringVar(&f.publish, "publish", "", "Also store the code on the server at this URL")
	flags.StringVar(&f.name, "name", "", "Name of the published code (default file name)")
	return cmd
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func (e *env) record(cmd *cobra.Command, path string, f recordFlags) (err error) {
	pin := e.cfg.Record.Pin
	if cmd.Flags().Changed("gpio") {
		pin = f.gpio
	}
	opts := e.cfg.Record.Options
	flags := cmd.Flags()
	if flags.Changed("confirm") {
		opts.Confirm = f.confirm
	}
	if flags.Changed("tolerance") {
		opts.Average.Tolerance = f.tolerance / 100
	}
	if flags.Changed("min-length") {
		opts.MinLength = f.minLength
	}
	if flags.Changed("max-width") {
		opts.Listen.MaxWidth = millis(f.maxWidth)
	}
	if flags.Changed("min-width") {
		opts.Listen.MinWidth = millis(f.minWidth)
	}
	if flags.Changed("max-rejects") {
		opts.MaxRejects = f.maxRejects
	}
	opts.Logger = e.log

	var publisher *publishClient
	if f.publish != "" {
		if publisher, err = newPublishClient(f.publish, e.log); err != nil {
			return err
		}
	}

	file, err := createCodeFile(path)
	if err != nil {
		return err
	}
	written := false
	defer func() {
		if err != nil && !written {
			file.Close()
			os.Remove(path)
		}
	}()

	driver, err := e.openDriver()
	if err != nil {
		return err
	}
	defer driver.Close()

	ctx, cancel := interruptible(cmd.Context())
	defer cancel()
	if f.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, f.timeout)
		defer stop()
	}

	code, err := pulse.Record(ctx, driver, pin, opts)
	if err != nil {
		return err
	}
	if err = writeCode(file, code); err != nil {
		return err
	}
	written = true
	e.log.Printf("Recorded %d durations to '%s'", len(code), path)

	if publisher == nil {
		return nil
	}
	name := f.name
	if name == "" {
		name = codeName(path)
	}
	if perr := publisher.publishCode(ctx, name, code, e.cfg.Send.Options.Frequency); perr != nil {
		e.log.Errorf("Code saved to '%s' but not published: %v", path, perr)
		return perr
	}
	return nil
}
