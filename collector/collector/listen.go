package collector

import (
	"fmt"

	"github.com/derktes/pi-ir/pulse"
	"github.com/spf13/cobra"
)

func newListenCmd(e *env) *cobra.Command {
	var (
		gpio     int
		maxWidth float64
		minWidth float64
	)
	cmd := &cobra.Command{
		Use:     "listen",
		Aliases: []string{"l"},
		Short:   "Print raw IR codes as they arrive",
		Long: `Print every raw code captured on the receiver pin as a JSON array,
one per line, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pin := e.cfg.Record.Pin
			if cmd.Flags().Changed("gpio") {
				pin = gpio
			}
			opts := e.cfg.Record.Options.Listen
			if cmd.Flags().Changed("max-width") {
				opts.MaxWidth = millis(maxWidth)
			}
			if cmd.Flags().Changed("min-width") {
				opts.MinWidth = millis(minWidth)
			}
			opts.Logger = e.log
			return e.listen(cmd, pin, opts)
		},
	}

	cmd.Flags().IntVarP(&gpio, "gpio", "g", -1, "GPIO number of the receiver")
	cmd.Flags().Float64VarP(&maxWidth, "max-width", "M", 15, "Acceptable maximum pulse/space width in milliseconds")
	cmd.Flags().Float64VarP(&minWidth, "min-width", "m", 0.1, "Acceptable minimum pulse/space width in milliseconds")
	return cmd
}

func (e *env) listen(cmd *cobra.Command, pin int, opts pulse.ListenOptions) error {
	driver, err := e.openDriver()
	if err != nil {
		return err
	}
	defer driver.Close()

	listener, err := pulse.Listen(driver, pin, opts)
	if err != nil {
		return err
	}
	sub, err := listener.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Close()

	ctx, cancel := interruptible(cmd.Context())
	defer cancel()
	e.log.Printf("Listening on GPIO %d, press Ctrl-C to exit", pin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case code, ok := <-sub.Codes():
			if !ok {
				return fmt.Errorf("edge stream of GPIO %d closed", pin)
			}
			fmt.Fprintln(e.out, code.String())
		}
	}
}
