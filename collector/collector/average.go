package collector

import (
	"fmt"

	"github.com/derktes/pi-ir/pulse"
	"github.com/spf13/cobra"
)

func newAverageCmd(e *env) *cobra.Command {
	var tolerance float64
	cmd := &cobra.Command{
		Use:     "average <path>...",
		Aliases: []string{"a"},
		Short:   "Average captured codes into one",
		Long: `Average every code found in the given files into one canonical code
and print it. Each file holds one code or an array of codes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var codes []pulse.Code
			for _, path := range args {
				c, err := readCodes(path)
				if err != nil {
					return err
				}
				codes = append(codes, c...)
			}

			opts := e.cfg.Record.Options.Average
			if cmd.Flags().Changed("tolerance") {
				opts.Tolerance = tolerance / 100
			}
			code, err := pulse.Average(codes, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, code.String())
			return nil
		},
	}
	cmd.Flags().Float64VarP(&tolerance, "tolerance", "t", pulse.DefaultTolerance*100, "Acceptable pulses tolerance percentage")
	return cmd
}
