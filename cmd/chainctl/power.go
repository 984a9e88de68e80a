package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newPowerCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "power on|off",
		Short:     "Switch the hub ports that feed the chains",
		Long:      `Switch the USB hub ports with power_command (default ykushcmd). The hub utility usually needs superuser rights.`,
		ValidArgs: []string{"on", "off"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), gf, false)
			if err != nil {
				return err
			}
			defer a.close()

			if args[0] == "on" {
				err = a.station.PowerOn(cmd.Context())
			} else {
				err = a.station.PowerOff(cmd.Context())
			}
			if err != nil {
				return err
			}

			result := map[string]string{"power": args[0], "port": a.cfg.PowerPort}
			return render(cmd.OutOrStdout(), gf.output, result, func(w io.Writer) {
				fmt.Fprintf(w, "power %s (hub port %s)\n", args[0], a.cfg.PowerPort)
			})
		},
	}
}
