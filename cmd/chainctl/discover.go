package main

import (
	"io"

	"github.com/spf13/cobra"
)

type discoverFlags struct {
	count int
}

func newDiscoverCmd(gf *globalFlags) *cobra.Command {
	flags := &discoverFlags{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover the boards on every registered port",
		Long: `Broadcast a discovery PING on every registered port and collect one ACK per
board, in chain order. All ports are discovered concurrently.

The protocol has no end-of-chain marker: --count (default devices_per_chain)
must not exceed the real chain length, or discovery of that port times out.`,
		Example: `  # Discover the default 13 boards per chain on every USB serial port
  chainctl discover

  # Discover a chain of 4 boards on one port
  chainctl discover --port /dev/ttyUSB0 --count 4

  # Try it without hardware
  chainctl discover --simulate 3 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd, gf, flags)
		},
	}

	cmd.Flags().IntVar(&flags.count, "count", 0, "Boards expected per chain (default devices_per_chain)")

	return cmd
}

func runDiscover(cmd *cobra.Command, gf *globalFlags, flags *discoverFlags) error {
	a, err := newApp(cmd.Context(), gf, true)
	if err != nil {
		return err
	}
	defer a.close()

	results, discoverErr := a.station.DiscoverAll(cmd.Context(), flags.count)

	ports := make([]string, 0, len(results))
	for _, p := range a.station.AvailablePorts() {
		if _, ok := results[p]; ok {
			ports = append(ports, p)
		}
	}

	if err := render(cmd.OutOrStdout(), gf.output, results, func(w io.Writer) {
		printDevices(w, ports, results)
	}); err != nil {
		return err
	}

	return discoverErr
}

func newDevicesCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Show the boards of every port",
		Long: `Run discovery on every registered port and show the device map, including
ports whose discovery failed. Failures are logged, not returned.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), gf, true)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.station.DiscoverAll(cmd.Context(), 0); err != nil {
				a.logger.Warn("discovery incomplete", "error", err)
			}

			devices := a.station.Devices()
			return render(cmd.OutOrStdout(), gf.output, map[string]any{"ports": devices}, func(w io.Writer) {
				printDevices(w, a.station.AvailablePorts(), devices)
			})
		},
	}
}
