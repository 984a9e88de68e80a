package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

func newPortsCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the serial ports the station would register",
		Long: `List the serial ports the station would register: the ports given with
--port or in the config file, otherwise every serial device whose name
matches port_pattern (default ".*USB.?"). Ports are not opened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPorts(cmd.OutOrStdout(), gf)
		},
	}
}

func runPorts(w io.Writer, gf *globalFlags) error {
	if err := checkOutput(gf.output); err != nil {
		return err
	}

	cfg, err := loadConfig(gf)
	if err != nil {
		return err
	}

	var ports []string
	switch {
	case gf.simulate > 0:
		ports = []string{simPort}
	case len(cfg.Ports) > 0:
		ports = cfg.Ports
	default:
		ports, err = transport.ListPorts(cfg.PortPattern)
		if err != nil {
			return err
		}
	}

	return render(w, gf.output, map[string][]string{"ports": ports}, func(w io.Writer) {
		for _, p := range ports {
			fmt.Fprintln(w, p)
		}
	})
}
