// Command chainctl drives daisy-chained SRAM boards from the acquisition
// station: port registration, discovery, page reads and writes, hub power,
// and a device emulator for bench testing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "chainctl",
		Short: "Control SRAM board chains over serial ports",
		Long: `chainctl talks to chains of SRAM boards connected to the station's serial
ports. Each port carries one chain; boards are found by discovery and then
addressed by their 96-bit board id.

Pages read from a board are stored: the first read of a page becomes its
reference, later reads are kept as samples.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&gf.configPath, "config", "", "Station config file (YAML)")
	pf.StringSliceVar(&gf.ports, "port", nil, "Serial port to use; repeatable (default: ports matching port_pattern)")
	pf.IntVar(&gf.simulate, "simulate", 0, "Use an in-process chain of N simulated boards instead of serial ports")
	pf.StringVar(&gf.output, "output", "text", "Output format: text|json")
	pf.StringVar(&gf.logLevel, "log-level", "", "Log level override: debug|info|warn|error")
	pf.StringVar(&gf.storeDir, "store-dir", "", "Sample store directory override")

	rootCmd.AddCommand(newPortsCmd(gf))
	rootCmd.AddCommand(newDiscoverCmd(gf))
	rootCmd.AddCommand(newDevicesCmd(gf))
	rootCmd.AddCommand(newPingCmd(gf))
	rootCmd.AddCommand(newReadCmd(gf))
	rootCmd.AddCommand(newWriteCmd(gf))
	rootCmd.AddCommand(newWriteInvertCmd(gf))
	rootCmd.AddCommand(newPowerCmd(gf))
	rootCmd.AddCommand(newEmulateCmd(gf))

	return rootCmd
}
