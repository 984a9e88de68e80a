package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mfkiwl/SRAM-Acquisition/endpoint"
	"github.com/mfkiwl/SRAM-Acquisition/logger"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

type emulateFlags struct {
	uplink   string
	downlink string
	boardID  string
	baudRate int
	settle   time.Duration
	memory   int
	checksum string
}

func newEmulateCmd(gf *globalFlags) *cobra.Command {
	flags := &emulateFlags{}

	cmd := &cobra.Command{
		Use:   "emulate",
		Short: "Act as one board between two serial ports",
		Long: `Run the board firmware's protocol on this machine. The uplink port faces the
host (or the previous board), the optional downlink port faces the next
board. Runs until interrupted.`,
		Example: `  chainctl emulate --uplink /dev/ttyUSB0 --downlink /dev/ttyUSB1 \
    --board-id 0x000000010000000200000003`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmulate(cmd, gf, flags)
		},
	}

	cmd.Flags().StringVar(&flags.uplink, "uplink", "", "Serial port towards the host (required)")
	cmd.Flags().StringVar(&flags.downlink, "downlink", "", "Serial port towards the next board")
	cmd.Flags().StringVar(&flags.boardID, "board-id", "", "Emulated board id (required)")
	cmd.Flags().IntVar(&flags.baudRate, "baud", transport.DefaultBaudRate, "Baud rate")
	cmd.Flags().DurationVar(&flags.settle, "settle", endpoint.DefaultSettleDelay, "Pause after claiming a PING or acknowledging a header")
	cmd.Flags().IntVar(&flags.memory, "memory", endpoint.DefaultMemorySize, "Emulated memory size in bytes")
	cmd.Flags().StringVar(&flags.checksum, "checksum", "sum8", "Checksum mode: sum8|none")
	_ = cmd.MarkFlagRequired("uplink")
	_ = cmd.MarkFlagRequired("board-id")

	return cmd
}

func runEmulate(cmd *cobra.Command, gf *globalFlags, flags *emulateFlags) error {
	id, err := packet.ParseBoardID(flags.boardID)
	if err != nil {
		return err
	}

	mode, err := packet.ParseChecksumMode(flags.checksum)
	if err != nil {
		return err
	}

	level := logger.InfoLevel
	if gf.logLevel != "" {
		level = logger.ParseLevel(gf.logLevel)
	}
	l := logger.NewSlog(level, false).With("board_id", id.String())

	cfg, err := endpoint.NewConfig(
		endpoint.WithSettleDelay(flags.settle),
		endpoint.WithMemorySize(flags.memory),
		endpoint.WithChecksum(mode),
		endpoint.WithLogger(l),
		endpoint.WithStateChangeHandler(func(prev, next endpoint.State) {
			l.Debug("state changed", "from", prev.String(), "to", next.String())
		}),
	)
	if err != nil {
		return err
	}

	m, err := endpoint.NewMachine(id, cfg)
	if err != nil {
		return err
	}

	uplink, err := transport.OpenSerial(flags.uplink, flags.baudRate)
	if err != nil {
		return err
	}
	defer uplink.Close()

	var downlink transport.Port
	if flags.downlink != "" {
		downlink, err = transport.OpenSerial(flags.downlink, flags.baudRate)
		if err != nil {
			return err
		}
		defer downlink.Close()
	}

	l.Info("emulating board", "uplink", flags.uplink, "downlink", flags.downlink)

	err = endpoint.NewRunner(m, uplink, downlink).Run(cmd.Context())

	mt := m.Metrics()
	l.Info("emulation stopped",
		"claims", mt.ClaimCount.Load(),
		"reads", mt.MemoryReadCount.Load(),
		"writes", mt.MemoryWriteCount.Load(),
		"relayed", mt.RelayCount.Load(),
	)

	return err
}
