package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/station"
)

// targetFlags select one board and page.
type targetFlags struct {
	boardID string
	offset  uint16
	chain   string
}

func (f *targetFlags) register(cmd *cobra.Command, withOffset bool) {
	cmd.Flags().StringVar(&f.boardID, "board-id", "", "Board id, 0x followed by 24 hex digits (required)")
	cmd.Flags().StringVar(&f.chain, "chain", "", "Port of the board's chain, as listed by discover (required)")
	_ = cmd.MarkFlagRequired("board-id")
	_ = cmd.MarkFlagRequired("chain")

	if withOffset {
		cmd.Flags().Uint16Var(&f.offset, "offset", 0, "Page offset; the byte address is offset*512")
	}
}

func (f *targetFlags) id() (packet.BoardID, error) {
	return packet.ParseBoardID(f.boardID)
}

func newPingCmd(gf *globalFlags) *cobra.Command {
	flags := &targetFlags{}

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that a board answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := flags.id()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), gf, true)
			if err != nil {
				return err
			}
			defer a.close()

			ack, err := a.station.Ping(cmd.Context(), flags.chain, id)
			if err != nil {
				return err
			}

			result := map[string]any{"board_id": ack.Target, "hop": ack.HopCount}
			return render(cmd.OutOrStdout(), gf.output, result, func(w io.Writer) {
				fmt.Fprintf(w, "ACK from %s hop %d\n", ack.Target, ack.HopCount)
			})
		},
	}
	flags.register(cmd, false)

	return cmd
}

type readResult struct {
	Port       string `json:"port"`
	BoardID    string `json:"board_id"`
	MemAddress string `json:"mem_address"`
	Reference  bool   `json:"reference"`
	Data       string `json:"data"`
}

func newReadCmd(gf *globalFlags) *cobra.Command {
	flags := &targetFlags{}

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read one 512-byte page from a board and store it",
		Long: `Read one 512-byte page from a board. The first read of a board's page is
stored as its reference, later reads are stored as samples.`,
		Example: `  chainctl read --chain /dev/ttyUSB0 --board-id 0x0000000A0000000100000001 --offset 3`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := flags.id()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), gf, true)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := readPage(cmd.Context(), a, flags, id)
			if err != nil {
				return err
			}

			out := newReadResult(res)

			return render(cmd.OutOrStdout(), gf.output, out, func(w io.Writer) {
				kind := "sample"
				if res.Reference {
					kind = "reference"
				}
				fmt.Fprintf(w, "%s %s on %s (%s)\n", out.BoardID, out.MemAddress, out.Port, kind)
				hexDump(w, flags.offset, res.Sample.Data)
			})
		},
	}
	flags.register(cmd, true)

	return cmd
}

// readPage issues the single controller read behind the read command.
func readPage(ctx context.Context, a *app, f *targetFlags, id packet.BoardID) (station.ReadResult, error) {
	return a.station.Read(ctx, f.chain, id, f.offset)
}

func newReadResult(res station.ReadResult) readResult {
	return readResult{
		Port:       res.Port,
		BoardID:    res.Sample.BoardID,
		MemAddress: res.Sample.Address,
		Reference:  res.Reference,
		Data:       hex.EncodeToString(res.Sample.Data),
	}
}

type writeFlags struct {
	targetFlags
	data string
	fill string
}

func newWriteCmd(gf *globalFlags) *cobra.Command {
	flags := &writeFlags{}

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write one 512-byte page to a board",
		Example: `  # Fill a page with 0xAA
  chainctl write --chain /dev/ttyUSB0 --board-id 0x0000000A0000000100000001 --offset 3 --fill 0xAA

  # Write the first bytes of a page, the rest is zero
  chainctl write --chain /dev/ttyUSB0 --board-id 0x0000000A0000000100000001 --data "de ad be ef"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := flags.id()
			if err != nil {
				return err
			}

			data, err := flags.payload()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), gf, true)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.station.Write(cmd.Context(), flags.chain, id, flags.offset, data); err != nil {
				return err
			}

			return printWritten(cmd.OutOrStdout(), gf.output, id, flags.offset)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&flags.data, "data", "", "Page content as hex, zero padded to 512 bytes")
	cmd.Flags().StringVar(&flags.fill, "fill", "", "Fill the page with one byte value")
	cmd.MarkFlagsMutuallyExclusive("data", "fill")
	cmd.MarkFlagsOneRequired("data", "fill")

	return cmd
}

func (f *writeFlags) payload() (packet.Payload, error) {
	if f.data != "" {
		return parsePayload(f.data)
	}
	if f.fill == "" {
		return packet.Payload{}, errors.New("one of --data or --fill is required")
	}

	b, err := parseFill(f.fill)
	if err != nil {
		return packet.Payload{}, err
	}

	var p packet.Payload
	for i := range p {
		p[i] = b
	}

	return p, nil
}

func newWriteInvertCmd(gf *globalFlags) *cobra.Command {
	flags := &targetFlags{}

	cmd := &cobra.Command{
		Use:   "write-invert",
		Short: "Write the inverse of a page's stored reference back to the board",
		Long: `Load the reference stored for a board's page, flip every bit and write the
result back to the same page. The page must have been read before with a
persistent store (store_dir or --store-dir).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := flags.id()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), gf, true)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.station.WriteInvert(cmd.Context(), flags.chain, id, flags.offset); err != nil {
				return err
			}

			return printWritten(cmd.OutOrStdout(), gf.output, id, flags.offset)
		},
	}
	flags.register(cmd, true)

	return cmd
}

func printWritten(w io.Writer, format string, id packet.BoardID, offset uint16) error {
	result := map[string]string{
		"board_id":    id.String(),
		"mem_address": packet.FormatAddress(offset),
		"message":     "region of memory written",
	}

	return render(w, format, result, func(w io.Writer) {
		fmt.Fprintf(w, "wrote %s %s\n", id, packet.FormatAddress(offset))
	})
}
