package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/oy3o/wire"
	"github.com/oy3o/wire/chunk"
)

var joinCmd = &cobra.Command{
	Use:   "join <frames> <file>",
	Short: "Reassemble a frame stream into a file",
	Long:  `Join feeds every frame of <frames> to a chunk receiver and writes the reassembled content to <file>.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().String("channel", chunk.ChannelSingleFile, "transfer channel to accept")
}

func runJoin(cmd *cobra.Command, args []string) (err error) {
	c, logger, err := load(cmd)
	if err != nil {
		return err
	}
	channel, _ := cmd.Flags().GetString("channel")

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()
	r, err := wire.NewReader(in)
	if err != nil {
		return err
	}

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, out.Close()) }()

	receiver, err := chunk.NewReceiver(c.ChunkOptions(logger)...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, receiver.Close()) }()

	type joined struct {
		info chunk.SessionInfo
		err  error
	}
	done := make(chan joined, 1)
	receiver.Bind(channel, func(_ context.Context, info chunk.SessionInfo, data io.Reader) error {
		_, err := io.Copy(out, data)
		done <- joined{info: info, err: err}
		return err
	})

	frames := 0
	for {
		var f chunk.Frame
		if _, err := f.ReadFrom(r); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("join %s: frame %d: %w", args[0], frames, err)
		}
		if err := receiver.Apply(&f); err != nil {
			return fmt.Errorf("join %s: frame %d: %w", args[0], f.Index, err)
		}
		frames++
	}
	if frames == 0 {
		return fmt.Errorf("join %s: no frames", args[0])
	}

	select {
	case j := <-done:
		if j.err != nil {
			return fmt.Errorf("join %s: write %s: %w", args[0], args[1], j.err)
		}
		info := j.info
		logger.Infof("joined session %s from %d frames", info.Session, info.Frames)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d frames, %d bytes, session %s\n", args[1], info.Frames, info.Size, info.Session)
		return nil
	case <-time.After(c.TransferTimeout):
		return fmt.Errorf("join %s: %w", args[0], chunk.ErrTimeout)
	}
}
