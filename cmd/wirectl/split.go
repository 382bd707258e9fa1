package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/oy3o/wire/chunk"
)

var splitCmd = &cobra.Command{
	Use:   "split <file> <frames>",
	Short: "Split a file into a frame stream",
	Long:  `Split reads <file> through a chunk sender and appends every frame it produces to <frames>.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runSplit,
}

func init() {
	splitCmd.Flags().String("channel", chunk.ChannelSingleFile, "transfer channel the frames are addressed to")
	splitCmd.Flags().String("extra", "", "opaque data carried by the first frame")
}

func runSplit(cmd *cobra.Command, args []string) (err error) {
	c, logger, err := load(cmd)
	if err != nil {
		return err
	}
	channel, _ := cmd.Flags().GetString("channel")
	extra, _ := cmd.Flags().GetString("extra")

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, out.Close()) }()

	sender, err := chunk.NewSender(c.ChunkOptions(logger)...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sender.Close()) }()

	var mu sync.Mutex
	dest := chunk.DestinationFunc(args[1], func(_ context.Context, frame []byte) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := out.Write(frame)
		return err
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), c.TransferTimeout)
	defer cancel()
	var extraBytes []byte
	if extra != "" {
		extraBytes = []byte(extra)
	}
	p := sender.Transfer(ctx, chunk.Transfer{
		Channel:      channel,
		Extra:        extraBytes,
		Source:       in,
		Length:       info.Size(),
		Destinations: []chunk.Destination{dest},
	})
	res := p.Await(c.TransferTimeout)
	if res.Status != chunk.StatusSuccess {
		return fmt.Errorf("split %s: %s: %w", args[0], res.Status, res.Err)
	}
	logger.Infof("split %s into %d frames", args[0], res.Frames)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d frames, %d bytes, session %s\n", args[1], res.Frames, res.Bytes, res.Session)
	return nil
}
