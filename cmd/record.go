package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	streamlink "github.com/oe-mirrors/streamlink-27"
)

func init() {
	var opts streamlink.RecordOptions

	command := &cobra.Command{
		Use:   "record URL QUALITY",
		Short: "write a stream to a file, stdout or a player",
		Long:  `write the stream of URL selected by QUALITY (e.g. best, 720p, "720p,480p") to a file, stdout or a player`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Output == "" && opts.Player == "" {
				return errors.New("either --output or --player is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return streamlink.Service.Record(ctx, args[0], args[1], opts)
		},
	}

	command.Flags().StringVarP(&opts.Output, "output", "o", "", "write the stream to this file, - writes to stdout")
	command.Flags().StringVarP(&opts.Record, "record", "r", "", "additionally write the stream to this file")
	command.Flags().StringVarP(&opts.Player, "player", "p", "", "command reading the stream from stdin, e.g. \"mpv -\"")

	rootCmd.AddCommand(command)
}
