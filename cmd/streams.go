package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	streamlink "github.com/oe-mirrors/streamlink-27"
)

func init() {
	command := &cobra.Command{
		Use:   "streams URL",
		Short: "list available streams",
		Long:  `list stream names of URL from worst to best`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := streamlink.Service.Streams(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Available streams: %s\n", strings.Join(names, ", "))
			return nil
		},
	}

	rootCmd.AddCommand(command)
}
