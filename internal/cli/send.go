package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lancscode/chatter/pkg/node"
)

func init() {
	sendCmd.Flags().StringVarP(&sendAddr, "addr", "a", "localhost:"+node.DefaultPort, "host:port of a running peer")
	rootCmd.AddCommand(sendCmd)
}

var sendAddr string

var sendCmd = &cobra.Command{
	Use:   "send MESSAGE...",
	Short: "Send a message through a running peer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		msg, err := node.NewClient(10*time.Second).Send(ctx, sendAddr, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
		return nil
	},
}
