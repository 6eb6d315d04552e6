package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lancscode/chatter/pkg/node"
)

func init() {
	historyCmd.Flags().StringVarP(&historyAddr, "addr", "a", "localhost:"+node.DefaultPort, "host:port of a running peer")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of messages to show (0 = all kept)")
	rootCmd.AddCommand(historyCmd)
}

var (
	historyAddr  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the recent messages a running peer has displayed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		msgs, err := node.NewClient(10*time.Second).History(ctx, historyAddr, historyLimit)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
		}
		return nil
	},
}
