package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lancscode/chatter/pkg/node"
)

func init() {
	peersCmd.Flags().StringVarP(&peersAddr, "addr", "a", "localhost:"+node.DefaultPort, "host:port of a running peer")
	rootCmd.AddCommand(peersCmd)
}

var peersAddr string

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the peers a running peer knows about",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		peers, err := node.NewClient(10*time.Second).KnownPeers(ctx, peersAddr)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tADDRESS\tSTATUS")
		for i, p := range peers {
			status := "offline"
			switch {
			case i == 0:
				status = "self"
			case p.Online:
				status = "online"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.HostPort(), status)
		}
		return w.Flush()
	},
}
