package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hacastro22/watibot3-sub002/internal/config"
	"github.com/hacastro22/watibot3-sub002/internal/store"
)

func bufferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buffer",
		Short: "Inspect the durable message buffer",
	}
	cmd.AddCommand(bufferPendingCmd())
	return cmd
}

func bufferPendingCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List conversations with buffered messages, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stores, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			pending, err := stores.Buffer.ListPending(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(pending)
			}
			printPendingTable(pending, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printPendingTable(pending []store.PendingConversation, now time.Time) {
	if len(pending) == 0 {
		fmt.Println("No buffered messages.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONVERSATION\tMESSAGES\tOLDEST\tAGE")
	for _, p := range pending {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			p.ConversationID, p.Count,
			p.OldestArrival.UTC().Format(time.RFC3339),
			now.Sub(p.OldestArrival).Truncate(time.Second))
	}
	tw.Flush()
}
