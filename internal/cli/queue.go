package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/buildtall-systems/storebridge/internal/materials"
	"github.com/buildtall-systems/storebridge/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the pending item queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipients with queued items",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openQueue()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		names := store.RecipientNames()
		if len(names) == 0 {
			fmt.Fprintln(out, "No pending items.")
			return nil
		}
		for _, name := range names {
			fmt.Fprintf(out, "%s: %d item(s)\n", name, len(store.Items(name)))
		}
		fmt.Fprintf(out, "%d recipient(s), %d item(s) total\n", store.Recipients(), store.TotalItems())
		return nil
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <recipient>",
	Short: "Show the items queued for one recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openQueue()
		if err != nil {
			return err
		}
		printItems(cmd.OutOrStdout(), args[0], store.Items(args[0]))
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueShowCmd)
	rootCmd.AddCommand(queueCmd)
}

func openQueue() (*queue.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store := queue.NewStore(queue.NewFileBackend(cfg.Queue.Path), materials.Default(), newLogger(io.Discard, false))
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("loading queue %s: %w", cfg.Queue.Path, err)
	}
	return store, nil
}

func printItems(w io.Writer, recipient string, items []queue.Item) {
	if len(items) == 0 {
		fmt.Fprintf(w, "No pending items for %s.\n", recipient)
		return
	}
	fmt.Fprintf(w, "%s:\n", queue.NormalizeRecipient(recipient))
	for _, it := range items {
		fmt.Fprintf(w, "  %s\n", it)
	}
}
